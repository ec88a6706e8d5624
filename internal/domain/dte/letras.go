package dte

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Conversión de montos a letras para el campo totalLetras del resumen.
// Determinista: agrupación por centenas dentro de cada millar, formas
// léxicas propias para 10–19, "Y" entre decena y unidad, "CIEN" exacto.

var (
	unidades  = []string{"", "UNO", "DOS", "TRES", "CUATRO", "CINCO", "SEIS", "SIETE", "OCHO", "NUEVE"}
	especiales = []string{"DIEZ", "ONCE", "DOCE", "TRECE", "CATORCE", "QUINCE", "DIECISEIS", "DIECISIETE", "DIECIOCHO", "DIECINUEVE"}
	decenas   = []string{"", "", "VEINTE", "TREINTA", "CUARENTA", "CINCUENTA", "SESENTA", "SETENTA", "OCHENTA", "NOVENTA"}
	centenas  = []string{"", "CIENTO", "DOSCIENTOS", "TRESCIENTOS", "CUATROCIENTOS", "QUINIENTOS", "SEISCIENTOS", "SETECIENTOS", "OCHOCIENTOS", "NOVECIENTOS"}
)

// NumeroALetras convierte un monto a su representación en letras con la
// fracción como NN/100 y el sufijo de moneda fijo.
// Ej.: 113.00 → "CIENTO TRECE 00/100 USD".
func NumeroALetras(monto decimal.Decimal) string {
	parteEntera := monto.IntPart()
	parteDecimal := monto.Sub(decimal.NewFromInt(parteEntera)).Mul(decimal.NewFromInt(100)).Round(0).IntPart()

	var texto string
	switch {
	case parteEntera == 0:
		texto = "CERO"
	case parteEntera == 1:
		texto = "UN"
	case parteEntera < 1000:
		texto = convertirGrupo(int(parteEntera))
	case parteEntera < 1_000_000:
		miles := int(parteEntera / 1000)
		resto := int(parteEntera % 1000)
		if miles == 1 {
			texto = "MIL"
		} else {
			texto = convertirGrupo(miles) + " MIL"
		}
		if resto > 0 {
			texto += " " + convertirGrupo(resto)
		}
	default:
		texto = fmt.Sprintf("%d", parteEntera)
	}

	return fmt.Sprintf("%s %02d/100 USD", texto, parteDecimal)
}

// convertirGrupo convierte 1..999 a letras.
func convertirGrupo(n int) string {
	if n == 0 {
		return ""
	}
	if n == 100 {
		return "CIEN"
	}
	var b strings.Builder
	if n >= 100 {
		b.WriteString(centenas[n/100])
		b.WriteString(" ")
		n = n % 100
	}
	if n >= 10 && n <= 19 {
		b.WriteString(especiales[n-10])
		return strings.TrimSpace(b.String())
	}
	if n >= 20 {
		b.WriteString(decenas[n/10])
		n = n % 10
		if n > 0 {
			b.WriteString(" Y ")
		}
	}
	if n > 0 && n < 10 {
		b.WriteString(unidades[n])
	}
	return strings.TrimSpace(b.String())
}
