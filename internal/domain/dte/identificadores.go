package dte

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generación de identificadores exigidos por el MH: código de generación
// (UUID v4 en mayúsculas) y número de control (correlativo con formato fijo).

// GeneradorIdentificadores colaborador que produce los identificadores del
// documento. La implementación por defecto usa UUID v4; en tests se
// inyectan valores deterministas.
type GeneradorIdentificadores interface {
	CodigoGeneracion() string
	NumeroControl(tipoDte, codigoEstablecimiento string, correlativo int64) string
}

// GeneradorUUID implementación por defecto de GeneradorIdentificadores.
type GeneradorUUID struct{}

// CodigoGeneracion genera un UUID v4 en mayúsculas.
// Formato requerido por MH: XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX.
func (GeneradorUUID) CodigoGeneracion() string {
	return strings.ToUpper(uuid.New().String())
}

// NumeroControl arma el correlativo DTE-TT-XXXXXXXX-NNNNNNNNNNNNNNN:
// TT tipo de documento, XXXXXXXX establecimiento (8, relleno con ceros),
// NNNNNNNNNNNNNNN correlativo (15 dígitos).
func (GeneradorUUID) NumeroControl(tipoDte, codigoEstablecimiento string, correlativo int64) string {
	tipo := tipoDte
	if len(tipo) < 2 {
		tipo = fmt.Sprintf("%02s", tipo)
	}
	estable := codigoEstablecimiento
	if len(estable) > 8 {
		estable = estable[:8]
	}
	estable = estable + strings.Repeat("0", 8-len(estable))
	return fmt.Sprintf("DTE-%s-%s-%015d", tipo, estable, correlativo)
}

// FechaEmision formatea la fecha de emisión (YYYY-MM-DD) y la hora
// (HH:MM:SS) como las exige el esquema.
func FechaEmision(t time.Time) (fecha, hora string) {
	return t.Format("2006-01-02"), t.Format("15:04:05")
}
