package dte

import (
	"fmt"

	"github.com/facturasv/dte-api/internal/domain"
	"github.com/shopspring/decimal"
)

// Códigos de tipo de DTE según catálogo CAT-002 del MH.
const (
	TipoFactura        = "01" // Factura Electrónica (consumidor final)
	TipoCreditoFiscal  = "03" // Comprobante de Crédito Fiscal
	TipoNotaRemision   = "04" // Nota de Remisión
	TipoNotaCredito    = "05" // Nota de Crédito
	TipoNotaDebito     = "06" // Nota de Débito
	TipoExportacion    = "11" // Factura de Exportación
	TipoSujetoExcluido = "14" // Factura de Sujeto Excluido
	TipoDonacion       = "15" // Comprobante de Donación
)

// Constantes del tributo IVA según catálogo MH.
const (
	CodigoIVA      = "20"
	DescripcionIVA = "Impuesto al Valor Agregado 13%"
)

// TasaIVA tasa vigente del IVA (13%).
var TasaIVA = decimal.NewFromFloat(0.13)

// TipoDTE reglas estructurales y fiscales de un tipo de documento.
// Inmutable: Lookup devuelve copias por valor.
type TipoDTE struct {
	Codigo                string
	Version               int
	Nombre                string
	NombreCorto           string
	PrecioIncluyeIVA      bool // El precio unitario ya trae el IVA folded
	UsaTributos           bool // Emite array de tributos en cuerpo y resumen
	UsaReceptor           bool
	UsaSujetoExcluido     bool
	RequiereNRCReceptor   bool
	RequiereDocRelacionado bool
	EsExportacion         bool
	TasaRetencion         decimal.Decimal // cero si no aplica retención de renta
	CodigoTributoIVA      string          // sólo cuando UsaTributos
}

// AplicaRetencion reporta si el tipo lleva retención de renta en el resumen.
func (t TipoDTE) AplicaRetencion() bool {
	return t.TasaRetencion.IsPositive()
}

// tiposDTE tabla estática de reglas por tipo, cargada una vez.
// Versiones según esquemas oficiales: FE v1, CCF v3, NC v3, ND v3, resto v1.
var tiposDTE = map[string]TipoDTE{
	TipoFactura: {
		Codigo: TipoFactura, Version: 1,
		Nombre: "Factura Electrónica", NombreCorto: "FE",
		PrecioIncluyeIVA: true, UsaReceptor: true,
	},
	TipoCreditoFiscal: {
		Codigo: TipoCreditoFiscal, Version: 3,
		Nombre: "Comprobante de Crédito Fiscal", NombreCorto: "CCF",
		UsaTributos: true, UsaReceptor: true, RequiereNRCReceptor: true,
		CodigoTributoIVA: CodigoIVA,
	},
	TipoNotaRemision: {
		Codigo: TipoNotaRemision, Version: 1,
		Nombre: "Nota de Remisión", NombreCorto: "NR",
		UsaReceptor: true,
	},
	TipoNotaCredito: {
		Codigo: TipoNotaCredito, Version: 3,
		Nombre: "Nota de Crédito", NombreCorto: "NC",
		UsaTributos: true, UsaReceptor: true, RequiereNRCReceptor: true,
		RequiereDocRelacionado: true, CodigoTributoIVA: CodigoIVA,
	},
	TipoNotaDebito: {
		Codigo: TipoNotaDebito, Version: 3,
		Nombre: "Nota de Débito", NombreCorto: "ND",
		UsaTributos: true, UsaReceptor: true, RequiereNRCReceptor: true,
		RequiereDocRelacionado: true, CodigoTributoIVA: CodigoIVA,
	},
	TipoExportacion: {
		Codigo: TipoExportacion, Version: 1,
		Nombre: "Factura de Exportación", NombreCorto: "FEX",
		UsaReceptor: true, EsExportacion: true,
	},
	TipoSujetoExcluido: {
		Codigo: TipoSujetoExcluido, Version: 1,
		Nombre: "Factura de Sujeto Excluido", NombreCorto: "FSE",
		UsaSujetoExcluido: true,
		TasaRetencion:     decimal.NewFromFloat(0.10),
	},
	TipoDonacion: {
		Codigo: TipoDonacion, Version: 1,
		Nombre: "Comprobante de Donación", NombreCorto: "CD",
		UsaReceptor: true,
	},
}

// Lookup devuelve la definición de un tipo de DTE.
// Tipos desconocidos son error del caller, nunca se defaultean en silencio.
func Lookup(codigo string) (TipoDTE, error) {
	t, ok := tiposDTE[codigo]
	if !ok {
		return TipoDTE{}, fmt.Errorf("%w: %q", domain.ErrTipoDTEDesconocido, codigo)
	}
	return t, nil
}

// Listar devuelve todos los tipos soportados (orden por código).
func Listar() []TipoDTE {
	codigos := []string{
		TipoFactura, TipoCreditoFiscal, TipoNotaRemision, TipoNotaCredito,
		TipoNotaDebito, TipoExportacion, TipoSujetoExcluido, TipoDonacion,
	}
	out := make([]TipoDTE, 0, len(tiposDTE))
	for _, c := range codigos {
		out = append(out, tiposDTE[c])
	}
	return out
}

// TributosCuerpo genera el array de tributos para el cuerpoDocumento
// (CCF, NC, ND). nil cuando el tipo no usa tributos.
func TributosCuerpo(t TipoDTE) []string {
	if !t.UsaTributos {
		return nil
	}
	codigo := t.CodigoTributoIVA
	if codigo == "" {
		codigo = CodigoIVA
	}
	return []string{codigo}
}
