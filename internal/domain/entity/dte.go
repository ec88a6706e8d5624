package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de transmisión de un DTE hacia el Ministerio de Hacienda.
//
// Flujo normal: CREADO → FIRMADO → ENVIADO → PROCESADO | RECHAZADO.
// ERROR es alcanzable desde firma o envío ante fallos transitorios; la cola
// de reintentos es el único driver que re-procesa registros en ERROR.
// RECHAZADO_FINAL se alcanza al agotar los reintentos configurados.
const (
	EstadoCreado         = "CREADO"          // Registro persistido, documento construido
	EstadoFirmado        = "FIRMADO"         // JWS recibido del firmador, pendiente de envío
	EstadoEnviado        = "ENVIADO"         // Entregado al MH, respuesta pendiente
	EstadoProcesado      = "PROCESADO"       // Aceptado por el MH (sello recibido)
	EstadoRechazado      = "RECHAZADO"       // Rechazo declarado por el MH: terminal, no se reintenta
	EstadoError          = "ERROR"           // Fallo transitorio (red, timeout, 5xx, firma)
	EstadoRechazadoFinal = "RECHAZADO_FINAL" // Reintentos agotados: excluido de barridos futuros
	EstadoAnulado        = "ANULADO"         // Invalidado ante el MH tras haber sido procesado
)

// DTE registro de transmisión de un documento tributario electrónico.
// Una fila por documento; el estado lo gobiernan el orquestador y la cola
// de reintentos, nunca el caller.
type DTE struct {
	ID               string
	TenantID         string
	EmisorID         string
	CodigoGeneracion string // UUID v4 en mayúsculas
	NumeroControl    string // DTE-TT-XXXXXXXX-NNNNNNNNNNNNNNN
	TipoDte          string
	Version          int
	Ambiente         string // "00" pruebas, "01" producción
	FechaEmision     time.Time
	HoraEmision      string

	ReceptorTipoDoc string
	ReceptorNumDoc  string
	ReceptorNombre  string
	ReceptorCorreo  string

	TotalGravada decimal.Decimal
	TotalIva     decimal.Decimal
	TotalPagar   decimal.Decimal

	Estado             string
	Intentos           int
	SelloRecibido      string // Sello/recibo emitido por el MH al aceptar
	FechaProcesamiento string // Timestamp declarado por el MH (verbatim)
	Observaciones      string // Observaciones del MH, preservadas verbatim para auditoría
	ConObservaciones   bool   // Aceptado técnicamente pero con observaciones de negocio
	ErrorLog           string // Último error, verbatim
	JSONOriginal       string // Documento canónico serializado
	JSONFirmado        string // Envelope JWS devuelto por el firmador

	CreatedAt time.Time
	UpdatedAt time.Time
}
