// Package dto define los contratos JSON de la API (requests y responses).
package dto

import (
	"github.com/shopspring/decimal"

	"github.com/facturasv/dte-api/internal/domain/entity"
)

// ErrorResponse respuesta de error uniforme de la API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ItemRequest línea de la factura tal como la envía el cliente.
type ItemRequest struct {
	Descripcion    string          `json:"descripcion"`
	Cantidad       decimal.Decimal `json:"cantidad"`
	PrecioUnitario decimal.Decimal `json:"precioUnitario"`
	Descuento      decimal.Decimal `json:"descuento"`
	TipoItem       int             `json:"tipoItem"`
	UniMedida      *int            `json:"uniMedida"`
	Codigo         *string         `json:"codigo"`
}

// ReceptorRequest contraparte del documento.
type ReceptorRequest struct {
	TipoDocumento string `json:"tipoDocumento"`
	NumDocumento  string `json:"numDocumento"`
	NRC           string `json:"nrc"`
	Nombre        string `json:"nombre"`
	CodActividad  string `json:"codActividad"`
	DescActividad string `json:"descActividad"`
	Departamento  string `json:"departamento"`
	Municipio     string `json:"municipio"`
	Complemento   string `json:"complemento"`
	Telefono      string `json:"telefono"`
	Correo        string `json:"correo"`
}

// DocRelacionadoRequest referencia al documento original (NC/ND).
type DocRelacionadoRequest struct {
	TipoDocumento   string `json:"tipoDocumento"`
	TipoGeneracion  int    `json:"tipoGeneracion"`
	NumeroDocumento string `json:"numeroDocumento"`
	FechaEmision    string `json:"fechaEmision"` // YYYY-MM-DD
}

// EmitirDTERequest petición de emisión de un DTE.
type EmitirDTERequest struct {
	EmisorID           string                 `json:"emisorId"`
	TipoDte            string                 `json:"tipoDte"`
	Receptor           *ReceptorRequest       `json:"receptor"`
	DocRelacionado     *DocRelacionadoRequest `json:"documentoRelacionado"`
	Items              []ItemRequest          `json:"items"`
	CondicionOperacion int                    `json:"condicionOperacion"`
}

// AnularDTERequest petición de invalidación de un DTE procesado.
type AnularDTERequest struct {
	Motivo        string `json:"motivo"`
	TipoAnulacion int    `json:"tipoAnulacion"` // catálogo MH; 0 = rescindir
}

// DTEResponse registro de transmisión expuesto por la API.
type DTEResponse struct {
	ID                 string `json:"id"`
	CodigoGeneracion   string `json:"codigoGeneracion"`
	NumeroControl      string `json:"numeroControl"`
	TipoDte            string `json:"tipoDte"`
	Ambiente           string `json:"ambiente"`
	FechaEmision       string `json:"fechaEmision"`
	HoraEmision        string `json:"horaEmision"`
	ReceptorNombre     string `json:"receptorNombre,omitempty"`
	ReceptorNumDoc     string `json:"receptorNumDocumento,omitempty"`
	TotalGravada       string `json:"totalGravada"`
	TotalIva           string `json:"totalIva"`
	TotalPagar         string `json:"totalPagar"`
	Estado             string `json:"estado"`
	Intentos           int    `json:"intentos"`
	SelloRecibido      string `json:"selloRecibido,omitempty"`
	FechaProcesamiento string `json:"fechaProcesamiento,omitempty"`
	Observaciones      string `json:"observaciones,omitempty"`
	ConObservaciones   bool   `json:"conObservaciones"`
	ErrorLog           string `json:"errorLog,omitempty"`
}

// ListaDTEResponse página de registros.
type ListaDTEResponse struct {
	Data  []DTEResponse `json:"data"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// NewDTEResponse mapea el registro de dominio al contrato de la API. Los
// montos se serializan como string con 2 decimales fijos.
func NewDTEResponse(d *entity.DTE) DTEResponse {
	return DTEResponse{
		ID:                 d.ID,
		CodigoGeneracion:   d.CodigoGeneracion,
		NumeroControl:      d.NumeroControl,
		TipoDte:            d.TipoDte,
		Ambiente:           d.Ambiente,
		FechaEmision:       d.FechaEmision.Format("2006-01-02"),
		HoraEmision:        d.HoraEmision,
		ReceptorNombre:     d.ReceptorNombre,
		ReceptorNumDoc:     d.ReceptorNumDoc,
		TotalGravada:       d.TotalGravada.StringFixed(2),
		TotalIva:           d.TotalIva.StringFixed(2),
		TotalPagar:         d.TotalPagar.StringFixed(2),
		Estado:             d.Estado,
		Intentos:           d.Intentos,
		SelloRecibido:      d.SelloRecibido,
		FechaProcesamiento: d.FechaProcesamiento,
		Observaciones:      d.Observaciones,
		ConObservaciones:   d.ConObservaciones,
		ErrorLog:           d.ErrorLog,
	}
}
