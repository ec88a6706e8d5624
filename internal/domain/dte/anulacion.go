package dte

import (
	"time"

	"github.com/facturasv/dte-api/internal/domain"
	"github.com/facturasv/dte-api/internal/domain/entity"
)

// Evento de invalidación (anulación) de un DTE ya procesado. El MH lo recibe
// como un documento firmado aparte, versión 2, en /fesv/anulardte.

const versionAnulacion = 2

// Tipos de anulación del catálogo MH.
const (
	AnulacionPorError   = 1 // requiere DTE de reemplazo
	AnulacionRescindida = 2 // rescinde la operación, sin reemplazo
)

// DocumentoAnulacion evento de invalidación canónico.
type DocumentoAnulacion struct {
	Identificacion IdentificacionAnulacion `json:"identificacion"`
	Emisor         EmisorAnulacion         `json:"emisor"`
	Documento      DocumentoAnulado        `json:"documento"`
	Motivo         MotivoAnulacion         `json:"motivo"`
}

// IdentificacionAnulacion cabecera del evento.
type IdentificacionAnulacion struct {
	Version          int    `json:"version"`
	Ambiente         string `json:"ambiente"`
	CodigoGeneracion string `json:"codigoGeneracion"`
	FecAnula         string `json:"fecAnula"`
	HorAnula         string `json:"horAnula"`
}

// EmisorAnulacion emisor reducido del evento.
type EmisorAnulacion struct {
	NIT                 string  `json:"nit"`
	Nombre              string  `json:"nombre"`
	TipoEstablecimiento string  `json:"tipoEstablecimiento"`
	Telefono            *string `json:"telefono"`
	Correo              *string `json:"correo"`
}

// DocumentoAnulado referencia al DTE que se invalida.
type DocumentoAnulado struct {
	TipoDte           string  `json:"tipoDte"`
	CodigoGeneracion  string  `json:"codigoGeneracion"`
	SelloRecibido     string  `json:"selloRecibido"`
	NumeroControl     string  `json:"numeroControl"`
	FecEmi            string  `json:"fecEmi"`
	MontoIva          float64 `json:"montoIva"`
	CodigoGeneracionR *string `json:"codigoGeneracionR"` // DTE de reemplazo (tipo 1)
	TipoDocumento     *string `json:"tipoDocumento"`
	NumDocumento      *string `json:"numDocumento"`
	Nombre            *string `json:"nombre"`
	Telefono          *string `json:"telefono"`
	Correo            *string `json:"correo"`
}

// MotivoAnulacion motivo y responsables declarados.
type MotivoAnulacion struct {
	TipoAnulacion     int    `json:"tipoAnulacion"`
	MotivoAnulacion   string `json:"motivoAnulacion"`
	NombreResponsable string `json:"nombreResponsable"`
	TipDocResponsable string `json:"tipDocResponsable"`
	NumDocResponsable string `json:"numDocResponsable"`
	NombreSolicita    string `json:"nombreSolicita"`
	TipDocSolicita    string `json:"tipDocSolicita"`
	NumDocSolicita    string `json:"numDocSolicita"`
}

// ParametrosAnulacion entrada de ConstruirAnulacion.
type ParametrosAnulacion struct {
	Registro         *entity.DTE
	Emisor           *entity.Emisor
	Motivo           string
	TipoAnulacion    int // default AnulacionRescindida
	CodigoGeneracion string
	FechaAnulacion   time.Time
}

// ConstruirAnulacion arma el evento de invalidación de un DTE procesado.
// Sólo los DTEs con sello del MH son anulables.
func ConstruirAnulacion(p ParametrosAnulacion) (*DocumentoAnulacion, error) {
	if p.Registro == nil || p.Registro.SelloRecibido == "" {
		return nil, domain.ErrDTENoAnulable
	}
	if p.Emisor == nil {
		return nil, domain.ErrEmisorNoEncontrado
	}

	tipoAnulacion := p.TipoAnulacion
	if tipoAnulacion == 0 {
		tipoAnulacion = AnulacionRescindida
	}

	fecha, hora := FechaEmision(p.FechaAnulacion)
	responsable := Normalizar(p.Emisor.Nombre)

	return &DocumentoAnulacion{
		Identificacion: IdentificacionAnulacion{
			Version:          versionAnulacion,
			Ambiente:         p.Registro.Ambiente,
			CodigoGeneracion: p.CodigoGeneracion,
			FecAnula:         fecha,
			HorAnula:         hora,
		},
		Emisor: EmisorAnulacion{
			NIT:                 p.Emisor.NITHacienda(),
			Nombre:              responsable,
			TipoEstablecimiento: valorODefault(p.Emisor.TipoEstablecimiento, defaultTipoEstablecimiento),
			Telefono:            opcional(p.Emisor.Telefono),
			Correo:              opcional(p.Emisor.Correo),
		},
		Documento: DocumentoAnulado{
			TipoDte:          p.Registro.TipoDte,
			CodigoGeneracion: p.Registro.CodigoGeneracion,
			SelloRecibido:    p.Registro.SelloRecibido,
			NumeroControl:    p.Registro.NumeroControl,
			FecEmi:           p.Registro.FechaEmision.Format("2006-01-02"),
			MontoIva:         p.Registro.TotalIva.InexactFloat64(),
			TipoDocumento:    opcional(p.Registro.ReceptorTipoDoc),
			NumDocumento:     opcional(p.Registro.ReceptorNumDoc),
			Nombre:           normalizarOpcional(p.Registro.ReceptorNombre),
			Correo:           opcional(p.Registro.ReceptorCorreo),
		},
		Motivo: MotivoAnulacion{
			TipoAnulacion:     tipoAnulacion,
			MotivoAnulacion:   Normalizar(p.Motivo),
			NombreResponsable: responsable,
			TipDocResponsable: "36",
			NumDocResponsable: p.Emisor.NIT,
			NombreSolicita:    responsable,
			TipDocSolicita:    "36",
			NumDocSolicita:    p.Emisor.NIT,
		},
	}, nil
}
