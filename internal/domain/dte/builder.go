package dte

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/facturasv/dte-api/internal/domain"
	"github.com/facturasv/dte-api/internal/domain/entity"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Defaults de catálogo cuando el caller omite campos opcionales.
const (
	defaultDepartamento        = "06" // San Salvador
	defaultMunicipio           = "14"
	defaultTipoEstablecimiento = "01"
	defaultTipoDocReceptor     = "36" // NIT
)

// ReceptorInput contraparte tal como llega del cliente (sin normalizar).
type ReceptorInput struct {
	TipoDocumento string
	NumDocumento  string
	NRC           string
	Nombre        string
	CodActividad  string
	DescActividad string
	Departamento  string
	Municipio     string
	Complemento   string
	Telefono      string
	Correo        string
}

// ParametrosDocumento entrada completa del builder. Los identificadores
// (código de generación y número de control) los produce el colaborador
// generador; el builder sólo los coloca en el envelope.
type ParametrosDocumento struct {
	TipoDte            string
	Emisor             *entity.Emisor
	Receptor           *ReceptorInput
	DocRelacionado     *DocumentoRelacionado
	Items              []ItemFactura
	CondicionOperacion int // 1=Contado, 2=Crédito, 3=Otro
	CodigoGeneracion   string
	NumeroControl      string
	FechaEmision       time.Time
}

// ConstruirDocumento arma el documento canónico Anexo II a partir de datos
// sueltos: valida los requisitos del tipo, valoriza las líneas, calcula el
// resumen y normaliza los textos. Transformación pura, sin efectos.
func ConstruirDocumento(p ParametrosDocumento) (*Documento, error) {
	config, err := Lookup(p.TipoDte)
	if err != nil {
		return nil, err
	}
	if p.Emisor == nil {
		return nil, domain.ErrEmisorNoEncontrado
	}
	if len(p.Items) == 0 {
		return nil, domain.ErrSinLineas
	}
	if config.RequiereDocRelacionado && p.DocRelacionado == nil {
		return nil, fmt.Errorf("%w (%s)", domain.ErrDocRelacionadoFaltante, config.NombreCorto)
	}
	if (config.UsaReceptor || config.UsaSujetoExcluido) && p.Receptor == nil {
		if config.UsaSujetoExcluido {
			return nil, domain.ErrSujetoExcluidoRequerido
		}
		return nil, domain.ErrReceptorRequerido
	}
	if config.RequiereNRCReceptor && strings.TrimSpace(p.Receptor.NRC) == "" {
		return nil, fmt.Errorf("%w (%s)", domain.ErrNRCRequerido, config.NombreCorto)
	}

	cuerpo := make([]LineaDTE, len(p.Items))
	for i, item := range p.Items {
		linea, err := CalcularLinea(item, i+1, p.TipoDte)
		if err != nil {
			return nil, err
		}
		cuerpo[i] = linea
	}

	condicion := p.CondicionOperacion
	if condicion == 0 {
		condicion = 1
	}
	resumen := CalcularResumen(cuerpo, condicion, p.TipoDte)

	fecha, hora := FechaEmision(p.FechaEmision)
	doc := &Documento{
		Identificacion: Identificacion{
			Version:          config.Version,
			Ambiente:         p.Emisor.Ambiente,
			TipoDte:          config.Codigo,
			NumeroControl:    p.NumeroControl,
			CodigoGeneracion: p.CodigoGeneracion,
			TipoModelo:       1,
			TipoOperacion:    1,
			FecEmi:           fecha,
			HorEmi:           hora,
			TipoMoneda:       "USD",
		},
		Emisor:          construirEmisorDoc(p.Emisor),
		CuerpoDocumento: cuerpo,
		Resumen:         resumen,
	}

	if p.DocRelacionado != nil {
		doc.DocumentoRelacionado = []DocumentoRelacionado{*p.DocRelacionado}
	}

	switch {
	case config.UsaSujetoExcluido:
		doc.SujetoExcluido = construirSujetoExcluido(p.Receptor)
	case config.UsaReceptor:
		doc.Receptor = construirReceptorDoc(p.Receptor, config)
	}

	return doc, nil
}

func construirEmisorDoc(e *entity.Emisor) EmisorDoc {
	estable := valorODefault(e.CodEstableMH, "M001")
	punto := valorODefault(e.CodPuntoVentaMH, "P001")
	return EmisorDoc{
		NIT:                 e.NITHacienda(),
		NRC:                 e.NRC,
		Nombre:              Normalizar(e.Nombre),
		CodActividad:        e.CodActividad,
		DescActividad:       Normalizar(e.DescActividad),
		NombreComercial:     normalizarOpcional(e.NombreComercial),
		TipoEstablecimiento: valorODefault(e.TipoEstablecimiento, defaultTipoEstablecimiento),
		Direccion: Direccion{
			Departamento: valorODefault(e.Departamento, defaultDepartamento),
			Municipio:    valorODefault(e.Municipio, defaultMunicipio),
			Complemento:  Normalizar(e.Complemento),
		},
		Telefono:        e.Telefono,
		Correo:          e.Correo,
		CodEstableMH:    estable,
		CodEstable:      estable,
		CodPuntoVentaMH: punto,
		CodPuntoVenta:   punto,
	}
}

func construirReceptorDoc(r *ReceptorInput, config TipoDTE) *ReceptorDoc {
	tipoDoc := r.TipoDocumento
	if config.RequiereNRCReceptor {
		// CCF/NC/ND: el receptor se identifica siempre por NIT
		tipoDoc = defaultTipoDocReceptor
	}
	doc := &ReceptorDoc{
		TipoDocumento: valorODefault(tipoDoc, defaultTipoDocReceptor),
		NumDocumento:  r.NumDocumento,
		NRC:           opcional(r.NRC),
		Nombre:        Normalizar(r.Nombre),
		CodActividad:  opcional(r.CodActividad),
		DescActividad: normalizarOpcional(r.DescActividad),
		Telefono:      opcional(r.Telefono),
		Correo:        r.Correo,
	}
	if r.Departamento != "" || r.Municipio != "" || r.Complemento != "" {
		doc.Direccion = &Direccion{
			Departamento: valorODefault(r.Departamento, defaultDepartamento),
			Municipio:    valorODefault(r.Municipio, defaultMunicipio),
			Complemento:  Normalizar(r.Complemento),
		}
	}
	return doc
}

func construirSujetoExcluido(r *ReceptorInput) *SujetoExcluidoDoc {
	doc := &SujetoExcluidoDoc{
		TipoDocumento: valorODefault(r.TipoDocumento, "13"), // DUI por defecto para FSE
		NumDocumento:  r.NumDocumento,
		Nombre:        Normalizar(r.Nombre),
		CodActividad:  opcional(r.CodActividad),
		DescActividad: normalizarOpcional(r.DescActividad),
		Telefono:      opcional(r.Telefono),
		Correo:        opcional(r.Correo),
	}
	if r.Departamento != "" || r.Municipio != "" || r.Complemento != "" {
		doc.Direccion = &Direccion{
			Departamento: valorODefault(r.Departamento, defaultDepartamento),
			Municipio:    valorODefault(r.Municipio, defaultMunicipio),
			Complemento:  Normalizar(r.Complemento),
		}
	}
	return doc
}

// Normalizar lleva el texto al formato que exige el MH: mayúsculas y sin
// diacríticos (el validador del esquema rechaza tildes en varios campos).
func Normalizar(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	limpio, _, err := transform.String(t, s)
	if err != nil {
		limpio = s
	}
	return strings.ToUpper(strings.TrimSpace(limpio))
}

func normalizarOpcional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	v := Normalizar(s)
	return &v
}

func opcional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func valorODefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
