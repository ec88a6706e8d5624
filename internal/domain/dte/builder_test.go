package dte_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturasv/dte-api/internal/domain"
	"github.com/facturasv/dte-api/internal/domain/dte"
	"github.com/facturasv/dte-api/internal/domain/entity"
)

func emisorPrueba() *entity.Emisor {
	return &entity.Emisor{
		ID:            "emisor-1",
		NIT:           "06141234567890",
		NRC:           "123456",
		Nombre:        "Comercial Salvadoreña, S.A. de C.V.",
		CodActividad:  "47190",
		DescActividad: "Venta al por menor",
		Departamento:  "06",
		Municipio:     "14",
		Complemento:   "Col. Escalón, San Salvador",
		Telefono:      "22221111",
		Correo:        "facturacion@comercialsv.example",
		Ambiente:      "00",
	}
}

func receptorPrueba() *dte.ReceptorInput {
	return &dte.ReceptorInput{
		TipoDocumento: "36",
		NumDocumento:  "06140987654321",
		NRC:           "654321",
		Nombre:        "Cliente Único, S.A.",
		Correo:        "cliente@example.com",
	}
}

func parametrosPrueba(tipoDte string) dte.ParametrosDocumento {
	return dte.ParametrosDocumento{
		TipoDte:          tipoDte,
		Emisor:           emisorPrueba(),
		Receptor:         receptorPrueba(),
		Items:            []dte.ItemFactura{item(1, 113.00)},
		CodigoGeneracion: "A1B2C3D4-0000-4000-8000-000000000001",
		NumeroControl:    "DTE-01-M001P001-000000000000001",
		FechaEmision:     time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestConstruirDocumento_FacturaCompleta(t *testing.T) {
	doc, err := dte.ConstruirDocumento(parametrosPrueba(dte.TipoFactura))
	require.NoError(t, err)

	assert.Equal(t, "01", doc.Identificacion.TipoDte)
	assert.Equal(t, 1, doc.Identificacion.Version)
	assert.Equal(t, "00", doc.Identificacion.Ambiente)
	assert.Equal(t, "2026-03-15", doc.Identificacion.FecEmi)
	assert.Equal(t, "10:30:00", doc.Identificacion.HorEmi)
	assert.Equal(t, "USD", doc.Identificacion.TipoMoneda)
	assert.Equal(t, "234567890", doc.Emisor.NIT, "el documento lleva el NIT reducido a 9 dígitos")
	require.Len(t, doc.CuerpoDocumento, 1)
	assert.Equal(t, "113.00", doc.Resumen.TotalPagar.StringFixed(2))
	require.NotNil(t, doc.Receptor)
	assert.Nil(t, doc.SujetoExcluido)
}

func TestConstruirDocumento_NormalizaTextos(t *testing.T) {
	p := parametrosPrueba(dte.TipoFactura)
	p.Receptor.Nombre = "José Pérez Ávila"

	doc, err := dte.ConstruirDocumento(p)
	require.NoError(t, err)

	assert.Equal(t, "JOSE PEREZ AVILA", doc.Receptor.Nombre,
		"los textos van en mayúsculas y sin diacríticos")
	assert.Equal(t, "COMERCIAL SALVADORENA, S.A. DE C.V.", doc.Emisor.Nombre,
		"la tilde de la eñe también se descompone y se elimina")
}

func TestConstruirDocumento_FSEUsaSujetoExcluido(t *testing.T) {
	p := parametrosPrueba(dte.TipoSujetoExcluido)
	p.Receptor.TipoDocumento = ""

	doc, err := dte.ConstruirDocumento(p)
	require.NoError(t, err)

	require.NotNil(t, doc.SujetoExcluido)
	assert.Nil(t, doc.Receptor, "FSE sustituye receptor por sujetoExcluido")
	assert.Equal(t, "13", doc.SujetoExcluido.TipoDocumento, "DUI por defecto en FSE")
}

func TestConstruirDocumento_CCFForzaNITReceptor(t *testing.T) {
	p := parametrosPrueba(dte.TipoCreditoFiscal)
	p.Receptor.TipoDocumento = "13" // el caller manda DUI

	doc, err := dte.ConstruirDocumento(p)
	require.NoError(t, err)
	assert.Equal(t, "36", doc.Receptor.TipoDocumento,
		"en CCF el receptor se identifica siempre por NIT")
	require.NotNil(t, doc.Receptor.NRC)
}

// ── Validaciones por tipo ─────────────────────────────────────────────────────

func TestConstruirDocumento_NCSinDocRelacionado(t *testing.T) {
	_, err := dte.ConstruirDocumento(parametrosPrueba(dte.TipoNotaCredito))
	assert.ErrorIs(t, err, domain.ErrDocRelacionadoFaltante)
}

func TestConstruirDocumento_NCConDocRelacionado(t *testing.T) {
	p := parametrosPrueba(dte.TipoNotaCredito)
	p.DocRelacionado = &dte.DocumentoRelacionado{
		TipoDocumento:   dte.TipoCreditoFiscal,
		TipoGeneracion:  2,
		NumeroDocumento: "A1B2C3D4-0000-4000-8000-000000000099",
		FechaEmision:    "2026-03-01",
	}

	doc, err := dte.ConstruirDocumento(p)
	require.NoError(t, err)
	require.Len(t, doc.DocumentoRelacionado, 1)
	assert.Equal(t, "03", doc.DocumentoRelacionado[0].TipoDocumento)
}

func TestConstruirDocumento_CCFSinNRC(t *testing.T) {
	p := parametrosPrueba(dte.TipoCreditoFiscal)
	p.Receptor.NRC = "  "
	_, err := dte.ConstruirDocumento(p)
	assert.ErrorIs(t, err, domain.ErrNRCRequerido)
}

func TestConstruirDocumento_SinReceptor(t *testing.T) {
	p := parametrosPrueba(dte.TipoFactura)
	p.Receptor = nil
	_, err := dte.ConstruirDocumento(p)
	assert.ErrorIs(t, err, domain.ErrReceptorRequerido)

	p = parametrosPrueba(dte.TipoSujetoExcluido)
	p.Receptor = nil
	_, err = dte.ConstruirDocumento(p)
	assert.ErrorIs(t, err, domain.ErrSujetoExcluidoRequerido)
}

func TestConstruirDocumento_SinLineas(t *testing.T) {
	p := parametrosPrueba(dte.TipoFactura)
	p.Items = nil
	_, err := dte.ConstruirDocumento(p)
	assert.ErrorIs(t, err, domain.ErrSinLineas)
}

func TestConstruirDocumento_TipoDesconocido(t *testing.T) {
	p := parametrosPrueba("42")
	_, err := dte.ConstruirDocumento(p)
	assert.ErrorIs(t, err, domain.ErrTipoDTEDesconocido)
}

func TestConstruirDocumento_PropagaErrorDeLinea(t *testing.T) {
	p := parametrosPrueba(dte.TipoFactura)
	p.Items = append(p.Items, dte.ItemFactura{
		Descripcion:    "línea rota",
		Cantidad:       decimal.Zero,
		PrecioUnitario: decimal.NewFromFloat(10),
	})
	_, err := dte.ConstruirDocumento(p)
	assert.True(t, domain.EsErrorLinea(err))
}

// ── Normalización ─────────────────────────────────────────────────────────────

func TestNormalizar(t *testing.T) {
	assert.Equal(t, "JOSE MARIA AVILA", dte.Normalizar("  José María Ávila "))
	assert.Equal(t, "CANAS", dte.Normalizar("cañas"))
	assert.Equal(t, "SIN CAMBIOS", dte.Normalizar("SIN CAMBIOS"))
}
