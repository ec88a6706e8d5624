package dte_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturasv/dte-api/internal/domain"
	"github.com/facturasv/dte-api/internal/domain/dte"
)

func TestLookup_TiposConocidos(t *testing.T) {
	fe, err := dte.Lookup(dte.TipoFactura)
	require.NoError(t, err)
	assert.True(t, fe.PrecioIncluyeIVA, "FE es el único tipo con precio-incluye-IVA")
	assert.Equal(t, 1, fe.Version)

	ccf, err := dte.Lookup(dte.TipoCreditoFiscal)
	require.NoError(t, err)
	assert.True(t, ccf.UsaTributos)
	assert.True(t, ccf.RequiereNRCReceptor, "CCF exige NRC del receptor")
	assert.Equal(t, 3, ccf.Version)

	nc, err := dte.Lookup(dte.TipoNotaCredito)
	require.NoError(t, err)
	assert.True(t, nc.RequiereDocRelacionado, "NC referencia al documento original")

	fse, err := dte.Lookup(dte.TipoSujetoExcluido)
	require.NoError(t, err)
	assert.True(t, fse.AplicaRetencion(), "FSE retiene renta")
	assert.Equal(t, "0.1", fse.TasaRetencion.String())
	assert.True(t, fse.UsaSujetoExcluido)

	fex, err := dte.Lookup(dte.TipoExportacion)
	require.NoError(t, err)
	assert.True(t, fex.EsExportacion)
}

func TestLookup_TipoDesconocido(t *testing.T) {
	_, err := dte.Lookup("99")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTipoDTEDesconocido,
		"un código desconocido jamás se defaultea en silencio")
}

func TestListar_OrdenadoPorCodigo(t *testing.T) {
	tipos := dte.Listar()
	require.Len(t, tipos, 8)
	assert.Equal(t, dte.TipoFactura, tipos[0].Codigo)
	assert.Equal(t, dte.TipoDonacion, tipos[len(tipos)-1].Codigo)
}

func TestTributosCuerpo(t *testing.T) {
	ccf, _ := dte.Lookup(dte.TipoCreditoFiscal)
	fe, _ := dte.Lookup(dte.TipoFactura)

	assert.Equal(t, []string{dte.CodigoIVA}, dte.TributosCuerpo(ccf))
	assert.Nil(t, dte.TributosCuerpo(fe), "FE no emite array de tributos")
}
