package cifrado_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturasv/dte-api/internal/infrastructure/cifrado"
)

func TestCifrador_IdaYVuelta(t *testing.T) {
	c, err := cifrado.NewCifrador("secreto-maestro-de-prueba")
	require.NoError(t, err)

	blob, err := c.Cifrar("clave-api-del-emisor")
	require.NoError(t, err)
	assert.NotContains(t, blob, "clave-api-del-emisor")

	claro, err := c.Descifrar(blob)
	require.NoError(t, err)
	assert.Equal(t, "clave-api-del-emisor", claro)
}

func TestCifrador_SaltAleatorioPorOperacion(t *testing.T) {
	c, err := cifrado.NewCifrador("secreto-maestro-de-prueba")
	require.NoError(t, err)

	a, err := c.Cifrar("misma-clave")
	require.NoError(t, err)
	b, err := c.Cifrar("misma-clave")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "el mismo texto cifra distinto cada vez (salt y nonce aleatorios)")
}

func TestCifrador_SecretoIncorrectoNoDescifra(t *testing.T) {
	c1, err := cifrado.NewCifrador("secreto-correcto")
	require.NoError(t, err)
	c2, err := cifrado.NewCifrador("secreto-equivocado")
	require.NoError(t, err)

	blob, err := c1.Cifrar("clave-api")
	require.NoError(t, err)

	_, err = c2.Descifrar(blob)
	assert.Error(t, err, "GCM autentica: otro secreto jamás produce texto claro")
}

func TestCifrador_BlobManipulado(t *testing.T) {
	c, err := cifrado.NewCifrador("secreto-maestro-de-prueba")
	require.NoError(t, err)

	_, err = c.Descifrar("no-es-base64-válido!!!")
	assert.Error(t, err)

	_, err = c.Descifrar("Y29ydG8=") // base64 válido pero más corto que salt+nonce
	assert.ErrorIs(t, err, cifrado.ErrTextoCifradoInvalido)
}

func TestNewCifrador_SecretoVacio(t *testing.T) {
	_, err := cifrado.NewCifrador("")
	assert.Error(t, err, "sin secreto maestro no hay cifrado de credenciales")
}
