package transmision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturasv/dte-api/internal/domain/entity"
	"github.com/facturasv/dte-api/pkg/config"
	"github.com/facturasv/dte-api/pkg/logger"
	"github.com/facturasv/dte-api/pkg/resilience"
)

func configReintentosPrueba() config.ReintentosConfig {
	return config.ReintentosConfig{
		MaxIntentos: 3,
		DelayBase:   5 * time.Second,
		Factor:      2,
		Intervalo:   5 * time.Minute,
		TamanoLote:  10,
	}
}

// colaPrueba arma el arnés del orquestador más la cola, con reloj inyectado.
func colaPrueba(a *arnes, reloj *time.Time) *ColaReintentos {
	c := NewColaReintentos(a.repo, a.orq, configReintentosPrueba(), logger.Nop(), metPrueba)
	c.ahora = func() time.Time { return *reloj }
	a.repo.ahora = func() time.Time { return *reloj }
	return c
}

// dejarEnError emite un documento con el MH caído para dejar un registro
// en ERROR con un intento consumido.
func dejarEnError(t *testing.T, a *arnes) *entity.DTE {
	t.Helper()
	a.transmisor.err = errors.New("timeout de red")
	_, err := a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err)
	registro := a.repo.unico(t)
	require.Equal(t, entity.EstadoError, registro.Estado)
	require.Equal(t, 1, registro.Intentos)
	return registro
}

func TestBarrido_ReintentaYProcesa(t *testing.T) {
	a := nuevoArnes()
	reloj := time.Now()
	cola := colaPrueba(a, &reloj)
	dejarEnError(t, a)

	// El MH se recupera; el backoff del intento 1 (5s * 2^1 = 10s) venció
	a.transmisor.err = nil
	reloj = reloj.Add(11 * time.Second)

	procesados := cola.EjecutarBarrido(context.Background())
	assert.Equal(t, 1, procesados)
	assert.Equal(t, entity.EstadoProcesado, a.repo.unico(t).Estado)
}

func TestBarrido_RespetaBackoffExponencial(t *testing.T) {
	a := nuevoArnes()
	reloj := time.Now()
	cola := colaPrueba(a, &reloj)
	dejarEnError(t, a)
	a.transmisor.err = nil

	// A los 8s el delay de 10s aún no vence: el registro se salta
	reloj = reloj.Add(8 * time.Second)
	procesados := cola.EjecutarBarrido(context.Background())
	assert.Equal(t, 0, procesados, "el backoff del intento 1 es 10s, a los 8s no toca")
	assert.Equal(t, entity.EstadoError, a.repo.unico(t).Estado)

	reloj = reloj.Add(3 * time.Second)
	procesados = cola.EjecutarBarrido(context.Background())
	assert.Equal(t, 1, procesados)
}

func TestBarrido_SinPendientesNoHaceNada(t *testing.T) {
	a := nuevoArnes()
	reloj := time.Now()
	cola := colaPrueba(a, &reloj)

	assert.Zero(t, cola.EjecutarBarrido(context.Background()))
}

func TestBarrido_AgotamientoMarcaRechazadoFinal(t *testing.T) {
	a := nuevoArnes()
	reloj := time.Now()
	cola := colaPrueba(a, &reloj)
	dejarEnError(t, a) // intento 1; el MH sigue caído

	// Dos barridos más agotan los 3 intentos (el reloj salta cada backoff)
	reloj = reloj.Add(time.Minute)
	require.Equal(t, 1, cola.EjecutarBarrido(context.Background()))
	require.Equal(t, 2, a.repo.unico(t).Intentos)

	reloj = reloj.Add(time.Minute)
	require.Equal(t, 1, cola.EjecutarBarrido(context.Background()))

	registro := a.repo.unico(t)
	assert.Equal(t, entity.EstadoRechazadoFinal, registro.Estado,
		"al agotar MaxIntentos el registro sale de la cola para siempre")
	assert.Equal(t, 3, registro.Intentos)

	// Barridos posteriores ya no lo tocan
	reloj = reloj.Add(time.Hour)
	assert.Zero(t, cola.EjecutarBarrido(context.Background()))
}

func TestBarrido_ExitoTardioNoMarcaFinal(t *testing.T) {
	a := nuevoArnes()
	reloj := time.Now()
	cola := colaPrueba(a, &reloj)
	dejarEnError(t, a)

	// Falla el segundo intento, el tercero entra justo antes del agotamiento
	reloj = reloj.Add(time.Minute)
	require.Equal(t, 1, cola.EjecutarBarrido(context.Background()))

	a.transmisor.err = nil
	reloj = reloj.Add(time.Minute)
	require.Equal(t, 1, cola.EjecutarBarrido(context.Background()))

	assert.Equal(t, entity.EstadoProcesado, a.repo.unico(t).Estado,
		"el último intento exitoso gana: no hay RECHAZADO_FINAL")
}

func TestBarrido_UnSoloBarridoALaVez(t *testing.T) {
	a := nuevoArnes()
	reloj := time.Now()
	cola := colaPrueba(a, &reloj)
	dejarEnError(t, a)
	reloj = reloj.Add(time.Minute)

	cola.mu.Lock()
	cola.enCurso = true
	cola.mu.Unlock()

	assert.Zero(t, cola.EjecutarBarrido(context.Background()),
		"con un barrido en curso el siguiente se omite")

	cola.mu.Lock()
	cola.enCurso = false
	cola.mu.Unlock()
	assert.Equal(t, 1, cola.EjecutarBarrido(context.Background()))
}

func TestBarrido_CircuitoAbiertoInterrumpeElLote(t *testing.T) {
	a := nuevoArnes()
	reloj := time.Now()
	cola := colaPrueba(a, &reloj)

	// Dos registros en ERROR
	a.transmisor.err = errors.New("timeout de red")
	_, err := a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err)
	_, err = a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err)

	// Se fuerza el circuito a abierto: el primer reintento del lote recibe
	// ErrCircuitoAbierto y corta el barrido sin tocar el segundo
	a.orq.breakerMH = resilience.New("mh", resilience.Config{
		UmbralFallos: 1, TiempoRecuperacion: time.Minute, VentanaFallos: time.Minute,
	})
	require.Error(t, a.orq.breakerMH.Ejecutar(func() error { return errors.New("fallo") }))

	reloj = reloj.Add(time.Hour)
	enviosAntes := len(a.transmisor.envios)
	procesados := cola.EjecutarBarrido(context.Background())

	assert.Zero(t, procesados, "el lote se corta al detectar el circuito abierto")
	assert.Len(t, a.transmisor.envios, enviosAntes, "ningún envío llegó al MH")
}

func TestBarrido_ContextoCanceladoCortaElLote(t *testing.T) {
	a := nuevoArnes()
	reloj := time.Now()
	cola := colaPrueba(a, &reloj)
	dejarEnError(t, a)
	reloj = reloj.Add(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, cola.EjecutarBarrido(ctx))
}

func TestColaReintentos_DetenerEsIdempotente(t *testing.T) {
	a := nuevoArnes()
	reloj := time.Now()
	cola := colaPrueba(a, &reloj)

	cola.Detener()
	assert.NotPanics(t, func() { cola.Detener() })
}
