package transmision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturasv/dte-api/internal/domain"
	"github.com/facturasv/dte-api/internal/domain/dte"
	"github.com/facturasv/dte-api/internal/domain/entity"
	"github.com/facturasv/dte-api/internal/domain/repository"
	"github.com/facturasv/dte-api/pkg/logger"
	"github.com/facturasv/dte-api/pkg/metrics"
	"github.com/facturasv/dte-api/pkg/resilience"
)

// Tests internos (no _test package) para inyectar relojes y fakes.

// metPrueba se construye una sola vez: promauto registra en el registry
// global y un segundo New del mismo contador haría panic.
var metPrueba = metrics.New()

// ── Fakes ─────────────────────────────────────────────────────────────────────

type repoDTEFake struct {
	registros map[string]*entity.DTE // por ID
	ahora     func() time.Time
}

func newRepoDTEFake() *repoDTEFake {
	return &repoDTEFake{registros: map[string]*entity.DTE{}, ahora: time.Now}
}

func (r *repoDTEFake) Crear(_ context.Context, d *entity.DTE) error {
	if d.ID == "" {
		d.ID = fmt.Sprintf("id-%d", len(r.registros)+1)
	}
	copia := *d
	r.registros[d.ID] = &copia
	return nil
}

func (r *repoDTEFake) ActualizarEstado(_ context.Context, id string, cambio repository.ActualizacionEstado) error {
	d, ok := r.registros[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Estado = cambio.Estado
	if cambio.SelloRecibido != nil {
		d.SelloRecibido = *cambio.SelloRecibido
	}
	if cambio.FechaProcesamiento != nil {
		d.FechaProcesamiento = *cambio.FechaProcesamiento
	}
	if cambio.Observaciones != nil {
		d.Observaciones = *cambio.Observaciones
	}
	if cambio.ConObservaciones != nil {
		d.ConObservaciones = *cambio.ConObservaciones
	}
	if cambio.JSONFirmado != nil {
		d.JSONFirmado = *cambio.JSONFirmado
	}
	if cambio.ErrorLog != nil {
		d.ErrorLog = *cambio.ErrorLog
	}
	if cambio.IncrementarIntento {
		d.Intentos++
	}
	d.UpdatedAt = r.ahora()
	return nil
}

func (r *repoDTEFake) BuscarPorCodigoGeneracion(_ context.Context, codigo string) (*entity.DTE, error) {
	for _, d := range r.registros {
		if d.CodigoGeneracion == codigo {
			copia := *d
			return &copia, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *repoDTEFake) BuscarPorNumeroControl(_ context.Context, numero string) (*entity.DTE, error) {
	for _, d := range r.registros {
		if d.NumeroControl == numero {
			copia := *d
			return &copia, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *repoDTEFake) Listar(_ context.Context, _ repository.FiltroDTE) ([]*entity.DTE, int64, error) {
	return nil, 0, nil
}

func (r *repoDTEFake) PendientesReintento(_ context.Context, maxIntentos, limite int) ([]*entity.DTE, error) {
	var out []*entity.DTE
	for _, d := range r.registros {
		if d.Estado == entity.EstadoError && d.Intentos < maxIntentos {
			copia := *d
			out = append(out, &copia)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limite {
		out = out[:limite]
	}
	return out, nil
}

func (r *repoDTEFake) Estadisticas(_ context.Context, _ string, _ time.Time) ([]repository.EstadisticaDTE, error) {
	return nil, nil
}

// unico devuelve el único registro del repo (helper de asserts).
func (r *repoDTEFake) unico(t *testing.T) *entity.DTE {
	t.Helper()
	require.Len(t, r.registros, 1)
	for _, d := range r.registros {
		return d
	}
	return nil
}

type repoEmisorFake struct {
	emisor      *entity.Emisor
	correlativo int64
}

func (r *repoEmisorFake) ObtenerPorID(_ context.Context, id string) (*entity.Emisor, error) {
	if r.emisor == nil || r.emisor.ID != id {
		return nil, domain.ErrEmisorNoEncontrado
	}
	copia := *r.emisor
	return &copia, nil
}

func (r *repoEmisorFake) ObtenerPorNIT(_ context.Context, nit string) (*entity.Emisor, error) {
	if r.emisor == nil || r.emisor.NIT != nit {
		return nil, domain.ErrEmisorNoEncontrado
	}
	copia := *r.emisor
	return &copia, nil
}

func (r *repoEmisorFake) SiguienteCorrelativo(_ context.Context, _ string) (int64, error) {
	r.correlativo++
	return r.correlativo, nil
}

type firmadorFake struct {
	llamadas int
	err      error
}

func (f *firmadorFake) Firmar(_ context.Context, _ any, _, _ string) (string, error) {
	f.llamadas++
	if f.err != nil {
		return "", f.err
	}
	return "eyJhbGciOiJSUzUxMiJ9.firmado.sig", nil
}

type autenticadorFake struct {
	err error
}

func (a *autenticadorFake) Autenticar(_ context.Context, _, _ string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return "Bearer token-prueba", nil
}

func (a *autenticadorFake) Invalidar(string) {}

type transmisorFake struct {
	envios      []EnvioDTE
	resultado   *ResultadoMH
	err         error
	anulaciones int
	errAnular   error
}

func (tr *transmisorFake) Enviar(_ context.Context, envio EnvioDTE) (*ResultadoMH, error) {
	tr.envios = append(tr.envios, envio)
	if tr.err != nil {
		return nil, tr.err
	}
	return tr.resultado, nil
}

func (tr *transmisorFake) ConsultarEstado(_ context.Context, codigo, _ string) (*ResultadoMH, error) {
	return &ResultadoMH{Estado: EstadoMHProcesado, CodigoGeneracion: codigo, SelloRecibido: "SELLO-CONSULTA"}, nil
}

func (tr *transmisorFake) Anular(_ context.Context, _, _, _ string) (*ResultadoMH, error) {
	tr.anulaciones++
	if tr.errAnular != nil {
		return nil, tr.errAnular
	}
	return &ResultadoMH{Estado: EstadoMHProcesado, SelloRecibido: "SELLO-ANULACION"}, nil
}

type genFijo struct{}

func (genFijo) CodigoGeneracion() string { return "AAAAAAAA-BBBB-4CCC-8DDD-EEEEEEEEEEEE" }
func (genFijo) NumeroControl(tipoDte, estable string, correlativo int64) string {
	return fmt.Sprintf("DTE-%s-%s-%015d", tipoDte, estable, correlativo)
}

// ── Arnés ─────────────────────────────────────────────────────────────────────

type arnes struct {
	repo       *repoDTEFake
	emisores   *repoEmisorFake
	firmador   *firmadorFake
	auth       *autenticadorFake
	transmisor *transmisorFake
	breaker    *resilience.Breaker
	orq        *Orquestador
}

func nuevoArnes() *arnes {
	a := &arnes{
		repo: newRepoDTEFake(),
		emisores: &repoEmisorFake{emisor: &entity.Emisor{
			ID:             "emisor-1",
			TenantID:       "tenant-1",
			NIT:            "06141234567890",
			NRC:            "123456",
			Nombre:         "Comercial de Prueba",
			CodActividad:   "47190",
			DescActividad:  "Comercio",
			Ambiente:       "00",
			MHClavePrivada: "clave-firmador",
			MHClaveAPI:     "clave-api",
			Activo:         true,
		}},
		firmador:   &firmadorFake{},
		auth:       &autenticadorFake{},
		transmisor: &transmisorFake{resultado: &ResultadoMH{Estado: EstadoMHProcesado, SelloRecibido: "SELLO123", FechaProcesamiento: "2026-03-15 10:30:05"}},
		breaker: resilience.New("mh", resilience.Config{
			UmbralFallos: 100, TiempoRecuperacion: time.Second, VentanaFallos: time.Minute,
		}),
	}
	a.orq = NewOrquestador(
		a.repo, a.emisores,
		a.firmador, a.auth, a.transmisor,
		a.breaker, genFijo{}, logger.Nop(), metPrueba,
	)
	return a
}

func solicitudPrueba() Solicitud {
	return Solicitud{
		TenantID: "tenant-1",
		EmisorID: "emisor-1",
		TipoDte:  dte.TipoFactura,
		Receptor: &dte.ReceptorInput{
			NumDocumento: "06140987654321",
			Nombre:       "Cliente de Prueba",
			Correo:       "cliente@example.com",
		},
		Items: []dte.ItemFactura{{
			Descripcion:    "Servicio",
			Cantidad:       decimal.NewFromInt(1),
			PrecioUnitario: decimal.NewFromFloat(113.00),
		}},
	}
}

// ── ProcesarDocumento ─────────────────────────────────────────────────────────

func TestProcesarDocumento_FlujoCompleto(t *testing.T) {
	a := nuevoArnes()

	resultado, err := a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err)

	assert.True(t, resultado.Aceptado)
	assert.False(t, resultado.ConObservaciones)
	assert.Equal(t, entity.EstadoProcesado, resultado.Estado)
	assert.Equal(t, "SELLO123", resultado.SelloRecibido)
	assert.Equal(t, "AAAAAAAA-BBBB-4CCC-8DDD-EEEEEEEEEEEE", resultado.CodigoGeneracion)
	assert.Equal(t, "DTE-01-M001P001-000000000000001", resultado.NumeroControl)

	registro := a.repo.unico(t)
	assert.Equal(t, entity.EstadoProcesado, registro.Estado)
	assert.Equal(t, 0, registro.Intentos, "el flujo exitoso no consume intentos")
	assert.NotEmpty(t, registro.JSONOriginal)
	assert.NotEmpty(t, registro.JSONFirmado)

	require.Len(t, a.transmisor.envios, 1)
	envio := a.transmisor.envios[0]
	assert.Equal(t, "00", envio.Ambiente)
	assert.Equal(t, "01", envio.TipoDte)
	assert.Equal(t, "Bearer token-prueba", envio.Token)
}

func TestProcesarDocumento_ProcesadoConObservaciones(t *testing.T) {
	a := nuevoArnes()
	a.transmisor.resultado = &ResultadoMH{
		Estado:        EstadoMHProcesado,
		SelloRecibido: "SELLO456",
		Observaciones: []string{"receptor no registrado en el padrón"},
	}

	resultado, err := a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err)

	assert.True(t, resultado.Aceptado, "con observaciones sigue siendo aceptación técnica")
	assert.True(t, resultado.ConObservaciones, "las observaciones jamás se tragan en silencio")
	assert.Contains(t, resultado.Observaciones, "receptor no registrado en el padrón")

	registro := a.repo.unico(t)
	assert.Equal(t, entity.EstadoProcesado, registro.Estado)
	assert.True(t, registro.ConObservaciones)
}

func TestProcesarDocumento_RechazoDeclaradoEsTerminal(t *testing.T) {
	a := nuevoArnes()
	a.transmisor.resultado = &ResultadoMH{
		Estado:        EstadoMHRechazado,
		Observaciones: []string{"numeroControl duplicado"},
		Crudo:         `{"estado":"RECHAZADO"}`,
	}

	resultado, err := a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err)

	assert.False(t, resultado.Aceptado)
	assert.Equal(t, entity.EstadoRechazado, resultado.Estado)

	registro := a.repo.unico(t)
	assert.Equal(t, entity.EstadoRechazado, registro.Estado)
	assert.Equal(t, 0, registro.Intentos, "un rechazo declarado no es fallo transitorio: no consume intentos")
	assert.Equal(t, `{"estado":"RECHAZADO"}`, registro.ErrorLog, "el payload del MH se preserva verbatim")
}

func TestProcesarDocumento_FalloDeFirmaNoConsumeIntento(t *testing.T) {
	a := nuevoArnes()
	a.firmador.err = errors.New("firmador no disponible")

	resultado, err := a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err)
	assert.Equal(t, entity.EstadoError, resultado.Estado)

	registro := a.repo.unico(t)
	assert.Equal(t, entity.EstadoError, registro.Estado)
	assert.Equal(t, 0, registro.Intentos,
		"el fallo de firma en el primer intento no consume reintento: nada llegó al MH")
	assert.Contains(t, registro.ErrorLog, "firma")
	assert.Empty(t, a.transmisor.envios, "sin firma no hay envío")
}

func TestProcesarDocumento_FalloDeEnvioConsumeIntento(t *testing.T) {
	a := nuevoArnes()
	a.transmisor.err = errors.New("timeout de red")

	resultado, err := a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err)
	assert.Equal(t, entity.EstadoError, resultado.Estado)

	registro := a.repo.unico(t)
	assert.Equal(t, 1, registro.Intentos, "un fallo de red tras el envío sí consume intento")
	assert.Contains(t, registro.ErrorLog, "envio")
}

func TestProcesarDocumento_FalloDeAutenticacionConsumeIntento(t *testing.T) {
	a := nuevoArnes()
	a.auth.err = errors.New("credenciales rechazadas")

	resultado, err := a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err)
	assert.Equal(t, entity.EstadoError, resultado.Estado)

	registro := a.repo.unico(t)
	assert.Equal(t, 1, registro.Intentos)
	assert.Empty(t, a.transmisor.envios)
}

func TestProcesarDocumento_CircuitoAbiertoFallaRapido(t *testing.T) {
	a := nuevoArnes()
	// Breaker con umbral 1: el primer fallo de envío lo abre
	a.breaker = resilience.New("mh", resilience.Config{
		UmbralFallos: 1, TiempoRecuperacion: time.Minute, VentanaFallos: time.Minute,
	})
	a.orq.breakerMH = a.breaker
	a.transmisor.err = errors.New("MH caído")

	_, err := a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err, "el primer fallo es transitorio normal")

	// Segunda emisión: el breaker rechaza sin tocar el MH
	_, err = a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitoAbierto)
	assert.Len(t, a.transmisor.envios, 1, "con el circuito abierto el MH no se toca")
}

func TestProcesarDocumento_ErrorDeConstruccionNoPersiste(t *testing.T) {
	a := nuevoArnes()
	sol := solicitudPrueba()
	sol.TipoDte = "99"

	_, err := a.orq.ProcesarDocumento(context.Background(), sol)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTipoDTEDesconocido)
	assert.Empty(t, a.repo.registros, "los errores del caller no dejan registro")
}

func TestProcesarDocumento_EmisorInexistente(t *testing.T) {
	a := nuevoArnes()
	sol := solicitudPrueba()
	sol.EmisorID = "no-existe"

	_, err := a.orq.ProcesarDocumento(context.Background(), sol)
	assert.ErrorIs(t, err, domain.ErrEmisorNoEncontrado)
}

// ── Reprocesar ────────────────────────────────────────────────────────────────

func TestReprocesar_RefirmaDesdeElOriginal(t *testing.T) {
	a := nuevoArnes()
	a.transmisor.err = errors.New("timeout")
	_, err := a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err)
	require.Equal(t, 1, a.firmador.llamadas)

	// El MH se recupera; el reproceso vuelve a firmar con credenciales vigentes
	a.transmisor.err = nil
	registro := a.repo.unico(t)
	resultado, err := a.orq.Reprocesar(context.Background(), registro)
	require.NoError(t, err)

	assert.Equal(t, entity.EstadoProcesado, resultado.Estado)
	assert.Equal(t, 2, a.firmador.llamadas, "cada reproceso firma de nuevo desde el JSON original")
	assert.Equal(t, entity.EstadoProcesado, a.repo.unico(t).Estado)
}

func TestReprocesar_FalloDeFirmaSiConsumeIntento(t *testing.T) {
	a := nuevoArnes()
	a.transmisor.err = errors.New("timeout")
	_, err := a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err)
	require.Equal(t, 1, a.repo.unico(t).Intentos)

	a.firmador.err = errors.New("firmador caído")
	registro := a.repo.unico(t)
	_, err = a.orq.Reprocesar(context.Background(), registro)
	require.NoError(t, err)

	assert.Equal(t, 2, a.repo.unico(t).Intentos,
		"en la vía de reintento el fallo de firma sí consume intento")
}

// ── ConsultarEstado ───────────────────────────────────────────────────────────

func TestConsultarEstado(t *testing.T) {
	a := nuevoArnes()
	_, err := a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err)

	resultado, err := a.orq.ConsultarEstado(context.Background(), "AAAAAAAA-BBBB-4CCC-8DDD-EEEEEEEEEEEE")
	require.NoError(t, err)
	assert.Equal(t, "SELLO-CONSULTA", resultado.SelloRecibido)
}

func TestConsultarEstado_DTEInexistente(t *testing.T) {
	a := nuevoArnes()
	_, err := a.orq.ConsultarEstado(context.Background(), "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ── Anular ────────────────────────────────────────────────────────────────────

func TestAnular_DTEProcesado(t *testing.T) {
	a := nuevoArnes()
	_, err := a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err)

	resultado, err := a.orq.Anular(context.Background(), SolicitudAnulacion{
		CodigoGeneracion: "AAAAAAAA-BBBB-4CCC-8DDD-EEEEEEEEEEEE",
		Motivo:           "error en los datos del receptor",
	})
	require.NoError(t, err)

	assert.True(t, resultado.Aceptado())
	assert.Equal(t, 1, a.transmisor.anulaciones)
	assert.Equal(t, 2, a.firmador.llamadas, "el evento de anulación se firma aparte")
	assert.Equal(t, entity.EstadoAnulado, a.repo.unico(t).Estado)
}

func TestAnular_SoloProcesadosSonAnulables(t *testing.T) {
	a := nuevoArnes()
	a.transmisor.err = errors.New("timeout")
	_, err := a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err)
	require.Equal(t, entity.EstadoError, a.repo.unico(t).Estado)

	_, err = a.orq.Anular(context.Background(), SolicitudAnulacion{
		CodigoGeneracion: "AAAAAAAA-BBBB-4CCC-8DDD-EEEEEEEEEEEE",
		Motivo:           "no debería llegar al MH",
	})
	assert.ErrorIs(t, err, domain.ErrDTENoAnulable)
	assert.Zero(t, a.transmisor.anulaciones)
}

func TestAnular_RechazoDelMHNoCambiaEstado(t *testing.T) {
	a := nuevoArnes()
	_, err := a.orq.ProcesarDocumento(context.Background(), solicitudPrueba())
	require.NoError(t, err)

	// El MH declara el rechazo de la anulación: el registro sigue PROCESADO
	a.orq.transmisor = &transmisorAnulaRechaza{transmisorFake: a.transmisor}
	resultado, err := a.orq.Anular(context.Background(), SolicitudAnulacion{
		CodigoGeneracion: "AAAAAAAA-BBBB-4CCC-8DDD-EEEEEEEEEEEE",
		Motivo:           "motivo cualquiera",
	})
	require.NoError(t, err)

	assert.False(t, resultado.Aceptado())
	assert.Equal(t, entity.EstadoProcesado, a.repo.unico(t).Estado,
		"una anulación rechazada no toca el estado del DTE")
}

type transmisorAnulaRechaza struct{ *transmisorFake }

func (tr *transmisorAnulaRechaza) Anular(_ context.Context, _, _, _ string) (*ResultadoMH, error) {
	return &ResultadoMH{Estado: EstadoMHRechazado, Observaciones: []string{"fuera de plazo"}}, nil
}
