package transmision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/facturasv/dte-api/internal/domain"
	"github.com/facturasv/dte-api/internal/domain/dte"
	"github.com/facturasv/dte-api/internal/domain/entity"
	"github.com/facturasv/dte-api/internal/domain/repository"
	"github.com/facturasv/dte-api/pkg/logger"
	"github.com/facturasv/dte-api/pkg/metrics"
	"github.com/facturasv/dte-api/pkg/resilience"
)

// Orquestador secuencia el ciclo completo de transmisión de un DTE:
//
//	Construir → Firmar (JWS) → Autenticar → Enviar al MH → Interpretar → Update DB
//
// Estados del registro: CREADO → FIRMADO → ENVIADO → {PROCESADO | RECHAZADO},
// con ERROR ante fallos transitorios y RECHAZADO_FINAL al agotar reintentos
// (este último lo marca la cola de reintentos, único driver que re-procesa
// registros en ERROR).
//
// El envío al MH pasa por el circuit breaker: caídas sostenidas del MH
// fallan rápido con ErrCircuitoAbierto en lugar de acumular timeouts.
type Orquestador struct {
	dteRepo      repository.DTERepository
	emisorRepo   repository.EmisorRepository
	firmador     Firmador
	autenticador AutenticadorMH
	transmisor   TransmisorMH
	breakerMH    *resilience.Breaker
	gen          dte.GeneradorIdentificadores
	log          *logger.Logger
	met          *metrics.Metrics
	ahora        func() time.Time
}

// NewOrquestador construye el orquestador con todas sus dependencias.
func NewOrquestador(
	dteRepo repository.DTERepository,
	emisorRepo repository.EmisorRepository,
	firmador Firmador,
	autenticador AutenticadorMH,
	transmisor TransmisorMH,
	breakerMH *resilience.Breaker,
	gen dte.GeneradorIdentificadores,
	log *logger.Logger,
	met *metrics.Metrics,
) *Orquestador {
	return &Orquestador{
		dteRepo:      dteRepo,
		emisorRepo:   emisorRepo,
		firmador:     firmador,
		autenticador: autenticador,
		transmisor:   transmisor,
		breakerMH:    breakerMH,
		gen:          gen,
		log:          log,
		met:          met,
		ahora:        time.Now,
	}
}

// Solicitud datos de emisión de un DTE tal como llegan del caller.
type Solicitud struct {
	TenantID           string
	EmisorID           string
	TipoDte            string
	Receptor           *dte.ReceptorInput
	DocRelacionado     *dte.DocumentoRelacionado
	Items              []dte.ItemFactura
	CondicionOperacion int
}

// Resultado desenlace de un procesamiento para el caller.
type Resultado struct {
	Aceptado         bool
	ConObservaciones bool
	Estado           string
	CodigoGeneracion string
	NumeroControl    string
	SelloRecibido    string
	Observaciones    []string
	Registro         *entity.DTE
}

// ProcesarDocumento emite un DTE completo: construye el documento canónico,
// lo persiste en CREADO y lo transmite. Los errores de construcción son del
// caller y se devuelven sin persistir registro alguno.
func (o *Orquestador) ProcesarDocumento(ctx context.Context, sol Solicitud) (*Resultado, error) {
	emisor, err := o.emisorRepo.ObtenerPorID(ctx, sol.EmisorID)
	if err != nil {
		return nil, fmt.Errorf("obtener emisor %s: %w", sol.EmisorID, err)
	}

	config, err := dte.Lookup(sol.TipoDte)
	if err != nil {
		return nil, err
	}

	correlativo, err := o.emisorRepo.SiguienteCorrelativo(ctx, emisor.ID)
	if err != nil {
		return nil, fmt.Errorf("asignar correlativo: %w", err)
	}

	codigoGeneracion := o.gen.CodigoGeneracion()
	numeroControl := o.gen.NumeroControl(sol.TipoDte, emisor.CodigoEstablecimiento(), correlativo)

	doc, err := dte.ConstruirDocumento(dte.ParametrosDocumento{
		TipoDte:            sol.TipoDte,
		Emisor:             emisor,
		Receptor:           sol.Receptor,
		DocRelacionado:     sol.DocRelacionado,
		Items:              sol.Items,
		CondicionOperacion: sol.CondicionOperacion,
		CodigoGeneracion:   codigoGeneracion,
		NumeroControl:      numeroControl,
		FechaEmision:       o.ahora(),
	})
	if err != nil {
		return nil, err
	}

	jsonOriginal, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serializar documento: %w", err)
	}

	registro := &entity.DTE{
		TenantID:         sol.TenantID,
		EmisorID:         emisor.ID,
		CodigoGeneracion: codigoGeneracion,
		NumeroControl:    numeroControl,
		TipoDte:          config.Codigo,
		Version:          config.Version,
		Ambiente:         emisor.Ambiente,
		FechaEmision:     o.ahora(),
		HoraEmision:      doc.Identificacion.HorEmi,
		ReceptorNombre:   nombreContraparte(doc),
		ReceptorNumDoc:   numDocContraparte(doc),
		TotalGravada:     doc.Resumen.TotalGravada,
		TotalIva:         doc.Resumen.TotalIva,
		TotalPagar:       doc.Resumen.TotalPagar,
		Estado:           entity.EstadoCreado,
		JSONOriginal:     string(jsonOriginal),
		CreatedAt:        o.ahora(),
		UpdatedAt:        o.ahora(),
	}
	if err := o.dteRepo.Crear(ctx, registro); err != nil {
		return nil, fmt.Errorf("persistir registro DTE: %w", err)
	}

	o.log.Info().
		Str("codigo_generacion", codigoGeneracion).
		Str("tipo_dte", config.Codigo).
		Str("tenant", sol.TenantID).
		Msg("documento DTE construido, iniciando transmisión")

	return o.transmitir(ctx, registro, emisor, doc, false)
}

// Reprocesar re-transmite un registro en ERROR desde la firma: se vuelve a
// firmar con las credenciales vigentes del emisor, ya que pudieron rotar
// desde el intento original.
func (o *Orquestador) Reprocesar(ctx context.Context, registro *entity.DTE) (*Resultado, error) {
	emisor, err := o.emisorRepo.ObtenerPorID(ctx, registro.EmisorID)
	if err != nil {
		return nil, fmt.Errorf("obtener emisor %s: %w", registro.EmisorID, err)
	}

	var doc dte.Documento
	if err := json.Unmarshal([]byte(registro.JSONOriginal), &doc); err != nil {
		return nil, fmt.Errorf("deserializar documento original: %w", err)
	}
	return o.transmitir(ctx, registro, emisor, &doc, true)
}

// transmitir ejecuta firma → autenticación → envío → interpretación para un
// registro ya persistido. esReintento controla el incremento de intentos en
// fallos de firma: un fallo de firma en el primer intento no consume
// reintento (nada llegó al MH), pero en la vía de reintento siempre cuenta.
func (o *Orquestador) transmitir(ctx context.Context, registro *entity.DTE, emisor *entity.Emisor, doc *dte.Documento, esReintento bool) (*Resultado, error) {
	markError := func(paso, detalle string, incrementar bool) {
		if err := o.dteRepo.ActualizarEstado(ctx, registro.ID, repository.ActualizacionEstado{
			Estado:             entity.EstadoError,
			ErrorLog:           ptr(paso + ": " + detalle),
			IncrementarIntento: incrementar,
		}); err != nil {
			o.log.Error().Err(err).Str("codigo_generacion", registro.CodigoGeneracion).
				Msg("no se pudo persistir estado ERROR")
		}
		o.met.DTEProcesados.WithLabelValues(entity.EstadoError, registro.TipoDte).Inc()
		o.log.Warn().Str("codigo_generacion", registro.CodigoGeneracion).
			Str("paso", paso).Str("detalle", detalle).Msg("transmisión DTE en ERROR")
	}

	// 1. Firma JWS
	firma, err := o.firmador.Firmar(ctx, doc, emisor.NIT, emisor.MHClavePrivada)
	if err != nil {
		markError("firma", err.Error(), esReintento)
		return o.resultadoActual(ctx, registro, entity.EstadoError), nil
	}
	if err := o.dteRepo.ActualizarEstado(ctx, registro.ID, repository.ActualizacionEstado{
		Estado:      entity.EstadoFirmado,
		JSONFirmado: &firma,
	}); err != nil {
		return nil, fmt.Errorf("persistir FIRMADO: %w", err)
	}

	// 2. Autenticación (token cacheado por NIT)
	token, err := o.autenticador.Autenticar(ctx, emisor.NIT, emisor.MHClaveAPI)
	if err != nil {
		markError("autenticacion", err.Error(), true)
		return o.resultadoActual(ctx, registro, entity.EstadoError), nil
	}

	// 3. Envío a través del circuit breaker. Se persiste ENVIADO antes de
	// la llamada: si el proceso muere con la request en vuelo, el registro
	// queda en ENVIADO y exige consulta de estado antes de reintentar
	// (evita doble emisión).
	if err := o.dteRepo.ActualizarEstado(ctx, registro.ID, repository.ActualizacionEstado{
		Estado: entity.EstadoEnviado,
	}); err != nil {
		return nil, fmt.Errorf("persistir ENVIADO: %w", err)
	}

	var resultado *ResultadoMH
	errEnvio := o.breakerMH.Ejecutar(func() error {
		var e error
		resultado, e = o.transmisor.Enviar(ctx, EnvioDTE{
			DocumentoFirmado: firma,
			Ambiente:         registro.Ambiente,
			TipoDte:          registro.TipoDte,
			Version:          registro.Version,
			CodigoGeneracion: registro.CodigoGeneracion,
			Token:            token,
		})
		return e
	})
	if errEnvio != nil {
		markError("envio", errEnvio.Error(), true)
		if errors.Is(errEnvio, resilience.ErrCircuitoAbierto) {
			// Fast-fail distinto del fallo transitorio: el caller debe
			// aplicar su propio backoff en lugar de encolar más carga.
			return nil, errEnvio
		}
		return o.resultadoActual(ctx, registro, entity.EstadoError), nil
	}

	// 4. Interpretación de la respuesta declarada por el MH
	return o.interpretar(ctx, registro, resultado)
}

func (o *Orquestador) interpretar(ctx context.Context, registro *entity.DTE, resultado *ResultadoMH) (*Resultado, error) {
	observaciones := strings.Join(resultado.Observaciones, "; ")

	if resultado.Aceptado() {
		conObs := resultado.ConObservaciones()
		cambio := repository.ActualizacionEstado{
			Estado:             entity.EstadoProcesado,
			SelloRecibido:      &resultado.SelloRecibido,
			FechaProcesamiento: &resultado.FechaProcesamiento,
			ConObservaciones:   &conObs,
		}
		if observaciones != "" {
			cambio.Observaciones = &observaciones
		}
		if err := o.dteRepo.ActualizarEstado(ctx, registro.ID, cambio); err != nil {
			return nil, fmt.Errorf("persistir PROCESADO: %w", err)
		}
		o.met.DTEProcesados.WithLabelValues(entity.EstadoProcesado, registro.TipoDte).Inc()
		o.log.Info().Str("codigo_generacion", registro.CodigoGeneracion).
			Str("sello", resultado.SelloRecibido).Bool("con_observaciones", conObs).
			Msg("DTE procesado por el MH")
		return o.resultadoActual(ctx, registro, entity.EstadoProcesado), nil
	}

	// Rechazo declarado: el documento es inválido para el MH. Terminal,
	// nunca se reintenta. Payload preservado verbatim para auditoría.
	cambio := repository.ActualizacionEstado{
		Estado:        entity.EstadoRechazado,
		Observaciones: &observaciones,
		ErrorLog:      &resultado.Crudo,
	}
	if err := o.dteRepo.ActualizarEstado(ctx, registro.ID, cambio); err != nil {
		return nil, fmt.Errorf("persistir RECHAZADO: %w", err)
	}
	o.met.DTEProcesados.WithLabelValues(entity.EstadoRechazado, registro.TipoDte).Inc()
	o.log.Warn().Str("codigo_generacion", registro.CodigoGeneracion).
		Str("observaciones", observaciones).Msg("DTE rechazado por el MH")
	return o.resultadoActual(ctx, registro, entity.EstadoRechazado), nil
}

// SolicitudAnulacion datos de invalidación de un DTE procesado.
type SolicitudAnulacion struct {
	CodigoGeneracion string
	Motivo           string
	TipoAnulacion    int // default: rescindir sin reemplazo
}

// Anular invalida ante el MH un DTE ya procesado: construye el evento de
// anulación, lo firma, lo envía y marca el registro como ANULADO si el MH
// lo acepta. La anulación no pasa por la cola de reintentos.
func (o *Orquestador) Anular(ctx context.Context, sol SolicitudAnulacion) (*ResultadoMH, error) {
	registro, err := o.dteRepo.BuscarPorCodigoGeneracion(ctx, sol.CodigoGeneracion)
	if err != nil {
		return nil, err
	}
	if registro.Estado != entity.EstadoProcesado {
		return nil, fmt.Errorf("%w: estado %s", domain.ErrDTENoAnulable, registro.Estado)
	}
	emisor, err := o.emisorRepo.ObtenerPorID(ctx, registro.EmisorID)
	if err != nil {
		return nil, fmt.Errorf("obtener emisor %s: %w", registro.EmisorID, err)
	}

	evento, err := dte.ConstruirAnulacion(dte.ParametrosAnulacion{
		Registro:         registro,
		Emisor:           emisor,
		Motivo:           sol.Motivo,
		TipoAnulacion:    sol.TipoAnulacion,
		CodigoGeneracion: o.gen.CodigoGeneracion(),
		FechaAnulacion:   o.ahora(),
	})
	if err != nil {
		return nil, err
	}

	firma, err := o.firmador.Firmar(ctx, evento, emisor.NIT, emisor.MHClavePrivada)
	if err != nil {
		return nil, fmt.Errorf("firmar anulación: %w", err)
	}
	token, err := o.autenticador.Autenticar(ctx, emisor.NIT, emisor.MHClaveAPI)
	if err != nil {
		return nil, fmt.Errorf("autenticar anulación: %w", err)
	}

	var resultado *ResultadoMH
	errEnvio := o.breakerMH.Ejecutar(func() error {
		var e error
		resultado, e = o.transmisor.Anular(ctx, firma, registro.Ambiente, token)
		return e
	})
	if errEnvio != nil {
		return nil, fmt.Errorf("enviar anulación: %w", errEnvio)
	}

	if resultado.Aceptado() {
		if err := o.dteRepo.ActualizarEstado(ctx, registro.ID, repository.ActualizacionEstado{
			Estado: entity.EstadoAnulado,
		}); err != nil {
			return nil, fmt.Errorf("persistir ANULADO: %w", err)
		}
		o.met.DTEProcesados.WithLabelValues(entity.EstadoAnulado, registro.TipoDte).Inc()
		o.log.Info().Str("codigo_generacion", registro.CodigoGeneracion).
			Msg("DTE anulado ante el MH")
	} else {
		o.log.Warn().Str("codigo_generacion", registro.CodigoGeneracion).
			Str("observaciones", strings.Join(resultado.Observaciones, "; ")).
			Msg("anulación rechazada por el MH")
	}
	return resultado, nil
}

// ConsultarEstado consulta el estado de un DTE ya enviado directamente al MH.
func (o *Orquestador) ConsultarEstado(ctx context.Context, codigoGeneracion string) (*ResultadoMH, error) {
	registro, err := o.dteRepo.BuscarPorCodigoGeneracion(ctx, codigoGeneracion)
	if err != nil {
		return nil, err
	}
	emisor, err := o.emisorRepo.ObtenerPorID(ctx, registro.EmisorID)
	if err != nil {
		return nil, err
	}
	token, err := o.autenticador.Autenticar(ctx, emisor.NIT, emisor.MHClaveAPI)
	if err != nil {
		return nil, err
	}
	return o.transmisor.ConsultarEstado(ctx, codigoGeneracion, token)
}

// resultadoActual arma el Resultado releyendo el registro actualizado; si la
// relectura falla se degrada al estado conocido sin abortar el flujo.
func (o *Orquestador) resultadoActual(ctx context.Context, registro *entity.DTE, estado string) *Resultado {
	actual, err := o.dteRepo.BuscarPorCodigoGeneracion(ctx, registro.CodigoGeneracion)
	if err != nil || actual == nil {
		actual = registro
		actual.Estado = estado
	}
	res := &Resultado{
		Aceptado:         actual.Estado == entity.EstadoProcesado,
		ConObservaciones: actual.ConObservaciones,
		Estado:           actual.Estado,
		CodigoGeneracion: actual.CodigoGeneracion,
		NumeroControl:    actual.NumeroControl,
		SelloRecibido:    actual.SelloRecibido,
		Registro:         actual,
	}
	if actual.Observaciones != "" {
		res.Observaciones = strings.Split(actual.Observaciones, "; ")
	}
	return res
}

func nombreContraparte(doc *dte.Documento) string {
	switch {
	case doc.Receptor != nil:
		return doc.Receptor.Nombre
	case doc.SujetoExcluido != nil:
		return doc.SujetoExcluido.Nombre
	}
	return ""
}

func numDocContraparte(doc *dte.Documento) string {
	switch {
	case doc.Receptor != nil:
		return doc.Receptor.NumDocumento
	case doc.SujetoExcluido != nil:
		return doc.SujetoExcluido.NumDocumento
	}
	return ""
}

func ptr[T any](v T) *T { return &v }
