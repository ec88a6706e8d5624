package transmision

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/facturasv/dte-api/internal/domain/entity"
	"github.com/facturasv/dte-api/internal/domain/repository"
	"github.com/facturasv/dte-api/pkg/config"
	"github.com/facturasv/dte-api/pkg/logger"
	"github.com/facturasv/dte-api/pkg/metrics"
	"github.com/facturasv/dte-api/pkg/resilience"
)

// ColaReintentos barre periódicamente los DTEs en ERROR y los re-transmite
// con backoff exponencial: delay = DelayBase * Factor^intentos. Un solo
// barrido a la vez (flag en proceso); los que agotan MaxIntentos pasan a
// RECHAZADO_FINAL y quedan excluidos de barridos futuros.
type ColaReintentos struct {
	dteRepo     repository.DTERepository
	orquestador *Orquestador
	cfg         config.ReintentosConfig
	log         *logger.Logger
	met         *metrics.Metrics

	mu        sync.Mutex
	enCurso   bool
	ahora     func() time.Time
	detener   chan struct{}
	detenerMu sync.Once
}

// NewColaReintentos construye la cola. Iniciar la arranca.
func NewColaReintentos(
	dteRepo repository.DTERepository,
	orquestador *Orquestador,
	cfg config.ReintentosConfig,
	log *logger.Logger,
	met *metrics.Metrics,
) *ColaReintentos {
	return &ColaReintentos{
		dteRepo:     dteRepo,
		orquestador: orquestador,
		cfg:         cfg,
		log:         log,
		met:         met,
		ahora:       time.Now,
		detener:     make(chan struct{}),
	}
}

// Iniciar ejecuta un barrido inmediato y programa barridos periódicos hasta
// que el contexto se cancele o se llame Detener.
func (c *ColaReintentos) Iniciar(ctx context.Context) {
	go func() {
		c.EjecutarBarrido(ctx)

		ticker := time.NewTicker(c.cfg.Intervalo)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.detener:
				return
			case <-ticker.C:
				c.EjecutarBarrido(ctx)
			}
		}
	}()
}

// Detener apaga la cola de forma idempotente.
func (c *ColaReintentos) Detener() {
	c.detenerMu.Do(func() { close(c.detener) })
}

// EjecutarBarrido procesa un lote de DTEs en ERROR cuyo backoff venció.
// Si un barrido anterior sigue en curso, retorna de inmediato. Devuelve
// cuántos DTEs se re-transmitieron.
func (c *ColaReintentos) EjecutarBarrido(ctx context.Context) int {
	c.mu.Lock()
	if c.enCurso {
		c.mu.Unlock()
		c.log.Debug().Msg("barrido de reintentos ya en curso, omitido")
		return 0
	}
	c.enCurso = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.enCurso = false
		c.mu.Unlock()
	}()

	pendientes, err := c.dteRepo.PendientesReintento(ctx, c.cfg.MaxIntentos, c.cfg.TamanoLote)
	if err != nil {
		c.log.Error().Err(err).Msg("no se pudo leer la cola de reintentos")
		return 0
	}
	if len(pendientes) == 0 {
		return 0
	}

	c.log.Info().Int("pendientes", len(pendientes)).Msg("barrido de reintentos iniciado")

	procesados := 0
	for _, registro := range pendientes {
		if ctx.Err() != nil {
			break
		}
		if !c.vencido(registro) {
			continue
		}

		c.met.ReintentosTotal.Inc()
		c.log.Info().
			Str("codigo_generacion", registro.CodigoGeneracion).
			Int("intento", registro.Intentos+1).
			Int("max_intentos", c.cfg.MaxIntentos).
			Msg("reintentando transmisión DTE")

		_, err := c.orquestador.Reprocesar(ctx, registro)
		if errors.Is(err, resilience.ErrCircuitoAbierto) {
			// MH caído: el resto del lote fallaría igual, se corta el
			// barrido y el próximo tick lo retoma.
			c.log.Warn().Msg("circuito MH abierto, barrido interrumpido")
			break
		}
		if err != nil {
			c.log.Error().Err(err).Str("codigo_generacion", registro.CodigoGeneracion).
				Msg("reintento fallido")
		}
		procesados++

		c.marcarSiAgotado(ctx, registro.CodigoGeneracion)
	}

	c.log.Info().Int("procesados", procesados).Msg("barrido de reintentos finalizado")
	return procesados
}

// vencido reporta si el backoff exponencial del registro ya venció.
func (c *ColaReintentos) vencido(registro *entity.DTE) bool {
	delay := c.cfg.DelayBase
	for i := 0; i < registro.Intentos; i++ {
		delay *= time.Duration(c.cfg.Factor)
	}
	return c.ahora().Sub(registro.UpdatedAt) >= delay
}

// marcarSiAgotado pasa a RECHAZADO_FINAL los registros que quedaron en ERROR
// con los intentos agotados tras el reproceso.
func (c *ColaReintentos) marcarSiAgotado(ctx context.Context, codigoGeneracion string) {
	actual, err := c.dteRepo.BuscarPorCodigoGeneracion(ctx, codigoGeneracion)
	if err != nil || actual == nil {
		return
	}
	if actual.Estado != entity.EstadoError || actual.Intentos < c.cfg.MaxIntentos {
		return
	}
	if err := c.dteRepo.ActualizarEstado(ctx, actual.ID, repository.ActualizacionEstado{
		Estado: entity.EstadoRechazadoFinal,
	}); err != nil {
		c.log.Error().Err(err).Str("codigo_generacion", codigoGeneracion).
			Msg("no se pudo marcar RECHAZADO_FINAL")
		return
	}
	c.met.DTEProcesados.WithLabelValues(entity.EstadoRechazadoFinal, actual.TipoDte).Inc()
	c.log.Warn().Str("codigo_generacion", codigoGeneracion).
		Int("intentos", actual.Intentos).Msg("reintentos agotados, DTE en RECHAZADO_FINAL")
}
