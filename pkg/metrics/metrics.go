package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contadores Prometheus del motor DTE. Se registran una sola vez
// en el registry por defecto al construirse.
type Metrics struct {
	DTEProcesados    *prometheus.CounterVec // por estado final
	ReintentosTotal  prometheus.Counter
	BreakerAperturas *prometheus.CounterVec // por dependencia
	TokensEmitidos   prometheus.Counter
}

// New registra y devuelve los contadores del motor.
func New() *Metrics {
	return &Metrics{
		DTEProcesados: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dte",
			Name:      "procesados_total",
			Help:      "DTEs procesados por estado final (PROCESADO, RECHAZADO, ERROR, ...).",
		}, []string{"estado", "tipo_dte"}),
		ReintentosTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "dte",
			Name:      "reintentos_total",
			Help:      "Reintentos ejecutados por la cola de reintentos.",
		}),
		BreakerAperturas: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dte",
			Name:      "breaker_aperturas_total",
			Help:      "Veces que el circuit breaker pasó a ABIERTO, por dependencia.",
		}, []string{"dependencia"}),
		TokensEmitidos: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "dte",
			Name:      "tokens_mh_emitidos_total",
			Help:      "Autenticaciones reales contra el MH (cache miss).",
		}),
	}
}
