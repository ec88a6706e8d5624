package repository

import (
	"context"
	"time"

	"github.com/facturasv/dte-api/internal/domain/entity"
)

// ActualizacionEstado campos actualizables al cambiar el estado de un DTE.
// Los punteros nil dejan la columna intacta. El incremento de intentos es
// atómico en la implementación (intentos = intentos + 1).
type ActualizacionEstado struct {
	Estado             string
	SelloRecibido      *string
	FechaProcesamiento *string
	Observaciones      *string
	ConObservaciones   *bool
	JSONFirmado        *string
	ErrorLog           *string
	IncrementarIntento bool
}

// FiltroDTE filtros de listado.
type FiltroDTE struct {
	TenantID   string
	EmisorID   string
	TipoDte    string
	Estado     string
	FechaDesde *time.Time
	FechaHasta *time.Time
	Page       int
	Limit      int
}

// EstadisticaDTE agregado por estado y tipo para el panel del tenant.
type EstadisticaDTE struct {
	Estado     string
	TipoDte    string
	Cantidad   int64
	TotalPagar string
}

// DTERepository persistencia de registros de transmisión DTE.
type DTERepository interface {
	Crear(ctx context.Context, dte *entity.DTE) error
	ActualizarEstado(ctx context.Context, id string, cambio ActualizacionEstado) error
	BuscarPorCodigoGeneracion(ctx context.Context, codigoGeneracion string) (*entity.DTE, error)
	BuscarPorNumeroControl(ctx context.Context, numeroControl string) (*entity.DTE, error)
	Listar(ctx context.Context, filtro FiltroDTE) ([]*entity.DTE, int64, error)
	// PendientesReintento devuelve DTEs en ERROR con intentos < maxIntentos,
	// los más antiguos primero, acotado a limite.
	PendientesReintento(ctx context.Context, maxIntentos, limite int) ([]*entity.DTE, error)
	Estadisticas(ctx context.Context, tenantID string, desde time.Time) ([]EstadisticaDTE, error)
}
