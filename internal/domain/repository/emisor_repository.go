package repository

import (
	"context"

	"github.com/facturasv/dte-api/internal/domain/entity"
)

// EmisorRepository acceso a emisores y sus credenciales MH.
// Las implementaciones devuelven credenciales ya descifradas.
type EmisorRepository interface {
	ObtenerPorID(ctx context.Context, id string) (*entity.Emisor, error)
	ObtenerPorNIT(ctx context.Context, nit string) (*entity.Emisor, error)
	// SiguienteCorrelativo incrementa y devuelve el correlativo del emisor
	// de forma atómica.
	SiguienteCorrelativo(ctx context.Context, emisorID string) (int64, error)
}
