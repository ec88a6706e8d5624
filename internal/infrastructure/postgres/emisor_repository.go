package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/facturasv/dte-api/internal/domain"
	"github.com/facturasv/dte-api/internal/domain/entity"
	"github.com/facturasv/dte-api/internal/domain/repository"
	"github.com/facturasv/dte-api/internal/infrastructure/cifrado"
)

var _ repository.EmisorRepository = (*EmisorRepo)(nil)

// EmisorRepo implementación de EmisorRepository. Las credenciales MH se
// almacenan cifradas (AES-GCM) y se descifran al leer: fuera de este
// adaptador siempre circulan en claro, nunca el blob.
type EmisorRepo struct {
	q        Querier
	cifrador *cifrado.Cifrador
}

// NewEmisorRepository construye el adaptador. Pasar pool o tx (Querier).
func NewEmisorRepository(q Querier, cifrador *cifrado.Cifrador) *EmisorRepo {
	return &EmisorRepo{q: q, cifrador: cifrador}
}

const columnasEmisor = `
	id, tenant_id, nit, nrc, nombre, COALESCE(nombre_comercial, ''),
	cod_actividad, desc_actividad, COALESCE(tipo_establecimiento, ''),
	COALESCE(departamento, ''), COALESCE(municipio, ''), COALESCE(complemento, ''),
	COALESCE(telefono, ''), COALESCE(correo, ''),
	COALESCE(cod_estable_mh, ''), COALESCE(cod_punto_venta_mh, ''),
	ambiente, mh_clave_privada, mh_clave_api, correlativo, activo,
	created_at, updated_at`

// ObtenerPorID obtiene un emisor por ID con credenciales descifradas.
func (r *EmisorRepo) ObtenerPorID(ctx context.Context, id string) (*entity.Emisor, error) {
	query := `SELECT ` + columnasEmisor + ` FROM emisores WHERE id = $1 AND activo`
	return r.buscarUno(ctx, query, id)
}

// ObtenerPorNIT obtiene un emisor por NIT con credenciales descifradas.
func (r *EmisorRepo) ObtenerPorNIT(ctx context.Context, nit string) (*entity.Emisor, error) {
	query := `SELECT ` + columnasEmisor + ` FROM emisores WHERE nit = $1 AND activo`
	return r.buscarUno(ctx, query, nit)
}

func (r *EmisorRepo) buscarUno(ctx context.Context, query string, arg any) (*entity.Emisor, error) {
	var e entity.Emisor
	var clavePrivada, claveAPI string
	err := r.q.QueryRow(ctx, query, arg).Scan(
		&e.ID, &e.TenantID, &e.NIT, &e.NRC, &e.Nombre, &e.NombreComercial,
		&e.CodActividad, &e.DescActividad, &e.TipoEstablecimiento,
		&e.Departamento, &e.Municipio, &e.Complemento,
		&e.Telefono, &e.Correo,
		&e.CodEstableMH, &e.CodPuntoVentaMH,
		&e.Ambiente, &clavePrivada, &claveAPI, &e.Correlativo, &e.Activo,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEmisorNoEncontrado
		}
		return nil, fmt.Errorf("get emisor: %w", err)
	}

	if e.MHClavePrivada, err = r.cifrador.Descifrar(clavePrivada); err != nil {
		return nil, fmt.Errorf("descifrar clave privada del emisor %s: %w", e.ID, err)
	}
	if e.MHClaveAPI, err = r.cifrador.Descifrar(claveAPI); err != nil {
		return nil, fmt.Errorf("descifrar clave API del emisor %s: %w", e.ID, err)
	}
	return &e, nil
}

// SiguienteCorrelativo incrementa y devuelve el correlativo del emisor en una
// sola sentencia: dos emisiones concurrentes nunca comparten número de control.
func (r *EmisorRepo) SiguienteCorrelativo(ctx context.Context, emisorID string) (int64, error) {
	var correlativo int64
	query := `UPDATE emisores SET correlativo = correlativo + 1, updated_at = now()
		WHERE id = $1 RETURNING correlativo`
	if err := r.q.QueryRow(ctx, query, emisorID).Scan(&correlativo); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrEmisorNoEncontrado
		}
		return 0, fmt.Errorf("siguiente correlativo: %w", err)
	}
	return correlativo, nil
}
