package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/facturasv/dte-api/internal/domain"
	"github.com/facturasv/dte-api/internal/domain/entity"
	"github.com/facturasv/dte-api/internal/domain/repository"
)

var _ repository.DTERepository = (*DTERepo)(nil)

// DTERepo implementación de DTERepository (usable con pool o tx).
type DTERepo struct {
	q Querier
}

// NewDTERepository construye el adaptador. Pasar pool o tx (Querier).
func NewDTERepository(q Querier) *DTERepo {
	return &DTERepo{q: q}
}

const columnasDTE = `
	id, tenant_id, emisor_id, codigo_generacion, numero_control, tipo_dte,
	version, ambiente, fecha_emision, hora_emision,
	COALESCE(receptor_tipo_doc, ''), COALESCE(receptor_num_doc, ''),
	COALESCE(receptor_nombre, ''), COALESCE(receptor_correo, ''),
	total_gravada, total_iva, total_pagar,
	estado, intentos,
	COALESCE(sello_recibido, ''), COALESCE(fecha_procesamiento, ''),
	COALESCE(observaciones, ''), con_observaciones,
	COALESCE(error_log, ''), json_original, COALESCE(json_firmado, ''),
	created_at, updated_at`

// Crear persiste el registro inicial del DTE (estado CREADO).
func (r *DTERepo) Crear(ctx context.Context, d *entity.DTE) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	query := `
		INSERT INTO dtes (id, tenant_id, emisor_id, codigo_generacion, numero_control,
			tipo_dte, version, ambiente, fecha_emision, hora_emision,
			receptor_tipo_doc, receptor_num_doc, receptor_nombre, receptor_correo,
			total_gravada, total_iva, total_pagar, estado, intentos,
			json_original, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, 0, $19, $20, $21)`
	_, err := r.q.Exec(ctx, query,
		d.ID, d.TenantID, d.EmisorID, d.CodigoGeneracion, d.NumeroControl,
		d.TipoDte, d.Version, d.Ambiente, d.FechaEmision, d.HoraEmision,
		nullIfEmpty(d.ReceptorTipoDoc), nullIfEmpty(d.ReceptorNumDoc),
		nullIfEmpty(d.ReceptorNombre), nullIfEmpty(d.ReceptorCorreo),
		d.TotalGravada, d.TotalIva, d.TotalPagar, d.Estado,
		d.JSONOriginal, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: código de generación o número de control duplicado", domain.ErrDuplicate)
		}
		return fmt.Errorf("insert dte: %w", err)
	}
	return nil
}

// ActualizarEstado aplica un cambio de estado. Los punteros nil dejan la
// columna intacta; el incremento de intentos es atómico en la misma sentencia
// (intentos = intentos + 1, nunca read-modify-write).
func (r *DTERepo) ActualizarEstado(ctx context.Context, id string, cambio repository.ActualizacionEstado) error {
	incremento := 0
	if cambio.IncrementarIntento {
		incremento = 1
	}
	query := `
		UPDATE dtes
		SET estado              = $2,
		    sello_recibido      = COALESCE($3, sello_recibido),
		    fecha_procesamiento = COALESCE($4, fecha_procesamiento),
		    observaciones       = COALESCE($5, observaciones),
		    con_observaciones   = COALESCE($6, con_observaciones),
		    json_firmado        = COALESCE($7, json_firmado),
		    error_log           = COALESCE($8, error_log),
		    intentos            = intentos + $9,
		    updated_at          = now()
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		id, cambio.Estado,
		cambio.SelloRecibido, cambio.FechaProcesamiento,
		cambio.Observaciones, cambio.ConObservaciones,
		cambio.JSONFirmado, cambio.ErrorLog,
		incremento,
	)
	if err != nil {
		return fmt.Errorf("update estado dte: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: dte %s", domain.ErrNotFound, id)
	}
	return nil
}

// BuscarPorCodigoGeneracion obtiene un DTE por su código de generación.
func (r *DTERepo) BuscarPorCodigoGeneracion(ctx context.Context, codigoGeneracion string) (*entity.DTE, error) {
	query := `SELECT ` + columnasDTE + ` FROM dtes WHERE codigo_generacion = $1`
	return r.buscarUno(ctx, query, codigoGeneracion)
}

// BuscarPorNumeroControl obtiene un DTE por su número de control.
func (r *DTERepo) BuscarPorNumeroControl(ctx context.Context, numeroControl string) (*entity.DTE, error) {
	query := `SELECT ` + columnasDTE + ` FROM dtes WHERE numero_control = $1`
	return r.buscarUno(ctx, query, numeroControl)
}

func (r *DTERepo) buscarUno(ctx context.Context, query string, arg any) (*entity.DTE, error) {
	d, err := scanDTE(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get dte: %w", err)
	}
	return d, nil
}

// Listar devuelve una página de DTEs del tenant con los filtros dados y el
// total sin paginar.
func (r *DTERepo) Listar(ctx context.Context, filtro repository.FiltroDTE) ([]*entity.DTE, int64, error) {
	where := []string{"tenant_id = $1"}
	args := []any{filtro.TenantID}

	agregar := func(cond string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filtro.EmisorID != "" {
		agregar("emisor_id = $%d", filtro.EmisorID)
	}
	if filtro.TipoDte != "" {
		agregar("tipo_dte = $%d", filtro.TipoDte)
	}
	if filtro.Estado != "" {
		agregar("estado = $%d", filtro.Estado)
	}
	if filtro.FechaDesde != nil {
		agregar("fecha_emision >= $%d", *filtro.FechaDesde)
	}
	if filtro.FechaHasta != nil {
		agregar("fecha_emision <= $%d", *filtro.FechaHasta)
	}
	condiciones := strings.Join(where, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM dtes WHERE ` + condiciones
	if err := r.q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count dtes: %w", err)
	}

	limit := filtro.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	page := filtro.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT %s FROM dtes WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		columnasDTE, condiciones, len(args)-1, len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list dtes: %w", err)
	}
	defer rows.Close()

	var resultado []*entity.DTE
	for rows.Next() {
		d, err := scanDTE(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan dte: %w", err)
		}
		resultado = append(resultado, d)
	}
	return resultado, total, rows.Err()
}

// PendientesReintento devuelve DTEs en ERROR con reintentos disponibles,
// los más antiguos primero.
func (r *DTERepo) PendientesReintento(ctx context.Context, maxIntentos, limite int) ([]*entity.DTE, error) {
	query := `SELECT ` + columnasDTE + `
		FROM dtes
		WHERE estado = $1 AND intentos < $2
		ORDER BY updated_at ASC
		LIMIT $3`
	rows, err := r.q.Query(ctx, query, entity.EstadoError, maxIntentos, limite)
	if err != nil {
		return nil, fmt.Errorf("pendientes reintento: %w", err)
	}
	defer rows.Close()

	var pendientes []*entity.DTE
	for rows.Next() {
		d, err := scanDTE(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dte pendiente: %w", err)
		}
		pendientes = append(pendientes, d)
	}
	return pendientes, rows.Err()
}

// Estadisticas agrega cantidad y monto por estado y tipo desde una fecha.
func (r *DTERepo) Estadisticas(ctx context.Context, tenantID string, desde time.Time) ([]repository.EstadisticaDTE, error) {
	query := `
		SELECT estado, tipo_dte, COUNT(*), COALESCE(SUM(total_pagar), 0)::text
		FROM dtes
		WHERE tenant_id = $1 AND fecha_emision >= $2
		GROUP BY estado, tipo_dte
		ORDER BY estado, tipo_dte`
	rows, err := r.q.Query(ctx, query, tenantID, desde)
	if err != nil {
		return nil, fmt.Errorf("estadisticas dte: %w", err)
	}
	defer rows.Close()

	var stats []repository.EstadisticaDTE
	for rows.Next() {
		var s repository.EstadisticaDTE
		if err := rows.Scan(&s.Estado, &s.TipoDte, &s.Cantidad, &s.TotalPagar); err != nil {
			return nil, fmt.Errorf("scan estadistica: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func scanDTE(row pgxScanner) (*entity.DTE, error) {
	var d entity.DTE
	err := row.Scan(
		&d.ID, &d.TenantID, &d.EmisorID, &d.CodigoGeneracion, &d.NumeroControl,
		&d.TipoDte, &d.Version, &d.Ambiente, &d.FechaEmision, &d.HoraEmision,
		&d.ReceptorTipoDoc, &d.ReceptorNumDoc, &d.ReceptorNombre, &d.ReceptorCorreo,
		&d.TotalGravada, &d.TotalIva, &d.TotalPagar,
		&d.Estado, &d.Intentos,
		&d.SelloRecibido, &d.FechaProcesamiento,
		&d.Observaciones, &d.ConObservaciones,
		&d.ErrorLog, &d.JSONOriginal, &d.JSONFirmado,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
