package http

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/facturasv/dte-api/internal/application/dto"
	"github.com/facturasv/dte-api/internal/application/transmision"
	"github.com/facturasv/dte-api/internal/domain"
	"github.com/facturasv/dte-api/internal/domain/dte"
	"github.com/facturasv/dte-api/internal/domain/entity"
	"github.com/facturasv/dte-api/internal/domain/repository"
	"github.com/facturasv/dte-api/pkg/resilience"
)

// GeneradorPDF puerto del generador de la representación gráfica.
type GeneradorPDF interface {
	GenerarPDF(ctx context.Context, registro *entity.DTE, doc *dte.Documento) ([]byte, error)
}

// DTEHandler maneja las peticiones HTTP de emisión y consulta de DTEs.
type DTEHandler struct {
	orquestador *transmision.Orquestador
	cola        *transmision.ColaReintentos
	dteRepo     repository.DTERepository
	pdfGen      GeneradorPDF
}

// NewDTEHandler construye el handler.
func NewDTEHandler(
	orquestador *transmision.Orquestador,
	cola *transmision.ColaReintentos,
	dteRepo repository.DTERepository,
	pdfGen GeneradorPDF,
) *DTEHandler {
	return &DTEHandler{orquestador: orquestador, cola: cola, dteRepo: dteRepo, pdfGen: pdfGen}
}

// Emitir emite un DTE: construye, firma y transmite al MH.
// POST /api/dtes
func (h *DTEHandler) Emitir(c *fiber.Ctx) error {
	var in dto.EmitirDTERequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.EmisorID == "" || in.TipoDte == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "emisorId y tipoDte requeridos"})
	}

	resultado, err := h.orquestador.ProcesarDocumento(c.Context(), transmision.Solicitud{
		TenantID:           GetTenantID(c),
		EmisorID:           in.EmisorID,
		TipoDte:            in.TipoDte,
		Receptor:           mapReceptor(in.Receptor),
		DocRelacionado:     mapDocRelacionado(in.DocRelacionado),
		Items:              mapItems(in.Items),
		CondicionOperacion: in.CondicionOperacion,
	})
	if err != nil {
		return h.mapearError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.NewDTEResponse(resultado.Registro))
}

// GetByCodigo obtiene un DTE por código de generación.
// GET /api/dtes/:codigo
func (h *DTEHandler) GetByCodigo(c *fiber.Ctx) error {
	registro, err := h.buscarDelTenant(c)
	if err != nil {
		return h.mapearError(c, err)
	}
	return c.JSON(dto.NewDTEResponse(registro))
}

// Listar lista los DTEs del tenant con filtros y paginación.
// GET /api/dtes?estado=&tipoDte=&emisorId=&desde=&hasta=&page=&limit=
func (h *DTEHandler) Listar(c *fiber.Ctx) error {
	filtro := repository.FiltroDTE{
		TenantID: GetTenantID(c),
		EmisorID: c.Query("emisorId"),
		TipoDte:  c.Query("tipoDte"),
		Estado:   c.Query("estado"),
		Page:     c.QueryInt("page", 1),
		Limit:    c.QueryInt("limit", 20),
	}
	if desde := c.Query("desde"); desde != "" {
		if t, err := time.Parse("2006-01-02", desde); err == nil {
			filtro.FechaDesde = &t
		}
	}
	if hasta := c.Query("hasta"); hasta != "" {
		if t, err := time.Parse("2006-01-02", hasta); err == nil {
			filtro.FechaHasta = &t
		}
	}

	registros, total, err := h.dteRepo.Listar(c.Context(), filtro)
	if err != nil {
		return h.mapearError(c, err)
	}
	data := make([]dto.DTEResponse, 0, len(registros))
	for _, r := range registros {
		data = append(data, dto.NewDTEResponse(r))
	}
	return c.JSON(dto.ListaDTEResponse{Data: data, Total: total, Page: filtro.Page, Limit: filtro.Limit})
}

// Estadisticas agrega cantidad y monto por estado y tipo.
// GET /api/dtes/stats?desde=YYYY-MM-DD
func (h *DTEHandler) Estadisticas(c *fiber.Ctx) error {
	desde := time.Now().AddDate(0, -1, 0)
	if q := c.Query("desde"); q != "" {
		if t, err := time.Parse("2006-01-02", q); err == nil {
			desde = t
		}
	}
	stats, err := h.dteRepo.Estadisticas(c.Context(), GetTenantID(c), desde)
	if err != nil {
		return h.mapearError(c, err)
	}
	return c.JSON(fiber.Map{"desde": desde.Format("2006-01-02"), "estadisticas": stats})
}

// ConsultarEstado consulta el estado del DTE directamente en el MH.
// GET /api/dtes/:codigo/estado
func (h *DTEHandler) ConsultarEstado(c *fiber.Ctx) error {
	registro, err := h.buscarDelTenant(c)
	if err != nil {
		return h.mapearError(c, err)
	}
	resultado, err := h.orquestador.ConsultarEstado(c.Context(), registro.CodigoGeneracion)
	if err != nil {
		return h.mapearError(c, err)
	}
	return c.JSON(fiber.Map{
		"codigoGeneracion": registro.CodigoGeneracion,
		"estado":           resultado.Estado,
		"selloRecibido":    resultado.SelloRecibido,
		"observaciones":    resultado.Observaciones,
	})
}

// PDF devuelve la representación gráfica del DTE.
// GET /api/dtes/:codigo/pdf
func (h *DTEHandler) PDF(c *fiber.Ctx) error {
	registro, err := h.buscarDelTenant(c)
	if err != nil {
		return h.mapearError(c, err)
	}

	var doc dte.Documento
	if err := json.Unmarshal([]byte(registro.JSONOriginal), &doc); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: "documento original corrupto"})
	}
	bytes, err := h.pdfGen.GenerarPDF(c.Context(), registro, &doc)
	if err != nil {
		return h.mapearError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="`+registro.NumeroControl+`.pdf"`)
	return c.Send(bytes)
}

// Anular invalida un DTE procesado ante el MH.
// POST /api/dtes/:codigo/anular
func (h *DTEHandler) Anular(c *fiber.Ctx) error {
	registro, err := h.buscarDelTenant(c)
	if err != nil {
		return h.mapearError(c, err)
	}

	var in dto.AnularDTERequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.Motivo == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "motivo requerido"})
	}

	resultado, err := h.orquestador.Anular(c.Context(), transmision.SolicitudAnulacion{
		CodigoGeneracion: registro.CodigoGeneracion,
		Motivo:           in.Motivo,
		TipoAnulacion:    in.TipoAnulacion,
	})
	if err != nil {
		return h.mapearError(c, err)
	}
	return c.JSON(fiber.Map{
		"codigoGeneracion": registro.CodigoGeneracion,
		"anulado":          resultado.Aceptado(),
		"estado":           resultado.Estado,
		"observaciones":    resultado.Observaciones,
	})
}

// Reintentar dispara un barrido de la cola de reintentos fuera del ciclo
// programado (operación administrativa).
// POST /api/dtes/reintentos
func (h *DTEHandler) Reintentar(c *fiber.Ctx) error {
	procesados := h.cola.EjecutarBarrido(c.Context())
	return c.JSON(fiber.Map{"procesados": procesados})
}

// buscarDelTenant obtiene el registro del path param validando que pertenece
// al tenant autenticado. Un DTE ajeno se responde como inexistente.
func (h *DTEHandler) buscarDelTenant(c *fiber.Ctx) (*entity.DTE, error) {
	codigo := c.Params("codigo")
	if codigo == "" {
		return nil, domain.ErrNotFound
	}
	registro, err := h.dteRepo.BuscarPorCodigoGeneracion(c.Context(), codigo)
	if err != nil {
		return nil, err
	}
	if registro.TenantID != GetTenantID(c) {
		return nil, domain.ErrNotFound
	}
	return registro, nil
}

// mapearError traduce errores de dominio a status HTTP.
func (h *DTEHandler) mapearError(c *fiber.Ctx, err error) error {
	switch {
	case domain.EsErrorLinea(err),
		errors.Is(err, domain.ErrTipoDTEDesconocido),
		errors.Is(err, domain.ErrDocRelacionadoFaltante),
		errors.Is(err, domain.ErrNRCRequerido),
		errors.Is(err, domain.ErrReceptorRequerido),
		errors.Is(err, domain.ErrSujetoExcluidoRequerido),
		errors.Is(err, domain.ErrSinLineas):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrEmisorNoEncontrado), errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrDTENoAnulable):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "NOT_VOIDABLE", Message: err.Error()})
	case errors.Is(err, domain.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "DUPLICATE", Message: err.Error()})
	case errors.Is(err, resilience.ErrCircuitoAbierto):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "MH_UNAVAILABLE", Message: "servicio MH no disponible, el documento quedó en cola de reintentos"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}

// ── mapeo de DTOs ─────────────────────────────────────────────────────────────

func mapItems(items []dto.ItemRequest) []dte.ItemFactura {
	resultado := make([]dte.ItemFactura, 0, len(items))
	for _, it := range items {
		resultado = append(resultado, dte.ItemFactura{
			Descripcion:    it.Descripcion,
			Cantidad:       it.Cantidad,
			PrecioUnitario: it.PrecioUnitario,
			Descuento:      it.Descuento,
			TipoItem:       it.TipoItem,
			UniMedida:      it.UniMedida,
			Codigo:         it.Codigo,
		})
	}
	return resultado
}

func mapReceptor(r *dto.ReceptorRequest) *dte.ReceptorInput {
	if r == nil {
		return nil
	}
	return &dte.ReceptorInput{
		TipoDocumento: r.TipoDocumento,
		NumDocumento:  r.NumDocumento,
		NRC:           r.NRC,
		Nombre:        r.Nombre,
		CodActividad:  r.CodActividad,
		DescActividad: r.DescActividad,
		Departamento:  r.Departamento,
		Municipio:     r.Municipio,
		Complemento:   r.Complemento,
		Telefono:      r.Telefono,
		Correo:        r.Correo,
	}
}

func mapDocRelacionado(d *dto.DocRelacionadoRequest) *dte.DocumentoRelacionado {
	if d == nil {
		return nil
	}
	return &dte.DocumentoRelacionado{
		TipoDocumento:   d.TipoDocumento,
		TipoGeneracion:  d.TipoGeneracion,
		NumeroDocumento: d.NumeroDocumento,
		FechaEmision:    d.FechaEmision,
	}
}
