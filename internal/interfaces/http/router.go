package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/facturasv/dte-api/internal/application/transmision"
	"github.com/facturasv/dte-api/internal/domain/dte"
	"github.com/facturasv/dte-api/internal/domain/repository"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Orquestador *transmision.Orquestador
	Cola        *transmision.ColaReintentos
	DTERepo     repository.DTERepository
	PDFGen      GeneradorPDF
	APIKey      string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Catálogo de tipos de DTE (público)
	api.Get("/tipos-dte", func(c *fiber.Ctx) error {
		return c.JSON(dte.Listar())
	})

	// Rutas protegidas (requieren X-API-Key y X-Tenant-ID)
	protected := api.Group("/", APIKeyMiddleware(deps.APIKey))

	dtes := protected.Group("/dtes")
	handler := NewDTEHandler(deps.Orquestador, deps.Cola, deps.DTERepo, deps.PDFGen)
	dtes.Post("/", handler.Emitir)
	dtes.Get("/", handler.Listar)
	dtes.Get("/stats", handler.Estadisticas)
	dtes.Post("/reintentos", handler.Reintentar)
	dtes.Get("/:codigo", handler.GetByCodigo)
	dtes.Get("/:codigo/estado", handler.ConsultarEstado)
	dtes.Get("/:codigo/pdf", handler.PDF)
	dtes.Post("/:codigo/anular", handler.Anular)
}
