package http

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/facturasv/dte-api/internal/application/dto"
)

const (
	headerAPIKey = "X-API-Key"
	headerTenant = "X-Tenant-ID"

	localTenantID = "tenantID"
)

// APIKeyMiddleware valida la clave de API del caller y resuelve el tenant
// desde la cabecera. Comparación en tiempo constante.
func APIKeyMiddleware(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		presentada := c.Get(headerAPIKey)
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(presentada), []byte(apiKey)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Code: "UNAUTHORIZED", Message: "clave de API inválida",
			})
		}
		tenantID := c.Get(headerTenant)
		if tenantID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Code: "VALIDATION", Message: "cabecera " + headerTenant + " requerida",
			})
		}
		c.Locals(localTenantID, tenantID)
		return c.Next()
	}
}

// GetTenantID devuelve el tenant autenticado de la petición.
func GetTenantID(c *fiber.Ctx) string {
	if v, ok := c.Locals(localTenantID).(string); ok {
		return v
	}
	return ""
}
