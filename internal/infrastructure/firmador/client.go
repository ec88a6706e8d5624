// Package firmador integra el servicio de firma electrónica oficial del MH
// (contenedor svfe-api-firmador). Recibe el documento canónico y devuelve el
// envelope JWS que exige el endpoint de recepción.
package firmador

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/facturasv/dte-api/pkg/config"
	"github.com/facturasv/dte-api/pkg/logger"
)

const rutaFirma = "/firmardocumento/"

// Cliente cliente HTTP del firmador.
type Cliente struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewCliente construye el cliente del firmador.
func NewCliente(cfg config.FirmadorConfig, log *logger.Logger) *Cliente {
	return &Cliente{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// firmaRequest payload del firmador. El NIT debe ir completo (14 dígitos);
// passwordPri es la passphrase de la llave privada del emisor.
type firmaRequest struct {
	NIT         string `json:"nit"`
	Activo      bool   `json:"activo"`
	PasswordPri string `json:"passwordPri"`
	DTEJson     any    `json:"dteJson"`
}

type firmaResponse struct {
	Status string          `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// Firmar envía el documento (DTE o evento de anulación) al firmador y
// devuelve el JWS. El firmador responde {status:"OK", body:"<jws>"}; ante
// error el body trae el detalle.
func (c *Cliente) Firmar(ctx context.Context, documento any, nit, clavePrivada string) (string, error) {
	payload := firmaRequest{
		NIT:         rellenarNIT(nit),
		Activo:      true,
		PasswordPri: clavePrivada,
		DTEJson:     documento,
	}
	cuerpo, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("firmador: serializar payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+rutaFirma,
		bytes.NewReader(cuerpo))
	if err != nil {
		return "", fmt.Errorf("firmador: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("firmador: timeout o cancelación: %w", ctx.Err())
		}
		return "", fmt.Errorf("firmador: llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("firmador: leer respuesta: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("firmador: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(rawBody)))
	}

	var parsed firmaResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("firmador: parsear respuesta: %w", err)
	}
	if !strings.EqualFold(parsed.Status, "OK") {
		return "", fmt.Errorf("firmador: firma rechazada (status=%s): %s", parsed.Status, string(parsed.Body))
	}

	var jws string
	if err := json.Unmarshal(parsed.Body, &jws); err != nil || jws == "" {
		return "", fmt.Errorf("firmador: body sin JWS: %s", string(parsed.Body))
	}
	return jws, nil
}

// rellenarNIT normaliza el NIT a 14 dígitos con ceros a la izquierda, formato
// con el que el firmador indexa los certificados.
func rellenarNIT(nit string) string {
	limpio := strings.ReplaceAll(strings.TrimSpace(nit), "-", "")
	if len(limpio) >= 14 {
		return limpio
	}
	return strings.Repeat("0", 14-len(limpio)) + limpio
}
