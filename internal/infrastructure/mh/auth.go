package mh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/facturasv/dte-api/pkg/config"
	"github.com/facturasv/dte-api/pkg/logger"
	"github.com/facturasv/dte-api/pkg/metrics"
)

// ── Autenticación contra el MH ────────────────────────────────────────────────

// Autenticador obtiene tokens de la API del Ministerio de Hacienda y los
// cachea por NIT. El endpoint de auth recibe user/pwd como form-urlencoded
// y devuelve un JWT con prefijo "Bearer ".
type Autenticador struct {
	authURL    string
	httpClient *http.Client
	cache      *CacheTokens
	log        *logger.Logger
	met        *metrics.Metrics
}

// NewAutenticador construye el autenticador con caché de tokens.
func NewAutenticador(cfg config.MHConfig, log *logger.Logger, met *metrics.Metrics) *Autenticador {
	return &Autenticador{
		authURL:    cfg.AuthURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      NewCacheTokens(cfg.TokenMargen),
		log:        log,
		met:        met,
	}
}

// authResponse respuesta del endpoint de autenticación del MH.
type authResponse struct {
	Status string `json:"status"`
	Body   struct {
		User  string `json:"user"`
		Token string `json:"token"`
	} `json:"body"`
	Error string `json:"error"`
}

// Autenticar devuelve un token vigente para el NIT, reutilizando el cacheado
// si aún no vence. Ante caché frío o vencido hace login contra el MH.
func (a *Autenticador) Autenticar(ctx context.Context, nit, claveAPI string) (string, error) {
	if token, ok := a.cache.Obtener(nit); ok {
		return token, nil
	}

	form := url.Values{}
	form.Set("user", nit)
	form.Set("pwd", claveAPI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("mh auth: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("mh auth: timeout o cancelación: %w", ctx.Err())
		}
		return "", fmt.Errorf("mh auth: llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("mh auth: leer respuesta: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mh auth: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(rawBody)))
	}

	var parsed authResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("mh auth: parsear respuesta: %w", err)
	}
	if !strings.EqualFold(parsed.Status, "OK") || parsed.Body.Token == "" {
		return "", fmt.Errorf("mh auth: credenciales rechazadas (status=%s): %s", parsed.Status, parsed.Error)
	}

	token := parsed.Body.Token
	expira := a.cache.Guardar(nit, token)
	a.met.TokensEmitidos.Inc()
	a.log.Info().Str("nit", nit).Time("expira", expira).Msg("token MH emitido y cacheado")
	return token, nil
}

// Invalidar descarta el token cacheado de un NIT ("" descarta todos). Se usa
// tras un rechazo de autorización del MH para forzar re-login.
func (a *Autenticador) Invalidar(nit string) {
	a.cache.Invalidar(nit)
}

// EstadisticasCache ocupación del caché de tokens, para el endpoint de salud.
func (a *Autenticador) EstadisticasCache() EstadisticasCache {
	return a.cache.Estadisticas()
}
