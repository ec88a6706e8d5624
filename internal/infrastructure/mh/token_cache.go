package mh

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// vidaPorDefecto vida asumida del token cuando el JWT no trae claim exp
// legible. El MH emite tokens de 24 h; se asume una hora menos.
const vidaPorDefecto = 23 * time.Hour

// CacheTokens caché de tokens MH por NIT. Cada emisor autentica con sus
// propias credenciales, así que los tokens no se comparten entre NITs.
// Concurrencia last-writer-wins: dos refrescos simultáneos del mismo NIT
// son ambos válidos y cualquiera de los dos puede quedar cacheado.
type CacheTokens struct {
	mu     sync.RWMutex
	tokens map[string]tokenCacheado
	margen time.Duration
	ahora  func() time.Time
}

type tokenCacheado struct {
	token  string
	expira time.Time
}

// NewCacheTokens construye el caché; margen se descuenta de la expiración
// declarada para nunca usar un token al borde del vencimiento.
func NewCacheTokens(margen time.Duration) *CacheTokens {
	return &CacheTokens{
		tokens: make(map[string]tokenCacheado),
		margen: margen,
		ahora:  time.Now,
	}
}

// Obtener devuelve el token vigente del NIT, si existe.
func (c *CacheTokens) Obtener(nit string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entrada, ok := c.tokens[nit]
	if !ok || c.ahora().After(entrada.expira) {
		return "", false
	}
	return entrada.token, true
}

// Guardar cachea el token del NIT y devuelve la expiración efectiva
// (exp del JWT menos el margen, o vida por defecto si no es legible).
func (c *CacheTokens) Guardar(nit, token string) time.Time {
	expira := c.expiracion(token)
	c.mu.Lock()
	c.tokens[nit] = tokenCacheado{token: token, expira: expira}
	c.mu.Unlock()
	return expira
}

// EstadisticasCache ocupación del caché: tokens guardados y cuántos
// siguen vigentes. Para el endpoint de salud.
type EstadisticasCache struct {
	Total    int `json:"total"`
	Vigentes int `json:"vigentes"`
}

// Estadisticas devuelve la ocupación actual del caché.
func (c *CacheTokens) Estadisticas() EstadisticasCache {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := EstadisticasCache{Total: len(c.tokens)}
	ahora := c.ahora()
	for _, entrada := range c.tokens {
		if !ahora.After(entrada.expira) {
			stats.Vigentes++
		}
	}
	return stats
}

// Invalidar descarta el token de un NIT; con "" vacía el caché completo.
func (c *CacheTokens) Invalidar(nit string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if nit == "" {
		c.tokens = make(map[string]tokenCacheado)
		return
	}
	delete(c.tokens, nit)
}

// expiracion extrae el claim exp del JWT sin verificar la firma (el token
// viene de un canal TLS autenticado; aquí solo interesa la vigencia).
func (c *CacheTokens) expiracion(token string) time.Time {
	crudo := strings.TrimPrefix(token, "Bearer ")
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(crudo, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time.Add(-c.margen)
		}
	}
	return c.ahora().Add(vidaPorDefecto)
}
