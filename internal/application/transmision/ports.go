package transmision

import "context"

// Puertos de salida del orquestador. Las implementaciones concretas viven
// en internal/infrastructure; para tests se inyectan mocks.

// Estados declarados por el MH en la respuesta de recepción.
const (
	EstadoMHProcesado = "PROCESADO"
	EstadoMHRechazado = "RECHAZADO"
)

// Firmador servicio externo de firma JWS (contenedor firmador oficial MH).
type Firmador interface {
	// Firmar envía el documento canónico (DTE o evento de anulación) y
	// devuelve el envelope JWS. nit debe ser el NIT completo del emisor;
	// clavePrivada es la passphrase de su llave privada en el firmador.
	Firmar(ctx context.Context, documento any, nit, clavePrivada string) (string, error)
}

// AutenticadorMH obtiene tokens de la API del MH. La implementación cachea
// por NIT con margen de seguridad bajo la expiración declarada.
type AutenticadorMH interface {
	Autenticar(ctx context.Context, nit, claveAPI string) (string, error)
	// Invalidar descarta el token cacheado de un NIT ("" descarta todos),
	// tras un fallo de autenticación reportado por el MH.
	Invalidar(nit string)
}

// EnvioDTE parámetros de entrega de un DTE firmado al MH.
type EnvioDTE struct {
	DocumentoFirmado string // JWS
	Ambiente         string
	TipoDte          string
	Version          int
	CodigoGeneracion string
	Token            string
}

// ResultadoMH respuesta interpretada del endpoint de recepción.
// Crudo preserva el payload verbatim para auditoría.
type ResultadoMH struct {
	Estado             string
	SelloRecibido      string
	CodigoGeneracion   string
	FechaProcesamiento string
	Observaciones      []string
	DescripcionMsg     string
	Crudo              string
}

// Aceptado reporta si el MH declaró el documento procesado.
func (r *ResultadoMH) Aceptado() bool {
	return r != nil && r.Estado == EstadoMHProcesado
}

// ConObservaciones reporta aceptación técnica con observaciones de negocio
// (ej. receptor desconocido): tercer desenlace explícito, nunca un éxito
// silencioso.
func (r *ResultadoMH) ConObservaciones() bool {
	return r.Aceptado() && len(r.Observaciones) > 0
}

// TransmisorMH entrega de DTEs firmados y consultas al MH.
type TransmisorMH interface {
	Enviar(ctx context.Context, envio EnvioDTE) (*ResultadoMH, error)
	ConsultarEstado(ctx context.Context, codigoGeneracion, token string) (*ResultadoMH, error)
	Anular(ctx context.Context, documentoAnulacion, ambiente, token string) (*ResultadoMH, error)
}
