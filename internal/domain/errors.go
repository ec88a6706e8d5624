package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound                = errors.New("recurso no encontrado")
	ErrTipoDTEDesconocido      = errors.New("tipo de DTE desconocido")
	ErrDocRelacionadoFaltante  = errors.New("documento relacionado requerido para este tipo de DTE")
	ErrNRCRequerido            = errors.New("NRC del receptor requerido para este tipo de DTE")
	ErrReceptorRequerido       = errors.New("datos del receptor requeridos")
	ErrSujetoExcluidoRequerido = errors.New("datos del sujeto excluido requeridos")
	ErrSinLineas               = errors.New("el documento no tiene líneas")
	ErrCredencialesIncompletas = errors.New("credenciales incompletas (nit y clave API requeridos)")
	ErrEmisorNoEncontrado      = errors.New("emisor no encontrado")
	ErrDuplicate               = errors.New("recurso duplicado")
	ErrUnauthorized            = errors.New("no autorizado")
	ErrDTENoAnulable           = errors.New("el DTE no es anulable (requiere sello del MH)")
)

// ErrorLinea error de entrada inválida en una línea concreta del documento.
// Es error del caller: nunca se reintenta.
type ErrorLinea struct {
	NumItem int
	Motivo  string
}

func (e *ErrorLinea) Error() string {
	return fmt.Sprintf("línea %d inválida: %s", e.NumItem, e.Motivo)
}

// NuevaErrorLinea construye un ErrorLinea para el índice dado (base 1).
func NuevaErrorLinea(numItem int, motivo string) *ErrorLinea {
	return &ErrorLinea{NumItem: numItem, Motivo: motivo}
}

// EsErrorLinea reporta si err es un error de línea inválida.
func EsErrorLinea(err error) bool {
	var el *ErrorLinea
	return errors.As(err, &el)
}
