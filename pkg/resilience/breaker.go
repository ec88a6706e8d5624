package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Estados del circuit breaker.
const (
	EstadoCerrado     = "CERRADO"      // Normal, permite llamadas
	EstadoAbierto     = "ABIERTO"      // Bloqueado, rechaza llamadas
	EstadoSemiAbierto = "SEMI_ABIERTO" // Prueba de recuperación: una sola llamada
)

// ErrCircuitoAbierto se devuelve cuando el breaker rechaza la llamada sin
// intentar la dependencia. Los callers deben aplicar su propio backoff en
// lugar de encolar más carga.
var ErrCircuitoAbierto = errors.New("circuito abierto: dependencia temporalmente no disponible")

// Config umbrales de un breaker.
type Config struct {
	UmbralFallos       int           // fallos dentro de la ventana antes de abrir
	TiempoRecuperacion time.Duration // tiempo en ABIERTO antes de permitir la prueba
	VentanaFallos      time.Duration // ventana para contar fallos consecutivos
}

// DefaultConfig valores razonables para servicios externos lentos (MH, firmador).
func DefaultConfig() Config {
	return Config{
		UmbralFallos:       5,
		TiempoRecuperacion: 30 * time.Second,
		VentanaFallos:      time.Minute,
	}
}

// Breaker circuit breaker para una dependencia externa. Se construye una vez
// al arranque y se comparte por referencia; el estado interno va protegido
// por mutex para soportar envíos concurrentes.
type Breaker struct {
	nombre string
	cfg    Config

	mu             sync.Mutex
	estado         string
	fallos         int
	ultimoFallo    time.Time
	pruebaEnCurso  bool
	alAbrir        func(nombre string) // callback opcional (métricas)
	ahora          func() time.Time    // inyectable en tests
}

// New crea un breaker en estado CERRADO.
func New(nombre string, cfg Config) *Breaker {
	if cfg.UmbralFallos <= 0 {
		cfg = DefaultConfig()
	}
	return &Breaker{
		nombre: nombre,
		cfg:    cfg,
		estado: EstadoCerrado,
		ahora:  time.Now,
	}
}

// OnAbrir registra un callback invocado cada vez que el breaker pasa a ABIERTO.
func (b *Breaker) OnAbrir(fn func(nombre string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alAbrir = fn
}

// Nombre devuelve el nombre de la dependencia protegida.
func (b *Breaker) Nombre() string { return b.nombre }

// Estado devuelve el estado actual (para monitoreo).
func (b *Breaker) Estado() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.estado
}

// Ejecutar corre fn protegida por el breaker. Si el circuito está abierto
// devuelve ErrCircuitoAbierto sin invocar fn. El error de fn se propaga
// tal cual tras registrarse como fallo.
func (b *Breaker) Ejecutar(fn func() error) error {
	if err := b.permitir(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.registrarFallo()
		return err
	}
	b.registrarExito()
	return nil
}

// permitir decide si la llamada puede pasar. En SEMI_ABIERTO solo se admite
// una llamada de prueba a la vez.
func (b *Breaker) permitir() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.estado {
	case EstadoCerrado:
		return nil

	case EstadoAbierto:
		if b.ahora().Sub(b.ultimoFallo) >= b.cfg.TiempoRecuperacion {
			b.estado = EstadoSemiAbierto
			b.pruebaEnCurso = true
			return nil
		}
		return fmt.Errorf("%w: %s, reintentar tras %s", ErrCircuitoAbierto, b.nombre,
			b.cfg.TiempoRecuperacion-b.ahora().Sub(b.ultimoFallo))

	case EstadoSemiAbierto:
		if b.pruebaEnCurso {
			return fmt.Errorf("%w: %s, prueba de recuperación en curso", ErrCircuitoAbierto, b.nombre)
		}
		b.pruebaEnCurso = true
		return nil
	}
	return nil
}

func (b *Breaker) registrarExito() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.estado == EstadoSemiAbierto {
		// Recuperado: cerrar y resetear contadores
		b.estado = EstadoCerrado
		b.pruebaEnCurso = false
	}
	b.fallos = 0
}

func (b *Breaker) registrarFallo() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ahora := b.ahora()

	// Fallos fuera de la ventana no cuentan para el umbral
	if !b.ultimoFallo.IsZero() && ahora.Sub(b.ultimoFallo) > b.cfg.VentanaFallos {
		b.fallos = 0
	}
	b.fallos++
	b.ultimoFallo = ahora

	switch {
	case b.estado == EstadoSemiAbierto:
		// Falló la llamada de prueba: abrir de nuevo y reiniciar el timer
		b.estado = EstadoAbierto
		b.pruebaEnCurso = false
		b.notificarApertura()
	case b.fallos >= b.cfg.UmbralFallos && b.estado == EstadoCerrado:
		b.estado = EstadoAbierto
		b.notificarApertura()
	}
}

func (b *Breaker) notificarApertura() {
	if b.alAbrir != nil {
		b.alAbrir(b.nombre)
	}
}
