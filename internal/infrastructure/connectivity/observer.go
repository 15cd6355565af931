package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/inventario-conteo/internal/application/ports"
	"github.com/jhoicas/inventario-conteo/pkg/logger"
)

var _ ports.Connectivity = (*Observer)(nil)

// Observer estado de red explícito e inyectable. Solo emite en transiciones reales.
type Observer struct {
	log *logger.Logger

	mu      sync.Mutex
	online  bool
	subs    map[int]chan ports.ConnectivityTransition
	nextSub int
}

// NewObserver crea el observador con el estado inicial indicado.
func NewObserver(initial bool, log *logger.Logger) *Observer {
	return &Observer{
		log:    log.Component("connectivity"),
		online: initial,
		subs:   map[int]chan ports.ConnectivityTransition{},
	}
}

// Online último estado conocido.
func (o *Observer) Online() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

// Set fija el estado; si cambia, notifica a los suscriptores. Devuelve true si hubo transición.
func (o *Observer) Set(online bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.online == online {
		return false
	}
	o.online = online
	tr := ports.ConnectivityTransition{Online: online, At: time.Now().UTC()}
	for _, ch := range o.subs {
		// Un suscriptor lento solo necesita la última transición.
		select {
		case <-ch:
		default:
		}
		ch <- tr
	}
	if online {
		o.log.Info().Msg("conexión con el servidor restablecida")
	} else {
		o.log.Warn().Msg("sin conexión con el servidor, se cuenta en modo local")
	}
	return true
}

// Subscribe canal de transiciones; la función devuelta cancela la suscripción.
func (o *Observer) Subscribe() (<-chan ports.ConnectivityTransition, func()) {
	ch := make(chan ports.ConnectivityTransition, 1)
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.mu.Unlock()

	return ch, func() {
		o.mu.Lock()
		if _, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(ch)
		}
		o.mu.Unlock()
	}
}

// Pinger comprueba si el servidor responde (remote.Client.Ping).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober sondea el servidor periódicamente y actualiza el observador.
type Prober struct {
	pinger   Pinger
	observer *Observer
	interval time.Duration
	timeout  time.Duration
}

// NewProber construye el sondeo. interval 0 usa 10s.
func NewProber(pinger Pinger, observer *Observer, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	timeout := interval / 2
	if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &Prober{pinger: pinger, observer: observer, interval: interval, timeout: timeout}
}

// Probe un sondeo inmediato; devuelve el estado resultante.
func (p *Prober) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	online := p.pinger.Ping(pctx) == nil
	if ctx.Err() != nil {
		// Cancelación propia, no caída del servidor.
		return p.observer.Online()
	}
	p.observer.Set(online)
	return online
}

// Run sondea hasta que ctx termina.
func (p *Prober) Run(ctx context.Context) error {
	p.Probe(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
