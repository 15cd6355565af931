package remote

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jhoicas/inventario-conteo/internal/domain"
	"github.com/jhoicas/inventario-conteo/pkg/logger"
)

// BreakerConfig umbrales del circuito hacia el servidor.
type BreakerConfig struct {
	FailureThreshold uint32        // fallos de red consecutivos para abrir
	OpenTimeout      time.Duration // tiempo abierto antes de probar (half-open)
	MaxRequests      uint32        // peticiones permitidas en half-open
}

func (b BreakerConfig) withDefaults() BreakerConfig {
	if b.FailureThreshold == 0 {
		b.FailureThreshold = 5
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = 30 * time.Second
	}
	if b.MaxRequests == 0 {
		b.MaxRequests = 1
	}
	return b
}

// newBreaker solo cuenta como fallo lo que es de red: un 401 o un 404 no abren el circuito.
func newBreaker(name string, cfg BreakerConfig, log *logger.Logger) *gobreaker.CircuitBreaker {
	cfg = cfg.withDefaults()
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrNetwork)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("circuito", name).Str("desde", from.String()).Str("hacia", to.String()).Msg("cambio de estado del circuito")
		},
	})
}
