package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/inventario-conteo/internal/application/syncqueue"
)

var _ syncqueue.Reporter = (*SyncMetrics)(nil)

// SyncMetrics métricas del cliente de conteo: cola, estado de red y ciclos de envío.
type SyncMetrics struct {
	registry *prometheus.Registry

	Pending     prometheus.Gauge
	LocalOnly   prometheus.Gauge
	Rejected    prometheus.Gauge
	Syncing     prometheus.Gauge
	Online      prometheus.Gauge
	Suspended   prometheus.Gauge
	FlushCycles *prometheus.CounterVec
	Acked       prometheus.Counter
}

// New registra las métricas en un registro propio (no el global).
func New(namespace string) *SyncMetrics {
	if namespace == "" {
		namespace = "conteo"
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &SyncMetrics{
		registry: registry,
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_mutations",
			Help:      "Eventos de conteo sin acuse del servidor",
		}),
		LocalOnly: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "local_only_mutations",
			Help:      "Eventos pendientes sin sesión colaborativa",
		}),
		Rejected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rejected_mutations",
			Help:      "Eventos pendientes de particiones rechazadas por el servidor",
		}),
		Syncing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "syncing",
			Help:      "1 mientras hay un ciclo de envío en curso",
		}),
		Online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 si el servidor responde",
		}),
		Suspended: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_suspended",
			Help:      "1 si el envío automático espera un nuevo inicio de sesión",
		}),
		FlushCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_cycles_total",
			Help:      "Ciclos de envío por resultado",
		}, []string{"result"}),
		Acked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acknowledged_mutations_total",
			Help:      "Eventos confirmados por el servidor y borrados de la cola",
		}),
	}
	registry.MustRegister(m.Pending, m.LocalOnly, m.Rejected, m.Syncing, m.Online, m.Suspended, m.FlushCycles, m.Acked)
	for _, r := range []string{
		syncqueue.ResultSkipped, syncqueue.ResultEmpty, syncqueue.ResultOK, syncqueue.ResultPartial, syncqueue.ResultFailed,
	} {
		m.FlushCycles.WithLabelValues(r)
	}
	return m
}

// CycleCompleted implementa syncqueue.Reporter.
func (m *SyncMetrics) CycleCompleted(r syncqueue.Report) {
	m.FlushCycles.WithLabelValues(r.Result()).Inc()
	m.Acked.Add(float64(r.Acknowledged))
}

// ObserveStatus refleja el estado visible de la sincronización.
func (m *SyncMetrics) ObserveStatus(s syncqueue.Status) {
	m.Pending.Set(float64(s.Pending))
	m.LocalOnly.Set(float64(s.LocalOnly))
	m.Rejected.Set(float64(s.Rejected))
	m.Syncing.Set(boolToFloat(s.Syncing))
	m.Online.Set(boolToFloat(s.Online))
	m.Suspended.Set(boolToFloat(s.Suspended))
}

// Watch consume los estados publicados hasta que ctx termina o el canal se cierra.
func (m *SyncMetrics) Watch(ctx context.Context, updates <-chan syncqueue.Status) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			m.ObserveStatus(s)
		}
	}
}

// Handler endpoint de exposición para Prometheus.
func (m *SyncMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry registro subyacente.
func (m *SyncMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
