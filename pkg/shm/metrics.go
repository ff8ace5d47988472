package shm

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "shmq"

// queueMetrics holds the data path counters of one handle, curried with its
// queue and role labels. A nil *queueMetrics records nothing.
type queueMetrics struct {
	reg prometheus.Registerer

	enqueued       prometheus.Counter
	rejectedFull   prometheus.Counter
	rejectedNoPeer prometheus.Counter
	dequeued       prometheus.Counter
	empty          prometheus.Counter
	attachAttempts prometheus.Counter
	depth          prometheus.GaugeFunc
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	return vec, nil
}

func newQueueMetrics(reg prometheus.Registerer, name string) (*queueMetrics, error) {
	if reg == nil {
		return nil, nil
	}
	enq, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "enqueued_total",
		Help:      "Records accepted by enqueue.",
	}, "queue")
	if err != nil {
		return nil, err
	}
	rej, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "enqueue_rejected_total",
		Help:      "Enqueue calls that were not accepted, by reason.",
	}, "queue", "reason")
	if err != nil {
		return nil, err
	}
	deq, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "dequeued_total",
		Help:      "Records returned by dequeue.",
	}, "queue")
	if err != nil {
		return nil, err
	}
	empty, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "dequeue_empty_total",
		Help:      "Dequeue calls that found the queue empty.",
	}, "queue")
	if err != nil {
		return nil, err
	}
	attach, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "attach_attempts_total",
		Help:      "Reader handshake attempts.",
	}, "queue")
	if err != nil {
		return nil, err
	}

	return &queueMetrics{
		reg:            reg,
		enqueued:       enq.WithLabelValues(name),
		rejectedFull:   rej.WithLabelValues(name, "full"),
		rejectedNoPeer: rej.WithLabelValues(name, "not_connected"),
		dequeued:       deq.WithLabelValues(name),
		empty:          empty.WithLabelValues(name),
		attachAttempts: attach.WithLabelValues(name),
	}, nil
}

// registerDepth exports the queue depth of an attached handle. A second
// handle on the same queue and role in one process keeps the first gauge.
func (m *queueMetrics) registerDepth(name string, role Role, depth func() float64) {
	if m == nil {
		return
	}
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Name:        "queue_depth",
		Help:        "Records enqueued but not yet dequeued.",
		ConstLabels: prometheus.Labels{"queue": name, "role": role.String()},
	}, depth)
	if err := m.reg.Register(g); err == nil {
		m.depth = g
	}
}

// unregister drops collectors that read the mapping; called before unmap.
func (m *queueMetrics) unregister() {
	if m == nil || m.depth == nil {
		return
	}
	m.reg.Unregister(m.depth)
	m.depth = nil
}

func (m *queueMetrics) incEnqueued() {
	if m != nil {
		m.enqueued.Inc()
	}
}

func (m *queueMetrics) incFull() {
	if m != nil {
		m.rejectedFull.Inc()
	}
}

func (m *queueMetrics) incNotConnected() {
	if m != nil {
		m.rejectedNoPeer.Inc()
	}
}

func (m *queueMetrics) incDequeued() {
	if m != nil {
		m.dequeued.Inc()
	}
}

func (m *queueMetrics) incEmpty() {
	if m != nil {
		m.empty.Inc()
	}
}

func (m *queueMetrics) incAttachAttempts() {
	if m != nil {
		m.attachAttempts.Inc()
	}
}
