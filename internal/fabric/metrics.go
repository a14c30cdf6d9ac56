package fabric

import (
	"net/http"
	"sync"
	"time"

	"github.com/heyvito/pathtrace/internal/proto"
	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DropReason labels why a message never reached its recipient.
type DropReason string

const (
	DropLoss        DropReason = "loss"
	DropDecode      DropReason = "decode"
	DropSeal        DropReason = "seal"
	DropNotNeighbor DropReason = "not_neighbor"
	DropUnknownNode DropReason = "unknown_node"
	DropTransport   DropReason = "transport"
	DropClosed      DropReason = "closed"
)

// Stats summarizes the traffic a fabric carried.
type Stats struct {
	Sent      map[proto.OpCode]int
	Delivered map[proto.OpCode]int
	Dropped   map[DropReason]int

	// DelayP50 and DelayP99 are quantiles of every delay drawn for a
	// scheduled delivery.
	DelayP50 time.Duration
	DelayP99 time.Duration

	// Elapsed is the virtual time of the last delivery for simulated
	// fabrics, and the wall time spent in Run for live ones.
	Elapsed time.Duration
}

// TotalSent returns the number of messages handed to the fabric.
func (s Stats) TotalSent() int { return sum(s.Sent) }

// TotalDelivered returns the number of messages handed to recipients.
func (s Stats) TotalDelivered() int { return sum(s.Delivered) }

// TotalDropped returns the number of messages dropped for any reason.
func (s Stats) TotalDropped() int { return sum(s.Dropped) }

func sum[K comparable](m map[K]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

// Metrics keeps the traffic counters of a single fabric, both as prometheus
// collectors on a private registry and as plain counters backing Stats.
type Metrics struct {
	registry  *prometheus.Registry
	sent      *prometheus.CounterVec
	delivered *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	delay     *prometheus.HistogramVec

	mu      sync.Mutex
	stats   Stats
	tDigest *tdigest.TDigest
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pathtrace",
				Name:      "messages_sent_total",
				Help:      "Messages handed to the fabric, by kind.",
			},
			[]string{"kind"},
		),
		delivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pathtrace",
				Name:      "messages_delivered_total",
				Help:      "Messages handed to their recipient, by kind.",
			},
			[]string{"kind"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pathtrace",
				Name:      "messages_dropped_total",
				Help:      "Messages that never reached their recipient, by reason.",
			},
			[]string{"reason"},
		),
		delay: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pathtrace",
				Name:      "delivery_delay_seconds",
				Help:      "Delay drawn for each scheduled delivery.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
			},
			[]string{"kind"},
		),
		stats: Stats{
			Sent:      map[proto.OpCode]int{},
			Delivered: map[proto.OpCode]int{},
			Dropped:   map[DropReason]int{},
		},
		tDigest: tdigest.New(),
	}
	for _, kind := range proto.AllOpCodes {
		m.sent.WithLabelValues(kind.String())
		m.delivered.WithLabelValues(kind.String())
	}
	m.registry.MustRegister(m.sent, m.delivered, m.dropped, m.delay)
	return m
}

// Handler exposes the fabric's collectors in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) recordSent(kind proto.OpCode) {
	m.sent.WithLabelValues(kind.String()).Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Sent[kind]++
}

func (m *Metrics) recordScheduled(kind proto.OpCode, delay time.Duration) {
	m.delay.WithLabelValues(kind.String()).Observe(delay.Seconds())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tDigest.Add(float64(delay), 1)
}

func (m *Metrics) recordDelivered(kind proto.OpCode) {
	m.delivered.WithLabelValues(kind.String()).Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Delivered[kind]++
}

func (m *Metrics) recordDropped(reason DropReason) {
	m.dropped.WithLabelValues(string(reason)).Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Dropped[reason]++
}

func (m *Metrics) setElapsed(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Elapsed = d
}

// Stats returns a copy of the current counters.
func (m *Metrics) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		Sent:      copyMap(m.stats.Sent),
		Delivered: copyMap(m.stats.Delivered),
		Dropped:   copyMap(m.stats.Dropped),
		Elapsed:   m.stats.Elapsed,
	}
	if m.tDigest.Count() > 0 {
		s.DelayP50 = time.Duration(m.tDigest.Quantile(0.5))
		s.DelayP99 = time.Duration(m.tDigest.Quantile(0.99))
	}
	return s
}

func copyMap[K comparable](m map[K]int) map[K]int {
	res := make(map[K]int, len(m))
	for k, v := range m {
		res[k] = v
	}
	return res
}
