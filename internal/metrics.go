package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 丟棄原因（dropped_messages_total 的 reason 標籤）
const (
	DropMalformed = "malformed"
	DropUnknown   = "unknown_type"
	DropNotJoined = "not_joined"
	DropInvalid   = "invalid_join"
	DropRejoin    = "rejoin"
)

// Metrics 中繼服務的 Prometheus 指標
//
// 每個實例擁有自己的 prometheus.Registry，
// 測試中可以同時建立多個 Relay 而不會重複註冊。
type Metrics struct {
	reg *prometheus.Registry

	connections *prometheus.GaugeVec
	rooms       prometheus.GaugeFunc
	members     prometheus.GaugeFunc
	received    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	delivered   prometheus.Counter
	skipped     prometheus.Counter
}

// NewMetrics 創建指標並註冊到獨立的 Registry
//
// rooms / members 由 registry 即時計算（GaugeFunc），不需要手動同步。
func NewMetrics(rooms *Registry) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "connections",
			Help:      "Live connections by session state.",
		}, []string{"state"}),
		rooms: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}, func() float64 { return float64(rooms.RoomCount()) }),
		members: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "room_members",
			Help:      "Players bound to a room.",
		}, func() float64 { return float64(rooms.MemberCount()) }),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "messages_received_total",
			Help:      "Inbound messages by decoded kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "messages_dropped_total",
			Help:      "Inbound messages ignored without broadcast.",
		}, []string{"reason"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "deliveries_total",
			Help:      "Outbound messages handed to a recipient.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "deliveries_skipped_total",
			Help:      "Recipients skipped because they were not open or their buffer was full.",
		}),
	}

	m.reg.MustRegister(
		m.connections,
		m.rooms,
		m.members,
		m.received,
		m.dropped,
		m.delivered,
		m.skipped,
		collectors.NewGoCollector(),
	)

	return m
}

// Handler 以 Prometheus 格式輸出指標
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry 底層 prometheus.Registry（測試用 testutil 讀取）
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) connectionOpened() {
	m.connections.WithLabelValues(string(StateUnjoined)).Inc()
}

func (m *Metrics) sessionJoined() {
	m.connections.WithLabelValues(string(StateUnjoined)).Dec()
	m.connections.WithLabelValues(string(StateJoined)).Inc()
}

func (m *Metrics) sessionLeft() {
	m.connections.WithLabelValues(string(StateJoined)).Dec()
	m.connections.WithLabelValues(string(StateTerminated)).Inc()
}

func (m *Metrics) connectionClosed(prev SessionState) {
	m.connections.WithLabelValues(string(prev)).Dec()
}

func (m *Metrics) messageReceived(kind MessageKind) {
	m.received.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) messageDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) fanOut(delivered, skipped int) {
	m.delivered.Add(float64(delivered))
	m.skipped.Add(float64(skipped))
}
