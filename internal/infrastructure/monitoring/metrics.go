package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, which keeps task tests free of registry setup.
type Metrics struct {
	registry *prometheus.Registry

	// Channel metrics
	ChannelDepth    prometheus.Gauge
	ChannelCapacity prometheus.Gauge
	ChannelSends    *prometheus.CounterVec
	ChannelReceives *prometheus.CounterVec
	ChannelClears   prometheus.Counter

	// Receiver metrics
	ReceiverLevel         prometheus.Gauge
	EscalationTransitions *prometheus.CounterVec
	AllocFailures         prometheus.Counter

	// Supervisor metrics
	HeartbeatAge     *prometheus.GaugeVec
	TaskRestarts     *prometheus.CounterVec
	DeviceRestarts   *prometheus.CounterVec
	SupervisorCycles prometheus.Counter
	CycleDuration    prometheus.Histogram
	LowMemoryAlerts  prometheus.Counter
	ReceiverRestarts prometheus.Gauge
	WatchdogExpiries *prometheus.CounterVec
	TasksLive        prometheus.Gauge
	HeapFreeBytes    prometheus.Gauge
	HeapMinFreeBytes prometheus.Gauge
	HostFreeBytes    prometheus.Gauge

	// Diagnostics metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	WSConnections   prometheus.Gauge
	WSMessages      *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds running totals for the JSON status API
type MetricsSnapshot struct {
	Sent           int64 `json:"sent"`
	Dropped        int64 `json:"dropped"`
	Received       int64 `json:"received"`
	Timeouts       int64 `json:"timeouts"`
	TaskRestarts   int64 `json:"task_restarts"`
	DeviceRestarts int64 `json:"device_restarts"`
	Cycles         int64 `json:"supervisor_cycles"`
}

// NewMetrics creates a metrics collector registered on reg. A nil reg gets
// a fresh registry, so independent instances never collide.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// Channel metrics
		ChannelDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "triad_channel_depth",
				Help: "Items currently queued in the bounded channel",
			},
		),
		ChannelCapacity: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "triad_channel_capacity",
				Help: "Capacity of the bounded channel",
			},
		),
		ChannelSends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triad_channel_sends_total",
				Help: "Generator send attempts by result",
			},
			[]string{"result"},
		),
		ChannelReceives: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triad_channel_receives_total",
				Help: "Receiver receive attempts by result",
			},
			[]string{"result"},
		),
		ChannelClears: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "triad_channel_clears_total",
				Help: "Channel clears performed during receiver recovery",
			},
		),

		// Receiver metrics
		ReceiverLevel: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "triad_receiver_escalation_level",
				Help: "Current receiver escalation level (0 normal .. 4 terminated)",
			},
		),
		EscalationTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triad_receiver_escalation_transitions_total",
				Help: "Receiver escalation level changes",
			},
			[]string{"from", "to"},
		),
		AllocFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "triad_receiver_alloc_failures_total",
				Help: "Receiver iterations aborted by allocation failure",
			},
		),

		// Supervisor metrics
		HeartbeatAge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "triad_heartbeat_age_seconds",
				Help: "Time since the task last stamped its heartbeat, as seen by the supervisor",
			},
			[]string{"task"},
		),
		TaskRestarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triad_task_restarts_total",
				Help: "Task recreations performed by the supervisor",
			},
			[]string{"task", "reason"},
		),
		DeviceRestarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triad_device_restarts_total",
				Help: "Device restarts requested",
			},
			[]string{"reason"},
		),
		SupervisorCycles: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "triad_supervisor_cycles_total",
				Help: "Completed supervisor cycles",
			},
		),
		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "triad_supervisor_cycle_duration_seconds",
				Help:    "Supervisor cycle duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 2.5},
			},
		),
		LowMemoryAlerts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "triad_low_memory_alerts_total",
				Help: "Supervisor cycles that found minimum free heap below the floor",
			},
		),
		ReceiverRestarts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "triad_receiver_restart_count",
				Help: "Consecutive receiver restarts charged to the restart budget",
			},
		),
		WatchdogExpiries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triad_watchdog_expirations_total",
				Help: "Task watchdog expirations",
			},
			[]string{"task"},
		),
		TasksLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "triad_tasks_live",
				Help: "Number of running tasks",
			},
		),
		HeapFreeBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "triad_heap_free_bytes",
				Help: "Free bytes in the device heap",
			},
		),
		HeapMinFreeBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "triad_heap_min_free_bytes",
				Help: "Lowest free bytes ever observed in the device heap",
			},
		),
		HostFreeBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "triad_host_free_bytes",
				Help: "Free memory reported by the host",
			},
		),

		// Diagnostics metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triad_http_requests_total",
				Help: "Total number of diagnostics HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "triad_http_request_duration_seconds",
				Help:    "Diagnostics HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "triad_ws_connections",
				Help: "Number of active status stream connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triad_ws_messages_total",
				Help: "Status stream messages by outcome",
			},
			[]string{"result"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "triad_uptime_seconds",
			Help: "Uptime of this boot in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:      m.registry,
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// GetSnapshot returns the running totals
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// SetChannelCapacity records the configured capacity
func (m *Metrics) SetChannelCapacity(capacity int) {
	if m == nil {
		return
	}
	m.ChannelCapacity.Set(float64(capacity))
}

// RecordSend records one generator send and the resulting queue depth
func (m *Metrics) RecordSend(ok bool, depth int) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "dropped"
	}
	m.ChannelSends.WithLabelValues(result).Inc()
	m.ChannelDepth.Set(float64(depth))

	m.mu.Lock()
	if ok {
		m.snapshot.Sent++
	} else {
		m.snapshot.Dropped++
	}
	m.mu.Unlock()
}

// RecordReceive records one receive attempt and the resulting queue depth
func (m *Metrics) RecordReceive(ok bool, depth int) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "timeout"
	}
	m.ChannelReceives.WithLabelValues(result).Inc()
	m.ChannelDepth.Set(float64(depth))

	m.mu.Lock()
	if ok {
		m.snapshot.Received++
	} else {
		m.snapshot.Timeouts++
	}
	m.mu.Unlock()
}

// IncChannelClears counts a recovery clear
func (m *Metrics) IncChannelClears() {
	if m == nil {
		return
	}
	m.ChannelClears.Inc()
	m.ChannelDepth.Set(0)
}

// RecordEscalation records a receiver level change
func (m *Metrics) RecordEscalation(from, to string, level int) {
	if m == nil {
		return
	}
	m.EscalationTransitions.WithLabelValues(from, to).Inc()
	m.ReceiverLevel.Set(float64(level))
}

// IncAllocFailures counts an aborted receiver iteration
func (m *Metrics) IncAllocFailures() {
	if m == nil {
		return
	}
	m.AllocFailures.Inc()
}

// SetHeartbeatAge records how stale a task's heartbeat looked
func (m *Metrics) SetHeartbeatAge(task string, age time.Duration) {
	if m == nil {
		return
	}
	m.HeartbeatAge.WithLabelValues(task).Set(age.Seconds())
}

// RecordTaskRestart counts a supervisor recreation
func (m *Metrics) RecordTaskRestart(task, reason string) {
	if m == nil {
		return
	}
	m.TaskRestarts.WithLabelValues(task, reason).Inc()
	m.mu.Lock()
	m.snapshot.TaskRestarts++
	m.mu.Unlock()
}

// SetReceiverRestarts records the restart budget's consecutive count
func (m *Metrics) SetReceiverRestarts(count int) {
	if m == nil {
		return
	}
	m.ReceiverRestarts.Set(float64(count))
}

// RecordDeviceRestart counts a device restart request
func (m *Metrics) RecordDeviceRestart(reason string) {
	if m == nil {
		return
	}
	m.DeviceRestarts.WithLabelValues(reason).Inc()
	m.mu.Lock()
	m.snapshot.DeviceRestarts++
	m.mu.Unlock()
}

// RecordCycle records one supervisor cycle
func (m *Metrics) RecordCycle(duration time.Duration) {
	if m == nil {
		return
	}
	m.SupervisorCycles.Inc()
	m.CycleDuration.Observe(duration.Seconds())
	m.mu.Lock()
	m.snapshot.Cycles++
	m.mu.Unlock()
}

// IncLowMemoryAlerts counts a low-memory alert
func (m *Metrics) IncLowMemoryAlerts() {
	if m == nil {
		return
	}
	m.LowMemoryAlerts.Inc()
}

// RecordWatchdogExpiry counts a task watchdog expiry
func (m *Metrics) RecordWatchdogExpiry(task string) {
	if m == nil {
		return
	}
	m.WatchdogExpiries.WithLabelValues(task).Inc()
}

// SetTasksLive records the number of running tasks
func (m *Metrics) SetTasksLive(count int) {
	if m == nil {
		return
	}
	m.TasksLive.Set(float64(count))
}

// SetMemory records heap and host memory
func (m *Metrics) SetMemory(heapFree, heapMinFree int64, hostFree uint64) {
	if m == nil {
		return
	}
	m.HeapFreeBytes.Set(float64(heapFree))
	m.HeapMinFreeBytes.Set(float64(heapMinFree))
	m.HostFreeBytes.Set(float64(hostFree))
}

// RecordHTTPRequest records a diagnostics HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWSMessage records a status stream message outcome ("sent" or "dropped")
func (m *Metrics) RecordWSMessage(result string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(result).Inc()
}

// IncWSConnections increments status stream connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements status stream connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
