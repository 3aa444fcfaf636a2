package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordSend(true, 1)
		m.RecordReceive(false, 0)
		m.IncChannelClears()
		m.RecordEscalation("normal", "warning", 1)
		m.RecordTaskRestart("receiver", "stale_heartbeat")
		m.RecordDeviceRestart("restart_threshold")
		m.RecordCycle(time.Millisecond)
		m.SetMemory(1, 1, 1)
	})
	assert.Equal(t, MetricsSnapshot{}, m.GetSnapshot())
}

func TestIndependentRegistries(t *testing.T) {
	a := NewMetrics(nil)
	b := NewMetrics(nil)

	a.RecordSend(true, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.ChannelSends.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ChannelSends.WithLabelValues("ok")))
}

func TestChannelMetrics(t *testing.T) {
	m := NewMetrics(nil)
	m.SetChannelCapacity(10)

	m.RecordSend(true, 1)
	m.RecordSend(true, 2)
	m.RecordSend(false, 2)
	m.RecordReceive(true, 1)
	m.RecordReceive(false, 0)
	m.IncChannelClears()

	assert.Equal(t, 10.0, testutil.ToFloat64(m.ChannelCapacity))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChannelSends.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChannelSends.WithLabelValues("dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChannelReceives.WithLabelValues("timeout")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ChannelDepth))

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap.Sent)
	assert.Equal(t, int64(1), snap.Dropped)
	assert.Equal(t, int64(1), snap.Received)
	assert.Equal(t, int64(1), snap.Timeouts)
}

func TestSupervisorMetrics(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordEscalation("normal", "warning", 1)
	m.RecordTaskRestart("receiver", "stale_heartbeat")
	m.RecordTaskRestart("receiver", "stale_heartbeat")
	m.SetReceiverRestarts(2)
	m.RecordDeviceRestart("restart_threshold")
	m.RecordCycle(2 * time.Millisecond)
	m.SetHeartbeatAge("generator", 1500*time.Millisecond)
	m.SetMemory(2048, 1024, 1<<30)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReceiverLevel))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TaskRestarts.WithLabelValues("receiver", "stale_heartbeat")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReceiverRestarts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeviceRestarts.WithLabelValues("restart_threshold")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.HeartbeatAge.WithLabelValues("generator")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.HeapMinFreeBytes))

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap.TaskRestarts)
	assert.Equal(t, int64(1), snap.DeviceRestarts)
	assert.Equal(t, int64(1), snap.Cycles)
}

func TestHandlerExposesMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(nil)

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "triad_uptime_seconds")
	assert.Contains(t, body, `triad_http_requests_total{method="GET",path="/ping",status="200"} 1`)
}

func TestMiddlewareLabels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(nil)

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/stream", func(c *gin.Context) { c.Status(http.StatusSwitchingProtocols) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/.env", nil))

	upgrade := httptest.NewRequest(http.MethodGet, "/stream", nil)
	upgrade.Header.Set("Connection", "Upgrade")
	upgrade.Header.Set("Upgrade", "websocket")
	router.ServeHTTP(httptest.NewRecorder(), upgrade)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
}
