package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lmi-check/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{MockRateThreshold: 0.25})

	alerts := a.Evaluate(&MetricsSnapshot{
		ChecksTotal:   100,
		ChecksMock:    10,
		MockRate:      0.10,
		LookbackHours: 24,
	})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_MockFallbackRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{MockRateThreshold: 0.25})

	alerts := a.Evaluate(&MetricsSnapshot{
		ChecksTotal:   20,
		ChecksMock:    8,
		MockRate:      0.4,
		LookbackHours: 24,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertMockFallbackRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Contains(t, alerts[0].Message, "8 mock / 20 checks")
}

func TestAlerter_Evaluate_MinimumChecksRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{MockRateThreshold: 0.25})

	alerts := a.Evaluate(&MetricsSnapshot{
		ChecksTotal: 3,
		ChecksMock:  3,
		MockRate:    1,
	})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_CircuitOpen(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{MockRateThreshold: 0.25})

	alerts := a.Evaluate(&MetricsSnapshot{OpenBreakers: []string{"census", "esri"}})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCircuitOpen, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "census, esri")
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{MockRateThreshold: 0.1})

	alerts := a.Evaluate(&MetricsSnapshot{
		ChecksTotal:  10,
		ChecksMock:   10,
		MockRate:     1,
		OpenBreakers: []string{"acs"},
	})
	assert.Len(t, alerts, 2)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertMockFallbackRate])
	assert.True(t, types[AlertCircuitOpen])
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertMockFallbackRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertCircuitOpen, Severity: "medium", Message: "test alert 2"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertCircuitOpen, Message: "test"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertCircuitOpen, Message: "test"}})
	assert.Equal(t, 0, sent)
}
