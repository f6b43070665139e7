package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPoll(t *testing.T) {
	okBefore := testutil.ToFloat64(DevicePolls.WithLabelValues("ok"))
	failBefore := testutil.ToFloat64(DevicePolls.WithLabelValues("unreachable"))

	RecordPoll(20*time.Millisecond, nil)
	RecordPoll(2*time.Second, errors.New("timeout"))

	if got := testutil.ToFloat64(DevicePolls.WithLabelValues("ok")) - okBefore; got != 1 {
		t.Errorf("ok polls delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(DevicePolls.WithLabelValues("unreachable")) - failBefore; got != 1 {
		t.Errorf("unreachable polls delta = %v, want 1", got)
	}
}

func TestSetDeviceOnline(t *testing.T) {
	SetDeviceOnline(false, 4)
	if got := testutil.ToFloat64(DeviceOnline); got != 0 {
		t.Errorf("DeviceOnline = %v, want 0", got)
	}
	if got := testutil.ToFloat64(DeviceConsecutiveFailures); got != 4 {
		t.Errorf("DeviceConsecutiveFailures = %v, want 4", got)
	}

	SetDeviceOnline(true, 0)
	if got := testutil.ToFloat64(DeviceOnline); got != 1 {
		t.Errorf("DeviceOnline = %v, want 1", got)
	}
}

func TestRecordCommand(t *testing.T) {
	before := testutil.ToFloat64(DeviceCommands.WithLabelValues("setMode", "busy"))
	RecordCommand("setMode", "busy")
	if got := testutil.ToFloat64(DeviceCommands.WithLabelValues("setMode", "busy")) - before; got != 1 {
		t.Errorf("busy commands delta = %v, want 1", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequests.WithLabelValues("GET", "/api/snapshot", "200"))
	RecordAPIRequest("GET", "/api/snapshot", 200, 3*time.Millisecond)
	if got := testutil.ToFloat64(APIRequests.WithLabelValues("GET", "/api/snapshot", "200")) - before; got != 1 {
		t.Errorf("api requests delta = %v, want 1", got)
	}
}

func TestBreakerStateValue(t *testing.T) {
	tests := map[string]float64{
		"closed":    0,
		"half-open": 1,
		"open":      2,
		"":          0,
	}
	for state, want := range tests {
		if got := BreakerStateValue(state); got != want {
			t.Errorf("BreakerStateValue(%q) = %v, want %v", state, got, want)
		}
	}
}

func TestCollectorsDescribe(t *testing.T) {
	collectors := []prometheus.Collector{
		DevicePollDuration,
		DevicePolls,
		DeviceCommands,
		DeviceOnline,
		DeviceConsecutiveFailures,
		HistorySamples,
		SnapshotsPublished,
		HubSubscribers,
		HubDropped,
		CircuitBreakerState,
		CircuitBreakerTransitions,
		APIRequests,
		APIRequestDuration,
		BridgeMessages,
	}

	for _, c := range collectors {
		ch := make(chan *prometheus.Desc, 10)
		c.Describe(ch)
		close(ch)
		if len(ch) == 0 {
			t.Errorf("collector %T has no descriptors", c)
		}
	}
}
