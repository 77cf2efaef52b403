package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestRecordAndSnapshot(t *testing.T) {
	Reset()
	RecordRequest("/call/initiate", true, 10*time.Millisecond)
	RecordRequest("/call/initiate", false, 30*time.Millisecond)
	RecordCallInitiated()
	RecordCallTransition("queued")
	RecordWebhook("status", false)
	RecordWebhook("status", true)

	m := GetMetrics()
	reqs := m["requests"].(map[string]interface{})
	if reqs["total"].(int64) != 2 || reqs["failed"].(int64) != 1 {
		t.Fatalf("unexpected request counts: %v", reqs)
	}
	latency := m["endpoints"].(map[string]interface{})["latency_avg_seconds"].(map[string]float64)
	if got := latency["/call/initiate"]; got < 0.019 || got > 0.021 {
		t.Fatalf("expected ~0.02s average, got %f", got)
	}
	webhooks := m["webhooks"].(map[string]interface{})
	if webhooks["duplicates"].(map[string]int64)["status"] != 1 {
		t.Fatalf("expected one duplicate")
	}
}

func TestPrometheusOutput(t *testing.T) {
	Reset()
	RecordCallTransition("connected")
	RecordServiceCall("twilio", false, time.Millisecond)

	out := GetPrometheusMetrics()
	for _, want := range []string{
		`callbridge_call_transitions_total{status="connected"} 1`,
		`callbridge_gateway_errors_total{service="twilio"} 1`,
		"callbridge_calls_initiated_total 0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}
}
