package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const latencyWindow = 100

// Metrics holds in-process counters for the call bridge.
type Metrics struct {
	mu sync.RWMutex

	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64

	EndpointRequests map[string]int64
	EndpointErrors   map[string]int64
	EndpointLatency  map[string][]time.Duration

	// Gateway (LiveKit, Twilio) calls
	ServiceCalls   map[string]int64
	ServiceErrors  map[string]int64
	ServiceLatency map[string][]time.Duration

	CircuitBreakerState    map[string]string
	CircuitBreakerFailures map[string]int64

	CallsInitiated   int64
	CallTransitions  map[string]int64 // by target status
	WebhookEvents    map[string]int64 // by webhook kind
	WebhookDuplicate map[string]int64
	RoomMismatches   int64

	StartTime time.Time
}

var globalMetrics = newMetrics()

func newMetrics() *Metrics {
	return &Metrics{
		EndpointRequests:       make(map[string]int64),
		EndpointErrors:         make(map[string]int64),
		EndpointLatency:        make(map[string][]time.Duration),
		ServiceCalls:           make(map[string]int64),
		ServiceErrors:          make(map[string]int64),
		ServiceLatency:         make(map[string][]time.Duration),
		CircuitBreakerState:    make(map[string]string),
		CircuitBreakerFailures: make(map[string]int64),
		CallTransitions:        make(map[string]int64),
		WebhookEvents:          make(map[string]int64),
		WebhookDuplicate:       make(map[string]int64),
		StartTime:              time.Now(),
	}
}

// Reset clears all counters. Used by tests.
func Reset() {
	fresh := newMetrics()
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.TotalRequests = 0
	globalMetrics.SuccessfulRequests = 0
	globalMetrics.FailedRequests = 0
	globalMetrics.EndpointRequests = fresh.EndpointRequests
	globalMetrics.EndpointErrors = fresh.EndpointErrors
	globalMetrics.EndpointLatency = fresh.EndpointLatency
	globalMetrics.ServiceCalls = fresh.ServiceCalls
	globalMetrics.ServiceErrors = fresh.ServiceErrors
	globalMetrics.ServiceLatency = fresh.ServiceLatency
	globalMetrics.CircuitBreakerState = fresh.CircuitBreakerState
	globalMetrics.CircuitBreakerFailures = fresh.CircuitBreakerFailures
	globalMetrics.CallsInitiated = 0
	globalMetrics.CallTransitions = fresh.CallTransitions
	globalMetrics.WebhookEvents = fresh.WebhookEvents
	globalMetrics.WebhookDuplicate = fresh.WebhookDuplicate
	globalMetrics.RoomMismatches = 0
	globalMetrics.StartTime = fresh.StartTime
}

func appendLatency(window map[string][]time.Duration, key string, latency time.Duration) {
	if len(window[key]) >= latencyWindow {
		window[key] = window[key][1:]
	}
	window[key] = append(window[key], latency)
}

// RecordRequest records an HTTP request
func RecordRequest(endpoint string, success bool, latency time.Duration) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.TotalRequests++
	if success {
		globalMetrics.SuccessfulRequests++
	} else {
		globalMetrics.FailedRequests++
		globalMetrics.EndpointErrors[endpoint]++
	}
	globalMetrics.EndpointRequests[endpoint]++
	appendLatency(globalMetrics.EndpointLatency, endpoint, latency)
}

// RecordServiceCall records a call to an external gateway
func RecordServiceCall(service string, success bool, latency time.Duration) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.ServiceCalls[service]++
	if !success {
		globalMetrics.ServiceErrors[service]++
	}
	appendLatency(globalMetrics.ServiceLatency, service, latency)
}

// UpdateCircuitBreaker updates circuit breaker metrics
func UpdateCircuitBreaker(service, state string, failures int64) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.CircuitBreakerState[service] = state
	globalMetrics.CircuitBreakerFailures[service] = failures
}

func RecordCallInitiated() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.CallsInitiated++
}

func RecordCallTransition(status string) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.CallTransitions[status]++
}

func RecordWebhook(kind string, duplicate bool) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.WebhookEvents[kind]++
	if duplicate {
		globalMetrics.WebhookDuplicate[kind]++
	}
}

func RecordRoomMismatch() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.RoomMismatches++
}

func averageSeconds(window map[string][]time.Duration) map[string]float64 {
	out := make(map[string]float64, len(window))
	for key, latencies := range window {
		if len(latencies) == 0 {
			continue
		}
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		out[key] = sum.Seconds() / float64(len(latencies))
	}
	return out
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// GetMetrics returns a snapshot of current metrics
func GetMetrics() map[string]interface{} {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	states := make(map[string]string, len(globalMetrics.CircuitBreakerState))
	for k, v := range globalMetrics.CircuitBreakerState {
		states[k] = v
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(globalMetrics.StartTime).Seconds(),
		"requests": map[string]interface{}{
			"total":      globalMetrics.TotalRequests,
			"successful": globalMetrics.SuccessfulRequests,
			"failed":     globalMetrics.FailedRequests,
		},
		"endpoints": map[string]interface{}{
			"requests":            copyCounts(globalMetrics.EndpointRequests),
			"errors":              copyCounts(globalMetrics.EndpointErrors),
			"latency_avg_seconds": averageSeconds(globalMetrics.EndpointLatency),
		},
		"services": map[string]interface{}{
			"calls":               copyCounts(globalMetrics.ServiceCalls),
			"errors":              copyCounts(globalMetrics.ServiceErrors),
			"latency_avg_seconds": averageSeconds(globalMetrics.ServiceLatency),
		},
		"circuit_breakers": map[string]interface{}{
			"state":    states,
			"failures": copyCounts(globalMetrics.CircuitBreakerFailures),
		},
		"calls": map[string]interface{}{
			"initiated":       globalMetrics.CallsInitiated,
			"transitions":     copyCounts(globalMetrics.CallTransitions),
			"room_mismatches": globalMetrics.RoomMismatches,
		},
		"webhooks": map[string]interface{}{
			"events":     copyCounts(globalMetrics.WebhookEvents),
			"duplicates": copyCounts(globalMetrics.WebhookDuplicate),
		},
	}
}

func writeCounter(b *strings.Builder, name, help, label string, values map[string]int64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

// GetPrometheusMetrics returns metrics in Prometheus text format
func GetPrometheusMetrics() string {
	m := GetMetrics()
	var b strings.Builder

	b.WriteString("# HELP callbridge_uptime_seconds Uptime in seconds\n")
	b.WriteString("# TYPE callbridge_uptime_seconds gauge\n")
	fmt.Fprintf(&b, "callbridge_uptime_seconds %.2f\n", m["uptime_seconds"].(float64))

	reqs := m["requests"].(map[string]interface{})
	b.WriteString("# HELP callbridge_requests_total Total number of requests\n")
	b.WriteString("# TYPE callbridge_requests_total counter\n")
	fmt.Fprintf(&b, "callbridge_requests_total{status=\"successful\"} %d\n", reqs["successful"].(int64))
	fmt.Fprintf(&b, "callbridge_requests_total{status=\"failed\"} %d\n", reqs["failed"].(int64))

	endpoints := m["endpoints"].(map[string]interface{})
	writeCounter(&b, "callbridge_endpoint_requests_total", "Total requests per endpoint", "endpoint", endpoints["requests"].(map[string]int64))

	services := m["services"].(map[string]interface{})
	writeCounter(&b, "callbridge_gateway_calls_total", "Total gateway calls per service", "service", services["calls"].(map[string]int64))
	writeCounter(&b, "callbridge_gateway_errors_total", "Total gateway errors per service", "service", services["errors"].(map[string]int64))

	calls := m["calls"].(map[string]interface{})
	b.WriteString("# HELP callbridge_calls_initiated_total Calls accepted by /call/initiate\n")
	b.WriteString("# TYPE callbridge_calls_initiated_total counter\n")
	fmt.Fprintf(&b, "callbridge_calls_initiated_total %d\n", calls["initiated"].(int64))
	writeCounter(&b, "callbridge_call_transitions_total", "Call status transitions by target status", "status", calls["transitions"].(map[string]int64))

	webhooks := m["webhooks"].(map[string]interface{})
	writeCounter(&b, "callbridge_webhook_events_total", "Webhook deliveries by kind", "kind", webhooks["events"].(map[string]int64))
	writeCounter(&b, "callbridge_webhook_duplicates_total", "Redelivered webhook events by kind", "kind", webhooks["duplicates"].(map[string]int64))

	return b.String()
}
