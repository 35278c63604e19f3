package metrics

import (
	"fmt"
	"sync"
	"time"
)

// Metrics holds pipeline metrics
type Metrics struct {
	mu sync.RWMutex

	// Session metrics
	SessionsOpened int64
	SessionsClosed int64
	ActiveSessions int64
	Interruptions  int64

	// Turn metrics
	TurnsProcessed int64
	TurnsDegraded  int64

	// Response cache
	CacheHits   int64
	CacheMisses int64

	// Provider metrics
	ProviderCalls   map[string]int64
	ProviderErrors  map[string]int64
	ProviderLatency map[string][]time.Duration

	// Circuit breaker metrics
	CircuitBreakerState    map[string]string
	CircuitBreakerFailures map[string]int64

	// Start time
	StartTime time.Time
}

var globalMetrics = &Metrics{
	ProviderCalls:          make(map[string]int64),
	ProviderErrors:         make(map[string]int64),
	ProviderLatency:        make(map[string][]time.Duration),
	CircuitBreakerState:    make(map[string]string),
	CircuitBreakerFailures: make(map[string]int64),
	StartTime:              time.Now(),
}

// RecordSessionOpened records a new call session
func RecordSessionOpened() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.SessionsOpened++
	globalMetrics.ActiveSessions++
}

// RecordSessionClosed records a call session teardown
func RecordSessionClosed() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.SessionsClosed++
	if globalMetrics.ActiveSessions > 0 {
		globalMetrics.ActiveSessions--
	}
}

// RecordInterruption records a barge-in
func RecordInterruption() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.Interruptions++
}

// RecordTurn records one completed conversation turn
func RecordTurn(degraded bool) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.TurnsProcessed++
	if degraded {
		globalMetrics.TurnsDegraded++
	}
}

// RecordCacheLookup records a response cache hit or miss
func RecordCacheLookup(hit bool) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	if hit {
		globalMetrics.CacheHits++
	} else {
		globalMetrics.CacheMisses++
	}
}

// RecordProviderCall records an external provider call
func RecordProviderCall(service string, success bool, latency time.Duration) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.ProviderCalls[service]++
	if !success {
		globalMetrics.ProviderErrors[service]++
	}

	// Keep only last 100 latency measurements per service
	if len(globalMetrics.ProviderLatency[service]) >= 100 {
		globalMetrics.ProviderLatency[service] = globalMetrics.ProviderLatency[service][1:]
	}
	globalMetrics.ProviderLatency[service] = append(globalMetrics.ProviderLatency[service], latency)
}

// UpdateCircuitBreaker updates circuit breaker metrics
func UpdateCircuitBreaker(service, state string, failures int64) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.CircuitBreakerState[service] = state
	globalMetrics.CircuitBreakerFailures[service] = failures
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	providerAvgLatency := make(map[string]float64)
	for service, latencies := range globalMetrics.ProviderLatency {
		if len(latencies) > 0 {
			var sum time.Duration
			for _, l := range latencies {
				sum += l
			}
			providerAvgLatency[service] = sum.Seconds() / float64(len(latencies))
		}
	}

	uptime := time.Since(globalMetrics.StartTime)

	providerCalls := make(map[string]int64, len(globalMetrics.ProviderCalls))
	for k, v := range globalMetrics.ProviderCalls {
		providerCalls[k] = v
	}
	providerErrors := make(map[string]int64, len(globalMetrics.ProviderErrors))
	for k, v := range globalMetrics.ProviderErrors {
		providerErrors[k] = v
	}
	breakerState := make(map[string]string, len(globalMetrics.CircuitBreakerState))
	for k, v := range globalMetrics.CircuitBreakerState {
		breakerState[k] = v
	}
	breakerFailures := make(map[string]int64, len(globalMetrics.CircuitBreakerFailures))
	for k, v := range globalMetrics.CircuitBreakerFailures {
		breakerFailures[k] = v
	}

	return map[string]interface{}{
		"uptime_seconds": uptime.Seconds(),
		"sessions": map[string]interface{}{
			"opened":        globalMetrics.SessionsOpened,
			"closed":        globalMetrics.SessionsClosed,
			"active":        globalMetrics.ActiveSessions,
			"interruptions": globalMetrics.Interruptions,
		},
		"turns": map[string]interface{}{
			"processed": globalMetrics.TurnsProcessed,
			"degraded":  globalMetrics.TurnsDegraded,
		},
		"cache": map[string]interface{}{
			"hits":   globalMetrics.CacheHits,
			"misses": globalMetrics.CacheMisses,
		},
		"providers": map[string]interface{}{
			"calls":               providerCalls,
			"errors":              providerErrors,
			"latency_avg_seconds": providerAvgLatency,
		},
		"circuit_breakers": map[string]interface{}{
			"state":    breakerState,
			"failures": breakerFailures,
		},
	}
}

// GetPrometheusMetrics returns metrics in Prometheus format
func GetPrometheusMetrics() string {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	var output string

	output += "# HELP voice_uptime_seconds Pipeline uptime in seconds\n"
	output += "# TYPE voice_uptime_seconds gauge\n"
	output += fmt.Sprintf("voice_uptime_seconds %.2f\n", time.Since(globalMetrics.StartTime).Seconds())

	output += "# HELP voice_sessions_total Call sessions by lifecycle event\n"
	output += "# TYPE voice_sessions_total counter\n"
	output += fmt.Sprintf("voice_sessions_total{event=\"opened\"} %d\n", globalMetrics.SessionsOpened)
	output += fmt.Sprintf("voice_sessions_total{event=\"closed\"} %d\n", globalMetrics.SessionsClosed)
	output += fmt.Sprintf("voice_sessions_total{event=\"interrupted\"} %d\n", globalMetrics.Interruptions)

	output += "# HELP voice_sessions_active Currently active call sessions\n"
	output += "# TYPE voice_sessions_active gauge\n"
	output += fmt.Sprintf("voice_sessions_active %d\n", globalMetrics.ActiveSessions)

	output += "# HELP voice_turns_total Conversation turns processed\n"
	output += "# TYPE voice_turns_total counter\n"
	output += fmt.Sprintf("voice_turns_total{result=\"processed\"} %d\n", globalMetrics.TurnsProcessed)
	output += fmt.Sprintf("voice_turns_total{result=\"degraded\"} %d\n", globalMetrics.TurnsDegraded)

	output += "# HELP voice_cache_lookups_total Response cache lookups\n"
	output += "# TYPE voice_cache_lookups_total counter\n"
	output += fmt.Sprintf("voice_cache_lookups_total{result=\"hit\"} %d\n", globalMetrics.CacheHits)
	output += fmt.Sprintf("voice_cache_lookups_total{result=\"miss\"} %d\n", globalMetrics.CacheMisses)

	output += "# HELP voice_provider_calls_total Calls per external provider\n"
	output += "# TYPE voice_provider_calls_total counter\n"
	for service, count := range globalMetrics.ProviderCalls {
		output += fmt.Sprintf("voice_provider_calls_total{service=\"%s\"} %d\n", service, count)
	}

	output += "# HELP voice_provider_errors_total Errors per external provider\n"
	output += "# TYPE voice_provider_errors_total counter\n"
	for service, count := range globalMetrics.ProviderErrors {
		output += fmt.Sprintf("voice_provider_errors_total{service=\"%s\"} %d\n", service, count)
	}

	output += "# HELP voice_breaker_failures Current window failures per breaker\n"
	output += "# TYPE voice_breaker_failures gauge\n"
	for service, count := range globalMetrics.CircuitBreakerFailures {
		state := globalMetrics.CircuitBreakerState[service]
		output += fmt.Sprintf("voice_breaker_failures{service=\"%s\",state=\"%s\"} %d\n", service, state, count)
	}

	return output
}
