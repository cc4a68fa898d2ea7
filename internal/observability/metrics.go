package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "le0",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total status HTTP requests.",
		},
		[]string{"instance", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "le0",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"instance", "method", "path", "status"},
	)
	linesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "le0",
			Subsystem: "irc",
			Name:      "lines_received_total",
			Help:      "Inbound lines by decode result.",
		},
		[]string{"result"},
	)
	linesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "le0",
			Subsystem: "irc",
			Name:      "lines_sent_total",
			Help:      "Paced outbound lines by destination kind.",
		},
		[]string{"kind"},
	)
	outboundDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "le0",
			Subsystem: "irc",
			Name:      "outbound_queue_depth",
			Help:      "Lines waiting for the pacer.",
		},
	)
	registrationState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "le0",
			Subsystem: "irc",
			Name:      "registration_state",
			Help:      "1 for the current registration state, 0 otherwise.",
		},
		[]string{"state"},
	)
	commandsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "le0",
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Bot commands by name and outcome.",
		},
		[]string{"command", "outcome"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "le0",
			Subsystem: "dispatch",
			Name:      "command_duration_seconds",
			Help:      "Handler execution time in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	stateMu   sync.Mutex
	lastState string
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			linesReceived,
			linesSent,
			outboundDepth,
			registrationState,
			commandsDispatched,
			commandDuration,
		)
	})
}

func RecordHTTPRequest(instance, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(instance, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(instance, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordLineReceived counts one inbound line. result is "ok", "too_long" or
// "malformed".
func RecordLineReceived(result string) {
	RegisterMetrics()
	linesReceived.WithLabelValues(result).Inc()
}

func RecordLineSent(target string) {
	RegisterMetrics()
	linesSent.WithLabelValues(targetKind(target)).Inc()
}

func SetOutboundDepth(n int) {
	RegisterMetrics()
	outboundDepth.Set(float64(n))
}

func SetRegistrationState(state string) {
	RegisterMetrics()
	stateMu.Lock()
	defer stateMu.Unlock()
	if lastState != "" && lastState != state {
		registrationState.WithLabelValues(lastState).Set(0)
	}
	registrationState.WithLabelValues(state).Set(1)
	lastState = state
}

func RecordCommand(command, outcome string, duration time.Duration) {
	RegisterMetrics()
	commandsDispatched.WithLabelValues(command, outcome).Inc()
	if duration > 0 {
		commandDuration.WithLabelValues(command).Observe(duration.Seconds())
	}
}

func targetKind(target string) string {
	if target == "" {
		return "server"
	}
	switch target[0] {
	case '#', '&', '+', '!':
		return "channel"
	case '*':
		return "server"
	}
	return "private"
}
