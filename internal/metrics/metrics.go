// Package metrics exposes the daemon's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	togglesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timesheet_toggles_total",
		Help: "Toggle operations by requested activity and outcome",
	}, []string{"activity", "outcome"}) // outcome=started|ended|switched|rejected

	autoShutdownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timesheet_auto_shutdowns_total",
		Help: "Sessions closed by the auto-shutdown worker",
	})

	lunchRemindersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timesheet_lunch_reminders_total",
		Help: "Lunch reminders sent",
	})

	mnemonicsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timesheet_mnemonics_swept_total",
		Help: "Expired pending mnemonics removed by the sweeper",
	})

	workerTickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timesheet_worker_tick_duration_seconds",
		Help:    "Worker tick latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"worker"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timesheet_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	botCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timesheet_bot_commands_total",
		Help: "Bot commands dispatched by command and outcome",
	}, []string{"command", "outcome"}) // outcome=ok|error
)

// RecordToggle counts one toggle operation.
func RecordToggle(activity, outcome string) {
	togglesTotal.WithLabelValues(activity, outcome).Inc()
}

// RecordAutoShutdown counts one forced session closure.
func RecordAutoShutdown() { autoShutdownsTotal.Inc() }

// RecordLunchReminder counts one reminder sent.
func RecordLunchReminder() { lunchRemindersTotal.Inc() }

// RecordMnemonicsSwept counts swept credential rows.
func RecordMnemonicsSwept(n int64) { mnemonicsSweptTotal.Add(float64(n)) }

// ObserveWorkerTick records one worker tick's duration.
func ObserveWorkerTick(worker string, seconds float64) {
	workerTickDuration.WithLabelValues(worker).Observe(seconds)
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, path, status string, seconds float64) {
	httpRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}

// RecordBotCommand counts one dispatched bot command.
func RecordBotCommand(command, outcome string) {
	botCommandsTotal.WithLabelValues(command, outcome).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
