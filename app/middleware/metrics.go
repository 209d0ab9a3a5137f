package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests by route template and status class",
		},
		[]string{"method", "route", "class", "tenant"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "outreach",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request latencies in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	apiInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "outreach",
			Subsystem: "api",
			Name:      "inflight_requests",
			Help:      "Number of API requests currently being served",
		},
	)

	// Lifecycle commands (schedule, pause, resume, cancel) by outcome
	campaignCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "api",
			Name:      "campaign_commands_total",
			Help:      "Campaign lifecycle commands by command and outcome",
		},
		[]string{"command", "outcome"},
	)
)

var campaignCommands = map[string]struct{}{
	"schedule": {},
	"pause":    {},
	"resume":   {},
	"cancel":   {},
}

// Metrics records request counters and latencies labelled by the matched route template.
// Requests to any of skipPaths (health probes, the scrape endpoint) are not recorded.
func Metrics(skipPaths ...string) fiber.Handler {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c fiber.Ctx) error {
		if _, ok := skip[c.Path()]; ok {
			return c.Next()
		}

		start := time.Now()
		apiInFlight.Inc()
		defer apiInFlight.Dec()

		err := c.Next()

		status := responseStatus(c, err)
		route := routeTemplate(c)
		method := c.Method()

		tenant := "anonymous"
		if _, ok := GetTenantIDFromContext(c); ok {
			tenant = "authenticated"
		}

		apiRequestsTotal.WithLabelValues(method, route, statusClass(status), tenant).Inc()
		apiRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())

		if cmd, ok := campaignCommand(method, route); ok {
			outcome := "accepted"
			if status >= fiber.StatusBadRequest {
				outcome = "rejected"
			}
			campaignCommandsTotal.WithLabelValues(cmd, outcome).Inc()
		}

		return err
	}
}

// responseStatus resolves the status before the app error handler has written it
func responseStatus(c fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

func routeTemplate(c fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" {
		return r.Path
	}
	return "unmatched"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func campaignCommand(method, route string) (string, bool) {
	if method != fiber.MethodPost || !strings.HasPrefix(route, "/api/v1/campaigns/") {
		return "", false
	}
	cmd := route[strings.LastIndex(route, "/")+1:]
	if _, ok := campaignCommands[cmd]; !ok {
		return "", false
	}
	return cmd, true
}
