// Package metrics holds the Prometheus collectors of the desk.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dealdesk"

var (
	marketRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "market",
		Name:      "requests_total",
		Help:      "Market API requests by HTTP method and outcome.",
	}, []string{"method", "outcome"})

	marketLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "market",
		Name:      "request_duration_seconds",
		Help:      "Market API latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	polls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "deal",
		Name:      "polls_total",
		Help:      "Deal refreshes by outcome.",
	}, []string{"outcome"})

	actions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "deal",
		Name:      "actions_total",
		Help:      "Deal actions (sign, reject, save, wallet pushes) by outcome.",
	}, []string{"action", "outcome"})

	deposits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "escrow",
		Name:      "deposits_total",
		Help:      "Escrow deposit attempts by outcome.",
	}, []string{"outcome"})

	watchedDeals = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "deal",
		Name:      "watched",
		Help:      "Deals currently being polled.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Desk API requests by route and status.",
	}, []string{"route", "status"})

	httpActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "num_active_requests",
		Help:      "Requests that have yet to receive a response.",
	})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Desk API latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveMarketCall records one market API round trip.
func ObserveMarketCall(method string, start time.Time, err error) {
	marketRequests.WithLabelValues(method, outcome(err)).Inc()
	marketLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func ObservePoll(err error) {
	polls.WithLabelValues(outcome(err)).Inc()
}

func ObserveAction(action string, err error) {
	actions.WithLabelValues(action, outcome(err)).Inc()
}

func ObserveDeposit(err error) {
	deposits.WithLabelValues(outcome(err)).Inc()
}

func SetWatchedDeals(n int) {
	watchedDeals.Set(float64(n))
}

// Middleware counts desk API requests. The route label is the matched
// pattern, never the raw path, so deal ids do not blow up cardinality.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		httpActive.Inc()
		start := time.Now()

		err := c.Next()

		httpActive.Dec()
		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		httpLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
