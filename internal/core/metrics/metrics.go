// Package metrics exposes engine and service activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solatis/verdict/internal/rules"
)

const namespace = "verdict"

// Evaluation status labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Collector records evaluation metrics into its own registry. It implements
// rules.Observer so an engine reports per-rule activity directly.
//
// Metrics:
//   - verdict_rule_evaluations_total: rules evaluated by rule_id and matched
//   - verdict_outcomes_total: records produced by typ
//   - verdict_evaluations_total: evaluation requests by status
//   - verdict_evaluation_duration_seconds: evaluation request duration
//   - verdict_rules_loaded: size of the active rule set
//   - verdict_rule_reloads_total: rule set reloads by result
type Collector struct {
	registry *prometheus.Registry

	ruleEvaluations    *prometheus.CounterVec
	outcomes           *prometheus.CounterVec
	evaluations        *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	rulesLoaded        prometheus.Gauge
	reloads            *prometheus.CounterVec
}

var _ rules.Observer = (*Collector)(nil)

// NewCollector creates and registers the metrics. A nil registry gets a fresh one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		ruleEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_evaluations_total",
				Help:      "Total number of rule evaluations",
			},
			[]string{"rule_id", "matched"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outcomes_total",
				Help:      "Total number of outcome records produced",
			},
			[]string{"typ"},
		),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of evaluation requests",
			},
			[]string{"status"},
		),
		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of evaluation requests in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 16), // 10µs to ~330ms
			},
		),
		rulesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rules_loaded",
				Help:      "Number of rules in the active rule set",
			},
		),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_reloads_total",
				Help:      "Total number of rule set reloads",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		c.ruleEvaluations,
		c.outcomes,
		c.evaluations,
		c.evaluationDuration,
		c.rulesLoaded,
		c.reloads,
	)
	return c
}

// RuleEvaluated implements rules.Observer.
func (c *Collector) RuleEvaluated(rule *rules.CompiledRule, matched bool) {
	c.ruleEvaluations.WithLabelValues(strconv.Itoa(int(rule.ID)), strconv.FormatBool(matched)).Inc()
}

// OutcomeProduced implements rules.Observer.
func (c *Collector) OutcomeProduced(rule *rules.CompiledRule, typ rules.OutcomeType) {
	c.outcomes.WithLabelValues(string(typ)).Inc()
}

// RecordEvaluation records one finished evaluation request.
func (c *Collector) RecordEvaluation(status string, d time.Duration) {
	c.evaluations.WithLabelValues(status).Inc()
	c.evaluationDuration.Observe(d.Seconds())
}

// RecordReload records a rule set reload and, on success, the new rule count.
func (c *Collector) RecordReload(rulesLoaded int, err error) {
	if err != nil {
		c.reloads.WithLabelValues(StatusError).Inc()
		return
	}
	c.reloads.WithLabelValues(StatusOK).Inc()
	c.rulesLoaded.Set(float64(rulesLoaded))
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
