package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for AssistOutcomes.
const (
	OutcomeOffered       = "offered"
	OutcomeNoModule      = "no_module"
	OutcomeUnnamed       = "unnamed"
	OutcomeUnresolved    = "unresolved"
	OutcomeNoParent      = "no_parent"
	OutcomeNoInlineBody  = "no_inline_body"
	OutcomeParseFailure  = "parse_failure"
	OutcomeCommitted     = "committed"
	OutcomeRolledBack    = "rolled_back"
	OutcomeRecovered     = "recovered"
	OutcomeDryRun        = "dry_run"
	OutcomeCancelled     = "cancelled"
	OutcomeApplyRejected = "apply_rejected"
)

// Registry holds the modsplit collectors only, so exported snapshots carry
// no Go runtime series that would clash with a node_exporter's own.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// Metrics definitions
var (
	ParseDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "modsplit_parse_seconds",
		Help:    "Time spent parsing a Rust source file.",
		Buckets: prometheus.DefBuckets,
	})

	ModuleTreeFiles = factory.NewGauge(prometheus.GaugeOpts{
		Name: "modsplit_modtree_files",
		Help: "Number of files loaded into the most recently built module tree.",
	})

	AssistOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "modsplit_assist_outcomes_total",
		Help: "Extract-module assist invocations by outcome.",
	}, []string{"outcome"})

	ApplyDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "modsplit_apply_seconds",
		Help:    "Latency for committing an edit set.",
		Buckets: prometheus.DefBuckets,
	})

	ApplyFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "modsplit_apply_failures_total",
		Help: "Edit set commits aborted, by error code.",
	}, []string{"code"})
)
