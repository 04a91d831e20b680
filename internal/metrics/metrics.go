package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the pipeline's Prometheus counters. A single instance is
// created in main and injected where needed, so tests can build their own.
type Metrics struct {
	PostsTotal         *prometheus.CounterVec
	DraftsCreated      *prometheus.CounterVec
	DuplicatesSkipped  prometheus.Counter
	PhotosMerged       prometheus.Counter
	PhotosUnresolved   prometheus.Counter
	SubmissionsTotal   *prometheus.CounterVec
	ModeratorActions   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PostsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afisha_posts_total",
			Help: "Inbound posts by pipeline outcome.",
		}, []string{"outcome"}),
		DraftsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afisha_drafts_created_total",
			Help: "Drafts created by routing decision.",
		}, []string{"route"}),
		DuplicatesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "afisha_duplicates_skipped_total",
			Help: "Posts dropped by the deduplication check.",
		}),
		PhotosMerged: factory.NewCounter(prometheus.CounterOpts{
			Name: "afisha_photos_merged_total",
			Help: "Photo-only messages merged into an existing draft.",
		}),
		PhotosUnresolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "afisha_photos_unresolved_total",
			Help: "Photo-only messages with no host draft, dropped.",
		}),
		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afisha_submissions_total",
			Help: "Downstream catalog submissions by result.",
		}, []string{"result"}),
		ModeratorActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afisha_moderator_actions_total",
			Help: "Moderation card actions by kind.",
		}, []string{"action"}),
	}
}

// Serve exposes /metrics on addr. Best-effort: a dead listener only costs
// observability, never the pipeline.
func Serve(addr string, reg *prometheus.Registry, logger *zap.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("metrics listener stopped", zap.Error(err))
		}
	}()
}
