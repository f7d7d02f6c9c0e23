package observability

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/anamnesis/pkg/domain"
)

const namespace = "anamnesis"

// Metrics holds the collectors fed by the lifecycle hooks.
type Metrics struct {
	sessionsStarted prometheus.Counter
	steps           *prometheus.CounterVec
	anomalies       prometheus.Counter
	checkpoints     *prometheus.HistogramVec
	completed       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of sessions opened",
		}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of applied transitions by target state",
		}, []string{"state"}),
		anomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalous_states_total",
			Help:      "Sessions found in an unrecognised state and restarted",
		}),
		checkpoints: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_duration_seconds",
			Help:      "Duration of generation calls, retries included",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"checkpoint", "outcome"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Sessions that reached the final narrative, by record persistence outcome",
		}, []string{"persisted"}),
	}

	for _, c := range []prometheus.Collector{m.sessionsStarted, m.steps, m.anomalies, m.checkpoints, m.completed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(ctx context.Context, e *domain.EventBase) {
			m.sessionsStarted.Inc()
		},
		OnStep: func(ctx context.Context, e *domain.StepEvent) {
			m.steps.WithLabelValues(e.To.String()).Inc()
			if e.Anomalous {
				m.anomalies.Inc()
			}
		},
		OnCheckpoint: func(ctx context.Context, e *domain.CheckpointEvent) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			m.checkpoints.WithLabelValues(string(e.Checkpoint), outcome).Observe(e.Duration.Seconds())
		},
		OnComplete: func(ctx context.Context, e *domain.CompleteEvent) {
			m.completed.WithLabelValues(strconv.FormatBool(e.Persisted)).Inc()
		},
	}
}
