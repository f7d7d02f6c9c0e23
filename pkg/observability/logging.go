package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/anamnesis/pkg/domain"
)

// LoggingHooks logs every lifecycle event at Debug, and failures at Warn.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(ctx context.Context, e *domain.EventBase) {
			logger.DebugContext(ctx, "session_start", "session_id", e.SessionID)
		},
		OnStep: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step",
				"session_id", e.SessionID,
				"from", e.From,
				"to", e.To,
			)
		},
		OnCheckpoint: func(ctx context.Context, e *domain.CheckpointEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "checkpoint_failed",
					"session_id", e.SessionID,
					"checkpoint", e.Checkpoint,
					"duration", e.Duration,
					"err", e.Err,
				)
				return
			}
			logger.DebugContext(ctx, "checkpoint",
				"session_id", e.SessionID,
				"checkpoint", e.Checkpoint,
				"duration", e.Duration,
			)
		},
		OnComplete: func(ctx context.Context, e *domain.CompleteEvent) {
			level := slog.LevelInfo
			if !e.Persisted {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "session_complete",
				"session_id", e.SessionID,
				"record_id", e.RecordID,
				"persisted", e.Persisted,
			)
		},
	}
}
