package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventStep         EventType = "step"
	EventCheckpoint   EventType = "checkpoint"
	EventComplete     EventType = "complete"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// StepEvent is emitted after every applied transition.
type StepEvent struct {
	EventBase
	From      State `json:"from"`
	To        State `json:"to"`
	Anomalous bool  `json:"anomalous,omitempty"`
}

// CheckpointEvent is emitted after a generation call, successful or not.
type CheckpointEvent struct {
	EventBase
	Checkpoint Checkpoint    `json:"checkpoint"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// CompleteEvent is emitted when a session reaches the terminal state.
type CompleteEvent struct {
	EventBase
	RecordID  string `json:"record_id,omitempty"`
	Persisted bool   `json:"persisted"`
}

// LifecycleHooks defines callbacks for orchestrator observability.
type LifecycleHooks struct {
	OnSessionStart func(context.Context, *EventBase)
	OnStep         func(context.Context, *StepEvent)
	OnCheckpoint   func(context.Context, *CheckpointEvent)
	OnComplete     func(context.Context, *CompleteEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnSessionStart: chain(h.OnSessionStart, other.OnSessionStart),
		OnStep:         chain(h.OnStep, other.OnStep),
		OnCheckpoint:   chain(h.OnCheckpoint, other.OnCheckpoint),
		OnComplete:     chain(h.OnComplete, other.OnComplete),
	}
}

func chain[T any](a, b func(context.Context, T)) func(context.Context, T) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e T) {
		a(ctx, e)
		b(ctx, e)
	}
}
