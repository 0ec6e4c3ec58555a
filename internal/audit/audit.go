// Package audit defines the audit record sink the engines notify after each
// successful mutating call. The engine supplies enough context (actor, action,
// affected entity, before/after detail) for a full audit trail; where the
// records end up is the recorder's concern.
package audit

import (
	"context"
	"log/slog"
)

// Entry describes one successful mutating operation.
type Entry struct {
	Actor    uint64
	Action   string
	Entity   string
	EntityID string
	Detail   map[string]any
}

type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// SlogRecorder emits audit entries through slog.
type SlogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder returns a recorder writing to logger, or the process
// default logger when logger is nil.
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	if logger == nil {
		logger = slog.Default()
	}

	return &SlogRecorder{logger: logger}
}

func (r *SlogRecorder) Record(ctx context.Context, e Entry) {
	r.logger.InfoContext(ctx, "audit",
		"actor", e.Actor,
		"action", e.Action,
		"entity", e.Entity,
		"entity_id", e.EntityID,
		"detail", e.Detail,
	)
}

// Noop discards audit entries.
type Noop struct{}

func (Noop) Record(context.Context, Entry) {}
