package interfaces

import "context"

// EventLog is the operator-facing append-only log. Implementations never
// fail the caller: write errors are dropped.
type EventLog interface {
	Info(ctx context.Context, event string, data map[string]any)
	Error(ctx context.Context, event string, data map[string]any)
	Path() string
}
