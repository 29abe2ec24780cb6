package producer

import (
	"context"

	"retroboard/backend/internal/telemetry/domain"
)

// Producer publishes security events to a message broker for the worker to
// consume. Best-effort; the server stays up if the broker is unavailable.
type Producer interface {
	Emit(ctx context.Context, event *domain.SecurityEvent) error
	Close() error
}
