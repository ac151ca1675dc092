package ports

import (
	"context"
	"time"

	"github.com/diogoX451/jackson/internal/core/domain"
)

// WiringEvent describes the outcome of one wiring attempt.
type WiringEvent struct {
	Session     string           `json:"session,omitempty"`
	Machine     string           `json:"machine"`
	Role        domain.Role      `json:"role"`
	Source      domain.PortName  `json:"source"`
	Destination domain.PortName  `json:"destination"`
	ErrorKind   domain.ErrorKind `json:"error_kind,omitempty"`
	Error       string           `json:"error,omitempty"`
	At          time.Time        `json:"at"`
}

// WiringEvents publishes wiring outcomes. Publishing is best effort.
type WiringEvents interface {
	Connected(ctx context.Context, ev WiringEvent) error
	Failed(ctx context.Context, ev WiringEvent) error
	Close() error
}
