package ports

import (
	"context"

	"github.com/diogoX451/jackson/internal/core/domain"
)

// Connector wires ports on the server machine.
// Implemented in service (local) and api (HTTP client), used by the coordinator.
type Connector interface {
	Capability(ctx context.Context) (domain.Capability, error)
	Connect(ctx context.Context, requests []domain.ConnectRequest) error
}
