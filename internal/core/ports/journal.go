package ports

import (
	"context"
	"time"

	"github.com/diogoX451/jackson/internal/core/domain"
)

// JournalEntry is one wiring the server performed for a session.
type JournalEntry struct {
	Session     string          `json:"session"`
	Role        domain.Role     `json:"role"`
	Source      domain.PortName `json:"source"`
	Destination domain.PortName `json:"destination"`
	ConnectedAt time.Time       `json:"connected_at"`
}

// Journal keeps the server's wiring history per client session.
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
	Entries(ctx context.Context, session string) ([]JournalEntry, error)
	Close() error
}
