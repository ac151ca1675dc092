package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/diogoX451/jackson/internal/store/memory"
)

func TestOpenJournalFallsBackToMemory(t *testing.T) {
	j := OpenJournal(Config{}, zap.NewNop())
	assert.IsType(t, &memory.Journal{}, j)

	// Nothing listens on port 1.
	j = OpenJournal(Config{Addr: "127.0.0.1:1"}, zap.NewNop())
	assert.IsType(t, &memory.Journal{}, j)
}
