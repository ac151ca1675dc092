package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWiringStream(t *testing.T) {
	cfg := WiringStream()
	assert.Equal(t, StreamWiring, cfg.Name)
	assert.Equal(t, []string{SubjectWiring}, cfg.Subjects)
}
