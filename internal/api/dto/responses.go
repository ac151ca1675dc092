package dto

import (
	"time"

	"github.com/diogoX451/jackson/internal/core/domain"
	"github.com/diogoX451/jackson/internal/core/ports"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// ErrorResponse is the body of every failure that is not a structured
// connect error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// ConnectErrorResponse carries a domain.ConnectError tagged by kind.
type ConnectErrorResponse struct {
	ErrorKind domain.ErrorKind    `json:"error_kind"`
	Data      domain.ConnectError `json:"data"`
}

type ConnectResponse struct {
	Connected int `json:"connected"`
}

type SessionConnectionsResponse struct {
	Session     string               `json:"session"`
	Connections []ports.JournalEntry `json:"connections"`
}
