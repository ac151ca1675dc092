package dto

import (
	"fmt"

	"github.com/diogoX451/jackson/internal/core/domain"
)

// ConnectRequest is one entry of the PATCH /connect body. Port names are
// the canonical "client:kind_index" form.
type ConnectRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Role        string `json:"role"`
}

func (r ConnectRequest) ToDomain() (domain.ConnectRequest, error) {
	src, err := domain.ParsePortName(r.Source)
	if err != nil {
		return domain.ConnectRequest{}, fmt.Errorf("source: %w", err)
	}
	dst, err := domain.ParsePortName(r.Destination)
	if err != nil {
		return domain.ConnectRequest{}, fmt.Errorf("destination: %w", err)
	}
	role, err := domain.ParseRole(r.Role)
	if err != nil {
		return domain.ConnectRequest{}, err
	}
	return domain.ConnectRequest{Source: src, Destination: dst, Role: role}, nil
}

func FromDomain(reqs []domain.ConnectRequest) []ConnectRequest {
	out := make([]ConnectRequest, len(reqs))
	for i, r := range reqs {
		out[i] = ConnectRequest{
			Source:      r.Source.String(),
			Destination: r.Destination.String(),
			Role:        string(r.Role),
		}
	}
	return out
}
