package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/diogoX451/jackson/internal/api/dto"
	"github.com/diogoX451/jackson/internal/core/domain"
	"github.com/diogoX451/jackson/internal/core/service"
)

// Handler: GET /init
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	capability, err := s.connector.Capability(r.Context())
	if err != nil {
		s.log.Error("capability failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, capability)
}

// Handler: PATCH /connect
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var body []dto.ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	reqs := make([]domain.ConnectRequest, len(body))
	for i, item := range body {
		req, err := item.ToDomain()
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PORT", fmt.Sprintf("entry %d: %v", i, err))
			return
		}
		reqs[i] = req
	}

	ctx := service.WithSession(r.Context(), r.Header.Get(SessionHeader))
	if err := s.connector.Connect(ctx, reqs); err != nil {
		var connectErr domain.ConnectError
		if errors.As(err, &connectErr) {
			respondJSON(w, statusForKind(connectErr.Kind()), dto.ConnectErrorResponse{
				ErrorKind: connectErr.Kind(),
				Data:      connectErr,
			})
			return
		}
		s.log.Error("connect failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "CONNECT_FAILED", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, dto.ConnectResponse{Connected: len(reqs)})
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindPortNotFound:
		return http.StatusNotFound
	case domain.KindPlaybackPortAlreadyHasConnections:
		return http.StatusConflict
	case domain.KindFailedToConnectPorts:
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

// Handler: GET /sessions/{id}/connections
func (s *Server) handleSessionConnections(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entries, err := s.journal.Entries(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "JOURNAL_FAILED", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, dto.SessionConnectionsResponse{
		Session:     id,
		Connections: entries,
	})
}
