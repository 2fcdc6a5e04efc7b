package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"termledger/backend/services/ledger-service/internal/http/middleware"
	"termledger/backend/services/ledger-service/internal/service"
)

// ViewerHandlers serves the routes any authenticated user may call.
type ViewerHandlers struct {
	controller SessionController
	ledger     UserLedger
	logger     *zap.Logger
}

// NewViewerHandlers returns handler.
func NewViewerHandlers(controller SessionController, ledger UserLedger, logger *zap.Logger) *ViewerHandlers {
	return &ViewerHandlers{controller: controller, ledger: ledger, logger: logger}
}

type startSessionRequest struct {
	TerminalID       string `json:"terminal_id"`
	UserID           string `json:"user_id,omitempty"`
	RequestedSeconds int64  `json:"requested_seconds,omitempty"`
}

type stopSessionRequest struct {
	TerminalID string `json:"terminal_id"`
}

// Terminals handles GET /terminals.
func (h *ViewerHandlers) Terminals(w http.ResponseWriter, r *http.Request) {
	views, err := h.controller.ListTerminals(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// Me handles GET /users/me.
func (h *ViewerHandlers) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	view, err := h.ledger.User(r.Context(), id.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// MySessions handles GET /sessions/me.
func (h *ViewerHandlers) MySessions(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	records, err := h.controller.SessionsForUser(r.Context(), id.UserID, queryLimit(r, 50))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Start handles POST /sessions/start. Admins may start a session for any user.
func (h *ViewerHandlers) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	if req.TerminalID == "" {
		writeError(w, http.StatusBadRequest, "terminal_id is required")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	switch {
	case userID == "":
		userID = id.UserID
	case userID != id.UserID && !id.IsAdmin():
		writeError(w, http.StatusForbidden, "cannot start a session for another user")
		return
	}

	res, err := h.controller.StartSession(r.Context(), service.StartRequest{
		TerminalID:       req.TerminalID,
		UserID:           userID,
		RequestedSeconds: req.RequestedSeconds,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Stop handles POST /sessions/stop on behalf of the caller.
func (h *ViewerHandlers) Stop(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req stopSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	if req.TerminalID == "" {
		writeError(w, http.StatusBadRequest, "terminal_id is required")
		return
	}

	res, err := h.controller.StopSession(r.Context(), req.TerminalID, id.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
