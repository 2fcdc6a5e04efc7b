package handlers

import (
	"math"
	"net/http"

	"go.uber.org/zap"
)

// AdminHandlers serves the role=admin routes.
type AdminHandlers struct {
	controller SessionController
	ledger     UserLedger
	logger     *zap.Logger
}

// NewAdminHandlers returns handler.
func NewAdminHandlers(controller SessionController, ledger UserLedger, logger *zap.Logger) *AdminHandlers {
	return &AdminHandlers{controller: controller, ledger: ledger, logger: logger}
}

type usernameRequest struct {
	Username string `json:"username"`
}

// creditRequest carries either seconds or hours, not both.
type creditRequest struct {
	Seconds *int64   `json:"seconds,omitempty"`
	Hours   *float64 `json:"hours,omitempty"`
}

func (c creditRequest) seconds() (int64, bool) {
	switch {
	case c.Seconds != nil && c.Hours == nil:
		return *c.Seconds, true
	case c.Hours != nil && c.Seconds == nil:
		if math.IsNaN(*c.Hours) || math.IsInf(*c.Hours, 0) {
			return 0, false
		}
		return int64(math.Round(*c.Hours * 3600)), true
	default:
		return 0, false
	}
}

// ListUsers handles GET /admin/users.
func (h *AdminHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.ledger.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// CreateUser handles POST /admin/users.
func (h *AdminHandlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.ledger.CreateUser(r.Context(), req.Username)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// RenameUser handles PATCH /admin/users/{id}.
func (h *AdminHandlers) RenameUser(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.ledger.RenameUser(r.Context(), r.PathValue("id"), req.Username)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// DeleteUser handles DELETE /admin/users/{id}.
func (h *AdminHandlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Credit handles POST /admin/users/{id}/credit.
func (h *AdminHandlers) Credit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	seconds, ok := req.seconds()
	if !ok {
		writeError(w, http.StatusBadRequest, "exactly one of seconds or hours is required")
		return
	}
	user, err := h.ledger.TopUp(r.Context(), r.PathValue("id"), seconds)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ForceStop handles POST /admin/terminals/{id}/force-stop.
func (h *AdminHandlers) ForceStop(w http.ResponseWriter, r *http.Request) {
	res, err := h.controller.ForceStop(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Offline handles POST /admin/terminals/{id}/offline.
func (h *AdminHandlers) Offline(w http.ResponseWriter, r *http.Request) {
	t, err := h.controller.SetOffline(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Online handles POST /admin/terminals/{id}/online.
func (h *AdminHandlers) Online(w http.ResponseWriter, r *http.Request) {
	t, err := h.controller.SetOnline(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Settlements handles GET /admin/settlements.
func (h *AdminHandlers) Settlements(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Pending())
}

// RetrySettlements handles POST /admin/settlements/retry.
func (h *AdminHandlers) RetrySettlements(w http.ResponseWriter, r *http.Request) {
	settled, err := h.controller.SettlePending(r.Context())
	remaining := h.controller.Pending()
	body := map[string]interface{}{
		"settled":   settled,
		"remaining": remaining,
	}
	if err != nil {
		h.logger.Warn("settlement retry incomplete", zap.Int("settled", settled), zap.Error(err))
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}
