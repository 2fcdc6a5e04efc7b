package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"termledger/backend/services/ledger-service/internal/service"
)

const maxBodyBytes = 1 << 16

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeCodedError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var (
		validation *service.ValidationError
		conflict   *service.ConflictError
	)
	if pf, ok := service.AsPartialFailure(err); ok {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"error":   "settlement pending",
			"code":    "partial_failure",
			"pending": pf.Pending,
		})
		return
	}
	switch {
	case errors.As(err, &validation):
		status := http.StatusBadRequest
		if strings.HasSuffix(validation.Code, "_not_found") {
			status = http.StatusNotFound
		}
		writeCodedError(w, status, validation.Code, validation.Message)
	case errors.As(err, &conflict):
		writeCodedError(w, http.StatusConflict, conflict.Code, conflict.Message)
	default:
		logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func queryLimit(r *http.Request, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
