package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// ParseLogID extracts and validates the error log id from the request path.
// Returns the id and true on success, or 0 and false after writing a 400.
// Expects path parameter: id
func ParseLogID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		logger.Debug("Invalid error log id", zap.String("id", raw))
		ErrorResponse(w, http.StatusBadRequest, "invalid_id", "Invalid error log ID")
		return 0, false
	}
	return id, true
}

// queryInt reads a non-negative integer query parameter, or def when absent.
func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
