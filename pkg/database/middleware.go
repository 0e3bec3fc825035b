package database

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProjectIDPathValue is the route wildcard carrying the tenant's project id.
const ProjectIDPathValue = "pid"

// WithTenantContext wraps handlers registered under a {pid} route so they run
// with a tenant scope for that project. The scope is closed when the handler returns.
func WithTenantContext(db *DB, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw := r.PathValue(ProjectIDPathValue)
			projectID, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_project_id", "Invalid project ID format")
				return
			}

			scope, err := db.WithTenant(r.Context(), projectID)
			if err != nil {
				// Client went away while waiting for a connection.
				if errors.Is(err, context.Canceled) {
					logger.Debug("Request cancelled before tenant connection was acquired",
						zap.String("project_id", projectID.String()))
					return
				}
				logger.Error("Failed to open tenant scope",
					zap.String("project_id", projectID.String()),
					zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "database_unavailable", "Database connection unavailable")
				return
			}
			defer scope.Close()

			next(w, r.WithContext(SetTenantScope(r.Context(), scope)))
		}
	}
}

// writeError writes the same error body as handlers.ErrorResponse.
func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
