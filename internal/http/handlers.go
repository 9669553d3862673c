package http

import (
	"context"
	"net/http"
	"time"

	"dailyledger/internal/core"
	"dailyledger/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports ready once a ledger snapshot can be served. A stale
// snapshot counts as ready but is flagged.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	snap, err := s.ledger.Snapshot(ctx)
	switch {
	case err == nil:
		checks["store"] = "ok"
	case snap.Stale:
		checks["store"] = "degraded: serving last snapshot"
	default:
		checks["store"] = "failed: " + err.Error()
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
		s.logger.WarnContext(ctx, "Readiness check failed",
			log.NewFields().WithErrorType(errorType(err)).WithError(err).ToSlice()...)
	}
	if !snap.LoadedAt.IsZero() {
		checks["snapshot"] = map[string]any{
			"loaded_at":    snap.LoadedAt.UTC().Format(time.RFC3339),
			"transactions": len(snap.Ledger.Transactions),
			"issues":       len(snap.Ledger.Issues),
		}
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"refused":        s.rateLimiter.Hits(),
	}
	checks["security"] = map[string]any{
		"suspicious_requests": s.securityDetector.SuspiciousRequests(),
	}

	NewJSONResponse().Status(httpStatus).Data(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

func errorType(err error) string {
	switch {
	case core.IsValidation(err):
		return log.ErrorTypeValidation
	case core.IsStore(err):
		return log.ErrorTypeStore
	default:
		return log.ErrorTypeInternal
	}
}
