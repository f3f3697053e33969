package observability

import (
	"context"
	"log/slog"
	"net/http"
)

// Audit emits a structured audit line for an HTTP-surfaced event.
func Audit(r *http.Request, event string, attrs ...any) {
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Header.Get("X-Request-Id"),
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "audit", base...)
}

// SecurityEvent records an engine-side security observation with full
// internal context. The detail logged here is never echoed to callers;
// responses collapse to generic error codes.
func SecurityEvent(ctx context.Context, event string, attrs ...any) {
	base := []any{"event", event}
	base = append(base, attrs...)
	slog.WarnContext(ctx, "security", base...)
}
