// Package identity validates codespace ids and carries them through
// request contexts.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/ashureev/codespace/internal/domain"
	"github.com/go-chi/chi/v5"
)

// URLParam is the chi route parameter naming a codespace.
const URLParam = "id"

type contextKey int

const (
	codespaceIDKey contextKey = iota
)

var codespaceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// ValidateCodespaceID rejects ids that are empty, too long, or contain
// characters outside [A-Za-z0-9._:-].
func ValidateCodespaceID(id string) error {
	if !codespaceIDPattern.MatchString(id) {
		return domain.Errorf(domain.KindValidation, "invalid codespace id %q", id)
	}
	return nil
}

// WithCodespaceID returns a context carrying id.
func WithCodespaceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, codespaceIDKey, id)
}

// CodespaceIDFromContext extracts the codespace id from the request context.
func CodespaceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(codespaceIDKey).(string); ok {
		return v
	}
	return ""
}

// Middleware reads the {id} route parameter, rejects invalid ids with 400
// and stores valid ones in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, URLParam))
		if err := ValidateCodespaceID(id); err != nil {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"invalid codespace id"}`, http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCodespaceID(r.Context(), id)))
	})
}

// IPFromRequest returns a normalized remote IP for rate limiting and logs.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
