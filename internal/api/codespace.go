package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/codespace/internal/domain"
	"github.com/ashureev/codespace/internal/identity"
	"github.com/ashureev/codespace/internal/toolcall"
	"github.com/go-chi/chi/v5"
)

// Reader reads current and historical codespace state.
type Reader interface {
	Current(ctx context.Context, id string) (*domain.Version, error)
	Version(ctx context.Context, id string, seq int64) (*domain.Version, error)
}

// CodespaceHandler serves codespace reads and version history.
type CodespaceHandler struct {
	reader Reader
}

// NewCodespaceHandler creates a new codespace handler.
func NewCodespaceHandler(reader Reader) *CodespaceHandler {
	return &CodespaceHandler{reader: reader}
}

// RegisterRoutes registers codespace routes. live, when non-nil, is
// mounted at /ws/codespaces/{id}.
func (h *CodespaceHandler) RegisterRoutes(r chi.Router, live http.Handler) {
	r.Route("/api/codespaces/{id}", func(r chi.Router) {
		r.Use(identity.Middleware)
		r.Get("/", h.GetCurrent)
		r.Get("/versions/{seq}", h.GetVersion)
		r.Get("/versions/{seq}/{field}", h.GetArtifact)
	})
	if live != nil {
		r.With(identity.Middleware).Get("/ws/codespaces/{id}", live.ServeHTTP)
	}
}

// GetCurrent returns the full current bundle.
func (h *CodespaceHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	v, err := h.reader.Current(r.Context(), identity.CodespaceIDFromContext(r.Context()))
	if err != nil {
		KindError(w, err)
		return
	}
	JSON(w, http.StatusOK, view(v))
}

// GetVersion returns one verified historical version.
func (h *CodespaceHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	v, ok := h.version(w, r)
	if !ok {
		return
	}
	w.Header().Set("ETag", strconv.Quote(v.Hash))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	JSON(w, http.StatusOK, view(v))
}

// GetArtifact streams one resolved artifact of a version.
func (h *CodespaceHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	field, ok := domain.ParseField(chi.URLParam(r, "field"))
	if !ok {
		Error(w, http.StatusBadRequest, "field must be one of source, compiled, html, css")
		return
	}
	v, ok := h.version(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", contentType(field))
	w.Header().Set("ETag", strconv.Quote(v.Hash+"-"+string(field)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(v.Bundle.Get(field)))
}

func (h *CodespaceHandler) version(w http.ResponseWriter, r *http.Request) (*domain.Version, bool) {
	seq, err := strconv.ParseInt(chi.URLParam(r, "seq"), 10, 64)
	if err != nil || seq < 1 {
		Error(w, http.StatusBadRequest, "version must be a positive integer")
		return nil, false
	}
	v, err := h.reader.Version(r.Context(), identity.CodespaceIDFromContext(r.Context()), seq)
	if err != nil {
		KindError(w, err)
		return nil, false
	}
	return v, true
}

func view(v *domain.Version) toolcall.SessionResult {
	res := toolcall.SessionResult{
		SessionID:    v.SessionID,
		Version:      v.Seq,
		Hash:         v.Hash,
		Source:       v.Bundle.Source,
		Compiled:     v.Bundle.Compiled,
		HTML:         v.Bundle.HTML,
		CSS:          v.Bundle.CSS,
		CompileError: v.CompileError,
	}
	if !v.CreatedAt.IsZero() {
		t := v.CreatedAt.UTC().Truncate(time.Millisecond)
		res.UpdatedAt = &t
	}
	return res
}

func contentType(f domain.Field) string {
	switch f {
	case domain.FieldCompiled:
		return "text/javascript; charset=utf-8"
	case domain.FieldHTML:
		return "text/html; charset=utf-8"
	case domain.FieldCSS:
		return "text/css; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}
