package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/codespace/internal/domain"
	"github.com/ashureev/codespace/internal/toolcall"
	"github.com/go-chi/chi/v5"
)

// maxToolCallBytes bounds a tool-call request body.
const maxToolCallBytes = 32 << 20

// Executor runs one tool call.
type Executor interface {
	Execute(ctx context.Context, req toolcall.Request) toolcall.Response
}

// ToolsHandler serves the tool-call request/response boundary over HTTP.
type ToolsHandler struct {
	exec Executor
}

// NewToolsHandler creates a new tools handler.
func NewToolsHandler(exec Executor) *ToolsHandler {
	return &ToolsHandler{exec: exec}
}

// RegisterRoutes registers the tool-call routes.
func (h *ToolsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/tools", h.Call)
}

// Call decodes a Request, executes it and writes the Response. Failed
// calls use the status of their error kind; compile failures are 200.
func (h *ToolsHandler) Call(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxToolCallBytes)

	var req toolcall.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		JSON(w, status, toolcall.Response{
			OK:    false,
			Error: &toolcall.ErrorBody{Kind: domain.KindValidation, Message: "malformed request body"},
		})
		return
	}

	resp := h.exec.Execute(r.Context(), req)
	status := http.StatusOK
	if !resp.OK {
		status = StatusFor(resp.Error.Kind)
	}
	JSON(w, status, resp)
}
