package toolcall

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ashureev/codespace/internal/dispatch"
	"github.com/ashureev/codespace/internal/domain"
	"github.com/ashureev/codespace/internal/metrics"
	"github.com/ashureev/codespace/internal/session"
)

// Coordinator is the subset of session.Coordinator tool calls use.
type Coordinator interface {
	UpdateCode(ctx context.Context, id, source string) (*session.MutationResult, error)
	EditCode(ctx context.Context, id string, start, end int, content string) (*session.MutationResult, error)
	SearchReplace(ctx context.Context, id, pattern, replacement string, isRegex bool) (*session.MutationResult, error)
	FindLines(ctx context.Context, id, pattern string, isRegex bool) ([]dispatch.LineMatch, int64, error)
	Current(ctx context.Context, id string) (*domain.Version, error)
}

// Executor runs tool calls against a coordinator.
type Executor struct {
	coord  Coordinator
	logger *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(coord Coordinator, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{coord: coord, logger: logger}
}

// Execute runs req. Every failure is reported in the Response.
func (e *Executor) Execute(ctx context.Context, req Request) Response {
	result, compileErr, err := e.dispatch(ctx, req)

	switch {
	case err != nil:
		kind := domain.KindOf(err)
		metrics.Mutations.WithLabelValues(methodLabel(req.Method), string(kind)).Inc()
		if kind == domain.KindInternal || kind == domain.KindStorageUnavailable || kind == domain.KindCorrupted {
			e.logger.Error("Tool call failed", "method", req.Method, "session_id", req.SessionID, "kind", kind, "error", err)
		}
		return Response{OK: false, Error: &ErrorBody{Kind: kind, Message: domain.MessageOf(err)}}

	case compileErr != nil:
		metrics.Mutations.WithLabelValues(methodLabel(req.Method), string(domain.KindCompileFailed)).Inc()
		return Response{
			OK:     true,
			Result: result,
			Error:  &ErrorBody{Kind: domain.KindCompileFailed, Message: compileErr.Diagnostics},
		}
	}

	metrics.Mutations.WithLabelValues(methodLabel(req.Method), "ok").Inc()
	return Response{OK: true, Result: result}
}

func (e *Executor) dispatch(ctx context.Context, req Request) (any, *domain.CompileError, error) {
	id := req.SessionID

	switch req.Method {
	case MethodUpdateCode:
		var args UpdateCodeArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, nil, err
		}
		if args.Source == nil {
			return nil, nil, domain.Errorf(domain.KindValidation, "source is required")
		}
		res, err := e.coord.UpdateCode(ctx, id, *args.Source)
		if err != nil {
			return nil, nil, err
		}
		return MutationResult{Version: res.Version, Hash: res.Hash}, res.CompileError, nil

	case MethodEditCode:
		var args EditCodeArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, nil, err
		}
		if args.StartLine == nil || args.EndLine == nil {
			return nil, nil, domain.Errorf(domain.KindValidation, "startLine and endLine are required")
		}
		res, err := e.coord.EditCode(ctx, id, *args.StartLine, *args.EndLine, args.NewContent)
		if err != nil {
			return nil, nil, err
		}
		return MutationResult{Version: res.Version, Hash: res.Hash}, res.CompileError, nil

	case MethodSearchAndReplace:
		var args SearchReplaceArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, nil, err
		}
		res, err := e.coord.SearchReplace(ctx, id, args.Pattern, args.Replacement, args.IsRegex)
		if err != nil {
			return nil, nil, err
		}
		return ReplaceResult{Version: res.Version, Replacements: res.Replacements}, res.CompileError, nil

	case MethodFindLines:
		var args FindLinesArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, nil, err
		}
		matches, seq, err := e.coord.FindLines(ctx, id, args.Pattern, args.IsRegex)
		if err != nil {
			return nil, nil, err
		}
		return FindResult{Version: seq, Matches: matches}, nil, nil

	case MethodReadCode, MethodReadHTML, MethodReadSession:
		v, err := e.coord.Current(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return readResult(req.Method, v), nil, nil
	}

	return nil, nil, domain.Errorf(domain.KindValidation, "unknown method %q", req.Method)
}

func readResult(method string, v *domain.Version) any {
	switch method {
	case MethodReadCode:
		return CodeResult{Version: v.Seq, Source: v.Bundle.Source}
	case MethodReadHTML:
		return HTMLResult{Version: v.Seq, HTML: v.Bundle.HTML, CSS: v.Bundle.CSS}
	}
	res := SessionResult{
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
		t := v.CreatedAt
		res.UpdatedAt = &t
	}
	return res
}

func decodeArgs(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.Wrap(domain.KindValidation, err, "malformed args")
	}
	return nil
}

// methodLabel keeps unknown method names out of metric labels.
func methodLabel(method string) string {
	for _, m := range Methods {
		if m == method {
			return m
		}
	}
	return "unknown"
}
