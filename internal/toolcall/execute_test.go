package toolcall

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ashureev/codespace/internal/dispatch"
	"github.com/ashureev/codespace/internal/domain"
	"github.com/ashureev/codespace/internal/session"
)

type fakeCoordinator struct {
	lastSource string
	lastStart  int
	lastEnd    int
	result     *session.MutationResult
	err        error
	current    *domain.Version
}

func (f *fakeCoordinator) UpdateCode(_ context.Context, _, source string) (*session.MutationResult, error) {
	f.lastSource = source
	return f.result, f.err
}

func (f *fakeCoordinator) EditCode(_ context.Context, _ string, start, end int, _ string) (*session.MutationResult, error) {
	f.lastStart, f.lastEnd = start, end
	return f.result, f.err
}

func (f *fakeCoordinator) SearchReplace(context.Context, string, string, string, bool) (*session.MutationResult, error) {
	return f.result, f.err
}

func (f *fakeCoordinator) FindLines(context.Context, string, string, bool) ([]dispatch.LineMatch, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return []dispatch.LineMatch{{Line: 2, Text: "hit"}}, 4, nil
}

func (f *fakeCoordinator) Current(context.Context, string) (*domain.Version, error) {
	return f.current, f.err
}

func call(t *testing.T, e *Executor, method, args string) Response {
	t.Helper()
	req := Request{Method: method, SessionID: "demo"}
	if args != "" {
		req.Args = json.RawMessage(args)
	}
	return e.Execute(context.Background(), req)
}

func TestUpdateCode(t *testing.T) {
	fc := &fakeCoordinator{result: &session.MutationResult{Version: 1, Hash: "h", Changed: true}}
	resp := call(t, NewExecutor(fc, nil), MethodUpdateCode, `{"source":"export default 1"}`)

	if !resp.OK || resp.Error != nil {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if got := resp.Result.(MutationResult); got.Version != 1 || got.Hash != "h" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if fc.lastSource != "export default 1" {
		t.Fatalf("source not forwarded: %q", fc.lastSource)
	}
}

func TestUpdateCodeRequiresSource(t *testing.T) {
	resp := call(t, NewExecutor(&fakeCoordinator{}, nil), MethodUpdateCode, `{}`)
	if resp.OK || resp.Error.Kind != domain.KindValidation {
		t.Fatalf("expected ValidationError, got %+v", resp)
	}
}

func TestCompileFailureIsOKWithError(t *testing.T) {
	fc := &fakeCoordinator{result: &session.MutationResult{
		Version:      2,
		Changed:      true,
		CompileError: &domain.CompileError{Diagnostics: "unexpected token"},
	}}
	resp := call(t, NewExecutor(fc, nil), MethodUpdateCode, `{"source":"syntax error"}`)

	if !resp.OK {
		t.Fatalf("compile failure must still be ok, got %+v", resp)
	}
	if resp.Error == nil || resp.Error.Kind != domain.KindCompileFailed || resp.Error.Message != "unexpected token" {
		t.Fatalf("expected CompileFailed error, got %+v", resp.Error)
	}
	if got := resp.Result.(MutationResult); got.Version != 2 {
		t.Fatalf("expected version 2, got %d", got.Version)
	}
}

func TestEditCodeRequiresBounds(t *testing.T) {
	fc := &fakeCoordinator{result: &session.MutationResult{Version: 3}}
	e := NewExecutor(fc, nil)

	resp := call(t, e, MethodEditCode, `{"startLine":1,"newContent":"x"}`)
	if resp.OK || resp.Error.Kind != domain.KindValidation {
		t.Fatalf("expected ValidationError, got %+v", resp)
	}

	resp = call(t, e, MethodEditCode, `{"startLine":5,"endLine":3,"newContent":"x"}`)
	if !resp.OK || fc.lastStart != 5 || fc.lastEnd != 3 {
		t.Fatalf("bounds should be forwarded to the coordinator, got %+v", resp)
	}
}

func TestErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind domain.Kind
	}{
		{"validation", domain.Errorf(domain.KindValidation, "endLine before startLine"), domain.KindValidation},
		{"range", domain.Errorf(domain.KindOutOfRange, "past end"), domain.KindOutOfRange},
		{"storage", domain.Wrap(domain.KindStorageUnavailable, errors.New("down"), "write artifact"), domain.KindStorageUnavailable},
		{"not found", domain.Errorf(domain.KindNotFound, "version 9"), domain.KindNotFound},
		{"unclassified", errors.New("boom"), domain.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, NewExecutor(&fakeCoordinator{err: tt.err}, nil), MethodSearchAndReplace, `{"pattern":"a"}`)
			if resp.OK || resp.Error == nil || resp.Error.Kind != tt.kind {
				t.Fatalf("expected %s, got %+v", tt.kind, resp)
			}
			if resp.Result != nil {
				t.Fatal("failed calls carry no result")
			}
		})
	}
}

func TestReadMethods(t *testing.T) {
	fc := &fakeCoordinator{current: &domain.Version{
		SessionID: "demo",
		Seq:       4,
		Hash:      "abc",
		Bundle:    domain.Bundle{Source: "src", Compiled: "js", HTML: "<p/>", CSS: "p{}"},
	}}
	e := NewExecutor(fc, nil)

	if got := call(t, e, MethodReadCode, "").Result.(CodeResult); got.Source != "src" || got.Version != 4 {
		t.Fatalf("read_code: %+v", got)
	}
	if got := call(t, e, MethodReadHTML, "").Result.(HTMLResult); got.HTML != "<p/>" || got.CSS != "p{}" {
		t.Fatalf("read_html: %+v", got)
	}
	got := call(t, e, MethodReadSession, "null").Result.(SessionResult)
	if got.Compiled != "js" || got.Hash != "abc" || got.UpdatedAt != nil {
		t.Fatalf("read_session: %+v", got)
	}
}

func TestFindLines(t *testing.T) {
	resp := call(t, NewExecutor(&fakeCoordinator{}, nil), MethodFindLines, `{"pattern":"hit"}`)
	got := resp.Result.(FindResult)
	if got.Version != 4 || len(got.Matches) != 1 || got.Matches[0].Line != 2 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestUnknownMethodAndMalformedArgs(t *testing.T) {
	e := NewExecutor(&fakeCoordinator{}, nil)
	if resp := call(t, e, "drop_tables", ""); resp.Error.Kind != domain.KindValidation {
		t.Fatalf("unknown method: %+v", resp)
	}
	if resp := call(t, e, MethodFindLines, `{"pattern":`); resp.Error.Kind != domain.KindValidation {
		t.Fatalf("malformed args: %+v", resp)
	}
}

func TestResponseShape(t *testing.T) {
	resp := Response{OK: false, Error: &ErrorBody{Kind: domain.KindOutOfRange, Message: "past end"}}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"ok":false,"error":{"kind":"OutOfRange","message":"past end"}}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}
