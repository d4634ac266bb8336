// Package toolcall implements the JSON tool-call request/response boundary
// in front of the session coordinator.
package toolcall

import (
	"encoding/json"
	"time"

	"github.com/ashureev/codespace/internal/dispatch"
	"github.com/ashureev/codespace/internal/domain"
)

// Method names accepted in Request.Method.
const (
	MethodUpdateCode       = "update_code"
	MethodEditCode         = "edit_code"
	MethodSearchAndReplace = "search_and_replace"
	MethodFindLines        = "find_lines"
	MethodReadCode         = "read_code"
	MethodReadHTML         = "read_html"
	MethodReadSession      = "read_session"
)

// Methods lists every method in a stable order.
var Methods = []string{
	MethodUpdateCode,
	MethodEditCode,
	MethodSearchAndReplace,
	MethodFindLines,
	MethodReadCode,
	MethodReadHTML,
	MethodReadSession,
}

// Request is one tool call.
type Request struct {
	Method    string          `json:"method"`
	SessionID string          `json:"sessionId"`
	Args      json.RawMessage `json:"args,omitempty"`
}

// ErrorBody is the error half of a Response.
type ErrorBody struct {
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Response is the answer to a Request. A compile failure carries both a
// result and an error.
type Response struct {
	OK     bool       `json:"ok"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// UpdateCodeArgs are the arguments of update_code.
type UpdateCodeArgs struct {
	Source *string `json:"source"`
}

// EditCodeArgs are the arguments of edit_code.
type EditCodeArgs struct {
	StartLine  *int   `json:"startLine"`
	EndLine    *int   `json:"endLine"`
	NewContent string `json:"newContent"`
}

// SearchReplaceArgs are the arguments of search_and_replace.
type SearchReplaceArgs struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	IsRegex     bool   `json:"isRegex"`
}

// FindLinesArgs are the arguments of find_lines.
type FindLinesArgs struct {
	Pattern string `json:"pattern"`
	IsRegex bool   `json:"isRegex"`
}

// MutationResult is returned by update_code and edit_code.
type MutationResult struct {
	Version int64  `json:"version"`
	Hash    string `json:"hash"`
}

// ReplaceResult is returned by search_and_replace.
type ReplaceResult struct {
	Version      int64 `json:"version"`
	Replacements int   `json:"replacements"`
}

// FindResult is returned by find_lines.
type FindResult struct {
	Version int64                `json:"version"`
	Matches []dispatch.LineMatch `json:"matches"`
}

// CodeResult is returned by read_code.
type CodeResult struct {
	Version int64  `json:"version"`
	Source  string `json:"source"`
}

// HTMLResult is returned by read_html.
type HTMLResult struct {
	Version int64  `json:"version"`
	HTML    string `json:"html"`
	CSS     string `json:"css"`
}

// SessionResult is returned by read_session.
type SessionResult struct {
	SessionID    string               `json:"sessionId"`
	Version      int64                `json:"version"`
	Hash         string               `json:"hash,omitempty"`
	Source       string               `json:"source"`
	Compiled     string               `json:"compiled"`
	HTML         string               `json:"html"`
	CSS          string               `json:"css"`
	CompileError *domain.CompileError `json:"compileError,omitempty"`
	UpdatedAt    *time.Time           `json:"updatedAt,omitempty"`
}
