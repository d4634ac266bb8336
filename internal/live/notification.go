package live

import (
	"fmt"
	"net/url"

	"github.com/ashureev/codespace/internal/domain"
)

// FieldRef describes a changed artifact. Inline artifacts carry their
// text in Data; blob artifacts are fetched from URL.
type FieldRef struct {
	Kind     domain.RefKind `json:"kind"`
	Size     int64          `json:"size"`
	Data     *string        `json:"data,omitempty"`
	Key      string         `json:"key,omitempty"`
	Location string         `json:"location,omitempty"`
	URL      string         `json:"url"`
}

// Fields lists the artifacts that changed in a version. Source travels
// inline unless it overflowed, in which case SourceRef is set instead.
type Fields struct {
	Source      *string   `json:"source,omitempty"`
	SourceRef   *FieldRef `json:"sourceRef,omitempty"`
	CompiledRef *FieldRef `json:"compiledRef,omitempty"`
	HTMLRef     *FieldRef `json:"htmlRef,omitempty"`
	CSSRef      *FieldRef `json:"cssRef,omitempty"`
}

// Notification is one server-to-client change frame.
type Notification struct {
	SessionID    string               `json:"sessionId"`
	Version      int64                `json:"version"`
	Fields       Fields               `json:"fields"`
	CompileError *domain.CompileError `json:"compileError,omitempty"`
}

// ArtifactURL is the HTTP path serving one resolved artifact of a version.
func ArtifactURL(sessionID string, seq int64, field domain.Field) string {
	return fmt.Sprintf("/api/codespaces/%s/versions/%d/%s", url.PathEscape(sessionID), seq, field)
}

// NewNotification describes next relative to prev. A nil prev is the
// empty session.
func NewNotification(prev, next *domain.Version) Notification {
	var before domain.Bundle
	if prev != nil {
		before = prev.Bundle
	}

	n := Notification{
		SessionID:    next.SessionID,
		Version:      next.Seq,
		CompileError: next.CompileError,
	}

	if before.Source != next.Bundle.Source {
		if next.Refs.Source.IsInline() {
			src := next.Bundle.Source
			n.Fields.Source = &src
		} else {
			n.Fields.SourceRef = fieldRef(next, domain.FieldSource)
		}
	}
	if before.Compiled != next.Bundle.Compiled {
		n.Fields.CompiledRef = fieldRef(next, domain.FieldCompiled)
	}
	if before.HTML != next.Bundle.HTML {
		n.Fields.HTMLRef = fieldRef(next, domain.FieldHTML)
	}
	if before.CSS != next.Bundle.CSS {
		n.Fields.CSSRef = fieldRef(next, domain.FieldCSS)
	}
	return n
}

func fieldRef(v *domain.Version, field domain.Field) *FieldRef {
	ref := v.Refs.Ref(field)
	out := &FieldRef{
		Kind:     ref.Kind,
		Size:     ref.Size,
		Key:      ref.Key,
		Location: ref.Location,
		URL:      ArtifactURL(v.SessionID, v.Seq, field),
	}
	if ref.IsInline() {
		out.Kind = domain.RefInline
		data := v.Bundle.Get(field)
		out.Data = &data
	}
	return out
}
