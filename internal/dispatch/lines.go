package dispatch

import (
	"strings"

	"github.com/ashureev/codespace/internal/domain"
)

// LineCount returns the number of lines in s. The empty string has no
// lines and a trailing newline does not start a new one.
func LineCount(s string) int {
	return len(splitLines(s))
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// EditLines replaces lines start..end (1-based, inclusive) of source with
// content. Bounds must satisfy 1 <= start <= end <= LineCount+1; a range
// starting at LineCount+1 appends content.
func EditLines(source string, start, end int, content string) (string, error) {
	if start < 1 {
		return "", domain.Errorf(domain.KindValidation, "startLine must be at least 1, got %d", start)
	}
	if end < start {
		return "", domain.Errorf(domain.KindValidation, "endLine %d is before startLine %d", end, start)
	}

	lines := splitLines(source)
	n := len(lines)
	if end > n+1 {
		return "", domain.Errorf(domain.KindOutOfRange, "line range %d-%d outside document of %d lines", start, end, n)
	}

	stop := end
	if stop > n {
		stop = n
	}

	out := make([]string, 0, n+LineCount(content))
	out = append(out, lines[:start-1]...)
	out = append(out, splitLines(content)...)
	out = append(out, lines[stop:]...)

	if len(out) == 0 {
		return "", nil
	}
	result := strings.Join(out, "\n")
	if strings.HasSuffix(source, "\n") || (source == "" && strings.HasSuffix(content, "\n")) {
		result += "\n"
	}
	return result, nil
}
