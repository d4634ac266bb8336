package dispatch

import (
	"strings"
	"time"

	"github.com/ashureev/codespace/internal/domain"
	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds a single regular expression evaluation.
const DefaultMatchTimeout = 2 * time.Second

// LineMatch is one line that matched a find.
type LineMatch struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Matcher is a compiled literal or regular expression pattern.
type Matcher struct {
	literal string
	re      *regexp2.Regexp
}

// NewMatcher compiles pattern. Regular expressions use ECMAScript syntax
// and give up after timeout.
func NewMatcher(pattern string, isRegex bool, timeout time.Duration) (*Matcher, error) {
	if pattern == "" {
		return nil, domain.Errorf(domain.KindValidation, "pattern must not be empty")
	}
	if !isRegex {
		return &Matcher{literal: pattern}, nil
	}

	re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
	if err != nil {
		return nil, domain.Wrap(domain.KindValidation, err, "malformed regular expression")
	}
	if timeout <= 0 {
		timeout = DefaultMatchTimeout
	}
	re.MatchTimeout = timeout
	return &Matcher{re: re}, nil
}

// Replace substitutes every match in s with replacement in a single pass
// and returns the result and the number of substitutions. Regular
// expression replacements may reference groups as $1 or ${name}.
func (m *Matcher) Replace(s, replacement string) (string, int, error) {
	if m.re == nil {
		n := strings.Count(s, m.literal)
		if n == 0 {
			return s, 0, nil
		}
		return strings.ReplaceAll(s, m.literal, replacement), n, nil
	}

	n, err := m.count(s)
	if err != nil || n == 0 {
		return s, 0, err
	}
	out, err := m.re.Replace(s, replacement, -1, -1)
	if err != nil {
		return s, 0, regexFailure(err)
	}
	return out, n, nil
}

// Find returns every line of s containing a match.
func (m *Matcher) Find(s string) ([]LineMatch, error) {
	matches := []LineMatch{}
	for i, line := range splitLines(s) {
		ok, err := m.matchLine(line)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, LineMatch{Line: i + 1, Text: line})
		}
	}
	return matches, nil
}

func (m *Matcher) matchLine(line string) (bool, error) {
	if m.re == nil {
		return strings.Contains(line, m.literal), nil
	}
	ok, err := m.re.MatchString(line)
	if err != nil {
		return false, regexFailure(err)
	}
	return ok, nil
}

func (m *Matcher) count(s string) (int, error) {
	n := 0
	match, err := m.re.FindStringMatch(s)
	for match != nil && err == nil {
		n++
		match, err = m.re.FindNextMatch(match)
	}
	if err != nil {
		return 0, regexFailure(err)
	}
	return n, nil
}

func regexFailure(err error) error {
	if strings.Contains(err.Error(), "match timeout") {
		return domain.Errorf(domain.KindValidation, "regular expression took too long to evaluate")
	}
	return domain.Wrap(domain.KindValidation, err, "regular expression")
}
