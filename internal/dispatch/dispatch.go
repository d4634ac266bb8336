// Package dispatch validates and applies codespace mutations and runs the
// compile step shared by every source-changing operation.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/codespace/internal/compiler"
	"github.com/ashureev/codespace/internal/domain"
	"github.com/ashureev/codespace/internal/metrics"
)

// DefaultCompileTimeout is used when no timeout is configured.
const DefaultCompileTimeout = 10 * time.Second

// Outcome is the effect of an edit on the source text.
type Outcome struct {
	Source       string
	Replacements int
	// Changed is false for a no-op, which produces no version.
	Changed bool
}

// Edit transforms the current source.
type Edit func(source string) (Outcome, error)

// ReplaceAll discards the source and uses newSource. It always counts as
// a change.
func ReplaceAll(newSource string) Edit {
	return func(string) (Outcome, error) {
		return Outcome{Source: newSource, Changed: true}, nil
	}
}

// LineRange replaces the inclusive line range start..end with content.
func LineRange(start, end int, content string) Edit {
	return func(source string) (Outcome, error) {
		out, err := EditLines(source, start, end, content)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Source: out, Changed: true}, nil
	}
}

// Pattern substitutes every match of m with replacement. Zero matches is
// a no-op.
func Pattern(m *Matcher, replacement string) Edit {
	return func(source string) (Outcome, error) {
		out, n, err := m.Replace(source, replacement)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Source: out, Replacements: n, Changed: n > 0}, nil
	}
}

// Result is an applied edit together with the artifacts it produced.
type Result struct {
	Outcome
	Bundle       domain.Bundle
	CompileError *domain.CompileError
}

// Dispatcher applies edits and compiles the resulting source.
type Dispatcher struct {
	compiler compiler.Compiler
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a dispatcher. A non-positive timeout selects
// DefaultCompileTimeout.
func New(c compiler.Compiler, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultCompileTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{compiler: c, timeout: timeout, logger: logger}
}

// Apply runs edit against current. A no-op returns current unchanged and
// never reaches the compiler.
func (d *Dispatcher) Apply(ctx context.Context, current domain.Bundle, edit Edit) (*Result, error) {
	out, err := edit(current.Source)
	if err != nil {
		return nil, err
	}
	if !out.Changed {
		return &Result{Outcome: out, Bundle: current}, nil
	}
	bundle, compileErr := d.Compile(ctx, current, out.Source)
	return &Result{Outcome: out, Bundle: bundle, CompileError: compileErr}, nil
}

// Compile builds the bundle for source. On failure or timeout the source
// still advances and prev's compiled output, markup and style are kept.
func (d *Dispatcher) Compile(ctx context.Context, prev domain.Bundle, source string) (domain.Bundle, *domain.CompileError) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type answer struct {
		res compiler.Result
		err error
	}
	done := make(chan answer, 1)
	start := time.Now()
	go func() {
		res, err := d.compiler.Compile(ctx, source)
		done <- answer{res, err}
	}()

	var a answer
	select {
	case a = <-done:
	case <-ctx.Done():
		a.err = ctx.Err()
	}

	kept := domain.Bundle{Source: source, Compiled: prev.Compiled, HTML: prev.HTML, CSS: prev.CSS}
	elapsed := time.Since(start)

	switch {
	case a.err != nil && ctx.Err() != nil:
		metrics.CompileDuration.WithLabelValues("timeout").Observe(elapsed.Seconds())
		d.logger.Warn("Compile timed out", "timeout", d.timeout, "error", a.err)
		return kept, &domain.CompileError{Diagnostics: fmt.Sprintf("compile timed out after %s", d.timeout)}
	case a.err != nil:
		metrics.CompileDuration.WithLabelValues("error").Observe(elapsed.Seconds())
		d.logger.Warn("Compiler unavailable", "error", a.err)
		return kept, &domain.CompileError{Diagnostics: "compiler unavailable: " + a.err.Error()}
	case !a.res.OK:
		metrics.CompileDuration.WithLabelValues("failed").Observe(elapsed.Seconds())
		return kept, &domain.CompileError{Diagnostics: a.res.Diagnostics}
	}

	metrics.CompileDuration.WithLabelValues("ok").Observe(elapsed.Seconds())
	return domain.Bundle{Source: source, Compiled: a.res.JS, HTML: a.res.HTML, CSS: a.res.CSS}, nil
}
