package compiler

import (
	"context"
	"html"
)

// Echo is a development compiler. It passes source through as the script
// and renders a mount point plus a preformatted copy as markup.
type Echo struct{}

// Compile never fails unless ctx is done.
func (Echo) Compile(ctx context.Context, source string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{
		OK:   true,
		JS:   source,
		HTML: `<div id="root"></div><pre>` + html.EscapeString(source) + `</pre>`,
		CSS:  "#root{min-height:100%}",
	}, nil
}
