package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ashureev/codespace/internal/dispatch"
	"github.com/ashureev/codespace/internal/domain"
	"github.com/ashureev/codespace/internal/live"
)

type request struct {
	ctx   context.Context
	run   func(ctx context.Context) (any, error)
	reply chan reply
}

type reply struct {
	value any
	err   error
}

// actor serializes every request for one session. Only its goroutine
// writes snapshot; readers load it without locking.
type actor struct {
	c  *Coordinator
	id string

	requests chan *request
	quit     chan struct{}
	stopped  chan struct{}
	snapshot atomic.Pointer[domain.Version]

	// Guarded by c.mu.
	pending    int
	lastActive time.Time
}

func newActor(c *Coordinator, id string) *actor {
	return &actor{
		c:          c,
		id:         id,
		requests:   make(chan *request, c.cfg.QueueDepth),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		lastActive: c.now(),
	}
}

func (a *actor) run() {
	defer close(a.stopped)
	for {
		select {
		case req := <-a.requests:
			a.handle(req)
		case <-a.quit:
			a.c.logger.Debug("Session actor stopped", "session_id", a.id)
			return
		}
	}
}

func (a *actor) handle(req *request) {
	// Requests abandoned while queued are skipped; once started they run
	// to completion.
	if err := req.ctx.Err(); err != nil {
		req.reply <- reply{err: err}
		return
	}
	v, err := req.run(context.WithoutCancel(req.ctx))
	req.reply <- reply{value: v, err: err}
}

// submit queues fn behind every earlier request for the session and
// waits for its result.
func (a *actor) submit(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	req := &request{ctx: ctx, run: fn, reply: make(chan reply, 1)}

	select {
	case a.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.stopped:
		return nil, ErrClosed
	}

	select {
	case r := <-req.reply:
		return r.value, r.err
	case <-a.stopped:
		select {
		case r := <-req.reply:
			return r.value, r.err
		default:
			return nil, ErrClosed
		}
	}
}

// load returns the current snapshot, reading it from the ledger the
// first time.
func (a *actor) load(ctx context.Context) (*domain.Version, error) {
	if v := a.snapshot.Load(); v != nil {
		return v, nil
	}
	v, err := a.c.ledger.Latest(ctx, a.id)
	switch {
	case domain.IsKind(err, domain.KindNotFound):
		v = &domain.Version{SessionID: a.id}
	case err != nil:
		return nil, err
	}
	a.snapshot.Store(v)
	return v, nil
}

// apply runs one mutation. Nothing is committed unless the ledger append
// succeeds; the notification goes out only after it.
func (a *actor) apply(ctx context.Context, method string, edit dispatch.Edit) (*MutationResult, error) {
	cur, err := a.load(ctx)
	if err != nil {
		return nil, err
	}

	res, err := a.c.dispatcher.Apply(ctx, cur.Bundle, edit)
	if err != nil {
		return nil, err
	}
	if !res.Changed {
		return &MutationResult{Version: cur.Seq, Hash: cur.Hash}, nil
	}

	var prev *domain.Version
	if cur.Seq > 0 {
		prev = cur
	}
	next, err := a.c.ledger.Append(ctx, a.id, prev, res.Bundle, res.CompileError)
	if err != nil {
		// The ledger may have moved under us; reload on the next request.
		a.snapshot.Store(nil)
		a.c.logger.Warn("Mutation aborted", "session_id", a.id, "method", method, "version", cur.Seq, "error", err)
		return nil, err
	}
	a.snapshot.Store(next)

	if a.c.notifier != nil {
		a.c.notifier.Notify(live.NewNotification(cur, next))
	}

	a.c.logger.Info("Version committed",
		"session_id", a.id,
		"method", method,
		"version", next.Seq,
		"compile_failed", next.CompileError != nil,
	)
	return &MutationResult{
		Version:      next.Seq,
		Hash:         next.Hash,
		Changed:      true,
		Replacements: res.Replacements,
		CompileError: next.CompileError,
	}, nil
}
