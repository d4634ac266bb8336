// Package session owns every live codespace through a single-writer actor
// per session id.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/codespace/internal/dispatch"
	"github.com/ashureev/codespace/internal/domain"
	"github.com/ashureev/codespace/internal/identity"
	"github.com/ashureev/codespace/internal/ledger"
	"github.com/ashureev/codespace/internal/live"
	"github.com/ashureev/codespace/internal/metrics"
)

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("coordinator closed")

// DefaultQueueDepth is the buffered request queue per session.
const DefaultQueueDepth = 64

// Notifier receives a notification for every committed version.
type Notifier interface {
	Notify(n live.Notification)
}

// Config tunes the coordinator.
type Config struct {
	QueueDepth   int
	IdleTTL      time.Duration
	MatchTimeout time.Duration
	Logger       *slog.Logger
}

// MutationResult is the outcome of a write operation.
type MutationResult struct {
	Version      int64
	Hash         string
	Changed      bool
	Replacements int
	CompileError *domain.CompileError
}

// Coordinator routes requests to per-session actors, creating them on
// first reference.
type Coordinator struct {
	ledger     *ledger.Ledger
	dispatcher *dispatch.Dispatcher
	notifier   Notifier
	cfg        Config
	logger     *slog.Logger

	mu     sync.Mutex
	actors map[string]*actor
	closed bool
	wg     sync.WaitGroup
	now    func() time.Time
}

// New creates a coordinator.
func New(l *ledger.Ledger, d *dispatch.Dispatcher, n Notifier, cfg Config) *Coordinator {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.MatchTimeout <= 0 {
		cfg.MatchTimeout = dispatch.DefaultMatchTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		ledger:     l,
		dispatcher: d,
		notifier:   n,
		cfg:        cfg,
		logger:     logger,
		actors:     make(map[string]*actor),
		now:        time.Now,
	}
}

// UpdateCode replaces the whole source.
func (c *Coordinator) UpdateCode(ctx context.Context, id, source string) (*MutationResult, error) {
	return c.mutate(ctx, id, "update_code", dispatch.ReplaceAll(source))
}

// EditCode replaces the inclusive line range start..end with content.
func (c *Coordinator) EditCode(ctx context.Context, id string, start, end int, content string) (*MutationResult, error) {
	return c.mutate(ctx, id, "edit_code", dispatch.LineRange(start, end, content))
}

// SearchReplace substitutes every match of pattern. Zero matches leaves
// the version unchanged.
func (c *Coordinator) SearchReplace(ctx context.Context, id, pattern, replacement string, isRegex bool) (*MutationResult, error) {
	m, err := dispatch.NewMatcher(pattern, isRegex, c.cfg.MatchTimeout)
	if err != nil {
		return nil, err
	}
	return c.mutate(ctx, id, "search_and_replace", dispatch.Pattern(m, replacement))
}

// FindLines returns the lines of the current source matching pattern.
func (c *Coordinator) FindLines(ctx context.Context, id, pattern string, isRegex bool) ([]dispatch.LineMatch, int64, error) {
	m, err := dispatch.NewMatcher(pattern, isRegex, c.cfg.MatchTimeout)
	if err != nil {
		return nil, 0, err
	}
	v, err := c.Current(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	matches, err := m.Find(v.Bundle.Source)
	if err != nil {
		return nil, 0, err
	}
	return matches, v.Seq, nil
}

// Current returns a consistent snapshot of the session. An unseen session
// is version 0 with empty fields.
func (c *Coordinator) Current(ctx context.Context, id string) (*domain.Version, error) {
	if err := identity.ValidateCodespaceID(id); err != nil {
		return nil, err
	}
	a, err := c.acquire(id)
	if err != nil {
		return nil, err
	}
	defer c.release(a)

	if v := a.snapshot.Load(); v != nil {
		return v, nil
	}
	out, err := a.submit(ctx, func(ctx context.Context) (any, error) {
		return a.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.(*domain.Version), nil
}

// Version returns one historical version, hash verified.
func (c *Coordinator) Version(ctx context.Context, id string, seq int64) (*domain.Version, error) {
	if err := identity.ValidateCodespaceID(id); err != nil {
		return nil, err
	}
	return c.ledger.Get(ctx, id, seq)
}

// ActiveSessions returns the number of resident actors.
func (c *Coordinator) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actors)
}

// Close stops every actor after its current request.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	for id, a := range c.actors {
		close(a.quit)
		delete(c.actors, id)
		metrics.ActiveSessions.Dec()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) mutate(ctx context.Context, id, method string, edit dispatch.Edit) (*MutationResult, error) {
	if err := identity.ValidateCodespaceID(id); err != nil {
		return nil, err
	}
	a, err := c.acquire(id)
	if err != nil {
		return nil, err
	}
	defer c.release(a)

	out, err := a.submit(ctx, func(ctx context.Context) (any, error) {
		return a.apply(ctx, method, edit)
	})
	if err != nil {
		return nil, err
	}
	return out.(*MutationResult), nil
}

// acquire returns the actor for id, creating it if needed, and marks a
// request pending so the reaper leaves it alone.
func (c *Coordinator) acquire(id string) (*actor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	a, ok := c.actors[id]
	if !ok {
		a = newActor(c, id)
		c.actors[id] = a
		metrics.ActiveSessions.Inc()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			a.run()
		}()
		c.logger.Debug("Session actor started", "session_id", id)
	}
	a.pending++
	return a, nil
}

func (c *Coordinator) release(a *actor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a.pending--
	a.lastActive = c.now()
}
