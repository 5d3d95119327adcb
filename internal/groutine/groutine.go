package groutine

import (
	"context"
	"runtime/pprof"
	"sync"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts a goroutine labelled with name for pprof and GetName.
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Group tracks named background goroutines so an owner can wait for them.
// Go and Wait may be called concurrently from any goroutine, including ones
// the group tracks. The zero value is ready to use.
type Group struct {
	mu      sync.Mutex
	cond    *sync.Cond
	running int
	closed  bool
}

func (g *Group) initLocked() {
	if g.cond == nil {
		g.cond = sync.NewCond(&g.mu)
	}
}

// Go starts fn as a named goroutine tracked by the group.
// It returns false without starting fn once the group is closed.
func (g *Group) Go(parentCtx context.Context, name string, fn func(ctx context.Context)) bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	g.initLocked()
	g.running++
	g.mu.Unlock()

	Go(parentCtx, name, func(ctx context.Context) {
		defer g.done()
		fn(ctx)
	})
	return true
}

func (g *Group) done() {
	g.mu.Lock()
	g.running--
	if g.running == 0 {
		g.cond.Broadcast()
	}
	g.mu.Unlock()
}

// Close stops the group from accepting new goroutines.
// Goroutines already running are not affected; use Wait to block on them.
func (g *Group) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// Wait blocks until every goroutine started through the group has returned,
// including goroutines started while waiting by already tracked ones.
func (g *Group) Wait() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initLocked()
	for g.running > 0 {
		g.cond.Wait()
	}
}
