package connreg

import (
	"context"
	"os"

	"goa.design/amby/telemetry"
	"goa.design/amby/wire"
)

// exitFunc terminates the process. It is a package variable so tests can
// substitute a non-fatal stand-in and observe that the poison path was
// taken instead of actually killing the test binary.
var exitFunc = func(code int) { os.Exit(code) }

// Guarded wraps a Registry with the broker's lock-poisoning discipline: a
// Go RWMutex cannot itself become "poisoned" the way a Rust RwLock can, but
// a worker goroutine that panics mid-access would otherwise leave no trace
// for the rest of the process to see. Guarded makes that failure explicit:
// every access runs under a recover(), and anything caught is logged and
// treated as fatal, matching the source policy that a poisoned registry
// lock is an unrecoverable invariant violation.
type Guarded struct {
	reg    *Registry
	logger telemetry.Logger
}

// NewGuarded wraps reg with fatal-on-panic semantics, logging through logger
// before exiting.
func NewGuarded(reg *Registry, logger telemetry.Logger) *Guarded {
	return &Guarded{reg: reg, logger: logger}
}

func (g *Guarded) poisoned(ctx context.Context, r any) {
	g.logger.Error(ctx, "registry lock poisoned", "panic", r)
	exitFunc(1)
}

// Set inserts or overwrites the connection registered under key.
func (g *Guarded) Set(ctx context.Context, key string, conn wire.Conn) {
	defer func() {
		if r := recover(); r != nil {
			g.poisoned(ctx, r)
		}
	}()
	g.reg.Set(key, conn)
}

// Get returns the connection registered under key, if any.
func (g *Guarded) Get(ctx context.Context, key string) (conn wire.Conn, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			g.poisoned(ctx, r)
		}
	}()
	conn, ok = g.reg.Get(key)
	return conn, ok
}

// SetIfAbsent inserts conn under key and reports true only if key was not
// already registered, checking and inserting under one write lock.
func (g *Guarded) SetIfAbsent(ctx context.Context, key string, conn wire.Conn) (inserted bool) {
	defer func() {
		if r := recover(); r != nil {
			g.poisoned(ctx, r)
		}
	}()
	inserted = g.reg.SetIfAbsent(key, conn)
	return inserted
}

// Delete removes the entry registered under key, if any.
func (g *Guarded) Delete(ctx context.Context, key string) {
	defer func() {
		if r := recover(); r != nil {
			g.poisoned(ctx, r)
		}
	}()
	g.reg.Delete(key)
}

// Snapshot returns a shallow copy of the registry's current contents.
func (g *Guarded) Snapshot(ctx context.Context) (snap map[string]wire.Conn) {
	defer func() {
		if r := recover(); r != nil {
			g.poisoned(ctx, r)
		}
	}()
	snap = g.reg.Snapshot()
	return snap
}

// NextEventKey mints the next event-subscriber key.
func (g *Guarded) NextEventKey(ctx context.Context) (key string) {
	defer func() {
		if r := recover(); r != nil {
			g.poisoned(ctx, r)
		}
	}()
	key = g.reg.NextEventKey()
	return key
}

// Len returns the number of entries currently registered.
func (g *Guarded) Len(ctx context.Context) (n int) {
	defer func() {
		if r := recover(); r != nil {
			g.poisoned(ctx, r)
		}
	}()
	n = g.reg.Len()
	return n
}
