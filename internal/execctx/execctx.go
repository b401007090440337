// Package execctx carries the correlation id of the running execution unit.
//
// Every unit started by the coroutine package receives a context holding a
// unit-local slot. The owning handle writes the unit's cid into that slot
// once, when the unit begins running; loggers and tracers read it back with
// CurrentID. Contexts that never passed through WithUnit report 0.
package execctx

import (
	"context"
	"sync/atomic"
)

type slot struct {
	id atomic.Int64
}

type slotKey struct{}

var lastID atomic.Int64

// GenerateID returns a new process-unique positive id.
func GenerateID() int {
	return int(lastID.Add(1))
}

// WithUnit returns a context carrying a fresh unit-local slot. The slot starts
// with the id visible on the parent so nested units inherit their caller's
// correlation id until they set their own.
func WithUnit(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &slot{}
	s.id.Store(int64(CurrentID(ctx)))
	return context.WithValue(ctx, slotKey{}, s)
}

// WithID is shorthand for WithUnit followed by SetCurrentID.
func WithID(ctx context.Context, id int) context.Context {
	ctx = WithUnit(ctx)
	SetCurrentID(ctx, id)
	return ctx
}

// CurrentID reports the id stored in the nearest unit slot, or 0.
func CurrentID(ctx context.Context) int {
	s := slotFrom(ctx)
	if s == nil {
		return 0
	}
	return int(s.id.Load())
}

// SetCurrentID stores id in the nearest unit slot. It reports false when the
// context carries no slot.
func SetCurrentID(ctx context.Context, id int) bool {
	s := slotFrom(ctx)
	if s == nil {
		return false
	}
	s.id.Store(int64(id))
	return true
}

func slotFrom(ctx context.Context) *slot {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(slotKey{}).(*slot)
	return s
}
