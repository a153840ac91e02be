// Package lazy provides keyed at-most-once initialization. Each key is either
// not started, in progress (callers join the running build) or ready (the
// value is returned without building again). Failed builds leave the key not
// started so the next caller retries.
package lazy

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

type State int

const (
	NotStarted State = iota
	InProgress
	Ready
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "in-progress"
	case Ready:
		return "ready"
	default:
		return "not-started"
	}
}

type Group[K comparable, V any] struct {
	mu       sync.Mutex
	ready    map[K]V
	building map[K]bool
	gen      map[K]uint64
	flight   singleflight.Group
}

func NewGroup[K comparable, V any]() *Group[K, V] {
	return &Group[K, V]{
		ready:    make(map[K]V),
		building: make(map[K]bool),
		gen:      make(map[K]uint64),
	}
}

// Do returns the value for key, building it with build if nobody has yet.
// The build runs detached from the caller's cancellation because other
// callers may be waiting on it; ctx only bounds how long this caller waits.
func (g *Group[K, V]) Do(ctx context.Context, key K, build func(context.Context) (V, error)) (V, error) {
	var zero V

	g.mu.Lock()
	if v, ok := g.ready[key]; ok {
		g.mu.Unlock()
		return v, nil
	}
	g.mu.Unlock()

	ch := g.flight.DoChan(flightKey(key), func() (interface{}, error) {
		g.mu.Lock()
		if v, ok := g.ready[key]; ok {
			g.mu.Unlock()
			return v, nil
		}
		g.building[key] = true
		startGen := g.gen[key]
		g.mu.Unlock()

		v, err := build(context.WithoutCancel(ctx))

		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.building, key)
		if err != nil {
			return nil, err
		}
		// A Forget during the build invalidates its result.
		if g.gen[key] == startGen {
			g.ready[key] = v
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Peek returns the value only if it is ready.
func (g *Group[K, V]) Peek(key K) (V, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.ready[key]
	return v, ok
}

func (g *Group[K, V]) State(key K) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.ready[key]; ok {
		return Ready
	}
	if g.building[key] {
		return InProgress
	}
	return NotStarted
}

// Forget drops a ready value so the next Do builds again.
func (g *Group[K, V]) Forget(key K) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.ready, key)
	g.gen[key]++
	g.flight.Forget(flightKey(key))
}

// Value is a single-key Group.
type Value[V any] struct {
	group *Group[struct{}, V]
}

func NewValue[V any]() *Value[V] {
	return &Value[V]{group: NewGroup[struct{}, V]()}
}

func (v *Value[V]) Get(ctx context.Context, build func(context.Context) (V, error)) (V, error) {
	return v.group.Do(ctx, struct{}{}, build)
}

func (v *Value[V]) Peek() (V, bool) {
	return v.group.Peek(struct{}{})
}

func (v *Value[V]) State() State {
	return v.group.State(struct{}{})
}

func (v *Value[V]) Reset() {
	v.group.Forget(struct{}{})
}

func flightKey[K comparable](key K) string {
	return fmt.Sprintf("%T:%v", key, key)
}
