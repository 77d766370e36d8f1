package client

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Coordinator runs fn at most once at a time per key; concurrent callers with the same key
// share the result. A multi-instance deployment needs an implementation backed by shared
// state.
type Coordinator interface {
	Do(ctx context.Context, key string, fn func(ctx context.Context) (Tokens, error)) (Tokens, error)
}

// LocalCoordinator coalesces calls inside one process.
type LocalCoordinator struct {
	group singleflight.Group
}

func NewLocalCoordinator() *LocalCoordinator {
	return &LocalCoordinator{}
}

// Do runs fn detached from the caller's cancellation. A caller whose ctx ends stops waiting;
// the shared call keeps going for the others.
func (c *LocalCoordinator) Do(ctx context.Context, key string, fn func(ctx context.Context) (Tokens, error)) (Tokens, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return Tokens{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Tokens{}, res.Err
		}
		return res.Val.(Tokens), nil
	}
}
