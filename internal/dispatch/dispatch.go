// Package dispatch owns the bus's consumer loops: RPC dispatch, event
// dispatch, the reclaim pass, dead-letter routing, and the bounded worker
// pools. It is the only package that invokes user handlers.
package dispatch

import (
	"context"
	"log"

	"golang.org/x/sync/semaphore"

	"github.com/lightbus-go/lightbus/internal/hooks"
	"github.com/lightbus-go/lightbus/internal/schema"
)

// OnErrorPolicy controls what an event listener loop does when validation
// or the handler itself fails.
type OnErrorPolicy string

const (
	OnErrorRaise    OnErrorPolicy = "raise"
	OnErrorSwallow  OnErrorPolicy = "swallow"
	OnErrorRequeue  OnErrorPolicy = "requeue"
)

// Deps bundles the collaborators every dispatch loop needs, shared between
// the RPC and event dispatchers so both use the same hook bus and schema
// cache. Each dispatcher builds its own worker pool of Concurrency slots.
type Deps struct {
	Hooks       *hooks.Bus
	SchemaCache *schema.Cache
	Logger      *log.Logger
	Concurrency int64
}

func (d Deps) logger() *log.Logger {
	if d.Logger == nil {
		return log.Default()
	}
	return d.Logger
}

func (d Deps) newSemaphore() *semaphore.Weighted {
	n := d.Concurrency
	if n <= 0 {
		n = 10
	}
	return semaphore.NewWeighted(n)
}

// acquire blocks until a worker slot is free or ctx is cancelled.
func acquire(ctx context.Context, sem *semaphore.Weighted) bool {
	return sem.Acquire(ctx, 1) == nil
}
