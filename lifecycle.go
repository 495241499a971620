package lightbus

import (
	"context"
	"sync"

	"github.com/lightbus-go/lightbus/internal/dispatch"
	"github.com/lightbus-go/lightbus/internal/errs"
	"github.com/lightbus-go/lightbus/internal/hooks"
	"github.com/lightbus-go/lightbus/internal/lifecycle"
	"github.com/lightbus-go/lightbus/internal/message"
	"github.com/lightbus-go/lightbus/internal/schema"
)

// runState holds everything Start spins up that Stop must later tear
// down: the dispatcher goroutines' cancellation and the WaitGroup that
// lets Stop block until their Run calls return.
type runState struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start opens every transport, publishes this client's registered API
// schemas, runs before_server_start hooks, spawns the RPC and event
// consumer loops, and the background schema-refresh task, then marks the
// client ready to serve Call/Fire. On any failure, transports
// already opened are rolled back and Start returns the triggering error,
// per the design's §4.5 start sequence.
func (c *Client) Start(ctx context.Context) error {
	apiNames := make([]string, 0, len(c.registry.All()))
	for _, def := range c.registry.All() {
		apiNames = append(apiNames, def.Name)
	}
	run := &runState{}

	steps := []lifecycle.Step{
		{Name: "open-rpc-transport", Run: c.rpcTransport.Open, Rollback: c.rpcTransport.Close},
		{Name: "open-result-transport", Run: c.resultTransport.Open, Rollback: c.resultTransport.Close},
		{Name: "open-event-transport", Run: c.eventTransport.Open, Rollback: c.eventTransport.Close},
		{Name: "open-schema-transport", Run: c.schemaTransport.Open, Rollback: c.schemaTransport.Close},
		{Name: "publish-schemas", Run: c.publishSchemas},
		{
			Name: "before-server-start-hooks",
			Run: func(ctx context.Context) error {
				c.hookBus.Run(ctx, hooks.BeforeServerStart, c)
				return nil
			},
		},
		{
			Name: "spawn-loops",
			Run: func(ctx context.Context) error {
				return c.spawnLoops(ctx, apiNames, run)
			},
		},
	}

	if err := c.life.Start(ctx, steps...); err != nil {
		return err
	}

	c.registry.MarkStarted()
	c.run = run
	return nil
}

// publishSchemas writes the current schema document for every locally
// registered API via SchemaTransport and seeds the local schema cache so
// this process validates its own traffic against the same document it
// publishes.
func (c *Client) publishSchemas(ctx context.Context) error {
	ttl := c.cfg.Worker.SchemaTTL
	for _, def := range c.registry.All() {
		version := c.registry.Version(def.Name)
		entry := def.SchemaEntry(version)

		compiled, err := schema.Compile(entry)
		if err != nil {
			return err
		}
		c.schemaCache.Put(def.Name, compiled)

		raw, err := c.codecDefault().Marshal(entry)
		if err != nil {
			return errs.Wrap(errs.KindConfiguration, "marshalling schema for "+def.Name, err)
		}
		if err := c.schemaTransport.Store(ctx, def.Name, raw, ttl); err != nil {
			return err
		}
	}
	return nil
}

// spawnLoops starts the RPC dispatcher (if this client registered any
// APIs), the event dispatcher (if this client registered any listeners),
// and the schema refresh/ping scheduler, all under a context Stop later
// cancels.
func (c *Client) spawnLoops(ctx context.Context, apiNames []string, run *runState) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	run.cancel = cancel

	deps := dispatch.Deps{
		Hooks:       c.hookBus,
		SchemaCache: c.schemaCache,
		Logger:      c.logger,
		Concurrency: int64(c.cfg.Worker.Concurrency),
	}

	if len(apiNames) > 0 {
		rpcDispatcher := dispatch.NewRpcDispatcher(deps, c.registry, c.rpcTransport, c.resultTransport, c.consumerName)
		run.wg.Add(1)
		go func() {
			defer run.wg.Done()
			if err := rpcDispatcher.Run(loopCtx, apiNames); err != nil {
				c.logger.Printf("lightbus: rpc dispatcher stopped: %v", err)
			}
		}()
	}

	if len(c.listeners) > 0 {
		eventDispatcher := dispatch.NewEventDispatcher(
			deps, c.eventTransport, c.consumerName,
			c.cfg.Worker.AcknowledgementTimeout,
			c.cfg.Worker.ReclaimInterval,
			c.cfg.Worker.MaxRedeliveries,
		)
		run.wg.Add(1)
		go func() {
			defer run.wg.Done()
			if err := eventDispatcher.Run(loopCtx, c.listeners); err != nil {
				c.logger.Printf("lightbus: event dispatcher stopped: %v", err)
			}
		}()
	}

	if c.cfg.Worker.SchemaTTL > 0 {
		c.scheduler.Register("schema-refresh", c.cfg.Worker.SchemaTTL/2, c.refreshSchemas)
	}
	c.scheduler.Start(loopCtx)

	return nil
}

// refreshSchemas pings this client's own published schemas (keeping their
// TTL alive) and reloads/recompiles any peer schema this client has
// previously looked up, so a change on the publishing side propagates to
// this cache without a restart.
func (c *Client) refreshSchemas(ctx context.Context) error {
	ttl := c.cfg.Worker.SchemaTTL
	for _, def := range c.registry.All() {
		if err := c.schemaTransport.Ping(ctx, def.Name, ttl); err != nil {
			c.logger.Printf("lightbus: schema ping failed for %s: %v", def.Name, err)
		}
	}
	for apiName := range c.peerAPIs {
		raw, found, err := c.schemaTransport.Load(ctx, apiName)
		if err != nil || !found {
			continue
		}
		var entry message.SchemaEntry
		if err := c.codecDefault().Unmarshal(raw, &entry); err != nil {
			continue
		}
		compiled, err := schema.Compile(entry)
		if err != nil {
			continue
		}
		c.schemaCache.Put(apiName, compiled)
	}
	return nil
}

// Stop refuses new Call/Fire (via Ready()), drains in-flight
// handlers for up to the configured graceful-shutdown timeout, closes
// every transport, and runs after_server_stopped hooks, per the design's
// §4.5 stop sequence.
func (c *Client) Stop(ctx context.Context) error {
	if c.run == nil {
		return errs.New(errs.KindLifecycleError, "stop called before a successful start")
	}

	drain := func(ctx context.Context) error {
		c.run.cancel()
		c.scheduler.Stop()
		done := make(chan struct{})
		go func() {
			c.run.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return errs.New(errs.KindCancelled, "graceful shutdown timeout exceeded waiting for in-flight handlers")
		}
	}

	closers := []lifecycle.Step{
		{Name: "close-rpc-transport", Run: c.rpcTransport.Close},
		{Name: "close-result-transport", Run: c.resultTransport.Close},
		{Name: "close-event-transport", Run: c.eventTransport.Close},
		{Name: "close-schema-transport", Run: c.schemaTransport.Close},
		{Name: "close-redis-client", Run: func(context.Context) error { return c.redisClient.Close() }},
	}

	err := c.life.Stop(ctx, drain, closers...)
	c.hookBus.RunReverse(ctx, hooks.AfterServerStopped, c)
	return err
}
