// Package lightbus is the user-facing façade of the bus client: Call,
// Fire, Listen, RegisterAPI, Start, Stop. It composes the transport,
// schema, API registry, dispatcher, hook, and lifecycle packages under
// internal/ into the single type applications hold, wiring transports,
// building the bus, and coordinating shutdown as a reusable, restartable
// type rather than a one-shot main().
package lightbus

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lightbus-go/lightbus/internal/api"
	"github.com/lightbus-go/lightbus/internal/codec"
	"github.com/lightbus-go/lightbus/internal/config"
	"github.com/lightbus-go/lightbus/internal/dispatch"
	"github.com/lightbus-go/lightbus/internal/errs"
	"github.com/lightbus-go/lightbus/internal/hooks"
	"github.com/lightbus-go/lightbus/internal/lifecycle"
	"github.com/lightbus-go/lightbus/internal/message"
	"github.com/lightbus-go/lightbus/internal/schedule"
	"github.com/lightbus-go/lightbus/internal/schema"
	"github.com/lightbus-go/lightbus/internal/telemetry"
	"github.com/lightbus-go/lightbus/internal/transport"
	redistransport "github.com/lightbus-go/lightbus/internal/transport/redis"
)

// Address names one api_name/event_name pair, the unit Listen registers
// against.
type Address struct {
	API   string
	Event string
}

func (a Address) eventAddress() transport.EventAddress {
	return transport.EventAddress{ApiName: a.API, EventName: a.Event}
}

// Client is the process-local façade that owns transports, the schema
// cache, the API registry, and the dispatcher. Instantiate one per
// process; transports and background loops are exclusively owned by the
// instance that opened them.
type Client struct {
	cfg    config.Config
	logger *log.Logger

	registry    *api.Registry
	schemaCache *schema.Cache
	hookBus     *hooks.Bus
	codecs      *codec.Registry
	life        *lifecycle.Manager
	scheduler   schedule.Scheduler

	rpcTransport    transport.RpcTransport
	resultTransport transport.ResultTransport
	eventTransport  transport.EventTransport
	schemaTransport transport.SchemaTransport

	consumerName string

	listeners    []dispatch.EventListener
	listenerKeys map[string]bool
	peerAPIs     map[string]bool

	redisClient *goredis.Client
	run         *runState
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithLogger overrides the default stderr logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithCodec registers an additional codec, resolvable by the identifier it
// reports from Name().
func WithCodec(cd codec.Codec) Option {
	return func(c *Client) { c.codecs.Register(cd) }
}

// New builds a Client from cfg. It does not open any connections; call
// Start to do that. Only the "redis" transport backend is built in;
// requesting another name in cfg.Transport fails at construction.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	c := &Client{
		cfg:          cfg,
		registry:     api.NewRegistry(),
		schemaCache:  schema.NewCache(),
		codecs:       codec.NewRegistry(),
		consumerName: "lightbus-" + uuid.NewString(),
		listenerKeys: make(map[string]bool),
		peerAPIs:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = telemetry.NewLogger(c.logger)
	c.hookBus = hooks.New(c.logger)
	c.life = lifecycle.New(cfg.Worker.GracefulShutdownTimeout, c.logger)
	c.scheduler = schedule.NewTickerScheduler(c.logger)

	if err := c.buildTransports(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) buildTransports() error {
	t := c.cfg.Transport
	if t.RpcTransport != "redis" || t.ResultTransport != "redis" || t.EventTransport != "redis" || t.SchemaTransport != "redis" {
		return errs.New(errs.KindConfiguration, "only the redis transport backend is built in")
	}

	c.redisClient = goredis.NewClient(&goredis.Options{
		Addr:     t.RedisAddr,
		Password: t.RedisPassword,
		DB:       t.RedisDB,
	})

	ackTimeout := c.cfg.Worker.AcknowledgementTimeout
	c.rpcTransport = redistransport.NewRpcTransport(c.redisClient, t.KeyPrefix, ackTimeout)
	c.resultTransport = redistransport.NewResultTransport(c.redisClient, t.KeyPrefix)
	c.eventTransport = redistransport.NewEventTransport(c.redisClient, t.KeyPrefix, 0)
	c.schemaTransport = redistransport.NewSchemaTransport(c.redisClient, t.KeyPrefix)
	return nil
}

// RegisterHook adds fn to the fixed lifecycle hook point, run in
// registration order (reverse order for after_* points).
func (c *Client) RegisterHook(point hooks.Point, fn hooks.Func) {
	c.hookBus.Register(point, fn)
}

// RegisterAPI adds an API definition to the in-process registry. Its
// methods become callable by peers once Start has published its schema.
// Re-registering a name already present is allowed as long as no method or
// event is removed; removing one raises SchemaConflict. Changes to a
// member's parameter or response schema are not checked.
func (c *Client) RegisterAPI(def api.Definition) error {
	return c.registry.Register(def)
}

// Listen registers handler to be invoked at-least-once per event per
// listenerName group, for every address in addresses. Registration is
// rejected with DuplicateListener if listenerName already covers one of
// the given addresses in this client.
func (c *Client) Listen(addresses []Address, listenerName string, handler api.EventHandler, opts ...ListenOption) error {
	o := defaultListenOptions()
	for _, opt := range opts {
		opt(&o)
	}

	eventAddrs := make([]transport.EventAddress, 0, len(addresses))
	for _, a := range addresses {
		key := message.ListenerRegistration{ListenerName: listenerName, ApiName: a.API, EventName: a.Event}.Key()
		if c.listenerKeys[key] {
			return errs.New(errs.KindDuplicateListener, "listener "+listenerName+" already registered for "+a.API+"."+a.Event)
		}
		c.listenerKeys[key] = true
		eventAddrs = append(eventAddrs, a.eventAddress())
	}

	c.listeners = append(c.listeners, dispatch.EventListener{
		ListenerName: listenerName,
		Addresses:    eventAddrs,
		Handler:      handler,
		OnError:      o.OnError,
		Since:        o.Since,
	})
	return nil
}

// Call invokes method on api, blocking until the responder's result
// arrives or the deadline expires. At most one handler executes for a
// given call.
func (c *Client) Call(ctx context.Context, apiName, method string, kwargs map[string]interface{}, opts ...CallOption) (interface{}, error) {
	if !c.life.Ready() {
		return nil, errs.New(errs.KindLifecycleError, "call issued while client is not running")
	}

	o := defaultCallOptions()
	if apiCfg, ok := c.cfg.APIs[apiName]; ok {
		o.Timeout = apiCfg.RpcTimeout
		o.Validate = ValidateScope(apiCfg.Validate)
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.Validate.checksOutgoing() {
		if compiled, ok := c.ensureSchema(ctx, apiName); ok {
			if err := compiled.ValidateParams(method, kwargs); err != nil {
				return nil, err
			}
		}
	}

	msg := &message.RpcMessage{
		ID:            message.NewID(),
		ApiName:       apiName,
		ProcedureName: method,
		Kwargs:        kwargs,
		Metadata:      map[string]string{"codec": codec.JSONCodecName},
		Timeout:       o.Timeout,
		CreatedAt:     time.Now(),
	}
	msg.ReturnPath = c.consumerName + ":" + msg.ID

	if err := c.rpcTransport.Publish(ctx, msg); err != nil {
		return nil, err
	}

	result, err := c.resultTransport.ReceiveResult(ctx, msg, msg.ReturnPath, o.Timeout)
	if err != nil {
		if errs.Is(err, errs.KindRpcTimeout) {
			if has, hErr := c.rpcTransport.HasResponders(ctx, apiName); hErr == nil && !has {
				return nil, errs.New(errs.KindNoResponders, "no responders for "+apiName)
			}
		}
		return nil, err
	}

	if result.Error != nil {
		return nil, errs.New(errs.KindRemoteError, fmt.Sprintf("%s: %s", result.Error.Kind, result.Error.Message))
	}
	return result.Result, nil
}

// Fire publishes an event to every listener group subscribed at the time
// of publication. It returns once the broker has durably accepted the
// event; consumer delivery happens asynchronously.
func (c *Client) Fire(ctx context.Context, apiName, event string, kwargs map[string]interface{}, opts ...FireOption) error {
	if !c.life.Ready() {
		return errs.New(errs.KindLifecycleError, "fire issued while client is not running")
	}

	o := defaultFireOptions()
	if apiCfg, ok := c.cfg.APIs[apiName]; ok {
		o.Validate = ValidateScope(apiCfg.Validate)
	}
	for _, opt := range opts {
		opt(&o)
	}

	c.hookBus.Run(ctx, hooks.BeforeFireEvent, kwargs)
	defer c.hookBus.RunReverse(ctx, hooks.AfterFireEvent, kwargs)

	if o.Validate.checksOutgoing() {
		if compiled, ok := c.ensureSchema(ctx, apiName); ok {
			if err := compiled.ValidateEvent(event, kwargs); err != nil {
				return err
			}
		}
	}

	msg := &message.EventMessage{
		ID:        message.NewID(),
		ApiName:   apiName,
		EventName: event,
		Kwargs:    kwargs,
		Metadata:  map[string]string{"codec": codec.JSONCodecName},
		CreatedAt: time.Now(),
	}
	return c.eventTransport.SendEvent(ctx, msg)
}

// ensureSchema returns the compiled schema for apiName, loading and
// compiling it from SchemaTransport on first use if this process didn't
// register apiName itself. ok is false when no schema could be found,
// which is not itself an error: a missing remote schema lets a call
// proceed, since the responder validates on ingress anyway.
func (c *Client) ensureSchema(ctx context.Context, apiName string) (*schema.Compiled, bool) {
	if compiled, ok := c.schemaCache.Get(apiName); ok {
		return compiled, true
	}

	raw, found, err := c.schemaTransport.Load(ctx, apiName)
	if err != nil || !found {
		return nil, false
	}
	var entry message.SchemaEntry
	if err := c.codecDefault().Unmarshal(raw, &entry); err != nil {
		return nil, false
	}
	compiled, err := schema.Compile(entry)
	if err != nil {
		return nil, false
	}
	c.schemaCache.Put(apiName, compiled)
	c.peerAPIs[apiName] = true
	return compiled, true
}

func (c *Client) codecDefault() codec.Codec {
	cd, _ := c.codecs.Resolve("")
	return cd
}
