package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/lightbus-go/lightbus/internal/api"
	"github.com/lightbus-go/lightbus/internal/errs"
	"github.com/lightbus-go/lightbus/internal/hooks"
	"github.com/lightbus-go/lightbus/internal/message"
	"github.com/lightbus-go/lightbus/internal/transport"
)

// RpcDispatcher runs the consumer loop for every locally-registered API,
// validating, invoking, and replying to each call before acknowledging it:
// ack only after the reply has been durably sent.
type RpcDispatcher struct {
	deps      Deps
	apis      *api.Registry
	rpc       transport.RpcTransport
	result    transport.ResultTransport
	sem       *semaphore.Weighted
	consumer  string

	wg sync.WaitGroup
}

// NewRpcDispatcher builds an RpcDispatcher for consumerName, a broker-wide
// unique identity for this process's worker replica.
func NewRpcDispatcher(deps Deps, apis *api.Registry, rpc transport.RpcTransport, result transport.ResultTransport, consumerName string) *RpcDispatcher {
	return &RpcDispatcher{
		deps:     deps,
		apis:     apis,
		rpc:      rpc,
		result:   result,
		sem:      deps.newSemaphore(),
		consumer: consumerName,
	}
}

// Run subscribes to apiNames and dispatches deliveries until ctx is
// cancelled, at which point it waits for in-flight handlers to finish.
func (d *RpcDispatcher) Run(ctx context.Context, apiNames []string) error {
	deliveries, err := d.rpc.Consume(ctx, apiNames, d.consumer)
	if err != nil {
		return errs.Wrap(errs.KindTransportFailure, "starting rpc consume", err)
	}

	for delivery := range deliveries {
		if !acquire(ctx, d.sem) {
			break
		}
		d.wg.Add(1)
		go func(del transport.RpcDelivery) {
			defer d.sem.Release(1)
			defer d.wg.Done()
			d.handle(ctx, del)
		}(delivery)
	}

	d.wg.Wait()
	return nil
}

func (d *RpcDispatcher) handle(ctx context.Context, delivery transport.RpcDelivery) {
	rpcMsg := delivery.Message
	logger := d.deps.logger()

	method, err := d.apis.Method(rpcMsg.ApiName, rpcMsg.ProcedureName)
	if err != nil {
		if err := d.reply(ctx, rpcMsg, nil, &message.RemoteErrorInfo{Kind: message.RemoteErrorInternal, Message: err.Error()}); err != nil {
			logger.Printf("rpc dispatch: failed to send result for %s: %v", rpcMsg.ID, err)
			return
		}
		d.ack(ctx, delivery.Lease)
		return
	}

	if compiled, ok := d.deps.SchemaCache.Get(rpcMsg.ApiName); ok {
		if err := compiled.ValidateParams(rpcMsg.ProcedureName, rpcMsg.Kwargs); err != nil {
			if err := d.reply(ctx, rpcMsg, nil, &message.RemoteErrorInfo{Kind: message.RemoteErrorValidation, Message: err.Error()}); err != nil {
				logger.Printf("rpc dispatch: failed to send result for %s: %v", rpcMsg.ID, err)
				return
			}
			d.ack(ctx, delivery.Lease)
			return
		}
	}

	d.deps.Hooks.Run(ctx, hooks.BeforeInvocation, rpcMsg)

	result, handlerErr := d.invoke(ctx, method, rpcMsg)

	d.deps.Hooks.RunReverse(ctx, hooks.AfterInvocation, rpcMsg)

	var remoteErr *message.RemoteErrorInfo
	if handlerErr != nil {
		kind := message.RemoteErrorHandler
		if ctx.Err() != nil {
			kind = message.RemoteErrorCancelled
		}
		remoteErr = &message.RemoteErrorInfo{Kind: kind, Message: handlerErr.Error()}
		d.deps.Hooks.Run(ctx, hooks.Exception, handlerErr)
	}

	if err := d.reply(ctx, rpcMsg, result, remoteErr); err != nil {
		logger.Printf("rpc dispatch: failed to send result for %s: %v", rpcMsg.ID, err)
		return
	}

	d.ack(ctx, delivery.Lease)
}

func (d *RpcDispatcher) invoke(ctx context.Context, method api.Method, rpcMsg *message.RpcMessage) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.KindRemoteError, "handler panicked")
		}
	}()
	return method.Handler(ctx, rpcMsg.Kwargs)
}

func (d *RpcDispatcher) reply(ctx context.Context, rpcMsg *message.RpcMessage, result interface{}, remoteErr *message.RemoteErrorInfo) error {
	resultMsg := &message.ResultMessage{
		ID:           message.NewID(),
		RpcMessageID: rpcMsg.ID,
		Result:       result,
		Error:        remoteErr,
		Metadata:     rpcMsg.Metadata,
	}
	return d.result.SendResult(ctx, rpcMsg, resultMsg, rpcMsg.ReturnPath)
}

func (d *RpcDispatcher) ack(ctx context.Context, lease transport.Lease) {
	if err := lease.Ack(ctx); err != nil {
		d.deps.logger().Printf("rpc dispatch: ack failed: %v", err)
	}
}
