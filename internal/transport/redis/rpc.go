package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lightbus-go/lightbus/internal/errs"
	"github.com/lightbus-go/lightbus/internal/message"
	"github.com/lightbus-go/lightbus/internal/transport"
)

// RpcTransport is the Redis realisation of transport.RpcTransport. It uses a
// reliable-queue pattern: a FIFO list per API holds message IDs, a hash
// holds the serialized payload per ID, and a sorted set tracks in-flight
// ("processing") entries by lease-start timestamp so a reaper can requeue
// entries whose lease has expired. A single BRPopLPush hop can't answer
// "how long has this been in flight", so the sorted set carries that.
type RpcTransport struct {
	client        *goredis.Client
	keyPrefix     string
	leaseDuration time.Duration
	reapInterval  time.Duration

	cancelReap context.CancelFunc
}

// NewRpcTransport builds a Redis-backed RpcTransport. leaseDuration bounds
// how long a consumer may hold a delivery before a reaper makes it visible
// to other consumers again.
func NewRpcTransport(client *goredis.Client, keyPrefix string, leaseDuration time.Duration) *RpcTransport {
	if leaseDuration <= 0 {
		leaseDuration = 30 * time.Second
	}
	return &RpcTransport{
		client:        client,
		keyPrefix:     keyPrefix,
		leaseDuration: leaseDuration,
		reapInterval:  leaseDuration / 2,
	}
}

func (t *RpcTransport) queueKey(apiName string) string      { return fmt.Sprintf("%s:rpc:%s", t.keyPrefix, apiName) }
func (t *RpcTransport) dataKey(apiName string) string       { return fmt.Sprintf("%s:rpc:%s:data", t.keyPrefix, apiName) }
func (t *RpcTransport) processingKey(apiName string) string { return fmt.Sprintf("%s:rpc:%s:processing", t.keyPrefix, apiName) }
func (t *RpcTransport) countsKey(apiName string) string     { return fmt.Sprintf("%s:rpc:%s:counts", t.keyPrefix, apiName) }
func (t *RpcTransport) consumersKey(apiName string) string  { return fmt.Sprintf("%s:rpc:%s:consumers", t.keyPrefix, apiName) }

func (t *RpcTransport) Open(ctx context.Context) error { return nil }
func (t *RpcTransport) Close(ctx context.Context) error {
	if t.cancelReap != nil {
		t.cancelReap()
	}
	return nil
}

// Publish enqueues msg, routed to whichever worker next calls Consume for
// its api_name. Single delivery is enforced by BRPop below: exactly one
// blocked consumer wins the pop.
func (t *RpcTransport) Publish(ctx context.Context, msg *message.RpcMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errs.Wrap(errs.KindTransportFailure, "marshalling rpc message", err)
	}

	pipe := t.client.TxPipeline()
	pipe.HSet(ctx, t.dataKey(msg.ApiName), msg.ID, payload)
	pipe.LPush(ctx, t.queueKey(msg.ApiName), msg.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Wrap(errs.KindTransportFailure, "publishing rpc message", err)
	}
	return nil
}

// Consume spawns the blocking-pop loop for apiNames and a reaper for
// expired leases, emitting deliveries on the returned channel until ctx is
// cancelled.
func (t *RpcTransport) Consume(ctx context.Context, apiNames []string, consumerName string) (<-chan transport.RpcDelivery, error) {
	out := make(chan transport.RpcDelivery)
	reapCtx, cancel := context.WithCancel(ctx)
	t.cancelReap = cancel

	queueKeys := make([]string, len(apiNames))
	for i, api := range apiNames {
		queueKeys[i] = t.queueKey(api)
	}

	go t.reapLoop(reapCtx, apiNames)
	go t.heartbeatLoop(reapCtx, apiNames, consumerName)

	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			result, err := t.client.BRPop(ctx, time.Second, queueKeys...).Result()
			if err != nil {
				if err == goredis.Nil || ctx.Err() != nil {
					continue
				}
				continue
			}
			if len(result) != 2 {
				continue
			}
			queueKey, id := result[0], result[1]
			apiName := apiNameFromQueueKey(queueKey, t.keyPrefix)

			delivery, ok := t.claim(ctx, apiName, id)
			if !ok {
				continue
			}
			select {
			case out <- delivery:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func apiNameFromQueueKey(queueKey, keyPrefix string) string {
	prefix := keyPrefix + ":rpc:"
	if len(queueKey) > len(prefix) {
		return queueKey[len(prefix):]
	}
	return ""
}

func (t *RpcTransport) claim(ctx context.Context, apiName, id string) (transport.RpcDelivery, bool) {
	payload, err := t.client.HGet(ctx, t.dataKey(apiName), id).Result()
	if err != nil {
		return transport.RpcDelivery{}, false
	}
	var msg message.RpcMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return transport.RpcDelivery{}, false
	}

	now := float64(time.Now().UnixMilli())
	pipe := t.client.TxPipeline()
	pipe.ZAdd(ctx, t.processingKey(apiName), goredis.Z{Score: now, Member: id})
	countCmd := pipe.HIncrBy(ctx, t.countsKey(apiName), id, 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return transport.RpcDelivery{}, false
	}

	lease := &rpcLease{t: t, apiName: apiName, id: id, deliveryCount: countCmd.Val()}
	return transport.RpcDelivery{Message: &msg, Lease: lease}, true
}

// reapLoop periodically requeues processing entries whose lease has
// expired, making them visible to other consumers again.
func (t *RpcTransport) reapLoop(ctx context.Context, apiNames []string) {
	ticker := time.NewTicker(t.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, api := range apiNames {
				t.reapOnce(ctx, api)
			}
		}
	}
}

// heartbeatLoop periodically records that consumerName is alive for each of
// apiNames, so HasResponders can distinguish a slow responder from none at
// all once a Call's deadline passes.
func (t *RpcTransport) heartbeatLoop(ctx context.Context, apiNames []string, consumerName string) {
	t.beat(ctx, apiNames, consumerName)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.beat(ctx, apiNames, consumerName)
		}
	}
}

func (t *RpcTransport) beat(ctx context.Context, apiNames []string, consumerName string) {
	now := time.Now().UnixMilli()
	for _, apiName := range apiNames {
		t.client.HSet(ctx, t.consumersKey(apiName), consumerName, now)
	}
}

// HasResponders reports whether any consumer has recorded a heartbeat for
// apiName within the last two heartbeat intervals. A fresh Redis with no
// registered worker for apiName reports false immediately.
func (t *RpcTransport) HasResponders(ctx context.Context, apiName string) (bool, error) {
	entries, err := t.client.HGetAll(ctx, t.consumersKey(apiName)).Result()
	if err != nil {
		return false, errs.Wrap(errs.KindTransportFailure, "checking rpc responders for "+apiName, err)
	}
	cutoff := time.Now().Add(-4 * time.Second).UnixMilli()
	for _, v := range entries {
		var seen int64
		if _, err := fmt.Sscanf(v, "%d", &seen); err != nil {
			continue
		}
		if seen >= cutoff {
			return true, nil
		}
	}
	return false, nil
}

func (t *RpcTransport) reapOnce(ctx context.Context, apiName string) {
	cutoff := time.Now().Add(-t.leaseDuration).UnixMilli()
	stale, err := t.client.ZRangeByScore(ctx, t.processingKey(apiName), &goredis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", cutoff)}).Result()
	if err != nil || len(stale) == 0 {
		return
	}
	for _, id := range stale {
		pipe := t.client.TxPipeline()
		pipe.ZRem(ctx, t.processingKey(apiName), id)
		pipe.LPush(ctx, t.queueKey(apiName), id)
		pipe.Exec(ctx)
	}
}

type rpcLease struct {
	t             *RpcTransport
	apiName       string
	id            string
	deliveryCount int64
}

func (l *rpcLease) Ack(ctx context.Context) error {
	pipe := l.t.client.TxPipeline()
	pipe.ZRem(ctx, l.t.processingKey(l.apiName), l.id)
	pipe.HDel(ctx, l.t.dataKey(l.apiName), l.id)
	pipe.HDel(ctx, l.t.countsKey(l.apiName), l.id)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return errs.Wrap(errs.KindTransportFailure, "acknowledging rpc message", err)
	}
	return nil
}

func (l *rpcLease) DeliveryCount() int64 { return l.deliveryCount }
func (l *rpcLease) NativeID() string     { return l.id }
