package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lightbus-go/lightbus/internal/errs"
	"github.com/lightbus-go/lightbus/internal/message"
)

// resultGrace is added on top of the call's own timeout when computing the
// result key's TTL, so a caller that is itself slightly late rechecking
// after its deadline still finds the result rather than racing Redis's
// expiry.
const resultGrace = 30 * time.Second

// minResultTTL floors the computed TTL so the result stays fetchable for a
// moment. Since resultGrace alone exceeds it, the floor only takes effect
// for a negative call timeout.
const minResultTTL = 5 * time.Second

// ResultTransport is the Redis realisation of transport.ResultTransport. A
// result is written to a per-call key (return_path) with a TTL and a caller
// blocks on it with a BLPop-style wait, collapsing a callback round trip
// into a single key since results here are point-to-point, not fanned out.
type ResultTransport struct {
	client    *goredis.Client
	keyPrefix string
}

// NewResultTransport builds a Redis-backed ResultTransport.
func NewResultTransport(client *goredis.Client, keyPrefix string) *ResultTransport {
	return &ResultTransport{client: client, keyPrefix: keyPrefix}
}

func (t *ResultTransport) resultKey(returnPath string) string {
	return fmt.Sprintf("%s:result:%s", t.keyPrefix, returnPath)
}

func (t *ResultTransport) notifyKey(returnPath string) string {
	return fmt.Sprintf("%s:result:%s:notify", t.keyPrefix, returnPath)
}

func (t *ResultTransport) Open(ctx context.Context) error  { return nil }
func (t *ResultTransport) Close(ctx context.Context) error { return nil }

// SendResult writes the result under returnPath and wakes any caller
// blocked in ReceiveResult.
func (t *ResultTransport) SendResult(ctx context.Context, rpcMsg *message.RpcMessage, result *message.ResultMessage, returnPath string) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return errs.Wrap(errs.KindTransportFailure, "marshalling result", err)
	}

	ttl := rpcMsg.Timeout + resultGrace
	if ttl < minResultTTL {
		ttl = minResultTTL
	}
	pipe := t.client.TxPipeline()
	pipe.Set(ctx, t.resultKey(returnPath), payload, ttl)
	pipe.LPush(ctx, t.notifyKey(returnPath), "1")
	pipe.Expire(ctx, t.notifyKey(returnPath), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Wrap(errs.KindTransportFailure, "sending result", err)
	}
	return nil
}

// ReceiveResult blocks until the result for returnPath is available, the
// caller's timeout expires (KindRpcTimeout), or ctx is cancelled.
func (t *ResultTransport) ReceiveResult(ctx context.Context, rpcMsg *message.RpcMessage, returnPath string, timeout time.Duration) (*message.ResultMessage, error) {
	deadline := time.Now().Add(timeout)

	for {
		if existing, err := t.client.Get(ctx, t.resultKey(returnPath)).Result(); err == nil {
			var result message.ResultMessage
			if err := json.Unmarshal([]byte(existing), &result); err != nil {
				return nil, errs.Wrap(errs.KindTransportFailure, "unmarshalling result", err)
			}
			return &result, nil
		} else if err != goredis.Nil {
			return nil, errs.Wrap(errs.KindTransportFailure, "fetching result", err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, errs.New(errs.KindRpcTimeout, "timed out waiting for result on "+returnPath)
		}
		wait := remaining
		if wait > time.Second {
			wait = time.Second
		}

		_, err := t.client.BLPop(ctx, wait, t.notifyKey(returnPath)).Result()
		if err != nil && err != goredis.Nil {
			if ctx.Err() != nil {
				return nil, errs.Wrap(errs.KindCancelled, "receive result cancelled", ctx.Err())
			}
			// Ignore transient errors and loop, re-checking deadline/result.
		}
	}
}
