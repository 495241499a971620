package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lightbus-go/lightbus/internal/errs"
)

// SchemaTransport is the Redis realisation of transport.SchemaTransport: one
// key per API holding the serialized schema document, refreshed by Ping so
// it expires once every process serving that API has stopped.
type SchemaTransport struct {
	client    *goredis.Client
	keyPrefix string
}

// NewSchemaTransport builds a Redis-backed SchemaTransport.
func NewSchemaTransport(client *goredis.Client, keyPrefix string) *SchemaTransport {
	return &SchemaTransport{client: client, keyPrefix: keyPrefix}
}

func (t *SchemaTransport) schemaKey(apiName string) string {
	return fmt.Sprintf("%s:schema:%s", t.keyPrefix, apiName)
}

func (t *SchemaTransport) Open(ctx context.Context) error  { return nil }
func (t *SchemaTransport) Close(ctx context.Context) error { return nil }

// Store writes schema under apiName with the given TTL.
func (t *SchemaTransport) Store(ctx context.Context, apiName string, schema []byte, ttl time.Duration) error {
	if err := t.client.Set(ctx, t.schemaKey(apiName), schema, ttl).Err(); err != nil {
		return errs.Wrap(errs.KindTransportFailure, "storing schema for "+apiName, err)
	}
	return nil
}

// Load returns the schema document for apiName, ok=false if absent or
// expired.
func (t *SchemaTransport) Load(ctx context.Context, apiName string) ([]byte, bool, error) {
	val, err := t.client.Get(ctx, t.schemaKey(apiName)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.KindTransportFailure, "loading schema for "+apiName, err)
	}
	return val, true, nil
}

// Ping extends the TTL on apiName's schema key, keeping it alive as long as
// at least one process serving it is still running.
func (t *SchemaTransport) Ping(ctx context.Context, apiName string, ttl time.Duration) error {
	ok, err := t.client.Expire(ctx, t.schemaKey(apiName), ttl).Result()
	if err != nil {
		return errs.Wrap(errs.KindTransportFailure, "pinging schema for "+apiName, err)
	}
	if !ok {
		return errs.New(errs.KindNoSuchApi, "no schema key to ping for "+apiName)
	}
	return nil
}
