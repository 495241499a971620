package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupSchemaTransport(t *testing.T) *SchemaTransport {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSchemaTransport(client, "test")
}

func TestSchemaStoreLoadPing(t *testing.T) {
	st := setupSchemaTransport(t)
	ctx := context.Background()

	require.NoError(t, st.Store(ctx, "auth", []byte(`{"api_name":"auth"}`), time.Minute))

	data, ok, err := st.Load(ctx, "auth")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"api_name":"auth"}`, string(data))

	require.NoError(t, st.Ping(ctx, "auth", time.Minute))
}

func TestSchemaLoadMissing(t *testing.T) {
	st := setupSchemaTransport(t)
	_, ok, err := st.Load(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSchemaPingMissingReturnsNoSuchApi(t *testing.T) {
	st := setupSchemaTransport(t)
	err := st.Ping(context.Background(), "missing", time.Minute)
	require.Error(t, err)
}
