package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/lightbus-go/lightbus/internal/message"
)

func setupRpcTransport(t *testing.T, lease time.Duration) (*RpcTransport, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRpcTransport(client, "test", lease), client
}

func TestRpcPublishAndConsume(t *testing.T) {
	transport, _ := setupRpcTransport(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := transport.Consume(ctx, []string{"auth"}, "worker-1")
	require.NoError(t, err)

	msg := &message.RpcMessage{ID: message.NewID(), ApiName: "auth", ProcedureName: "login"}
	require.NoError(t, transport.Publish(ctx, msg))

	select {
	case d := <-deliveries:
		require.Equal(t, msg.ID, d.Message.ID)
		require.Equal(t, int64(1), d.Lease.DeliveryCount())
		require.NoError(t, d.Lease.Ack(ctx))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for rpc delivery")
	}
}

func TestRpcAckRemovesProcessingEntry(t *testing.T) {
	transport, client := setupRpcTransport(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := transport.Consume(ctx, []string{"auth"}, "worker-1")
	require.NoError(t, err)

	msg := &message.RpcMessage{ID: message.NewID(), ApiName: "auth", ProcedureName: "login"}
	require.NoError(t, transport.Publish(ctx, msg))

	d := <-deliveries
	require.NoError(t, d.Lease.Ack(ctx))

	count, err := client.ZCard(context.Background(), transport.processingKey("auth")).Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}

func TestRpcHasResponders(t *testing.T) {
	transport, _ := setupRpcTransport(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	has, err := transport.HasResponders(ctx, "auth")
	require.NoError(t, err)
	require.False(t, has)

	_, err = transport.Consume(ctx, []string{"auth"}, "worker-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		has, err := transport.HasResponders(ctx, "auth")
		return err == nil && has
	}, 2*time.Second, 20*time.Millisecond)
}
