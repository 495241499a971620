package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/lightbus-go/lightbus/internal/message"
	"github.com/lightbus-go/lightbus/internal/transport"
)

func setupEventTransport(t *testing.T) *EventTransport {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewEventTransport(client, "test", 1000)
}

func TestEventSendAndConsumeFanOut(t *testing.T) {
	et := setupEventTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := transport.EventAddress{ApiName: "auth", EventName: "login_attempted"}
	listeners := []transport.ListenerSpec{
		{ListenerName: "audit", Events: []transport.EventAddress{addr}},
		{ListenerName: "notifications", Events: []transport.EventAddress{addr}},
	}

	deliveries, err := et.Consume(ctx, listeners, "consumer-1")
	require.NoError(t, err)

	evt := &message.EventMessage{ID: message.NewID(), ApiName: "auth", EventName: "login_attempted", Kwargs: map[string]interface{}{"user": "a"}}
	require.NoError(t, et.SendEvent(ctx, evt))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case d := <-deliveries:
			seen[d.ListenerName] = true
			require.NoError(t, d.Lease.Ack(ctx))
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i)
		}
	}
	require.True(t, seen["audit"])
	require.True(t, seen["notifications"])
}

func TestEventHistory(t *testing.T) {
	et := setupEventTransport(t)
	ctx := context.Background()

	evt := &message.EventMessage{ID: message.NewID(), ApiName: "auth", EventName: "login_attempted"}
	require.NoError(t, et.SendEvent(ctx, evt))

	history, err := et.History(ctx, "auth", "login_attempted", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestEventReclaim(t *testing.T) {
	et := setupEventTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := transport.EventAddress{ApiName: "auth", EventName: "login_attempted"}
	listeners := []transport.ListenerSpec{{ListenerName: "audit", Events: []transport.EventAddress{addr}}}

	deliveries, err := et.Consume(ctx, listeners, "consumer-1")
	require.NoError(t, err)

	evt := &message.EventMessage{ID: message.NewID(), ApiName: "auth", EventName: "login_attempted"}
	require.NoError(t, et.SendEvent(ctx, evt))

	<-deliveries // consumed but never acked, simulating a crashed worker

	n, err := et.Reclaim(ctx, "audit", addr, "consumer-2", 0, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
