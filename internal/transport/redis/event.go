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

// EventTransport is the Redis Streams realisation of transport.EventTransport.
// Each api_name/event_name pair owns one stream; every distinct listener_name
// is its own consumer group on that stream, giving every group a full copy
// of the fan-out while replicas within a group load-balance.
type EventTransport struct {
	client    *goredis.Client
	keyPrefix string
	maxLen    int64
}

// NewEventTransport builds a Redis Streams-backed EventTransport. maxLen
// bounds each stream with approximate MAXLEN trimming.
func NewEventTransport(client *goredis.Client, keyPrefix string, maxLen int64) *EventTransport {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &EventTransport{client: client, keyPrefix: keyPrefix, maxLen: maxLen}
}

func (t *EventTransport) streamName(addr transport.EventAddress) string {
	return fmt.Sprintf("%s:event:%s:%s", t.keyPrefix, addr.ApiName, addr.EventName)
}

func (t *EventTransport) deadLetterKey(listenerName string, addr transport.EventAddress) string {
	return fmt.Sprintf("%s:event:%s:%s:dead:%s", t.keyPrefix, addr.ApiName, addr.EventName, listenerName)
}

func (t *EventTransport) Open(ctx context.Context) error  { return nil }
func (t *EventTransport) Close(ctx context.Context) error { return nil }

// SendEvent publishes evt to its api_name/event_name stream, trimmed to
// maxLen entries via approximate MAXLEN trimming.
func (t *EventTransport) SendEvent(ctx context.Context, evt *message.EventMessage) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errs.Wrap(errs.KindTransportFailure, "marshalling event", err)
	}
	addr := transport.EventAddress{ApiName: evt.ApiName, EventName: evt.EventName}
	args := &goredis.XAddArgs{
		Stream: t.streamName(addr),
		MaxLen: t.maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": payload},
	}
	nativeID, err := t.client.XAdd(ctx, args).Result()
	if err != nil {
		return errs.Wrap(errs.KindTransportFailure, "publishing event", err)
	}
	evt.NativeID = nativeID
	return nil
}

// Consume joins or creates the consumer group for each listener/event pair
// named in listeners and streams deliveries until ctx is cancelled.
func (t *EventTransport) Consume(ctx context.Context, listeners []transport.ListenerSpec, consumerName string) (<-chan transport.EventDelivery, error) {
	out := make(chan transport.EventDelivery)

	type groupTarget struct {
		addr         transport.EventAddress
		listenerName string
	}
	var targets []groupTarget

	for _, spec := range listeners {
		start := "0"
		switch spec.Since {
		case "", "new":
		case "tail":
			start = "$"
		default:
			start = spec.Since
		}
		for _, addr := range spec.Events {
			stream := t.streamName(addr)
			err := t.client.XGroupCreateMkStream(ctx, stream, spec.ListenerName, start).Err()
			if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
				return nil, errs.Wrap(errs.KindTransportFailure, "creating consumer group "+spec.ListenerName, err)
			}
			targets = append(targets, groupTarget{addr: addr, listenerName: spec.ListenerName})
		}
	}

	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			for _, tg := range targets {
				stream := t.streamName(tg.addr)
				streams, err := t.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
					Group:    tg.listenerName,
					Consumer: consumerName,
					Streams:  []string{stream, ">"},
					Count:    10,
					Block:    200 * time.Millisecond,
				}).Result()
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					continue
				}
				for _, s := range streams {
					for _, rawMsg := range s.Messages {
						delivery, ok := t.toDelivery(rawMsg, tg.addr, tg.listenerName)
						if !ok {
							continue
						}
						select {
						case out <- delivery:
						case <-ctx.Done():
							return
						}
					}
				}
			}
		}
	}()

	return out, nil
}

func (t *EventTransport) toDelivery(raw goredis.XMessage, addr transport.EventAddress, listenerName string) (transport.EventDelivery, bool) {
	dataJSON, ok := raw.Values["data"].(string)
	if !ok {
		return transport.EventDelivery{}, false
	}
	var evt message.EventMessage
	if err := json.Unmarshal([]byte(dataJSON), &evt); err != nil {
		return transport.EventDelivery{}, false
	}
	evt.NativeID = raw.ID

	lease := &eventLease{
		t:            t,
		stream:       t.streamName(addr),
		listenerName: listenerName,
		id:           raw.ID,
	}
	return transport.EventDelivery{Message: &evt, Lease: lease, ListenerName: listenerName}, true
}

// History reads the full stream between since and until using XRange. A
// zero since or until leaves that end of the range open.
func (t *EventTransport) History(ctx context.Context, apiName, eventName string, since, until time.Time) ([]*message.EventMessage, error) {
	addr := transport.EventAddress{ApiName: apiName, EventName: eventName}
	start := streamIDForTime(since)
	end := "+"
	if !until.IsZero() {
		end = streamIDForTime(until)
	}

	raw, err := t.client.XRange(ctx, t.streamName(addr), start, end).Result()
	if err != nil {
		return nil, errs.Wrap(errs.KindTransportFailure, "reading event history", err)
	}
	out := make([]*message.EventMessage, 0, len(raw))
	for _, r := range raw {
		dataJSON, ok := r.Values["data"].(string)
		if !ok {
			continue
		}
		var evt message.EventMessage
		if err := json.Unmarshal([]byte(dataJSON), &evt); err != nil {
			continue
		}
		evt.NativeID = r.ID
		out = append(out, &evt)
	}
	return out, nil
}

func streamIDForTime(tm time.Time) string {
	if tm.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%d-0", tm.UnixMilli())
}

// Reclaim scans pending entries for listenerName idle longer than minIdle
// and claims them for consumerName, unless their delivery count exceeds
// maxRedeliveries, in which case they are moved to the dead-letter stream
// and acknowledged off the pending list.
func (t *EventTransport) Reclaim(ctx context.Context, listenerName string, addr transport.EventAddress, consumerName string, minIdle time.Duration, maxRedeliveries int64) (int, error) {
	stream := t.streamName(addr)

	pending, err := t.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream,
		Group:  listenerName,
		Start:  "-",
		End:    "+",
		Count:  100,
		Idle:   minIdle,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			return 0, nil
		}
		return 0, errs.Wrap(errs.KindTransportFailure, "listing pending entries", err)
	}

	reclaimed := 0
	for _, p := range pending {
		if p.RetryCount > maxRedeliveries {
			if err := t.deadLetter(ctx, stream, listenerName, addr, p.ID); err != nil {
				continue
			}
			reclaimed++
			continue
		}

		_, err := t.client.XClaim(ctx, &goredis.XClaimArgs{
			Stream:   stream,
			Group:    listenerName,
			Consumer: consumerName,
			MinIdle:  minIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			continue
		}
		reclaimed++
	}
	return reclaimed, nil
}

func (t *EventTransport) deadLetter(ctx context.Context, stream, listenerName string, addr transport.EventAddress, id string) error {
	entries, err := t.client.XRange(ctx, stream, id, id).Result()
	if err != nil {
		return err
	}
	pipe := t.client.TxPipeline()
	if len(entries) > 0 {
		if dataJSON, ok := entries[0].Values["data"]; ok {
			pipe.LPush(ctx, t.deadLetterKey(listenerName, addr), dataJSON)
		}
	}
	pipe.XAck(ctx, stream, listenerName, id)
	_, err = pipe.Exec(ctx)
	return err
}

type eventLease struct {
	t            *EventTransport
	stream       string
	listenerName string
	id           string
}

func (l *eventLease) Ack(ctx context.Context) error {
	if err := l.t.client.XAck(ctx, l.stream, l.listenerName, l.id).Err(); err != nil {
		return errs.Wrap(errs.KindTransportFailure, "acknowledging event", err)
	}
	return nil
}

func (l *eventLease) DeliveryCount() int64 {
	info, err := l.t.client.XPendingExt(context.Background(), &goredis.XPendingExtArgs{
		Stream: l.stream,
		Group:  l.listenerName,
		Start:  l.id,
		End:    l.id,
		Count:  1,
	}).Result()
	if err != nil || len(info) == 0 {
		return 1
	}
	return info[0].RetryCount
}

func (l *eventLease) NativeID() string { return l.id }
