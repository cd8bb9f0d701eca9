package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abdul-hamid-achik/clipvote/internal/metrics"
)

var _ Broker = (*RedisBroker)(nil)

const payloadField = "payload"

// promoteScript moves one due member from the delayed set onto the stream.
// ZREM returning 1 means this caller owns the member, so two workers racing
// on the same entry publish it once.
var promoteScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 1 then
	return redis.call('XADD', KEYS[2], '*', 'payload', ARGV[1])
end
return false
`)

// RedisBroker is a Broker on a Redis stream consumer group. Entries that
// stay pending longer than the visibility timeout are reclaimed with
// XAUTOCLAIM; delayed retries wait in a sorted set scored by due time.
type RedisBroker struct {
	client  *redis.Client
	stream  string
	group   string
	delayed string
	opts    options
}

func NewRedisBroker(client *redis.Client, name string, opts ...Option) *RedisBroker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisBroker{
		client:  client,
		stream:  name,
		group:   name + ":workers",
		delayed: name + ":delayed",
		opts:    o,
	}
}

// Setup creates the stream and consumer group when missing.
func (b *RedisBroker) Setup(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, b.stream, b.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func (b *RedisBroker) Enqueue(ctx context.Context, d Dispatch, delay time.Duration) (string, error) {
	body, err := Encode(d)
	if err != nil {
		return "", err
	}

	if delay > 0 {
		due := b.opts.now().Add(delay).UnixMilli()
		if err := b.client.ZAdd(ctx, b.delayed, redis.Z{Score: float64(due), Member: string(body)}).Err(); err != nil {
			return "", fmt.Errorf("schedule dispatch: %w", err)
		}
		metrics.RecordQueueMessage("delay")
		b.opts.log.Debug().Int64("video_id", d.VideoID).Int("attempt", d.Attempt).Dur("delay", delay).Msg("dispatch scheduled")
		return "delayed:" + strconv.FormatInt(due, 10), nil
	}

	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]interface{}{payloadField: string(body)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish dispatch: %w", err)
	}
	metrics.RecordQueueMessage("enqueue")
	return id, nil
}

func (b *RedisBroker) Receive(ctx context.Context) (*Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := b.promoteDue(ctx); err != nil {
			b.opts.log.Warn().Err(err).Msg("failed to promote delayed dispatches")
		}

		del, err := b.reclaim(ctx)
		if err != nil {
			return nil, err
		}
		if del != nil {
			return del, nil
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: b.opts.consumer,
			Streams:  []string{b.stream, ">"},
			Count:    1,
			Block:    b.opts.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read stream: %w", err)
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				if del := b.toDelivery(ctx, msg, false); del != nil {
					metrics.RecordQueueMessage("receive")
					return del, nil
				}
			}
		}
	}
}

// reclaim takes over one entry whose previous consumer has held it longer
// than the visibility timeout.
func (b *RedisBroker) reclaim(ctx context.Context) (*Delivery, error) {
	msgs, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   b.stream,
		Group:    b.group,
		Consumer: b.opts.consumer,
		MinIdle:  b.opts.visibility,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reclaim pending: %w", err)
	}

	for _, msg := range msgs {
		if del := b.toDelivery(ctx, msg, true); del != nil {
			metrics.RecordQueueMessage("redeliver")
			b.opts.log.Info().Str("message_id", msg.ID).Int64("video_id", del.Dispatch.VideoID).Msg("reclaimed expired delivery")
			return del, nil
		}
	}
	return nil, nil
}

// toDelivery decodes msg. Undecodable entries are acked and dropped so they
// do not come back forever.
func (b *RedisBroker) toDelivery(ctx context.Context, msg redis.XMessage, redelivered bool) *Delivery {
	raw, _ := msg.Values[payloadField].(string)
	d, err := Decode([]byte(raw))
	if err != nil {
		b.opts.log.Error().Err(err).Str("message_id", msg.ID).Msg("dropping malformed dispatch")
		_ = b.ack(ctx, msg.ID)
		return nil
	}
	return &Delivery{ID: msg.ID, Dispatch: d, Receipt: msg.ID, Redelivered: redelivered}
}

func (b *RedisBroker) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(b.opts.now().UnixMilli(), 10)
	due, err := b.client.ZRangeByScore(ctx, b.delayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: 16,
	}).Result()
	if err != nil {
		return err
	}

	for _, member := range due {
		err := promoteScript.Run(ctx, b.client, []string{b.delayed, b.stream}, member).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
	}
	return nil
}

func (b *RedisBroker) Ack(ctx context.Context, del *Delivery) error {
	if err := b.ack(ctx, del.ID); err != nil {
		return err
	}
	metrics.RecordQueueMessage("ack")
	return nil
}

func (b *RedisBroker) ack(ctx context.Context, id string) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, b.stream, b.group, id)
		pipe.XDel(ctx, b.stream, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ack %s: %w", id, err)
	}
	return nil
}

// Depth reports stream length and the number of scheduled retries.
func (b *RedisBroker) Depth(ctx context.Context) (ready int64, delayed int64, err error) {
	if ready, err = b.client.XLen(ctx, b.stream).Result(); err != nil {
		return 0, 0, err
	}
	if delayed, err = b.client.ZCard(ctx, b.delayed).Result(); err != nil {
		return 0, 0, err
	}
	return ready, delayed, nil
}

// Close is a no-op; the redis client belongs to the caller.
func (b *RedisBroker) Close() error {
	return nil
}
