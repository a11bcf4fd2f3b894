package redisx

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	logx "slacktranslator/pkg/logx"
)

// ErrNoMessage is returned by Receive when the block timeout passes with an
// empty queue.
var ErrNoMessage = errors.New("queue: no message")

// Queue is a reliable list queue with at-least-once delivery.
//
// Layout (all under the configured prefix):
//   - <prefix>:jobs             pending messages (LPUSH in, BLMOVE out)
//   - <prefix>:jobs:processing  messages handed to a worker, not yet acked
//   - <prefix>:jobs:claims      ZSET message -> claim time (unix ms)
//   - <prefix>:jobs:owners      HASH message -> delivery token
//
// A worker that dies before Ack leaves its message in processing; Reap moves
// it back to pending once its claim is older than the visibility timeout.
// Ack only succeeds for the delivery that still owns the claim, so a late ack
// from a reaped delivery cannot remove the redelivered copy.
type Queue struct {
	rdb        *redis.Client
	log        logx.Logger
	pending    string
	processing string
	claims     string
	owners     string
	now        func() time.Time
	newToken   func() string
}

func NewQueue(rdb *redis.Client, prefix string, log logx.Logger) *Queue {
	if prefix == "" {
		prefix = "slack-translator"
	}
	return &Queue{
		rdb:        rdb,
		log:        log,
		pending:    prefix + ":jobs",
		processing: prefix + ":jobs:processing",
		claims:     prefix + ":jobs:claims",
		owners:     prefix + ":jobs:owners",
		now:        time.Now,
		newToken:   uuid.NewString,
	}
}

// ErrClaimLost is returned by Ack when the message was reaped and handed to
// another delivery after this one received it.
var ErrClaimLost = errors.New("queue: claim no longer owned by this delivery")

// KEYS: processing, claims, owners. ARGV: raw, token.
var ackScript = redis.NewScript(`
if redis.call('HGET', KEYS[3], ARGV[1]) ~= ARGV[2] then
	return 0
end
redis.call('LREM', KEYS[1], 1, ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
return 1
`)

// KEYS: processing, claims, owners, pending. ARGV: raw, cutoff ms.
var requeueScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[2], ARGV[1])
if not score or tonumber(score) > tonumber(ARGV[2]) then
	return 0
end
local n = redis.call('LREM', KEYS[1], 1, ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
if n > 0 then
	redis.call('RPUSH', KEYS[4], ARGV[1])
end
return n
`)

// Message is one delivery of a queued payload.
type Message struct {
	Body  []byte
	q     *Queue
	raw   string
	token string
}

// Publish appends body to the pending list.
func (q *Queue) Publish(ctx context.Context, body []byte) error {
	return q.rdb.LPush(ctx, q.pending, body).Err()
}

// Receive blocks up to block for the next message. The message stays in the
// processing list until Ack.
func (q *Queue) Receive(ctx context.Context, block time.Duration) (*Message, error) {
	raw, err := q.rdb.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", block).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoMessage
	}
	if err != nil {
		return nil, err
	}
	m := &Message{Body: []byte(raw), q: q, raw: raw, token: q.newToken()}

	pipe := q.rdb.TxPipeline()
	pipe.ZAdd(ctx, q.claims, redis.Z{Score: float64(q.now().UnixMilli()), Member: raw})
	pipe.HSet(ctx, q.owners, raw, m.token)
	if _, err := pipe.Exec(ctx); err != nil {
		// Reap adopts unclaimed processing entries; the message will be
		// delivered again after the visibility timeout.
		q.log.Warn("queue claim failed", logx.Err(err))
	}
	return m, nil
}

// Ack removes the message from the processing list for good. It returns
// ErrClaimLost when another delivery owns the message now.
func (m *Message) Ack(ctx context.Context) error {
	n, err := ackScript.Run(ctx, m.q.rdb, []string{m.q.processing, m.q.claims, m.q.owners}, m.raw, m.token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrClaimLost
	}
	return nil
}

// Reap requeues messages claimed longer than visibility ago and returns how
// many were moved. Processing entries without a claim (worker died between
// BLMOVE and ZADD) get one now, so they are reaped on a later pass.
func (q *Queue) Reap(ctx context.Context, visibility time.Duration) (int, error) {
	now := q.now()

	inFlight, err := q.rdb.LRange(ctx, q.processing, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	if len(inFlight) > 0 {
		zs := make([]redis.Z, 0, len(inFlight))
		for _, raw := range inFlight {
			zs = append(zs, redis.Z{Score: float64(now.UnixMilli()), Member: raw})
		}
		if err := q.rdb.ZAddNX(ctx, q.claims, zs...).Err(); err != nil {
			return 0, err
		}
	}

	cutoff := strconv.FormatInt(now.Add(-visibility).UnixMilli(), 10)
	stale, err := q.rdb.ZRangeByScore(ctx, q.claims, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, raw := range stale {
		n, err := requeueScript.Run(ctx, q.rdb, []string{q.processing, q.claims, q.owners, q.pending}, raw, cutoff).Int()
		if err != nil {
			return moved, err
		}
		moved += n
	}
	return moved, nil
}

// Stats is a point-in-time view of the queue lists.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.rdb.Pipeline()
	p := pipe.LLen(ctx, q.pending)
	r := pipe.LLen(ctx, q.processing)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{Pending: p.Val(), Processing: r.Val()}, nil
}
