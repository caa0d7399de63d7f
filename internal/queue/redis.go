package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/kiranshivaraju/demolens/pkg/models"
	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps pending messages in a single hash, handle -> body. A message
// stays in the hash until acknowledged, which gives the same re-entrant Poll
// semantics as the directory queue.
type RedisQueue struct {
	client *redis.Client
	key    string
	batch  int
	now    func() time.Time
}

var _ Queue = (*RedisQueue)(nil)

func NewRedisQueue(redisURL, prefix string, batch int) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisQueue{
		client: redis.NewClient(opts),
		key:    prefix + ":messages",
		batch:  batch,
		now:    time.Now,
	}, nil
}

func (q *RedisQueue) Publish(ctx context.Context, event models.AnalysisRequestedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ts := q.now()
	for {
		ok, err := q.client.HSetNX(ctx, q.key, HandleName(event.JobID, ts), body).Result()
		if err != nil {
			return fmt.Errorf("publish message: %w", err)
		}
		if ok {
			return nil
		}
		ts = ts.Add(time.Millisecond)
	}
}

func (q *RedisQueue) Poll(ctx context.Context, opts ...PollOption) ([]Message, error) {
	o := collectPollOptions(opts)
	all, err := q.client.HGetAll(ctx, q.key).Result()
	if err != nil {
		return nil, fmt.Errorf("poll messages: %w", err)
	}

	handles := make([]string, 0, len(all))
	for h := range all {
		if !o.skip(h) {
			handles = append(handles, h)
		}
	}
	sort.Strings(handles)
	if q.batch > 0 && len(handles) > q.batch {
		handles = handles[:q.batch]
	}

	msgs := make([]Message, 0, len(handles))
	for _, h := range handles {
		msgs = append(msgs, newMessage(h, []byte(all[h])))
	}
	return msgs, nil
}

func (q *RedisQueue) Acknowledge(ctx context.Context, handle string) error {
	if err := q.client.HDel(ctx, q.key, handle).Err(); err != nil {
		return fmt.Errorf("acknowledge %s: %w", handle, err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
