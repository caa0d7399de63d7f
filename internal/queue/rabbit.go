package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/kiranshivaraju/demolens/pkg/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitQueue publishes persistent messages to a durable queue and consumes
// them with basic.get. Deliveries handed out by one Poll that are still
// unacknowledged when the next Poll starts are requeued first, which is what
// makes Poll re-entrant on a broker. Skipped deliveries are held the same way
// so the next Get moves past them.
type RabbitQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	batch int

	mu          sync.Mutex
	outstanding map[string][]uint64
}

var _ Queue = (*RabbitQueue)(nil)

func NewRabbitQueue(url, queue string, batch int) (*RabbitQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	// Publisher confirms: Publish returns only once the broker has the message.
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq confirm mode: %w", err)
	}
	return &RabbitQueue{
		conn:        conn,
		ch:          ch,
		queue:       queue,
		batch:       batch,
		outstanding: make(map[string][]uint64),
	}, nil
}

func (q *RabbitQueue) Publish(ctx context.Context, event models.AnalysisRequestedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	now := time.Now().UTC()
	confirm, err := q.ch.PublishWithDeferredConfirmWithContext(ctx, "", q.queue, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    HandleName(event.JobID, now),
			Timestamp:    now,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await publish confirm: %w", err)
	}
	if !acked {
		return errors.New("broker nacked publish")
	}
	return nil
}

func (q *RabbitQueue) Poll(ctx context.Context, opts ...PollOption) ([]Message, error) {
	o := collectPollOptions(opts)
	q.mu.Lock()
	defer q.mu.Unlock()

	for handle, tags := range q.outstanding {
		for _, tag := range tags {
			if err := q.ch.Nack(tag, false, true); err != nil {
				return nil, fmt.Errorf("requeue %s: %w", handle, err)
			}
		}
		delete(q.outstanding, handle)
	}

	var msgs []Message
	for q.batch <= 0 || len(msgs) < q.batch {
		if ctx.Err() != nil {
			break
		}
		d, ok, err := q.ch.Get(q.queue, false)
		if err != nil {
			return msgs, fmt.Errorf("get message: %w", err)
		}
		if !ok {
			break
		}
		handle := d.MessageId
		if handle == "" {
			handle = "delivery-" + strconv.FormatUint(d.DeliveryTag, 10)
		}
		q.outstanding[handle] = append(q.outstanding[handle], d.DeliveryTag)
		if o.skip(handle) {
			continue
		}
		msgs = append(msgs, newMessage(handle, d.Body))
	}
	return msgs, nil
}

func (q *RabbitQueue) Acknowledge(_ context.Context, handle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	tags, ok := q.outstanding[handle]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownHandle, handle)
	}
	for _, tag := range tags {
		if err := q.ch.Ack(tag, false); err != nil {
			return fmt.Errorf("acknowledge %s: %w", handle, err)
		}
	}
	delete(q.outstanding, handle)
	return nil
}

func (q *RabbitQueue) Close() error {
	chErr := q.ch.Close()
	connErr := q.conn.Close()
	return errors.Join(chErr, connErr)
}
