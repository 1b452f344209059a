package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/abkawan/banking-directory/internal/models"
	"github.com/streadway/amqp"
)

const (
	// default queue for ledger events
	LedgerQueue = "ledger_entries"

	eventContentType = "application/json"
)

// handles RabbitMQ operations
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

// NewRabbitMQ dials uri and declares a durable queue named queueName
// (LedgerQueue when empty).
func NewRabbitMQ(uri, queueName string) (*RabbitMQ, error) {
	if queueName == "" {
		queueName = LedgerQueue
	}

	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare a queue: %w", err)
	}

	return &RabbitMQ{
		conn:    conn,
		channel: ch,
		queue:   q,
	}, nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}

// Publish sends one committed ledger event to the queue
func (r *RabbitMQ) Publish(ctx context.Context, ev models.LedgerEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	err = r.channel.Publish(
		"",           // exchange
		r.queue.Name, // routing key
		false,        // mandatory
		false,        // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish a message: %w", err)
	}

	return nil
}

// Delivery is one consumed ledger event. The receiver must call exactly one
// of Ack or Nack once it has dealt with Event.
type Delivery struct {
	Event models.LedgerEvent
	Ack   func() error
	Nack  func(requeue bool) error
}

// ConsumeEntries delivers ledger events until ctx is done or the channel closes.
// Acknowledgement is left to the receiver; undecodable messages are rejected
// without requeue.
func (r *RabbitMQ) ConsumeEntries(ctx context.Context) (<-chan Delivery, error) {
	msgs, err := r.channel.Consume(
		r.queue.Name, // queue
		"",           // consumer
		false,        // auto-ack
		false,        // exclusive
		false,        // no-local
		false,        // no-wait
		nil,          // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register a consumer: %w", err)
	}

	deliveries := make(chan Delivery)

	go func() {
		defer close(deliveries)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				d, err := newDelivery(msg)
				if err != nil {
					slog.Warn("Dropping undecodable ledger event", "error", err)
					_ = msg.Reject(false)
					continue
				}

				select {
				case deliveries <- d:
				case <-ctx.Done():
					_ = msg.Nack(false, true)
					return
				}
			}
		}
	}()

	return deliveries, nil
}

func newDelivery(msg amqp.Delivery) (Delivery, error) {
	ev, err := decodeEvent(msg.Body)
	if err != nil {
		return Delivery{}, err
	}
	return Delivery{
		Event: ev,
		Ack:   func() error { return msg.Ack(false) },
		Nack:  func(requeue bool) error { return msg.Nack(false, requeue) },
	}, nil
}

func encodeEvent(ev models.LedgerEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal ledger event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  eventContentType,
		MessageId:    ev.Reference,
		Timestamp:    ev.OccurredAt,
		Type:         string(ev.Type),
		Body:         body,
		DeliveryMode: amqp.Persistent, // make message persistent
	}, nil
}

func decodeEvent(body []byte) (models.LedgerEvent, error) {
	var ev models.LedgerEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return models.LedgerEvent{}, fmt.Errorf("failed to unmarshal ledger event: %w", err)
	}
	if ev.Reference == "" || !ev.Type.Valid() || ev.Amount <= 0 {
		return models.LedgerEvent{}, fmt.Errorf("incomplete ledger event %q", ev.Reference)
	}
	return ev, nil
}
