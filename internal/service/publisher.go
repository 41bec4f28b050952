package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Notifier publishes a notification message to a named queue.
type Notifier interface {
	Publish(ctx context.Context, queue string, msg any) error
}

// publishTimeout bounds a single background publish.
const publishTimeout = 5 * time.Second

// AMQPPublisher publishes JSON messages to durable RabbitMQ queues.  It
// dials per publish; notification volume is a few messages per request.
type AMQPPublisher struct {
	url string
}

// NewAMQPPublisher returns a publisher for the broker at url.
func NewAMQPPublisher(url string) *AMQPPublisher { return &AMQPPublisher{url: url} }

// Publish declares queue (idempotent) and publishes msg as a persistent
// JSON message.  Errors are logged and returned.
func (p *AMQPPublisher) Publish(ctx context.Context, queue string, msg any) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq: queue declare %s failed: %v", queue, err)
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("rabbitmq: marshal %s message failed: %v", queue, err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		log.Printf("rabbitmq: publish %s failed: %v", queue, err)
		return err
	}
	return nil
}

// NopNotifier drops every message.  Used when NOTIFY_ENABLED is off.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, string, any) error { return nil }

// notifyAsync publishes msgs in the background after the caller's
// transaction has committed.  Failures are logged and never reach the
// caller.
func notifyAsync(n Notifier, queue string, msgs ...any) {
	if n == nil || len(msgs) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		for _, m := range msgs {
			if err := n.Publish(ctx, queue, m); err != nil {
				log.Printf("notify: publish %s failed: %v", queue, err)
			}
		}
	}()
}
