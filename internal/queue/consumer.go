package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Translator renders a message template for a locale.
type Translator interface {
	T(locale, key string, data map[string]any) string
}

// Consumer listens to the notification queues, renders each message with
// the translator and hands it to the deliverer.
type Consumer struct {
	url       string
	tr        Translator
	deliverer Deliverer
	locale    string
	loc       *time.Location
	prefetch  int
}

// NewConsumer returns a Consumer for the broker at url.  Times in the
// rendered texts are shown in loc.
func NewConsumer(url string, tr Translator, d Deliverer, locale string, loc *time.Location) *Consumer {
	if loc == nil {
		loc = time.UTC
	}
	return &Consumer{url: url, tr: tr, deliverer: d, locale: locale, loc: loc, prefetch: 50}
}

// Run connects to the broker and consumes until ctx is cancelled.  Dial
// failures and dropped connections are retried with exponential backoff
// capped at 30s; Run only returns once ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Printf("notify-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("notify-consumer: consume loop ended: %v; reconnecting", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		log.Printf("notify-consumer: set QoS failed: %v", err)
	}

	registered, err := c.subscribe(ch, QueueParticipantRegistered)
	if err != nil {
		return err
	}
	assigned, err := c.subscribe(ch, QueueAssignmentCreated)
	if err != nil {
		return err
	}

	for {
		var (
			d  amqp.Delivery
			ok bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok = <-registered:
		case d, ok = <-assigned:
		}
		if !ok {
			return errors.New("deliveries channel closed")
		}
		if err := c.handle(ctx, d.RoutingKey, d.Body); err != nil {
			log.Printf("notify-consumer: handle %s message failed: %v", d.RoutingKey, err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
}

func (c *Consumer) subscribe(ch *amqp.Channel, queue string) (<-chan amqp.Delivery, error) {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("queue declare %s: %w", queue, err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue consume %s: %w", queue, err)
	}
	return msgs, nil
}

func (c *Consumer) handle(ctx context.Context, queue string, body []byte) error {
	n, err := c.Render(queue, body)
	if err != nil {
		return err
	}
	return c.deliverer.Deliver(ctx, n)
}

// Render turns a raw message from queue into a Notification.
func (c *Consumer) Render(queue string, body []byte) (Notification, error) {
	switch queue {
	case QueueParticipantRegistered:
		var ev ParticipantRegisteredEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return Notification{}, fmt.Errorf("unmarshal: %w", err)
		}
		data := map[string]any{"Name": ev.Name, "DisplayID": ev.DisplayID}
		return Notification{
			Queue:         queue,
			ParticipantID: ev.ParticipantID,
			Email:         ev.Email,
			Phone:         ev.Phone,
			Subject:       c.tr.T(c.locale, "registered_subject", data),
			Body:          c.tr.T(c.locale, "registered_body", data),
			SMS:           c.tr.T(c.locale, "registered_sms", data),
		}, nil

	case QueueAssignmentCreated:
		var ev AssignmentCreatedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return Notification{}, fmt.Errorf("unmarshal: %w", err)
		}
		var subjectKey, bodyKey string
		data := map[string]any{"Name": ev.Name}
		switch ev.Kind {
		case AssignmentSeat:
			subjectKey, bodyKey = "seat_assigned_subject", "seat_assigned_body"
			data["TableNumber"] = ev.TableNumber
			data["SeatNumber"] = ev.SeatNumber
		case AssignmentVehicle:
			subjectKey, bodyKey = "vehicle_assigned_subject", "vehicle_assigned_body"
			data["VehicleLabel"] = ev.VehicleLabel
			if ev.PickupLocation != "" {
				data["PickupLocation"] = ev.PickupLocation
			}
			if ev.PickupAt != nil {
				data["PickupAt"] = ev.PickupAt.In(c.loc).Format("2006-01-02 15:04")
			}
		default:
			return Notification{}, fmt.Errorf("unknown assignment kind %q", ev.Kind)
		}
		text := c.tr.T(c.locale, bodyKey, data)
		return Notification{
			Queue:         queue,
			ParticipantID: ev.ParticipantID,
			Email:         ev.Email,
			Phone:         ev.Phone,
			Subject:       c.tr.T(c.locale, subjectKey, data),
			Body:          text,
			SMS:           c.tr.T(c.locale, "assignment_sms", map[string]any{"Summary": text}),
		}, nil
	}
	return Notification{}, fmt.Errorf("unexpected queue %q", queue)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
