// Package events publishes order status changes to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"kds/internal/store"
)

type Publisher interface {
	Publish(ctx context.Context, event store.OrderEvent) error
	Close() error
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event store.OrderEvent) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}

// AMQPPublisher writes events to a durable fanout exchange and waits for
// the broker confirm of each one.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	source   string
}

// confirmation is the pending broker answer for one publish.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

var ErrNack = errors.New("publish NACK from broker")

func Dial(url, exchange, source string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange, source: source}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event store.OrderEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	conf, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		MessageId:     event.EventID,
		CorrelationId: event.OrderID,
		Type:          event.Type,
		Timestamp:     time.Now().UTC(),
		Headers:       amqp.Table{"x-source": p.source},
		Body:          body,
	})
	if err != nil {
		return err
	}
	if conf == nil {
		return errors.New("rabbitmq channel is not in confirm mode")
	}
	return awaitConfirm(ctx, conf.DeliveryTag, conf)
}

// awaitConfirm waits for the confirm of one publish. Each publish holds its
// own confirmation, so giving up on one never shifts the acks of later ones.
func awaitConfirm(ctx context.Context, tag uint64, conf confirmation) error {
	ack, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm delivery %d: %w", tag, err)
	}
	if !ack {
		return fmt.Errorf("delivery %d: %w", tag, ErrNack)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
