package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP publishes events to a fanout exchange. A dropped connection is
// re-dialed on the next Notify.
type AMQP struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// DialAMQP connects and declares a durable fanout exchange.
func DialAMQP(url, exchange string) (*AMQP, error) {
	a := &AMQP{url: url, exchange: exchange}
	if err := a.connect(); err != nil {
		return nil, err
	}
	return a, nil
}

// connect opens a connection and channel and declares the exchange.
// a.mu must be held or a must not be shared yet.
func (a *AMQP) connect() error {
	conn, err := amqp.Dial(a.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		a.exchange,
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("amqp exchange declare: %w", err)
	}
	a.conn, a.ch = conn, ch
	return nil
}

// ensure re-dials when the connection or channel is gone. a.mu must be held.
func (a *AMQP) ensure() error {
	if a.conn != nil && !a.conn.IsClosed() && a.ch != nil && !a.ch.IsClosed() {
		return nil
	}
	a.closeLocked()
	slog.Info("amqp: reconnecting", slog.String("exchange", a.exchange))
	if err := a.connect(); err != nil {
		return fmt.Errorf("amqp reconnect: %w", err)
	}
	return nil
}

func (a *AMQP) closeLocked() error {
	var err error
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.conn != nil {
		err = a.conn.Close()
	}
	a.conn, a.ch = nil, nil
	if errors.Is(err, amqp.ErrClosed) {
		err = nil
	}
	return err
}

func (a *AMQP) Name() string { return "amqp" }

// RoutingKey is "<platform>.<kind>".
func RoutingKey(ev Event) string { return ev.Platform + "." + ev.Kind }

func (a *AMQP) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.At,
		Body:         body,
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for attempt := 0; ; attempt++ {
		if err := a.ensure(); err != nil {
			return err
		}
		err = a.ch.PublishWithContext(ctx,
			a.exchange,
			RoutingKey(ev),
			false, // mandatory
			false, // immediate
			msg)
		// The broker may drop us between the IsClosed check and the publish.
		if errors.Is(err, amqp.ErrClosed) && attempt == 0 {
			continue
		}
		return err
	}
}

// Close closes the channel and connection.
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeLocked()
}
