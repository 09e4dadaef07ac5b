package announcer

import (
	"context"
	"encoding/json"
	"strings"

	"aaronromeo.com/inboxsweep/pkg/base"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultExchange = "inboxsweep.events"

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPAnnouncer publishes events to a topic exchange, routed by "inboxsweep.<kind>".
type AMQPAnnouncer struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
}

// DialAMQP connects to the broker and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPAnnouncer, error) {
	if strings.TrimSpace(exchange) == "" {
		exchange = defaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open amqp channel")
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	return &AMQPAnnouncer{conn: conn, ch: ch, exchange: exchange}, nil
}

func (a *AMQPAnnouncer) Do(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.At,
		AppId:        base.ServiceName,
		Type:         string(event.Kind),
		Body:         body,
	}
	if err := a.ch.PublishWithContext(ctx, a.exchange, routingKey(event.Kind), false, false, msg); err != nil {
		return errors.Wrapf(err, "publish %s", event.Kind)
	}
	return nil
}

func (a *AMQPAnnouncer) Close() error {
	err := a.ch.Close()
	if a.conn != nil {
		if cerr := a.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func routingKey(kind Kind) string {
	return base.ServiceName + "." + string(kind)
}
