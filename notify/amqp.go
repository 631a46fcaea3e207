/*
Package notify reports recorded payments to the finance ledger.

PURPOSE:
  The ledger calls an obligation.Notifier after every successful payment.
  AMQPPublisher sends a PaymentMessage to a RabbitMQ topic exchange, where
  the finance ledger consumes it. Nop is used when no broker is configured.

DELIVERY:
  At most once from this side: a publish failure is returned to the
  ledger, which logs it. The payment itself is already committed.

SEE ALSO:
  - obligation/ledger.go: Calls PaymentRecorded in the background
  - message.go: Wire format
*/
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/warp/obligation-engine/logging"
	"github.com/warp/obligation-engine/obligation"
)

const publishTimeout = 5 * time.Second

// AMQPPublisher implements obligation.Notifier over RabbitMQ.
type AMQPPublisher struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	exchange   string
	routingKey string
	log        *logging.Logger

	mu sync.Mutex // amqp channels are not safe for concurrent publishing
}

var _ obligation.Notifier = (*AMQPPublisher)(nil)

// NewAMQPPublisher dials url and declares a durable topic exchange.
func NewAMQPPublisher(url, exchange, routingKey string, logger *logging.Logger) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p := &AMQPPublisher{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
		log:        logger.WithComponent(logging.ComponentAMQP),
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return p, nil
}

// PaymentRecorded publishes one payment event.
func (p *AMQPPublisher) PaymentRecorded(ctx context.Context, event obligation.PaymentEvent) error {
	msg := NewPaymentMessage(event, time.Now())
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    string(event.EntryID) + ":" + string(event.Channel),
			Timestamp:    msg.Timestamp,
			Body:         body,
		},
	)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish payment %s/%s: %w", event.EntryID, event.Channel, err)
	}

	p.log.DebugContext(ctx, "payment published",
		logging.FieldEntryID, event.EntryID,
		logging.FieldChannel, event.Channel,
		"exchange", p.exchange,
		"routing_key", p.routingKey,
	)
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
