package notify

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the direct exchange work notifications are published to.
const DefaultExchange = "jobnik.work"

// Publisher is the publishing half of an AMQP channel. *amqp.Channel implements it.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes one message per notification, routed by stage type.
type AMQPNotifier struct {
	pub      Publisher
	exchange string
	conn     *amqp.Connection
}

// NewAMQPNotifier publishes through pub to exchange.
func NewAMQPNotifier(pub Publisher, exchange string) *AMQPNotifier {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQPNotifier{pub: pub, exchange: exchange}
}

// DialAMQP connects to a broker and declares the notification exchange.
func DialAMQP(url, exchange string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("jobnik: connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("jobnik: open channel: %w", err)
	}

	n := NewAMQPNotifier(ch, exchange)
	if err := ch.ExchangeDeclare(n.exchange, "direct", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("jobnik: declare exchange %s: %w", n.exchange, err)
	}
	n.conn = conn
	return n, nil
}

// Notify publishes stageType with stageType as the routing key.
func (n *AMQPNotifier) Notify(ctx context.Context, stageType string) error {
	return n.pub.PublishWithContext(ctx,
		n.exchange, // exchange
		stageType,  // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "text/plain",
			DeliveryMode: amqp.Transient,
			Body:         []byte(stageType),
		})
}

// Close closes the connection opened by DialAMQP.
func (n *AMQPNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}

// ConsumeAMQP binds a private queue to exchange for the given stage types and
// returns the stage types as they are announced. The channel closes when
// ctx is done or the AMQP channel closes.
func ConsumeAMQP(ctx context.Context, ch *amqp.Channel, exchange string, types []string) (<-chan string, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("jobnik: declare wake queue: %w", err)
	}
	for _, t := range types {
		if err := ch.QueueBind(q.Name, t, exchange, false, nil); err != nil {
			return nil, fmt.Errorf("jobnik: bind %s: %w", t, err)
		}
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("jobnik: consume wake queue: %w", err)
	}

	out := make(chan string, len(types)+1)
	go forwardDeliveries(ctx, deliveries, out)
	return out, nil
}

// forwardDeliveries copies routing keys to out until ctx is done or
// deliveries closes, then closes out.
func forwardDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery, out chan<- string) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			select {
			case out <- d.RoutingKey:
			case <-ctx.Done():
				return
			}
		}
	}
}
