package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Message is a routed event ready for the broker.
type Message struct {
	ID         string
	RoutingKey string
	OccurredAt time.Time
	Body       interface{}
}

// AMQPPublisher publishes JSON messages to a durable topic exchange, redialling on demand.
type AMQPPublisher struct {
	url      string
	exchange string
	logger   *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher constructs a publisher; the connection is opened on first publish.
func NewAMQPPublisher(url, exchange string, logger *zap.Logger) *AMQPPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPPublisher{url: url, exchange: exchange, logger: logger}
}

// Publish sends msg as a persistent JSON publishing.
func (p *AMQPPublisher) Publish(ctx context.Context, msg Message) error {
	pub, err := Encode(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, p.exchange, msg.RoutingKey, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", msg.RoutingKey, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}

	p.conn, p.ch = conn, ch
	p.logger.Info("rabbitmq channel opened", zap.String("exchange", p.exchange))
	return ch, nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Encode renders msg as an AMQP publishing.
func Encode(msg Message) (amqp.Publishing, error) {
	if msg.RoutingKey == "" {
		return amqp.Publishing{}, fmt.Errorf("routing key is required")
	}
	body, err := json.Marshal(msg.Body)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal %s: %w", msg.RoutingKey, err)
	}
	ts := msg.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         msg.RoutingKey,
		Timestamp:    ts,
		Body:         body,
	}, nil
}
