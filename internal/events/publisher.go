package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"contentgate/internal/logger"
)

type Publisher interface {
	Publish(ctx context.Context, ev Event) error

	// Close closes the publisher and releases resources
	Close() error
}

// amqpChannel is the subset of *amqp.Channel the publisher needs.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher publishes JSON events to a durable topic exchange.
type RabbitMQPublisher struct {
	mu       sync.Mutex
	uri      string
	exchange string
	conn     *amqp.Connection
	channel  amqpChannel
	log      *logger.Logger
	dial     func(uri string) (*amqp.Connection, amqpChannel, error)
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// NewPublisher connects to RabbitMQ, or returns a NopPublisher when uri is empty.
func NewPublisher(uri, exchange string, log *logger.Logger) (Publisher, error) {
	if uri == "" {
		log.Warn("event_publishing_disabled", logger.Fields{"reason": "RABBITMQ_URI is empty"})
		return NopPublisher{}, nil
	}
	p := &RabbitMQPublisher{uri: uri, exchange: exchange, log: log, dial: dialAMQP}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func dialAMQP(uri string) (*amqp.Connection, amqpChannel, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return conn, ch, nil
}

func (p *RabbitMQPublisher) connect() error {
	conn, ch, err := p.dial(p.uri)
	if err != nil {
		return err
	}
	err = ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		ch.Close()
		if conn != nil {
			conn.Close()
		}
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	p.conn, p.channel = conn, ch
	return nil
}

// Publish sends one event. A failed publish triggers one reconnect and retry.
func (p *RabbitMQPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		if err := p.connect(); err != nil {
			return err
		}
	}
	if err := p.publish(ctx, ev.RoutingKey(), body); err != nil {
		p.log.Warn("rabbitmq_publish_failed", logger.Fields{"routing_key": ev.RoutingKey(), "error": err})
		p.closeLocked()
		if err := p.connect(); err != nil {
			return err
		}
		return p.publish(ctx, ev.RoutingKey(), body)
	}
	return nil
}

func (p *RabbitMQPublisher) publish(ctx context.Context, key string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := p.channel.PublishWithContext(
		ctx,
		p.exchange, // exchange
		key,        // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *RabbitMQPublisher) closeLocked() error {
	var err error
	if p.channel != nil {
		err = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		err = p.conn.Close()
		p.conn = nil
	}
	return err
}

// Close closes the connection and channel
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}
