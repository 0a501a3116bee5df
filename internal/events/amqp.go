package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// Channel is the subset of *amqp.Channel the forwarder and consumer use.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Close() error
}

// Dial connects to the broker, retrying with a growing delay until ctx is done
// or maxRetries attempts have failed.
func Dial(ctx context.Context, url string, maxRetries int, logger *zerolog.Logger) (*amqp.Connection, *amqp.Channel, error) {
	if maxRetries <= 0 {
		maxRetries = 10
	}
	retryDelay := time.Second

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			ch, chErr := conn.Channel()
			if chErr == nil {
				logger.Info().Int("attempt", attempt).Msg("amqp connected")
				return conn, ch, nil
			}
			_ = conn.Close()
			err = fmt.Errorf("open channel: %w", chErr)
		}
		lastErr = err
		logger.Warn().Err(err).Int("attempt", attempt).Int("max_retries", maxRetries).Dur("retry_in", retryDelay).Msg("amqp connect failed")

		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(retryDelay):
			retryDelay = time.Duration(float64(retryDelay) * 1.5)
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}
		}
	}
	return nil, nil, fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, lastErr)
}

// Forwarder republishes bus events to a durable topic exchange with the
// event type as routing key.
type Forwarder struct {
	ch       Channel
	exchange string
	logger   *zerolog.Logger
}

func NewForwarder(ch Channel, exchange string, logger *zerolog.Logger) (*Forwarder, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("exchange declare: %w", err)
	}
	l := logger.With().Str("component", "amqp_forwarder").Str("exchange", exchange).Logger()
	return &Forwarder{ch: ch, exchange: exchange, logger: &l}, nil
}

// Attach subscribes the forwarder to every event type on the bus.
func (f *Forwarder) Attach(bus *EventBus) {
	bus.SubscribeAll(f.Handle)
}

// Handle publishes one event. Failures are logged and returned; the
// in-process publish that triggered it has already happened.
func (f *Forwarder) Handle(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err := f.ch.PublishWithContext(ctx, f.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         event.Type,
		Timestamp:    event.CreatedAt.UTC(),
		Body:         event.Payload,
	})
	if err != nil {
		f.logger.Error().Err(err).Str("event_type", event.Type).Msg("amqp publish failed")
		return fmt.Errorf("amqp publish %s: %w", event.Type, err)
	}
	f.logger.Debug().Str("event_type", event.Type).Msg("event forwarded")
	return nil
}

// Consumer reads events from a durable queue bound to the exchange and hands
// them to a handler.
type Consumer struct {
	ch       Channel
	exchange string
	queue    string
	logger   *zerolog.Logger
}

func NewConsumer(ch Channel, exchange, queue string, logger *zerolog.Logger) *Consumer {
	l := logger.With().Str("component", "amqp_consumer").Str("queue", queue).Logger()
	return &Consumer{ch: ch, exchange: exchange, queue: queue, logger: &l}
}

// Run declares the topology and consumes until ctx is done or the delivery
// channel closes. Messages whose handler fails are rejected without requeue.
func (c *Consumer) Run(ctx context.Context, handler EventHandler) error {
	if err := c.ch.ExchangeDeclare(c.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	if _, err := c.ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	for _, t := range EventTypes {
		if err := c.ch.QueueBind(c.queue, t, c.exchange, false, nil); err != nil {
			return fmt.Errorf("queue bind %s: %w", t, err)
		}
	}
	if err := c.ch.Qos(10, 0, false); err != nil {
		c.logger.Warn().Err(err).Msg("set qos failed")
	}

	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.logger.Info().Msg("consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			eventType := d.Type
			if eventType == "" {
				eventType = d.RoutingKey
			}
			event := &Event{Type: eventType, Payload: d.Body, CreatedAt: d.Timestamp}
			if err := handler(event); err != nil {
				c.logger.Error().Err(err).Str("event_type", eventType).Msg("handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
