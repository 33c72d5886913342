package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/room-reservation/internal/application"
	"github.com/example/room-reservation/internal/logging"
)

// Publisher sends events to a RabbitMQ topic exchange. It implements Sink.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewPublisher dials url and declares a durable topic exchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, ch, err := openChannel(url, exchange)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *Publisher) Deliver(ctx context.Context, n application.Notification) error {
	return p.PublishJSON(ctx, RoutingKey(n.Status), EventFrom(n))
}

// PublishJSON marshals v and publishes it as a persistent message.
func (p *Publisher) PublishJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// AttemptHeader carries the delivery attempt number of a retried event.
const AttemptHeader = "x-attempt"

// ConsumerConfig names the queue a Consumer binds to the exchange.
//
// Failed deliveries are parked in "<Queue>.retry" for RetryDelay and then
// return to Queue with AttemptHeader incremented. Events that fail
// permanently or exhaust MaxAttempts are dead-lettered to
// DeadLetterExchange, where "<Queue>.dead" keeps them for inspection.
type ConsumerConfig struct {
	URL                string
	Exchange           string
	Queue              string
	Keys               []string
	Prefetch           int
	MaxAttempts        int
	RetryDelay         time.Duration
	DeadLetterExchange string
}

func (cfg *ConsumerConfig) applyDefaults() {
	if len(cfg.Keys) == 0 {
		cfg.Keys = []string{RKBookingApproved, RKBookingRejected}
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Second
	}
	if cfg.DeadLetterExchange == "" {
		cfg.DeadLetterExchange = cfg.Exchange + ".dlx"
	}
}

// Consumer reads booking events from a queue and hands them to a Sink.
type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	retryQueue  string
	maxAttempts int
	sink        Sink
	logger      *slog.Logger
}

// NewConsumer declares the exchange, the durable work queue bound to
// cfg.Keys (both status keys when empty) and its retry and dead-letter
// queues.
func NewConsumer(cfg ConsumerConfig, sink Sink, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = logging.Default()
	}
	cfg.applyDefaults()

	conn, ch, err := openChannel(cfg.URL, cfg.Exchange)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Consumer, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(cfg.DeadLetterExchange, "topic", true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("declare dead-letter exchange: %w", err))
	}
	dead, err := ch.QueueDeclare(cfg.Queue+".dead", true, false, false, false, nil)
	if err != nil {
		return fail(fmt.Errorf("declare dead-letter queue: %w", err))
	}
	if err := ch.QueueBind(dead.Name, "#", cfg.DeadLetterExchange, false, nil); err != nil {
		return fail(fmt.Errorf("bind dead-letter queue: %w", err))
	}

	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": cfg.DeadLetterExchange,
	})
	if err != nil {
		return fail(fmt.Errorf("declare queue: %w", err))
	}
	for _, key := range cfg.Keys {
		if err := ch.QueueBind(q.Name, key, cfg.Exchange, false, nil); err != nil {
			return fail(fmt.Errorf("bind %s: %w", key, err))
		}
	}

	retry, err := ch.QueueDeclare(q.Name+".retry", true, false, false, false, amqp.Table{
		"x-message-ttl":             cfg.RetryDelay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": q.Name,
	})
	if err != nil {
		return fail(fmt.Errorf("declare retry queue: %w", err))
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		return fail(fmt.Errorf("set qos: %w", err))
	}
	return &Consumer{
		conn:        conn,
		ch:          ch,
		queue:       q.Name,
		retryQueue:  retry.Name,
		maxAttempts: cfg.MaxAttempts,
		sink:        sink,
		logger:      logger.With("component", "notification_consumer", "queue", q.Name),
	}, nil
}

// Run consumes until ctx ends or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	attempt := DeliveryAttempt(d.Headers)
	outcome, err := HandleDelivery(ctx, c.sink, d.Body, attempt, c.maxAttempts)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to handle booking event",
			"routing_key", d.RoutingKey,
			"attempt", attempt,
			"outcome", outcome.String(),
			"error", err,
		)
	}

	switch outcome {
	case Delivered:
		_ = d.Ack(false)
	case Retry:
		if err := c.scheduleRetry(ctx, d, attempt+1); err != nil {
			c.logger.ErrorContext(ctx, "failed to schedule retry, dead-lettering", "attempt", attempt, "error", err)
			_ = d.Nack(false, false)
			return
		}
		_ = d.Ack(false)
	default:
		_ = d.Nack(false, false)
	}
}

func (c *Consumer) scheduleRetry(ctx context.Context, d amqp.Delivery, next int) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[AttemptHeader] = int32(next)
	return c.ch.PublishWithContext(ctx, "", c.retryQueue, false, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
	})
}

// Outcome is what the consumer does with a delivery.
type Outcome int

const (
	// Delivered acknowledges the message.
	Delivered Outcome = iota
	// Retry parks the message in the retry queue with the attempt bumped.
	Retry
	// DeadLetter rejects the message without requeue.
	DeadLetter
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Retry:
		return "retry"
	default:
		return "dead_letter"
	}
}

// HandleDelivery decodes body and delivers it. attempt counts from 1.
// Malformed bodies and permanent sink failures are dead-lettered at once;
// other failures are retried until attempt reaches maxAttempts.
func HandleDelivery(ctx context.Context, sink Sink, body []byte, attempt, maxAttempts int) (Outcome, error) {
	ev, err := DecodeEvent(body)
	if err != nil {
		return DeadLetter, err
	}
	n, err := ev.Notification()
	if err != nil {
		return DeadLetter, err
	}
	if err := sink.Deliver(ctx, n); err != nil {
		if IsPermanent(err) || attempt >= maxAttempts {
			return DeadLetter, err
		}
		return Retry, err
	}
	return Delivered, nil
}

// DeliveryAttempt reads AttemptHeader. Deliveries without it are on their
// first attempt.
func DeliveryAttempt(headers amqp.Table) int {
	var n int64
	switch v := headers[AttemptHeader].(type) {
	case int32:
		n = int64(v)
	case int64:
		n = v
	case int:
		n = int64(v)
	case int16:
		n = int64(v)
	case int8:
		n = int64(v)
	}
	if n < 1 {
		return 1
	}
	return int(n)
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func openChannel(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return conn, ch, nil
}
