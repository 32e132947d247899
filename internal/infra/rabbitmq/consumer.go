package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// MessageHandler processes one delivery body. A nil return acks the message;
// an error requeues it after a backoff.
type MessageHandler func(ctx context.Context, body []byte) error

const maxBackoff = 60 * time.Second

// ConsumerConfig names the topology. Queue and StatusQueue are bound to
// Exchange using their own names as routing keys; DLQ is reached through
// the default exchange.
type ConsumerConfig struct {
	URL         string
	Queue       string
	Exchange    string
	DLQ         string
	StatusQueue string
	Prefetch    int
	WorkerCount int
	BaseDelayMs int
}

// Consumer runs a fixed pool of workers over one queue. Analyses are long
// and CPU bound, so prefetch should stay close to WorkerCount.
type Consumer struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	cfg       ConsumerConfig
	baseDelay time.Duration
	handler   MessageHandler
	logger    *zap.Logger
	wg        sync.WaitGroup
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	if cfg.WorkerCount < 1 {
		return nil, errors.New("worker count must be at least 1")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:      conn,
		channel:   ch,
		cfg:       cfg,
		baseDelay: time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		handler:   handler,
		logger:    logger,
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	for _, q := range []string{cfg.Queue, cfg.DLQ, cfg.StatusQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	for _, q := range []string{cfg.Queue, cfg.StatusQueue} {
		if err := ch.QueueBind(q, q, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}
	return nil
}

// Start consumes until ctx is cancelled, then waits for in-flight messages.
// Handlers run on a context that outlives ctx so a shutdown does not abort
// an analysis halfway and burn a retry.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
	}

	c.logger.Info("starting worker pool",
		zap.Int("workers", c.cfg.WorkerCount),
		zap.Int("prefetch", c.cfg.Prefetch),
		zap.String("queue", c.cfg.Queue),
	)

	work := context.WithoutCancel(ctx)
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx, work, i, deliveries)
	}

	<-ctx.Done()
	c.logger.Info("context cancelled, waiting for in-flight messages")
	c.wg.Wait()
	return nil
}

func (c *Consumer) worker(stop, work context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker_id", id))

	for {
		select {
		case <-stop.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Warn("delivery channel closed")
				return
			}
			c.handle(stop, work, d, log)
		}
	}
}

func (c *Consumer) handle(stop, work context.Context, d amqp.Delivery, log *zap.Logger) {
	attempt := attemptFromHeaders(d.Headers)
	log = log.With(
		zap.Uint64("delivery_tag", d.DeliveryTag),
		zap.Int("delivery_attempt", attempt),
		zap.Bool("redelivered", d.Redelivered),
	)

	if err := c.handler(work, d.Body); err != nil {
		delay := backoff(c.baseDelay, attemptFor(err, attempt))
		log.Warn("message handling failed, requeueing after backoff",
			zap.Error(err),
			zap.Duration("delay", delay),
		)

		select {
		case <-time.After(delay):
		case <-stop.Done():
		}
		if err := d.Nack(false, true); err != nil {
			log.Error("nack failed", zap.Error(err))
		}
		return
	}

	if err := d.Ack(false); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
}

// attempter is implemented by handler errors that know which attempt failed.
type attempter interface {
	FailedAttempt() int
}

// attemptFor prefers the attempt reported by the handler. Classic queues
// carry no delivery count on a plain requeue, so the headers alone would
// keep the backoff at its base delay.
func attemptFor(err error, fromHeaders int) int {
	var a attempter
	if errors.As(err, &a) && a.FailedAttempt() > 0 {
		return a.FailedAttempt()
	}
	return fromHeaders
}

// attemptFromHeaders reads the delivery attempt from quorum-queue
// x-delivery-count or, failing that, the x-death history. First delivery is 1.
func attemptFromHeaders(headers amqp.Table) int {
	if count, ok := headers["x-delivery-count"].(int64); ok && count >= 0 {
		return int(count) + 1
	}
	if deaths, ok := headers["x-death"].([]interface{}); ok && len(deaths) > 0 {
		return len(deaths)
	}
	return 1
}

// backoff doubles base per attempt, capped at maxBackoff.
func backoff(base time.Duration, attempt int) time.Duration {
	attempt = max(attempt, 1)
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(delay)
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Ping fails once the broker connection has been closed.
func (c *Consumer) Ping(_ context.Context) error {
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}
