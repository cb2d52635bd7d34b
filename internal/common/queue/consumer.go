package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	apperrors "match-workers/internal/common/errors"
	"match-workers/internal/common/logger"
	"match-workers/internal/common/metrics"

	"github.com/streadway/amqp"
)

const (
	dispatcherLabel = "amqp"
	consumerTag     = "match-workers"
)

// Handler processes one task. The returned result is sent to the reply queue
// when the message asks for one; a handler that fails with a result (an error
// outcome) has that result replied instead of a generic error body.
type Handler interface {
	HandleTask(ctx context.Context, task Task) (interface{}, error)
}

type HandlerFunc func(ctx context.Context, task Task) (interface{}, error)

func (f HandlerFunc) HandleTask(ctx context.Context, task Task) (interface{}, error) {
	return f(ctx, task)
}

// Publisher is the subset of *amqp.Channel used for replies.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Options struct {
	URL      string
	Queue    string
	Workers  int
	Prefetch int
}

type Consumer struct {
	opts    Options
	handler Handler
	logger  logger.Logger
}

func NewConsumer(opts Options, handler Handler, log logger.Logger) *Consumer {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = opts.Workers
	}
	return &Consumer{
		opts:    opts,
		handler: handler,
		logger:  log.WithFields(map[string]interface{}{"queue": opts.Queue, "dispatcher": dispatcherLabel}),
	}
}

// Run consumes until ctx is cancelled or the broker closes the connection.
// Messages are acknowledged manually after handling.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.opts.URL)
	if err != nil {
		return apperrors.NewDispatchError(dispatcherLabel, fmt.Errorf("dial: %w", err), true)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return apperrors.NewDispatchError(dispatcherLabel, fmt.Errorf("open channel: %w", err), true)
	}
	defer ch.Close()

	if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
		return apperrors.NewDispatchError(dispatcherLabel, fmt.Errorf("set qos: %w", err), true)
	}
	if _, err := ch.QueueDeclare(c.opts.Queue, true, false, false, false, nil); err != nil {
		return apperrors.NewDispatchError(dispatcherLabel, fmt.Errorf("declare queue %s: %w", c.opts.Queue, err), false)
	}

	deliveries, err := ch.Consume(c.opts.Queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return apperrors.NewDispatchError(dispatcherLabel, fmt.Errorf("consume %s: %w", c.opts.Queue, err), true)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.Info("amqp consumer started", map[string]interface{}{"workers": c.opts.Workers})
	c.serve(ctx, ch, deliveries)

	select {
	case amqpErr := <-closed:
		if amqpErr != nil {
			return apperrors.NewDispatchError(dispatcherLabel, amqpErr, amqpErr.Recover)
		}
	default:
	}
	return ctx.Err()
}

// serve runs the worker pool until ctx is done or deliveries is closed.
func (c *Consumer) serve(ctx context.Context, pub Publisher, deliveries <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	wg.Add(c.opts.Workers)
	for i := 0; i < c.opts.Workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					c.process(ctx, pub, d)
				}
			}
		}()
	}
	wg.Wait()
}

func (c *Consumer) process(ctx context.Context, pub Publisher, d amqp.Delivery) {
	task, err := DecodeTask(d)
	if err != nil {
		c.logger.Warn("rejecting malformed message", map[string]interface{}{
			"deliveryTag": d.DeliveryTag,
			"error":       err,
		})
		metrics.WorkerJobsFailed.WithLabelValues("unknown", dispatcherLabel, string(apperrors.ErrCodeInvalidInput)).Inc()
		c.settle(d.Reject(false), d, "reject")
		return
	}

	log := c.logger.WithFields(map[string]interface{}{"task": task.Name, "taskId": task.ID})
	metrics.WorkerJobsActive.WithLabelValues(task.Name, dispatcherLabel).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(task.Name, dispatcherLabel).Dec()

	result, err := c.handler.HandleTask(ctx, task)
	if err != nil {
		stdErr, ok := apperrors.AsStandardError(err)
		if !ok {
			stdErr = apperrors.NewInternalError(err)
		}
		metrics.WorkerJobsFailed.WithLabelValues(task.Name, dispatcherLabel, string(stdErr.Code)).Inc()

		// Retryable failures get one redelivery; the broker's dead letter
		// policy takes over after that.
		if stdErr.Retryable && !d.Redelivered {
			log.Warn("task failed, requeueing", map[string]interface{}{"errorCode": string(stdErr.Code), "error": err})
			c.settle(d.Nack(false, true), d, "nack")
			return
		}
		log.Error("task failed", map[string]interface{}{"errorCode": string(stdErr.Code), "error": err})
		if result == nil {
			result = map[string]interface{}{
				"status":     "error",
				"error":      stdErr.Details,
				"error_code": string(stdErr.Code),
			}
		}
		c.reply(pub, d, task, result, log)
		c.settle(d.Reject(false), d, "reject")
		return
	}

	c.reply(pub, d, task, result, log)
	metrics.WorkerJobsCompleted.WithLabelValues(task.Name, dispatcherLabel).Inc()
	c.settle(d.Ack(false), d, "ack")
}

// reply publishes result to d.ReplyTo when set. Reply failures do not change
// how the message is settled.
func (c *Consumer) reply(pub Publisher, d amqp.Delivery, task Task, result interface{}, log logger.Logger) {
	if d.ReplyTo == "" || pub == nil {
		return
	}
	body, err := json.Marshal(result)
	if err != nil {
		log.Warn("failed to marshal reply", map[string]interface{}{"error": err})
		return
	}
	correlationID := d.CorrelationId
	if correlationID == "" {
		correlationID = task.ID
	}
	err = pub.Publish("", d.ReplyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		Body:          body,
	})
	if err != nil {
		log.Warn("failed to publish reply", map[string]interface{}{"replyTo": d.ReplyTo, "error": err})
	}
}

func (c *Consumer) settle(err error, d amqp.Delivery, action string) {
	if err == nil {
		return
	}
	if errors.Is(err, amqp.ErrClosed) {
		c.logger.Warn("channel closed before "+action, map[string]interface{}{"deliveryTag": d.DeliveryTag})
		return
	}
	c.logger.Error("failed to "+action+" message", map[string]interface{}{"deliveryTag": d.DeliveryTag, "error": err})
}
