package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/scribe/pkg/domain/interfaces"
	"github.com/m-mizutani/scribe/pkg/infra/queue"
	"github.com/m-mizutani/scribe/pkg/utils/async"
)

const defaultPrefetch = 5

// Source is the pull side of the dispatch queue.
type Source interface {
	Fetch(ctx context.Context, batch int) ([]*queue.Message, error)
}

// Consumer pulls dispatch messages and runs the summarization workflow for
// each. Concurrency is bounded by the prefetch size; one message never has
// more than one worker.
type Consumer struct {
	source   Source
	uc       interfaces.SummarizeUseCase
	prefetch int
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithPrefetch bounds how many messages are in flight at once. Keep it low:
// every workflow run makes external generation calls.
func WithPrefetch(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.prefetch = n
		}
	}
}

// NewConsumer creates a dispatch queue consumer.
func NewConsumer(source Source, uc interfaces.SummarizeUseCase, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		source:   source,
		uc:       uc,
		prefetch: defaultPrefetch,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run blocks pulling and processing messages until the context is cancelled.
// In-flight workers finish their current message before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	logger := ctxlog.From(ctx)
	logger.Info("dispatch consumer started", "prefetch", c.prefetch)

	for {
		if ctx.Err() != nil {
			logger.Info("dispatch consumer stopping")
			return nil
		}

		msgs, err := c.source.Fetch(ctx, c.prefetch)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("dispatch consumer stopping")
				return nil
			}
			logger.Warn("failed to fetch dispatch messages", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		var wg sync.WaitGroup
		for _, msg := range msgs {
			msg := msg
			async.Go(ctx, &wg, func(ctx context.Context) error {
				c.handle(ctx, msg)
				return nil
			})
		}
		wg.Wait()
	}
}

// handle processes one message. Failures terminate the message rather than
// requeueing it: the use case has already marked the event errored, or the
// reconciliation sweep will pick it up again if it has not.
func (c *Consumer) handle(ctx context.Context, msg *queue.Message) {
	logger := ctxlog.From(ctx)

	dispatch, err := msg.Decode()
	if err != nil {
		logger.Error("undecodable dispatch message, dropping", "error", err)
		if termErr := msg.Term(); termErr != nil {
			logger.Warn("failed to terminate message", "error", termErr)
		}
		return
	}

	if err := c.uc.ProcessEvent(ctx, dispatch); err != nil {
		logger.Error("workflow run failed",
			"event_id", dispatch.EventID,
			"delivery_id", dispatch.DeliveryID,
			"error", err,
		)
		if termErr := msg.Term(); termErr != nil {
			logger.Warn("failed to terminate message", "error", termErr)
		}
		return
	}

	if err := msg.Ack(); err != nil {
		logger.Warn("failed to acknowledge message",
			"event_id", dispatch.EventID, "error", err)
	}
}
