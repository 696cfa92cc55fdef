package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/scribe/pkg/domain/model"
	"github.com/nats-io/nats.go"
)

// Config holds the JetStream connection and stream settings.
type Config struct {
	URL     string
	Stream  string
	Subject string
	Durable string

	// MaxDeliver bounds how many times the broker redelivers a message whose
	// consumer died before acknowledging. Workflow-level retries live in the
	// engine, not here.
	MaxDeliver int
}

// Client is the durable dispatch queue backed by NATS JetStream. Publishes
// carry the delivery ID as the broker-side message ID, so re-publication of
// the same delivery (reconciliation sweep, post-commit retry) collapses into
// a single queued message within the duplicate window.
type Client struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	sub *nats.Subscription
	cfg Config
}

// New connects to NATS, ensures the stream exists, and opens the durable
// pull consumer.
func New(cfg Config) (*Client, error) {
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 3
	}

	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to NATS", goerr.V("url", cfg.URL))
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, goerr.Wrap(err, "failed to open JetStream context")
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   []string{cfg.Subject},
		Retention:  nats.WorkQueuePolicy,
		Storage:    nats.FileStorage,
		Duplicates: 10 * time.Minute,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, goerr.Wrap(err, "failed to ensure stream", goerr.V("stream", cfg.Stream))
	}

	sub, err := js.PullSubscribe(cfg.Subject, cfg.Durable,
		nats.AckExplicit(),
		nats.MaxDeliver(cfg.MaxDeliver),
	)
	if err != nil {
		nc.Close()
		return nil, goerr.Wrap(err, "failed to open pull subscription",
			goerr.V("durable", cfg.Durable))
	}

	return &Client{nc: nc, js: js, sub: sub, cfg: cfg}, nil
}

// Close drains the connection.
func (c *Client) Close() {
	c.nc.Close()
}

// Publish enqueues a dispatch message. The delivery ID doubles as the
// broker-side dedup key.
func (c *Client) Publish(ctx context.Context, msg *model.DispatchMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal dispatch message")
	}

	_, err = c.js.Publish(c.cfg.Subject, data,
		nats.MsgId(string(msg.DeliveryID)),
		nats.Context(ctx),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to publish dispatch message",
			goerr.V("delivery_id", msg.DeliveryID))
	}
	return nil
}

// Message is one pulled dispatch message. Ack removes it; Term negatively
// acknowledges without redelivery, which is how poison messages leave the
// transport.
type Message struct {
	raw *nats.Msg
}

// Decode unmarshals the dispatch payload.
func (m *Message) Decode() (*model.DispatchMessage, error) {
	var msg model.DispatchMessage
	if err := json.Unmarshal(m.raw.Data, &msg); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal dispatch message")
	}
	return &msg, nil
}

// Ack acknowledges successful processing.
func (m *Message) Ack() error {
	return m.raw.AckSync()
}

// Term rejects the message without requeue.
func (m *Message) Term() error {
	return m.raw.Term()
}

// Fetch pulls up to batch messages, blocking until at least one arrives or
// the context expires. An empty slice means the wait timed out.
func (c *Client) Fetch(ctx context.Context, batch int) ([]*Message, error) {
	raws, err := c.sub.Fetch(batch, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to fetch dispatch messages")
	}

	msgs := make([]*Message, 0, len(raws))
	for _, raw := range raws {
		msgs = append(msgs, &Message{raw: raw})
	}
	return msgs, nil
}
