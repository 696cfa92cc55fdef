package config

import (
	"github.com/m-mizutani/scribe/pkg/infra/queue"
	"github.com/urfave/cli/v3"
)

// Queue holds NATS JetStream configuration
type Queue struct {
	URL        string
	Stream     string
	Subject    string
	Durable    string
	MaxDeliver int64
}

// Flags returns CLI flags for queue configuration
func (c *Queue) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "nats-url",
			Usage:       "NATS server URL",
			Value:       "nats://localhost:4222",
			Destination: &c.URL,
			Sources:     cli.EnvVars("SCRIBE_NATS_URL"),
		},
		&cli.StringFlag{
			Name:        "nats-stream",
			Usage:       "JetStream stream name for dispatch messages",
			Value:       "SCRIBE",
			Destination: &c.Stream,
			Sources:     cli.EnvVars("SCRIBE_NATS_STREAM"),
		},
		&cli.StringFlag{
			Name:        "nats-subject",
			Usage:       "Subject dispatch messages are published on",
			Value:       "scribe.dispatch",
			Destination: &c.Subject,
			Sources:     cli.EnvVars("SCRIBE_NATS_SUBJECT"),
		},
		&cli.StringFlag{
			Name:        "nats-durable",
			Usage:       "Durable consumer name",
			Value:       "summarizer",
			Destination: &c.Durable,
			Sources:     cli.EnvVars("SCRIBE_NATS_DURABLE"),
		},
		&cli.Int64Flag{
			Name:        "nats-max-deliver",
			Usage:       "Maximum broker redeliveries per message",
			Value:       3,
			Destination: &c.MaxDeliver,
			Sources:     cli.EnvVars("SCRIBE_NATS_MAX_DELIVER"),
		},
	}
}

// Config converts to the queue client configuration.
func (c *Queue) Config() queue.Config {
	return queue.Config{
		URL:        c.URL,
		Stream:     c.Stream,
		Subject:    c.Subject,
		Durable:    c.Durable,
		MaxDeliver: int(c.MaxDeliver),
	}
}
