package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/extrunner/internal/config"
	"git.home.luguber.info/inful/extrunner/internal/foundation/errors"
	"git.home.luguber.info/inful/extrunner/internal/logfields"
)

// StreamName is the JetStream stream that stores run messages.
const StreamName = "EXTRUNNER_RUNS"

// Publisher sends run messages somewhere.
type Publisher interface {
	PublishRun(ctx context.Context, msg RunMessage) error
	Close() error
}

// NATSClient publishes run messages to a JetStream stream.
type NATSClient struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSClient connects to cfg.URL and makes sure the stream for cfg.Subject exists.
func NewNATSClient(ctx context.Context, cfg config.NotifyConfig) (*NATSClient, error) {
	if cfg.URL == "" {
		return nil, errors.ConfigError("notify url is not set").Build()
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("extrunner"), nats.Timeout(10*time.Second))
	if err != nil {
		return nil, errors.NetworkError("failed to connect to NATS").
			WithCause(err).
			WithContext("url", cfg.URL).
			Build()
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	client := &NATSClient{conn: conn, js: js, subject: cfg.Subject}
	if err := client.initStream(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize stream: %w", err)
	}

	slog.Info("NATS client initialized for run notifications",
		logfields.URL(cfg.URL),
		slog.String("subject", cfg.Subject))
	return client, nil
}

func (c *NATSClient) initStream(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Finished extension runner runs",
		Subjects:    []string{streamSubject(c.subject)},
		MaxAge:      30 * 24 * time.Hour,
	})
	return err
}

// streamSubject widens "a.b" to "a.b.>" so per-mode subjects land in the same stream.
func streamSubject(subject string) string {
	if strings.HasSuffix(subject, ">") || strings.HasSuffix(subject, "*") {
		return subject
	}
	return subject + ".>"
}

// PublishRun publishes msg on <subject>.<mode>, deduplicated by run ID.
func (c *NATSClient) PublishRun(ctx context.Context, msg RunMessage) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal run message: %w", err)
	}

	subject := c.subject + "." + msg.Mode
	if _, err := c.js.Publish(ctx, subject, data, jetstream.WithMsgID(msg.RunID)); err != nil {
		return errors.NetworkError("failed to publish run message").
			WithCause(err).
			WithContext("subject", subject).
			Build()
	}

	slog.Debug("Published run message", logfields.RunID(msg.RunID), slog.String("subject", subject))
	return nil
}

func (c *NATSClient) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}
