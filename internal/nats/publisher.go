// Package nats exports run events to a NATS JetStream stream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/ahrdadan/clinicprobe/internal/queue"
)

const (
	// DefaultStream is the name of the JetStream stream
	DefaultStream = "CLINICPROBE_RUNS"
	// DefaultSubjectPrefix prefixes every event subject
	DefaultSubjectPrefix = "clinicprobe.runs"
	defaultTimeout       = 5 * time.Second
)

// Config holds the connection settings
type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
	Timeout       time.Duration
}

// Publisher writes run events to JetStream. It implements queue.Sink.
type Publisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

// Connect dials the server and makes sure the stream exists
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("clinicprobe"),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := js.CreateOrUpdateStream(setupCtx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "clinicprobe verification run events",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      queue.DefaultResultTTL,
		Storage:     jetstream.FileStorage,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	logger.Info("NATS event export enabled", zap.String("url", nc.ConnectedUrl()), zap.String("stream", cfg.Stream))

	return &Publisher{
		nc:      nc,
		js:      js,
		prefix:  cfg.SubjectPrefix,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// Publish sends one event and waits for the stream ack
func (p *Publisher) Publish(event queue.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if _, err := p.js.Publish(ctx, Subject(p.prefix, event), data, jetstream.WithMsgID(MsgID(event))); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close drains the connection
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("failed to drain NATS connection", zap.Error(err))
		p.nc.Close()
	}
}

// Subject returns <prefix>.<run id>.<status>
func Subject(prefix string, event queue.Event) string {
	return prefix + "." + token(event.RunID) + "." + token(string(event.Status))
}

// MsgID lets JetStream drop redelivered copies of the same event. Seq is
// unique per hub, so two events of a run never share an ID.
func MsgID(event queue.Event) string {
	return fmt.Sprintf("%s-%d", event.RunID, event.Seq)
}

// token makes s usable as a single subject token
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
