package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events as JSON to <prefix>.<type>.
type NATSPublisher struct {
	nc     conn
	raw    *nats.Conn
	prefix string
	logger *slog.Logger
}

// ConnectNATS dials url and keeps reconnecting forever.
func ConnectNATS(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("exam-grader"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("events.nats.disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("events.nats.reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	logger.Info("events.nats.connected", "url", url, "subject_prefix", prefix)
	p := newNATSPublisher(nc, prefix, logger)
	p.raw = nc
	return p, nil
}

func newNATSPublisher(nc conn, prefix string, logger *slog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "grader.jobs"
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}
}

// Subject is the subject an event type is published on.
func (p *NATSPublisher) Subject(ev entity.JobEvent) string {
	return p.prefix + "." + string(ev.Type)
}

func (p *NATSPublisher) Publish(_ context.Context, ev entity.JobEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.Subject(ev), b)
}

// Subscribe delivers every event under the prefix to handler.
func (p *NATSPublisher) Subscribe(handler func(ctx context.Context, ev entity.JobEvent)) (*nats.Subscription, error) {
	return p.raw.Subscribe(p.prefix+".>", func(msg *nats.Msg) {
		var ev entity.JobEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			p.logger.Warn("events.nats.bad_payload", "subject", msg.Subject, "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		handler(ctx, ev)
	})
}

// Close drains pending publishes before closing.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}
