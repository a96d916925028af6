package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"signed-transfer-gateway/config"
	"signed-transfer-gateway/internal/core/domain"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes events as JSON on one subject.
type NATS struct {
	pub     Publisher
	subject string
	log     zerolog.Logger
}

// NewNATS creates a NATS sink.
func NewNATS(pub Publisher, subject string, log zerolog.Logger) *NATS {
	return &NATS{pub: pub, subject: subject, log: log}
}

// Notify implements ports.NotificationSink.
func (n *NATS) Notify(ctx context.Context, event *domain.SettlementEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("nats: marshal event: %w", err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("nats: publish %s: %w", n.subject, err)
	}
	n.log.Debug().Str("subject", n.subject).Str("tx_id", event.TransactionID.String()).Msg("nats: event published")
	return nil
}

// Connect dials the configured NATS server, reconnecting forever in the
// background once the first connection succeeds.
func Connect(cfg config.NATSConfig, log zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("signed-transfer-gateway"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Str("subject", cfg.Subject).Msg("NATS connection established")
	return nc, nil
}

// ConnStatus is the part of *nats.Conn the health check needs.
type ConnStatus interface {
	Status() nats.Status
}

// HealthCheck implements ports.HealthChecker for NATS.
type HealthCheck struct {
	conn ConnStatus
}

// NewHealthCheck creates a NATS health checker.
func NewHealthCheck(conn ConnStatus) *HealthCheck {
	return &HealthCheck{conn: conn}
}

// Ping reports an error unless the connection is established.
func (h *HealthCheck) Ping(_ context.Context) error {
	if s := h.conn.Status(); s != nats.CONNECTED {
		return errors.New("nats connection " + s.String())
	}
	return nil
}

// Name returns the dependency name.
func (h *HealthCheck) Name() string {
	return "nats"
}
