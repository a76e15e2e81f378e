package notifier

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/awion/cryon-risk/model"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject is used when no subject is configured
const DefaultSubject = "cryon.risk.alerts"

// Config represents alert forwarding configuration
type Config struct {
	NATSURL string `yaml:"natsUrl"`
	Subject string `yaml:"subject"`
}

// Enabled reports whether alert forwarding is configured
func (c Config) Enabled() bool {
	return c.NATSURL != ""
}

// Publisher is the part of a NATS connection used to forward alerts
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
	IsConnected() bool
}

// NATSNotifier forwards alerts to a NATS subject as JSON
type NATSNotifier struct {
	conn    Publisher
	subject string
	logger  *zap.Logger
}

// NewNATSNotifier creates a notifier publishing on subject
func NewNATSNotifier(conn Publisher, subject string, logger *zap.Logger) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSNotifier{conn: conn, subject: subject, logger: logger}
}

// Connect dials the configured NATS server
func Connect(cfg Config, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("cryon-risk"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// Publish sends one alert with identifying headers
func (n *NATSNotifier) Publish(alert model.Alert) error {
	if n.conn == nil || !n.conn.IsConnected() {
		return fmt.Errorf("NATS connection not available")
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	headers := nats.Header{}
	headers.Set("x-alert-id", alert.ID)
	headers.Set("x-entity-id", alert.EntityID)
	headers.Set("x-alert-type", string(alert.Type))
	headers.Set("x-severity", string(alert.Severity))
	headers.Set("x-timestamp", alert.Timestamp.UTC().Format(time.RFC3339))

	msg := &nats.Msg{
		Subject: n.subject,
		Data:    data,
		Header:  headers,
	}
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	n.logger.Debug("Forwarded alert", zap.String("alert_id", alert.ID), zap.String("subject", n.subject))
	return nil
}
