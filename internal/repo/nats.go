package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

// Publisher is the subset of *nats.Conn the notifier uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes alerts to "<prefix>.<tenant>.<type>".
type NATSNotifier struct {
	publisher Publisher
	prefix    string
	conn      *nats.Conn
}

// ConnectNATSNotifier dials the server and returns a notifier that owns the connection.
func ConnectNATSNotifier(url, subjectPrefix string) (*NATSNotifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("mirador-feedback"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	n := NewNATSNotifier(nc, subjectPrefix)
	n.conn = nc
	return n, nil
}

// NewNATSNotifier wraps an existing publisher.
func NewNATSNotifier(publisher Publisher, subjectPrefix string) *NATSNotifier {
	if subjectPrefix == "" {
		subjectPrefix = "feedback.notifications"
	}
	return &NATSNotifier{publisher: publisher, prefix: subjectPrefix}
}

// Notify publishes the alert. Delivery is fire-and-forget.
func (n *NATSNotifier) Notify(ctx context.Context, msg models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	subject := fmt.Sprintf("%s.%s.%s", n.prefix, msg.TenantID, msg.Type)
	if err := n.publisher.Publish(subject, data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close drains the owned connection, if any.
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
