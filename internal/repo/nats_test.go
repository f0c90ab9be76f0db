package repo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

type recordingPublisher struct {
	subject string
	data    []byte
	err     error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.subject = subject
	p.data = data
	return p.err
}

func TestNATSNotifierPublishesAlert(t *testing.T) {
	pub := &recordingPublisher{}
	notifier := NewNATSNotifier(pub, "")

	err := notifier.Notify(context.Background(), models.Notification{
		TenantID: "tenant-a",
		Type:     "error_alert",
		Data:     models.NotificationData{ClusterID: "c1", Count: 2},
	})
	require.NoError(t, err)
	require.Equal(t, "feedback.notifications.tenant-a.error_alert", pub.subject)

	var decoded models.Notification
	require.NoError(t, json.Unmarshal(pub.data, &decoded))
	require.Equal(t, "c1", decoded.Data.ClusterID)
	require.NoError(t, notifier.Close())
}

func TestNATSNotifierPropagatesErrors(t *testing.T) {
	notifier := NewNATSNotifier(&recordingPublisher{err: errors.New("no responders")}, "alerts")
	err := notifier.Notify(context.Background(), models.Notification{TenantID: "t", Type: "error_alert"})
	require.ErrorContains(t, err, "no responders")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, notifier.Notify(ctx, models.Notification{}), context.Canceled)
}
