package main

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-feedback/internal/models"
	"github.com/miradorstack/mirador-feedback/internal/repo"
)

func TestMockServesIntegrationClients(t *testing.T) {
	srv := httptest.NewServer(newMux(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer srv.Close()
	ctx := context.Background()

	client := repo.NewIntegrationsClient(srv.URL, "/api/v1/jira/tickets", "/api/v1/notifications", time.Second, time.Second)
	ticket, err := client.CreateTicket(ctx, models.TicketRequest{TenantID: "t", Summary: "[Auto] X: y", Priority: "High"})
	require.NoError(t, err)
	assert.Equal(t, "MOCK-1", ticket.ID)

	require.NoError(t, client.Notify(ctx, models.Notification{TenantID: "t", Type: "error_alert"}))

	gen := repo.NewHTTPTestGenerator(srv.URL, "/api/v1/generate", time.Second, 10, 1)
	code, err := gen.GenerateTest(ctx, models.TestGenerationRequest{TenantID: "t", ErrorType: "TimeoutError", Framework: models.FrameworkJest})
	require.NoError(t, err)
	assert.Contains(t, code, "TimeoutError")
}
