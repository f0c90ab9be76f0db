package repo

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

// IntegrationsClient talks to the integrations service that bridges to the issue
// tracker and team chat.
type IntegrationsClient struct {
	baseURL           string
	ticketsPath       string
	notificationsPath string
	ticketTimeout     time.Duration
	notifyTimeout     time.Duration
	httpClient        *http.Client
}

// NewIntegrationsClient constructs a client targeting the configured integrations service.
func NewIntegrationsClient(baseURL, ticketsPath, notificationsPath string, ticketTimeout, notifyTimeout time.Duration) *IntegrationsClient {
	return &IntegrationsClient{
		baseURL:           strings.TrimRight(baseURL, "/"),
		ticketsPath:       ticketsPath,
		notificationsPath: notificationsPath,
		ticketTimeout:     ticketTimeout,
		notifyTimeout:     notifyTimeout,
		httpClient:        &http.Client{},
	}
}

// CreateTicket files a ticket and returns its identifier.
func (c *IntegrationsClient) CreateTicket(ctx context.Context, req models.TicketRequest) (models.Ticket, error) {
	if c == nil || c.baseURL == "" {
		return models.Ticket{}, fmt.Errorf("integrations base URL not configured")
	}
	ctx, cancel := withTimeout(ctx, c.ticketTimeout)
	defer cancel()

	var response struct {
		TicketID string `json:"ticketId"`
		URL      string `json:"url"`
		Data     struct {
			ID  string `json:"id"`
			Key string `json:"key"`
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := postJSON(ctx, c.httpClient, "integrations", resolveURL(c.baseURL, c.ticketsPath), req, &response); err != nil {
		return models.Ticket{}, fmt.Errorf("ticket request failed: %w", err)
	}
	ticket := models.Ticket{
		ID:  firstNonEmpty(response.TicketID, response.Data.Key, response.Data.ID),
		URL: firstNonEmpty(response.URL, response.Data.URL),
	}
	if ticket.ID == "" {
		return models.Ticket{}, fmt.Errorf("ticket request returned no ticket id")
	}
	return ticket, nil
}

// Notify sends a team alert.
func (c *IntegrationsClient) Notify(ctx context.Context, n models.Notification) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("integrations base URL not configured")
	}
	ctx, cancel := withTimeout(ctx, c.notifyTimeout)
	defer cancel()
	if err := postJSON(ctx, c.httpClient, "integrations", resolveURL(c.baseURL, c.notificationsPath), n, nil); err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	return nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
