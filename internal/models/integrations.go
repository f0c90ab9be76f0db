package models

// TicketRequest is sent to the ticketing integration.
type TicketRequest struct {
	TenantID    string   `json:"tenantId"`
	Project     string   `json:"project,omitempty"`
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Labels      []string `json:"labels"`
}

// Ticket identifies a ticket created by the ticketing integration.
type Ticket struct {
	ID  string
	URL string
}

// Notification is the compact alert sent to the notification integration.
type Notification struct {
	TenantID string           `json:"tenantId"`
	Type     string           `json:"type"`
	Channel  string           `json:"channel,omitempty"`
	Data     NotificationData `json:"data"`
}

// NotificationData carries the cluster summary of an alert.
type NotificationData struct {
	ClusterID string   `json:"clusterId"`
	ErrorType string   `json:"errorType"`
	Severity  Severity `json:"severity"`
	Count     int      `json:"count"`
}
