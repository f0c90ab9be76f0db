package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/miradorstack/mirador-feedback/internal/models"
	"github.com/miradorstack/mirador-feedback/internal/utils"
)

// requestValidate checks transport DTOs before they reach the service.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New(validator.WithRequiredStructEnabled())
	requestValidate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// validateRequest converts the first validator failure into a ValidationError.
func validateRequest(v any) error {
	err := requestValidate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required":
			return models.NewValidationError(fe.Field(), "is required")
		case "min":
			return models.NewValidationError(fe.Field(), "must have at least "+fe.Param()+" entries")
		default:
			return models.NewValidationError(fe.Field(), "failed "+fe.Tag()+" check")
		}
	}
	return models.NewValidationError("", err.Error())
}

func decodeJSON(data []byte, out any) error {
	if len(data) == 0 {
		return models.NewValidationError("body", "is required")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return models.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}

// IngestErrorRequest is the canonical ingestion payload.
type IngestErrorRequest struct {
	TenantID        string         `json:"tenantId" validate:"required"`
	Source          string         `json:"source,omitempty"`
	ExternalID      string         `json:"externalId,omitempty"`
	ErrorType       string         `json:"errorType" validate:"required"`
	Message         string         `json:"message" validate:"required"`
	StackTrace      string         `json:"stackTrace,omitempty"`
	Severity        string         `json:"severity" validate:"required"`
	Environment     string         `json:"environment,omitempty"`
	Service         string         `json:"service" validate:"required"`
	Endpoint        string         `json:"endpoint,omitempty"`
	UserID          string         `json:"userId,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	FirstSeen       *time.Time     `json:"firstSeen,omitempty"`
	LastSeen        *time.Time     `json:"lastSeen,omitempty"`
	OccurrenceCount int            `json:"occurrenceCount,omitempty" validate:"gte=0"`
}

func (r IngestErrorRequest) toModel() models.IngestRequest {
	req := models.IngestRequest{
		TenantID:        r.TenantID,
		Source:          models.ErrorSource(r.Source),
		ExternalID:      r.ExternalID,
		ErrorType:       r.ErrorType,
		Message:         r.Message,
		StackTrace:      r.StackTrace,
		Severity:        models.Severity(r.Severity),
		Environment:     r.Environment,
		Service:         r.Service,
		Endpoint:        r.Endpoint,
		UserID:          r.UserID,
		Metadata:        r.Metadata,
		OccurrenceCount: r.OccurrenceCount,
	}
	if r.FirstSeen != nil {
		req.FirstSeen = r.FirstSeen.UTC()
	}
	if r.LastSeen != nil {
		req.LastSeen = r.LastSeen.UTC()
	}
	return req
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type regressionTestRequest struct {
	TenantID       string `json:"tenantId" validate:"required"`
	ErrorClusterID string `json:"errorClusterId" validate:"required"`
	Framework      string `json:"framework,omitempty"`
}

type approveRequest struct {
	ApprovedBy string `json:"approvedBy" validate:"required"`
}

// RuleRequest is the wire form of a rule. actionConfig stays raw until it is decoded
// into the typed per-action configuration.
type RuleRequest struct {
	ID           string                     `json:"id,omitempty"`
	Name         string                     `json:"name" validate:"required"`
	Description  string                     `json:"description,omitempty"`
	Trigger      models.RuleTrigger         `json:"trigger"`
	Actions      []models.ActionKind        `json:"actions" validate:"required,min=1"`
	ActionConfig map[string]json.RawMessage `json:"actionConfig,omitempty"`
	Enabled      *bool                      `json:"enabled,omitempty"`
	FireMode     models.FireMode            `json:"fireMode,omitempty"`
}

func (r RuleRequest) toModel(tenantID string) (models.FeedbackLoopRule, error) {
	actionCfg, err := models.DecodeActionConfig(r.ActionConfig)
	if err != nil {
		return models.FeedbackLoopRule{}, err
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return models.FeedbackLoopRule{
		ID:           r.ID,
		TenantID:     tenantID,
		Name:         r.Name,
		Description:  r.Description,
		Trigger:      r.Trigger,
		Actions:      r.Actions,
		ActionConfig: actionCfg,
		Enabled:      enabled,
		FireMode:     r.FireMode,
	}, nil
}

type sentryFrame struct {
	Filename string `json:"filename"`
	Lineno   int    `json:"lineno"`
	Function string `json:"function"`
}

type sentryException struct {
	Type       string `json:"type"`
	Value      string `json:"value"`
	Stacktrace struct {
		Frames []sentryFrame `json:"frames"`
	} `json:"stacktrace"`
}

type sentryWebhook struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Message     string `json:"message"`
	Level       string `json:"level"`
	ProjectSlug string `json:"project_slug"`
	Event       struct {
		EventID     string          `json:"event_id"`
		Level       string          `json:"level"`
		Environment string          `json:"environment"`
		Timestamp   json.RawMessage `json:"timestamp"`
		Exception   struct {
			Values []sentryException `json:"values"`
		} `json:"exception"`
		Request struct {
			URL string `json:"url"`
		} `json:"request"`
		User struct {
			ID json.RawMessage `json:"id"`
		} `json:"user"`
	} `json:"event"`
}

// SentryToIngest maps a Sentry issue webhook onto the canonical ingestion request.
// The tenant comes from the X-Tenant-ID header, falling back to the body.
func SentryToIngest(body []byte, headerTenant string) (models.IngestRequest, error) {
	var hook sentryWebhook
	if err := decodeJSON(body, &hook); err != nil {
		return models.IngestRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.IngestRequest{}, models.NewValidationError("body", "invalid JSON: "+err.Error())
	}

	tenantID := strings.TrimSpace(headerTenant)
	if tenantID == "" {
		tenantID = strings.TrimSpace(hook.TenantID)
	}
	if tenantID == "" {
		return models.IngestRequest{}, models.NewValidationError("tenantId", "is required")
	}

	var exception sentryException
	if len(hook.Event.Exception.Values) > 0 {
		exception = hook.Event.Exception.Values[0]
	}

	frames := make([]string, 0, len(exception.Stacktrace.Frames))
	for _, f := range exception.Stacktrace.Frames {
		frames = append(frames, fmt.Sprintf("%s:%d in %s", f.Filename, f.Lineno, f.Function))
	}

	req := models.IngestRequest{
		TenantID:        tenantID,
		Source:          models.SourceSentry,
		ExternalID:      firstNonEmpty(hook.Event.EventID, hook.ID),
		ErrorType:       firstNonEmpty(exception.Type, "Unknown"),
		Message:         firstNonEmpty(exception.Value, hook.Message, "Unknown error"),
		StackTrace:      strings.Join(frames, "\n"),
		Severity:        sentrySeverity(firstNonEmpty(hook.Level, hook.Event.Level)),
		Environment:     firstNonEmpty(hook.Event.Environment, "production"),
		Service:         firstNonEmpty(hook.ProjectSlug, "unknown"),
		Endpoint:        hook.Event.Request.URL,
		UserID:          rawString(hook.Event.User.ID),
		Metadata:        map[string]any{"sentryPayload": raw},
		OccurrenceCount: 1,
	}
	if ts := rawString(hook.Event.Timestamp); ts != "" {
		if parsed, err := utils.ParseTimestamp(ts); err == nil {
			req.FirstSeen = parsed
		}
	}
	return req, nil
}

// sentrySeverity maps Sentry levels onto severities. Unknown levels become medium.
func sentrySeverity(level string) models.Severity {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "fatal":
		return models.SeverityCritical
	case "error":
		return models.SeverityHigh
	case "warning":
		return models.SeverityMedium
	}
	if s := models.Severity(strings.ToLower(strings.TrimSpace(level))); s.Valid() {
		return s
	}
	return models.SeverityMedium
}

// rawString reads a JSON value that may be a string or a number.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
