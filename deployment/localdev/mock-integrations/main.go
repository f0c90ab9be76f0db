package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

type generateRequest struct {
	TenantID string `json:"tenantId"`
	Context  struct {
		ErrorType    string `json:"errorType"`
		ErrorMessage string `json:"errorMessage"`
	} `json:"context"`
	Framework string `json:"framework"`
}

type ticketRequest struct {
	TenantID string   `json:"tenantId"`
	Summary  string   `json:"summary"`
	Priority string   `json:"priority"`
	Labels   []string `json:"labels"`
}

type notification struct {
	TenantID string         `json:"tenantId"`
	Type     string         `json:"type"`
	Channel  string         `json:"channel"`
	Data     map[string]any `json:"data"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.String("service", "integrations-mock"))
	addr := ":8090"
	if v := os.Getenv("MOCK_INTEGRATIONS_ADDRESS"); v != "" {
		addr = v
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           logRequests(logger, newMux(logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening", slog.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func newMux(logger *slog.Logger) *http.ServeMux {
	var tickets atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if !decodePost(w, r, &req) {
			return
		}
		code := fmt.Sprintf("// %s regression test for %s\n// %s\n", req.Framework, req.Context.ErrorType, req.Context.ErrorMessage)
		writeJSON(w, http.StatusOK, map[string]any{"testCode": code})
	})

	mux.HandleFunc("/api/v1/jira/tickets", func(w http.ResponseWriter, r *http.Request) {
		var req ticketRequest
		if !decodePost(w, r, &req) {
			return
		}
		id := fmt.Sprintf("MOCK-%d", tickets.Add(1))
		logger.Info("ticket created", slog.String("ticket_id", id), slog.String("summary", req.Summary), slog.String("priority", req.Priority))
		writeJSON(w, http.StatusCreated, map[string]any{
			"ticketId": id,
			"url":      "http://localhost:8090/browse/" + id,
		})
	})

	mux.HandleFunc("/api/v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		var n notification
		if !decodePost(w, r, &n) {
			return
		}
		logger.Info("notification", slog.String("tenant_id", n.TenantID), slog.String("type", n.Type), slog.String("channel", n.Channel))
		writeJSON(w, http.StatusAccepted, map[string]any{"delivered": true})
	})
	return mux
}

func decodePost(w http.ResponseWriter, r *http.Request, out any) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Debug("request", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Int("status", rw.status), slog.Duration("duration", time.Since(start)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
