package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fielddesk/chatcore/internal/auth"
	"github.com/fielddesk/chatcore/internal/orchestrator"
	"github.com/fielddesk/chatcore/pkg/models"
)

// newTurnHandler builds the HTTP surface: one POST endpoint to submit
// a user message and stream the turn's event sequence back as SSE,
// plus a health check.
func newTurnHandler(orch *orchestrator.Orchestrator, authService *auth.Service, logger interface {
	Warn(ctx context.Context, msg string, args ...any)
}) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/turns", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		user, err := authenticateRequest(r, authService)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		var body struct {
			Content         string `json:"content"`
			ThreadID        string `json:"thread_id"`
			Model           string `json:"model"`
			SystemPromptKey string `json:"system_prompt_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		events, err := orch.RunTurn(r.Context(), orchestrator.TurnRequest{
			UserID:          user.ID,
			Content:         body.Content,
			ThreadID:        body.ThreadID,
			Model:           body.Model,
			SystemPromptKey: body.SystemPromptKey,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		writeSSE(r.Context(), w, events, logger)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// authenticateRequest resolves the caller's identity from a bearer
// token when auth is configured; an unconfigured auth role lets any
// caller through as an anonymous user, since transport-level
// authentication enforcement is an external concern here.
func authenticateRequest(r *http.Request, authService *auth.Service) (*models.User, error) {
	if !authService.Enabled() {
		return &models.User{ID: "anonymous"}, nil
	}
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return nil, fmt.Errorf("missing bearer token")
	}
	return authService.Authenticate(r.Context(), token)
}

func writeSSE(ctx context.Context, w http.ResponseWriter, events <-chan models.Event, logger interface {
	Warn(ctx context.Context, msg string, args ...any)
}) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			logger.Warn(ctx, "marshal event failed", "turn", ev.TurnCorrelationID, "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
			return
		}
		flusher.Flush()
	}
}
