package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fielddesk/chatcore/internal/auth"
	"github.com/fielddesk/chatcore/internal/config"
	"github.com/fielddesk/chatcore/internal/contextcache"
	"github.com/fielddesk/chatcore/internal/history"
	"github.com/fielddesk/chatcore/internal/observability"
	"github.com/fielddesk/chatcore/internal/orchestrator"
	"github.com/fielddesk/chatcore/internal/plugins"
	"github.com/fielddesk/chatcore/internal/providers/anthropic"
	"github.com/fielddesk/chatcore/internal/providers/gemini"
	"github.com/fielddesk/chatcore/internal/providers/openai"
	"github.com/fielddesk/chatcore/internal/store"
	"github.com/fielddesk/chatcore/internal/systemprompt"
	"github.com/fielddesk/chatcore/internal/tools"
	"github.com/fielddesk/chatcore/internal/tools/builtin"
)

func buildServeCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chatcore HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), debug)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, debug bool) error {
	cfg := config.Load()
	logLevel := cfg.Log.Level
	if debug {
		logLevel = "debug"
	}
	logger := observability.MustNewLogger(observability.LogConfig{Level: logLevel, Format: cfg.Log.Format})
	metrics := observability.NewMetrics()

	slog.Info("starting chatcore", "version", version, "commit", commit, "listen_addr", cfg.ListenAddr)

	st, err := store.Open(store.Config{
		WriterPath: cfg.Store.WriterPath,
		ReaderPath: cfg.Store.ReaderPath,
		BusyPolicy: busyPolicyFromName(cfg.Store.BusyPolicy),
		Logger:     logger.WithFields("component", "store"),
		Metrics:    metrics,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	historyLog, err := history.Open(ctx, st)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	cache := contextcache.New(historyLog)

	registry := plugins.NewRegistry(logger.WithFields("component", "plugins"))
	if err := registry.Register(ctx, plugins.RoleHistory, orchestrator.NewHistoryPlugin(historyLog, "history-log", 0)); err != nil {
		return fmt.Errorf("register history plugin: %w", err)
	}
	if err := registry.Register(ctx, plugins.RoleContext, orchestrator.NewContextPlugin(cache, "context-cache", 0)); err != nil {
		return fmt.Errorf("register context plugin: %w", err)
	}

	if err := registerModelProviders(ctx, registry, cfg); err != nil {
		return err
	}

	authService := auth.New(auth.Config{
		JWTSecret:     cfg.Auth.JWTSecret,
		TokenExpiry:   cfg.Auth.TokenExpiry,
		AllowedModels: cfg.Auth.AllowedModels,
		ID:            "jwt-auth",
	})
	if err := registry.Register(ctx, plugins.RoleAuth, authService); err != nil {
		return fmt.Errorf("register auth plugin: %w", err)
	}

	prompts, err := systemprompt.Load(cfg.SystemPromptsFile, "yaml-system-prompt", 0, logger.WithFields("component", "system_prompt"))
	if err != nil {
		return fmt.Errorf("load system prompts: %w", err)
	}
	if err := registry.Register(ctx, plugins.RoleSystemPrompt, prompts); err != nil {
		return fmt.Errorf("register system prompt plugin: %w", err)
	}

	toolRegistry := tools.NewRegistry()
	toolRegistry.SetResultGuard(tools.ResultGuard{
		MaxChars: cfg.ToolRedaction.MaxChars,
		Denylist: cfg.ToolRedaction.Denylist,
	})
	if err := registerBuiltinTools(toolRegistry, historyLog, st); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}
	statusSource := &registrySnapshot{tools: toolRegistry, plugins: registry}
	if err := toolRegistry.Register(builtin.NewSystemStatusTool(statusSource)); err != nil {
		return fmt.Errorf("register system_status tool: %w", err)
	}

	background := orchestrator.NewBackgroundTasks(ctx, logger.WithFields("component", "background"))
	defer background.Shutdown()

	orch, err := orchestrator.New(registry, toolRegistry, background, orchestrator.Config{
		MaxRounds:        cfg.Orchestrator.MaxRounds,
		ToolTimeout:      cfg.Orchestrator.ToolTimeout,
		ThreadTitleChars: cfg.Orchestrator.ThreadTitleChars,
	}, logger.WithFields("component", "orchestrator"))
	if err != nil {
		return fmt.Errorf("construct orchestrator: %w", err)
	}

	httpLogger := logger.WithFields("component", "http")
	server := &http.Server{Addr: cfg.ListenAddr, Handler: httpLogger.LogMiddleware(newTurnHandler(orch, authService, httpLogger))}

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-runCtx.Done():
		slog.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	}
}

func registerModelProviders(ctx context.Context, registry *plugins.Registry, cfg config.Config) error {
	registered := 0
	if cfg.Providers.AnthropicAPIKey != "" {
		p, err := anthropic.New(anthropic.Config{APIKey: cfg.Providers.AnthropicAPIKey, BaseURL: cfg.Providers.AnthropicBaseURL, ID: "anthropic", Priority: 30})
		if err != nil {
			return fmt.Errorf("construct anthropic provider: %w", err)
		}
		if err := registry.Register(ctx, plugins.RoleModel, p); err != nil {
			return fmt.Errorf("register anthropic provider: %w", err)
		}
		registered++
	}
	if cfg.Providers.OpenAIAPIKey != "" {
		p, err := openai.New(openai.Config{APIKey: cfg.Providers.OpenAIAPIKey, BaseURL: cfg.Providers.OpenAIBaseURL, ID: "openai", Priority: 20})
		if err != nil {
			return fmt.Errorf("construct openai provider: %w", err)
		}
		if err := registry.Register(ctx, plugins.RoleModel, p); err != nil {
			return fmt.Errorf("register openai provider: %w", err)
		}
		registered++
	}
	if cfg.Providers.GeminiAPIKey != "" {
		p, err := gemini.New(ctx, gemini.Config{APIKey: cfg.Providers.GeminiAPIKey, ID: "gemini", Priority: 10})
		if err != nil {
			return fmt.Errorf("construct gemini provider: %w", err)
		}
		if err := registry.Register(ctx, plugins.RoleModel, p); err != nil {
			return fmt.Errorf("register gemini provider: %w", err)
		}
		registered++
	}
	if registered == 0 {
		return fmt.Errorf("no model provider configured: set ANTHROPIC_API_KEY, OPENAI_API_KEY, or GEMINI_API_KEY")
	}
	return nil
}

// busyPolicyFromName resolves a configured busy-retry preset to its
// retry policy; an unrecognized name falls back to the default the
// way the store itself does for a zero-value policy.
func busyPolicyFromName(name string) store.RetryPolicy {
	switch name {
	case "aggressive":
		return store.AggressiveRetryPolicy()
	case "conservative":
		return store.ConservativeRetryPolicy()
	default:
		return store.DefaultRetryPolicy()
	}
}

func registerBuiltinTools(reg *tools.Registry, historyLog *history.Log, st *store.Store) error {
	if err := reg.Register(builtin.NewThreadSearchTool(historyLog)); err != nil {
		return err
	}
	return builtin.RegisterRecordLookup(reg, st)
}

// registrySnapshot adapts the live tool and plugin registries to
// builtin.StatusProvider.
type registrySnapshot struct {
	tools   *tools.Registry
	plugins *plugins.Registry
}

func (s *registrySnapshot) RegisteredToolCount() int { return len(s.tools.Schemas()) }

func (s *registrySnapshot) ActivePluginRoles() []string {
	var out []string
	for _, role := range plugins.AllRoles() {
		if _, ok := s.plugins.Active(role); ok {
			out = append(out, string(role))
		}
	}
	return out
}
