package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-feedback/internal/cache"
	"github.com/miradorstack/mirador-feedback/internal/config"
	"github.com/miradorstack/mirador-feedback/internal/engine"
	"github.com/miradorstack/mirador-feedback/internal/repo"
)

// buildTestGenerator returns nil when no generator is configured; rules then rely on
// template fallback.
func buildTestGenerator(cfg config.IntegrationsConfig, logger *slog.Logger) (engine.TestGenerator, error) {
	gen := cfg.TestGenerator
	switch gen.Provider {
	case config.ProviderOpenAI:
		return repo.NewOpenAITestGenerator(repo.OpenAIConfig{
			APIKey:    gen.OpenAI.APIKey,
			BaseURL:   gen.OpenAI.BaseURL,
			Model:     gen.OpenAI.Model,
			Timeout:   gen.Timeout,
			PerSecond: gen.RatePerSecond,
			Burst:     gen.Burst,
		})
	default:
		if cfg.BaseURL == "" {
			logger.Warn("test generator not configured, only template fallback is available")
			return nil, nil
		}
		return repo.NewHTTPTestGenerator(cfg.BaseURL, gen.Path, gen.Timeout, gen.RatePerSecond, gen.Burst), nil
	}
}

func buildTicketer(ctx context.Context, cfg config.IntegrationsConfig, logger *slog.Logger) (engine.Ticketer, error) {
	t := cfg.Ticketing
	switch t.Provider {
	case config.ProviderGitHub:
		return repo.NewGitHubTicketer(ctx, t.GitHub.Token, t.GitHub.Owner, t.GitHub.Repo, t.Timeout)
	default:
		if cfg.BaseURL == "" {
			logger.Warn("ticketing not configured, create_jira_ticket actions will fail")
			return nil, nil
		}
		return repo.NewIntegrationsClient(cfg.BaseURL, t.Path, cfg.Notifications.Path, t.Timeout, cfg.Notifications.Timeout), nil
	}
}

// buildNotifier also returns a close function for connections the notifier owns.
func buildNotifier(cfg config.IntegrationsConfig, logger *slog.Logger) (engine.Notifier, func() error, error) {
	n := cfg.Notifications
	noClose := func() error { return nil }
	switch n.Provider {
	case config.ProviderNATS:
		if n.NATS.URL == "" {
			return nil, noClose, fmt.Errorf("integrations.notifications.nats.url is required")
		}
		notifier, err := repo.ConnectNATSNotifier(n.NATS.URL, n.NATS.SubjectPrefix)
		if err != nil {
			return nil, noClose, err
		}
		return notifier, notifier.Close, nil
	default:
		if cfg.BaseURL == "" {
			logger.Warn("notifications not configured, notify_team actions will fail")
			return nil, noClose, nil
		}
		return repo.NewIntegrationsClient(cfg.BaseURL, cfg.Ticketing.Path, n.Path, cfg.Ticketing.Timeout, n.Timeout), noClose, nil
	}
}

func buildCacheProvider(cfg config.CacheConfig) (cache.Provider, error) {
	if cfg.Provider == config.ProviderNoop {
		return cache.NoopProvider{}, nil
	}
	return cache.NewMemoryProvider(cfg.MaxEntries)
}
