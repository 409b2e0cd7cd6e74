package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/logger"

	"scribedesk/internal/config"
	"scribedesk/internal/platform/logging"
	"scribedesk/internal/ports"
	"scribedesk/internal/providers/backend"
	"scribedesk/internal/providers/livesync"
	"scribedesk/internal/providers/llmstream"
	"scribedesk/internal/revisions"
	"scribedesk/internal/tasks"
	"scribedesk/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Sync      *usecase.SessionSync
	Transport *livesync.Transport
	Cache     *revisions.SQLiteCache
	Config    config.Config
}

// Build wires all backend dependencies for the given configuration. The
// transport is created but not started.
func Build(cfg config.Config, eventSink ports.EventSink, log logger.Logger) (Services, error) {
	if log == nil {
		log = logging.Nop()
	}

	wsURL := cfg.Backend.WebSocketURL
	if wsURL == "" {
		derived, err := livesync.DeriveURL(cfg.Backend.APIBaseURL)
		if err != nil {
			return Services{}, fmt.Errorf("derive websocket url: %w", err)
		}
		wsURL = derived
	}

	var (
		cache     *revisions.SQLiteCache
		cachePort ports.RevisionCache
	)
	if cfg.Cache.Enabled {
		opened, err := revisions.NewSQLiteCache(cfg.Cache.Path)
		if err != nil {
			// Revisions still load from the backend.
			log.Warning(fmt.Sprintf("revision cache disabled: %v", err))
		} else {
			cache = opened
			cachePort = opened
		}
	}

	api := backend.NewClient(backend.Config{
		APIBaseURL:     cfg.Backend.APIBaseURL,
		RequestTimeout: cfg.Backend.RequestTimeout,
	})
	generator := llmstream.NewClient(llmstream.Config{
		APIBaseURL: cfg.Backend.APIBaseURL,
		Path:       cfg.Generation.StreamPath,
	}, log)

	engine := usecase.NewSessionSync(api, api, cachePort, generator, eventSink, log, usecase.Config{
		PollInterval: cfg.Sync.PollInterval,
		Tasks: tasks.Config{
			SuccessTTL: cfg.Sync.SuccessTTL,
			ErrorTTL:   cfg.Sync.ErrorTTL,
		},
	})

	transport := livesync.NewTransport(livesync.Config{
		URL:            wsURL,
		ReconnectDelay: cfg.Sync.ReconnectDelay,
	}, engine.TransportHandlers(), log)

	return Services{Sync: engine, Transport: transport, Cache: cache, Config: cfg}, nil
}

// Start opens the push channel.
func (s Services) Start(ctx context.Context) {
	if s.Transport != nil {
		s.Transport.Start(ctx)
	}
}

// Close shuts everything down in dependency order.
func (s Services) Close() error {
	var errs []error
	if s.Transport != nil {
		errs = append(errs, s.Transport.Close())
	}
	if s.Sync != nil {
		errs = append(errs, s.Sync.Close())
	}
	if s.Cache != nil {
		errs = append(errs, s.Cache.Close())
	}
	return errors.Join(errs...)
}
