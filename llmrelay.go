// Package llmrelay is the top-level entry point for the llmrelay service.
//
// Use the Builder to compose an application from the environment:
//
//	app, err := llmrelay.NewBuilder().Build()
//	app.Start(ctx)
//
// Or customize every component:
//
//	app, err := llmrelay.NewBuilder().
//	    WithConfig(cfg).
//	    WithLLM(myClient).
//	    WithStore(myStore).
//	    Build()
package llmrelay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jxucoder/llmrelay/internal/config"
	"github.com/jxucoder/llmrelay/internal/httpapi"
	"github.com/jxucoder/llmrelay/internal/logging"
	"github.com/jxucoder/llmrelay/internal/metrics"
	"github.com/jxucoder/llmrelay/internal/relay"
	"github.com/jxucoder/llmrelay/pkg/llm"
	llmAnthropic "github.com/jxucoder/llmrelay/pkg/llm/anthropic"
	llmOpenAI "github.com/jxucoder/llmrelay/pkg/llm/openai"
	"github.com/jxucoder/llmrelay/pkg/store"
	sqliteStore "github.com/jxucoder/llmrelay/pkg/store/sqlite"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// shutdownTimeout is how long in-flight requests get to drain.
const shutdownTimeout = 10 * time.Second

// Config is the relay configuration. See internal/config for the
// environment variables it is loaded from.
type Config = config.Config

// LoadConfig reads the configuration from the environment and dotenv file.
func LoadConfig() (*Config, error) { return config.Load() }

// Builder constructs an llmrelay App.
type Builder struct {
	config  *Config
	llm     llm.Client
	store   store.AuditStore
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

// NewBuilder creates a new Builder with sensible defaults.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the application configuration. Without it Build loads
// the configuration from the environment.
func (b *Builder) WithConfig(cfg *Config) *Builder {
	b.config = cfg
	return b
}

// WithLLM sets the provider client. Without it Build creates one for the
// configured provider.
func (b *Builder) WithLLM(client llm.Client) *Builder {
	b.llm = client
	return b
}

// WithStore sets the audit store implementation.
func (b *Builder) WithStore(s store.AuditStore) *Builder {
	b.store = s
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(l *logrus.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetrics sets the metrics collectors.
func (b *Builder) WithMetrics(m *metrics.Metrics) *Builder {
	b.metrics = m
	return b
}

// Build creates the App. Missing components are filled with defaults.
func (b *Builder) Build() (*App, error) {
	if err := applyDefaults(b); err != nil {
		return nil, err
	}

	svc := relay.New(b.llm, relay.Options{
		Model:       b.config.ModelName,
		Temperature: b.config.Temperature,
		MaxTokens:   b.config.MaxTokens,
		Timeout:     b.config.Timeout,
	}, b.metrics, b.store, b.logger)

	handler := httpapi.New(svc, httpapi.Options{
		Version:        Version,
		MaxPromptChars: b.config.MaxPromptChars,
		RateLimit:      b.config.RateLimit,
		RateBurst:      b.config.RateBurst,
	}, b.metrics, b.logger)

	return &App{
		config:  b.config,
		relay:   svc,
		handler: handler,
		router:  handler.Router(),
		store:   b.store,
		log:     b.logger,
	}, nil
}

// App is a running llmrelay application.
type App struct {
	config  *Config
	relay   *relay.Service
	handler *httpapi.Handler
	router  http.Handler
	store   store.AuditStore
	log     *logrus.Logger
}

// Config returns the configuration the App was built with.
func (a *App) Config() *Config { return a.config }

// Relay returns the relay service for direct access.
func (a *App) Relay() *relay.Service { return a.relay }

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler { return a.router }

// Routes returns the API routing table.
func (a *App) Routes() []httpapi.Route { return a.handler.Routes() }

// Start starts the HTTP server. Blocks until ctx is done, then drains
// in-flight requests and closes the audit store.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:              a.config.Addr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.WithError(err).Warn("shutdown did not complete cleanly")
		}
	}()

	a.log.WithFields(logrus.Fields{
		"addr":        srv.Addr,
		"provider":    a.relay.Provider(),
		"model":       a.config.ModelName,
		"temperature": a.config.Temperature,
		"audit":       a.store != nil,
		"version":     Version,
	}).Info("llmrelay listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-done
		return errors.Join(err, a.Close())
	}
	<-done

	a.log.Info("llmrelay stopped")
	return a.Close()
}

// Close releases the audit store.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// applyDefaults fills in missing fields on the builder with sensible defaults.
func applyDefaults(b *Builder) error {
	// Config.
	if b.config == nil {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		b.config = cfg
	}
	if b.llm == nil {
		if err := b.config.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	// Logger.
	if b.logger == nil {
		l, err := logging.New(b.config.LogLevel, b.config.LogFormat, os.Stderr)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		b.logger = l
	}

	// Metrics.
	if b.metrics == nil {
		b.metrics = metrics.New()
	}

	// LLM client.
	if b.llm == nil {
		client, err := llmClientFromConfig(b.config, b.logger)
		if err != nil {
			return err
		}
		b.llm = client
	}

	// Audit store.
	if b.store == nil && b.config.AuditEnabled() {
		if dir := filepath.Dir(b.config.AuditDBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating audit directory: %w", err)
			}
		}
		st, err := sqliteStore.New(b.config.AuditDBPath)
		if err != nil {
			return fmt.Errorf("initializing audit store: %w", err)
		}
		b.store = st
	}

	return nil
}

// llmClientFromConfig creates the client for the configured provider.
func llmClientFromConfig(cfg *Config, log logrus.FieldLogger) (llm.Client, error) {
	log = log.WithField("provider", cfg.Provider)
	switch cfg.Provider {
	case "openai":
		return llmOpenAI.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Timeout).WithLogger(log), nil
	case "anthropic":
		return llmAnthropic.New(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.Timeout).WithLogger(log), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
