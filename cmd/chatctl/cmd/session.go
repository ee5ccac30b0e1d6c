package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/devpool/chatsync/internal/api"
	"github.com/devpool/chatsync/internal/chat"
	"github.com/devpool/chatsync/internal/config"
	"github.com/devpool/chatsync/internal/credentials"
	"github.com/devpool/chatsync/internal/pubsub"
	"github.com/devpool/chatsync/internal/transport"
)

// client bundles the collaborators of a running chat session.
type client struct {
	cfg     *config.Config
	creds   *credentials.Store
	api     *api.Client
	bus     *pubsub.WatermillBridge
	session *chat.Session

	shutdownTracing func(context.Context) error
}

// loadClientConfig reads configuration and the token source shared by every
// session command.
func loadClientConfig() (*config.Config, *credentials.Store, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	creds := credentials.NewOsStore(cfg.GetTokenFile())
	if tokenFlag != "" {
		creds.Set(tokenFlag)
	}
	if _, ok := creds.Token(); !ok {
		return nil, nil, fmt.Errorf("no bearer token: pass --token or run \"chatctl login\"")
	}
	return cfg, creds, nil
}

// openSession wires the REST client, hub connection and notification bus
// into a started chat session.
func openSession(ctx context.Context) (*client, error) {
	cfg, creds, err := loadClientConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	tracer, shutdownTracing, err := pubsub.SetupTracing(ctx, pubsub.TracingConfig{
		Enabled:     cfg.GetTracingEnabled(),
		ServiceName: "chatctl",
		ZipkinURL:   cfg.GetZipkinURL(),
	})
	if err != nil {
		return nil, err
	}

	c := &client{
		cfg:             cfg,
		creds:           creds,
		api:             api.NewClient(cfg.GetAPIURL(), creds, api.WithLogger(logger)),
		bus:             pubsub.NewWatermillBridge(pubsub.WithTracer(tracer), pubsub.WithLogger(logger)),
		shutdownTracing: shutdownTracing,
	}

	conn := transport.New(transport.Options{
		URL:               cfg.GetHubURL(),
		Tokens:            creds,
		RetryDelay:        cfg.GetRetryDelay(),
		ReconnectSchedule: cfg.GetReconnectSchedule(),
		InvokeTimeout:     cfg.GetInvokeTimeout(),
		Logger:            logger,
	})

	c.session = chat.NewSession(chat.Dependencies{
		Transport:      conn,
		API:            c.api,
		Publisher:      c.bus,
		Credentials:    creds,
		Logger:         logger,
		CurrentUserID:  cfg.GetUserID(),
		TypingIdle:     cfg.GetTypingIdle(),
		TypingExpiry:   cfg.GetTypingExpiry(),
		RequestTimeout: cfg.GetInvokeTimeout(),
	})
	if err := c.session.Start(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// waitConnected blocks until the hub connection is live or timeout elapses.
func (c *client) waitConnected(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !c.session.IsConnected() {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

// Close stops the session and releases the bus and tracer.
func (c *client) Close() {
	if c.session != nil {
		c.session.Stop()
	}
	if err := c.bus.Close(); err != nil {
		slog.Warn("Failed to close notification bus", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.shutdownTracing(ctx); err != nil {
		slog.Warn("Failed to flush traces", "error", err)
	}
}
