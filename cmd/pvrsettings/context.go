package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/dshills/pvrsettings/internal/config"
	"github.com/dshills/pvrsettings/internal/config/registry"
	"github.com/dshills/pvrsettings/internal/i18n"
	"github.com/dshills/pvrsettings/internal/logging"
	"github.com/dshills/pvrsettings/internal/pvr/clients"
	"github.com/dshills/pvrsettings/internal/pvr/settings"
)

type globalFlags struct {
	configPath string
	logLevel   string
	dev        bool
	lang       string
}

// app wires the registry, loaders, client manager and settings cache.
type app struct {
	logger   *zap.Logger
	metrics  *prometheus.Registry
	registry *registry.Registry
	strings  *i18n.Strings
	clients  *clients.Manager
	config   *config.Manager
	settings *settings.Settings
}

type commandContext struct {
	flags *globalFlags

	appOnce sync.Once
	app     *app
	appErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureApp(ctx context.Context) (*app, error) {
	c.appOnce.Do(func() {
		c.app, c.appErr = newApp(ctx, c.flags)
	})
	return c.app, c.appErr
}

func (c *commandContext) close() {
	if c.app != nil {
		c.app.close()
	}
}

func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	logCfg := logging.DefaultConfig()
	if flags.dev {
		logCfg = logging.DevelopmentConfig()
	}
	if flags.logLevel != "" {
		logCfg.Level = flags.logLevel
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	tag, err := language.Parse(strings.TrimSpace(flags.lang))
	if err != nil {
		return nil, fmt.Errorf("parsing language %q: %w", flags.lang, err)
	}

	a := &app{
		logger:   logger,
		metrics:  prometheus.NewRegistry(),
		registry: registry.New(registry.WithLogger(logger)),
		strings:  i18n.New(tag),
	}
	a.clients = clients.NewManager(clients.WithLogger(logger), clients.WithRegisterer(a.metrics))

	if err := settings.RegisterDefinitions(a.registry); err != nil {
		return nil, fmt.Errorf("registering settings: %w", err)
	}
	settings.RegisterCallbacks(a.registry, a.strings, a.clients)

	a.config = config.NewManager(a.registry,
		config.WithPath(flags.configPath),
		config.WithLogger(logger),
		config.WithWatcher(true),
		config.WithClientsHandler(a.loadClients),
	)

	// The cache subscribes before loading so it sees the initial reload.
	a.settings = settings.New(a.registry, settings.IDs(),
		settings.WithLogger(logger),
		settings.WithMetrics(settings.NewMetrics(a.metrics)),
	)

	if _, err := a.config.Load(ctx); err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

func (a *app) loadClients(entries []map[string]any) {
	if err := a.clients.Load(entries); err != nil {
		a.logger.Error("invalid clients section", zap.Error(err))
	}
}

func (a *app) close() {
	a.config.Close()
	a.settings.Close()
	a.registry.Close()
	_ = a.logger.Sync()
}

// typedValue reads id from the cache using the accessor for its declared kind.
func (a *app) typedValue(id string) (string, error) {
	s := a.registry.Get(id)
	if s == nil {
		return "", fmt.Errorf("%w: %s", registry.ErrSettingNotFound, id)
	}

	switch s.Type {
	case registry.TypeBool:
		return fmt.Sprint(a.settings.GetBoolValue(id)), nil
	case registry.TypeInt:
		return fmt.Sprint(a.settings.GetIntValue(id)), nil
	default:
		return a.settings.GetStringValue(id), nil
	}
}
