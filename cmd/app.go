package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/vip-checkout/internal"
	"github.com/frahmantamala/vip-checkout/internal/backend"
	"github.com/frahmantamala/vip-checkout/internal/capability"
	"github.com/frahmantamala/vip-checkout/internal/checkout"
	"github.com/frahmantamala/vip-checkout/internal/core/events"
	"github.com/frahmantamala/vip-checkout/internal/navigation"
	"github.com/frahmantamala/vip-checkout/internal/session"
	sessionSQLite "github.com/frahmantamala/vip-checkout/internal/session/sqlite"
	"github.com/frahmantamala/vip-checkout/pkg/logger"
	"gorm.io/gorm"
)

// application holds what every command shares: config, the session database, the backend
// client and the event bus.
type application struct {
	Config   *internal.Config
	DB       *gorm.DB
	Backend  *backend.Client
	Registry *capability.Registry
	Bus      *events.EventBus
	Logger   *slog.Logger
	Profile  string
}

func newApplication(ctx context.Context) (*application, error) {
	config, err := loadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	initLogger(config)
	log := logger.LoggerWrapper()

	db, err := sessionSQLite.Open(ctx, config.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	client := backend.NewClient(backend.Config{BaseURL: config.Backend.BaseURL, Timeout: config.Backend.Timeout}, log)

	bus := events.NewEventBus(log)
	bus.SubscribeAll(func(ctx context.Context, event events.Event) error {
		logger.Or(ctx, log).Debug("checkout event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	}, events.AllCheckoutEventTypes...)

	profile := profileOption
	if profile == "" {
		profile = config.Checkout.Profile
	}

	return &application{
		Config:   config,
		DB:       db,
		Backend:  client,
		Registry: capability.NewRegistry(client, log),
		Bus:      bus,
		Logger:   log,
		Profile:  profile,
	}, nil
}

// profileContext scopes ctx the way the CheckoutProfile middleware scopes a request.
func (a *application) profileContext(ctx context.Context) context.Context {
	ctx = internal.ContextWithProfileID(ctx, a.Profile)
	return logger.With(ctx, "profile_id", a.Profile)
}

func (a *application) storeFor(profileID string) session.Store {
	return sessionSQLite.NewSessionStore(a.DB, profileID, a.Logger)
}

func (a *application) dependencies(store session.Store, caps *capability.Capabilities) checkout.Dependencies {
	return checkout.Dependencies{
		Gateway:      a.Backend,
		Store:        store,
		Capabilities: caps,
		Providers:    checkout.DefaultProviders,
		Publisher:    a.Bus,
		Logger:       a.Logger,
	}
}

func (a *application) options() checkout.Options {
	return checkout.Options{MinAmount: a.Config.Checkout.MinAmount, SessionTTL: a.Config.Checkout.SessionTTL}
}

func (a *application) openDashboard(ctx context.Context) error {
	fmt.Printf("Opening your dashboard: %s\n", a.Config.Checkout.DashboardURL)
	if err := navigation.NewBrowserNavigator(a.Logger).Navigate(ctx, a.Config.Checkout.DashboardURL); err != nil {
		a.Logger.Warn("could not open the dashboard", "error", err)
	}
	return nil
}

// close lets queued event handlers finish, then releases the database.
func (a *application) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Bus.Wait(ctx); err != nil {
		a.Logger.Warn("event handlers still running at exit", "error", err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.Logger.Error("session store close error", "error", err)
		}
	}
}
