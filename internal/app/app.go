package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbartova/medscreen/internal/eventlog"
	"github.com/mbartova/medscreen/internal/httpapi"
	"github.com/mbartova/medscreen/internal/store"
)

// App wires together the database, stores, and HTTP layer.
type App struct {
	Config Config
	Logger *log.Logger

	DB       *pgxpool.Pool
	Store    *store.Store
	EventLog *eventlog.Logger
}

// New connects to the database and constructs the application.
// Migrations are applied externally.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Store:    store.New(db),
		EventLog: eventlog.New(db),
	}, nil
}

// Router builds the HTTP handler for the application.
func (a *App) Router(registry *httpapi.SessionRegistry) http.Handler {
	return httpapi.NewRouter(httpapi.RouterConfig{
		DeepgramAPIKey:   a.Config.DeepgramAPIKey,
		OpenAIAPIKey:     a.Config.OpenAIAPIKey,
		ElevenLabsAPIKey: a.Config.ElevenLabsAPIKey,

		JWTSecret: a.Config.JWTSecret,
		JWTExpiry: a.Config.JWTExpiry,

		AdminUsername: a.Config.AdminUsername,
		AdminPassword: a.Config.AdminPassword,

		DiscordWebhookURL: a.Config.DiscordWebhookURL,

		APNsKeyPath:    a.Config.APNsKeyPath,
		APNsKeyID:      a.Config.APNsKeyID,
		APNsTeamID:     a.Config.APNsTeamID,
		APNsBundleID:   a.Config.APNsBundleID,
		APNsProduction: a.Config.APNsProduction,
	}, a.Logger, a.Store, a.EventLog, registry)
}

// Close releases all resources held by the application.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
