package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"liveclass/internal/api"
	"liveclass/internal/attendance"
	"liveclass/internal/config"
	"liveclass/internal/database"
	"liveclass/internal/gateway"
	"liveclass/internal/hub"
	"liveclass/internal/media"
	"liveclass/internal/notify"
	"liveclass/internal/queue"
	"liveclass/internal/roster"
	"liveclass/internal/session"
	wsTransport "liveclass/internal/websocket"
	pkgdatabase "liveclass/pkg/database"
)

// Application owns every component and their lifecycles. Initialization
// follows dependency order: database, then the domain services on top of it,
// then the transport surfaces.
type Application struct {
	config     *config.Config
	log        *slog.Logger
	dbManager  *database.Manager
	registry   *roster.Registry
	tracker    *attendance.Tracker
	messageHub *hub.Hub
	dispatcher *queue.Dispatcher
	scheduler  *session.Scheduler
	worker     *session.Worker
	gateway    *gateway.Gateway
	httpServer *http.Server

	cancelDispatch context.CancelFunc
	dispatchDone   chan struct{}
}

// NewApplication builds the full component graph from configuration.
func NewApplication(cfg *config.Config, log *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	dbManager, err := database.NewManager(dbConfig, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	migrations := pkgdatabase.NewMigrationManager(dbManager.GetDB())
	if err := migrations.ApplyMigrations(); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	registry := roster.NewRegistry()
	tracker := attendance.NewTracker(dbManager, log)
	messageHub := hub.NewHub(log)

	issuer, err := media.NewJWTIssuer(cfg.Media.TokenSecret, cfg.Media.TokenTTL, log)
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to initialize credential issuer: %w", err)
	}

	notifier := notify.NewLogNotifier(log)
	worker := session.NewWorker(dbManager, messageHub, notifier, log)
	dispatcher := queue.NewDispatcher(dbManager, worker.HandleActivation, cfg.Scheduler.PollInterval, log)
	scheduler := session.NewScheduler(dbManager, dispatcher, nil, notifier, messageHub, log)

	gw := gateway.NewGateway(dbManager, registry, tracker, issuer, messageHub, messageHub, messageHub, scheduler, log)
	wsHandler := wsTransport.NewHandler(messageHub, gw, log)

	health := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return dbManager.HealthCheck(ctx)
	}
	apiServer := api.NewServer(dbManager, tracker, registry, health, log)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		log:        log,
		dbManager:  dbManager,
		registry:   registry,
		tracker:    tracker,
		messageHub: messageHub,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		worker:     worker,
		gateway:    gw,
		httpServer: httpServer,
	}, nil
}

// Start launches the activation dispatcher and the HTTP server. The
// dispatcher runs first so tasks persisted before a restart fire promptly.
func (app *Application) Start(ctx context.Context) error {
	app.log.Info("starting liveclass", "addr", app.httpServer.Addr)

	dispatchCtx, cancel := context.WithCancel(context.Background())
	app.cancelDispatch = cancel
	app.dispatchDone = make(chan struct{})
	go func() {
		defer close(app.dispatchDone)
		if err := app.dispatcher.Run(dispatchCtx); err != nil && err != context.Canceled {
			app.log.Error("activation dispatcher stopped", "error", err)
		}
	}()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		cancel()
		return err
	case <-time.After(100 * time.Millisecond):
		app.log.Info("liveclass started")
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse dependency order: HTTP server,
// dispatcher, hub, database.
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info("shutting down liveclass")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.log.Warn("HTTP server shutdown error", "error", err)
	}

	if app.cancelDispatch != nil {
		app.cancelDispatch()
		select {
		case <-app.dispatchDone:
		case <-ctx.Done():
			app.log.Warn("dispatcher did not stop before deadline")
		}
	}

	app.messageHub.Close()

	if err := app.dbManager.Close(); err != nil {
		app.log.Warn("database shutdown error", "error", err)
	}

	app.log.Info("liveclass shutdown complete")
	return nil
}

// Addr returns the HTTP listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
