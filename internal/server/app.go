package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jacksonlee411/lease-signflow/internal/archive"
	"github.com/jacksonlee411/lease-signflow/internal/config"
	"github.com/jacksonlee411/lease-signflow/internal/notify"
	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/ports"
	"github.com/jacksonlee411/lease-signflow/modules/signing/infrastructure/locking"
	"github.com/jacksonlee411/lease-signflow/modules/signing/infrastructure/persistence"
	"github.com/jacksonlee411/lease-signflow/modules/signing/services"
	"github.com/jacksonlee411/lease-signflow/pkg/logger"
)

// App is the assembled signing runtime shared by the server and the worker.
type App struct {
	Config     config.Config
	Pool       *pgxpool.Pool
	Store      ports.WorkflowStore
	Directory  ports.ContractDirectory
	Bus        *notify.Bus
	Service    *services.WorkflowService
	Dispatcher *notify.Dispatcher
	Archiver   *archive.Archiver

	closers []func()
}

func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg, Bus: notify.NewBus()}

	if cfg.Database.Memory {
		app.Store = persistence.NewMemoryStore()
		app.Directory = persistence.NewMemoryDirectory()
	} else {
		pool, err := pgxpool.New(ctx, cfg.Database.URL())
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		app.Pool = pool
		app.closers = append(app.closers, pool.Close)
		app.Store = persistence.NewWorkflowPGStore(pool)
		app.Directory = persistence.NewDirectoryPGStore(pool)
	}

	locker, err := app.newLocker()
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Service = services.NewWorkflowService(app.Store, app.Directory, app.Bus, locker,
		services.WithEscalator(services.LogEscalator{}))

	app.Dispatcher, err = NewDispatcher(cfg.Notify, app.Directory, app.Store)
	if err != nil {
		app.Close()
		return nil, err
	}

	if cfg.Archive.Enabled {
		client, err := archive.NewMinioClient(cfg.Archive.Config)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Archiver = archive.NewArchiver(client, app.Service, cfg.Archive.Bucket, cfg.Archive.Prefix)
		if err := app.Archiver.EnsureBucket(ctx); err != nil {
			app.Close()
			return nil, err
		}
	}

	if cfg.Notify.Mode == "inline" {
		app.Subscribe(app.Bus)
	}
	return app, nil
}

// Subscribe attaches the dispatcher and, when enabled, the archiver to bus.
func (a *App) Subscribe(bus *notify.Bus) {
	bus.Subscribe(a.Dispatcher)
	if a.Archiver != nil {
		bus.Subscribe(a.Archiver)
	}
}

func (a *App) newLocker() (ports.Locker, error) {
	switch a.Config.Lock.Backend {
	case "", "memory":
		return locking.NewKeyedMutex(), nil
	case "redis":
		client := locking.NewRedisClient(a.Config.Lock.RedisAddr, a.Config.Lock.RedisPassword, a.Config.Lock.RedisDB)
		a.closers = append(a.closers, func() { _ = client.Close() })
		return locking.NewRedisLocker(client, locking.RedisLockerConfig{
			TTL:         a.Config.Lock.TTL,
			WaitTimeout: a.Config.Lock.WaitTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("server: unknown lock backend %q", a.Config.Lock.Backend)
	}
}

// Handler builds the HTTP surface on top of the app.
func (a *App) Handler() (http.Handler, error) {
	v, err := NewTokenVerifier(a.Config.Auth.JWTSecret, a.Config.Auth.Issuer)
	if err != nil {
		return nil, err
	}
	az, err := loadAuthorizer(a.Config.Authz)
	if err != nil {
		return nil, err
	}
	return NewHandlerWithOptions(HandlerOptions{
		AllowlistPath: a.Config.Server.AllowlistPath,
		Service:       a.Service,
		Inviter:       a.Dispatcher,
		Verifier:      v,
		Authorizer:    az,
		RateLimit:     a.Config.RateLimit,
		Ready:         a.ready,
	})
}

func (a *App) ready(ctx context.Context) error {
	if a.Pool == nil {
		return nil
	}
	return a.Pool.Ping(ctx)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// NewDispatcher builds the notification dispatcher from the notify config:
// CEL routing rules plus one webhook sender per configured channel. Channels
// without an endpoint fall back to the log sender.
func NewDispatcher(cfg config.NotifyConfig, directory ports.ContractDirectory, workflows notify.WorkflowReader) (*notify.Dispatcher, error) {
	rules := cfg.Rules
	if len(rules) == 0 {
		loaded, err := notify.LoadRules(cfg.RulesPath)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	router, err := notify.NewRouter(rules)
	if err != nil {
		return nil, err
	}

	senders := make(map[string]notify.Sender, len(cfg.Channels))
	for name, ch := range cfg.Channels {
		if ch.Endpoint == "" {
			continue
		}
		senders[name] = notify.NewWebhookSender(ch.Endpoint, ch.Token, ch.Timeout)
	}
	return notify.NewDispatcher(notify.NewPlanner(directory, workflows), router, senders, notify.LogSender{}), nil
}

// ListenAndServe runs srv until ctx is cancelled, then drains in-flight
// requests for up to 10 seconds.
func ListenAndServe(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
