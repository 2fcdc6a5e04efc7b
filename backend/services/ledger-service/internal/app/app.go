package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	libredis "termledger/backend/libs/redis"
	"termledger/backend/services/ledger-service/internal/config"
	"termledger/backend/services/ledger-service/internal/db"
	"termledger/backend/services/ledger-service/internal/db/migrate"
	httpserver "termledger/backend/services/ledger-service/internal/http"
	"termledger/backend/services/ledger-service/internal/http/handlers"
	"termledger/backend/services/ledger-service/internal/http/middleware"
	"termledger/backend/services/ledger-service/internal/memstore"
	"termledger/backend/services/ledger-service/internal/notify"
	"termledger/backend/services/ledger-service/internal/repository"
	"termledger/backend/services/ledger-service/internal/service"
)

const wsWriteTimeout = 10 * time.Second

// App wires ledger-service dependencies.
type App struct {
	server     *httpserver.Server
	dispatcher *notify.Dispatcher
	hub        *notify.Hub
	subscriber *notify.RedisSubscriber
	sweeper    *service.Sweeper
	controller *service.Controller
	seed       []string

	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

type stores struct {
	terminals service.TerminalRegistry
	users     service.UserStore
	sessions  service.SessionStore
	starter   service.AtomicStarter
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger, seed: cfg.SeedTerminals()}

	st, err := a.openStores(cfg)
	if err != nil {
		return nil, err
	}

	a.hub = notify.NewHub(cfg.PingInterval(), wsWriteTimeout, logger)
	var publisher notify.Publisher = a.hub
	if cfg.UseRedis() {
		client, err := libredis.NewRedisClient(libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Warn("redis unreachable, change events stay in process",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err),
			)
		} else {
			a.redisClient = client
			publisher = notify.NewRedisPublisher(client, cfg.RedisChannel(), logger)
			a.subscriber = notify.NewRedisSubscriber(client, cfg.RedisChannel(), a.hub, logger)
		}
	}
	a.dispatcher = notify.NewDispatcher(publisher, cfg.BusBufferSize(), logger)

	ledger := service.NewLedger(st.users, st.terminals, a.dispatcher, service.SystemClock, logger)
	a.controller = service.NewController(st.terminals, st.sessions, ledger, a.dispatcher, service.SystemClock, logger,
		service.WithAtomicStart(st.starter),
	)
	a.sweeper = service.NewSweeper(st.terminals, a.controller, cfg.SweepInterval(), service.SystemClock, logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Viewer:        handlers.NewViewerHandlers(a.controller, ledger, logger),
		Admin:         handlers.NewAdminHandlers(a.controller, ledger, logger),
		HealthHandler: handlers.NewHealthHandler(),
		ChangesStream: a.hub.ServeWS,
	}, middleware.AuthMiddleware(cfg.Auth.JWTSecret))

	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger,
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
	)
	return a, nil
}

func (a *App) openStores(cfg *config.Config) (stores, error) {
	if !cfg.UsePostgres() {
		a.logger.Info("no database configured, keeping ledger state in memory")
		terminals, users, sessions := memstore.NewTerminals(), memstore.NewUsers(), memstore.NewSessions()
		return stores{
			terminals: terminals,
			users:     users,
			sessions:  sessions,
			starter:   memstore.NewStarter(terminals, users, sessions),
		}, nil
	}

	if cfg.Database.Migrate {
		if err := migrate.Run(cfg.Database.DSN, migrate.Up); err != nil {
			return stores{}, err
		}
		a.logger.Info("database migrations applied")
	}

	sqlDB, err := db.NewPostgres(cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return stores{}, err
	}
	a.db = sqlDB
	return stores{
		terminals: repository.NewTerminalRepository(sqlDB),
		users:     repository.NewUserRepository(sqlDB),
		sessions:  repository.NewSessionRepository(sqlDB),
		starter:   repository.NewSessionStarter(sqlDB),
	}, nil
}

// Run provisions seed terminals, then serves HTTP alongside the sweeper and the change bus
// until ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if len(a.seed) > 0 {
		if err := a.controller.ProvisionTerminals(ctx, a.seed); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.dispatcher.Run(ctx) })
	g.Go(func() error { return a.hub.Run(ctx) })
	g.Go(func() error { return a.sweeper.Run(ctx) })
	if a.subscriber != nil {
		g.Go(func() error { return a.subscriber.Run(ctx) })
	}
	g.Go(func() error { return a.server.Run(ctx) })
	return g.Wait()
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
