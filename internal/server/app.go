// Package server assembles the identity server: it opens PostgreSQL and
// Redis, runs migrations, builds the services and serves the HTTP API and
// the gRPC health endpoint until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/cryptox"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/auth"
	"github.com/dmitrijs2005/idkeeper/internal/server/config"
	"github.com/dmitrijs2005/idkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/idkeeper/internal/server/mailer"
	"github.com/dmitrijs2005/idkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/idkeeper/internal/server/services"
	"github.com/dmitrijs2005/idkeeper/internal/server/totp"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/idkeeper/internal/server/grpc"
)

const (
	shutdownTimeout = 10 * time.Second
	healthInterval  = 5 * time.Second
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	redis  *redis.Client
	mailer *mailer.Dispatcher
	http   *http.Server
	health *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	dispatcher := mailer.NewDispatcher(mailer.NewStreamProducer(rdb, c.EmailStream), c.EmailBufferSize,
		logger.With("module", "mailer"))

	issuer := auth.NewIssuer(auth.OptionsFromConfig(c))
	attempts := ratelimit.NewAttemptLimiter(rdb, c.MFAAttemptLimit, c.MFAAttemptWindow)

	identity := services.NewIdentityService(db, m, cryptox.NewBcryptHasher(c.BcryptCost), dispatcher, c, logger)
	otp := totp.New(totp.Config{
		Issuer:    c.TOTPIssuer,
		Algorithm: c.TOTPAlgorithm,
		Digits:    c.TOTPDigits,
		Period:    c.TOTPPeriod,
		Skew:      1,
	})
	mfa := services.NewMFAService(db, m, otp, dispatcher, attempts, c, logger)
	ledger := services.NewLedger(db, m)
	broker := services.NewBroker(db, m, c, logger)
	grants := services.NewGrantDispatcher(db, m, identity, mfa, ledger, broker, issuer,
		ratelimit.NewOnceMarker(rdb, "mfa:jti:"), logger)

	router := httpapi.NewRouter(httpapi.Deps{
		Identity: identity,
		MFA:      mfa,
		Grants:   grants,
		Sessions: services.NewSessionService(db, ledger, mfa, logger),
		OAuth2:   broker,
		Scopes:   services.NewScopeGate(db, m),
		Limiter:  ratelimit.NewLimiter(rdb, "ratelimit:", c.RateLimitRequests, c.RateLimitWindow),
		Issuer:   issuer,
	}, c, logger)

	return &App{
		config: c,
		logger: logger,
		db:     db,
		redis:  rdb,
		mailer: dispatcher,
		http: &http.Server{
			Addr:              c.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		health: gs.NewGRPCServer(c.GRPCAddr, logger, healthInterval,
			gs.DatabaseDependency(db), gs.RedisDependency(rdb)),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.http.Shutdown(sctx); err != nil {
			app.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.http.Addr)
	if err := app.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.health.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a signal arrives or a server fails, then drains the
// servers and the mail queue and closes the connections.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.mailer.Close()
	app.logger.Info(ctx, "mail queue drained", "dropped", app.mailer.Dropped(), "failed", app.mailer.Failed())

	if err := app.redis.Close(); err != nil {
		app.logger.Error(ctx, "redis close", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
