package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/payouts/internal/db"
	"github.com/nkiryanov/payouts/internal/handlers"
	"github.com/nkiryanov/payouts/internal/logger"
	"github.com/nkiryanov/payouts/internal/repository/postgres"
	"github.com/nkiryanov/payouts/internal/service/auth"
	"github.com/nkiryanov/payouts/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/payouts/internal/service/guard"
	"github.com/nkiryanov/payouts/internal/service/notify"
	"github.com/nkiryanov/payouts/internal/service/user"
	"github.com/nkiryanov/payouts/internal/service/validate"
	"github.com/nkiryanov/payouts/internal/service/withdrawal"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger        logger.Logger
	guard         *guard.Guard
	sweepSchedule string
	dispatcher    *notify.Dispatcher

	// Called in reverse order after the server and background workers stopped
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (_ *ServerApp, err error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{
		ListenAddr:    c.ListenAddr,
		logger:        logger,
		sweepSchedule: c.GuardSweepSchedule,
	}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, pool.Close)

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Notifications go to the redis queue if configured, otherwise they are logged only
	var sender notify.Sender = notify.LogSender{Logger: logger}
	if c.RedisAddr != "" {
		asynqSender := notify.NewAsynqSender(c.RedisAddr)
		app.closers = append(app.closers, func() {
			if err := asynqSender.Close(); err != nil {
				logger.Error("Error while closing notification queue client", "error", err)
			}
		})
		sender = asynqSender
	}
	app.dispatcher = notify.NewDispatcher(sender, logger, notify.WithWorkers(c.NotifyWorkers))

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	hasher := auth.BcryptHasher{}
	authService, err := auth.NewService(auth.Config{Hasher: hasher}, tokenManager, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}
	userService := user.NewService(hasher, storage)

	if c.AdminUsername != "" {
		admin, err := userService.EnsureAdmin(ctx, c.AdminUsername, c.AdminPassword)
		if err != nil {
			return nil, fmt.Errorf("error while creating admin account. Err: %w", err)
		}
		logger.Info("Admin account ready", "username", admin.Username, "user_id", admin.ID)
	}

	app.guard = guard.New(guard.Config{}, logger)
	withdrawalService := withdrawal.NewService(
		withdrawal.Config{OperationTimeout: c.OperationTimeout},
		storage,
		validate.New(validate.DefaultPolicy()),
		app.guard,
		app.dispatcher,
		logger,
	)

	app.Handler = handlers.NewRouter(authService, withdrawalService, userService, logger)

	return app, nil
}

// Run starts http server and background workers and closes them gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	bgCtx, bgCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer bgCancel()

	sweeperStopped, err := s.guard.StartSweeper(bgCtx, s.sweepSchedule)
	if err != nil {
		return err
	}
	dispatcherStopped := s.dispatcher.Run(bgCtx)

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err = httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	// Requests are done, so nothing publishes anymore: let workers flush the queue
	bgCancel()
	<-dispatcherStopped
	<-sweeperStopped

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *ServerApp) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
