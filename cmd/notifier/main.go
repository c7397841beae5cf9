// Notifier consumes withdrawal notification tasks from the redis queue and delivers them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/nkiryanov/payouts/internal/logger"
	"github.com/nkiryanov/payouts/internal/service/notify"
)

// asynqLogger adapts application logger to the one asynq server expects
type asynqLogger struct {
	logger logger.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }

func (l asynqLogger) Fatal(args ...any) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}

func newServer(c *Config, l logger.Logger) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{Addr: c.RedisAddr},
		asynq.Config{
			Concurrency: c.Concurrency,
			Queues:      map[string]int{notify.Queue: 1},
			Logger:      asynqLogger{logger: l},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				l.Error("Notification delivery failed", "type", task.Type(), "retried", retried, "error", err)
			}),
		},
	)
}

func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string) error {
	c := NewConfig()

	if err := c.LoadDotEnv(getwd); err != nil {
		return fmt.Errorf("error while loading .env file. Err: %w", err)
	}
	if err := c.LoadEnv(getenv); err != nil {
		return err
	}
	if err := c.ParseFlags(args); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config. Err: %w", err)
	}

	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return fmt.Errorf("error while initializing logger: %w", err)
	}

	worker := &notify.Worker{Deliver: notify.LogSender{Logger: l}}
	srv := newServer(c, l)

	if err := srv.Start(worker.ServeMux()); err != nil {
		return fmt.Errorf("error while starting notifier. Err: %w", err)
	}
	l.Info("Notifier started", "redis", c.RedisAddr, "concurrency", c.Concurrency)

	<-ctx.Done()
	srv.Shutdown()
	l.Info("Notifier stopped")

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		slog.Error("Notifier error", "error", err.Error())
		os.Exit(1)
	}
}
