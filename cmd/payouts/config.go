package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/payouts/internal/logger"
	"github.com/nkiryanov/payouts/internal/service/guard"
)

const (
	defaultListenAddr       = "localhost:8000"
	defaultLoggingLevel     = logger.LevelInfo
	defaultEnvironment      = logger.EnvProd
	defaultOperationTimeout = 5 * time.Second
	defaultNotifyWorkers    = 4
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the payouts service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Some internal parts (like signing JWT tokens) uses symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string

	// Redis the notifications are enqueued to
	// Notifications are only logged if not set
	RedisAddr string

	// Upper bound of one withdrawal operation including retries
	OperationTimeout time.Duration

	// Cron schedule of the guard counters cleanup
	GuardSweepSchedule string

	// Workers delivering notifications in background
	NotifyWorkers int

	// Admin account created on start if both set
	AdminUsername string
	AdminPassword string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:           defaultLoggingLevel,
		ListenAddr:         defaultListenAddr,
		Environment:        defaultEnvironment,
		OperationTimeout:   defaultOperationTimeout,
		GuardSweepSchedule: guard.DefaultSweepSchedule,
		NotifyWorkers:      defaultNotifyWorkers,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":          setString(&c.ListenAddr),
		"DATABASE_URI":         setString(&c.DatabaseDSN),
		"SECRET_KEY":           setString(&c.SecretKey),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
		"REDIS_ADDRESS":        setString(&c.RedisAddr),
		"OPERATION_TIMEOUT":    setDuration(&c.OperationTimeout),
		"GUARD_SWEEP_SCHEDULE": setString(&c.GuardSweepSchedule),
		"NOTIFY_WORKERS":       setInt(&c.NotifyWorkers),
		"ADMIN_USERNAME":       setString(&c.AdminUsername),
		"ADMIN_PASSWORD":       setString(&c.AdminPassword),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("payouts", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address notifications are enqueued to")
	fs.DurationVar(&c.OperationTimeout, "operation-timeout", c.OperationTimeout, "Withdrawal operation timeout")
	fs.StringVar(&c.GuardSweepSchedule, "guard-sweep", c.GuardSweepSchedule, "Guard cleanup cron schedule")
	fs.IntVar(&c.NotifyWorkers, "notify-workers", c.NotifyWorkers, "Notification delivery workers")
	fs.StringVar(&c.AdminUsername, "admin-username", c.AdminUsername, "Admin account created on start")
	fs.StringVar(&c.AdminPassword, "admin-password", c.AdminPassword, "Password of admin account created on start")

	return fs.Parse(args)
}

// Validate reports options the service can not start without
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.OperationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("operation timeout must be positive, got %s", c.OperationTimeout))
	}
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("admin username and password must be set together"))
	}

	return errors.Join(errs...)
}
