package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/payouts/internal/logger"
)

const (
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProd
	defaultRedisAddr    = "localhost:6379"
	defaultConcurrency  = 10
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment
	Environment string

	// Redis notification tasks are consumed from
	RedisAddr string

	// Tasks processed concurrently
	Concurrency int
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		Environment: defaultEnvironment,
		RedisAddr:   defaultRedisAddr,
		Concurrency: defaultConcurrency,
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
	for key, o := range map[string]*string{
		"LOG_LEVEL":     &c.LogLevel,
		"ENVIRONMENT":   &c.Environment,
		"REDIS_ADDRESS": &c.RedisAddr,
	} {
		if value := getenv(key); value != "" {
			*o = value
		}
	}

	if value := getenv("NOTIFIER_CONCURRENCY"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid NOTIFIER_CONCURRENCY: %w", err)
		}
		c.Concurrency = n
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("notifier", pflag.ContinueOnError)

	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address notifications are consumed from")
	fs.IntVarP(&c.Concurrency, "concurrency", "c", c.Concurrency, "Tasks processed concurrently")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	if c.RedisAddr == "" {
		return errors.New("redis address is required")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	return nil
}
