package config

import (
	"os"
	"strings"
	"time"

	"campus-market/internal/database"
	"campus-market/internal/service"
	"campus-market/internal/worker"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const prefix = "market"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Store       string   `envconfig:"STORE" default:"memory"`
	HTTPAddr    string   `envconfig:"HTTP_ADDR" default:":8080"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string   `envconfig:"LOG_FORMAT" default:"text"`

	DB database.Config `envconfig:"DB"`

	OrderTTL            time.Duration `envconfig:"ORDER_TTL" default:"24h"`
	OrderCreateInterval time.Duration `envconfig:"ORDER_CREATE_INTERVAL" default:"2500ms"`
	OrderStatusInterval time.Duration `envconfig:"ORDER_STATUS_INTERVAL" default:"1s"`
	OrderStatusBurst    int           `envconfig:"ORDER_STATUS_BURST" default:"5"`
	ReviewInterval      time.Duration `envconfig:"REVIEW_INTERVAL" default:"2s"`
	TaskPublishInterval time.Duration `envconfig:"TASK_PUBLISH_INTERVAL" default:"2500ms"`
	TaskStatusInterval  time.Duration `envconfig:"TASK_STATUS_INTERVAL" default:"900ms"`
	TaskStatusBurst     int           `envconfig:"TASK_STATUS_BURST" default:"6"`
	StatusBurstWindow   time.Duration `envconfig:"STATUS_BURST_WINDOW" default:"10s"`
	EffectBuffer        int           `envconfig:"EFFECT_BUFFER" default:"256"`
	EffectWorkers       int           `envconfig:"EFFECT_WORKERS" default:"4"`
	EffectDedupCap      int           `envconfig:"EFFECT_DEDUP_CAP" default:"500"`
	ShutdownGracePeriod time.Duration `envconfig:"SHUTDOWN_GRACE" default:"10s"`
}

// Load reads the optional .env files, then MARKET_* variables.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, errors.Wrapf(err, "load %s", f)
		}
	}

	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "read environment")
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		return errors.Errorf("MARKET_STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store)
	}
	if c.OrderTTL <= 0 {
		return errors.New("MARKET_ORDER_TTL must be positive")
	}
	return nil
}

func (c Config) OrderPolicy() service.OrderPolicy {
	return service.OrderPolicy{
		TTL:               c.OrderTTL,
		CreateInterval:    c.OrderCreateInterval,
		StatusInterval:    c.OrderStatusInterval,
		StatusBurstWindow: c.StatusBurstWindow,
		StatusBurstMax:    c.OrderStatusBurst,
		ReviewInterval:    c.ReviewInterval,
	}
}

func (c Config) TaskPolicy() service.TaskPolicy {
	return service.TaskPolicy{
		PublishInterval:   c.TaskPublishInterval,
		StatusInterval:    c.TaskStatusInterval,
		StatusBurstWindow: c.StatusBurstWindow,
		StatusBurstMax:    c.TaskStatusBurst,
	}
}

func (c Config) EffectOptions() worker.Options {
	return worker.Options{
		Buffer:   c.EffectBuffer,
		Workers:  c.EffectWorkers,
		DedupCap: c.EffectDedupCap,
	}
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func (c Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
