package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name        string `envconfig:"APP_NAME" default:"trip-collab-service"`
		Port        int    `envconfig:"PORT" default:"8086"`
		Environment string `envconfig:"ENVIRONMENT" default:"development"`
		Debug       bool   `envconfig:"DEBUG" default:"false"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"trip_user"`
		Password string `envconfig:"DB_PASSWORD" default:"password"`
		Name     string `envconfig:"DB_NAME" default:"trip_collab"`
	}

	Auth struct {
		JWTSecret string `envconfig:"JWT_SECRET" default:"dev-secret"`
	}

	AMQP struct {
		URL           string `envconfig:"AMQP_URL"`
		Exchange      string `envconfig:"AMQP_EXCHANGE" default:"trip_events"`
		AuditRouting  string `envconfig:"AMQP_AUDIT_ROUTING_KEY" default:"audit.trip-collab"`
		DomainRouting string `envconfig:"AMQP_DOMAIN_ROUTING_KEY" default:"trip_events.domain"`
	}

	Otel struct {
		Endpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	}

	Stream struct {
		HeartbeatInterval time.Duration `envconfig:"STREAM_HEARTBEAT_INTERVAL" default:"25s"`
		IdleTimeout       time.Duration `envconfig:"STREAM_IDLE_TIMEOUT" default:"75s"`
		SendBuffer        int           `envconfig:"STREAM_SEND_BUFFER" default:"32"`
		BackoffBase       time.Duration `envconfig:"STREAM_BACKOFF_BASE" default:"500ms"`
		BackoffAttempts   int           `envconfig:"STREAM_BACKOFF_ATTEMPTS" default:"6"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}
