/*
Package config loads server configuration from the environment.

PURPOSE:
  One place for every tunable of cmd/server. Values come from the process
  environment (after cmd/server has loaded a local .env), with defaults for
  everything so `./server` runs out of the box.

KEYS:
  PORT                  HTTP port (default 8080)
  DB_PATH               SQLite path, ":memory:" allowed (default obligations.db)
  LOG_LEVEL             debug, info, warn, error (default info)
  LOG_FORMAT            text or json (default text)
  CORS_ORIGINS          comma-separated allowed origins (default *)
  AUTOPAY_ENABLED       run the auto-pay scheduler (default false)
  AUTOPAY_INTERVAL      scheduler tick (default 1h)
  GENERATE_CONCURRENCY  definitions generated in parallel (default 4)
  AMQP_URL              finance ledger broker; empty disables notifications
  AMQP_EXCHANGE         topic exchange (default obligations)
  AMQP_ROUTING_KEY      routing key (default payments.recorded)

SEE ALSO:
  - cmd/server/main.go: Flags override PORT and DB_PATH
*/
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// HTTP Server
	Port        int
	CORSOrigins []string

	// Database
	DBPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Auto-pay
	AutoPayEnabled      bool
	AutoPayInterval     time.Duration
	GenerateConcurrency int

	// AMQP
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string
}

var defaults = map[string]any{
	"PORT":                 8080,
	"DB_PATH":              "obligations.db",
	"LOG_LEVEL":            "info",
	"LOG_FORMAT":           "text",
	"CORS_ORIGINS":         "*",
	"AUTOPAY_ENABLED":      false,
	"AUTOPAY_INTERVAL":     time.Hour,
	"GENERATE_CONCURRENCY": 4,
	"AMQP_URL":             "",
	"AMQP_EXCHANGE":        "obligations",
	"AMQP_ROUTING_KEY":     "payments.recorded",
}

// Load reads the configuration from the environment.
func Load() *Config {
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Port:                v.GetInt("PORT"),
		CORSOrigins:         splitList(v.GetString("CORS_ORIGINS")),
		DBPath:              v.GetString("DB_PATH"),
		LogLevel:            strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:           strings.ToLower(v.GetString("LOG_FORMAT")),
		AutoPayEnabled:      v.GetBool("AUTOPAY_ENABLED"),
		AutoPayInterval:     v.GetDuration("AUTOPAY_INTERVAL"),
		GenerateConcurrency: v.GetInt("GENERATE_CONCURRENCY"),
		AMQPURL:             v.GetString("AMQP_URL"),
		AMQPExchange:        v.GetString("AMQP_EXCHANGE"),
		AMQPRoutingKey:      v.GetString("AMQP_ROUTING_KEY"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// NotificationsEnabled reports whether payments are published to AMQP.
func (c *Config) NotificationsEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, "database path cannot be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if c.AutoPayEnabled && c.AutoPayInterval < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid auto-pay interval %v: must be at least 1 minute", c.AutoPayInterval))
	}
	if c.GenerateConcurrency < 1 || c.GenerateConcurrency > 64 {
		errs = append(errs, fmt.Sprintf("invalid generate concurrency %d: must be between 1 and 64", c.GenerateConcurrency))
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errs = append(errs, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
