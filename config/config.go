/*
config.go - Runtime configuration

PURPOSE:
  Loads server settings from the environment. A .env file in the working
  directory is read first when present; real environment variables win.

VARIABLES:
  PORT                         HTTP port (8080)
  DB_PATH                      SQLite path (tuition.db), ":memory:" allowed
  REDIS_URL                    Enables the Redis student lock when set
  TIMEZONE                     Business timezone (America/Guayaquil)
  LOG_LEVEL                    debug | info | warn | error (info)
  APP_ENV                      "development" switches to console logs
  ALLOWED_ORIGINS              Comma separated CORS origins
  SMTP_HOST, SMTP_PORT (587), SMTP_USER, SMTP_PASS
  MAIL_FROM, BUSINESS_NAME
  ENABLE_EMAIL_NOTIFICATIONS   (true)
  ENABLE_AUTOMATIC_REMINDERS   (true)
  REMINDER_RRULE               (FREQ=DAILY;BYHOUR=9;BYMINUTE=0;BYSECOND=0)

SEE ALSO:
  - cmd/server/main.go: flags that override PORT and DB_PATH
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/tuition-engine/notify"
)

const DefaultReminderRule = "FREQ=DAILY;BYHOUR=9;BYMINUTE=0;BYSECOND=0"

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

type Config struct {
	Port           int
	DBPath         string
	RedisURL       string
	Timezone       string
	LogLevel       string
	Env            string
	AllowedOrigins []string

	SMTP notify.SMTPConfig

	EmailEnabled     bool
	RemindersEnabled bool
	ReminderRule     string
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	port, err := strconv.Atoi(get("PORT", "8080"))
	if err != nil || port <= 0 {
		return nil, fmt.Errorf("invalid PORT %q", getenv("PORT"))
	}
	smtpPort, err := strconv.Atoi(get("SMTP_PORT", "587"))
	if err != nil || smtpPort <= 0 {
		return nil, fmt.Errorf("invalid SMTP_PORT %q", getenv("SMTP_PORT"))
	}
	emailEnabled, err := parseBool(get("ENABLE_EMAIL_NOTIFICATIONS", "true"))
	if err != nil {
		return nil, fmt.Errorf("ENABLE_EMAIL_NOTIFICATIONS: %w", err)
	}
	remindersEnabled, err := parseBool(get("ENABLE_AUTOMATIC_REMINDERS", "true"))
	if err != nil {
		return nil, fmt.Errorf("ENABLE_AUTOMATIC_REMINDERS: %w", err)
	}

	cfg := &Config{
		Port:           port,
		DBPath:         get("DB_PATH", "tuition.db"),
		RedisURL:       get("REDIS_URL", ""),
		Timezone:       get("TIMEZONE", "America/Guayaquil"),
		LogLevel:       strings.ToLower(get("LOG_LEVEL", "info")),
		Env:            strings.ToLower(get("APP_ENV", "production")),
		AllowedOrigins: splitList(get("ALLOWED_ORIGINS", "")),
		SMTP: notify.SMTPConfig{
			Host:         get("SMTP_HOST", ""),
			Port:         smtpPort,
			Username:     get("SMTP_USER", ""),
			Password:     get("SMTP_PASS", ""),
			From:         get("MAIL_FROM", get("SMTP_USER", "")),
			BusinessName: get("BUSINESS_NAME", "Tuition Office"),
		},
		EmailEnabled:     emailEnabled,
		RemindersEnabled: remindersEnabled,
		ReminderRule:     get("REMINDER_RRULE", DefaultReminderRule),
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = defaultOrigins
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Development reports whether APP_ENV selects development mode.
func (c *Config) Development() bool {
	return c.Env == "development" || c.Env == "dev" || c.Env == "local"
}

// NewLogger builds the process logger: JSON in production, console in
// development.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}

	zc := zap.NewProductionConfig()
	if c.Development() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
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
