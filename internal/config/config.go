// Package config содержит логику чтения конфигурации сервера и киоска Greenfill Hub.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress    = "localhost:8080"
	defaultServicePrefix = "/api/greenfill"
	defaultTokenTTL      = time.Hour
)

// Config содержит параметры конфигурации HTTP-сервера.
type Config struct {
	RunAddress    string        `env:"RUN_ADDRESS"`
	DatabaseURI   string        `env:"DATABASE_URI"`
	RedisURL      string        `env:"REDIS_URL"`
	JWTSecret     string        `env:"JWT_SECRET"`
	AnonKey       string        `env:"ANON_KEY"`
	ServicePrefix string        `env:"SERVICE_PREFIX"`
	TokenTTL      time.Duration `env:"TOKEN_TTL"`
}

// Parse считывает конфигурацию сервера из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisURL, "r", "", "redis URL for the token revocation list")
	flag.StringVar(&cfg.JWTSecret, "s", "", "secret used to sign access tokens")
	flag.StringVar(&cfg.AnonKey, "k", "", "anonymous key required by signup and token endpoints")
	flag.StringVar(&cfg.ServicePrefix, "p", defaultServicePrefix, "path prefix of the service routes")
	flag.DurationVar(&cfg.TokenTTL, "t", defaultTokenTTL, "access token lifetime")

	flag.Parse()

	if fromEnv.RunAddress != "" {
		cfg.RunAddress = fromEnv.RunAddress
	}
	if fromEnv.DatabaseURI != "" {
		cfg.DatabaseURI = fromEnv.DatabaseURI
	}
	if fromEnv.RedisURL != "" {
		cfg.RedisURL = fromEnv.RedisURL
	}
	if fromEnv.JWTSecret != "" {
		cfg.JWTSecret = fromEnv.JWTSecret
	}
	if fromEnv.AnonKey != "" {
		cfg.AnonKey = fromEnv.AnonKey
	}
	if fromEnv.ServicePrefix != "" {
		cfg.ServicePrefix = fromEnv.ServicePrefix
	}
	if fromEnv.TokenTTL != 0 {
		cfg.TokenTTL = fromEnv.TokenTTL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}

	return cfg, nil
}

// KioskConfig содержит параметры терминального клиента киоска.
type KioskConfig struct {
	ServerURL        string        `env:"SERVER_URL"`
	AnonKey          string        `env:"ANON_KEY"`
	PaymentDelay     time.Duration `env:"PAYMENT_DELAY"`
	DispenseDuration time.Duration `env:"DISPENSE_DURATION"`
	DispenseTick     time.Duration `env:"DISPENSE_TICK"`
}

// ParseKiosk считывает конфигурацию киоска. Приоритет тот же, что и у сервера.
func ParseKiosk() (*KioskConfig, error) {
	cfg := &KioskConfig{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.ServerURL, "u", "http://"+defaultRunAddress+defaultServicePrefix, "base URL of the greenfill service")
	flag.StringVar(&cfg.AnonKey, "k", "", "anonymous key for signup and sign-in")
	flag.DurationVar(&cfg.PaymentDelay, "payment-delay", 2*time.Second, "simulated payment processing time")
	flag.DurationVar(&cfg.DispenseDuration, "dispense-duration", 5*time.Second, "simulated dispensing time")
	flag.DurationVar(&cfg.DispenseTick, "dispense-tick", 50*time.Millisecond, "dispensing progress tick")

	flag.Parse()

	if fromEnv.ServerURL != "" {
		cfg.ServerURL = fromEnv.ServerURL
	}
	if fromEnv.AnonKey != "" {
		cfg.AnonKey = fromEnv.AnonKey
	}
	if fromEnv.PaymentDelay != 0 {
		cfg.PaymentDelay = fromEnv.PaymentDelay
	}
	if fromEnv.DispenseDuration != 0 {
		cfg.DispenseDuration = fromEnv.DispenseDuration
	}
	if fromEnv.DispenseTick != 0 {
		cfg.DispenseTick = fromEnv.DispenseTick
	}

	return cfg, nil
}
