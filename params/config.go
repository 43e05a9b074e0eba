// Package params loads the relayer's runtime configuration, following the
// teacher's .env-then-environment-override convention.
package params

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Mode is the deployment mode the relayer runs under.
type Mode string

const (
	Dev  Mode = "dev"
	Prod Mode = "prod"
)

// Config holds every recognized configuration option from spec.md §6.
type Config struct {
	ChainID uint64

	HTTPRPCURL string
	WSRPCURL   string

	InitiatorPrivateKey    string
	MatchExecutorAddress   string
	FlashbotsAuthSignerKey string
	FlashbotsRelayURL      string
	RedisURL               string

	Mode          Mode
	EnableForking bool
	Debug         bool
}

// FatalConfigError reports a misconfiguration that must abort startup
// (spec.md §7's Fatal error kind).
type FatalConfigError struct {
	Reason string
}

func (e *FatalConfigError) Error() string {
	return fmt.Sprintf("fatal configuration error: %s", e.Reason)
}

// Default returns a Config with every option at its zero value except
// Mode, which defaults to dev.
func Default() Config {
	return Config{Mode: Dev}
}

// LoadFromEnv loads configuration from an optional .env file (envPath, or
// ".env" in the working directory when empty) and then applies
// environment-variable overrides, mirroring the teacher's
// params.LoadFromEnv priority (ENV > .env file > defaults).
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, &FatalConfigError{Reason: fmt.Sprintf("CHAIN_ID must be an integer: %v", err)}
		}
		cfg.ChainID = id
	}

	cfg.HTTPRPCURL = getEnv("HTTP_RPC_URL", cfg.HTTPRPCURL)
	cfg.WSRPCURL = getEnv("WS_RPC_URL", cfg.WSRPCURL)
	cfg.InitiatorPrivateKey = getEnv("INITIATOR_PRIVATE_KEY", cfg.InitiatorPrivateKey)
	cfg.MatchExecutorAddress = getEnv("MATCH_EXECUTOR_ADDRESS", cfg.MatchExecutorAddress)
	cfg.FlashbotsAuthSignerKey = getEnv("FLASHBOTS_AUTH_SIGNER_KEY", cfg.FlashbotsAuthSignerKey)
	cfg.FlashbotsRelayURL = getEnv("FLASHBOTS_RELAY_URL", cfg.FlashbotsRelayURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)

	if v := os.Getenv("MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("ENABLE_FORKING"); v != "" {
		cfg.EnableForking = v == "1"
	}
	if v := os.Getenv("DEBUG"); v != "" {
		cfg.Debug = v == "1"
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces spec.md §6's Fatal startup checks: chainId is
// required, and a forking deployment's http URL must resolve to loopback.
func (c Config) Validate() error {
	if c.ChainID == 0 {
		return &FatalConfigError{Reason: "chainId is required"}
	}
	if c.EnableForking {
		if err := requireLoopback(c.HTTPRPCURL); err != nil {
			return err
		}
	}
	return nil
}

func requireLoopback(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &FatalConfigError{Reason: fmt.Sprintf("invalid http rpc url: %v", err)}
	}
	host := u.Hostname()
	if host == "" {
		return &FatalConfigError{Reason: "http rpc url under forking must specify a host"}
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return &FatalConfigError{Reason: fmt.Sprintf("forking requires a loopback http rpc url, got %q", rawURL)}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
