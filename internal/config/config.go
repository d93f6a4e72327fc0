package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is parsed by kong from flags and GYMGATE_* environment variables.
type Config struct {
	HTTPAddr string `help:"HTTP listen address" default:":8080" env:"GYMGATE_HTTP_ADDR"`
	GRPCAddr string `help:"gRPC health listen address, empty disables it" default:":9090" env:"GYMGATE_GRPC_ADDR"`
	Env      string `help:"runtime environment" default:"dev" env:"GYMGATE_ENV" enum:"dev,prod"`

	// Store
	StoreType    string `help:"attendance store (memory, sqlite, snapshot)" default:"sqlite" env:"GYMGATE_STORE_TYPE" enum:"memory,sqlite,snapshot"`
	DBPath       string `help:"SQLite database path" default:"./data/gymgate.db" env:"GYMGATE_DB_PATH"`
	SnapshotPath string `help:"snapshot document path" default:"./data/gymgate.json" env:"GYMGATE_SNAPSHOT_PATH"`

	// Gate
	Timezone     string `help:"IANA time zone of the gym" default:"America/Santiago" env:"GYMGATE_TIMEZONE"`
	TokenSecret  string `help:"secret mixed into rotating gate tokens" env:"GYMGATE_TOKEN_SECRET"`
	TokenPrefix  string `help:"prefix shown on gate tokens" default:"ASG" env:"GYMGATE_TOKEN_PREFIX"`
	TicketKey    string `help:"HMAC key for flow tickets" env:"GYMGATE_TICKET_KEY"`
	AccountsFile string `help:"YAML accounts file; built-in demo accounts when empty" env:"GYMGATE_ACCOUNTS_FILE" type:"path"`
	GateBaseURL  string `help:"public base URL of the gate page, used in QR links" env:"GYMGATE_GATE_BASE_URL"`

	// End-of-day sweep
	SweepEnabled  bool          `help:"close open sessions after closing time" default:"true" env:"GYMGATE_SWEEP_ENABLED" negatable:""`
	SweepInterval time.Duration `help:"how often the sweeper checks the clock" default:"5m" env:"GYMGATE_SWEEP_INTERVAL"`
}

func (c Config) Dev() bool { return c.Env == "dev" }

// devSecret is only accepted when Env is dev.
const devSecret = "gymgate-dev-secret"

// Validate fills dev defaults and rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.TokenSecret == "" || c.TicketKey == "" {
		if !c.Dev() {
			return errors.New("token secret and ticket key are required outside dev")
		}
		if c.TokenSecret == "" {
			c.TokenSecret = devSecret
		}
		if c.TicketKey == "" {
			c.TicketKey = devSecret + "-tickets"
		}
	}
	if c.TokenSecret == c.TicketKey {
		return errors.New("token secret and ticket key must differ")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep interval must not be negative: %s", c.SweepInterval)
	}
	c.GateBaseURL = strings.TrimRight(c.GateBaseURL, "/")
	return nil
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
