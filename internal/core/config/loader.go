package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/infra/rpc/routing"
)

// Addresses used by the memory chain when none are configured. The caller is
// the first well-known development account.
const (
	DevJobsAddress    = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
	DevBankAddress    = "0xe7f1725e7734ce288f8367e1bb143e90bb3f0512"
	DevStorageAddress = "0x9fe46736679d2d9a65f0992f2272de9f3c7fa6e0"
	DevCaller         = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// envOverrides are applied after the file. Unset variables leave values alone.
type envOverrides struct {
	Port            int           `env:"DAPPWATCH_PORT"`
	LogLevel        string        `env:"DAPPWATCH_LOG_LEVEL"`
	ChainType       string        `env:"DAPPWATCH_CHAIN_TYPE"`
	RPCURLs         []string      `env:"DAPPWATCH_RPC_URLS" envSeparator:","`
	LogSource       string        `env:"DAPPWATCH_LOG_SOURCE"`
	DatabaseURL     string        `env:"DAPPWATCH_DATABASE_URL"`
	Caller          string        `env:"DAPPWATCH_CALLER"`
	JobsAddress     string        `env:"DAPPWATCH_JOBS_ADDRESS"`
	BankAddress     string        `env:"DAPPWATCH_BANK_ADDRESS"`
	StorageAddress  string        `env:"DAPPWATCH_STORAGE_ADDRESS"`
	RefreshInterval time.Duration `env:"DAPPWATCH_REFRESH_INTERVAL"`
}

// Load reads configuration from a YAML file, applies DAPPWATCH_* environment
// overrides and defaults, then validates. An empty path skips the file.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	ov.apply(&cfg)

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (ov envOverrides) apply(cfg *AppConfig) {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	if ov.Port != 0 {
		cfg.Server.Port = ov.Port
	}
	setString(&cfg.Logging.Level, ov.LogLevel)
	setString(&cfg.Chain.Type, ov.ChainType)
	setString(&cfg.Logs.Source, ov.LogSource)
	setString(&cfg.Database.URL, ov.DatabaseURL)
	setString(&cfg.Caller, ov.Caller)
	setString(&cfg.Contracts.Jobs, ov.JobsAddress)
	setString(&cfg.Contracts.Bank, ov.BankAddress)
	setString(&cfg.Contracts.Storage, ov.StorageAddress)
	if len(ov.RPCURLs) > 0 {
		cfg.Chain.Providers = cfg.Chain.Providers[:0]
		for i, url := range ov.RPCURLs {
			cfg.Chain.Providers = append(cfg.Chain.Providers, ProviderConfig{
				Name: fmt.Sprintf("env-%d", i),
				URL:  url,
			})
		}
	}
	if ov.RefreshInterval != 0 {
		cfg.RefreshInterval = ov.RefreshInterval
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Chain.Type == "" {
		cfg.Chain.Type = ChainMemory
	}
	if cfg.Chain.Timeout == 0 {
		cfg.Chain.Timeout = 30 * time.Second
	}
	if cfg.Chain.ReceiptPollInterval == 0 {
		cfg.Chain.ReceiptPollInterval = time.Second
	}
	if cfg.Chain.Retry.MaxAttempts == 0 {
		cfg.Chain.Retry = routing.DefaultRetryConfig
	}
	if cfg.Logs.Source == "" {
		cfg.Logs.Source = LogSourceChain
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 15 * time.Second
	}
	for i := range cfg.Chain.Providers {
		if cfg.Chain.Providers[i].Name == "" {
			cfg.Chain.Providers[i].Name = fmt.Sprintf("provider-%d", i)
		}
	}

	if cfg.Chain.Type == ChainMemory {
		c := &cfg.Contracts
		if c.Jobs == "" && c.Bank == "" && c.Storage == "" {
			c.Jobs, c.Bank, c.Storage = DevJobsAddress, DevBankAddress, DevStorageAddress
		}
		if cfg.Caller == "" {
			cfg.Caller = DevCaller
		}
	}
}

// Validate reports the first configuration problem found.
func (c *AppConfig) Validate() error {
	switch c.Chain.Type {
	case ChainEVM:
		if len(c.Chain.Providers) == 0 {
			return fmt.Errorf("%w: chain.providers is required for evm", ErrInvalidConfig)
		}
	case ChainMemory:
	default:
		return fmt.Errorf("%w: unknown chain.type %q", ErrInvalidConfig, c.Chain.Type)
	}

	switch c.Logs.Source {
	case LogSourceChain:
	case LogSourcePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("%w: database.url is required for postgres logs", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown logs.source %q", ErrInvalidConfig, c.Logs.Source)
	}

	for name, addr := range map[string]string{
		"contracts.jobs":    c.Contracts.Jobs,
		"contracts.bank":    c.Contracts.Bank,
		"contracts.storage": c.Contracts.Storage,
		"caller":            c.Caller,
	} {
		if addr != "" && !domain.NormalizeAddress(addr).IsKnown() {
			return fmt.Errorf("%w: %s is not an address: %q", ErrInvalidConfig, name, addr)
		}
	}

	if c.Chain.ToBlock != nil && *c.Chain.ToBlock < c.Chain.FromBlock {
		return fmt.Errorf("%w: chain.to_block is before chain.from_block", ErrInvalidConfig)
	}
	return nil
}
