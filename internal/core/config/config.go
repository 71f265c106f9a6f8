package config

import (
	"time"

	"github.com/vietddude/dappwatch/internal/core/contracts"
	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/infra/rpc/routing"
	"github.com/vietddude/dappwatch/internal/infra/storage/postgres"
)

// Chain backends.
const (
	ChainEVM    = "evm"
	ChainMemory = "memory"
)

// Log sources.
const (
	LogSourceChain    = "chain"
	LogSourcePostgres = "postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server          ServerConfig    `yaml:"server"`
	Logging         LoggingConfig   `yaml:"logging"`
	Chain           ChainConfig     `yaml:"chain"`
	Logs            LogsConfig      `yaml:"logs"`
	Database        postgres.Config `yaml:"database"`
	Contracts       ContractsConfig `yaml:"contracts"`
	Caller          string          `yaml:"caller"`
	RefreshInterval time.Duration   `yaml:"refresh_interval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig holds settings for the chain backend.
type ChainConfig struct {
	Type                string              `yaml:"type"` // evm, memory
	Providers           []ProviderConfig    `yaml:"providers"`
	Timeout             time.Duration       `yaml:"timeout"`
	ReceiptPollInterval time.Duration       `yaml:"receipt_poll_interval"`
	FromBlock           uint64              `yaml:"from_block"`
	ToBlock             *uint64             `yaml:"to_block"` // nil = latest
	Retry               routing.RetryConfig `yaml:"retry"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// LogsConfig selects where historical logs are read from.
type LogsConfig struct {
	Source string `yaml:"source"` // chain, postgres
}

// ContractsConfig holds deployed contract addresses. Empty means not deployed.
type ContractsConfig struct {
	Jobs    string `yaml:"jobs"`
	Bank    string `yaml:"bank"`
	Storage string `yaml:"storage"`
}

// Addresses converts the configured addresses.
func (c ContractsConfig) Addresses() contracts.Addresses {
	return contracts.Addresses{
		Jobs:    domain.NormalizeAddress(c.Jobs),
		Bank:    domain.NormalizeAddress(c.Bank),
		Storage: domain.NormalizeAddress(c.Storage),
	}
}

// Window returns the block window every log query covers.
func (c ChainConfig) Window() contracts.Window {
	return contracts.Window{From: c.FromBlock, To: c.ToBlock}
}

// CallerAddress returns the configured caller, UnknownAddress when unset.
func (c *AppConfig) CallerAddress() domain.Address {
	return domain.NormalizeAddress(c.Caller)
}
