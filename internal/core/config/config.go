package config

import (
	"time"

	"github.com/vietddude/ticketchain/internal/core/domain"
	redisclient "github.com/vietddude/ticketchain/internal/infra/redis"
	"github.com/vietddude/ticketchain/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Chain     ChainConfig        `yaml:"chain"`
	Contracts ContractsConfig    `yaml:"contracts"`
	Roles     RolesConfig        `yaml:"roles"`
	Redis     redisclient.Config `yaml:"redis"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings. Port 0 disables the server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig holds settings for the target chain.
type ChainConfig struct {
	ChainID        domain.ChainID   `yaml:"id"`
	Name           domain.ChainName `yaml:"name"`
	Providers      []ProviderConfig `yaml:"providers"`
	WSURL          string           `yaml:"ws_url"`
	Confirmations  uint64           `yaml:"confirmations"`
	PollInterval   time.Duration    `yaml:"poll_interval"`
	ReceiptTimeout time.Duration    `yaml:"receipt_timeout"`
	RequestTimeout time.Duration    `yaml:"request_timeout"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ContractsConfig holds the deployment-wide contract addresses.
type ContractsConfig struct {
	AccessControl domain.Address `yaml:"access_control"`
	EventFactory  domain.Address `yaml:"event_factory"`
	Token         domain.Address `yaml:"token"`
}

// RolesConfig names the privileged wallets.
type RolesConfig struct {
	Admin domain.Address `yaml:"admin"`
	Staff domain.Address `yaml:"staff"`
}
