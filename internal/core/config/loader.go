package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/ticketchain/internal/core/domain"
)

// Defaults applied by Load.
const (
	DefaultConfirmations  = 1
	DefaultPollInterval   = 2 * time.Second
	DefaultReceiptTimeout = 2 * time.Minute
	DefaultRequestTimeout = 30 * time.Second
	DefaultCacheTTL       = 10 * time.Second
)

// Load reads configuration from a YAML file, applies defaults and validates it.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset values.
func (c *AppConfig) ApplyDefaults() {
	ch := &c.Chain
	if ch.ChainID == "" && ch.Name != "" {
		ch.ChainID = domain.ChainNameToID[ch.Name]
	}
	if ch.Name == "" && ch.ChainID != "" {
		ch.Name = domain.ChainIDToName[ch.ChainID]
	}
	if ch.Confirmations == 0 {
		ch.Confirmations = DefaultConfirmations
	}
	if ch.PollInterval == 0 {
		ch.PollInterval = DefaultPollInterval
	}
	if ch.ReceiptTimeout == 0 {
		ch.ReceiptTimeout = DefaultReceiptTimeout
	}
	if ch.RequestTimeout == 0 {
		ch.RequestTimeout = DefaultRequestTimeout
	}
	for i := range ch.Providers {
		if ch.Providers[i].Name == "" {
			ch.Providers[i].Name = fmt.Sprintf("provider-%d", i)
		}
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = DefaultCacheTTL
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	c.Contracts.AccessControl = lower(c.Contracts.AccessControl)
	c.Contracts.EventFactory = lower(c.Contracts.EventFactory)
	c.Contracts.Token = lower(c.Contracts.Token)
	c.Roles.Admin = lower(c.Roles.Admin)
	c.Roles.Staff = lower(c.Roles.Staff)
}

func lower(a domain.Address) domain.Address {
	return domain.Address(strings.ToLower(strings.TrimSpace(string(a))))
}

// Validate reports every problem in the configuration at once.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Chain.ChainID == "" {
		errs = append(errs, errors.New("chain.id is required"))
	}
	if len(c.Chain.Providers) == 0 {
		errs = append(errs, errors.New("chain.providers must list at least one provider"))
	}
	for i, p := range c.Chain.Providers {
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("chain.providers[%d].url is required", i))
		}
	}

	for name, addr := range map[string]domain.Address{
		"contracts.access_control": c.Contracts.AccessControl,
		"contracts.event_factory":  c.Contracts.EventFactory,
		"contracts.token":          c.Contracts.Token,
		"roles.admin":              c.Roles.Admin,
		"roles.staff":              c.Roles.Staff,
	} {
		if addr != "" && !domain.IsValidAddress(string(addr)) {
			errs = append(errs, fmt.Errorf("%s: invalid address %q", name, addr))
		}
	}

	if c.Server.Port < 0 {
		errs = append(errs, errors.New("server.port must not be negative"))
	}
	return errors.Join(errs...)
}
