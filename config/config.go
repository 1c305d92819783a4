// Package config loads and validates the router's configuration: a single
// struct populated via viper (file plus environment overrides) and
// validated eagerly before any subsystem starts.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Plumbridge/FinP2P-sub003/peering"
	"github.com/spf13/viper"
)

type LedgerConfig struct {
	Type   string                 `mapstructure:"type"`
	Config map[string]interface{} `mapstructure:"config"`
}

type NetworkConfig struct {
	Peers             []string `mapstructure:"peers"`
	HeartbeatInterval int      `mapstructure:"heartbeatInterval"` // ms
	Timeout           int      `mapstructure:"timeout"`           // ms
	ListenPort        int      `mapstructure:"listenPort"`        // libp2p TCP listen port; 0 picks an ephemeral port
}

type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryptionKey"`
}

type MonitoringConfig struct {
	LogLevel string `mapstructure:"logLevel"`
}

type ConfirmationConfig struct {
	MaxConcurrency    int `mapstructure:"maxConcurrency"`
	BatchSize         int `mapstructure:"batchSize"`
	ProcessingTimeout int `mapstructure:"processingTimeout"` // ms
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// Config is the full set of router options.
type Config struct {
	RouterID           string                  `mapstructure:"routerId"`
	Port               int                     `mapstructure:"port"`
	Host               string                  `mapstructure:"host"`
	Redis              RedisConfig             `mapstructure:"redis"`
	Security           SecurityConfig          `mapstructure:"security"`
	Monitoring         MonitoringConfig        `mapstructure:"monitoring"`
	Ledgers            map[string]LedgerConfig `mapstructure:"ledgers"`
	Network            NetworkConfig           `mapstructure:"network"`
	ReservationTimeout int                     `mapstructure:"reservationTimeout"` // ms
	Confirmation       ConfirmationConfig      `mapstructure:"confirmation"`
}

// Defaults returns the configuration used when a field is absent from the
// config file and environment.
func Defaults() Config {
	return Config{
		Port:               0,
		Host:               "0.0.0.0",
		ReservationTimeout: 300_000,
		Monitoring:         MonitoringConfig{LogLevel: "info"},
		Network: NetworkConfig{
			HeartbeatInterval: 30_000,
			Timeout:           5_000,
		},
		Confirmation: ConfirmationConfig{
			MaxConcurrency:    10,
			BatchSize:         5,
			ProcessingTimeout: 30_000,
		},
	}
}

var validLedgerTypes = map[string]bool{
	"sui": true, "hedera": true, "mock": true, "aptos": true, "fabric": true,
	"overledger": true, "fusion": true,
}

// Validate checks every option. Invalid
// configuration fails startup deterministically: every violation is
// collected so an operator sees the whole list in one pass, not one
// complaint per restart.
func (c Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.RouterID) == "" {
		errs = append(errs, "routerId must not be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port %d out of range [0,65535]", c.Port))
	}
	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, "host must not be empty")
	}
	if strings.TrimSpace(c.Redis.URL) == "" {
		errs = append(errs, "redis.url must not be empty")
	}
	if len(c.Security.EncryptionKey) < 32 {
		errs = append(errs, "security.encryptionKey must be at least 32 characters")
	}
	if strings.TrimSpace(c.Monitoring.LogLevel) == "" {
		errs = append(errs, "monitoring.logLevel must not be empty")
	}
	for id, lc := range c.Ledgers {
		if !validLedgerTypes[lc.Type] {
			errs = append(errs, fmt.Sprintf("ledgers[%s].type %q is not a supported ledger type", id, lc.Type))
		}
	}
	for _, p := range c.Network.Peers {
		if _, err := peering.ParsePeerURL(p); err != nil {
			errs = append(errs, fmt.Sprintf("network.peers entry %q is not a valid peer URL: %v", p, err))
		}
	}
	if c.Network.HeartbeatInterval <= 0 {
		errs = append(errs, "network.heartbeatInterval must be positive")
	}
	if c.Network.Timeout <= 0 {
		errs = append(errs, "network.timeout must be positive")
	}
	if c.Network.ListenPort < 0 || c.Network.ListenPort > 65535 {
		errs = append(errs, fmt.Sprintf("network.listenPort %d out of range [0,65535]", c.Network.ListenPort))
	}
	if c.ReservationTimeout <= 0 {
		errs = append(errs, "reservationTimeout must be positive")
	}
	if c.Confirmation.MaxConcurrency <= 0 {
		errs = append(errs, "confirmation.maxConcurrency must be positive")
	}
	if c.Confirmation.BatchSize <= 0 {
		errs = append(errs, "confirmation.batchSize must be positive")
	}
	if c.Confirmation.ProcessingTimeout <= 0 {
		errs = append(errs, "confirmation.processingTimeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c Config) ReservationTTL() time.Duration {
	return time.Duration(c.ReservationTimeout) * time.Millisecond
}

func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Network.HeartbeatInterval) * time.Millisecond
}

// Load reads configuration from a file plus environment overrides.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FINP2P")
	v.AutomaticEnv()
	v.SetConfigFile(configPath)

	def := Defaults()
	v.SetDefault("port", def.Port)
	v.SetDefault("host", def.Host)
	v.SetDefault("reservationTimeout", def.ReservationTimeout)
	v.SetDefault("monitoring.logLevel", def.Monitoring.LogLevel)
	v.SetDefault("network.heartbeatInterval", def.Network.HeartbeatInterval)
	v.SetDefault("network.timeout", def.Network.Timeout)
	v.SetDefault("network.listenPort", def.Network.ListenPort)
	v.SetDefault("confirmation.maxConcurrency", def.Confirmation.MaxConcurrency)
	v.SetDefault("confirmation.batchSize", def.Confirmation.BatchSize)
	v.SetDefault("confirmation.processingTimeout", def.Confirmation.ProcessingTimeout)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
