package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deploymenttheory/go-xattrfs/internal/store"
	"github.com/deploymenttheory/go-xattrfs/internal/trans"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// Config holds the settings of one mounted attribute store
type Config struct {
	Store         StoreConfig        `mapstructure:"store"`
	FormatVersion int                `mapstructure:"format_version"`
	Transactions  TransactionsConfig `mapstructure:"transactions"`
	NodeID        string             `mapstructure:"node_id"`
	Log           LogConfig          `mapstructure:"log"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
}

// StoreConfig selects the item store backend
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

type TransactionsConfig struct {
	MaxHolders int `mapstructure:"max_holders"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DefaultConfigPaths are searched for xattrfs-config.yaml when New is given
// no paths.
var DefaultConfigPaths = []string{".", "./config", "$HOME/.xattrfs", "/etc/xattrfs"}

// New returns a viper instance with the config search paths, defaults and
// environment binding set up. Callers may bind flags to it before Load.
func New(configPaths ...string) *viper.Viper {
	if len(configPaths) == 0 {
		configPaths = DefaultConfigPaths
	}

	v := viper.New()
	v.SetConfigName("xattrfs-config")
	v.SetConfigType("yaml")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}

	v.SetDefault("store.backend", store.BackendMemory)
	v.SetDefault("store.dir", "./xattrfs-data")
	v.SetDefault("format_version", types.FormatVersionMax)
	v.SetDefault("transactions.max_holders", trans.DefaultMaxHolders)
	v.SetDefault("node_id", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("metrics.enabled", true)

	v.SetEnvPrefix("XATTRFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file if one exists, applies defaults and validates
// the result. An empty node id is replaced with a generated one.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings and fills in the node id.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case store.BackendMemory:
	case store.BackendLevelDB:
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required for the %s backend: %w", store.BackendLevelDB, types.ErrInvalid)
		}
	default:
		return fmt.Errorf("unknown store.backend %q: %w", c.Store.Backend, types.ErrInvalid)
	}

	if c.FormatVersion < types.FormatVersionMin || c.FormatVersion > types.FormatVersionMax {
		return fmt.Errorf("format_version %d outside [%d, %d]: %w",
			c.FormatVersion, types.FormatVersionMin, types.FormatVersionMax, types.ErrInvalid)
	}
	if c.Transactions.MaxHolders < 1 {
		return fmt.Errorf("transactions.max_holders must be positive, got %d: %w", c.Transactions.MaxHolders, types.ErrInvalid)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %v: %w", err, types.ErrInvalid)
	}

	if c.NodeID == "" {
		c.NodeID = uuid.NewString()
	} else if _, err := uuid.Parse(c.NodeID); err != nil {
		return fmt.Errorf("node_id %q: %v: %w", c.NodeID, err, types.ErrInvalid)
	}
	return nil
}

// Node returns the parsed node id. Validate must have succeeded.
func (c *Config) Node() uuid.UUID {
	return uuid.MustParse(c.NodeID)
}

// NewLogger builds the process logger from the log settings.
func NewLogger(lc LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
