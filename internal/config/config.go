// Package config loads ubexdeploy settings from flags, UBEX_* environment
// variables and an optional ubexdeploy.yaml file.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Platform drivers.
const (
	PlatformEVM    = "evm"
	PlatformMemory = "memory"
)

// Directory drivers.
const (
	DirectoryMemory   = "memory"
	DirectoryFile     = "file"
	DirectoryPostgres = "postgres"
	DirectoryRedis    = "redis"
)

// EnvPrefix is prepended to every environment variable, e.g. UBEX_RPC_URL.
const EnvPrefix = "UBEX"

// Config is the full ubexdeploy configuration.
type Config struct {
	Network   string          `mapstructure:"network" json:"network" yaml:"network" validate:"required"`
	Log       LogConfig       `mapstructure:"log" json:"log" yaml:"log"`
	Plan      PlanConfig      `mapstructure:"plan" json:"plan" yaml:"plan"`
	Platform  PlatformConfig  `mapstructure:"platform" json:"platform" yaml:"platform"`
	RPC       RPCConfig       `mapstructure:"rpc" json:"rpc" yaml:"rpc"`
	Deployer  DeployerConfig  `mapstructure:"deployer" json:"deployer" yaml:"deployer"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" json:"artifacts" yaml:"artifacts"`
	Directory DirectoryConfig `mapstructure:"directory" json:"directory" yaml:"directory"`
	Metrics   MetricsConfig   `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	Server    ServerConfig    `mapstructure:"server" json:"server" yaml:"server"`
	Preflight PreflightConfig `mapstructure:"preflight" json:"preflight" yaml:"preflight"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" json:"format" yaml:"format" validate:"oneof=text json"`
}

type PlanConfig struct {
	Strategy string `mapstructure:"strategy" json:"strategy" yaml:"strategy" validate:"oneof=static topological"`
}

type PlatformConfig struct {
	Driver string `mapstructure:"driver" json:"driver" yaml:"driver" validate:"oneof=evm memory"`
	// StatePath persists the memory platform between invocations
	StatePath string `mapstructure:"state_path" json:"state_path" yaml:"state_path"`
}

type RPCConfig struct {
	URL     string `mapstructure:"url" json:"url" yaml:"url"`
	ChainID uint64 `mapstructure:"chain_id" json:"chain_id" yaml:"chain_id"`
}

type DeployerConfig struct {
	PrivateKey string `mapstructure:"private_key" json:"private_key" yaml:"private_key"`
}

type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" json:"dir" yaml:"dir"`
}

type DirectoryConfig struct {
	Driver      string `mapstructure:"driver" json:"driver" yaml:"driver" validate:"oneof=memory file postgres redis"`
	Path        string `mapstructure:"path" json:"path" yaml:"path" validate:"required_if=Driver file"`
	DatabaseURL string `mapstructure:"database_url" json:"database_url" yaml:"database_url" validate:"required_if=Driver postgres"`
	RedisAddr   string `mapstructure:"redis_addr" json:"redis_addr" yaml:"redis_addr" validate:"required_if=Driver redis"`
}

type MetricsConfig struct {
	PushURL string `mapstructure:"push_url" json:"push_url" yaml:"push_url" validate:"omitempty,url"`
	Job     string `mapstructure:"job" json:"job" yaml:"job" validate:"required"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr" yaml:"listen_addr" validate:"required"`
}

type PreflightConfig struct {
	Enabled            bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	RequiredFundingWei string `mapstructure:"required_funding_wei" json:"required_funding_wei" yaml:"required_funding_wei" validate:"omitempty,number"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("network", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("plan.strategy", "static")
	v.SetDefault("platform.driver", PlatformMemory)
	v.SetDefault("platform.state_path", "")
	v.SetDefault("rpc.url", "http://127.0.0.1:8545")
	v.SetDefault("rpc.chain_id", 1337)
	v.SetDefault("deployer.private_key", "")
	v.SetDefault("artifacts.dir", "build/contracts")
	v.SetDefault("directory.driver", DirectoryFile)
	v.SetDefault("directory.path", "deployments.json")
	v.SetDefault("directory.database_url", "")
	v.SetDefault("directory.redis_addr", "")
	v.SetDefault("metrics.push_url", "")
	v.SetDefault("metrics.job", "ubexdeploy")
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("preflight.enabled", true)
	v.SetDefault("preflight.required_funding_wei", "")
}

// Load reads configuration into v and returns the validated result. An
// explicit cfgFile must exist; otherwise ./ubexdeploy.yaml is optional.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("ubexdeploy")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ValidatePlatform checks the settings the selected platform needs before it
// is opened. Runs that never touch the platform skip it.
func (c *Config) ValidatePlatform() error {
	if c.Platform.Driver == PlatformEVM {
		var missing []string
		if c.RPC.URL == "" {
			missing = append(missing, "rpc.url")
		}
		if c.RPC.ChainID == 0 {
			missing = append(missing, "rpc.chain_id")
		}
		if c.Deployer.PrivateKey == "" {
			missing = append(missing, "deployer.private_key")
		}
		if c.Artifacts.Dir == "" {
			missing = append(missing, "artifacts.dir")
		}
		if len(missing) > 0 {
			return fmt.Errorf("invalid config: evm platform requires %s", strings.Join(missing, ", "))
		}
	}
	return nil
}

// RequiredFunding returns the preflight funding override, or nil when unset.
func (c *Config) RequiredFunding() *big.Int {
	if c.Preflight.RequiredFundingWei == "" {
		return nil
	}
	wei, ok := new(big.Int).SetString(c.Preflight.RequiredFundingWei, 10)
	if !ok {
		return nil
	}
	return wei
}

// MemoryStatePath returns where the memory platform keeps its contracts.
// Without platform.state_path, a file directory gets a sibling
// "<name>.memory.json"; other directories leave the platform in process
// memory only.
func (c *Config) MemoryStatePath() string {
	if c.Platform.StatePath != "" {
		return c.Platform.StatePath
	}
	if c.Directory.Driver != DirectoryFile || c.Directory.Path == "" {
		return ""
	}
	path := c.Directory.Path
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".memory.json"
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	r := *c
	if r.Deployer.PrivateKey != "" {
		r.Deployer.PrivateKey = "****"
	}
	if u, err := url.Parse(r.Directory.DatabaseURL); err == nil && r.Directory.DatabaseURL != "" {
		r.Directory.DatabaseURL = u.Redacted()
	}
	return r
}
