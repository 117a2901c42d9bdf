// Package config loads relayctl's configuration using github.com/spf13/viper
// to layer defaults, a config file, and bound CLI flags into a typed struct.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is relayctl's top-level configuration.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	CLI    CLIConfig    `mapstructure:"cli"`
	Client ClientConfig `mapstructure:"client"`

	viper      *viper.Viper `mapstructure:"-"`
	configFile string       `mapstructure:"-"`
}

// CLIConfig holds CLI-presentation settings.
type CLIConfig struct {
	NoColor      bool   `mapstructure:"no_color"`
	Verbose      bool   `mapstructure:"verbose"`
	OutputFormat string `mapstructure:"output_format"`
}

// ClientConfig holds the relay.Client defaults relayctl builds from.
type ClientConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	PoolSoftLimit    int    `mapstructure:"pool_soft_limit"`
	PoolHardLimit    int    `mapstructure:"pool_hard_limit"`
	MaxRedirects     int    `mapstructure:"max_redirects"`
	TrustEnv         bool   `mapstructure:"trust_env"`
	InsecureTLS      bool   `mapstructure:"insecure_tls"`
	BaseURL          string `mapstructure:"base_url"`
	ProxyURL         string `mapstructure:"proxy_url"`
}

// Timeout returns the configured operation timeout as a time.Duration.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load loads configuration from defaults, config file, and environment.
func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

// LoadWithCommand loads configuration and binds cmd's persistent flags.
func LoadWithCommand(cmd *cobra.Command) (*Config, error) {
	return LoadWithOptions(LoadOptions{Command: cmd})
}

// LoadOptions configures Load.
type LoadOptions struct {
	Command    *cobra.Command
	ConfigFile string
}

// LoadWithOptions is the core loader: Viper defaults, then a config file
// (.relayctl/config.yaml, ~/.relayctl/config.yaml, /etc/relayctl), then
// env var overrides (RELAYCTL_*), then bound flags, which Viper ranks
// above env vars when the flag was set.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	configureFileDiscovery(v, opts.ConfigFile)

	v.SetEnvPrefix("RELAYCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Command != nil {
		if err := bindFlags(v, opts.Command); err != nil {
			return nil, errors.Wrap(err, "failed to bind CLI flags")
		}
	}

	configFile := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	} else {
		configFile = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	cfg.viper = v
	cfg.configFile = configFile

	if err := validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "text")
	v.SetDefault("cli.output_format", "text")
	v.SetDefault("client.timeout_seconds", 5)
	v.SetDefault("client.pool_soft_limit", 10)
	v.SetDefault("client.pool_hard_limit", 100)
	v.SetDefault("client.max_redirects", 20)
	v.SetDefault("client.trust_env", true)
}

func configureFileDiscovery(v *viper.Viper, configFile string) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		return
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./.relayctl")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".relayctl"))
	}
	v.AddConfigPath("/etc/relayctl")
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	root := cmd.Root()
	if root == nil {
		root = cmd
	}
	if root.PersistentFlags() == nil {
		return nil
	}
	binds := map[string]string{
		"verbose":   "cli.verbose",
		"no-color":  "cli.no_color",
		"output":    "cli.output_format",
		"timeout":   "client.timeout_seconds",
		"trust-env": "client.trust_env",
		"proxy":     "client.proxy_url",
		"base-url":  "client.base_url",
		"insecure":  "client.insecure_tls",
	}
	for flagName, key := range binds {
		if flag := root.PersistentFlags().Lookup(flagName); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return err
			}
		}
	}
	return nil
}

func validate(cfg *Config) error {
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format: invalid value %q, want text or json", cfg.LogFormat)
	}
	if cfg.Client.TimeoutSeconds < 0 {
		return fmt.Errorf("client.timeout_seconds: must be >= 0")
	}
	if cfg.Client.PoolHardLimit < cfg.Client.PoolSoftLimit {
		return fmt.Errorf("client.pool_hard_limit (%d) must be >= client.pool_soft_limit (%d)",
			cfg.Client.PoolHardLimit, cfg.Client.PoolSoftLimit)
	}
	return nil
}

// GetConfigFile returns the path to the config file that was loaded, if any.
func (c *Config) GetConfigFile() string { return c.configFile }
