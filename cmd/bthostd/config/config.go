// Package config loads bthostd's runtime configuration, following
// marmos91-dittofs's pkg/config precedence order: environment variables
// override the config file, which overrides these defaults. No setting
// has a command-line flag of its own; --config only names the file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is bthostd's full runtime configuration.
type Config struct {
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
	Host      HostConfig      `mapstructure:"host" yaml:"host"`
	Pairing   PairingConfig   `mapstructure:"pairing" yaml:"pairing"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// TransportConfig names the H4 byte-stream endpoint bthostd serves, per
// SPEC_FULL.md §1: either "tcp://host:port" or "unix:///path/to.sock".
type TransportConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// HostConfig binds the fragmentation policy spec §3/§6 exposes.
type HostConfig struct {
	ACLMTU uint16 `mapstructure:"acl_mtu" yaml:"acl_mtu"`
	ISOMTU uint16 `mapstructure:"iso_mtu" yaml:"iso_mtu"`
}

// PairingConfig binds the pairing knobs spec §6's set_pin_code /
// set_io_capability / set_auth_req / set_sc_support group exposes.
type PairingConfig struct {
	PINCode           string `mapstructure:"pin_code" yaml:"pin_code"`
	IOCapability      uint8  `mapstructure:"io_capability" yaml:"io_capability"`
	AuthReq           uint8  `mapstructure:"auth_req" yaml:"auth_req"`
	SCSupport         bool   `mapstructure:"sc_support" yaml:"sc_support"`
	RejectUserConfirm bool   `mapstructure:"reject_user_confirm" yaml:"reject_user_confirm"`
}

// LoggingConfig controls the logrus logger bthostd installs on Host.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the optional Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// Default returns the configuration bthostd runs with when no file is
// present, mirroring dittofs's GetDefaultConfig.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{Addr: "tcp://127.0.0.1:6400"},
		Host:      HostConfig{ACLMTU: 672, ISOMTU: 251},
		Pairing:   PairingConfig{IOCapability: 0x03, AuthReq: 0x01},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Metrics:   MetricsConfig{Enabled: false, Addr: ":9471"},
	}
}

// Load reads configPath (if non-empty) and BTHOST_-prefixed environment
// overrides into a Config seeded with Default(), with env > file >
// defaults precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BTHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so every key is bound
	// explicitly (e.g. transport.addr <- BTHOST_TRANSPORT_ADDR).
	for _, key := range []string{
		"transport.addr",
		"host.acl_mtu", "host.iso_mtu",
		"pairing.pin_code", "pairing.io_capability", "pairing.auth_req",
		"pairing.sc_support", "pairing.reject_user_confirm",
		"logging.level", "logging.format",
		"metrics.enabled", "metrics.addr",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfg := Default()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// WriteDefault writes Default() to path in YAML form, for bthostd's
// "config-init" subcommand, the way dittofs's SaveConfig does.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
