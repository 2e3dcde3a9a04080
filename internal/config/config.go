package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// applyDefaults seeds Viper with the defaults from GetConfigOptions.
func applyDefaults(v *viper.Viper) {
	for _, o := range GetConfigOptions() {
		v.SetDefault(o.Key, o.Default)
	}
}

// Load resolves configuration with precedence: defaults < file < env.
// The provided Viper instance is mutated in place.
func Load(ctx context.Context, v *viper.Viper) error {
	// SetConfigFile upstream takes precedence over these search paths.
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "oneshot"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "oneshot"))
		}
		v.AddConfigPath(".")
	}

	applyDefaults(v)

	// A missing file is fine; a broken one is not.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	// ONESHOT_LISTEN_NETWORK etc.
	v.SetEnvPrefix("oneshot")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return nil
}

// DefaultConfigPath resolves the standard config.toml location.
func DefaultConfigPath() string {
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		home, _ := os.UserHomeDir()
		xdg = filepath.Join(home, ".config")
	}
	return filepath.Join(xdg, "oneshot", "config.toml")
}

type ConfigOption struct {
	Key     string
	Default any
	Comment string
}

// GetConfigOptions returns every known option with its default and meaning.
func GetConfigOptions() []ConfigOption {
	return []ConfigOption{
		{Key: "listen.network", Default: "unix", Comment: "Listener kind: unix, tcp or quic"},
		{Key: "listen.addr", Default: "", Comment: "Listen address; empty unix uses $XDG_RUNTIME_DIR/oneshot.sock"},

		{Key: "server.max_in_flight", Default: 16, Comment: "Requests per connection handed to the service before responses are written"},
		{Key: "server.accept_rate", Default: 0.0, Comment: "Accepted connections per second; 0 disables the limit"},
		{Key: "server.accept_burst", Default: 64, Comment: "Burst size for server.accept_rate"},

		{Key: "metrics.addr", Default: "127.0.0.1:7465", Comment: "HTTP address for /metrics and /healthz; empty disables"},

		{Key: "log.level", Default: "info", Comment: "debug, info, warn or error"},
		{Key: "log.encoding", Default: "console", Comment: "console or json"},
		{Key: "log.file", Default: "", Comment: "Rotated JSON log file; empty logs to stderr only"},

		{Key: "tls.mode", Default: "self-signed", Comment: "QUIC certificates: self-signed, file or acme"},
		{Key: "tls.cert_file", Default: "", Comment: "PEM certificate for tls.mode = file"},
		{Key: "tls.key_file", Default: "", Comment: "PEM key for tls.mode = file"},
		{Key: "tls.domain", Default: "", Comment: "Domain for tls.mode = acme"},
		{Key: "tls.email", Default: "", Comment: "ACME account email"},
		{Key: "tls.storage_dir", Default: "", Comment: "ACME certificate storage; defaults under $XDG_CACHE_HOME"},

		{Key: "client.timeout", Default: "5s", Comment: "Timeout for one client call"},
		{Key: "client.tls_ca_file", Default: "", Comment: "PEM CA bundle to verify QUIC servers; empty skips verification"},
		{Key: "client.tls_server_name", Default: "", Comment: "Expected server name; defaults to the host in listen.addr"},
	}
}

// CheckConfigValidity reports every invalid setting at once.
func CheckConfigValidity(v *viper.Viper) error {
	var errs []error

	network := v.GetString("listen.network")
	switch network {
	case "unix", "quic":
	case "tcp":
		if strings.TrimSpace(v.GetString("listen.addr")) == "" {
			errs = append(errs, errors.New("listen.addr is required for tcp"))
		}
	default:
		errs = append(errs, fmt.Errorf("listen.network must be unix, tcp or quic, got %q", network))
	}
	if network == "quic" && strings.TrimSpace(v.GetString("listen.addr")) == "" {
		errs = append(errs, errors.New("listen.addr is required for quic"))
	}

	if v.GetInt("server.max_in_flight") <= 0 {
		errs = append(errs, errors.New("server.max_in_flight must be greater than 0"))
	}
	if v.GetFloat64("server.accept_rate") < 0 {
		errs = append(errs, errors.New("server.accept_rate must not be negative"))
	}
	if v.GetFloat64("server.accept_rate") > 0 && v.GetInt("server.accept_burst") <= 0 {
		errs = append(errs, errors.New("server.accept_burst must be greater than 0"))
	}

	switch v.GetString("log.level") {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", v.GetString("log.level")))
	}
	switch v.GetString("log.encoding") {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.encoding must be console or json, got %q", v.GetString("log.encoding")))
	}

	if network == "quic" {
		switch v.GetString("tls.mode") {
		case "self-signed":
		case "file":
			if v.GetString("tls.cert_file") == "" || v.GetString("tls.key_file") == "" {
				errs = append(errs, errors.New("tls.cert_file and tls.key_file are required for tls.mode file"))
			}
		case "acme":
			if v.GetString("tls.domain") == "" {
				errs = append(errs, errors.New("tls.domain is required for tls.mode acme"))
			}
		default:
			errs = append(errs, fmt.Errorf("tls.mode must be self-signed, file or acme, got %q", v.GetString("tls.mode")))
		}
	}

	if d, err := time.ParseDuration(v.GetString("client.timeout")); err != nil || d <= 0 {
		errs = append(errs, errors.New("client.timeout must be a positive duration"))
	}

	return errors.Join(errs...)
}
