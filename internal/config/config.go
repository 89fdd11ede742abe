package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppName names the config directory and the env prefix base.
const AppName = "d2c-coordinator"

// EnvPrefix is prepended to every environment override, e.g.
// D2C_CHANNEL_SOCKET_URL for channel.socket_url.
const EnvPrefix = "D2C"

// Config represents the complete coordinator configuration
type Config struct {
	Identity IdentityConfig `mapstructure:"identity"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Channel  ChannelConfig  `mapstructure:"channel"`
	Session  SessionConfig  `mapstructure:"session"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Paths    PathsConfig    `mapstructure:"paths"`
}

// IdentityConfig controls the identity provider supervisor
type IdentityConfig struct {
	// PollIntervalMs is the fixed tick cadence of the supervisor loop.
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	// HelperPath is the identity helper executable. Empty means the
	// platform default next to the running binary.
	HelperPath string `mapstructure:"helper_path"`
	// HelperTimeoutMs bounds one helper invocation; the helper's process
	// tree is killed when it expires.
	HelperTimeoutMs int `mapstructure:"helper_timeout_ms"`
	// MaxBackoffSeconds caps the failure backoff.
	MaxBackoffSeconds int `mapstructure:"max_backoff_seconds"`
	// ProviderProcess is the provider's process name without extension.
	ProviderProcess string `mapstructure:"provider_process"`
	// ShutdownJoinMs bounds how long shutdown waits for the loop to exit.
	ShutdownJoinMs int `mapstructure:"shutdown_join_ms"`
}

// AuthConfig controls the credential exchange endpoint
type AuthConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	ExchangePath string `mapstructure:"exchange_path"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
}

// ChannelConfig controls the Game Coordinator socket
type ChannelConfig struct {
	SocketURL        string `mapstructure:"socket_url"`
	ConnectTimeoutMs int    `mapstructure:"connect_timeout_ms"`
	// SendBuffer is the number of outbound frames buffered before new
	// commands are dropped.
	SendBuffer int `mapstructure:"send_buffer"`
	// Reconnect re-dials after an unexpected drop while the token is unchanged.
	Reconnect           bool `mapstructure:"reconnect"`
	ReconnectMaxSeconds int  `mapstructure:"reconnect_max_seconds"`
}

// SessionConfig controls the session state machine's timers and limits
type SessionConfig struct {
	PartyRefreshIntervalMs int `mapstructure:"party_refresh_interval_ms"`
	InviteTimeoutSeconds   int `mapstructure:"invite_timeout_seconds"`
	InviteSearchDebounceMs int `mapstructure:"invite_search_debounce_ms"`
	InviteSearchLimit      int `mapstructure:"invite_search_limit"`
	MaxPartySize           int `mapstructure:"max_party_size"`
	LookupCacheSize        int `mapstructure:"lookup_cache_size"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled turns on the coordinator log file (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// MaxSizeMB is the size at which coordinator.log rotates
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is how many rotated files are kept
	MaxBackups int `mapstructure:"max_backups"`
}

// PathsConfig controls on-disk locations
type PathsConfig struct {
	// DataDir holds settings.yaml and coordinator.log. Empty means ConfigDir().
	DataDir string `mapstructure:"data_dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Identity: IdentityConfig{
			PollIntervalMs:    1000,
			HelperPath:        "",
			HelperTimeoutMs:   12000,
			MaxBackoffSeconds: 30,
			ProviderProcess:   "steam",
			ShutdownJoinMs:    500,
		},
		Auth: AuthConfig{
			BaseURL:      "https://api.dotaclassic.ru/",
			ExchangePath: "v1/auth/steam/steam_session_ticket",
			TimeoutMs:    10000,
		},
		Channel: ChannelConfig{
			SocketURL:           "wss://api.dotaclassic.ru",
			ConnectTimeoutMs:    10000,
			SendBuffer:          64,
			Reconnect:           true,
			ReconnectMaxSeconds: 30,
		},
		Session: SessionConfig{
			PartyRefreshIntervalMs: 10000,
			InviteTimeoutSeconds:   60,
			InviteSearchDebounceMs: 300,
			InviteSearchLimit:      25,
			MaxPartySize:           5,
			LookupCacheSize:        256,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Paths: PathsConfig{},
	}
}

// PollInterval returns the supervisor tick cadence.
func (c *IdentityConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// HelperTimeout returns the per-invocation helper deadline.
func (c *IdentityConfig) HelperTimeout() time.Duration {
	return time.Duration(c.HelperTimeoutMs) * time.Millisecond
}

// MaxBackoff returns the backoff cap.
func (c *IdentityConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffSeconds) * time.Second
}

// ShutdownJoin returns the bounded shutdown wait.
func (c *IdentityConfig) ShutdownJoin() time.Duration {
	return time.Duration(c.ShutdownJoinMs) * time.Millisecond
}

// ResolveHelperPath returns HelperPath, or the platform helper name in the
// directory of the running executable when HelperPath is empty.
func (c *IdentityConfig) ResolveHelperPath() string {
	if c.HelperPath != "" {
		return expandHome(c.HelperPath)
	}
	name := "d2c-steam-bridge"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	exe, err := os.Executable()
	if err != nil {
		return name
	}
	return filepath.Join(filepath.Dir(exe), name)
}

// Timeout returns the exchange request timeout.
func (c *AuthConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ConnectTimeout returns the dial plus handshake timeout.
func (c *ChannelConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// ReconnectMax returns the reconnect backoff cap.
func (c *ChannelConfig) ReconnectMax() time.Duration {
	return time.Duration(c.ReconnectMaxSeconds) * time.Second
}

// PartyRefreshInterval returns the periodic party refresh cadence.
func (c *SessionConfig) PartyRefreshInterval() time.Duration {
	return time.Duration(c.PartyRefreshIntervalMs) * time.Millisecond
}

// InviteTimeout returns the local invite expiry.
func (c *SessionConfig) InviteTimeout() time.Duration {
	return time.Duration(c.InviteTimeoutSeconds) * time.Second
}

// InviteSearchDebounce returns the invite-search debounce window.
func (c *SessionConfig) InviteSearchDebounce() time.Duration {
	return time.Duration(c.InviteSearchDebounceMs) * time.Millisecond
}

// ResolveDataDir returns DataDir with ~ expanded, or ConfigDir() when empty.
func (p *PathsConfig) ResolveDataDir() string {
	if p.DataDir == "" {
		return ConfigDir()
	}
	return expandHome(p.DataDir)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Identity defaults
	viper.SetDefault("identity.poll_interval_ms", defaults.Identity.PollIntervalMs)
	viper.SetDefault("identity.helper_path", defaults.Identity.HelperPath)
	viper.SetDefault("identity.helper_timeout_ms", defaults.Identity.HelperTimeoutMs)
	viper.SetDefault("identity.max_backoff_seconds", defaults.Identity.MaxBackoffSeconds)
	viper.SetDefault("identity.provider_process", defaults.Identity.ProviderProcess)
	viper.SetDefault("identity.shutdown_join_ms", defaults.Identity.ShutdownJoinMs)

	// Auth defaults
	viper.SetDefault("auth.base_url", defaults.Auth.BaseURL)
	viper.SetDefault("auth.exchange_path", defaults.Auth.ExchangePath)
	viper.SetDefault("auth.timeout_ms", defaults.Auth.TimeoutMs)

	// Channel defaults
	viper.SetDefault("channel.socket_url", defaults.Channel.SocketURL)
	viper.SetDefault("channel.connect_timeout_ms", defaults.Channel.ConnectTimeoutMs)
	viper.SetDefault("channel.send_buffer", defaults.Channel.SendBuffer)
	viper.SetDefault("channel.reconnect", defaults.Channel.Reconnect)
	viper.SetDefault("channel.reconnect_max_seconds", defaults.Channel.ReconnectMaxSeconds)

	// Session defaults
	viper.SetDefault("session.party_refresh_interval_ms", defaults.Session.PartyRefreshIntervalMs)
	viper.SetDefault("session.invite_timeout_seconds", defaults.Session.InviteTimeoutSeconds)
	viper.SetDefault("session.invite_search_debounce_ms", defaults.Session.InviteSearchDebounceMs)
	viper.SetDefault("session.invite_search_limit", defaults.Session.InviteSearchLimit)
	viper.SetDefault("session.max_party_size", defaults.Session.MaxPartySize)
	viper.SetDefault("session.lookup_cache_size", defaults.Session.LookupCacheSize)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Paths defaults
	viper.SetDefault("paths.data_dir", defaults.Paths.DataDir)
}

// BindEnv registers env overrides that do not follow the prefix scheme.
// D2C_SOCKET_URL predates the channel section and is still honoured.
func BindEnv() error {
	return viper.BindEnv("channel.socket_url", EnvPrefix+"_CHANNEL_SOCKET_URL", EnvPrefix+"_SOCKET_URL")
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when
// the loaded values do not validate.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
