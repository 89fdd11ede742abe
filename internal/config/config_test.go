package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Identity.PollInterval() != time.Second {
		t.Errorf("Identity.PollInterval() = %v, want 1s", cfg.Identity.PollInterval())
	}
	if cfg.Identity.HelperTimeout() != 12*time.Second {
		t.Errorf("Identity.HelperTimeout() = %v, want 12s", cfg.Identity.HelperTimeout())
	}
	if cfg.Identity.MaxBackoff() != 30*time.Second {
		t.Errorf("Identity.MaxBackoff() = %v, want 30s", cfg.Identity.MaxBackoff())
	}
	if cfg.Identity.ProviderProcess != "steam" {
		t.Errorf("Identity.ProviderProcess = %q", cfg.Identity.ProviderProcess)
	}
	if cfg.Auth.Timeout() != 10*time.Second {
		t.Errorf("Auth.Timeout() = %v", cfg.Auth.Timeout())
	}
	if cfg.Channel.SocketURL != "wss://api.dotaclassic.ru" {
		t.Errorf("Channel.SocketURL = %q", cfg.Channel.SocketURL)
	}
	if !cfg.Channel.Reconnect {
		t.Error("Channel.Reconnect should be true by default")
	}
	if cfg.Session.InviteTimeout() != time.Minute {
		t.Errorf("Session.InviteTimeout() = %v", cfg.Session.InviteTimeout())
	}
	if cfg.Session.InviteSearchDebounce() != 300*time.Millisecond {
		t.Errorf("Session.InviteSearchDebounce() = %v", cfg.Session.InviteSearchDebounce())
	}
	if cfg.Session.PartyRefreshInterval() != 10*time.Second {
		t.Errorf("Session.PartyRefreshInterval() = %v", cfg.Session.PartyRefreshInterval())
	}
	if cfg.Session.MaxPartySize != 5 {
		t.Errorf("Session.MaxPartySize = %d", cfg.Session.MaxPartySize)
	}
}

func TestResolveHelperPath(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		cfg := IdentityConfig{HelperPath: "/opt/bridge"}
		if got := cfg.ResolveHelperPath(); got != "/opt/bridge" {
			t.Errorf("ResolveHelperPath() = %q", got)
		}
	})

	t.Run("default next to executable", func(t *testing.T) {
		cfg := IdentityConfig{}
		got := cfg.ResolveHelperPath()
		if !strings.HasPrefix(filepath.Base(got), "d2c-steam-bridge") {
			t.Errorf("ResolveHelperPath() = %q", got)
		}
		if !filepath.IsAbs(got) {
			t.Errorf("ResolveHelperPath() = %q, want absolute", got)
		}
	})
}

func TestResolveDataDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	p := PathsConfig{}
	if got := p.ResolveDataDir(); got != filepath.Join("/custom/config", AppName) {
		t.Errorf("ResolveDataDir() = %q", got)
	}

	t.Setenv("HOME", "/home/player")
	p = PathsConfig{DataDir: "~/d2c"}
	if got := p.ResolveDataDir(); got != filepath.Join("/home/player", "d2c") {
		t.Errorf("ResolveDataDir() = %q", got)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/d2c-coordinator" {
			t.Errorf("ConfigDir() = %q", got)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/player")
		if got := ConfigDir(); got != filepath.Join("/home/player", ".config", "d2c-coordinator") {
			t.Errorf("ConfigDir() = %q", got)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := ConfigFile(); got != "/custom/config/d2c-coordinator/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg := Get()
	if cfg.Identity.PollIntervalMs != 1000 {
		t.Errorf("Get().Identity.PollIntervalMs = %d", cfg.Identity.PollIntervalMs)
	}
}

func TestLegacySocketURLEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	t.Setenv("D2C_SOCKET_URL", "ws://localhost:5000")
	if err := BindEnv(); err != nil {
		t.Fatalf("BindEnv() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Channel.SocketURL != "ws://localhost:5000" {
		t.Errorf("Channel.SocketURL = %q", cfg.Channel.SocketURL)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("channel.send_buffer", 0)

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail validation")
	}
	if !strings.Contains(err.Error(), "channel.send_buffer") {
		t.Errorf("error = %v", err)
	}
	if Get().Channel.SendBuffer != 64 {
		t.Error("Get() should fall back to defaults")
	}
}
