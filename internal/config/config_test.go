package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, "listen: \":9090\"\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Fatalf("Listen = %q", cfg.Listen)
	}
	if cfg.Addon.GlanceKey != "sauce.glance" {
		t.Fatalf("GlanceKey = %q", cfg.Addon.GlanceKey)
	}
	if cfg.Sauce.LinkHost != "saucelabs.com" {
		t.Fatalf("LinkHost = %q", cfg.Sauce.LinkHost)
	}
	d, err := cfg.BroadcastInterval()
	if err != nil {
		t.Fatalf("BroadcastInterval: %v", err)
	}
	if d != 30*time.Second {
		t.Fatalf("interval = %v, want 30s", d)
	}
	if cfg.Settings.Driver != "redis" {
		t.Fatalf("settings driver = %q", cfg.Settings.Driver)
	}
}

func TestLoadFull(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, `
listen: ":8181"
addon:
  name: "Sauce"
  glance_key: "sauce.status"
broadcast:
  interval: "1m"
  rate_per_sec: 5
settings:
  driver: sqlite
  path: /tmp/settings.db
sauce:
  link_host: eu-central-1.saucelabs.com
logging:
  level: debug
  console: true
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d, _ := cfg.BroadcastInterval()
	if d != time.Minute {
		t.Fatalf("interval = %v", d)
	}
	if cfg.Sauce.LinkHost != "eu-central-1.saucelabs.com" {
		t.Fatalf("LinkHost = %q", cfg.Sauce.LinkHost)
	}
	if cfg.Settings.Driver != "sqlite" || cfg.Settings.Path != "/tmp/settings.db" {
		t.Fatalf("settings = %+v", cfg.Settings)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	if _, err := Load(writeConfig(t, "listne: \":9090\"\n")); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsBadInterval(t *testing.T) {
	t.Parallel()
	if _, err := Load(writeConfig(t, "broadcast:\n  interval: nope\n")); err == nil {
		t.Fatal("expected error for bad interval")
	}
}
