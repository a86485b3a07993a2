package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_FileSelectsMySQL(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  type: mysql
  mysql:
    host: db.internal
    port: 3307
    username: attendance
    password: hunter2
    database: attendance
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Storage.Type != "mysql" {
		t.Errorf("storage type = %q, want mysql", cfg.Storage.Type)
	}
	if cfg.Storage.MySQL == nil {
		t.Fatal("mysql config not decoded")
	}
	if cfg.Storage.MySQL.Host != "db.internal" || cfg.Storage.MySQL.Port != 3307 {
		t.Errorf("mysql = %+v", cfg.Storage.MySQL)
	}
	if cfg.Storage.MySQL.Database != "attendance" || cfg.Storage.MySQL.Username != "attendance" {
		t.Errorf("mysql = %+v", cfg.Storage.MySQL)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
listen: ":9090"
sync:
  max_concurrent: 2
attendance:
  grace_minutes: 10
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Sync.MaxConcurrent != 2 {
		t.Errorf("max_concurrent = %d", cfg.Sync.MaxConcurrent)
	}
	if cfg.Attendance.GraceMinutes != 10 {
		t.Errorf("grace_minutes = %d", cfg.Attendance.GraceMinutes)
	}
	// Untouched keys keep their defaults.
	if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLite == nil {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Enroll.MinQuality != 60 {
		t.Errorf("min_quality = %d", cfg.Enroll.MinQuality)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for explicitly requested missing file")
	}
}

func TestLoadConfig_ClampsSyncIntervalFloor(t *testing.T) {
	path := writeConfigFile(t, `
sync:
  min_interval_seconds: 2
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Sync.MinIntervalSeconds != 10 {
		t.Errorf("min_interval_seconds = %d, want clamped to 10", cfg.Sync.MinIntervalSeconds)
	}
}
