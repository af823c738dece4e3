package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Errorf("StoreBackend = %q, want memory", cfg.StoreBackend)
	}
	if cfg.IdleTimeout != 30*time.Minute || cfg.MaxAge != 8*time.Hour {
		t.Errorf("unexpected durations idle=%v max=%v", cfg.IdleTimeout, cfg.MaxAge)
	}
	mc := cfg.Manager()
	if mc.Refresh.Enabled {
		t.Error("refresh should be off without a JWT secret")
	}
	if !mc.Audit.Enabled || !mc.Metrics.Enabled {
		t.Error("daemon defaults enable audit and metrics")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SESSIONGUARD_LISTEN_ADDR", ":9090")
	t.Setenv("SESSIONGUARD_SESSION_IDLE_TIMEOUT", "15m")
	t.Setenv("SESSIONGUARD_STORE_BACKEND", "Redis")
	t.Setenv("SESSIONGUARD_REDIS_ADDR", "cache:6379")
	t.Setenv("SESSIONGUARD_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("SESSIONGUARD_REQUIRE_ENCRYPTION", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.IdleTimeout != 15*time.Minute {
		t.Errorf("IdleTimeout = %v", cfg.IdleTimeout)
	}
	if cfg.StoreBackend != BackendRedis || cfg.RedisAddr != "cache:6379" {
		t.Errorf("store = %q %q", cfg.StoreBackend, cfg.RedisAddr)
	}
	mc := cfg.Manager()
	if !mc.Refresh.Enabled || !mc.Crypto.RequireEncryption || mc.Session.IdleTimeout != 15*time.Minute {
		t.Errorf("manager config not mapped: %+v", mc)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessiond.yaml")
	body := "listen_addr: \":7070\"\nstore_backend: sqlite\nstore_path: /var/lib/sessiond/session.db\nsession_max_age: 4h\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SESSIONGUARD_LISTEN_ADDR", ":6060")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":6060" {
		t.Errorf("env should override file, got %q", cfg.ListenAddr)
	}
	if cfg.StoreBackend != BackendSQLite || cfg.StorePath != "/var/lib/sessiond/session.db" {
		t.Errorf("file values not read: %+v", cfg)
	}
	if cfg.MaxAge != 4*time.Hour {
		t.Errorf("MaxAge = %v", cfg.MaxAge)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown backend", env: map[string]string{"SESSIONGUARD_STORE_BACKEND": "etcd"}},
		{name: "file without path", env: map[string]string{"SESSIONGUARD_STORE_BACKEND": "file"}},
		{name: "postgres without dsn", env: map[string]string{"SESSIONGUARD_STORE_BACKEND": "postgres"}},
		{name: "short secret", env: map[string]string{"SESSIONGUARD_JWT_SECRET": "short"}},
		{name: "threshold beyond max age", env: map[string]string{"SESSIONGUARD_SESSION_REFRESH_THRESHOLD": "9h"}},
		{name: "bad algorithm", env: map[string]string{"SESSIONGUARD_CRYPTO_ALGORITHM": "des"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
