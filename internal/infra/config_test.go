package infra

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cache := t.TempDir()
	t.Setenv("CACHE_DIR", cache)
	t.Setenv("JOB_STORE", "")
	t.Setenv("PORT", "")
	t.Setenv("JOB_EXPIRY_SECONDS", "")
	t.Setenv("SWEEP_INTERVAL_SECONDS", "")
	t.Setenv("RETRIEVAL_TIMEOUT_SECONDS", "")
	t.Setenv("COOKIES_FILE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Fatalf("Port mismatch: got %q want 8000", cfg.Port)
	}
	if cfg.StoreBackend != StoreBackendFile {
		t.Fatalf("StoreBackend mismatch: got %q", cfg.StoreBackend)
	}
	if cfg.RecordsDir != filepath.Join(cache, "tasks") || cfg.LocksDir != filepath.Join(cache, "locks") {
		t.Fatalf("unexpected roots: records=%q locks=%q", cfg.RecordsDir, cfg.LocksDir)
	}
	if cfg.JobExpiry != 5*time.Minute {
		t.Fatalf("JobExpiry mismatch: got %v", cfg.JobExpiry)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Fatalf("SweepInterval mismatch: got %v", cfg.SweepInterval)
	}
	if cfg.RetrievalTimeout != 0 {
		t.Fatalf("RetrievalTimeout should default to none, got %v", cfg.RetrievalTimeout)
	}
	if cfg.CookiesFile != filepath.Join(cache, "cookies.txt") {
		t.Fatalf("CookiesFile mismatch: got %q", cfg.CookiesFile)
	}
	if !cfg.SweeperEnabled {
		t.Fatalf("SweeperEnabled should default to true")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("CACHE_DIR", t.TempDir())
	t.Setenv("JOB_EXPIRY_SECONDS", "90")
	t.Setenv("SWEEP_INTERVAL_SECONDS", "5")
	t.Setenv("RETRIEVAL_TIMEOUT_SECONDS", "600")
	t.Setenv("WORKER_CONCURRENCY", "2")
	t.Setenv("SWEEPER_ENABLED", "false")
	t.Setenv("PROXY_URL", "socks5://127.0.0.1:1080")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JobExpiry != 90*time.Second || cfg.SweepInterval != 5*time.Second {
		t.Fatalf("durations mismatch: expiry=%v interval=%v", cfg.JobExpiry, cfg.SweepInterval)
	}
	if cfg.RetrievalTimeout != 10*time.Minute {
		t.Fatalf("RetrievalTimeout mismatch: %v", cfg.RetrievalTimeout)
	}
	if cfg.WorkerConcurrency != 2 || cfg.SweeperEnabled {
		t.Fatalf("unexpected worker settings: %+v", cfg)
	}
	if cfg.ProxyURL != "socks5://127.0.0.1:1080" {
		t.Fatalf("ProxyURL mismatch: %q", cfg.ProxyURL)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown store", env: map[string]string{"JOB_STORE": "redis"}},
		{name: "postgres without url", env: map[string]string{"JOB_STORE": "postgres", "DATABASE_URL": ""}},
		{name: "zero workers", env: map[string]string{"WORKER_CONCURRENCY": "0"}},
		{name: "zero expiry", env: map[string]string{"JOB_EXPIRY_SECONDS": "0"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("CACHE_DIR", t.TempDir())
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	t.Setenv("CACHE_DIR", filepath.Join(t.TempDir(), "nested", "cache"))
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, dir := range []string{cfg.RecordsDir, cfg.LocksDir, cfg.DownloadsDir} {
		if _, err := filepath.Abs(dir); err != nil {
			t.Fatalf("abs %s: %v", dir, err)
		}
	}
}
