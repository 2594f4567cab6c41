package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GROUPIFY_DOCSTORE", "")
	t.Setenv("GROUPIFY_PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppPort != 8080 {
		t.Fatalf("expected default port got %d", cfg.AppPort)
	}
	if cfg.DocStore != DocStoreMemory {
		t.Fatalf("expected memory docstore got %q", cfg.DocStore)
	}
	if cfg.ObjectStore.Enabled() {
		t.Fatal("expected object store to be disabled without a bucket")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GROUPIFY_PORT", "9090")
	t.Setenv("GROUPIFY_DOCSTORE", "Postgres")
	t.Setenv("GROUPIFY_PROFILE_CACHE_TTL", "5s")
	t.Setenv("GROUPIFY_REPAIR_WORKERS", "not-a-number")
	t.Setenv("GROUPIFY_S3_BUCKET", "photos")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppPort != 9090 {
		t.Fatalf("expected port override got %d", cfg.AppPort)
	}
	if cfg.DocStore != DocStorePostgres {
		t.Fatalf("expected lower-cased backend got %q", cfg.DocStore)
	}
	if cfg.ProfileCacheTTL != 5*time.Second {
		t.Fatalf("expected ttl override got %v", cfg.ProfileCacheTTL)
	}
	if cfg.RepairWorkers != 2 {
		t.Fatalf("expected invalid int to fall back got %d", cfg.RepairWorkers)
	}
	if !cfg.ObjectStore.Enabled() {
		t.Fatal("expected object store to be enabled")
	}
}
