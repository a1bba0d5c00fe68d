package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnBadNumbers(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "0")
	t.Setenv("SALE_NUMBER_ATTEMPTS", "many")
	t.Setenv("PERMISSION_CACHE_TTL_SECONDS", "0")

	cfg := Load()
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected token ttl fallback 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.SaleNumberAttempts != 5 {
		t.Fatalf("expected sale number attempts fallback 5, got %d", cfg.SaleNumberAttempts)
	}
	if cfg.PermissionCacheTTLSeconds != 0 {
		t.Fatalf("expected zero ttl to disable the permission cache, got %d", cfg.PermissionCacheTTLSeconds)
	}
}

func TestLoadSplitsKafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	t.Setenv("SEED_DATA", "false")

	cfg := Load()
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "kafka-1:9092" || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.SeedData {
		t.Fatalf("expected SEED_DATA=false to disable seeding")
	}
}
