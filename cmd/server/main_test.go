package main

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"tiendapos/backend/internal/config"
	"tiendapos/backend/internal/store/memory"
	"tiendapos/backend/internal/store/seed"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigRejectsTwoDatabases(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:  "0123456789abcdef0123456789abcdef",
		DatabaseURL: "postgres://localhost/pos",
		SQLitePath:  "pos.db",
	})
	if err == nil {
		t.Fatalf("expected ambiguous database config to be rejected")
	}
}

func TestOpenRepositoryDefaultsToSeededMemory(t *testing.T) {
	repo, closers, err := openRepository(context.Background(), config.Config{SeedData: true}, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(closers) != 0 {
		t.Fatalf("expected nothing to close for the memory store")
	}
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", repo)
	}
	if _, err := repo.GetUser(context.Background(), seed.UserAdmin); err != nil {
		t.Fatalf("expected seeded admin: %v", err)
	}
}

func TestOpenRepositoryMigratesAndSeedsSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos.db")
	cfg := config.Config{SQLitePath: path, SeedData: true}

	repo, closers, err := openRepository(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	branches, err := repo.ListBranches(context.Background())
	if err != nil {
		t.Fatalf("list branches: %v", err)
	}
	if len(branches) != 3 {
		t.Fatalf("expected 3 seeded branches, got %d", len(branches))
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	// Reopening must not seed twice.
	repo, closers, err = openRepository(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}()
	roles, err := repo.ListRoles(context.Background())
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(roles) != 5 {
		t.Fatalf("expected 5 roles after reopening, got %d", len(roles))
	}
}
