package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Data.DataDir != "./data" {
		t.Fatalf("expected default data dir, got %q", cfg.Data.DataDir)
	}
	if !cfg.Risk.PaperTrading {
		t.Fatalf("expected paper trading on by default")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := []byte("server:\n  port: 9999\ndata:\n  dataDir: /var/lib/trading\n")
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("expected overridden port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Data.DataDir != "/var/lib/trading" {
		t.Fatalf("expected overridden data dir, got %q", cfg.Data.DataDir)
	}
	// untouched defaults still present
	if cfg.Server.Host != "localhost" {
		t.Fatalf("expected default host preserved, got %q", cfg.Server.Host)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := []byte("server:\n  portt: 9999\n") // typo'd key
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown config key, got nil")
	}
}

func TestLoad_InvalidPortRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for port 0")
	}
}

func TestRuleConfig_ToTypes_UnknownAlgorithmRejected(t *testing.T) {
	rc := RuleConfig{Name: "r1", Algorithm: "made_up_algo"}
	if _, err := rc.ToTypes(); err == nil {
		t.Fatalf("expected error for unknown algorithm")
	}
}

func TestRuleConfig_ToTypes_KnownAlgorithm(t *testing.T) {
	rc := RuleConfig{
		Name: "r1", Algorithm: string(types.AlgoTokenBucket),
		RequestsPerSec: 10, BurstSize: 10,
		PathPatterns: []string{"/api/*"}, Methods: []string{"GET"}, Priority: 1,
	}
	rule, err := rc.ToTypes()
	if err != nil {
		t.Fatalf("ToTypes: %v", err)
	}
	if rule.Algorithm != types.AlgoTokenBucket {
		t.Fatalf("expected token bucket, got %s", rule.Algorithm)
	}
}
