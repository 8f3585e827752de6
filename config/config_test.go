package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sgbd.yaml")
	body := "data_dir: /var/lib/sgbd\ncompact:\n  schedule: \"0 */15 * * * *\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/var/lib/sgbd" {
		t.Fatalf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Compact.Schedule != "0 */15 * * * *" {
		t.Fatalf("Compact.Schedule = %q", cfg.Compact.Schedule)
	}
}

func TestLoadDefaultsDataDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sgbd.yaml")
	if err := os.WriteFile(path, []byte("compact:\n  schedule: \"\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "./data" {
		t.Fatalf("DataDir = %q, want default", cfg.DataDir)
	}
}
