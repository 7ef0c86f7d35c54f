package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigWithProgramFile(t *testing.T) {
	program := filepath.Join(t.TempDir(), "program.toml")
	if err := os.WriteFile(program, []byte("unit_amount = 500\n"), 0o644); err != nil {
		t.Fatalf("write program: %v", err)
	}
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("CARIYA_PROGRAM_FILE", program)
	t.Setenv("PORT", "8099")

	cfg, prog, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8099" || prog.UnitAmount != 500 {
		t.Fatalf("unexpected config %+v / program %+v", cfg, prog)
	}

	c, err := InitComponents(context.Background(), SetupLogger("test").Logger, cfg, prog)
	if err != nil {
		t.Fatalf("InitComponents: %v", err)
	}
	defer c.Cleanup()
	if c.Engine.Unit().Cents != 50000 {
		t.Fatalf("unit = %s, want 500.00", c.Engine.Unit())
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("DATA_BACKEND", "paper")
	if _, _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CARIYA_TEST_VALUE=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	t.Setenv("CARIYA_TEST_VALUE", "")
	os.Unsetenv("CARIYA_TEST_VALUE")

	LoadEnvFile()
	if got := os.Getenv("CARIYA_TEST_VALUE"); got != "from-dotenv" {
		t.Fatalf("CARIYA_TEST_VALUE = %q", got)
	}
}
