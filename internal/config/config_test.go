package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// chdir changes into dir for the duration of the test, restoring the
// previous working directory on cleanup. (testing.T.Chdir needs Go 1.24.)
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DATABASE_CONFIG_PATH", "")

	cfg := Load()
	if cfg.ServerAddr != ":8080" {
		t.Fatalf("ServerAddr = %q, want :8080", cfg.ServerAddr)
	}
	if cfg.TypingWindow() != 2*time.Second {
		t.Fatalf("TypingWindow = %v, want 2s", cfg.TypingWindow())
	}
	if cfg.PresenceTTL() != 60*time.Second {
		t.Fatalf("PresenceTTL = %v, want 60s", cfg.PresenceTTL())
	}
	if cfg.DBMaxConnections() != 20 {
		t.Fatalf("DBMaxConnections = %d, want 20", cfg.DBMaxConnections())
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "api.yaml")
	yaml := "server_addr: \":9090\"\ntyping_window_seconds: 5\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DATABASE_CONFIG_PATH", "")

	cfg := Load()
	if cfg.ServerAddr != ":9090" {
		t.Fatalf("ServerAddr = %q, want :9090", cfg.ServerAddr)
	}
	if cfg.TypingWindow() != 5*time.Second {
		t.Fatalf("TypingWindow = %v, want 5s", cfg.TypingWindow())
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	// Keys absent from the file keep their defaults.
	if cfg.MaxWSConnections != 10000 {
		t.Fatalf("MaxWSConnections = %d, want 10000", cfg.MaxWSConnections)
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "api.yaml")
	if err := os.WriteFile(path, []byte("server_addr: \":9090\"\n"), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DATABASE_CONFIG_PATH", "")
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("DATABASE_URL", "postgres://elsewhere/db")
	t.Setenv("SESSION_TTL_HOURS", "1")

	cfg := Load()
	if cfg.ServerAddr != ":7070" {
		t.Fatalf("ServerAddr = %q, want :7070", cfg.ServerAddr)
	}
	if cfg.DatabaseURL() != "postgres://elsewhere/db" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL())
	}
	if cfg.SessionTTL != time.Hour {
		t.Fatalf("SessionTTL = %v, want 1h", cfg.SessionTTL)
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("SOME_NUM", "42")
	if got := envInt("SOME_NUM", 7); got != 42 {
		t.Fatalf("envInt = %d, want 42", got)
	}
	t.Setenv("SOME_NUM", "not-a-number")
	if got := envInt("SOME_NUM", 7); got != 7 {
		t.Fatalf("envInt on garbage = %d, want fallback 7", got)
	}
	if got := envInt("UNSET_NUM_KEY", 7); got != 7 {
		t.Fatalf("envInt on unset = %d, want fallback 7", got)
	}
}
