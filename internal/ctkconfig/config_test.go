package ctkconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_EnvSubstitution(t *testing.T) {
	content := `
store:
  dir: ${STORE_DIR}
logging:
  format: ${LOG_FORMAT:-text}
`
	tmpfile, err := os.CreateTemp("", "config_*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	storeDir := t.TempDir()
	os.Setenv("STORE_DIR", storeDir)
	defer os.Unsetenv("STORE_DIR")

	cfg, err := LoadConfig(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	abs, _ := filepath.Abs(storeDir)
	if cfg.Store.Dir != abs {
		t.Errorf("Expected Store.Dir %s, got %s", abs, cfg.Store.Dir)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected Logging.Format text (default), got %s", cfg.Logging.Format)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	content := `store:
  dir: .
`
	tmpfile, err := os.CreateTemp("", "config_defaults_*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.VFS.MinTTLSeconds != 5 {
		t.Errorf("Expected MinTTLSeconds 5 (default), got %d", cfg.VFS.MinTTLSeconds)
	}
	if cfg.VFS.MaxTTLSeconds != 60 {
		t.Errorf("Expected MaxTTLSeconds 60 (default), got %d", cfg.VFS.MaxTTLSeconds)
	}
	if cfg.Views.Dir == "" {
		t.Error("Expected Views.Dir to default to a non-empty path")
	}
}

func TestLoadConfig_RejectsStoreDirThatIsAFile(t *testing.T) {
	notADir, err := os.CreateTemp("", "not_a_dir_*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(notADir.Name())
	notADir.Close()

	content := "store:\n  dir: " + notADir.Name() + "\n"
	tmpfile, err := os.CreateTemp("", "config_bad_dir_*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	tmpfile.Close()

	if _, err := LoadConfig(tmpfile.Name()); err == nil {
		t.Error("Expected LoadConfig to reject a store.dir that resolves to a file")
	}
}
