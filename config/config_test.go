package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// writeConfigFile writes a config whose paths all live under a temp dir so
// Load's directory creation stays out of the working tree.
func writeConfigFile(t *testing.T, serverExtra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`server:
  data_dir: %[1]s/data
  snapshot_dir: %[1]s/snapshots
%[2]s
log:
  file: %[1]s/logs/app.log
db:
  file: %[1]s/attendance.db
gallery:
  file: %[1]s/gallery/gallery.gob
  reference_dir: %[1]s/references
attendance:
  dir: %[1]s/attendance
  export_dir: %[1]s/exports
`, dir, serverExtra)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadReadsSessionSecret(t *testing.T) {
	path := writeConfigFile(t, "  session_secret: keep-me-across-restarts")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.SessionSecret != "keep-me-across-restarts" {
		t.Errorf("SessionSecret = %q, want the configured value", cfg.Server.SessionSecret)
	}
}

func TestLoadSessionSecretDefaultsEmpty(t *testing.T) {
	path := writeConfigFile(t, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.SessionSecret != "" {
		t.Errorf("SessionSecret = %q, want empty so a random one is generated", cfg.Server.SessionSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Matcher.Threshold != 30.0 {
		t.Errorf("matcher threshold = %v, want 30.0", cfg.Matcher.Threshold)
	}
	if cfg.Session.CooldownSeconds != 5 {
		t.Errorf("cooldown = %d, want 5", cfg.Session.CooldownSeconds)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("port = %d, want 3000", cfg.Server.Port)
	}
}
