package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSubstituteEnvVars(t *testing.T) {
	os.Setenv("CISTERN_TEST_PORT", "/dev/ttyUSB1")
	defer os.Unsetenv("CISTERN_TEST_PORT")

	in := "port: ${CISTERN_TEST_PORT}\nbaud: ${CISTERN_TEST_BAUD:-9600}"
	out := SubstituteEnvVars(in)
	want := "port: /dev/ttyUSB1\nbaud: 9600"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cistern.yaml")

	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Persistence.Backend = "sqlite"
	cfg.Persistence.Path = "/var/lib/cistern/nvstore.db"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Serial.Port != "/dev/ttyUSB0" || loaded.Persistence.Backend != "sqlite" {
		t.Fatalf("unexpected round trip: %+v", loaded)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/cistern.yaml"); err == nil {
		t.Fatal("expected an error loading a missing config file")
	}
}
