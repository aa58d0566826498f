package config

import (
	"path/filepath"
	"testing"

	"github.com/nyxlink/p2pchat/internal/model"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() config should validate cleanly: %v", err)
	}
}

func TestValidateAccumulatesAllProblems(t *testing.T) {
	cfg := Config{} // every field zero

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected a validation error for the zero config")
	}

	se, ok := err.(*model.SettingError)
	if !ok {
		t.Fatalf("expected *model.SettingError, got %T: %v", err, err)
	}
	if len(se.Problems) < 5 {
		t.Fatalf("expected every zero-value field to be reported, got %d problems: %v", len(se.Problems), se.Problems)
	}
}

func TestValidateHeartbeatMustBeLessThanTTL(t *testing.T) {
	cfg := Default()
	cfg.Presence.HeartbeatSeconds = cfg.Presence.TTLSeconds

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected heartbeat == ttl to fail validation")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	want := Default()
	want.Profile.Name = "nile"
	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Profile.Name != want.Profile.Name {
		t.Fatalf("got profile name %q, want %q", got.Profile.Name, want.Profile.Name)
	}
	if len(got.Network.ListenAddrs) != len(want.Network.ListenAddrs) {
		t.Fatalf("listen addrs mismatch: got %v want %v", got.Network.ListenAddrs, want.Network.ListenAddrs)
	}
}

func TestEnsureCreatesDefaultOnFirstCall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, created, err := Ensure(path)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !created {
		t.Fatal("expected created=true on first call")
	}
	if cfg.Profile.Name != Default().Profile.Name {
		t.Fatalf("expected the default profile name, got %q", cfg.Profile.Name)
	}

	_, created, err = Ensure(path)
	if err != nil {
		t.Fatalf("Ensure (second call): %v", err)
	}
	if created {
		t.Fatal("expected created=false once the file exists")
	}
}
