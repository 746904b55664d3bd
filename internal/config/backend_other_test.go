//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frontdesk", "config.json")

	b := newFileBackend(path)
	if err := b.SetString("speech.lang", "es"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := b.SetInt("server.port", 8123); err != nil {
		t.Fatalf("SetInt: %v", err)
	}

	reloaded := newFileBackend(path)
	if v, ok, err := reloaded.GetString("speech.lang"); err != nil || !ok || v != "es" {
		t.Errorf("GetString = %q, %v, %v", v, ok, err)
	}
	if v, ok, err := reloaded.GetInt("server.port"); err != nil || !ok || v != 8123 {
		t.Errorf("GetInt = %d, %v, %v", v, ok, err)
	}

	if err := reloaded.Delete("speech.lang"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := newFileBackend(path).GetString("speech.lang"); ok {
		t.Error("deleted key still present")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestSecretsFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if _, err := keychainGet(keychainService, "livekit_api_secret"); err == nil {
		t.Fatal("expected error before any secret is stored")
	}
	if err := keychainSet(keychainService, "livekit_api_secret", "abc"); err != nil {
		t.Fatalf("keychainSet: %v", err)
	}
	v, err := keychainReader{}.Get(keychainService, "livekit_api_secret")
	if err != nil || v != "abc" {
		t.Errorf("Get = %q, %v", v, err)
	}
}
