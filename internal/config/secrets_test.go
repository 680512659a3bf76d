package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSecret(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestResolveSecret_EnvOnly(t *testing.T) {
	t.Setenv("SCENEREEL_TEST_SECRET", "env-value")
	t.Setenv("SCENEREEL_TEST_SECRET_FILE", "")

	value, err := ResolveSecret("SCENEREEL_TEST_SECRET")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "env-value" {
		t.Errorf("got %q, want %q", value, "env-value")
	}
}

func TestResolveSecret_FileWinsOverEnv(t *testing.T) {
	t.Setenv("SCENEREEL_TEST_SECRET", "env-value")
	t.Setenv("SCENEREEL_TEST_SECRET_FILE", writeSecret(t, "file-value\n"))

	value, err := ResolveSecret("SCENEREEL_TEST_SECRET")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "file-value" {
		t.Errorf("got %q, want %q (file should win over env)", value, "file-value")
	}
}

func TestResolveSecret_NeitherSet(t *testing.T) {
	t.Setenv("SCENEREEL_TEST_SECRET", "")
	t.Setenv("SCENEREEL_TEST_SECRET_FILE", "")

	value, err := ResolveSecret("SCENEREEL_TEST_SECRET")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "" {
		t.Errorf("got %q, want empty string", value)
	}
}

func TestResolveSecret_FileNotFound(t *testing.T) {
	t.Setenv("SCENEREEL_TEST_SECRET_FILE", "/nonexistent/path/to/secret")

	if _, err := ResolveSecret("SCENEREEL_TEST_SECRET"); err == nil {
		t.Error("expected error when file does not exist")
	}
}

func TestResolveSecret_TrimsWhitespace(t *testing.T) {
	t.Setenv("SCENEREEL_TEST_SECRET_FILE", writeSecret(t, "  secret-value  \n\n"))

	value, err := ResolveSecret("SCENEREEL_TEST_SECRET")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "secret-value" {
		t.Errorf("got %q, want %q (whitespace should be trimmed)", value, "secret-value")
	}
}

func TestParseUserList(t *testing.T) {
	users := ParseUserList("admin:pw1, op:pw2,broken,:nouser,nopass:")
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d: %v", len(users), users)
	}
	if users["admin"] != "pw1" || users["op"] != "pw2" {
		t.Errorf("unexpected users: %v", users)
	}
}
