package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const connYAML = `
name: My Database
catalog:
  id: community/postgres@v0.1.0
  connector_provider_key: sql-postgres
details:
  host: localhost
  port: 5432
  database: analytics
`

func writeHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	for _, dir := range []string{"connections", "secrets"} {
		if err := os.MkdirAll(filepath.Join(home, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	connPath := filepath.Join(home, "connections", "my-db.conn.yaml")
	if err := os.WriteFile(connPath, []byte(connYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	secretPath := filepath.Join(home, "secrets", "my-db.secret.env")
	secret := "PASSWORD=hunter2\nAPI_KEY=abc\nEMPTY=\n"
	if err := os.WriteFile(secretPath, []byte(secret), 0o600); err != nil {
		t.Fatal(err)
	}

	return home
}

func TestResolve_UserScheme(t *testing.T) {
	home := writeHome(t)
	r := New(home, nil)

	conn, secrets, err := r.Resolve(context.Background(), "user:my-db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if conn.Name != "My Database" {
		t.Errorf("unexpected name: %q", conn.Name)
	}
	if conn.ProviderKey() != "sql-postgres" {
		t.Errorf("unexpected provider key: %q", conn.ProviderKey())
	}
	if conn.Detail("host") != "localhost" {
		t.Errorf("unexpected host detail: %q", conn.Detail("host"))
	}

	// ID по умолчанию совпадает с источником
	if conn.ID != "user:my-db" {
		t.Errorf("unexpected ID: %q", conn.ID)
	}

	// Ключи секретов приводятся к нижнему регистру, пустые отбрасываются
	if secrets["password"] != "hunter2" || secrets["api_key"] != "abc" {
		t.Errorf("unexpected secrets: %v", secrets)
	}
	if _, ok := secrets["empty"]; ok {
		t.Error("empty secret values must be dropped")
	}
}

func TestResolve_FileScheme(t *testing.T) {
	home := writeHome(t)
	r := New(home, nil)

	path := filepath.Join(home, "connections", "my-db.conn.yaml")
	conn, _, err := r.Resolve(context.Background(), "file:"+path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.ProviderKey() != "sql-postgres" {
		t.Errorf("unexpected provider key: %q", conn.ProviderKey())
	}
}

func TestResolve_EnvOverride(t *testing.T) {
	home := writeHome(t)
	r := New(home, nil)

	t.Setenv("CONDUIT_SECRET_PASSWORD", "override")
	t.Setenv("CONDUIT_SECRET_TOKEN", "fresh")

	_, secrets, err := r.Resolve(context.Background(), "user:my-db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if secrets["password"] != "override" {
		t.Errorf("env should override file secret, got %q", secrets["password"])
	}
	if secrets["token"] != "fresh" {
		t.Errorf("env-only secret missing, got %v", secrets)
	}
}

func TestResolve_NoSecretsFile(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, "connections")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plain.conn.yaml"), []byte(connYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(home, nil)
	_, secrets, err := r.Resolve(context.Background(), "user:plain")
	if err != nil {
		t.Fatalf("missing secrets file must not fail resolution: %v", err)
	}
	if secrets == nil {
		t.Error("secrets map should be non-nil")
	}
}

func TestResolve_Errors(t *testing.T) {
	home := writeHome(t)
	r := New(home, nil)

	// Неизвестная схема
	_, _, err := r.Resolve(context.Background(), "vault:my-db")
	if !errors.Is(err, ErrUnknownScheme) {
		t.Errorf("expected ErrUnknownScheme, got %v", err)
	}

	// Несуществующее подключение
	_, _, err = r.Resolve(context.Background(), "user:ghost")
	if !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("expected ErrConnectionNotFound, got %v", err)
	}

	// Битый YAML
	path := filepath.Join(home, "connections", "bad.conn.yaml")
	if err := os.WriteFile(path, []byte("{not: [valid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Resolve(context.Background(), "user:bad"); err == nil {
		t.Error("expected error for malformed connection file")
	}
}

func TestConnStem(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/home/x/connections/my-db.conn.yaml", "my-db"},
		{"plain.conn.yaml", "plain"},
		{"odd.yaml", "odd"},
	}
	for _, tt := range tests {
		if got := connStem(tt.path); got != tt.expected {
			t.Errorf("connStem(%q): expected %q, got %q", tt.path, tt.expected, got)
		}
	}
}
