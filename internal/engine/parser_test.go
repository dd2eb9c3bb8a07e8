package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shaiso/Conduit/internal/domain"
)

func validScript() *domain.Script {
	return &domain.Script{
		Name: "test",
		Steps: []domain.Step{
			{
				ID:   "fetch",
				Name: "Fetch rows",
				Run:  domain.Action{"action": domain.ActionRunSQLQuery, "query": "SELECT 1"},
			},
			{
				ID:        "save",
				Name:      "Save rows",
				DependsOn: []string{"fetch"},
				Run:       domain.Action{"action": domain.ActionWriteFiles, "files": map[string]any{}},
			},
		},
	}
}

func TestValidateScript_Valid(t *testing.T) {
	if err := ValidateScript(validScript()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateScript_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *domain.Script)
		wantErr error
	}{
		{
			name:    "nil script",
			mutate:  nil,
			wantErr: ErrEmptySteps,
		},
		{
			name:    "no steps",
			mutate:  func(s *domain.Script) { s.Steps = nil },
			wantErr: ErrEmptySteps,
		},
		{
			name:    "empty step ID",
			mutate:  func(s *domain.Script) { s.Steps[0].ID = "" },
			wantErr: ErrEmptyStepID,
		},
		{
			name:    "duplicate step ID",
			mutate:  func(s *domain.Script) { s.Steps[1].ID = "fetch" },
			wantErr: ErrDuplicateStepID,
		},
		{
			name:    "empty step name",
			mutate:  func(s *domain.Script) { s.Steps[1].Name = "" },
			wantErr: ErrEmptyStepName,
		},
		{
			name:    "no action tag",
			mutate:  func(s *domain.Script) { delete(s.Steps[0].Run, "action") },
			wantErr: ErrUnknownAction,
		},
		{
			name:    "unknown action",
			mutate:  func(s *domain.Script) { s.Steps[0].Run["action"] = "teleport" },
			wantErr: ErrUnknownAction,
		},
		{
			name:    "self dependency",
			mutate:  func(s *domain.Script) { s.Steps[0].DependsOn = []string{"fetch"} },
			wantErr: ErrSelfDependency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var script *domain.Script
			if tt.mutate != nil {
				script = validScript()
				tt.mutate(script)
			}
			err := ValidateScript(script)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateScript_TemplatedActionTag(t *testing.T) {
	// Шаблонный тег действия проверяется после рендеринга, не здесь
	script := validScript()
	script.Steps[0].Run["action"] = "{{ script_input.mode }}"

	if err := ValidateScript(script); err != nil {
		t.Fatalf("templated action tag should pass validation, got %v", err)
	}
}

func TestValidateScript_BrowserFamily(t *testing.T) {
	// Семейство browser_* открыто — любой суффикс валиден
	script := validScript()
	script.Steps[0].Run = domain.Action{"action": "browser_click", "target": "#submit"}

	if err := ValidateScript(script); err != nil {
		t.Fatalf("browser_* action should pass validation, got %v", err)
	}
}

func TestParseScript(t *testing.T) {
	data := []byte(`{
		"name": "demo",
		"steps": [
			{
				"id": "q1",
				"name": "Query",
				"connection_source": "user:db",
				"run": {"action": "run_sql_query", "query": "SELECT 1"}
			}
		]
	}`)

	script, err := ParseScript(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if script.Name != "demo" {
		t.Errorf("expected name demo, got %q", script.Name)
	}
	if len(script.Steps) != 1 || script.Steps[0].Run.Kind() != domain.ActionRunSQLQuery {
		t.Errorf("unexpected steps: %+v", script.Steps)
	}
}

func TestParseScript_BadJSON(t *testing.T) {
	if _, err := ParseScript([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestLoadScript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.conduit.json")
	content := `{
		"name": "file-demo",
		"steps": [
			{"id": "s1", "name": "Step", "run": {"action": "browse_path", "path": "/"}}
		]
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	script, err := LoadScript(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if script.Name != "file-demo" {
		t.Errorf("expected name file-demo, got %q", script.Name)
	}

	// Несуществующий файл
	if _, err := LoadScript(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
