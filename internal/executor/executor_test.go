package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/shaiso/Conduit/internal/domain"
	"github.com/shaiso/Conduit/internal/engine"
	"github.com/shaiso/Conduit/internal/strategy"
)

// fakeResolver возвращает подготовленные подключения по источнику.
type fakeResolver struct {
	conns map[string]*domain.Connection
}

func (r *fakeResolver) Resolve(ctx context.Context, source string) (*domain.Connection, domain.Secrets, error) {
	conn, ok := r.conns[source]
	if !ok {
		return nil, nil, fmt.Errorf("connection not found: %s", source)
	}
	return conn, domain.Secrets{"password": "s3cret"}, nil
}

// fakeStrategy — базовая стратегия, записывающая вызовы.
type fakeStrategy struct {
	key       string
	browsed   []string
	readPaths []string
}

func (f *fakeStrategy) Key() string { return f.key }

func (f *fakeStrategy) TestConnection(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) error {
	return nil
}

func (f *fakeStrategy) GetClient(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) (any, func() error, error) {
	return nil, func() error { return nil }, nil
}

func (f *fakeStrategy) BrowsePath(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) ([]strategy.BrowseEntry, error) {
	f.browsed = pathParts
	return []strategy.BrowseEntry{{Name: "x", Type: "file"}}, nil
}

func (f *fakeStrategy) GetContent(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) (*strategy.Content, error) {
	f.readPaths = pathParts
	return &strategy.Content{Content: "body"}, nil
}

// fakeQueryStrategy дополнительно выполняет SQL-запросы.
type fakeQueryStrategy struct {
	fakeStrategy
	lastQuery  string
	lastParams map[string]any
}

func (f *fakeQueryStrategy) ExecuteQuery(ctx context.Context, query string, params map[string]any, conn *domain.Connection, secrets domain.Secrets) (any, error) {
	f.lastQuery = query
	f.lastParams = params
	return map[string]any{"data": []any{}, "count": 0}, nil
}

// fakeSessionProvider — stateful-стратегия с записью сессионных команд.
type fakeSessionProvider struct {
	fakeStrategy
	lastCmd   *strategy.SessionCommand
	lastIndex int
}

type fakeSession struct{ id string }

func (s *fakeSession) ID() string { return s.id }

func (f *fakeSessionProvider) StartSession(ctx context.Context, conn *domain.Connection, secrets domain.Secrets, vars map[string]any) (strategy.Session, error) {
	return &fakeSession{id: "sess-1"}, nil
}

func (f *fakeSessionProvider) ExecuteStep(ctx context.Context, session strategy.Session, cmd *strategy.SessionCommand, stepIndex int) (any, error) {
	f.lastCmd = cmd
	f.lastIndex = stepIndex
	return map[string]any{"status": "success"}, nil
}

func (f *fakeSessionProvider) EndSession(ctx context.Context, session strategy.Session) error {
	return nil
}

// fakeTransformer записывает вызовы run_transform.
type fakeTransformer struct {
	lastPath string
	lastCtx  map[string]any
}

func (f *fakeTransformer) Run(ctx context.Context, scriptPath string, runContext map[string]any) (any, error) {
	f.lastPath = scriptPath
	f.lastCtx = runContext
	return map[string]any{"results": []any{}}, nil
}

func conn(providerKey string) *domain.Connection {
	return &domain.Connection{
		ID:      "user:test",
		Name:    "test",
		Catalog: &domain.Catalog{ProviderKey: providerKey},
	}
}

func newExecutor(t *testing.T, reg *strategy.Registry, res ConnectionResolver, tr Transformer, home string) *StepExecutor {
	t.Helper()
	return New(Config{
		Resolver:    res,
		Registry:    reg,
		Transformer: tr,
		Renderer:    engine.NewRenderer(home),
		Home:        home,
	})
}

func TestExecute_SQLQuery(t *testing.T) {
	strat := &fakeQueryStrategy{fakeStrategy: fakeStrategy{key: "sql-postgres"}}
	reg := strategy.NewRegistry()
	reg.MustRegister(strat)
	res := &fakeResolver{conns: map[string]*domain.Connection{"user:db": conn("sql-postgres")}}

	ex := newExecutor(t, reg, res, nil, "")
	rc := engine.NewRunContext(map[string]any{"limit": 5}, nil)

	step := &domain.Step{
		ID:               "q1",
		Name:             "Query",
		ConnectionSource: "user:db",
		Run: domain.Action{
			"action":     domain.ActionRunSQLQuery,
			"query":      "SELECT * FROM t LIMIT {{ script_input.limit }}",
			"parameters": map[string]any{"region": "eu"},
		},
	}

	result, err := ex.Execute(context.Background(), step, rc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected result")
	}
	if strat.lastQuery != "SELECT * FROM t LIMIT 5" {
		t.Errorf("unexpected query: %q", strat.lastQuery)
	}
	if strat.lastParams["region"] != "eu" {
		t.Errorf("unexpected params: %v", strat.lastParams)
	}
}

func TestExecute_SQLQueryFromFile(t *testing.T) {
	home := t.TempDir()
	queryPath := filepath.Join(home, "queries", "report.sql")
	if err := os.MkdirAll(filepath.Dir(queryPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(queryPath, []byte("SELECT 42"), 0o644); err != nil {
		t.Fatal(err)
	}

	strat := &fakeQueryStrategy{fakeStrategy: fakeStrategy{key: "sql-postgres"}}
	reg := strategy.NewRegistry()
	reg.MustRegister(strat)
	res := &fakeResolver{conns: map[string]*domain.Connection{"user:db": conn("sql-postgres")}}

	ex := newExecutor(t, reg, res, nil, home)
	rc := engine.NewRunContext(nil, nil)

	step := &domain.Step{
		ID:               "q1",
		Name:             "Query from file",
		ConnectionSource: "user:db",
		Run: domain.Action{
			"action": domain.ActionRunSQLQuery,
			"query":  "file:queries/report.sql",
		},
	}

	if _, err := ex.Execute(context.Background(), step, rc, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strat.lastQuery != "SELECT 42" {
		t.Errorf("expected query loaded from file, got %q", strat.lastQuery)
	}
}

func TestExecute_BrowsePath(t *testing.T) {
	strat := &fakeStrategy{key: "filesystem"}
	reg := strategy.NewRegistry()
	reg.MustRegister(strat)
	res := &fakeResolver{conns: map[string]*domain.Connection{"user:fs": conn("filesystem")}}

	ex := newExecutor(t, reg, res, nil, "")
	rc := engine.NewRunContext(nil, nil)

	step := &domain.Step{
		ID:               "ls",
		Name:             "List",
		ConnectionSource: "user:fs",
		Run:              domain.Action{"action": domain.ActionBrowsePath, "path": "a/b/c"},
	}

	if _, err := ex.Execute(context.Background(), step, rc, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(strat.browsed) != 3 || strat.browsed[0] != "a" || strat.browsed[2] != "c" {
		t.Errorf("path should be split into segments, got %v", strat.browsed)
	}
}

func TestExecute_DispatchError(t *testing.T) {
	// Базовая стратегия не умеет run_python_script
	strat := &fakeStrategy{key: "filesystem"}
	reg := strategy.NewRegistry()
	reg.MustRegister(strat)
	res := &fakeResolver{conns: map[string]*domain.Connection{"user:fs": conn("filesystem")}}

	ex := newExecutor(t, reg, res, nil, "")
	rc := engine.NewRunContext(nil, nil)

	step := &domain.Step{
		ID:               "py",
		Name:             "Run script",
		ConnectionSource: "user:fs",
		Run:              domain.Action{"action": domain.ActionRunPythonScript, "script_path": "x.py"},
	}

	_, err := ex.Execute(context.Background(), step, rc, nil)
	var derr *DispatchError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DispatchError, got %v", err)
	}
	if derr.Action != domain.ActionRunPythonScript || derr.ProviderKey != "filesystem" {
		t.Errorf("error should name action and provider, got %+v", derr)
	}
	if !errors.Is(err, strategy.ErrNotSupported) {
		t.Error("DispatchError should unwrap to ErrNotSupported")
	}
	if derr.Kind() != "DispatchError" {
		t.Errorf("expected DispatchError kind, got %q", derr.Kind())
	}
}

func TestExecute_ConnectionRequired(t *testing.T) {
	reg := strategy.NewRegistry()
	ex := newExecutor(t, reg, &fakeResolver{}, nil, "")
	rc := engine.NewRunContext(nil, nil)

	step := &domain.Step{
		ID:   "q",
		Name: "No connection",
		Run:  domain.Action{"action": domain.ActionRunSQLQuery, "query": "SELECT 1"},
	}

	_, err := ex.Execute(context.Background(), step, rc, nil)
	if !errors.Is(err, ErrConnectionRequired) {
		t.Fatalf("expected ErrConnectionRequired, got %v", err)
	}

	var rerr *ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResolutionError, got %T", err)
	}
	if rerr.Kind() != "ResolutionError" {
		t.Errorf("expected ResolutionError kind, got %q", rerr.Kind())
	}
}

func TestExecute_ResolveFailure(t *testing.T) {
	reg := strategy.NewRegistry()
	ex := newExecutor(t, reg, &fakeResolver{}, nil, "")
	rc := engine.NewRunContext(nil, nil)

	step := &domain.Step{
		ID:               "q",
		Name:             "Bad source",
		ConnectionSource: "user:ghost",
		Run:              domain.Action{"action": domain.ActionRunSQLQuery, "query": "SELECT 1"},
	}

	_, err := ex.Execute(context.Background(), step, rc, nil)
	var rerr *ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if rerr.Source != "user:ghost" {
		t.Errorf("error should name the source, got %q", rerr.Source)
	}
}

func TestExecute_BrowserStep(t *testing.T) {
	prov := &fakeSessionProvider{fakeStrategy: fakeStrategy{key: "browser-session"}}
	reg := strategy.NewRegistry()
	reg.MustRegister(prov)

	ex := newExecutor(t, reg, &fakeResolver{}, nil, "")
	rc := engine.NewRunContext(nil, nil)
	sess := &SessionState{
		Provider:    prov,
		ProviderKey: "browser-session",
		Session:     &fakeSession{id: "sess-1"},
	}

	step := &domain.Step{
		ID:   "step_12",
		Name: "Click submit",
		Run: domain.Action{
			"action": "browser_click",
			"target": "#submit",
			"text":   "go",
		},
	}

	if _, err := ex.Execute(context.Background(), step, rc, sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cmd := prov.lastCmd
	if cmd == nil {
		t.Fatal("session command not dispatched")
	}
	if cmd.Type != "click" {
		t.Errorf("command type should drop the browser_ prefix, got %q", cmd.Type)
	}
	if cmd.Name != "Click submit" || cmd.Text != "go" {
		t.Errorf("unexpected command: %+v", cmd)
	}
	if cmd.Element.Locators["css_selector"] != "#submit" {
		t.Errorf("target should map to css_selector locator, got %v", cmd.Element.Locators)
	}
	if prov.lastIndex != 12 {
		t.Errorf("step index should come from ID digits, got %d", prov.lastIndex)
	}
}

func TestExecute_BrowserWithoutSession(t *testing.T) {
	reg := strategy.NewRegistry()
	ex := newExecutor(t, reg, &fakeResolver{}, nil, "")
	rc := engine.NewRunContext(nil, nil)

	step := &domain.Step{
		ID:   "b1",
		Name: "Click",
		Run:  domain.Action{"action": "browser_click", "target": "#x"},
	}

	_, err := ex.Execute(context.Background(), step, rc, nil)
	if !errors.Is(err, ErrSessionRequired) {
		t.Fatalf("expected ErrSessionRequired, got %v", err)
	}
}

func TestExecute_SessionSetupNoop(t *testing.T) {
	// Шаг против стратегии активной сессии — no-op успех
	prov := &fakeSessionProvider{fakeStrategy: fakeStrategy{key: "browser-session"}}
	reg := strategy.NewRegistry()
	reg.MustRegister(prov)
	res := &fakeResolver{conns: map[string]*domain.Connection{"user:bro": conn("browser-session")}}

	ex := newExecutor(t, reg, res, nil, "")
	rc := engine.NewRunContext(nil, nil)
	sess := &SessionState{Provider: prov, ProviderKey: "browser-session", Session: &fakeSession{id: "s"}}

	step := &domain.Step{
		ID:               "setup",
		Name:             "Open browser",
		ConnectionSource: "user:bro",
		Run:              domain.Action{"action": domain.ActionBrowsePath, "path": "/"},
	}

	result, err := ex.Execute(context.Background(), step, rc, sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", result)
	}
	if m["status"] != "success" {
		t.Errorf("expected success status, got %v", m["status"])
	}
	if m["message"] != `Session setup step "Open browser" completed.` {
		t.Errorf("unexpected message: %v", m["message"])
	}
	if len(prov.browsed) != 0 {
		t.Error("setup step must not hit the strategy")
	}
}

func TestExecute_Transform(t *testing.T) {
	tr := &fakeTransformer{}
	reg := strategy.NewRegistry()
	ex := newExecutor(t, reg, &fakeResolver{}, tr, "/opt/conduit")
	rc := engine.NewRunContext(nil, nil)

	step := &domain.Step{
		ID:   "t1",
		Name: "Transform",
		Run: domain.Action{
			"action":      domain.ActionRunTransform,
			"script_path": "transforms/clean.transformer.yaml",
			"input_data": map[string]any{
				"data":             []any{map[string]any{"id": 1}},
				"query_parameters": map[string]any{"run_date": "2026-03-01"},
			},
		},
	}

	if _, err := ex.Execute(context.Background(), step, rc, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tr.lastPath != "/opt/conduit/transforms/clean.transformer.yaml" {
		t.Errorf("script path should resolve against home, got %q", tr.lastPath)
	}
	rows, ok := tr.lastCtx["initial_input"].([]any)
	if !ok || len(rows) != 1 {
		t.Errorf("initial_input should carry input_data.data, got %v", tr.lastCtx["initial_input"])
	}
	params, ok := tr.lastCtx["query_parameters"].(map[string]any)
	if !ok || params["run_date"] != "2026-03-01" {
		t.Errorf("unexpected query_parameters: %v", tr.lastCtx["query_parameters"])
	}
}

func TestStepIndexFromID(t *testing.T) {
	tests := []struct {
		id       string
		expected int
	}{
		{"step_7", 7},
		{"12", 12},
		{"s1x2", 12},
		{"setup", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := stepIndexFromID(tt.id); got != tt.expected {
			t.Errorf("stepIndexFromID(%q): expected %d, got %d", tt.id, tt.expected, got)
		}
	}
}

func TestPathParts(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		expected []string
	}{
		{"string path", "a/b", []string{"a", "b"}},
		{"leading slash", "/root", []string{"root"}},
		{"list of any", []any{"x", "y"}, []string{"x", "y"}},
		{"list of strings", []string{"z"}, []string{"z"}},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pathParts(tt.in)
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("expected %v, got %v", tt.expected, got)
				}
			}
		})
	}
}
