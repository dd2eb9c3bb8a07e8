package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Conduit/internal/domain"
	"github.com/shaiso/Conduit/internal/engine"
	"github.com/shaiso/Conduit/internal/executor"
	"github.com/shaiso/Conduit/internal/strategy"
)

// fakeResolver возвращает одно и то же подключение для любого источника.
type fakeResolver struct {
	providerKey string
	failWith    error
}

func (r *fakeResolver) Resolve(ctx context.Context, source string) (*domain.Connection, domain.Secrets, error) {
	if r.failWith != nil {
		return nil, nil, r.failWith
	}
	return &domain.Connection{
		ID:      source,
		Name:    source,
		Catalog: &domain.Catalog{ProviderKey: r.providerKey},
	}, domain.Secrets{}, nil
}

// fakeStrategy выполняет запросы по подготовленной карте ответов.
type fakeStrategy struct {
	key     string
	results map[string]any // текст запроса → результат
	errs    map[string]error

	mu      sync.Mutex
	queries []string
}

func (f *fakeStrategy) Key() string { return f.key }

func (f *fakeStrategy) TestConnection(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) error {
	return nil
}

func (f *fakeStrategy) GetClient(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) (any, func() error, error) {
	return nil, func() error { return nil }, nil
}

func (f *fakeStrategy) BrowsePath(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) ([]strategy.BrowseEntry, error) {
	return nil, nil
}

func (f *fakeStrategy) GetContent(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) (*strategy.Content, error) {
	return nil, nil
}

func (f *fakeStrategy) ExecuteQuery(ctx context.Context, query string, params map[string]any, conn *domain.Connection, secrets domain.Secrets) (any, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	if err, ok := f.errs[query]; ok {
		return nil, err
	}
	if res, ok := f.results[query]; ok {
		return res, nil
	}
	return map[string]any{"query": query}, nil
}

// fakeSessionProvider считает открытия и закрытия сессий.
type fakeSessionProvider struct {
	fakeStrategy
	started int32
	ended   int32
}

type fakeSession struct{ id string }

func (s *fakeSession) ID() string { return s.id }

func (f *fakeSessionProvider) StartSession(ctx context.Context, conn *domain.Connection, secrets domain.Secrets, vars map[string]any) (strategy.Session, error) {
	atomic.AddInt32(&f.started, 1)
	return &fakeSession{id: "sess-1"}, nil
}

func (f *fakeSessionProvider) ExecuteStep(ctx context.Context, session strategy.Session, cmd *strategy.SessionCommand, stepIndex int) (any, error) {
	return map[string]any{"status": "success", "command": cmd.Type}, nil
}

func (f *fakeSessionProvider) EndSession(ctx context.Context, session strategy.Session) error {
	atomic.AddInt32(&f.ended, 1)
	return nil
}

func newOrchestrator(t *testing.T, reg *strategy.Registry, res executor.ConnectionResolver) *Orchestrator {
	t.Helper()
	ex := executor.New(executor.Config{
		Resolver: res,
		Registry: reg,
		Renderer: engine.NewRenderer(""),
	})
	return New(Config{
		Executor: ex,
		Resolver: res,
		Registry: reg,
	})
}

func sqlStep(id, name, query string, deps ...string) domain.Step {
	return domain.Step{
		ID:               id,
		Name:             name,
		ConnectionSource: "user:db",
		DependsOn:        deps,
		Run:              domain.Action{"action": domain.ActionRunSQLQuery, "query": query},
	}
}

func TestRun_Success(t *testing.T) {
	strat := &fakeStrategy{
		key: "sql-postgres",
		results: map[string]any{
			"SELECT a": map[string]any{"data": []any{map[string]any{"id": 1}}, "count": 1},
		},
	}
	reg := strategy.NewRegistry()
	reg.MustRegister(strat)
	o := newOrchestrator(t, reg, &fakeResolver{providerKey: "sql-postgres"})

	script := &domain.Script{
		Name: "demo",
		Steps: []domain.Step{
			sqlStep("s1", "First", "SELECT a"),
			sqlStep("s2", "Second", "SELECT b", "s1"),
		},
	}

	outcome, err := o.Run(context.Background(), script, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Failed() {
		t.Fatalf("run should succeed, failed step %q", outcome.FailedStep)
	}
	if outcome.Run.Status != domain.RunStatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", outcome.Run.Status)
	}

	// Результаты ключуются именами шагов
	if len(outcome.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(outcome.Results))
	}
	if _, ok := outcome.Results["First"]; !ok {
		t.Error("results should be keyed by step name")
	}
	first := outcome.Results["First"].(map[string]any)
	if first["count"] != 1 {
		t.Errorf("unexpected result for First: %v", first)
	}
}

func TestRun_ResultsFeedLaterGenerations(t *testing.T) {
	strat := &fakeStrategy{
		key: "sql-postgres",
		results: map[string]any{
			"SELECT a": map[string]any{"table": "events"},
		},
	}
	reg := strategy.NewRegistry()
	reg.MustRegister(strat)
	o := newOrchestrator(t, reg, &fakeResolver{providerKey: "sql-postgres"})

	script := &domain.Script{
		Name: "chained",
		Steps: []domain.Step{
			sqlStep("s1", "Pick table", "SELECT a"),
			sqlStep("s2", "Read table", "SELECT * FROM {{ steps.s1.result.table }}", "s1"),
		},
	}

	outcome, err := o.Run(context.Background(), script, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Failed() {
		t.Fatalf("run should succeed, failed step %q", outcome.FailedStep)
	}

	// Второй шаг видит результат первого по ID
	found := false
	for _, q := range strat.queries {
		if q == "SELECT * FROM events" {
			found = true
		}
	}
	if !found {
		t.Errorf("rendered query not executed, got %v", strat.queries)
	}
}

func TestRun_StepFailureAborts(t *testing.T) {
	strat := &fakeStrategy{
		key:  "sql-postgres",
		errs: map[string]error{"SELECT bad": errors.New("relation does not exist")},
	}
	reg := strategy.NewRegistry()
	reg.MustRegister(strat)
	o := newOrchestrator(t, reg, &fakeResolver{providerKey: "sql-postgres"})

	script := &domain.Script{
		Name: "failing",
		Steps: []domain.Step{
			sqlStep("s1", "Good", "SELECT a"),
			sqlStep("s2", "Bad", "SELECT bad", "s1"),
			sqlStep("s3", "Never", "SELECT c", "s2"),
		},
	}

	outcome, err := o.Run(context.Background(), script, nil, nil)
	if err != nil {
		t.Fatalf("step failure must not surface as error, got %v", err)
	}

	if !outcome.Failed() || outcome.FailedStep != "Bad" {
		t.Fatalf("expected failed step Bad, got %q", outcome.FailedStep)
	}
	if outcome.Run.Status != domain.RunStatusFailed {
		t.Errorf("expected FAILED, got %s", outcome.Run.Status)
	}

	// Ошибка записана как "<Kind>: <message>"
	entry, ok := outcome.Results["Bad"].(map[string]any)
	if !ok {
		t.Fatalf("expected error entry for Bad, got %v", outcome.Results["Bad"])
	}
	msg, _ := entry["error"].(string)
	if !strings.HasPrefix(msg, "StrategyError: ") {
		t.Errorf("error entry should carry the kind prefix, got %q", msg)
	}

	// Шаги не начатых поколений отсутствуют
	if _, ok := outcome.Results["Never"]; ok {
		t.Error("steps of aborted generations must not appear in results")
	}
	if _, ok := outcome.Results["Good"]; !ok {
		t.Error("completed steps must stay in results")
	}
}

func TestRun_ErrorKinds(t *testing.T) {
	// Типизированные ошибки сохраняют свой класс в записи результата
	strat := &fakeStrategy{
		key: "sql-postgres",
		errs: map[string]error{
			"SELECT x": &executor.DispatchError{Action: "run_sql_query", ProviderKey: "sql-postgres"},
		},
	}
	reg := strategy.NewRegistry()
	reg.MustRegister(strat)
	o := newOrchestrator(t, reg, &fakeResolver{providerKey: "sql-postgres"})

	script := &domain.Script{
		Name:  "kinds",
		Steps: []domain.Step{sqlStep("s1", "Dispatch", "SELECT x")},
	}

	outcome, err := o.Run(context.Background(), script, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := outcome.Results["Dispatch"].(map[string]any)
	if msg, _ := entry["error"].(string); !strings.HasPrefix(msg, "DispatchError: ") {
		t.Errorf("expected DispatchError prefix, got %q", entry["error"])
	}
}

func TestRun_Outputs(t *testing.T) {
	strat := &fakeStrategy{
		key: "sql-postgres",
		results: map[string]any{
			"SELECT a": map[string]any{
				"data": []any{map[string]any{"id": 7}},
			},
		},
	}
	reg := strategy.NewRegistry()
	reg.MustRegister(strat)
	o := newOrchestrator(t, reg, &fakeResolver{providerKey: "sql-postgres"})

	first := sqlStep("s1", "Fetch", "SELECT a")
	first.Outputs = map[string]string{
		"first_id": "data[0].id",
		"missing":  "data[0].ghost", // мягкий сбой извлечения
	}

	second := sqlStep("s2", "Use", "SELECT {{ steps.s1.outputs.first_id }}", "s1")

	script := &domain.Script{Name: "outputs", Steps: []domain.Step{first, second}}

	outcome, err := o.Run(context.Background(), script, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Failed() {
		t.Fatalf("extraction failure must not fail the run, failed step %q", outcome.FailedStep)
	}

	// Удачно извлечённый output доступен следующему поколению
	found := false
	for _, q := range strat.queries {
		if q == "SELECT 7" {
			found = true
		}
	}
	if !found {
		t.Errorf("output value not rendered into query, got %v", strat.queries)
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	reg := strategy.NewRegistry()
	o := newOrchestrator(t, reg, &fakeResolver{})

	tests := []struct {
		name   string
		script *domain.Script
	}{
		{
			name:   "empty script",
			script: &domain.Script{Name: "empty"},
		},
		{
			name: "cycle",
			script: &domain.Script{
				Name: "cycle",
				Steps: []domain.Step{
					sqlStep("a", "A", "SELECT 1", "b"),
					sqlStep("b", "B", "SELECT 2", "a"),
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Run(context.Background(), tt.script, nil, nil)

			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cerr.Kind() != "ConfigurationError" {
				t.Errorf("expected ConfigurationError kind, got %q", cerr.Kind())
			}
		})
	}
}

func TestRun_SessionLifecycle(t *testing.T) {
	prov := &fakeSessionProvider{fakeStrategy: fakeStrategy{key: "browser-session"}}
	reg := strategy.NewRegistry()
	reg.MustRegister(prov)
	o := newOrchestrator(t, reg, &fakeResolver{providerKey: "browser-session"})

	script := &domain.Script{
		Name:            "session",
		SessionProvider: "browser-session",
		Steps: []domain.Step{
			{
				ID:               "setup",
				Name:             "Open",
				ConnectionSource: "user:bro",
				Run:              domain.Action{"action": domain.ActionBrowsePath, "path": "/"},
			},
			{
				ID:        "click",
				Name:      "Click",
				DependsOn: []string{"setup"},
				Run:       domain.Action{"action": "browser_click", "target": "#ok"},
			},
		},
	}

	outcome, err := o.Run(context.Background(), script, nil, map[string]any{"user": "иван"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Failed() {
		t.Fatalf("run should succeed, failed step %q", outcome.FailedStep)
	}

	if got := atomic.LoadInt32(&prov.started); got != 1 {
		t.Errorf("expected exactly one StartSession, got %d", got)
	}
	if got := atomic.LoadInt32(&prov.ended); got != 1 {
		t.Errorf("expected exactly one EndSession, got %d", got)
	}

	// Setup-шаг схлопывается в no-op успех
	setup := outcome.Results["Open"].(map[string]any)
	if setup["status"] != "success" {
		t.Errorf("unexpected setup result: %v", setup)
	}
}

func TestRun_SessionTeardownOnFailure(t *testing.T) {
	prov := &fakeSessionProvider{fakeStrategy: fakeStrategy{key: "browser-session"}}
	failing := &failingSessionProvider{fakeSessionProvider: prov}
	reg := strategy.NewRegistry()
	reg.MustRegister(failing)
	o := newOrchestrator(t, reg, &fakeResolver{providerKey: "browser-session"})

	script := &domain.Script{
		Name:            "teardown",
		SessionProvider: "browser-session",
		Steps: []domain.Step{
			{
				ID:               "setup",
				Name:             "Open",
				ConnectionSource: "user:bro",
				Run:              domain.Action{"action": domain.ActionBrowsePath, "path": "/"},
			},
			{
				ID:        "fail",
				Name:      "Fail",
				DependsOn: []string{"setup"},
				Run:       domain.Action{"action": "browser_click", "target": "#boom"},
			},
		},
	}

	outcome, err := o.Run(context.Background(), script, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Failed() {
		t.Fatal("run should fail")
	}

	// Сессия закрыта несмотря на падение шага
	if got := atomic.LoadInt32(&prov.ended); got != 1 {
		t.Errorf("expected exactly one EndSession after failure, got %d", got)
	}
}

// failingSessionProvider роняет каждый сессионный шаг.
type failingSessionProvider struct {
	*fakeSessionProvider
}

func (f *failingSessionProvider) ExecuteStep(ctx context.Context, session strategy.Session, cmd *strategy.SessionCommand, stepIndex int) (any, error) {
	return nil, fmt.Errorf("element not found: %s", cmd.Element.Locators["css_selector"])
}

func TestRun_SessionConfigErrors(t *testing.T) {
	prov := &fakeStrategy{key: "sql-postgres"}
	reg := strategy.NewRegistry()
	reg.MustRegister(prov)
	o := newOrchestrator(t, reg, &fakeResolver{providerKey: "sql-postgres"})

	// Нет шага с connection_source
	script := &domain.Script{
		Name:            "no-setup",
		SessionProvider: "browser-session",
		Steps: []domain.Step{
			{ID: "s1", Name: "S", Run: domain.Action{"action": "browser_click", "target": "#x"}},
		},
	}
	_, err := o.Run(context.Background(), script, nil, nil)
	if !errors.Is(err, ErrSessionStepMissing) {
		t.Errorf("expected ErrSessionStepMissing, got %v", err)
	}

	// Стратегия без поддержки сессий
	script = &domain.Script{
		Name:            "no-sessions",
		SessionProvider: "sql-postgres",
		Steps:           []domain.Step{sqlStep("s1", "S", "SELECT 1")},
	}
	_, err = o.Run(context.Background(), script, nil, nil)
	if !errors.Is(err, ErrSessionUnsupported) {
		t.Errorf("expected ErrSessionUnsupported, got %v", err)
	}

	// Первый шаг с connection_source разрешился не в session_provider
	script = &domain.Script{
		Name:            "wrong-provider",
		SessionProvider: "browser-session",
		Steps:           []domain.Step{sqlStep("s1", "S", "SELECT 1")},
	}
	_, err = o.Run(context.Background(), script, nil, nil)
	if !errors.Is(err, ErrSessionProviderMismatch) {
		t.Errorf("expected ErrSessionProviderMismatch, got %v", err)
	}
}

// barrierStrategy пропускает запросы только когда все total вошли
// одновременно. Последовательное исполнение упирается в таймаут.
type barrierStrategy struct {
	fakeStrategy
	total   int32
	arrived int32
	release chan struct{}
}

func (b *barrierStrategy) ExecuteQuery(ctx context.Context, query string, params map[string]any, conn *domain.Connection, secrets domain.Secrets) (any, error) {
	if atomic.AddInt32(&b.arrived, 1) == b.total {
		close(b.release)
	}
	select {
	case <-b.release:
	case <-time.After(2 * time.Second):
		return nil, errors.New("step did not run concurrently with its generation")
	}
	return b.fakeStrategy.ExecuteQuery(ctx, query, params, conn, secrets)
}

func TestRun_GenerationConcurrency(t *testing.T) {
	// Независимые шаги образуют одно поколение и стартуют одновременно:
	// каждый запрос блокируется, пока не войдут все восемь.
	strat := &barrierStrategy{
		fakeStrategy: fakeStrategy{key: "sql-postgres"},
		total:        8,
		release:      make(chan struct{}),
	}
	reg := strategy.NewRegistry()
	reg.MustRegister(strat)
	o := newOrchestrator(t, reg, &fakeResolver{providerKey: "sql-postgres"})

	steps := make([]domain.Step, 0, 8)
	for i := 0; i < 8; i++ {
		steps = append(steps, sqlStep(
			fmt.Sprintf("p%d", i),
			fmt.Sprintf("Parallel %d", i),
			fmt.Sprintf("SELECT %d", i),
		))
	}
	script := &domain.Script{Name: "fanout", Steps: steps}

	outcome, err := o.Run(context.Background(), script, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Failed() {
		t.Fatalf("run should succeed, failed step %q: %v",
			outcome.FailedStep, outcome.Results[outcome.FailedStep])
	}
	if len(outcome.Results) != 8 {
		t.Errorf("expected 8 results, got %d", len(outcome.Results))
	}
	if len(strat.queries) != 8 {
		t.Errorf("expected 8 queries, got %d", len(strat.queries))
	}
}
