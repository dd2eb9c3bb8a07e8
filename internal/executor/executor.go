package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shaiso/Conduit/internal/domain"
	"github.com/shaiso/Conduit/internal/engine"
	"github.com/shaiso/Conduit/internal/strategy"
)

// ConnectionResolver — внешний коллаборатор разрешения подключений.
type ConnectionResolver interface {
	// Resolve возвращает подключение и его секреты по источнику
	// ("user:my-db", "file:./x.conn.json").
	Resolve(ctx context.Context, source string) (*domain.Connection, domain.Secrets, error)
}

// Transformer — внешний коллаборатор действия run_transform.
type Transformer interface {
	// Run выполняет transform-скрипт по пути с под-контекстом
	// {initial_input, query_parameters}.
	Run(ctx context.Context, scriptPath string, runContext map[string]any) (any, error)
}

// SessionState — состояние активной сессии run.
// Принадлежит оркестратору; executor только читает.
type SessionState struct {
	// Provider — stateful-стратегия, владеющая сессией.
	Provider strategy.SessionProvider

	// ProviderKey — ключ стратегии-владельца.
	ProviderKey string

	// Session — непрозрачный handle сессии.
	Session strategy.Session
}

// Config — зависимости StepExecutor.
type Config struct {
	Resolver    ConnectionResolver
	Registry    *strategy.Registry
	Transformer Transformer
	Renderer    *engine.Renderer
	Home        string
	Logger      *slog.Logger
}

// StepExecutor выполняет один шаг: рендерит параметры, разрешает
// подключение и диспетчеризует действие в стратегию.
//
// Весь I/O (сеть, файловая система, подпроцессы) происходит внутри
// стратегий; executor лишь делегирует. Единственное исключение —
// загрузка текста SQL-запроса из file:/asset: ссылки.
type StepExecutor struct {
	resolver    ConnectionResolver
	registry    *strategy.Registry
	transformer Transformer
	renderer    *engine.Renderer
	home        string
	logger      *slog.Logger
}

// New создаёт StepExecutor.
func New(cfg Config) *StepExecutor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StepExecutor{
		resolver:    cfg.Resolver,
		registry:    cfg.Registry,
		transformer: cfg.Transformer,
		renderer:    cfg.Renderer,
		home:        cfg.Home,
		logger:      logger,
	}
}

// Execute выполняет один шаг против контекста run.
//
// Приоритет диспетчеризации:
//  1. browser_* — требует активной сессии, транслируется в сессионную команду
//  2. разрешение connection_source; совпадение со stateful-стратегией
//     активной сессии — no-op успех ("session setup")
//  3. run_transform — делегат в Transformer
//  4. для остальных действий подключение обязательно
//  5. run_sql_query — загрузка текста запроса + ExecuteQuery
//  6. закрытое соответствие действие → способность стратегии
func (e *StepExecutor) Execute(ctx context.Context, step *domain.Step, rc *engine.RunContext, sess *SessionState) (any, error) {
	rendered, err := e.renderer.RenderStep(step, rc)
	if err != nil {
		return nil, err
	}

	kind := rendered.Run.Kind()
	log := e.logger.With("step_id", rendered.ID, "step_name", rendered.Name, "action", kind)

	// 1. Сессионные действия.
	if domain.IsBrowserAction(kind) {
		return e.executeSessionStep(ctx, rendered, sess)
	}

	// 2. Разрешение подключения.
	var (
		conn    *domain.Connection
		secrets domain.Secrets
		strat   strategy.Strategy
	)
	if rendered.ConnectionSource != "" {
		conn, secrets, err = e.resolver.Resolve(ctx, rendered.ConnectionSource)
		if err != nil {
			return nil, &ResolutionError{Source: rendered.ConnectionSource, Err: err}
		}
		strat, err = e.registry.Lookup(conn.ProviderKey())
		if err != nil {
			return nil, err
		}
	}

	// Шаг против стратегии активной сессии — выполненный setup-шаг.
	if sess != nil && strat != nil && strat.Key() == sess.ProviderKey {
		log.Debug("step resolved to the active stateful strategy, treating as session setup")
		return map[string]any{
			"status":  "success",
			"message": fmt.Sprintf("Session setup step %q completed.", rendered.Name),
		}, nil
	}

	// 3. Трансформация.
	if kind == domain.ActionRunTransform {
		return e.executeTransform(ctx, rendered, rc)
	}

	// 4. Подключение обязательно.
	if strat == nil {
		return nil, &ResolutionError{
			Err: fmt.Errorf("%w: step %q", ErrConnectionRequired, rendered.Name),
		}
	}

	// 5. SQL-запрос.
	if kind == domain.ActionRunSQLQuery {
		return e.executeQuery(ctx, rendered, strat, conn, secrets)
	}

	// 6. Закрытое соответствие действие → способность.
	return e.dispatch(ctx, kind, rendered, strat, conn, secrets, rc)
}

// executeSessionStep транслирует browser_* действие в сессионную команду.
func (e *StepExecutor) executeSessionStep(ctx context.Context, step *domain.Step, sess *SessionState) (any, error) {
	if sess == nil || sess.Session == nil || sess.Provider == nil {
		return nil, ErrSessionRequired
	}

	run := step.Run
	text := run.GetString("text")
	if text == "" {
		text = run.GetString("url")
	}

	cmd := &strategy.SessionCommand{
		Type: strings.TrimPrefix(run.Kind(), domain.BrowserActionPrefix),
		Name: step.Name,
		Text: text,
		Element: strategy.ElementInfo{
			Locators: map[string]string{"css_selector": run.GetString("target")},
		},
	}

	return sess.Provider.ExecuteStep(ctx, sess.Session, cmd, stepIndexFromID(step.ID))
}

// executeTransform делегирует run_transform внешнему Transformer
// с под-контекстом из input_data действия.
func (e *StepExecutor) executeTransform(ctx context.Context, step *domain.Step, rc *engine.RunContext) (any, error) {
	input := step.Run.GetMap("input_data")

	sub := map[string]any{
		"initial_input":    map[string]any{},
		"query_parameters": map[string]any{},
	}
	if input != nil {
		if data, ok := input["data"]; ok {
			sub["initial_input"] = data
		}
		if params, ok := input["query_parameters"]; ok {
			sub["query_parameters"] = params
		}
	}

	scriptPath := resolvePath(e.home, step.Run.GetString("script_path"))
	return e.transformer.Run(ctx, scriptPath, sub)
}

// executeQuery загружает текст SQL-запроса и вызывает ExecuteQuery.
func (e *StepExecutor) executeQuery(ctx context.Context, step *domain.Step, strat strategy.Strategy, conn *domain.Connection, secrets domain.Secrets) (any, error) {
	qe, ok := strat.(strategy.QueryExecutor)
	if !ok {
		return nil, &DispatchError{Action: domain.ActionRunSQLQuery, ProviderKey: strat.Key()}
	}

	query := step.Run.GetString("query")
	if src, isRef := queryFileSource(query); isRef {
		data, err := os.ReadFile(resolvePath(e.home, src))
		if err != nil {
			return nil, fmt.Errorf("load query from %s: %w", src, err)
		}
		query = string(data)
	}

	return qe.ExecuteQuery(ctx, query, step.Run.GetMap("parameters"), conn, secrets)
}

// queryFileSource распознаёт file:/asset: ссылку на текст запроса.
func queryFileSource(query string) (string, bool) {
	for _, prefix := range []string{"file:", "asset:"} {
		if strings.HasPrefix(query, prefix) {
			return strings.TrimPrefix(query, prefix), true
		}
	}
	return "", false
}

// resolvePath разворачивает путь относительно home.
func resolvePath(home, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if h, err := os.UserHomeDir(); err == nil {
			return filepath.Join(h, path[2:])
		}
	}
	return filepath.Join(home, path)
}

// stepIndexFromID извлекает индекс шага из цифр в его ID (по умолчанию 0).
func stepIndexFromID(id string) int {
	var digits strings.Builder
	for _, ch := range id {
		if ch >= '0' && ch <= '9' {
			digits.WriteRune(ch)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}
