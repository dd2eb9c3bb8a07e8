package connector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shaiso/Conduit/internal/domain"
	"github.com/shaiso/Conduit/internal/engine"
	"github.com/shaiso/Conduit/internal/events"
	"github.com/shaiso/Conduit/internal/executor"
	"github.com/shaiso/Conduit/internal/orchestrator"
	"github.com/shaiso/Conduit/internal/resolver"
	"github.com/shaiso/Conduit/internal/strategy"
	"github.com/shaiso/Conduit/internal/strategy/browser"
	"github.com/shaiso/Conduit/internal/strategy/fsprov"
	"github.com/shaiso/Conduit/internal/strategy/pyexec"
	"github.com/shaiso/Conduit/internal/strategy/rest"
	"github.com/shaiso/Conduit/internal/strategy/sqlpg"
	"github.com/shaiso/Conduit/internal/transform"
)

// Service — фасад движка: собирает реестр стратегий, резолвер,
// рендерер и оркестратор и предоставляет точки входа для CLI и API.
type Service struct {
	home         string
	registry     *strategy.Registry
	resolver     *resolver.Resolver
	orchestrator *orchestrator.Orchestrator
	logger       *slog.Logger
}

// Config — конфигурация Service.
type Config struct {
	// Home — домашний каталог (подключения, секреты, скрипты).
	// Пустое значение: $CONDUIT_HOME либо ~/.conduit.
	Home string

	// Publisher — публикация событий run. nil допустим.
	Publisher *events.Publisher

	Logger *slog.Logger
}

// New собирает Service со всеми встроенными стратегиями.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	home := cfg.Home
	if home == "" {
		home = DefaultHome()
	}

	registry := strategy.NewRegistry()
	registry.MustRegister(rest.New(logger))
	registry.MustRegister(sqlpg.New(logger))
	registry.MustRegister(fsprov.New(logger))
	registry.MustRegister(pyexec.New(logger))
	registry.MustRegister(browser.New(logger))

	res := resolver.New(home, logger)

	exec := executor.New(executor.Config{
		Resolver:    res,
		Registry:    registry,
		Transformer: transform.NewService(logger),
		Renderer:    engine.NewRenderer(home),
		Home:        home,
		Logger:      logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		Executor:  exec,
		Resolver:  res,
		Registry:  registry,
		Publisher: cfg.Publisher,
		Logger:    logger,
	})

	logger.Info("connector service initialized",
		"home", home,
		"strategies", registry.Keys(),
	)

	return &Service{
		home:         home,
		registry:     registry,
		resolver:     res,
		orchestrator: orch,
		logger:       logger,
	}
}

// Home возвращает домашний каталог сервиса.
func (s *Service) Home() string { return s.home }

// Registry возвращает реестр стратегий.
func (s *Service) Registry() *strategy.Registry { return s.registry }

// RunScript загружает скрипт из файла и выполняет его.
func (s *Service) RunScript(ctx context.Context, path string, input, sessionVars map[string]any) (*orchestrator.Outcome, error) {
	script, err := engine.LoadScript(path)
	if err != nil {
		return nil, err
	}
	return s.RunScriptModel(ctx, script, input, sessionVars)
}

// RunScriptModel выполняет уже загруженный скрипт.
func (s *Service) RunScriptModel(ctx context.Context, script *domain.Script, input, sessionVars map[string]any) (*orchestrator.Outcome, error) {
	return s.orchestrator.Run(ctx, script, input, sessionVars)
}

// TestConnection проверяет подключение и возвращает
// {"status": "success"|"error", "message": ...}. Никогда не возвращает
// ошибку: итог проверки всегда выражен статусом.
func (s *Service) TestConnection(ctx context.Context, source string) map[string]any {
	conn, secrets, err := s.resolver.Resolve(ctx, source)
	if err != nil {
		return map[string]any{
			"status":  "error",
			"message": fmt.Sprintf("Failed to resolve connection: %v", err),
		}
	}

	strat, err := s.registry.Lookup(conn.ProviderKey())
	if err != nil {
		return map[string]any{
			"status":  "error",
			"message": err.Error(),
		}
	}

	if err := strat.TestConnection(ctx, conn, secrets); err != nil {
		return map[string]any{
			"status":  "error",
			"message": fmt.Sprintf("Connection test failed: %v", err),
		}
	}

	return map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Connection %q is healthy.", conn.Name),
	}
}

// Client выдаёт клиент стратегии подключения на ограниченный срок.
// Вызывающий обязан вызвать release на каждом пути выхода.
func (s *Service) Client(ctx context.Context, source string) (any, func() error, error) {
	conn, secrets, err := s.resolver.Resolve(ctx, source)
	if err != nil {
		return nil, nil, err
	}

	strat, err := s.registry.Lookup(conn.ProviderKey())
	if err != nil {
		return nil, nil, err
	}

	return strat.GetClient(ctx, conn, secrets)
}

// DefaultHome возвращает домашний каталог по умолчанию:
// $CONDUIT_HOME либо ~/.conduit.
func DefaultHome() string {
	if home := os.Getenv("CONDUIT_HOME"); home != "" {
		return home
	}
	if userHome, err := os.UserHomeDir(); err == nil {
		return filepath.Join(userHome, ".conduit")
	}
	return ".conduit"
}
