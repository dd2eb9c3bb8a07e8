package strategy

import (
	"context"
	"time"

	"github.com/shaiso/Conduit/internal/domain"
)

// Strategy — контракт, который реализует каждый backend подключений.
//
// Базовый набор способностей обязателен для всех стратегий.
// Опциональные способности объявляются отдельными интерфейсами ниже;
// backend без запрошенной способности обязан упасть с типизированной
// ошибкой "not implemented", а не молча ничего не сделать.
type Strategy interface {
	// Key возвращает ключ провайдера ("rest-declarative", "sql-postgres", ...).
	Key() string

	// TestConnection проверяет доступность внешней системы.
	TestConnection(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) error

	// GetClient возвращает готовый клиент и функцию освобождения.
	// Вызывающий обязан вызвать release на каждом пути выхода.
	GetClient(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) (client any, release func() error, err error)

	// BrowsePath возвращает содержимое пути во внешней системе.
	BrowsePath(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) ([]BrowseEntry, error)

	// GetContent возвращает содержимое одного объекта.
	GetContent(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) (*Content, error)
}

// BrowseEntry — один элемент листинга BrowsePath.
type BrowseEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"` // "file", "directory", "table", "schema", ...
	Icon string `json:"icon"`
}

// Content — результат GetContent.
type Content struct {
	Path         string    `json:"path"`
	Content      string    `json:"content"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// DeclarativeActioner — опциональная способность run_declarative_action:
// выполнение шаблонного действия из каталога подключения.
type DeclarativeActioner interface {
	RunDeclarativeAction(ctx context.Context, conn *domain.Connection, secrets domain.Secrets, params, scriptInput map[string]any) (any, error)
}

// QueryExecutor — опциональная способность run_sql_query.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]any, conn *domain.Connection, secrets domain.Secrets) (any, error)
}

// ScriptRunner — опциональная способность run_python_script.
// Соглашение вызова без секретов: (connection, params, script_input).
type ScriptRunner interface {
	RunPythonScript(ctx context.Context, conn *domain.Connection, params, scriptInput map[string]any) (any, error)
}

// FileWriter — опциональная способность write_files (без секретов).
type FileWriter interface {
	WriteFiles(ctx context.Context, conn *domain.Connection, params, scriptInput map[string]any) (any, error)
}

// ContentAggregator — опциональная способность aggregate_content (без секретов).
type ContentAggregator interface {
	AggregateContent(ctx context.Context, conn *domain.Connection, params, scriptInput map[string]any) (any, error)
}

// Session — непрозрачный handle активной сессии stateful-стратегии.
// Принадлежит исключительно оркестратору на время run.
type Session interface {
	ID() string
}

// SessionProvider — опциональная способность stateful-провайдеров:
// одна сессия на run, ровно один EndSession на каждый StartSession.
type SessionProvider interface {
	// StartSession открывает сессию.
	StartSession(ctx context.Context, conn *domain.Connection, secrets domain.Secrets, vars map[string]any) (Session, error)

	// ExecuteStep выполняет одну сессионную команду.
	ExecuteStep(ctx context.Context, session Session, cmd *SessionCommand, stepIndex int) (any, error)

	// EndSession закрывает сессию. Вызывается ровно один раз.
	EndSession(ctx context.Context, session Session) error
}

// SessionCommand — сессионная команда, в которую executor транслирует
// действие семейства browser_*.
type SessionCommand struct {
	// Type — тип команды: тег действия без префикса "browser_".
	Type string `json:"command_type"`

	// Name — имя шага.
	Name string `json:"name"`

	// Text — текст для ввода или URL для перехода.
	Text string `json:"text,omitempty"`

	// Element — информация о целевом элементе.
	Element ElementInfo `json:"element_info"`
}

// ElementInfo — локаторы целевого элемента сессионной команды.
type ElementInfo struct {
	Locators map[string]string `json:"locators"`
}
