package domain

import "strings"

// Script — декларативное описание рабочего процесса.
//
// Script — это "программа" для Conduit: набор именованных шагов,
// каждый из которых привязан к подключению (connection) и действию (action).
// Порядок объявления шагов не влияет на порядок выполнения —
// он вычисляется из графа зависимостей.
type Script struct {
	// Name — имя скрипта.
	Name string `json:"name"`

	// Description — описание назначения скрипта.
	Description string `json:"description,omitempty"`

	// SessionProvider — ключ stateful-стратегии для сессионных шагов
	// (семейство действий browser_*). Пустая строка — сессия не нужна.
	SessionProvider string `json:"session_provider,omitempty"`

	// Steps — шаги для выполнения.
	Steps []Step `json:"steps"`
}

// Step — один шаг рабочего процесса.
type Step struct {
	// ID — уникальный идентификатор шага в рамках скрипта.
	// Используется в depends_on и для ссылок на результаты в шаблонах.
	ID string `json:"id"`

	// Name — человекочитаемое имя шага.
	// Под этим именем результат попадает в итоговую карту результатов.
	Name string `json:"name"`

	// ConnectionSource — источник подключения ("user:my-db", "file:./x.conn.json").
	// Само значение может быть шаблонным выражением.
	ConnectionSource string `json:"connection_source,omitempty"`

	// DependsOn — ID шагов, которые должны успешно завершиться раньше.
	DependsOn []string `json:"depends_on,omitempty"`

	// Run — действие шага (tagged union по ключу "action").
	Run Action `json:"run"`

	// Outputs — маппинг имя-выхода → query для извлечения из результата.
	Outputs map[string]string `json:"outputs,omitempty"`
}

// Action — действие шага: произвольные поля, помеченные тегом под ключом "action".
//
// Любое поле на любой глубине вложенности может быть шаблонным выражением.
type Action map[string]any

// Тег действия — ключ, по которому различаются варианты union.
const ActionTagKey = "action"

// Kind возвращает тег действия ("run_sql_query", "browse_path", ...).
func (a Action) Kind() string {
	if v, ok := a[ActionTagKey].(string); ok {
		return v
	}
	return ""
}

// GetString извлекает строковое поле действия.
func (a Action) GetString(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// GetMap извлекает вложенный объект действия.
func (a Action) GetMap(key string) map[string]any {
	if v, ok := a[key].(map[string]any); ok {
		return v
	}
	return nil
}

// Clone возвращает поверхностную копию действия.
func (a Action) Clone() Action {
	out := make(Action, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Закрытое множество тегов действий.
const (
	ActionRunDeclarative   = "run_declarative_action"
	ActionRunSQLQuery      = "run_sql_query"
	ActionBrowsePath       = "browse_path"
	ActionReadContent      = "read_content"
	ActionRunPythonScript  = "run_python_script"
	ActionRunTransform     = "run_transform"
	ActionWriteFiles       = "write_files"
	ActionAggregateContent = "aggregate_content"

	// BrowserActionPrefix — префикс открытого семейства сессионных действий.
	BrowserActionPrefix = "browser_"
)

// actionSpecs — схема действий: тег → обязательные поля.
// Используется для повторной валидации действия после рендеринга.
var actionSpecs = map[string][]string{
	ActionRunDeclarative:   {"template_key"},
	ActionRunSQLQuery:      {"query"},
	ActionBrowsePath:       {"path"},
	ActionReadContent:      {"path"},
	ActionRunPythonScript:  {"script_path"},
	ActionRunTransform:     {"script_path"},
	ActionWriteFiles:       {"files"},
	ActionAggregateContent: {"sources"},
}

// noSecretsActions — действия с соглашением вызова без секретов:
// (connection, params, script_input).
var noSecretsActions = map[string]bool{
	ActionRunPythonScript:  true,
	ActionWriteFiles:       true,
	ActionAggregateContent: true,
}

// IsKnownAction проверяет, что тег действия входит в закрытое множество
// (или в открытое семейство browser_*).
func IsKnownAction(kind string) bool {
	if strings.HasPrefix(kind, BrowserActionPrefix) {
		return true
	}
	_, ok := actionSpecs[kind]
	return ok
}

// IsNoSecretsAction проверяет, использует ли действие соглашение без секретов.
func IsNoSecretsAction(kind string) bool {
	return noSecretsActions[kind]
}

// RequiredActionFields возвращает обязательные поля действия.
func RequiredActionFields(kind string) []string {
	return actionSpecs[kind]
}

// IsBrowserAction проверяет, относится ли действие к сессионному семейству.
func IsBrowserAction(kind string) bool {
	return strings.HasPrefix(kind, BrowserActionPrefix)
}
