package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	RUNNING → SUCCEEDED
//	        ↘ FAILED
type RunStatus string

const (
	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — run успешно завершён.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — run завершился с ошибкой.
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed:
		return true
	default:
		return false
	}
}

// Run — экземпляр выполнения скрипта.
//
// Run создаётся когда:
// - Пользователь запускает скрипт вручную (CLI/API)
// - Scheduler запускает скрипт по расписанию
//
// Run живёт только в памяти на время выполнения; постоянное хранение
// результатов — ответственность внешних потребителей событий.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// ScriptName — имя выполняемого скрипта.
	ScriptName string `json:"script_name"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Input — входные параметры, переданные при запуске.
	Input map[string]any `json:"input,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения (успешного или с ошибкой).
	// Nil, если run ещё выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`
}

// NewRun создаёт новый Run в статусе RUNNING.
func NewRun(scriptName string, input map[string]any) *Run {
	return &Run{
		ID:         uuid.New(),
		ScriptName: scriptName,
		Status:     RunStatusRunning,
		Input:      input,
		StartedAt:  time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// MarkSucceeded переводит run в статус SUCCEEDED.
func (r *Run) MarkSucceeded() {
	now := time.Now()
	r.Status = RunStatusSucceeded
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}
