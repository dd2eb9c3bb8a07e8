package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки валидации скрипта и построения графа.
var (
	// ErrEmptySteps — скрипт не содержит шагов.
	ErrEmptySteps = errors.New("script has no steps")

	// ErrEmptyStepID — шаг не имеет ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrEmptyStepName — шаг не имеет имени.
	ErrEmptyStepName = errors.New("step has empty name")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrUnknownAction — неизвестный тег действия.
	ErrUnknownAction = errors.New("unknown action")

	// ErrMissingDependency — шаг зависит от несуществующего шага.
	ErrMissingDependency = errors.New("step depends on unknown step")

	// ErrSelfDependency — шаг зависит от самого себя.
	ErrSelfDependency = errors.New("step depends on itself")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка текстовой интерполяции шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrUndefinedVariable — выражение ссылается на отсутствующее значение.
	ErrUndefinedVariable = errors.New("undefined variable")

	// ErrUnknownFilter — неизвестный фильтр в выражении.
	ErrUnknownFilter = errors.New("unknown filter")

	// ErrExtraction — query извлечения output не применим к результату.
	ErrExtraction = errors.New("output extraction failed")
)

// ValidationError — ошибка валидации скрипта с контекстом.
type ValidationError struct {
	StepID  string // ID шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Kind возвращает имя класса ошибки для карты результатов.
func (e *ValidationError) Kind() string {
	return "ConfigurationError"
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// CycleError — обнаруженный цикл зависимостей.
//
// Path содержит упорядоченный список ID шагов, образующих цикл;
// последний элемент замыкается на первый.
type CycleError struct {
	Path []string
}

// Error реализует интерфейс error.
func (e *CycleError) Error() string {
	return fmt.Sprintf("workflow contains a circular dependency: %s",
		strings.Join(e.Path, " -> "))
}

// Unwrap возвращает ErrCyclicDependency.
func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// Kind возвращает имя класса ошибки для карты результатов.
func (e *CycleError) Kind() string {
	return "ConfigurationError"
}

// RenderError — ошибка рендеринга или пост-валидации параметров шага.
type RenderError struct {
	StepName string
	Err      error
}

// Error реализует интерфейс error.
func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render parameters for step %q: %v", e.StepName, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *RenderError) Unwrap() error {
	return e.Err
}

// Kind возвращает имя класса ошибки для карты результатов.
func (e *RenderError) Kind() string {
	return "RenderError"
}
