package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shaiso/Conduit/internal/domain"
)

// LoadScript читает и валидирует скрипт из JSON-файла.
func LoadScript(path string) (*domain.Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}

	var script domain.Script
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}

	if err := ValidateScript(&script); err != nil {
		return nil, err
	}

	return &script, nil
}

// ParseScript разбирает и валидирует скрипт из JSON-документа.
func ParseScript(data []byte) (*domain.Script, error) {
	var script domain.Script
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}

	if err := ValidateScript(&script); err != nil {
		return nil, err
	}

	return &script, nil
}

// ValidateScript выполняет структурную валидацию скрипта.
//
// Проверяет:
// - наличие шагов
// - непустые и уникальные ID, непустые имена
// - известность тегов действий (до рендеринга; browser_* — открытое семейство)
// - отсутствие самозависимостей
//
// Валидность ссылок depends_on и ацикличность проверяет BuildGraph.
func ValidateScript(script *domain.Script) error {
	if script == nil || len(script.Steps) == 0 {
		return ErrEmptySteps
	}

	stepIDs := make(map[string]bool, len(script.Steps))

	for i := range script.Steps {
		step := &script.Steps[i]

		if step.ID == "" {
			return NewValidationError("", "id", "step has empty ID", ErrEmptyStepID)
		}
		if stepIDs[step.ID] {
			return NewValidationError(step.ID, "id",
				fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
		}
		stepIDs[step.ID] = true

		if step.Name == "" {
			return NewValidationError(step.ID, "name",
				"step has empty name", ErrEmptyStepName)
		}

		kind := step.Run.Kind()
		if kind == "" {
			return NewValidationError(step.ID, "run",
				"run block has no action tag", ErrUnknownAction)
		}
		// Тег, содержащий шаблон, проверяется повторно после рендеринга.
		if !containsTemplate(kind) && !domain.IsKnownAction(kind) {
			return NewValidationError(step.ID, "run",
				fmt.Sprintf("unknown action: %s", kind), ErrUnknownAction)
		}

		for _, dep := range step.DependsOn {
			if dep == step.ID {
				return NewValidationError(step.ID, "depends_on",
					"step depends on itself", ErrSelfDependency)
			}
		}
	}

	return nil
}

func containsTemplate(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '{' && s[i+1] == '{' {
			return true
		}
	}
	return false
}
