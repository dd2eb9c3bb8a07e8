package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Ошибки пайплайна трансформации.
var (
	// ErrNoRecords — во входных данных не нашлось списка записей.
	ErrNoRecords = errors.New("could not find a list of records in the input data")

	// ErrUnknownOperation — неизвестный тип операции в скрипте.
	ErrUnknownOperation = errors.New("unknown transform operation")
)

// Script — разобранный .transformer.yaml скрипт.
type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step — один шаг пайплайна.
type Step struct {
	Name       string      `yaml:"name"`
	Operations []Operation `yaml:"operations"`
}

// Operation — декларативная операция над записями.
type Operation struct {
	// Type — тип операции: select_columns, rename_columns, filter_rows,
	// sort_rows, limit, write_json, write_csv.
	Type string `yaml:"type"`

	// Columns — колонки для select_columns.
	Columns []string `yaml:"columns,omitempty"`

	// Mapping — отображение старое имя → новое для rename_columns.
	Mapping map[string]string `yaml:"mapping,omitempty"`

	// Column / Op / Value — предикат filter_rows и ключ sort_rows.
	Column string `yaml:"column,omitempty"`
	Op     string `yaml:"op,omitempty"`
	Value  any    `yaml:"value,omitempty"`

	// Descending — порядок sort_rows.
	Descending bool `yaml:"descending,omitempty"`

	// Count — лимит записей для limit.
	Count int `yaml:"count,omitempty"`

	// TargetPath — путь артефакта для write_json / write_csv.
	TargetPath string `yaml:"target_path,omitempty"`
}

// Service выполняет пайплайны трансформации данных.
//
// Пайплайн получает записи предыдущего шага run, прогоняет их через
// последовательность операций и возвращает либо преобразованные данные,
// либо манифест артефактов, если операции записали файлы.
type Service struct {
	logger *slog.Logger
}

// NewService создаёт Service.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// Run выполняет transformer-скрипт по пути.
//
// runContext несёт {initial_input, query_parameters}. Результат всегда
// содержит query_parameters; при записанных артефактах — манифест
// {"artifacts": {"attachments": [...]}}, иначе — {"results": records}.
func (s *Service) Run(ctx context.Context, scriptPath string, runContext map[string]any) (any, error) {
	data, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("read transform script: %w", err)
	}

	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("invalid transform script %s: %w", filepath.Base(scriptPath), err)
	}

	log := s.logger.With("transform", script.Name)

	records, err := recordsFromInput(runContext["initial_input"])
	if err != nil {
		return nil, err
	}
	queryParams, _ := runContext["query_parameters"].(map[string]any)

	log.Info("starting transform pipeline",
		"steps", len(script.Steps),
		"records", len(records),
	)

	var attachments []string
	for _, step := range script.Steps {
		for _, op := range step.Operations {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			records, attachments, err = s.apply(op, records, attachments)
			if err != nil {
				return nil, fmt.Errorf("step %q: %w", step.Name, err)
			}
		}
	}

	log.Info("transform pipeline finished",
		"records", len(records),
		"attachments", len(attachments),
	)

	output := map[string]any{"query_parameters": queryParams}
	if len(attachments) > 0 {
		output["artifacts"] = map[string]any{"attachments": attachments}
	} else {
		output["results"] = records
	}
	return output, nil
}

// recordsFromInput извлекает список записей из выхода предыдущего шага.
// Вход либо сам список, либо карта, первое списочное значение которой
// и есть записи.
func recordsFromInput(input any) ([]map[string]any, error) {
	switch v := input.(type) {
	case []map[string]any:
		return v, nil
	case []any:
		return coerceRecords(v)
	case map[string]any:
		for _, value := range v {
			if list, ok := value.([]any); ok {
				return coerceRecords(list)
			}
			if list, ok := value.([]map[string]any); ok {
				return list, nil
			}
		}
	}
	return nil, ErrNoRecords
}

func coerceRecords(list []any) ([]map[string]any, error) {
	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: element is not an object", ErrNoRecords)
		}
		records = append(records, rec)
	}
	return records, nil
}
