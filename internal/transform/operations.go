package transform

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// apply выполняет одну операцию над записями. Файловые операции
// дополняют список вложений манифеста.
func (s *Service) apply(op Operation, records []map[string]any, attachments []string) ([]map[string]any, []string, error) {
	switch op.Type {
	case "select_columns":
		return selectColumns(records, op.Columns), attachments, nil

	case "rename_columns":
		return renameColumns(records, op.Mapping), attachments, nil

	case "filter_rows":
		out, err := filterRows(records, op)
		return out, attachments, err

	case "sort_rows":
		return sortRows(records, op.Column, op.Descending), attachments, nil

	case "limit":
		if op.Count >= 0 && op.Count < len(records) {
			records = records[:op.Count]
		}
		return records, attachments, nil

	case "write_json":
		if err := s.writeJSON(op.TargetPath, records); err != nil {
			return nil, nil, err
		}
		return records, append(attachments, op.TargetPath), nil

	case "write_csv":
		if err := s.writeCSV(op.TargetPath, records); err != nil {
			return nil, nil, err
		}
		return records, append(attachments, op.TargetPath), nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op.Type)
	}
}

func selectColumns(records []map[string]any, columns []string) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, rec := range records {
		row := make(map[string]any, len(columns))
		for _, col := range columns {
			if v, ok := rec[col]; ok {
				row[col] = v
			}
		}
		out[i] = row
	}
	return out
}

func renameColumns(records []map[string]any, mapping map[string]string) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, rec := range records {
		row := make(map[string]any, len(rec))
		for k, v := range rec {
			if renamed, ok := mapping[k]; ok {
				k = renamed
			}
			row[k] = v
		}
		out[i] = row
	}
	return out
}

func filterRows(records []map[string]any, op Operation) ([]map[string]any, error) {
	var out []map[string]any
	for _, rec := range records {
		keep, err := matches(rec[op.Column], op.Op, op.Value)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, rec)
		}
	}
	return out, nil
}

func matches(value any, op string, expected any) (bool, error) {
	switch op {
	case "eq", "":
		return fmt.Sprint(value) == fmt.Sprint(expected), nil
	case "ne":
		return fmt.Sprint(value) != fmt.Sprint(expected), nil
	case "contains":
		return strings.Contains(fmt.Sprint(value), fmt.Sprint(expected)), nil
	case "gt":
		a, b, ok := numericPair(value, expected)
		return ok && a > b, nil
	case "lt":
		a, b, ok := numericPair(value, expected)
		return ok && a < b, nil
	default:
		return false, fmt.Errorf("%w: filter op %q", ErrUnknownOperation, op)
	}
}

func numericPair(a, b any) (float64, float64, bool) {
	fa, oka := toFloat(a)
	fb, okb := toFloat(b)
	return fa, fb, oka && okb
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func sortRows(records []map[string]any, column string, descending bool) []map[string]any {
	out := make([]map[string]any, len(records))
	copy(out, records)

	sort.SliceStable(out, func(i, j int) bool {
		a, oka := toFloat(out[i][column])
		b, okb := toFloat(out[j][column])

		var less bool
		if oka && okb {
			less = a < b
		} else {
			less = fmt.Sprint(out[i][column]) < fmt.Sprint(out[j][column])
		}
		if descending {
			return !less
		}
		return less
	})
	return out
}

func (s *Service) writeJSON(path string, records []map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", path, err)
	}

	s.logger.Debug("wrote json artifact", "path", path, "records", len(records))
	return nil
}

func (s *Service) writeCSV(path string, records []map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact %s: %w", path, err)
	}
	defer f.Close()

	// Заголовок — отсортированные ключи первой записи;
	// все записи пишутся в этом порядке колонок.
	var header []string
	if len(records) > 0 {
		for k := range records[0] {
			header = append(header, k)
		}
		sort.Strings(header)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		row := make([]string, len(header))
		for i, col := range header {
			if v, ok := rec[col]; ok && v != nil {
				row[i] = fmt.Sprint(v)
			}
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	s.logger.Debug("wrote csv artifact", "path", path, "records", len(records))
	return nil
}
