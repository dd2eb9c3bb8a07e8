package fsprov

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shaiso/Conduit/internal/domain"
)

// WriteFiles записывает файлы внутри корня подключения.
//
// Параметр files — либо карта путь → содержимое, либо список объектов
// {path, content}. Возвращает {"written": [пути], "count": n}.
func (s *Strategy) WriteFiles(ctx context.Context, conn *domain.Connection, params, scriptInput map[string]any) (any, error) {
	files, err := filesFromParams(params["files"])
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(files))
	for path, content := range files {
		full, err := resolveInRoot(conn, splitPath(path))
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, fmt.Errorf("create dir for %s: %w", path, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
		s.logger.Debug("wrote file", "path", full)
	}

	return map[string]any{"written": written, "count": len(written)}, nil
}

// AggregateContent склеивает содержимое файлов из params.sources
// в один документ с заголовком-разделителем на каждый источник.
func (s *Strategy) AggregateContent(ctx context.Context, conn *domain.Connection, params, scriptInput map[string]any) (any, error) {
	sources, err := sourcesFromParams(params["sources"])
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for i, source := range sources {
		full, err := resolveInRoot(conn, splitPath(source))
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read source %s: %w", source, err)
		}

		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- %s ---\n", source)
		b.Write(data)
	}

	return map[string]any{
		"content": b.String(),
		"sources": sources,
	}, nil
}

// filesFromParams нормализует параметр files.
func filesFromParams(v any) (map[string]string, error) {
	switch files := v.(type) {
	case map[string]any:
		out := make(map[string]string, len(files))
		for path, content := range files {
			s, ok := content.(string)
			if !ok {
				return nil, fmt.Errorf("file %s: content is not a string", path)
			}
			out[path] = s
		}
		return out, nil
	case []any:
		out := make(map[string]string, len(files))
		for _, item := range files {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("files entry is not an object")
			}
			path, _ := obj["path"].(string)
			content, _ := obj["content"].(string)
			if path == "" {
				return nil, fmt.Errorf("files entry has no path")
			}
			out[path] = content
		}
		return out, nil
	default:
		return nil, fmt.Errorf("files must be a map or a list, got %T", v)
	}
}

// sourcesFromParams нормализует параметр sources.
func sourcesFromParams(v any) ([]string, error) {
	switch sources := v.(type) {
	case []string:
		return sources, nil
	case []any:
		out := make([]string, 0, len(sources))
		for _, item := range sources {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("sources entry is not a string")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("sources must be a list, got %T", v)
	}
}

// splitPath режет относительный путь на сегменты.
func splitPath(path string) []string {
	var parts []string
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}
