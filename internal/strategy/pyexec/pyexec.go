package pyexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/shaiso/Conduit/internal/domain"
	"github.com/shaiso/Conduit/internal/strategy"
)

// Key — ключ провайдера python-песочницы.
const Key = "python-sandbox"

const defaultScriptTimeout = 60 * time.Second

// Ошибки python-стратегии.
var (
	// ErrNoScriptPath — шаг не задал script_path.
	ErrNoScriptPath = errors.New("script_path is required")

	// ErrScriptFailed — скрипт завершился с ненулевым кодом.
	ErrScriptFailed = errors.New("python script failed")
)

// Strategy — стратегия запуска python-скриптов в подпроцессе.
//
// Скрипт получает на stdin JSON {params, script_input, connection}
// и обязан вывести JSON-результат на stdout. Секреты подключения
// в скрипт намеренно не передаются.
type Strategy struct {
	logger *slog.Logger
}

// New создаёт python-стратегию.
func New(logger *slog.Logger) *Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Strategy{logger: logger}
}

// Key возвращает ключ провайдера.
func (s *Strategy) Key() string { return Key }

// TestConnection проверяет, что интерпретатор доступен.
func (s *Strategy) TestConnection(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) error {
	cmd := exec.CommandContext(ctx, interpreter(conn), "--version")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("python interpreter unavailable: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// GetClient возвращает путь к интерпретатору. Освобождать нечего.
func (s *Strategy) GetClient(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) (any, func() error, error) {
	return interpreter(conn), func() error { return nil }, nil
}

// BrowsePath возвращает скрипты в каталоге details.scripts_dir.
func (s *Strategy) BrowsePath(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) ([]strategy.BrowseEntry, error) {
	dir, err := scriptsDir(conn, pathParts)
	if err != nil {
		return nil, err
	}

	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scripts dir: %w", err)
	}

	var entries []strategy.BrowseEntry
	for _, item := range items {
		if !item.IsDir() && !strings.HasSuffix(item.Name(), ".py") {
			continue
		}
		entry := strategy.BrowseEntry{
			Name: item.Name(),
			Path: strings.Join(append(pathParts, item.Name()), "/"),
			Type: "script",
			Icon: "code",
		}
		if item.IsDir() {
			entry.Type = "directory"
			entry.Icon = "folder"
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetContent возвращает исходный текст скрипта.
func (s *Strategy) GetContent(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) (*strategy.Content, error) {
	path, err := scriptsDir(conn, pathParts)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat script: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "text/x-python"
	}

	return &strategy.Content{
		Path:         strings.Join(pathParts, "/"),
		Content:      string(data),
		MimeType:     mimeType,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

// RunPythonScript запускает скрипт в подпроцессе.
//
// Соглашение без секретов: скрипт видит параметры шага, вход сценария
// и нечувствительные детали подключения, но не секреты.
func (s *Strategy) RunPythonScript(ctx context.Context, conn *domain.Connection, params, scriptInput map[string]any) (any, error) {
	scriptPath, _ := params["script_path"].(string)
	if scriptPath == "" {
		return nil, ErrNoScriptPath
	}

	timeout := defaultScriptTimeout
	if v, ok := params["timeout_sec"].(float64); ok && v > 0 {
		timeout = time.Duration(v * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdin := map[string]any{
		"params":       params,
		"script_input": scriptInput,
	}
	if conn != nil {
		stdin["connection"] = conn.Details
	}
	input, err := json.Marshal(stdin)
	if err != nil {
		return nil, fmt.Errorf("marshal script input: %w", err)
	}

	cmd := exec.CommandContext(ctx, interpreter(conn), scriptPath)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Debug("running python script", "script", scriptPath, "timeout", timeout)

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v: %s",
			ErrScriptFailed, scriptPath, err, truncate(stderr.String(), 500))
	}

	var result any
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("script output is not valid JSON: %w: %s",
			err, truncate(stdout.String(), 200))
	}
	return result, nil
}

// interpreter возвращает путь к интерпретатору из подключения.
func interpreter(conn *domain.Connection) string {
	if p := conn.Detail("interpreter"); p != "" {
		return p
	}
	return "python3"
}

// scriptsDir разворачивает путь внутри каталога скриптов подключения.
func scriptsDir(conn *domain.Connection, pathParts []string) (string, error) {
	dir := conn.Detail("scripts_dir")
	if dir == "" {
		return "", fmt.Errorf("connection does not define scripts_dir")
	}
	return filepath.Join(append([]string{dir}, pathParts...)...), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
