package fsprov

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/shaiso/Conduit/internal/domain"
	"github.com/shaiso/Conduit/internal/strategy"
)

// Key — ключ провайдера файловой стратегии.
const Key = "filesystem"

// Ошибки файловой стратегии.
var (
	// ErrNoRoot — подключение не задаёт корневой каталог.
	ErrNoRoot = errors.New("connection does not define a root directory")

	// ErrPathEscapes — путь выходит за пределы корневого каталога.
	ErrPathEscapes = errors.New("path escapes the connection root")
)

// Strategy — стратегия локальной файловой системы.
// Все пути шагов разрешаются внутри корня подключения (details.root);
// выход за корень запрещён.
type Strategy struct {
	logger *slog.Logger
}

// New создаёт файловую стратегию.
func New(logger *slog.Logger) *Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Strategy{logger: logger}
}

// Key возвращает ключ провайдера.
func (s *Strategy) Key() string { return Key }

// TestConnection проверяет, что корень существует и является каталогом.
func (s *Strategy) TestConnection(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) error {
	root, err := rootDir(conn)
	if err != nil {
		return err
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", root)
	}
	return nil
}

// GetClient возвращает абсолютный путь корня. Освобождать нечего.
func (s *Strategy) GetClient(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) (any, func() error, error) {
	root, err := rootDir(conn)
	if err != nil {
		return nil, nil, err
	}
	return root, func() error { return nil }, nil
}

// BrowsePath возвращает содержимое каталога внутри корня.
func (s *Strategy) BrowsePath(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) ([]strategy.BrowseEntry, error) {
	dir, err := resolveInRoot(conn, pathParts)
	if err != nil {
		return nil, err
	}

	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	entries := make([]strategy.BrowseEntry, 0, len(items))
	for _, item := range items {
		entry := strategy.BrowseEntry{
			Name: item.Name(),
			Path: strings.Join(append(pathParts, item.Name()), "/"),
			Type: "file",
			Icon: "file",
		}
		if item.IsDir() {
			entry.Type = "directory"
			entry.Icon = "folder"
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetContent читает файл внутри корня.
func (s *Strategy) GetContent(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) (*strategy.Content, error) {
	path, err := resolveInRoot(conn, pathParts)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return &strategy.Content{
		Path:         strings.Join(pathParts, "/"),
		Content:      string(data),
		MimeType:     mimeType,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

// rootDir возвращает корневой каталог подключения.
func rootDir(conn *domain.Connection) (string, error) {
	root := conn.Detail("root")
	if root == "" {
		root = conn.Detail("base_path")
	}
	if root == "" {
		return "", ErrNoRoot
	}
	return filepath.Abs(root)
}

// resolveInRoot разворачивает путь внутри корня с защитой от выхода
// за его пределы.
func resolveInRoot(conn *domain.Connection, pathParts []string) (string, error) {
	root, err := rootDir(conn)
	if err != nil {
		return "", err
	}

	path := filepath.Join(append([]string{root}, pathParts...)...)
	path = filepath.Clean(path)
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %v", ErrPathEscapes, pathParts)
	}
	return path, nil
}
