package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Conduit/internal/domain"
)

// Ошибки разрешения подключений.
var (
	// ErrUnknownScheme — неизвестный протокол источника подключения.
	ErrUnknownScheme = errors.New("unknown connection source protocol")

	// ErrConnectionNotFound — файл подключения не найден.
	ErrConnectionNotFound = errors.New("connection not found")
)

// envSecretPrefix — префикс переменных окружения, перекрывающих
// секреты из файла: CONDUIT_SECRET_API_KEY → api_key.
const envSecretPrefix = "CONDUIT_SECRET_"

// Resolver разрешает источники подключений из файловой системы.
//
// Поддерживаемые схемы:
//   - "user:<name>" — <home>/connections/<name>.conn.yaml
//   - "file:<path>" — явный путь к файлу подключения
//
// Секреты подключения читаются из <home>/secrets/<name>.secret.env
// (если есть) и перекрываются переменными окружения CONDUIT_SECRET_*.
type Resolver struct {
	home   string
	logger *slog.Logger
}

// New создаёт Resolver поверх домашнего каталога.
func New(home string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{home: home, logger: logger}
}

// Resolve возвращает подключение и его секреты по источнику.
func (r *Resolver) Resolve(ctx context.Context, source string) (*domain.Connection, domain.Secrets, error) {
	r.logger.Debug("resolving connection source", "source", source)

	switch {
	case strings.HasPrefix(source, "user:"):
		name := strings.TrimPrefix(source, "user:")
		path := filepath.Join(r.home, "connections", name+".conn.yaml")
		return r.resolveFromFile(path)

	case strings.HasPrefix(source, "file:"):
		return r.resolveFromFile(strings.TrimPrefix(source, "file:"))

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownScheme, source)
	}
}

// resolveFromFile загружает подключение из YAML-файла вместе
// с секретами соседнего .secret.env.
func (r *Resolver) resolveFromFile(path string) (*domain.Connection, domain.Secrets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, path)
		}
		return nil, nil, fmt.Errorf("read connection file: %w", err)
	}

	var conn domain.Connection
	if err := yaml.Unmarshal(data, &conn); err != nil {
		return nil, nil, fmt.Errorf("invalid connection file %s: %w", filepath.Base(path), err)
	}

	stem := connStem(path)
	if conn.ID == "" {
		conn.ID = "user:" + stem
	}

	secrets, err := r.loadSecrets(stem)
	if err != nil {
		return nil, nil, err
	}

	return &conn, secrets, nil
}

// loadSecrets читает секреты подключения. Отсутствие файла секретов —
// норма: многие подключения их не требуют.
func (r *Resolver) loadSecrets(stem string) (domain.Secrets, error) {
	secrets := make(domain.Secrets)

	path := filepath.Join(r.home, "secrets", stem+".secret.env")
	if _, err := os.Stat(path); err == nil {
		raw, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("read secrets file %s: %w", filepath.Base(path), err)
		}
		for k, v := range raw {
			if v != "" {
				secrets[strings.ToLower(k)] = v
			}
		}
	}

	// Переменные окружения перекрывают файл.
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, envSecretPrefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, envSecretPrefix))
		if name != "" && value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// connStem возвращает имя подключения из имени файла:
// "my-db.conn.yaml" → "my-db".
func connStem(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(base, ".conn")
}
