package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/shaiso/Conduit/internal/domain"
	"github.com/shaiso/Conduit/internal/strategy"
)

// Key — ключ провайдера декларативной REST-стратегии.
const Key = "rest-declarative"

const defaultTimeout = 30 * time.Second

// Ошибки REST-стратегии.
var (
	// ErrNoBaseURL — каталог подключения не задаёт base_url_template.
	ErrNoBaseURL = errors.New("connection catalog does not define a base url")

	// ErrNoTemplate — каталог не содержит запрошенный шаблон действия.
	ErrNoTemplate = errors.New("action template not found in catalog")
)

// Strategy — декларативная REST-стратегия.
//
// Всё поведение задаётся каталогом подключения: базовый URL, схема
// аутентификации и шаблоны действий. Шаг run_declarative_action
// выбирает шаблон по template_key и подставляет параметры шага.
type Strategy struct {
	logger *slog.Logger
	client *http.Client
}

// New создаёт REST-стратегию.
func New(logger *slog.Logger) *Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Strategy{
		logger: logger,
		client: &http.Client{Timeout: defaultTimeout},
	}
}

// Key возвращает ключ провайдера.
func (s *Strategy) Key() string { return Key }

// TestConnection выполняет GET запрос к тестовому endpoint каталога
// (test_endpoint из browse_config, по умолчанию базовый URL).
func (s *Strategy) TestConnection(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) error {
	base, err := baseURL(conn)
	if err != nil {
		return err
	}

	target := base
	if c := conn.Catalog; c != nil && c.BrowseConfig != nil {
		if ep, ok := c.BrowseConfig["test_endpoint"].(string); ok && ep != "" {
			target = joinURL(base, ep)
		}
	}

	resp, err := s.doRequest(ctx, http.MethodGet, target, nil, conn, secrets)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("test request returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// GetClient возвращает настроенный http.Client. Освобождение закрывает
// простаивающие соединения клиента.
func (s *Strategy) GetClient(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) (any, func() error, error) {
	client := &http.Client{Timeout: defaultTimeout}
	release := func() error {
		client.CloseIdleConnections()
		return nil
	}
	return client, release, nil
}

// BrowsePath выполняет GET на путь и интерпретирует JSON-ответ
// как листинг.
func (s *Strategy) BrowsePath(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) ([]strategy.BrowseEntry, error) {
	base, err := baseURL(conn)
	if err != nil {
		return nil, err
	}

	body, _, err := s.getJSON(ctx, joinURL(base, path.Join(pathParts...)), conn, secrets)
	if err != nil {
		return nil, err
	}

	list, ok := body.([]any)
	if !ok {
		return nil, fmt.Errorf("browse response is not a list")
	}

	entries := make([]strategy.BrowseEntry, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entry := strategy.BrowseEntry{Type: "file", Icon: "globe"}
		if v, ok := obj["name"].(string); ok {
			entry.Name = v
		}
		if v, ok := obj["path"].(string); ok {
			entry.Path = v
		} else {
			entry.Path = path.Join(append(pathParts, entry.Name)...)
		}
		if v, ok := obj["type"].(string); ok {
			entry.Type = v
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetContent возвращает тело ресурса по пути.
func (s *Strategy) GetContent(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) (*strategy.Content, error) {
	base, err := baseURL(conn)
	if err != nil {
		return nil, err
	}

	target := joinURL(base, path.Join(pathParts...))
	resp, err := s.doRequest(ctx, http.MethodGet, target, nil, conn, secrets)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	return &strategy.Content{
		Path:         path.Join(pathParts...),
		Content:      string(raw),
		MimeType:     resp.Header.Get("Content-Type"),
		Size:         int64(len(raw)),
		LastModified: time.Now(),
	}, nil
}

// RunDeclarativeAction выполняет шаблонное действие каталога.
//
// Параметры шага: template_key (обязателен) и payload-поля, доступные
// шаблону через пространство params. Шаблон задаёт method, endpoint и
// необязательный body.
func (s *Strategy) RunDeclarativeAction(ctx context.Context, conn *domain.Connection, secrets domain.Secrets, params, scriptInput map[string]any) (any, error) {
	templateKey, _ := params["template_key"].(string)
	tpl := conn.Catalog.ActionTemplate(templateKey)
	if tpl == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoTemplate, templateKey)
	}

	base, err := baseURL(conn)
	if err != nil {
		return nil, err
	}

	method := "GET"
	if v, ok := tpl["method"].(string); ok && v != "" {
		method = strings.ToUpper(v)
	}

	endpoint, _ := tpl["api_endpoint"].(string)
	endpoint = substitute(endpoint, conn, secrets, params)

	var bodyReader io.Reader
	if payload, ok := tpl["payload"]; ok && payload != nil {
		rendered := substituteValue(payload, conn, secrets, params)
		raw, err := json.Marshal(rendered)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	resp, err := s.doRequest(ctx, method, joinURL(base, endpoint), bodyReader, conn, secrets)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: HTTP %d: %s", method, endpoint, resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = string(raw)
	}
	return parsed, nil
}

// doRequest выполняет HTTP-запрос с аутентификацией каталога.
// Таймаут держит клиент стратегии: он покрывает и чтение тела,
// которое происходит уже после возврата отсюда.
func (s *Strategy) doRequest(ctx context.Context, method, target string, body io.Reader, conn *domain.Connection, secrets domain.Secrets) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	applyAuth(req, conn, secrets)

	s.logger.Debug("rest request", "method", method, "url", target)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	return resp, nil
}

// getJSON выполняет GET и разбирает JSON-ответ.
func (s *Strategy) getJSON(ctx context.Context, target string, conn *domain.Connection, secrets domain.Secrets) (any, int, error) {
	resp, err := s.doRequest(ctx, http.MethodGet, target, nil, conn, secrets)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return parsed, resp.StatusCode, nil
}

// applyAuth применяет схему аутентификации каталога:
// browse_config.auth = {type: bearer|basic|header, secret, header_name, user}.
func applyAuth(req *http.Request, conn *domain.Connection, secrets domain.Secrets) {
	if conn == nil || conn.Catalog == nil || conn.Catalog.BrowseConfig == nil {
		return
	}
	auth, ok := conn.Catalog.BrowseConfig["auth"].(map[string]any)
	if !ok {
		return
	}

	secretName, _ := auth["secret"].(string)
	secret := secrets[secretName]
	if secret == "" {
		secret = secrets["api_key"]
	}

	switch authType, _ := auth["type"].(string); authType {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+secret)
	case "basic":
		user, _ := auth["user"].(string)
		if user == "" {
			user = conn.Detail("user")
		}
		req.SetBasicAuth(user, secret)
	case "header":
		name, _ := auth["header_name"].(string)
		if name != "" {
			req.Header.Set(name, secret)
		}
	}
}

// baseURL возвращает базовый URL каталога с подстановкой деталей
// подключения.
func baseURL(conn *domain.Connection) (string, error) {
	base := conn.Catalog.BaseURL()
	if base == "" {
		return "", ErrNoBaseURL
	}
	return substitute(base, conn, nil, nil), nil
}

// joinURL присоединяет endpoint к базовому URL.
func joinURL(base, endpoint string) string {
	if endpoint == "" {
		return base
	}
	if u, err := url.Parse(endpoint); err == nil && u.IsAbs() {
		return endpoint
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
