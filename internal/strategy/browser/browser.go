package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Conduit/internal/domain"
	"github.com/shaiso/Conduit/internal/strategy"
)

// Key — ключ провайдера браузерной стратегии.
const Key = "browser-session"

const driverTimeout = 60 * time.Second

// Ошибки браузерной стратегии.
var (
	// ErrNoDriverURL — подключение не задаёт адрес драйвера.
	ErrNoDriverURL = errors.New("connection does not define driver_url")

	// ErrDriver — драйвер вернул ошибку.
	ErrDriver = errors.New("browser driver error")
)

// Strategy — stateful-стратегия браузерных сессий.
//
// Работает поверх внешнего драйвера с JSON-HTTP API
// (details.driver_url). Сессия открывается один раз на run;
// browser_* шаги транслируются в команды сессии.
type Strategy struct {
	client *http.Client
	logger *slog.Logger
}

// New создаёт браузерную стратегию.
func New(logger *slog.Logger) *Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Strategy{
		client: &http.Client{Timeout: driverTimeout},
		logger: logger,
	}
}

// Key возвращает ключ провайдера.
func (s *Strategy) Key() string { return Key }

// session — активная сессия драйвера.
type session struct {
	id        string
	driverURL string
}

// ID возвращает идентификатор сессии.
func (s *session) ID() string { return s.id }

// TestConnection проверяет доступность драйвера.
func (s *Strategy) TestConnection(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) error {
	driver, err := driverURL(conn)
	if err != nil {
		return err
	}

	_, err = s.call(ctx, http.MethodGet, driver+"/healthz", nil)
	return err
}

// GetClient возвращает HTTP-клиент драйвера. Освобождение закрывает
// простаивающие соединения.
func (s *Strategy) GetClient(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) (any, func() error, error) {
	release := func() error {
		s.client.CloseIdleConnections()
		return nil
	}
	return s.client, release, nil
}

// BrowsePath возвращает открытые страницы драйвера.
func (s *Strategy) BrowsePath(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) ([]strategy.BrowseEntry, error) {
	driver, err := driverURL(conn)
	if err != nil {
		return nil, err
	}

	body, err := s.call(ctx, http.MethodGet, driver+"/pages", nil)
	if err != nil {
		return nil, err
	}

	var pages []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(body, &pages); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}

	entries := make([]strategy.BrowseEntry, 0, len(pages))
	for _, page := range pages {
		entries = append(entries, strategy.BrowseEntry{
			Name: page.Title,
			Path: page.ID,
			Type: "page",
			Icon: "globe",
		})
	}
	return entries, nil
}

// GetContent возвращает исходный HTML страницы по её идентификатору.
func (s *Strategy) GetContent(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) (*strategy.Content, error) {
	driver, err := driverURL(conn)
	if err != nil {
		return nil, err
	}

	pageID := strings.Join(pathParts, "/")
	body, err := s.call(ctx, http.MethodGet, driver+"/pages/"+pageID+"/source", nil)
	if err != nil {
		return nil, err
	}

	return &strategy.Content{
		Path:         pageID,
		Content:      string(body),
		MimeType:     "text/html",
		Size:         int64(len(body)),
		LastModified: time.Now(),
	}, nil
}

// StartSession открывает сессию драйвера.
func (s *Strategy) StartSession(ctx context.Context, conn *domain.Connection, secrets domain.Secrets, vars map[string]any) (strategy.Session, error) {
	driver, err := driverURL(conn)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"variables": vars}
	if headless := conn.Detail("headless"); headless != "" {
		payload["headless"] = headless == "true"
	}

	body, err := s.call(ctx, http.MethodPost, driver+"/sessions", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("%w: driver returned no session_id", ErrDriver)
	}

	s.logger.Info("browser session opened", "session_id", resp.SessionID)

	return &session{id: resp.SessionID, driverURL: driver}, nil
}

// ExecuteStep выполняет одну сессионную команду.
func (s *Strategy) ExecuteStep(ctx context.Context, sess strategy.Session, cmd *strategy.SessionCommand, stepIndex int) (any, error) {
	ds, ok := sess.(*session)
	if !ok {
		return nil, fmt.Errorf("%w: foreign session handle %T", ErrDriver, sess)
	}

	payload := map[string]any{
		"command":    cmd,
		"step_index": stepIndex,
	}

	body, err := s.call(ctx, http.MethodPost, ds.driverURL+"/sessions/"+ds.id+"/steps", payload)
	if err != nil {
		return nil, err
	}

	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode step response: %w", err)
	}
	return result, nil
}

// EndSession закрывает сессию драйвера.
func (s *Strategy) EndSession(ctx context.Context, sess strategy.Session) error {
	ds, ok := sess.(*session)
	if !ok {
		return fmt.Errorf("%w: foreign session handle %T", ErrDriver, sess)
	}

	_, err := s.call(ctx, http.MethodDelete, ds.driverURL+"/sessions/"+ds.id, nil)
	if err != nil {
		return err
	}

	s.logger.Info("browser session closed", "session_id", ds.id)
	return nil
}

// call выполняет JSON-запрос к драйверу.
func (s *Strategy) call(ctx context.Context, method, target string, payload any) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal driver payload: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create driver request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriver, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read driver response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrDriver, resp.StatusCode, truncate(string(raw), 200))
	}
	return raw, nil
}

// driverURL возвращает адрес драйвера из подключения.
func driverURL(conn *domain.Connection) (string, error) {
	u := conn.Detail("driver_url")
	if u == "" {
		return "", ErrNoDriverURL
	}
	return strings.TrimRight(u, "/"), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
