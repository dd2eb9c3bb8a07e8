package sqlpg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conduit/internal/domain"
)

// Key — ключ провайдера PostgreSQL-стратегии.
const Key = "sql-postgres"

const connectTimeout = 5 * time.Second

// ErrNoDSN — в подключении не хватает данных для построения DSN.
var ErrNoDSN = errors.New("connection does not define database address")

// Strategy — стратегия PostgreSQL поверх pgx.
//
// Пул создаётся на каждое получение клиента и закрывается его
// release-функцией: время жизни соединений ограничено одним шагом.
type Strategy struct {
	logger *slog.Logger
}

// New создаёт PostgreSQL-стратегию.
func New(logger *slog.Logger) *Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Strategy{logger: logger}
}

// Key возвращает ключ провайдера.
func (s *Strategy) Key() string { return Key }

// TestConnection открывает пул и пингует базу.
func (s *Strategy) TestConnection(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) error {
	pool, release, err := s.newPool(ctx, conn, secrets)
	if err != nil {
		return err
	}
	defer release()

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

// GetClient возвращает пул соединений. Release закрывает пул.
func (s *Strategy) GetClient(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) (any, func() error, error) {
	pool, release, err := s.newPool(ctx, conn, secrets)
	if err != nil {
		return nil, nil, err
	}
	return pool, release, nil
}

// ExecuteQuery выполняет запрос и возвращает
// {"parameters": params, "data": записи, "count": n}.
// Именованные параметры передаются как @name.
func (s *Strategy) ExecuteQuery(ctx context.Context, query string, params map[string]any, conn *domain.Connection, secrets domain.Secrets) (any, error) {
	pool, release, err := s.newPool(ctx, conn, secrets)
	if err != nil {
		return nil, err
	}
	defer release()

	args := make([]any, 0, 1)
	if len(params) > 0 {
		args = append(args, pgx.NamedArgs(params))
	}

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	records, err := collectRows(rows)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("query executed", "rows", len(records))

	return map[string]any{
		"parameters": params,
		"data":       records,
		"count":      len(records),
	}, nil
}

// newPool создаёт пул по данным подключения.
func (s *Strategy) newPool(ctx context.Context, conn *domain.Connection, secrets domain.Secrets) (*pgxpool.Pool, func() error, error) {
	dsn, err := buildDSN(conn, secrets)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("new pool: %w", err)
	}

	release := func() error {
		pool.Close()
		return nil
	}
	return pool, release, nil
}

// buildDSN собирает DSN из деталей подключения и секретов.
// Явный details.dsn имеет приоритет; пароль подставляется из секретов.
func buildDSN(conn *domain.Connection, secrets domain.Secrets) (string, error) {
	if dsn := conn.Detail("dsn"); dsn != "" {
		return dsn, nil
	}

	host := conn.Detail("host")
	database := conn.Detail("database")
	if host == "" || database == "" {
		return "", ErrNoDSN
	}

	port := conn.Detail("port")
	if port == "" {
		port = "5432"
	}

	u := url.URL{
		Scheme: "postgresql",
		Host:   host + ":" + port,
		Path:   "/" + database,
	}
	if user := conn.Detail("user"); user != "" {
		u.User = url.UserPassword(user, secrets["password"])
	}

	q := u.Query()
	if sslmode := conn.Detail("sslmode"); sslmode != "" {
		q.Set("sslmode", sslmode)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// collectRows материализует результат запроса в список записей.
func collectRows(rows pgx.Rows) ([]map[string]any, error) {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var records []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		rec := make(map[string]any, len(columns))
		for i, col := range columns {
			rec[col] = values[i]
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}
