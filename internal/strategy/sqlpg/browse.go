package sqlpg

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Conduit/internal/domain"
	"github.com/shaiso/Conduit/internal/strategy"
)

// BrowsePath обходит структуру базы по information_schema:
// [] → схемы, [schema] → таблицы, [schema, table] → колонки.
func (s *Strategy) BrowsePath(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) ([]strategy.BrowseEntry, error) {
	pool, release, err := s.newPool(ctx, conn, secrets)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		query string
		args  []any
		typ   string
		icon  string
	)
	switch len(pathParts) {
	case 0:
		query = `SELECT schema_name FROM information_schema.schemata
		         WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
		         ORDER BY schema_name`
		typ, icon = "schema", "folder"
	case 1:
		query = `SELECT table_name FROM information_schema.tables
		         WHERE table_schema = $1 ORDER BY table_name`
		args = append(args, pathParts[0])
		typ, icon = "table", "table"
	case 2:
		query = `SELECT column_name FROM information_schema.columns
		         WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position`
		args = append(args, pathParts[0], pathParts[1])
		typ, icon = "column", "tag"
	default:
		return nil, fmt.Errorf("path too deep: %v", pathParts)
	}

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("browse query: %w", err)
	}
	defer rows.Close()

	var entries []strategy.BrowseEntry
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan browse row: %w", err)
		}
		entries = append(entries, strategy.BrowseEntry{
			Name: name,
			Path: strings.Join(append(pathParts, name), "/"),
			Type: typ,
			Icon: icon,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate browse rows: %w", err)
	}
	return entries, nil
}

// GetContent возвращает выборку первых строк таблицы [schema, table]
// как JSON.
func (s *Strategy) GetContent(ctx context.Context, pathParts []string, conn *domain.Connection, secrets domain.Secrets) (*strategy.Content, error) {
	if len(pathParts) != 2 {
		return nil, fmt.Errorf("expected path [schema, table], got %v", pathParts)
	}

	pool, release, err := s.newPool(ctx, conn, secrets)
	if err != nil {
		return nil, err
	}
	defer release()

	// Идентификаторы нельзя передать параметрами, поэтому экранируются.
	query := fmt.Sprintf("SELECT * FROM %s.%s LIMIT 100",
		pgx.Identifier{pathParts[0]}.Sanitize(),
		pgx.Identifier{pathParts[1]}.Sanitize(),
	)

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample query: %w", err)
	}
	defer rows.Close()

	records, err := collectRows(rows)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshal sample: %w", err)
	}

	return &strategy.Content{
		Path:         strings.Join(pathParts, "/"),
		Content:      string(data),
		MimeType:     "application/json",
		Size:         int64(len(data)),
		LastModified: time.Now(),
	}, nil
}
