package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

var gooseOnce sync.Once

// SQLiteIndex implements Index using SQLite. SQLite allows a single writer,
// so every insert holds writeMu.
type SQLiteIndex struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewSQLiteIndex opens the database at dsn and applies migrations.
func NewSQLiteIndex(dsn string) (*SQLiteIndex, error) {
	if err := ensureDir(dsn); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	idx := &SQLiteIndex{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return idx, nil
}

// migrate applies the embedded goose migrations.
func (s *SQLiteIndex) migrate() error {
	gooseOnce.Do(func() {
		goose.SetBaseFS(migrations)
		goose.SetLogger(goose.NopLogger())
	})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// ensureDir creates the parent directory of a file-backed dsn.
func ensureDir(dsn string) error {
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Close closes the database.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// InsertArtifact indexes a written artifact.
func (s *SQLiteIndex) InsertArtifact(ctx context.Context, row ArtifactRow) error {
	mime := row.MimeType
	if mime == "" {
		mime = domain.ArtifactMimeTypeJSON
	}
	return s.insert(ctx, "insert artifact",
		`INSERT INTO artifacts (session_id, category, path, mime_type, created_at, meta_json) VALUES (?, ?, ?, ?, ?, ?)`,
		row.SessionID, row.Category, row.Path, mime, unixSeconds(row.CreatedAt), jsonOr(row.Meta, "{}"),
	)
}

// InsertDialog records a dialog summary.
func (s *SQLiteIndex) InsertDialog(ctx context.Context, sessionID string, d domain.DialogSummary, at time.Time) error {
	return s.insert(ctx, "insert dialog",
		`INSERT INTO dialogs (session_id, user_question, agent_answer, intent, key_info_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, d.UserQuestion, d.AgentAnswer, d.Intent, jsonOr(d.KeyInfo, "{}"), unixSeconds(at),
	)
}

// InsertSearch records a product search.
func (s *SQLiteIndex) InsertSearch(ctx context.Context, sessionID string, r domain.SearchRecord, at time.Time) error {
	return s.insert(ctx, "insert search",
		`INSERT INTO searches (session_id, query, filters_json, page, total, search_type, categories_json, top_products_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, r.Query, jsonOr(r.Filters, "{}"), r.Page, r.Meta.Total, r.Meta.SearchType,
		jsonOr(r.Meta.Categories, "{}"), jsonOr(r.TopProducts, "[]"), unixSeconds(at),
	)
}

// InsertComparison records a product comparison.
func (s *SQLiteIndex) InsertComparison(ctx context.Context, sessionID string, c domain.ComparisonRecord, at time.Time) error {
	return s.insert(ctx, "insert comparison",
		`INSERT INTO comparisons (session_id, product_ids_json, products_json, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, jsonOr(c.ProductIDs, "[]"), jsonOr(c.Products, "[]"), unixSeconds(at),
	)
}

// InsertExplore records a product detail lookup.
func (s *SQLiteIndex) InsertExplore(ctx context.Context, sessionID string, e domain.ExploreRecord, at time.Time) error {
	return s.insert(ctx, "insert explore",
		`INSERT INTO explores (session_id, input, products_json, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, e.Input, jsonOr(e.Products, "[]"), unixSeconds(at),
	)
}

func (s *SQLiteIndex) insert(ctx context.Context, op, query string, args ...any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return domain.TransientIO(op, err)
	}
	return nil
}

// Counts returns the row count of every table. A table that cannot be
// counted reports -1.
func (s *SQLiteIndex) Counts(ctx context.Context) map[string]int64 {
	counts := make(map[string]int64, len(Tables))
	for _, table := range Tables {
		var n int64
		// table names come from the fixed Tables list
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+table).Scan(&n); err != nil {
			counts[table] = -1
			continue
		}
		counts[table] = n
	}
	return counts
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		t = time.Now()
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

// jsonOr encodes v, or returns fallback when v is nil or cannot be encoded.
func jsonOr(v any, fallback string) string {
	if v == nil {
		return fallback
	}
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return fallback
	}
	return string(data)
}
