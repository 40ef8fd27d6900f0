package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/deusflow/newsdesk/internal/news"
)

// PostgresStore keeps news items in the news_items table.
type PostgresStore struct {
	db  *sqlx.DB
	sb  sq.StatementBuilderType
	log *slog.Logger
}

var _ Repository = (*PostgresStore)(nil)

const itemColumns = `id, title, normalized_title, original_text, rewritten_text, source_name, source_url,
	source_published_at, image_url, language, score, status, telegram_post_id, created_at, published_at, error_log`

// Connect opens the pool and makes sure the schema exists.
func Connect(ctx context.Context, dsn string, log *slog.Logger) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := NewPostgresStore(db, log)
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info("postgres store connected")
	return store, nil
}

func NewPostgresStore(db *sqlx.DB, log *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		log: log,
	}
}

// DB exposes the pool for the advisory-lock leader backend.
func (s *PostgresStore) DB() *sql.DB { return s.db.DB }

// initSchema creates the necessary tables if they don't exist
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS news_items (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		normalized_title VARCHAR(255) NOT NULL,
		original_text TEXT NOT NULL,
		rewritten_text TEXT,
		source_name VARCHAR(200) NOT NULL,
		source_url TEXT NOT NULL UNIQUE,
		source_published_at TIMESTAMPTZ,
		image_url TEXT,
		language VARCHAR(8) NOT NULL DEFAULT 'ru',
		score DOUBLE PRECISION NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'published', 'error')),
		telegram_post_id VARCHAR(64),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		published_at TIMESTAMPTZ,
		error_log TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_news_items_normalized_title ON news_items(normalized_title);
	CREATE INDEX IF NOT EXISTS idx_news_items_status_created ON news_items(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_news_items_language_published ON news_items(language, published_at);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	s.log.Info("database schema initialized")
	return nil
}

func (s *PostgresStore) ExistsURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM news_items WHERE source_url = $1)`, url)
	if err != nil {
		return false, fmt.Errorf("exists url: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ExistsNormalizedTitle(ctx context.Context, normalized string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM news_items WHERE normalized_title = $1)`, normalized)
	if err != nil {
		return false, fmt.Errorf("exists title: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) RecentTitles(ctx context.Context, since time.Time) ([]string, error) {
	query, args, err := s.sb.Select("normalized_title").
		From("news_items").
		Where(sq.Or{sq.GtOrEq{"created_at": since}, sq.GtOrEq{"published_at": since}}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent titles query: %w", err)
	}

	var titles []string
	if err := s.db.SelectContext(ctx, &titles, query, args...); err != nil {
		return nil, fmt.Errorf("recent titles: %w", err)
	}
	return titles, nil
}

func (s *PostgresStore) InsertDraft(ctx context.Context, item news.Item) (bool, error) {
	query, args, err := s.sb.Insert("news_items").
		Columns("title", "normalized_title", "original_text", "source_name", "source_url",
			"source_published_at", "image_url", "language", "score", "status").
		Values(item.Title, news.NormalizeTitle(item.Title), item.OriginalText, item.SourceName, item.SourceURL,
			item.SourcePublishedAt, item.ImageURL, item.Language, item.Score, news.StatusDraft).
		Suffix("ON CONFLICT (source_url) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert draft: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert draft rows: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) PendingDrafts(ctx context.Context, limit int) ([]news.Item, error) {
	builder := s.sb.Select(itemColumns).
		From("news_items").
		Where(sq.Eq{"status": news.StatusDraft, "telegram_post_id": nil}).
		OrderBy("created_at ASC", "id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}

	var items []news.Item
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("pending drafts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountPublishedSince(ctx context.Context, since time.Time) (map[string]int, error) {
	query, args, err := s.sb.Select("language", "COUNT(*)").
		From("news_items").
		Where(sq.Eq{"status": news.StatusPublished}).
		Where(sq.GtOrEq{"published_at": since}).
		GroupBy("language").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count published: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var lang string
		var n int
		if err := rows.Scan(&lang, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[lang] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) LastPublishedAt(ctx context.Context, language string) (time.Time, bool, error) {
	var last sql.NullTime
	err := s.db.GetContext(ctx, &last,
		`SELECT MAX(published_at) FROM news_items WHERE status = $1 AND language = $2`,
		news.StatusPublished, language)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last published: %w", err)
	}
	return last.Time, last.Valid, nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, id int64, rewritten, postID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE news_items
		SET status = $2, rewritten_text = $3, telegram_post_id = $4, published_at = $5, error_log = NULL
		WHERE id = $1 AND status = $6`,
		id, news.StatusPublished, rewritten, postID, at, news.StatusDraft)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *PostgresStore) MarkError(ctx context.Context, id int64, rewritten *string, errLog string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE news_items
		SET status = $2, rewritten_text = $3, error_log = $4
		WHERE id = $1 AND status = $5`,
		id, news.StatusError, rewritten, errLog, news.StatusDraft)
	if err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// checkTransition turns "0 rows updated" into ErrNotFound or ErrNotDraft.
func (s *PostgresStore) checkTransition(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var status string
	err = s.db.GetContext(ctx, &status, `SELECT status FROM news_items WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load status: %w", err)
	}
	return fmt.Errorf("%w: id %d is %s", ErrNotDraft, id, status)
}

// Cleanup removes finished items older than the retention cutoff.
func (s *PostgresStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	query, args, err := s.sb.Delete("news_items").
		Where(sq.Eq{"status": []news.Status{news.StatusPublished, news.StatusError}}).
		Where(sq.Lt{"created_at": olderThan}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows > 0 {
		s.log.Info("cleaned up old news items", "rows", rows)
	}
	return rows, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM news_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{"draft": 0, "published": 0, "error": 0}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[status] = n
	}
	return stats, rows.Err()
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
