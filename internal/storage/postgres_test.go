package storage

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsdesk/internal/news"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewPostgresStore(sqlxDB, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func TestPostgresStore_InsertDraft(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		want      bool
		wantErr   bool
	}{
		{
			name: "new url",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO news_items")).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
			want: true,
		},
		{
			name: "url conflict",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("ON CONFLICT \\(source_url\\) DO NOTHING").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			want: false,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO news_items").WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setupMock(mock)

			got, err := store.InsertDraft(context.Background(), news.Item{
				Title:        "Курс тенге",
				OriginalText: "text",
				SourceName:   "Kapital",
				SourceURL:    "https://kapital.kz/a/1",
				Language:     news.LangRU,
			})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_ExistsURL(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM news_items WHERE source_url = $1)")).
		WithArgs("https://a.kz/1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.ExistsURL(context.Background(), "https://a.kz/1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PendingDrafts(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	cols := []string{"id", "title", "normalized_title", "original_text", "rewritten_text", "source_name",
		"source_url", "source_published_at", "image_url", "language", "score", "status",
		"telegram_post_id", "created_at", "published_at", "error_log"}

	mock.ExpectQuery("(?s)SELECT .* FROM news_items WHERE .*telegram_post_id IS NULL.* ORDER BY created_at ASC, id ASC LIMIT 10").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, "A", "a", "text a", nil, "Kapital", "https://a.kz/1", nil, "https://a.kz/1.jpg", "ru", 2.5, "draft", nil, created, nil, nil).
			AddRow(2, "B", "b", "text b", nil, "Egemen", "https://b.kz/2", created, nil, "kz", 1.0, "draft", nil, created.Add(time.Minute), nil, nil))

	items, err := store.PendingDrafts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].ID)
	assert.Equal(t, "https://a.kz/1.jpg", items[0].Image())
	assert.Nil(t, items[0].SourcePublishedAt)
	assert.Equal(t, news.LangKZ, items[1].Language)
	assert.Equal(t, news.StatusDraft, items[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountPublishedSince(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT language, COUNT\\(\\*\\) FROM news_items .* GROUP BY language").
		WithArgs(news.StatusPublished, since).
		WillReturnRows(sqlmock.NewRows([]string{"language", "count"}).AddRow("ru", 4).AddRow("kz", 1))

	counts, err := store.CountPublishedSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ru": 4, "kz": 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LastPublishedAt(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT MAX\\(published_at\\)").
		WithArgs(news.StatusPublished, "kz").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	_, ok, err := store.LastPublishedAt(context.Background(), "kz")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkPublished(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name: "draft transitions",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE news_items").
					WithArgs(int64(7), news.StatusPublished, "rewritten", "42", at, news.StatusDraft).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "already published",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE news_items").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT status FROM news_items").
					WithArgs(int64(7)).
					WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("published"))
			},
			wantErr: ErrNotDraft,
		},
		{
			name: "missing row",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE news_items").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT status FROM news_items").WillReturnError(sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setupMock(mock)

			err := store.MarkPublished(context.Background(), 7, "rewritten", "42", at)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_MarkErrorKeepsRewrite(t *testing.T) {
	store, mock := newMockStore(t)
	rewritten := "text"
	mock.ExpectExec("UPDATE news_items").
		WithArgs(int64(3), news.StatusError, &rewritten, "integrity: too short", news.StatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkError(context.Background(), 3, &rewritten, "integrity: too short"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Cleanup(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM news_items WHERE status IN \\(\\$1,\\$2\\) AND created_at < \\$3").
		WithArgs(news.StatusPublished, news.StatusError, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := store.Cleanup(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
