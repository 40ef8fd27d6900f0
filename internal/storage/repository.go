// Package storage persists news items. Postgres is the production store;
// the JSON file store serves local runs.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/deusflow/newsdesk/internal/news"
)

var (
	ErrNotFound = errors.New("news item not found")
	// ErrNotDraft is returned when a transition targets a row that already
	// left the draft state. Status only moves draft -> published|error.
	ErrNotDraft = errors.New("news item is not a draft")
)

type Repository interface {
	ExistsURL(ctx context.Context, url string) (bool, error)
	ExistsNormalizedTitle(ctx context.Context, normalized string) (bool, error)
	// RecentTitles returns normalized titles created or published since.
	RecentTitles(ctx context.Context, since time.Time) ([]string, error)

	// InsertDraft stores a new draft; false means the URL already exists.
	InsertDraft(ctx context.Context, item news.Item) (bool, error)
	// PendingDrafts lists unpublished drafts, oldest first.
	PendingDrafts(ctx context.Context, limit int) ([]news.Item, error)
	CountPublishedSince(ctx context.Context, since time.Time) (map[string]int, error)
	LastPublishedAt(ctx context.Context, language string) (time.Time, bool, error)

	// MarkPublished and MarkError write the terminal status together with
	// the rewritten text in one step.
	MarkPublished(ctx context.Context, id int64, rewritten, postID string, at time.Time) error
	MarkError(ctx context.Context, id int64, rewritten *string, errLog string) error

	// Cleanup deletes published and error rows created before olderThan.
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
	Stats(ctx context.Context) (map[string]int, error)
	Close() error
}
