package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/deusflow/newsdesk/internal/news"
)

// FileStore keeps every item in a single JSON file. It is meant for
// local runs with one process; there is no cross-process locking.
type FileStore struct {
	filePath string
	items    []news.Item
	nextID   int64
	mu       sync.RWMutex
	now      func() time.Time
}

var _ Repository = (*FileStore)(nil)

type fileSnapshot struct {
	NextID int64       `json:"next_id"`
	Items  []news.Item `json:"items"`
}

// OpenFileStore loads an existing store or starts an empty one.
func OpenFileStore(filePath string) (*FileStore, error) {
	fs := &FileStore{filePath: filePath, nextID: 1, now: time.Now}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal store: %w", err)
	}
	fs.items = snap.Items
	fs.nextID = snap.NextID
	for _, it := range fs.items {
		if it.ID >= fs.nextID {
			fs.nextID = it.ID + 1
		}
	}
	return nil
}

// save writes through a temp file so a crash never leaves half a store.
// Callers hold the write lock.
func (fs *FileStore) save() error {
	data, err := json.MarshalIndent(fileSnapshot{NextID: fs.nextID, Items: fs.items}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(fs.filePath), ".newsdesk-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), fs.filePath)
}

func (fs *FileStore) ExistsURL(_ context.Context, url string) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	for _, it := range fs.items {
		if it.SourceURL == url {
			return true, nil
		}
	}
	return false, nil
}

func (fs *FileStore) ExistsNormalizedTitle(_ context.Context, normalized string) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	for _, it := range fs.items {
		if it.NormalizedTitle == normalized {
			return true, nil
		}
	}
	return false, nil
}

func (fs *FileStore) RecentTitles(_ context.Context, since time.Time) ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var titles []string
	for _, it := range fs.items {
		if !it.CreatedAt.Before(since) || (it.PublishedAt != nil && !it.PublishedAt.Before(since)) {
			titles = append(titles, it.NormalizedTitle)
		}
	}
	return titles, nil
}

func (fs *FileStore) InsertDraft(_ context.Context, item news.Item) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, it := range fs.items {
		if it.SourceURL == item.SourceURL {
			return false, nil
		}
	}

	item.ID = fs.nextID
	item.NormalizedTitle = news.NormalizeTitle(item.Title)
	item.Status = news.StatusDraft
	item.CreatedAt = fs.now().UTC()
	item.RewrittenText = nil
	item.TelegramPostID = nil
	item.PublishedAt = nil
	item.ErrorLog = nil

	fs.items = append(fs.items, item)
	fs.nextID++
	if err := fs.save(); err != nil {
		fs.items = fs.items[:len(fs.items)-1]
		fs.nextID--
		return false, err
	}
	return true, nil
}

func (fs *FileStore) PendingDrafts(_ context.Context, limit int) ([]news.Item, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var out []news.Item
	for _, it := range fs.items {
		if it.Status == news.StatusDraft && it.TelegramPostID == nil {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (fs *FileStore) CountPublishedSince(_ context.Context, since time.Time) (map[string]int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	counts := make(map[string]int)
	for _, it := range fs.items {
		if it.Status == news.StatusPublished && it.PublishedAt != nil && !it.PublishedAt.Before(since) {
			counts[it.Language]++
		}
	}
	return counts, nil
}

func (fs *FileStore) LastPublishedAt(_ context.Context, language string) (time.Time, bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var last time.Time
	found := false
	for _, it := range fs.items {
		if it.Status != news.StatusPublished || it.Language != language || it.PublishedAt == nil {
			continue
		}
		if !found || it.PublishedAt.After(last) {
			last = *it.PublishedAt
			found = true
		}
	}
	return last, found, nil
}

func (fs *FileStore) MarkPublished(_ context.Context, id int64, rewritten, postID string, at time.Time) error {
	return fs.transition(id, func(it *news.Item) {
		it.Status = news.StatusPublished
		it.RewrittenText = &rewritten
		it.TelegramPostID = &postID
		at := at.UTC()
		it.PublishedAt = &at
		it.ErrorLog = nil
	})
}

func (fs *FileStore) MarkError(_ context.Context, id int64, rewritten *string, errLog string) error {
	return fs.transition(id, func(it *news.Item) {
		it.Status = news.StatusError
		it.RewrittenText = rewritten
		it.ErrorLog = &errLog
	})
}

func (fs *FileStore) transition(id int64, apply func(*news.Item)) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for i := range fs.items {
		if fs.items[i].ID != id {
			continue
		}
		if fs.items[i].Status != news.StatusDraft {
			return fmt.Errorf("%w: id %d is %s", ErrNotDraft, id, fs.items[i].Status)
		}
		prev := fs.items[i]
		apply(&fs.items[i])
		if err := fs.save(); err != nil {
			fs.items[i] = prev
			return err
		}
		return nil
	}
	return ErrNotFound
}

func (fs *FileStore) Cleanup(_ context.Context, olderThan time.Time) (int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	kept := fs.items[:0:0]
	var removed int64
	for _, it := range fs.items {
		if it.Status != news.StatusDraft && it.CreatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	if removed == 0 {
		return 0, nil
	}
	prev := fs.items
	fs.items = kept
	if err := fs.save(); err != nil {
		fs.items = prev
		return 0, err
	}
	return removed, nil
}

func (fs *FileStore) Stats(_ context.Context) (map[string]int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	stats := map[string]int{"draft": 0, "published": 0, "error": 0}
	for _, it := range fs.items {
		stats[string(it.Status)]++
	}
	return stats, nil
}

func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.save()
}
