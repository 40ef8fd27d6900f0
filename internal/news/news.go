// Package news holds the domain types shared by ingestion and rotation.
package news

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusError     Status = "error"
)

// Languages the rotation scheduler balances.
const (
	LangRU = "ru"
	LangKZ = "kz"
)

// MaxNormalizedTitleRunes caps the stored normalized title.
const MaxNormalizedTitleRunes = 255

// Item is one persisted news record. Nullable columns are pointers.
type Item struct {
	ID                int64      `db:"id" json:"id"`
	Title             string     `db:"title" json:"title"`
	NormalizedTitle   string     `db:"normalized_title" json:"normalized_title"`
	OriginalText      string     `db:"original_text" json:"original_text"`
	RewrittenText     *string    `db:"rewritten_text" json:"rewritten_text,omitempty"`
	SourceName        string     `db:"source_name" json:"source_name"`
	SourceURL         string     `db:"source_url" json:"source_url"`
	SourcePublishedAt *time.Time `db:"source_published_at" json:"source_published_at,omitempty"`
	ImageURL          *string    `db:"image_url" json:"image_url,omitempty"`
	Language          string     `db:"language" json:"language"`
	Score             float64    `db:"score" json:"score"`
	Status            Status     `db:"status" json:"status"`
	TelegramPostID    *string    `db:"telegram_post_id" json:"telegram_post_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	PublishedAt       *time.Time `db:"published_at" json:"published_at,omitempty"`
	ErrorLog          *string    `db:"error_log" json:"error_log,omitempty"`
}

// Image returns the image URL or "".
func (it Item) Image() string {
	if it.ImageURL == nil {
		return ""
	}
	return *it.ImageURL
}

// Candidate is a headline discovered on a listing page, feed or API.
type Candidate struct {
	Title      string
	Link       string
	SourceName string
	Language   string // hint from the source record
	DateHint   string // raw date value when the listing carries one
	ImageHint  string // feed enclosure or API thumbnail
	Summary    string // feed description, used when the page yields no text
}

// Article is a candidate after enrichment.
type Article struct {
	Candidate
	Text         string
	ImageURL     string
	PublishedAt  time.Time
	DateResolved bool
	Language     string
	Score        float64
}

// Draft converts an admitted article into a new draft row.
func (a Article) Draft() Item {
	it := Item{
		Title:           a.Title,
		NormalizedTitle: NormalizeTitle(a.Title),
		OriginalText:    a.Text,
		SourceName:      a.SourceName,
		SourceURL:       a.Link,
		Language:        a.Language,
		Score:           a.Score,
		Status:          StatusDraft,
	}
	if a.DateResolved {
		published := a.PublishedAt
		it.SourcePublishedAt = &published
	}
	if a.ImageURL != "" {
		image := a.ImageURL
		it.ImageURL = &image
	}
	return it
}

// NormalizeTitle folds Unicode compatibility forms, lowercases, collapses
// whitespace and caps the length.
func NormalizeTitle(title string) string {
	folded := strings.Join(strings.Fields(strings.ToLower(norm.NFKC.String(title))), " ")
	if utf8.RuneCountInString(folded) <= MaxNormalizedTitleRunes {
		return folded
	}
	return string([]rune(folded)[:MaxNormalizedTitleRunes])
}
