package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/newsdesk/internal/metrics"
	"github.com/deusflow/newsdesk/internal/news"
	"github.com/deusflow/newsdesk/internal/ratelimit"
	"github.com/deusflow/newsdesk/internal/retry"
	"github.com/deusflow/newsdesk/internal/rewrite"
	"github.com/deusflow/newsdesk/internal/storage"
)

// Outcome of one publication cycle.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeIdle      Outcome = "idle"
	OutcomePublished Outcome = "published"
	OutcomeError     Outcome = "error"
)

type Store interface {
	PendingDrafts(ctx context.Context, limit int) ([]news.Item, error)
	CountPublishedSince(ctx context.Context, since time.Time) (map[string]int, error)
	LastPublishedAt(ctx context.Context, language string) (time.Time, bool, error)
	MarkPublished(ctx context.Context, id int64, rewritten, postID string, at time.Time) error
	MarkError(ctx context.Context, id int64, rewritten *string, errLog string) error
}

// Poster sends a composed post and returns the channel message id.
type Poster interface {
	Publish(ctx context.Context, text, imageURL string) (string, error)
}

type Options struct {
	AttributionLabel string
	MinPostRunes     int
	MaxPostRunes     int
	PendingScanLimit int
}

type Result struct {
	Outcome   Outcome
	Reason    string
	ItemID    int64
	Language  string
	MessageID string
}

// Publisher moves at most one draft per cycle through
// draft-selected -> rewritten -> published | error.
type Publisher struct {
	store     Store
	rewriter  rewrite.Rewriter
	poster    Poster
	policy    Policy
	opts      Options
	log       *slog.Logger
	now       func() time.Time
	markRetry retry.RetryConfig
}

func NewPublisher(store Store, rewriter rewrite.Rewriter, poster Poster, policy Policy, opts Options, log *slog.Logger) *Publisher {
	if opts.AttributionLabel == "" {
		opts.AttributionLabel = "Түпнұсқа"
	}
	if opts.PendingScanLimit <= 0 {
		opts.PendingScanLimit = 50
	}
	return &Publisher{
		store:     store,
		rewriter:  rewriter,
		poster:    poster,
		policy:    policy,
		opts:      opts,
		log:       log,
		now:       time.Now,
		markRetry: retry.RetryConfig{MaxAttempts: 5, Delay: time.Second, Backoff: true},
	}
}

// RunCycle returns an error only for infrastructure failures (storage).
// A draft that fails rewriting, integrity or sending ends in the error
// state and the cycle reports OutcomeError. When the rewrite budget is spent
// or ctx is cancelled the draft stays pending and the cycle is skipped.
func (p *Publisher) RunCycle(ctx context.Context) (Result, error) {
	now := p.now()

	published, err := p.store.CountPublishedSince(ctx, p.policy.DayStart(now))
	if err != nil {
		return Result{}, fmt.Errorf("count published: %w", err)
	}
	if reason := p.policy.Gate(now, published); reason != "" {
		p.log.Info("publication skipped", "reason", reason, "published_today", published)
		return Result{Outcome: OutcomeSkipped, Reason: reason}, nil
	}

	lastSecondary, hasLast, err := p.store.LastPublishedAt(ctx, p.policy.Secondary)
	if err != nil {
		return Result{}, fmt.Errorf("last secondary publication: %w", err)
	}
	target := p.policy.Target(now, published, lastSecondary, hasLast)

	pending, err := p.store.PendingDrafts(ctx, p.opts.PendingScanLimit)
	if err != nil {
		return Result{}, fmt.Errorf("pending drafts: %w", err)
	}
	item, ok := p.policy.SelectDraft(pending, target, published)
	if !ok {
		p.log.Info("no drafts to process", "target", target, "pending", len(pending))
		return Result{Outcome: OutcomeIdle, Language: target}, nil
	}

	log := p.log.With("id", item.ID, "language", item.Language, "target", target)
	log.Info("draft selected", "title", item.Title)
	res := Result{ItemID: item.ID, Language: item.Language}

	rewritten, err := p.rewriter.Rewrite(ctx, rewrite.Request{Title: item.Title, Text: item.OriginalText, Language: item.Language})
	if err != nil {
		if skip := rewriteSkip(ctx, err); skip != "" {
			log.Warn("rewrite unavailable, draft kept", "reason", skip, "error", err)
			res.Outcome = OutcomeSkipped
			res.Reason = skip
			return res, nil
		}
		reason := err.Error()
		if errors.Is(err, rewrite.ErrRejected) {
			reason = "rejected by editor"
		}
		return p.fail(ctx, log, res, nil, "rewrite: "+reason)
	}
	log.Debug("draft rewritten")

	post := Compose(rewritten, item.SourceURL, p.opts.AttributionLabel, p.opts.MaxPostRunes)
	if err := CheckIntegrity(post, item.SourceURL, p.opts.AttributionLabel, p.opts.MinPostRunes); err != nil {
		return p.fail(ctx, log, res, &rewritten, err.Error())
	}

	messageID, err := p.poster.Publish(ctx, post, item.Image())
	if err != nil {
		return p.fail(ctx, log, res, &rewritten, "publish: "+err.Error())
	}

	at := p.now().UTC()
	err = retry.WithRetry(ctx, p.markRetry, func() error {
		err := p.store.MarkPublished(ctx, item.ID, rewritten, messageID, at)
		if errors.Is(err, storage.ErrNotDraft) || errors.Is(err, storage.ErrNotFound) {
			return retry.Stop(err)
		}
		return err
	})
	if err != nil {
		// The post is live but the row is still a draft.
		log.Error("post sent but not recorded", "message_id", messageID, "error", err)
		metrics.Global.SetError(err.Error())
		return res, fmt.Errorf("record publication %d: %w", item.ID, err)
	}

	res.Outcome = OutcomePublished
	res.MessageID = messageID
	metrics.Global.RecordPublication(item.Language, string(OutcomePublished))
	log.Info("news published", "message_id", messageID)
	return res, nil
}

// rewriteSkip reports whether a rewrite error is local to this process and
// says nothing about the draft itself.
func rewriteSkip(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return SkipCancelled
	case errors.Is(err, ratelimit.ErrBudgetExhausted):
		return SkipRewriteBudget
	}
	return ""
}

func (p *Publisher) fail(ctx context.Context, log *slog.Logger, res Result, rewritten *string, reason string) (Result, error) {
	log.Warn("draft failed", "reason", reason)
	res.Outcome = OutcomeError
	res.Reason = reason
	metrics.Global.RecordPublication(res.Language, string(OutcomeError))
	if err := p.store.MarkError(ctx, res.ItemID, rewritten, reason); err != nil {
		return res, fmt.Errorf("mark error %d: %w", res.ItemID, err)
	}
	return res, nil
}
