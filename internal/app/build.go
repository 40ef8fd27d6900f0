package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/deusflow/newsdesk/internal/browser"
	"github.com/deusflow/newsdesk/internal/cache"
	"github.com/deusflow/newsdesk/internal/config"
	"github.com/deusflow/newsdesk/internal/dates"
	"github.com/deusflow/newsdesk/internal/dedup"
	"github.com/deusflow/newsdesk/internal/ingest"
	"github.com/deusflow/newsdesk/internal/leader"
	"github.com/deusflow/newsdesk/internal/news"
	"github.com/deusflow/newsdesk/internal/ratelimit"
	"github.com/deusflow/newsdesk/internal/rewrite"
	"github.com/deusflow/newsdesk/internal/rotation"
	"github.com/deusflow/newsdesk/internal/scraper"
	"github.com/deusflow/newsdesk/internal/sources"
	"github.com/deusflow/newsdesk/internal/storage"
	"github.com/deusflow/newsdesk/internal/telegram"
)

// New builds the application from configuration. Call Close when done.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log.With("component", "app"), baseCtx: context.Background()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	srcs, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	log.Info("sources loaded", "count", len(srcs), "file", cfg.SourcesFile)

	if a.store, err = newStore(ctx, cfg, log); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = a.store.Close() })

	locker, err := a.newLocker(cfg, log)
	if err != nil {
		return nil, err
	}
	a.elector = leader.NewElector(locker, cfg.LeaderAttempts, cfg.LeaderRetryInterval, log.With("component", "leader"))

	a.limiter = ratelimit.NewCallLimiter(cfg.RewriteCallInterval, cfg.MaxRewriteCallsPerDay, cfg.Location(), log.With("component", "ratelimit"))
	rewriter, err := a.newRewriter(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a.ingest = a.newIngestJob(cfg, srcs, log)

	poster := telegram.NewClient(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramChatID, cfg.CaptionMaxRunes, log.With("component", "telegram"))
	a.publisher = rotation.NewPublisher(a.store, rewriter, poster, rotation.Policy{
		Location:             cfg.Location(),
		WorkHoursStart:       cfg.WorkHoursStart,
		WorkHoursEnd:         cfg.WorkHoursEnd,
		Primary:              cfg.PrimaryLanguage,
		Secondary:            cfg.SecondaryLanguage,
		SecondaryMinInterval: cfg.SecondaryMinInterval,
		Quotas:               cfg.LanguageQuotas,
	}, rotation.Options{
		AttributionLabel: cfg.AttributionLabel,
		MinPostRunes:     cfg.MinPostRunes,
		MaxPostRunes:     cfg.CaptionMaxRunes,
		PendingScanLimit: cfg.PendingScanLimit,
	}, log.With("component", "rotation"))

	ok = true
	return a, nil
}

func newStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Repository, error) {
	if cfg.Storage == "file" {
		fs, err := storage.OpenFileStore(cfg.StoreFile)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		log.Info("using file store", "path", cfg.StoreFile)
		return fs, nil
	}
	pg, err := storage.Connect(ctx, cfg.DatabaseURL, log.With("component", "storage"))
	if err != nil {
		return nil, err
	}
	return pg, nil
}

func (a *App) newLocker(cfg *config.Config, log *slog.Logger) (leader.Locker, error) {
	switch cfg.LeaderBackend {
	case "postgres":
		pg, ok := a.store.(*storage.PostgresStore)
		if !ok {
			return nil, fmt.Errorf("leader backend postgres needs STORAGE=postgres")
		}
		return leader.NewPostgresLocker(pg.DB(), cfg.LeaderLockID), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		a.closers = append(a.closers, func() { _ = client.Close() })
		return leader.NewRedisLocker(client, cfg.LeaderKey, cfg.LeaderTTL, log.With("component", "leader")), nil
	default:
		return &leader.Local{}, nil
	}
}

func (a *App) newRewriter(ctx context.Context, cfg *config.Config, log *slog.Logger) (rewrite.Rewriter, error) {
	if cfg.Rewriter == "passthrough" {
		return rewrite.Passthrough{}, nil
	}
	g, err := rewrite.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, a.limiter, rewrite.DefaultMaxRunes, log.With("component", "rewrite"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, g.Close)
	return g, nil
}

func (a *App) newIngestJob(cfg *config.Config, srcs []config.Source, log *slog.Logger) *ingest.Job {
	client := &http.Client{Timeout: cfg.RequestTimeout}

	var acquirer browser.Acquirer
	if cfg.DynamicStaticToken != "" {
		acquirer = &browser.StaticAcquirer{Token: cfg.DynamicStaticToken}
	} else {
		acquirer = &browser.ChromeAcquirer{
			ExecPath:  cfg.ChromePath,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.BrowserTimeout,
			Log:       log.With("component", "browser"),
		}
	}

	collector := sources.NewCollector(
		sources.NewStaticAdapter(client, cfg.UserAgent),
		sources.NewFeedAdapter(client, cfg.UserAgent),
		sources.NewDynamicAdapter(client, cfg.UserAgent, acquirer),
		acquirer,
		sources.CollectorOptions{
			BatchSize:        cfg.DynamicBatchSize,
			RequestDelay:     cfg.DynamicRequestDelay,
			BatchPause:       cfg.DynamicBatchPause,
			CredentialMaxAge: cfg.CredentialMaxAge,
		},
		log.With("component", "collector"),
	)

	enrichCache := cache.New[news.Article](cfg.EnrichCacheTTL)
	a.closers = append(a.closers, enrichCache.Close)
	enricher := scraper.NewEnricher(client, cfg.UserAgent, cfg.MinParagraphRunes,
		dates.NewParser(cfg.Location()), enrichCache, log.With("component", "scraper"))

	filter := dedup.NewFilter(a.store, dedup.Options{
		FuzzyThreshold: cfg.FuzzyThreshold,
		FuzzyWindow:    cfg.FuzzyWindow,
		TopicKeywords:  cfg.TopicKeywords,
		MaxAge:         cfg.NewsMaxAge,
	})

	return ingest.NewJob(srcs, collector, filter, enricher, a.store, ingest.Options{
		MaxEnrich: cfg.MaxEnrichPerCycle,
		MaxDrafts: cfg.MaxDraftsPerCycle,
	}, log.With("component", "ingest"))
}
