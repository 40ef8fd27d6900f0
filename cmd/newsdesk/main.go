package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/deusflow/newsdesk/internal/app"
	"github.com/deusflow/newsdesk/internal/config"
	"github.com/deusflow/newsdesk/internal/logger"
	"github.com/deusflow/newsdesk/internal/news"
)

var sourcesFile string

var rootCmd = &cobra.Command{
	Use:           "newsdesk",
	Short:         "Kazakhstan news aggregator publishing to Telegram",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			return a.Serve(ctx)
		})
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one ingestion cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			rep, err := a.RunIngest(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("cycle %s: %d candidates, %d enriched, %d drafts, %d failed sources\n",
				rep.CycleID, rep.Candidates, rep.Enriched, rep.Drafts, len(rep.FailedSources))
			return nil
		})
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Run one publication cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			res, err := a.RunPublish(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("outcome=%s reason=%s item=%d language=%s message=%s\n",
				res.Outcome, res.Reason, res.ItemID, res.Language, res.MessageID)
			return nil
		})
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the configured news sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		srcs, err := config.LoadSources(sourcesFile)
		if err != nil {
			return err
		}
		renderSources(os.Stdout, srcs)
		return nil
	},
}

// renderSources prints the enabled sources. Disabled ones are dropped by
// LoadSources and never reach the table.
func renderSources(w io.Writer, srcs []config.Source) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Kind", "Language", "Limit", "URL"})
	for _, s := range srcs {
		u := s.URL
		if u == "" {
			u = s.SeedURL
		}
		t.AppendRow(table.Row{s.Name, s.Kind, s.Language, s.Limit, u})
	}
	t.AppendFooter(table.Row{"Total", "", "", "", len(srcs)})
	t.Render()
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Check storage connectivity and print item counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			counts, err := a.StoreStats(ctx)
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Status", "Items"})
			total := 0
			for _, status := range []news.Status{news.StatusDraft, news.StatusPublished, news.StatusError} {
				n := counts[string(status)]
				t.AppendRow(table.Row{status, n})
				total += n
			}
			t.AppendFooter(table.Row{"Total", total})
			t.Render()
			return nil
		})
	},
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg.SourcesFile = sourcesFile
	a, err := app.New(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func init() {
	defaultSources := os.Getenv("SOURCES_FILE")
	if defaultSources == "" {
		defaultSources = "configs/sources.yaml"
	}
	rootCmd.PersistentFlags().StringVar(&sourcesFile, "sources", defaultSources, "sources catalogue (YAML)")
	rootCmd.AddCommand(serveCmd, scrapeCmd, publishCmd, sourcesCmd, statsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("newsdesk failed", "error", err)
		os.Exit(1)
	}
}
