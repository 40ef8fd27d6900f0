package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ChromeAcquirer drives headless Chrome to the seed page and records the
// first API request that matches the seed.
type ChromeAcquirer struct {
	ExecPath  string
	UserAgent string
	Timeout   time.Duration
	Log       *slog.Logger
}

func (c *ChromeAcquirer) Acquire(ctx context.Context, seed Seed) (*Bundle, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := c.Log
	if log == nil {
		log = slog.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}
	if c.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	captured := make(chan *Bundle, 1)
	var once sync.Once
	chromedp.ListenTarget(taskCtx, func(ev any) {
		e, ok := ev.(*network.EventRequestWillBeSent)
		if !ok || e.Request == nil {
			return
		}
		if b, ok := bundleFromRequest(e.Request.URL, e.Request.Headers, seed, time.Now()); ok {
			once.Do(func() { captured <- b })
		}
	})

	log.Debug("browser navigating", "seed", seed.URL)
	if err := chromedp.Run(taskCtx, network.Enable(), chromedp.Navigate(seed.URL)); err != nil {
		// The page may keep loading after the API call we need already fired.
		select {
		case b := <-captured:
			return b, nil
		default:
		}
		return nil, fmt.Errorf("navigate %s: %w", seed.URL, err)
	}

	select {
	case b := <-captured:
		log.Info("credentials captured", "seed", seed.URL, "has_token", b.Token != "", "has_hash", b.Hash != "")
		return b, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s", ErrNoCapture, seed.URL)
	}
}
