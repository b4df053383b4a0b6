package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/local/captionpipe/internal/failure"
)

// Renderer turns a URL into the HTML of its document after scripts ran.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

var ErrNavigationTimeout = errors.New("navigation did not reach network idle in time")

// ChromeRenderer loads the page in a fresh headless Chrome per call.
type ChromeRenderer struct {
	Width             int
	Height            int
	UserAgent         string
	SettleDelay       time.Duration
	NavigationTimeout time.Duration
	ExecPath          string
	Log               zerolog.Logger
}

func (r *ChromeRenderer) Render(ctx context.Context, target string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(r.Width, r.Height),
		chromedp.UserAgent(r.UserAgent),
	)
	if r.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.ExecPath))
	}

	// Both contexts are torn down on every return path, which kills the browser.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) { r.Log.Debug().Msgf(format, args...) }),
		chromedp.WithErrorf(func(format string, args ...interface{}) { r.Log.Warn().Msgf(format, args...) }),
	)
	defer cancelTab()

	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	// First Run starts the browser; keep it off the navigation deadline.
	if err := chromedp.Run(tabCtx, page.SetLifecycleEventsEnabled(true)); err != nil {
		return "", fmt.Errorf("start browser: %w", err)
	}
	// about:blank may already have reported idle
	select {
	case <-idle:
	default:
	}

	navCtx, cancelNav := context.WithTimeout(tabCtx, r.navigationTimeout())
	defer cancelNav()

	r.Log.Info().Str("url", target).Msg("navigating")
	if err := chromedp.Run(navCtx,
		chromedp.EmulateViewport(int64(r.Width), int64(r.Height)),
		chromedp.Navigate(target),
	); err != nil {
		if navCtx.Err() != nil && ctx.Err() == nil {
			return "", ErrNavigationTimeout
		}
		return "", fmt.Errorf("navigate: %w", err)
	}

	select {
	case <-idle:
	case <-navCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrNavigationTimeout
	}

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Sleep(r.SettleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("read rendered document: %w", err)
	}
	return html, nil
}

func (r *ChromeRenderer) navigationTimeout() time.Duration {
	if r.NavigationTimeout <= 0 {
		return 60 * time.Second
	}
	return r.NavigationTimeout
}

// HTTPRenderer fetches the raw document without executing scripts.
type HTTPRenderer struct {
	Client *resty.Client
	Log    zerolog.Logger
}

func (r *HTTPRenderer) Render(ctx context.Context, target string) (string, error) {
	r.Log.Info().Str("url", target).Msg("fetching page")
	res, err := r.Client.R().SetContext(ctx).Get(target)
	if err != nil {
		return "", err
	}
	if !res.IsSuccess() {
		return "", &failure.HTTPError{StatusCode: res.StatusCode(), URL: target, Body: failure.Excerpt(res.Body(), 200)}
	}
	return res.String(), nil
}
