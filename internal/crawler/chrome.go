package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/dealmungchi/pricewatcher/config"
)

// ErrWaitTimeout is returned by BrowserPage.Open when the readiness condition
// was not reached in time. The page may still hold partial content.
var ErrWaitTimeout = errors.New("headless wait timed out")

// PageOptions configures a browser page before navigation
type PageOptions struct {
	UserAgent string
	Headers   map[string]string
}

// Browser opens isolated pages
type Browser interface {
	NewPage(ctx context.Context, opts PageOptions) (BrowserPage, error)
	Close() error
}

// BrowserPage is one navigable page in its own browser context
type BrowserPage interface {
	Open(ctx context.Context, url, condition string, timeout time.Duration) error
	HTML() (string, error)
	Close() error
}

// RodBrowser launches a headless Chromium on first use and hands out one
// incognito context per page.
type RodBrowser struct {
	bin string

	mu      sync.Mutex
	browser *rod.Browser
}

// NewRodBrowser creates a browser. bin may be empty to let the launcher
// find or download Chromium.
func NewRodBrowser(bin string) *RodBrowser {
	return &RodBrowser{bin: bin}
}

func (b *RodBrowser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Leakless(false)
	if b.bin != "" {
		l = l.Bin(b.bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	b.browser = browser
	return browser, nil
}

// NewPage opens a blank page in a fresh incognito context
func (b *RodBrowser) NewPage(ctx context.Context, opts PageOptions) (BrowserPage, error) {
	browser, err := b.connect()
	if err != nil {
		return nil, err
	}

	incognito, err := browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			_ = incognito.Close()
			return nil, fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	if len(opts.Headers) > 0 {
		dict := make([]string, 0, len(opts.Headers)*2)
		for k, v := range opts.Headers {
			dict = append(dict, k, v)
		}
		if _, err := page.SetExtraHeaders(dict); err != nil {
			_ = incognito.Close()
			return nil, fmt.Errorf("failed to set headers: %w", err)
		}
	}

	return &rodPage{page: page, incognito: incognito}, nil
}

// Close shuts the browser down if it was launched
func (b *RodBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

type rodPage struct {
	page      *rod.Page
	incognito *rod.Browser
}

func (r *rodPage) Open(ctx context.Context, url, condition string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page := r.page.Context(waitCtx)

	var err error
	if condition == config.WaitLoad {
		if err = page.Navigate(url); err == nil {
			err = page.WaitLoad()
		}
	} else {
		wait := page.WaitNavigation(lifecycleEvent(condition))
		if err = page.Navigate(url); err == nil {
			wait()
		}
	}

	if ctx.Err() == nil && waitCtx.Err() != nil {
		return ErrWaitTimeout
	}
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return ctx.Err()
}

func (r *rodPage) HTML() (string, error) {
	return r.page.HTML()
}

func (r *rodPage) Close() error {
	_ = r.page.Close()
	return r.incognito.Close()
}

func lifecycleEvent(condition string) proto.PageLifecycleEventName {
	if condition == config.WaitDOMContentLoaded {
		return proto.PageLifecycleEventNameDOMContentLoaded
	}
	return proto.PageLifecycleEventNameNetworkIdle
}
