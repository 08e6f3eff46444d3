package crawler

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dealmungchi/pricewatcher/helpers"
	"github.com/dealmungchi/pricewatcher/logger"
	"github.com/dealmungchi/pricewatcher/pkg/errors"
	"github.com/dealmungchi/pricewatcher/services/cache"
	"github.com/dealmungchi/pricewatcher/services/proxy"
)

const maxBodySize = 10 << 20

// StatusSiteOverloaded is the non-standard status some retailers answer
// instead of 429.
const StatusSiteOverloaded = 430

type proxyKey struct{}

// FetcherOptions configures a Fetcher. Zero values fall back to defaults.
type FetcherOptions struct {
	Policy       *Policy
	Timeout      time.Duration
	HeadlessWait time.Duration
	BlockTime    time.Duration
	Cache        cache.CacheService
	Proxies      proxy.ProxyManager
	Browser      Browser
}

// Fetcher implements PageFetcher over a shared HTTP client and an optional
// headless browser.
type Fetcher struct {
	client       *http.Client
	policy       *Policy
	cache        cache.CacheService
	proxies      proxy.ProxyManager
	browser      Browser
	blockTime    time.Duration
	headlessWait time.Duration
	log          *logger.Logger
}

// NewFetcher creates a fetcher
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Policy == nil {
		opts.Policy = DefaultPolicy()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.HeadlessWait <= 0 {
		opts.HeadlessWait = 10 * time.Second
	}
	if opts.BlockTime <= 0 {
		opts.BlockTime = 5 * time.Minute
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	// the chosen proxy travels in the request context so a failure can be
	// attributed to it
	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey{}).(*url.URL); ok {
			return u, nil
		}
		return nil, nil
	}

	return &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		policy:       opts.Policy,
		cache:        opts.Cache,
		proxies:      opts.Proxies,
		browser:      opts.Browser,
		blockTime:    opts.BlockTime,
		headlessWait: opts.HeadlessWait,
		log:          logger.ForFetcher(),
	}
}

// FetchHTTP sends a GET with the policy's agent and headers and returns the
// decoded UTF-8 body.
func (f *Fetcher) FetchHTTP(ctx context.Context, rawURL string, extraHeaders map[string]string) (io.Reader, error) {
	host := matchTarget(rawURL)

	// Check if the host is rate limited
	if f.cache != nil {
		if ttl, err := f.cache.Get(cache.BlockKey(host)); err == nil {
			return nil, errors.NewRateLimit(rawURL, string(ttl)+"s")
		}
	}

	var proxyURL *url.URL
	if f.proxies != nil {
		proxyURL = f.proxies.Next()
		if proxyURL != nil {
			ctx = context.WithValue(ctx, proxyKey{}, proxyURL)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.NewFetch(rawURL, "failed to create request", err)
	}
	req.Header = f.policy.Headers(rawURL, extraHeaders)
	req.Header.Set("User-Agent", f.policy.SelectUserAgent(rawURL))
	req.Close = true

	resp, err := f.client.Do(req)
	if err != nil {
		if f.proxies != nil && ctx.Err() == nil {
			f.proxies.MarkFailed(proxyURL)
		}
		return nil, errors.NewFetch(rawURL, "request failed", err)
	}
	defer resp.Body.Close()

	// Check for rate limiting
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == StatusSiteOverloaded {
		f.block(host)
		return nil, errors.NewRateLimit(rawURL, resp.Header.Get("Retry-After"))
	}

	// Check for other error status codes
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewFetch(rawURL, fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.NewFetch(rawURL, "failed to read response body", err)
	}

	decoded, err := helpers.DecodeBody(body, resp.Header.Get("Content-Encoding"), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, errors.NewFetch(rawURL, "failed to decode response body", err)
	}

	return bytes.NewReader(decoded), nil
}

func (f *Fetcher) block(host string) {
	if f.cache == nil {
		return
	}
	seconds := strconv.Itoa(int(f.blockTime / time.Second))
	if err := f.cache.Set(cache.BlockKey(host), []byte(seconds), f.blockTime); err != nil {
		f.log.Warn().Err(err).Str("host", host).Msg("Failed to record rate limit block")
		return
	}
	f.log.Warn().Str("host", host).Dur("block", f.blockTime).Msg("Host rate limited, blocking further requests")
}

// FetchHeadless renders the page in an incognito browser context. A wait
// timeout yields whatever HTML is available, any other failure an empty
// string.
func (f *Fetcher) FetchHeadless(ctx context.Context, rawURL string) string {
	log := f.log.WithField("url", rawURL)

	if f.browser == nil {
		log.Warn().Msg("Headless fetch requested but no browser is configured")
		return ""
	}

	policyHeaders := f.policy.Headers(rawURL, nil)
	headers := make(map[string]string, len(policyHeaders))
	for k := range policyHeaders {
		headers[k] = policyHeaders.Get(k)
	}

	page, err := f.browser.NewPage(ctx, PageOptions{
		UserAgent: f.policy.SelectUserAgent(rawURL),
		Headers:   headers,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to open browser page")
		return ""
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close browser page")
		}
	}()

	condition := f.policy.WaitCondition(rawURL)
	err = page.Open(ctx, rawURL, condition, f.headlessWait)
	switch {
	case stderrors.Is(err, ErrWaitTimeout):
		log.Debug().Str("condition", condition).Dur("wait", f.headlessWait).Msg("Wait condition not reached, using partial page")
	case err != nil:
		log.Error().Err(err).Msg("Headless navigation failed")
		return ""
	}

	html, err := page.HTML()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read page HTML")
		return ""
	}
	return html
}
