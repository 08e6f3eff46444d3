package proxy

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ProxyManager hands out outbound proxies for retailer requests
type ProxyManager interface {
	// Next returns the proxy to use for the next request, nil for a direct connection
	Next() *url.URL

	// MarkFailed takes a proxy out of rotation for the cooldown period
	MarkFailed(proxy *url.URL)
}

// ProxyInfo holds the rotation state of one proxy
type ProxyInfo struct {
	URL         *url.URL  `json:"url"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure"`
}

// Rotator is a round-robin ProxyManager over a static list
type Rotator struct {
	mutex    sync.Mutex
	proxies  []ProxyInfo
	next     int
	cooldown time.Duration
	now      func() time.Time
}

// NewRotator parses the configured proxy URLs (http, https or socks5)
func NewRotator(rawURLs []string, cooldown time.Duration) (*Rotator, error) {
	r := &Rotator{
		cooldown: cooldown,
		now:      time.Now,
	}
	for _, raw := range rawURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", raw, err)
		}
		switch u.Scheme {
		case "http", "https", "socks5":
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q in %q", u.Scheme, raw)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("proxy url %q has no host", raw)
		}
		r.proxies = append(r.proxies, ProxyInfo{URL: u})
	}
	return r, nil
}

// Len returns the number of configured proxies
func (r *Rotator) Len() int {
	return len(r.proxies)
}

// Next returns the next proxy not cooling down. When every proxy is cooling
// down the least recently failed one is returned.
func (r *Rotator) Next() *url.URL {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(r.proxies) == 0 {
		return nil
	}

	now := r.now()
	for i := 0; i < len(r.proxies); i++ {
		idx := (r.next + i) % len(r.proxies)
		p := r.proxies[idx]
		if p.Failures == 0 || now.Sub(p.LastFailure) >= r.cooldown {
			r.next = idx + 1
			return p.URL
		}
	}

	oldest := 0
	for i, p := range r.proxies {
		if p.LastFailure.Before(r.proxies[oldest].LastFailure) {
			oldest = i
		}
	}
	log.Debug().Str("proxy", r.proxies[oldest].URL.Host).Msg("All proxies cooling down, reusing oldest failure")
	r.next = oldest + 1
	return r.proxies[oldest].URL
}

// MarkFailed records a failed request through proxy
func (r *Rotator) MarkFailed(proxy *url.URL) {
	if proxy == nil {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i := range r.proxies {
		if r.proxies[i].URL.String() == proxy.String() {
			r.proxies[i].Failures++
			r.proxies[i].LastFailure = r.now()
			log.Warn().
				Str("proxy", proxy.Host).
				Int("failures", r.proxies[i].Failures).
				Msg("Proxy marked as failed")
			return
		}
	}
}

// Stats returns a copy of the rotation state
func (r *Rotator) Stats() []ProxyInfo {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make([]ProxyInfo, len(r.proxies))
	copy(out, r.proxies)
	return out
}
