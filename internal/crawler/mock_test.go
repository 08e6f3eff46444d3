package crawler

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dealmungchi/pricewatcher/services/cache"
)

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	mu    sync.Mutex
	cache map[string][]byte
	ttl   map[string]time.Duration
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache: make(map[string][]byte),
		ttl:   make(map[string]time.Duration),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, cache.ErrMiss
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
	m.ttl[key] = expiration
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

// mockFetcher serves canned HTML
type mockFetcher struct {
	html         string
	headless     string
	err          error
	httpCalls    int
	headlessURLs []string
	lastHeaders  map[string]string
}

func (m *mockFetcher) FetchHTTP(_ context.Context, _ string, extraHeaders map[string]string) (io.Reader, error) {
	m.httpCalls++
	m.lastHeaders = extraHeaders
	if m.err != nil {
		return nil, m.err
	}
	return strings.NewReader(m.html), nil
}

func (m *mockFetcher) FetchHeadless(_ context.Context, url string) string {
	m.headlessURLs = append(m.headlessURLs, url)
	return m.headless
}

// mockBrowser records page options and replays a scripted navigation
type mockBrowser struct {
	page    *mockPage
	newErr  error
	options []PageOptions
}

func (b *mockBrowser) NewPage(_ context.Context, opts PageOptions) (BrowserPage, error) {
	b.options = append(b.options, opts)
	if b.newErr != nil {
		return nil, b.newErr
	}
	return b.page, nil
}

func (b *mockBrowser) Close() error { return nil }

type mockPage struct {
	html      string
	openErr   error
	htmlErr   error
	condition string
	timeout   time.Duration
	closed    bool
}

func (p *mockPage) Open(_ context.Context, _ string, condition string, timeout time.Duration) error {
	p.condition = condition
	p.timeout = timeout
	return p.openErr
}

func (p *mockPage) HTML() (string, error) {
	return p.html, p.htmlErr
}

func (p *mockPage) Close() error {
	p.closed = true
	return nil
}
