package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealmungchi/pricewatcher/internal/crawler"
	"github.com/dealmungchi/pricewatcher/internal/history"
	"github.com/dealmungchi/pricewatcher/internal/model"
	"github.com/dealmungchi/pricewatcher/internal/policy"
	pipelineerrors "github.com/dealmungchi/pricewatcher/pkg/errors"
	"github.com/dealmungchi/pricewatcher/services/storage"
)

const productPage = `
<html><head><meta property="og:image" content="https://img.shop.example/kettle.jpg"></head>
<body>
	<h1 class="title">Stainless Kettle</h1>
	<span class="price">£80.00</span>
	<span class="seller">Sold by Shop Direct</span>
</body></html>`

type fakeFetcher struct {
	html string
	err  error
	urls []string
}

func (f *fakeFetcher) FetchHTTP(_ context.Context, url string, _ map[string]string) (io.Reader, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return strings.NewReader(f.html), nil
}

func (f *fakeFetcher) FetchHeadless(context.Context, string) string {
	return ""
}

type fakeNotifier struct {
	sent []model.Notification
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, n model.Notification) error {
	f.sent = append(f.sent, n)
	return f.err
}

type fakeFeed struct {
	items []model.FeedItem
	err   error
}

func (f *fakeFeed) Publish(_ context.Context, item model.FeedItem) error {
	f.items = append(f.items, item)
	return f.err
}

type fixture struct {
	store    *storage.MemoryStore
	tracker  *history.Tracker
	fetcher  *fakeFetcher
	notifier *fakeNotifier
	feed     *fakeFeed
	product  model.Product
	site     model.Site
	link     model.Link
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	product := store.AddProduct(model.Product{Name: model.PlaceholderName})
	site := store.AddSite(model.Site{Name: "Shop", Domain: "www.shop.example", Currency: "GBP", Referral: "?ref=pw"})
	link := store.AddLink(model.Link{
		ProductID:    product.ID,
		SiteID:       site.ID,
		Key:          "kettle-17",
		Price:        100,
		HighestPrice: 100,
		LowestPrice:  100,
		InStock:      true,
		NotifyPrice:  90,
	})

	return &fixture{
		store:    store,
		tracker:  history.NewTracker(store, time.UTC),
		fetcher:  &fakeFetcher{html: productPage},
		notifier: &fakeNotifier{},
		feed:     &fakeFeed{},
		product:  product,
		site:     site,
		link:     link,
	}
}

func (f *fixture) orchestrator(cfg policy.Config) *Orchestrator {
	registry := crawler.NewRegistry()
	registry.Register("shop.example", crawler.NewConfigurableAdapter(crawler.AdapterConfig{
		Name: "Shop",
		Selectors: crawler.Selectors{
			Name:   "h1.title",
			Price:  ".price",
			Seller: ".seller",
		},
	}))

	return New(Options{
		Repository: f.store,
		Adapters:   registry,
		Fetcher:    f.fetcher,
		History:    f.tracker,
		Engine:     policy.NewEngine(cfg),
		Notifier:   f.notifier,
		Feed:       f.feed,
	})
}

func TestCrawlPriceDrop(t *testing.T) {
	f := newFixture(t)
	result := f.orchestrator(policy.Config{}).Crawl(context.Background(), f.link.ID)

	assert.Empty(t, result.Failures)
	assert.Equal(t, "https://www.shop.example/kettle-17", result.URL)
	assert.Equal(t, []string{"https://www.shop.example/kettle-17"}, f.fetcher.urls)
	assert.True(t, result.Decision.Notify)
	assert.Equal(t, []string{policy.ReasonPriceReached}, result.Decision.Reasons)

	link, _ := f.store.Link(f.link.ID)
	assert.Equal(t, 80.0, link.Price)
	assert.Equal(t, 80.0, link.LowestPrice)
	assert.Equal(t, 100.0, link.HighestPrice)
	assert.Equal(t, 1, link.NotificationsSent)
	assert.Equal(t, "Sold by Shop Direct", link.Seller)

	row, ok := f.store.History(f.product.ID, f.site.ID, f.tracker.Today())
	require.True(t, ok)
	assert.Equal(t, 80.0, row.Price)

	product, _ := f.store.Product(f.product.ID)
	assert.Equal(t, "Stainless Kettle", product.Name)
	assert.Equal(t, "https://img.shop.example/kettle.jpg", product.Image)

	require.Len(t, f.notifier.sent, 1)
	n := f.notifier.sent[0]
	assert.Equal(t, "Stainless Kettle", n.ProductName)
	assert.Equal(t, "Shop", n.SiteName)
	assert.Equal(t, 80.0, n.Price)
	assert.Equal(t, 100.0, n.HighestPrice)
	assert.Equal(t, 80.0, n.LowestPrice)
	assert.Equal(t, "https://www.shop.example/kettle-17?ref=pw", n.ProductURL)
	assert.Equal(t, "GBP", n.Currency)
	assert.NotEmpty(t, n.Message)

	require.Len(t, f.feed.items, 1)
	assert.Equal(t, "For Just 80 - Discount For Stainless Kettle", f.feed.items[0].Title)
	assert.Equal(t, f.product.ID, f.feed.items[0].ProductID)
}

func TestCrawlNotificationUsesUpdatedExtremes(t *testing.T) {
	f := newFixture(t)
	f.store.AddLink(model.Link{
		ID:           f.link.ID,
		ProductID:    f.product.ID,
		SiteID:       f.site.ID,
		Key:          "kettle-17",
		Price:        100,
		HighestPrice: 150,
		LowestPrice:  95,
		InStock:      true,
		NotifyPrice:  90,
	})

	result := f.orchestrator(policy.Config{}).Crawl(context.Background(), f.link.ID)
	require.NotNil(t, result.Notification)

	// the crawled 80 is a new low, so the message carries it rather than
	// the 95 stored before the crawl
	assert.Equal(t, 80.0, result.Notification.LowestPrice)
	assert.Equal(t, 150.0, result.Notification.HighestPrice)
	assert.Contains(t, result.Notification.Message, "lowest GBP 80")

	link, _ := f.store.Link(f.link.ID)
	assert.Equal(t, link.LowestPrice, result.Notification.LowestPrice)
	assert.Equal(t, link.HighestPrice, result.Notification.HighestPrice)
}

func TestCrawlWithoutNotification(t *testing.T) {
	f := newFixture(t)
	f.store.AddLink(model.Link{ID: f.link.ID, ProductID: f.product.ID, SiteID: f.site.ID, Key: "kettle-17", Price: 100, NotifyPrice: 50})

	result := f.orchestrator(policy.Config{}).Crawl(context.Background(), f.link.ID)
	assert.Empty(t, result.Failures)
	assert.False(t, result.Decision.Notify)
	assert.Nil(t, result.Notification)
	assert.Empty(t, f.notifier.sent)
	assert.Empty(t, f.feed.items)

	link, _ := f.store.Link(f.link.ID)
	assert.Equal(t, 80.0, link.Price)
	assert.Equal(t, 0, link.NotificationsSent)
}

func TestCrawlFetchFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = pipelineerrors.NewFetch("https://www.shop.example/kettle-17", "connection reset", nil)

	result := f.orchestrator(policy.Config{}).Crawl(context.Background(), f.link.ID)
	require.Len(t, result.Failures, 1)
	assert.True(t, pipelineerrors.IsType(result.Failures[0], pipelineerrors.ErrorTypeFetch))
	assert.Equal(t, model.DefaultSnapshot(), result.Snapshot)
	assert.False(t, result.Decision.Notify)

	link, _ := f.store.Link(f.link.ID)
	assert.Equal(t, 0.0, link.Price, "a broken page resets the link to defaults")
	assert.Equal(t, 100.0, link.LowestPrice, "a zero price never becomes the lowest")
	assert.True(t, link.InStock)
	assert.Equal(t, model.DefaultRating, link.Rating)

	_, ok := f.store.History(f.product.ID, f.site.ID, f.tracker.Today())
	assert.False(t, ok)
	assert.Empty(t, f.notifier.sent)
}

func TestCrawlDeliveryErrorsAreSwallowed(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("stream unavailable")
	f.feed.err = errors.New("stream unavailable")

	result := f.orchestrator(policy.Config{}).Crawl(context.Background(), f.link.ID)
	require.Len(t, result.Failures, 2)
	for _, err := range result.Failures {
		assert.True(t, pipelineerrors.IsType(err, pipelineerrors.ErrorTypeNotification))
	}

	link, _ := f.store.Link(f.link.ID)
	assert.Equal(t, 1, link.NotificationsSent, "the counter is not rolled back")
}

func TestCrawlUnknownAdapter(t *testing.T) {
	f := newFixture(t)
	site := f.store.AddSite(model.Site{Name: "Elsewhere", Domain: "www.unknown.example"})
	link := f.store.AddLink(model.Link{ProductID: f.product.ID, SiteID: site.ID, Key: "x", Price: 10})

	result := f.orchestrator(policy.Config{}).Crawl(context.Background(), link.ID)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Error(), crawler.ErrNoAdapter.Error())
	assert.Empty(t, f.fetcher.urls)

	stored, _ := f.store.Link(link.ID)
	assert.Equal(t, 10.0, stored.Price)
}

func TestCrawlMissingLink(t *testing.T) {
	f := newFixture(t)
	result := f.orchestrator(policy.Config{}).Crawl(context.Background(), 404)

	require.Len(t, result.Failures, 1)
	assert.True(t, pipelineerrors.IsType(result.Failures[0], pipelineerrors.ErrorTypePersistence))
	assert.ErrorIs(t, result.Failures[0], storage.ErrNotFound)
}

func TestCrawlLowestWithinWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddProduct(model.Product{ID: f.product.ID, Name: "Kettle", Image: "k.jpg", LowestWithinDays: 30})
	f.store.AddLink(model.Link{ID: f.link.ID, ProductID: f.product.ID, SiteID: f.site.ID, Key: "kettle-17", Price: 100})

	yesterday := f.tracker.Today().AddDate(0, 0, -1)
	_, _, err := f.store.FindOrCreateDailyPrice(ctx, model.PriceHistoryRecord{ProductID: f.product.ID, SiteID: f.site.ID, Day: yesterday, Price: 85})
	require.NoError(t, err)

	result := f.orchestrator(policy.Config{}).Crawl(ctx, f.link.ID)
	assert.True(t, result.Decision.Notify)
	assert.Equal(t, []string{policy.ReasonLowestWithin(30)}, result.Decision.Reasons)

	product, _ := f.store.Product(f.product.ID)
	assert.Equal(t, "Kettle", product.Name, "a known name is not overwritten")
}

func TestCrawlFirstObservationIsNotALow(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(model.Product{ID: f.product.ID, Name: "Kettle", LowestWithinDays: 30})
	f.store.AddLink(model.Link{ID: f.link.ID, ProductID: f.product.ID, SiteID: f.site.ID, Key: "kettle-17", Price: 100})

	result := f.orchestrator(policy.Config{}).Crawl(context.Background(), f.link.ID)
	assert.False(t, result.Decision.Notify)

	row, ok := f.store.History(f.product.ID, f.site.ID, f.tracker.Today())
	require.True(t, ok)
	assert.Equal(t, 80.0, row.Price)
}

func TestCrawlOfficialSellerUsesAdapterName(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(model.Product{ID: f.product.ID, Name: "Kettle", OnlyOfficial: true})

	result := f.orchestrator(policy.Config{}).Crawl(context.Background(), f.link.ID)
	assert.True(t, result.Decision.Notify)
	assert.Equal(t, []string{policy.ReasonOfficialOnly, policy.ReasonPriceReached}, result.Decision.Reasons)
}
