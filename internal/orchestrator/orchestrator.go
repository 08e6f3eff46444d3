// Package orchestrator runs the crawl pipeline of one product on one site.
package orchestrator

import (
	"context"
	"time"

	"github.com/dealmungchi/pricewatcher/internal/crawler"
	"github.com/dealmungchi/pricewatcher/internal/model"
	"github.com/dealmungchi/pricewatcher/internal/policy"
	"github.com/dealmungchi/pricewatcher/logger"
	"github.com/dealmungchi/pricewatcher/pkg/errors"
)

// Repository is the persistence port of a crawl
type Repository interface {
	LoadLink(ctx context.Context, linkID int64) (model.LinkRecord, error)
	SaveLink(ctx context.Context, link model.Link) error
	UpdateProduct(ctx context.Context, productID int64, name, image string) error
}

// AdapterResolver maps a site domain to its adapter
type AdapterResolver interface {
	Resolve(domain string) (crawler.SiteAdapter, error)
}

// PriceHistory records daily price floors and reads the lookback minimum
type PriceHistory interface {
	Record(ctx context.Context, productID, siteID int64, price, usedPrice float64) error
	LowestWithin(ctx context.Context, productID, siteID int64, days int) (float64, error)
}

// NotificationSink delivers an alert
type NotificationSink interface {
	Send(ctx context.Context, n model.Notification) error
}

// FeedSink appends an entry to the public feed
type FeedSink interface {
	Publish(ctx context.Context, item model.FeedItem) error
}

// Options wires the collaborators of an Orchestrator
type Options struct {
	Repository Repository
	Adapters   AdapterResolver
	Fetcher    crawler.PageFetcher
	History    PriceHistory
	Engine     *policy.Engine
	Notifier   NotificationSink
	Feed       FeedSink
}

// Result is what one crawl did
type Result struct {
	LinkID       int64
	URL          string
	Snapshot     model.Snapshot
	Decision     policy.Decision
	Notification *model.Notification
	Failures     []error
}

// Orchestrator sequences fetch, extraction, history, policy and persistence
// for a link. It keeps no state between crawls and is safe for concurrent
// use on different links.
type Orchestrator struct {
	repo     Repository
	adapters AdapterResolver
	fetcher  crawler.PageFetcher
	history  PriceHistory
	engine   *policy.Engine
	notifier NotificationSink
	feed     FeedSink
	now      func() time.Time
	log      *logger.Logger
}

// New creates an orchestrator. A nil engine uses the default policy
// configuration; nil sinks drop alerts.
func New(opts Options) *Orchestrator {
	if opts.Engine == nil {
		opts.Engine = policy.NewEngine(policy.Config{})
	}
	return &Orchestrator{
		repo:     opts.Repository,
		adapters: opts.Adapters,
		fetcher:  opts.Fetcher,
		history:  opts.History,
		engine:   opts.Engine,
		notifier: opts.Notifier,
		feed:     opts.Feed,
		now:      time.Now,
		log:      logger.ForOrchestrator(),
	}
}

// Crawl runs the pipeline for linkID. It never returns an error: stage
// failures are logged and collected in Result.Failures, and the link is
// still updated with whatever could be extracted.
func (o *Orchestrator) Crawl(ctx context.Context, linkID int64) Result {
	result := Result{LinkID: linkID, Snapshot: model.DefaultSnapshot()}
	log := o.log.WithField("link_id", linkID)

	fail := func(stage string, err error) {
		result.Failures = append(result.Failures, err)
		log.WithError(err).Warn().Str("stage", stage).Str("url", result.URL).Msg("Crawl stage failed")
	}

	rec, err := o.repo.LoadLink(ctx, linkID)
	if err != nil {
		fail("load link", errors.NewPersistence("load link", "cannot read link", err))
		return result
	}
	product, site, link := rec.Product, rec.Site, rec.Link

	adapter, err := o.adapters.Resolve(site.Domain)
	if err != nil {
		fail("resolve adapter", errors.NewValidation("resolve adapter", err.Error()))
		return result
	}
	result.URL = adapter.BuildURL(site.Domain, link.Key, site)
	log = logger.ForSite(adapter.Name()).WithFields(logger.Fields{
		"component": "orchestrator",
		"link_id":   linkID,
	})

	page, err := adapter.Fetch(ctx, o.fetcher, result.URL)
	if err != nil {
		fail("fetch", err)
	}

	snapshot, extractErrs := crawler.BuildSnapshot(adapter, page, crawler.SnapshotOptions{
		WantName:  product.NeedsName(),
		WantImage: product.NeedsImage(),
	})
	for _, err := range extractErrs {
		fail("extract", err)
	}
	result.Snapshot = snapshot

	if snapshot.Name != "" || snapshot.Image != "" {
		if err := o.repo.UpdateProduct(ctx, product.ID, snapshot.Name, snapshot.Image); err != nil {
			fail("update product", errors.NewPersistence("update product", "cannot store name and image", err))
		} else {
			if snapshot.Name != "" {
				product.Name = snapshot.Name
			}
			if snapshot.Image != "" {
				product.Image = snapshot.Image
			}
		}
	}

	// read the window before this crawl's price is recorded
	var lowest float64
	if product.LowestWithinDays > 0 {
		lowest, err = o.history.LowestWithin(ctx, product.ID, site.ID, product.LowestWithinDays)
		if err != nil {
			fail("lowest within", errors.NewPersistence("lowest within", "cannot read price history", err))
			lowest = 0
		}
	}

	if err := o.history.Record(ctx, product.ID, site.ID, snapshot.Price, snapshot.UsedPrice); err != nil {
		fail("record history", errors.NewPersistence("record history", "cannot record daily price", err))
	}

	now := o.now()
	decision := o.engine.Decide(policy.Input{
		Snapshot:       snapshot,
		Product:        product,
		Link:           link,
		SiteName:       adapter.Name(),
		LowestInWindow: lowest,
		Now:            now,
	})
	result.Decision = decision

	next := link.Apply(snapshot, decision.Notify)
	if err := o.repo.SaveLink(ctx, next); err != nil {
		fail("save link", errors.NewPersistence("save link", "cannot store crawl result", err))
	}

	if !decision.Notify {
		log.Debug().Float64("price", snapshot.Price).Msg("Crawl finished without notification")
		return result
	}

	n := model.Notification{
		ProductID:    product.ID,
		ProductName:  firstNonEmpty(product.Name, snapshot.Name),
		SiteName:     site.Name,
		Price:        snapshot.Price,
		HighestPrice: next.HighestPrice,
		LowestPrice:  next.LowestPrice,
		ProductURL:   result.URL + site.Referral,
		Image:        firstNonEmpty(product.Image, snapshot.Image),
		Currency:     site.Currency,
		Reasons:      decision.Reasons,
	}
	n.Message = n.FormatMessage()
	result.Notification = &n

	if o.notifier != nil {
		if err := o.notifier.Send(ctx, n); err != nil {
			fail("notify", errors.NewNotification("notify", result.URL, err))
		}
	}
	if o.feed != nil {
		if err := o.feed.Publish(ctx, model.NewFeedItem(n, now)); err != nil {
			fail("feed", errors.NewNotification("feed", result.URL, err))
		}
	}

	log.Info().Float64("price", snapshot.Price).Strs("tags", decision.Reasons).Msg("Notification fired")
	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" && v != model.PlaceholderName {
			return v
		}
	}
	return ""
}
