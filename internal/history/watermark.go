// Package history keeps the daily price floor of every product on every site.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/dealmungchi/pricewatcher/internal/model"
)

// Store persists price history rows
type Store interface {
	// FindOrCreateDailyPrice returns the row for (product, site, day),
	// inserting it with the given prices when absent. created reports whether
	// the insert happened.
	FindOrCreateDailyPrice(ctx context.Context, rec model.PriceHistoryRecord) (stored model.PriceHistoryRecord, created bool, err error)

	// UpdateDailyPrice writes lowered prices to an existing row. A stored
	// positive price must never be raised.
	UpdateDailyPrice(ctx context.Context, rec model.PriceHistoryRecord) error

	// MinPriceSince returns the smallest positive price recorded on or after
	// day, 0 when there is none.
	MinPriceSince(ctx context.Context, productID, siteID int64, day time.Time) (float64, error)
}

// Tracker records observed prices as per-day minimums
type Tracker struct {
	store    Store
	location *time.Location
	now      func() time.Time
}

// NewTracker creates a tracker bucketing days in loc (UTC when nil)
func NewTracker(store Store, loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{store: store, location: loc, now: time.Now}
}

// Today returns midnight of the current day in the tracker's timezone
func (t *Tracker) Today() time.Time {
	return Day(t.now(), t.location)
}

// Day truncates ts to midnight in loc
func Day(ts time.Time, loc *time.Location) time.Time {
	ts = ts.In(loc)
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, loc)
}

// Record lowers today's stored prices to the observed ones. A stored price is
// never raised; zero observations are ignored.
func (t *Tracker) Record(ctx context.Context, productID, siteID int64, price, usedPrice float64) error {
	if price <= 0 && usedPrice <= 0 {
		return nil
	}

	observed := model.PriceHistoryRecord{
		ProductID: productID,
		SiteID:    siteID,
		Day:       t.Today(),
		Price:     positive(price),
		UsedPrice: positive(usedPrice),
	}

	stored, created, err := t.store.FindOrCreateDailyPrice(ctx, observed)
	if err != nil {
		return fmt.Errorf("find daily price: %w", err)
	}
	if created {
		return nil
	}

	next := stored
	next.Price = Lower(stored.Price, observed.Price)
	next.UsedPrice = Lower(stored.UsedPrice, observed.UsedPrice)
	if next.Price == stored.Price && next.UsedPrice == stored.UsedPrice {
		return nil
	}

	if err := t.store.UpdateDailyPrice(ctx, next); err != nil {
		return fmt.Errorf("update daily price: %w", err)
	}
	return nil
}

// LowestWithin returns the lowest positive price recorded in the last days
// days, today included. It returns 0 when there is no data.
func (t *Tracker) LowestWithin(ctx context.Context, productID, siteID int64, days int) (float64, error) {
	if days < 0 {
		days = 0
	}
	since := t.Today().AddDate(0, 0, -days)
	lowest, err := t.store.MinPriceSince(ctx, productID, siteID, since)
	if err != nil {
		return 0, fmt.Errorf("lowest price within %d days: %w", days, err)
	}
	return lowest, nil
}

// Lower keeps stored unless observed is positive and below it, or stored is
// unset. Every store applies it when updating a daily row.
func Lower(stored, observed float64) float64 {
	if observed <= 0 {
		return stored
	}
	if stored <= 0 || observed < stored {
		return observed
	}
	return stored
}

func positive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
