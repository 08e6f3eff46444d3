package crawler

import (
	"fmt"

	"github.com/dealmungchi/pricewatcher/internal/model"
	"github.com/dealmungchi/pricewatcher/pkg/errors"
)

// SnapshotOptions selects the optional fields of a snapshot
type SnapshotOptions struct {
	WantName  bool
	WantImage bool
}

// BuildSnapshot runs every extractor of adapter over page. A nil page yields
// the default snapshot. An extractor that panics leaves its field at the
// default and is reported in the returned errors; the other fields are
// unaffected.
func BuildSnapshot(adapter SiteAdapter, page *Page, opts SnapshotOptions) (model.Snapshot, []error) {
	s := model.DefaultSnapshot()
	if page == nil || adapter == nil {
		return s, nil
	}

	var errs []error
	extract := func(field string, fn func()) {
		defer func() {
			if r := recover(); r != nil {
				errs = append(errs, errors.NewExtraction(field, page.URL(), fmt.Errorf("panic: %v", r)))
			}
		}()
		fn()
	}

	if opts.WantName {
		extract(FieldName, func() { s.Name = adapter.ExtractName(page) })
	}
	if opts.WantImage {
		extract(FieldImage, func() { s.Image = adapter.ExtractImage(page) })
	}
	extract(FieldPrice, func() { s.Price = nonNegative(adapter.ExtractPrice(page)) })
	extract(FieldUsedPrice, func() { s.UsedPrice = nonNegative(adapter.ExtractUsedPrice(page)) })
	extract(FieldStock, func() { s.InStock = adapter.ExtractStock(page) })
	extract(FieldRateCount, func() { s.RateCount = adapter.ExtractRateCount(page) })
	extract(FieldRating, func() {
		if rating := adapter.ExtractRating(page); rating != "" {
			s.Rating = rating
		}
	})
	extract(FieldSeller, func() { s.Seller = adapter.ExtractSeller(page) })
	extract(FieldShippingPrice, func() { s.ShippingPrice = nonNegative(adapter.ExtractShippingPrice(page)) })
	extract(FieldCondition, func() {
		if condition := adapter.ExtractCondition(page); condition != "" {
			s.Condition = condition
		}
	})

	return s, errs
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
