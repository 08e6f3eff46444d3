package model

// Default values a snapshot field falls back to when it cannot be extracted.
const (
	DefaultRating    = "-1"
	DefaultCondition = "new"
)

// Snapshot is the field set extracted by one crawl. It is a value type: copy
// it around, never mutate a shared one.
type Snapshot struct {
	Name          string  `json:"name"`
	Image         string  `json:"image"`
	Price         float64 `json:"price"`
	UsedPrice     float64 `json:"used_price"`
	InStock       bool    `json:"in_stock"`
	Rating        string  `json:"rating"`
	RateCount     int     `json:"rate_count"`
	Seller        string  `json:"seller"`
	ShippingPrice float64 `json:"shipping_price"`
	Condition     string  `json:"condition"`
}

// DefaultSnapshot is what an uncrawlable page yields. Unknown stock is
// treated as available.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		InStock:   true,
		Rating:    DefaultRating,
		Condition: DefaultCondition,
	}
}
