// Package model holds the domain types shared by the crawl pipeline.
package model

import (
	"strings"
	"time"
)

// PlaceholderName is stored for products whose name was never crawled.
const PlaceholderName = "NA"

// Product is the user-facing tracked item with its alert thresholds
type Product struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Image            string     `json:"image"`
	SnoozedUntil     *time.Time `json:"snoozed_until,omitempty"`
	MaxNotifications int        `json:"max_notifications"`
	LowestWithinDays int        `json:"lowest_within"`
	StockWatch       bool       `json:"stock"`
	OnlyOfficial     bool       `json:"only_official"`
}

// NeedsName reports whether the name should be crawled
func (p Product) NeedsName() bool {
	name := strings.TrimSpace(p.Name)
	return name == "" || name == PlaceholderName
}

// NeedsImage reports whether the image should be crawled
func (p Product) NeedsImage() bool {
	return strings.TrimSpace(p.Image) == ""
}

// Site is a retailer
type Site struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Currency string `json:"currency"`
	Referral string `json:"referral,omitempty"`
}

// Link is the tracked state of one product on one site
type Link struct {
	ID                int64   `json:"id"`
	ProductID         int64   `json:"product_id"`
	SiteID            int64   `json:"site_id"`
	Key               string  `json:"key"`
	Price             float64 `json:"price"`
	UsedPrice         float64 `json:"used_price"`
	HighestPrice      float64 `json:"highest_price"`
	LowestPrice       float64 `json:"lowest_price"`
	InStock           bool    `json:"in_stock"`
	Seller            string  `json:"seller"`
	Rating            string  `json:"rate"`
	RateCount         int     `json:"number_of_rates"`
	ShippingPrice     float64 `json:"shipping_price"`
	Condition         string  `json:"condition"`
	NotificationsSent int     `json:"notifications_sent"`
	NotifyPrice       float64 `json:"notify_price"`
	AddShipping       bool    `json:"add_shipping"`
}

// Apply returns the link updated with one crawl's snapshot.
// A zero price never becomes the lowest-ever price.
func (l Link) Apply(s Snapshot, notified bool) Link {
	next := l

	next.Price = s.Price
	next.UsedPrice = s.UsedPrice
	if s.Price > l.HighestPrice {
		next.HighestPrice = s.Price
	}
	if s.Price > 0 && (l.LowestPrice == 0 || s.Price < l.LowestPrice) {
		next.LowestPrice = s.Price
	}
	next.RateCount = s.RateCount
	next.Rating = s.Rating
	next.Seller = s.Seller
	next.ShippingPrice = s.ShippingPrice
	next.Condition = s.Condition
	next.InStock = s.InStock
	if notified {
		next.NotificationsSent++
	}

	return next
}

// LinkRecord is everything a crawl needs to read for one link
type LinkRecord struct {
	Product Product
	Site    Site
	Link    Link
}

// PriceHistoryRecord is the daily price floor of a product on a site
type PriceHistoryRecord struct {
	ProductID int64     `json:"product_id"`
	SiteID    int64     `json:"site_id"`
	Day       time.Time `json:"date"`
	Price     float64   `json:"price"`
	UsedPrice float64   `json:"used_price"`
}
