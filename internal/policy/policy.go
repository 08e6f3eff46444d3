// Package policy decides whether a crawl result is worth an alert.
//
// The decision is an ordered chain of rules. Each rule either passes control
// to the next one, fires a notification, or suppresses and stops the chain.
// At most one rule fires per decision.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/dealmungchi/pricewatcher/internal/model"
)

// Reason tags attached to a notification
const (
	ReasonStockAvailable = "Stocks Available"
	ReasonAnyChange      = "Any Change"
	ReasonOfficialOnly   = "Official Only"
	ReasonPriceReached   = "Price Reached"
)

// ReasonLowestWithin is the tag for a new low over the product's lookback window
func ReasonLowestWithin(days int) string {
	return fmt.Sprintf("Lowest Within %d Days", days)
}

// Config holds the global policy settings
type Config struct {
	// NotifyAnyChange alerts on every price change
	NotifyAnyChange bool

	// HistoryPriceScale multiplies the crawled price before it is compared
	// with the stored window minimum. 1 when history holds the same units as
	// crawled prices, 100 for history recorded in minor currency units.
	HistoryPriceScale float64
}

// Input is everything one decision looks at
type Input struct {
	Snapshot       model.Snapshot
	Product        model.Product
	Link           model.Link
	SiteName       string
	LowestInWindow float64
	Now            time.Time
}

// Decision is the outcome of the rule chain
type Decision struct {
	Notify         bool
	Reasons        []string
	Price          float64
	EffectivePrice float64
}

type outcome int

const (
	next outcome = iota
	notify
	suppress
)

type state struct {
	in      Input
	cfg     Config
	reasons []string
}

type rule struct {
	name  string
	check func(*state) outcome
}

// Engine evaluates the notification rules. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	cfg   Config
	rules []rule
}

// NewEngine creates an engine
func NewEngine(cfg Config) *Engine {
	if cfg.HistoryPriceScale <= 0 {
		cfg.HistoryPriceScale = 1
	}
	return &Engine{
		cfg: cfg,
		rules: []rule{
			{"snoozed", snoozed},
			{"stock available", stockAvailable},
			{"any change", anyChange},
			{"price unchanged", priceUnchanged},
			{"official seller", officialSeller},
			{"lowest within", lowestWithin},
			{"max notifications", maxNotifications},
			{"price reached", priceReached},
		},
	}
}

// Decide runs the rule chain for one crawl
func (e *Engine) Decide(in Input) Decision {
	decision := Decision{
		Price:          in.Snapshot.Price,
		EffectivePrice: effectivePrice(in),
	}

	st := &state{in: in, cfg: e.cfg}
	for _, r := range e.rules {
		switch r.check(st) {
		case notify:
			decision.Notify = true
			decision.Reasons = st.reasons
			return decision
		case suppress:
			return decision
		}
	}
	return decision
}

// Rules returns the rule names in evaluation order
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.name
	}
	return names
}

func effectivePrice(in Input) float64 {
	if in.Link.AddShipping {
		return in.Snapshot.Price + in.Snapshot.ShippingPrice
	}
	return in.Snapshot.Price
}

func (s *state) fire(reason string) outcome {
	s.reasons = append(s.reasons, reason)
	return notify
}

func snoozed(s *state) outcome {
	until := s.in.Product.SnoozedUntil
	if until != nil && until.After(s.in.Now) {
		return suppress
	}
	return next
}

func stockAvailable(s *state) outcome {
	if s.in.Product.StockWatch && !s.in.Link.InStock && s.in.Snapshot.InStock {
		return s.fire(ReasonStockAvailable)
	}
	return next
}

func priceChanged(s *state) bool {
	return s.in.Snapshot.Price != 0 && s.in.Snapshot.Price != s.in.Link.Price
}

func anyChange(s *state) outcome {
	if s.cfg.NotifyAnyChange && priceChanged(s) {
		return s.fire(ReasonAnyChange)
	}
	return next
}

func priceUnchanged(s *state) outcome {
	if !priceChanged(s) {
		return suppress
	}
	return next
}

func officialSeller(s *state) outcome {
	if !s.in.Product.OnlyOfficial {
		return next
	}
	site := strings.ToLower(strings.TrimSpace(s.in.SiteName))
	if site == "" || !strings.Contains(strings.ToLower(s.in.Snapshot.Seller), site) {
		return suppress
	}
	s.reasons = append(s.reasons, ReasonOfficialOnly)
	return next
}

func lowestWithin(s *state) outcome {
	days := s.in.Product.LowestWithinDays
	lowest := s.in.LowestInWindow
	if days <= 0 || lowest == 0 {
		return next
	}
	if s.in.Snapshot.Price*s.cfg.HistoryPriceScale <= lowest {
		return s.fire(ReasonLowestWithin(days))
	}
	return next
}

func maxNotifications(s *state) outcome {
	limit := s.in.Product.MaxNotifications
	if limit > 0 && s.in.Link.NotificationsSent > limit {
		return suppress
	}
	return next
}

func priceReached(s *state) outcome {
	if effectivePrice(s.in) <= s.in.Link.NotifyPrice {
		return s.fire(ReasonPriceReached)
	}
	return next
}
