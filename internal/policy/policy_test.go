package policy

import (
	"testing"
	"time"

	"github.com/dealmungchi/pricewatcher/internal/model"
	"github.com/stretchr/testify/assert"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// baseInput is a price drop from 100 to 80 with a desired price of 90
func baseInput() Input {
	s := model.DefaultSnapshot()
	s.Price = 80
	s.Seller = "Amazon.co.uk"
	return Input{
		Snapshot: s,
		Product:  model.Product{ID: 1, Name: "Kettle"},
		Link:     model.Link{Price: 100, InStock: true, NotifyPrice: 90},
		SiteName: "Amazon",
		Now:      now,
	}
}

func TestDecideRules(t *testing.T) {
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name    string
		cfg     Config
		modify  func(*Input)
		notify  bool
		reasons []string
	}{
		{
			name:    "price reached",
			notify:  true,
			reasons: []string{ReasonPriceReached},
		},
		{
			name:   "snooze in the future suppresses",
			modify: func(in *Input) { in.Product.SnoozedUntil = &future },
		},
		{
			name:    "expired snooze is ignored",
			modify:  func(in *Input) { in.Product.SnoozedUntil = &past },
			notify:  true,
			reasons: []string{ReasonPriceReached},
		},
		{
			name: "snooze dominates stock and any change",
			cfg:  Config{NotifyAnyChange: true},
			modify: func(in *Input) {
				in.Product.SnoozedUntil = &future
				in.Product.StockWatch = true
				in.Link.InStock = false
			},
		},
		{
			name: "back in stock",
			modify: func(in *Input) {
				in.Product.StockWatch = true
				in.Link.InStock = false
				in.Snapshot.Price = 100
			},
			notify:  true,
			reasons: []string{ReasonStockAvailable},
		},
		{
			name: "staying in stock never fires stock rule",
			modify: func(in *Input) {
				in.Product.StockWatch = true
				in.Snapshot.Price = 100
			},
		},
		{
			name: "stock rule needs stock watch",
			modify: func(in *Input) {
				in.Link.InStock = false
				in.Snapshot.Price = 100
			},
		},
		{
			name:    "any change",
			cfg:     Config{NotifyAnyChange: true},
			modify:  func(in *Input) { in.Snapshot.Price = 120 },
			notify:  true,
			reasons: []string{ReasonAnyChange},
		},
		{
			name:   "any change ignores zero price",
			cfg:    Config{NotifyAnyChange: true},
			modify: func(in *Input) { in.Snapshot.Price = 0 },
		},
		{
			name:   "unchanged price suppresses",
			modify: func(in *Input) { in.Snapshot.Price = 100 },
		},
		{
			name:   "zero price suppresses",
			modify: func(in *Input) { in.Snapshot.Price = 0; in.Link.NotifyPrice = 50 },
		},
		{
			name: "official seller matches",
			modify: func(in *Input) {
				in.Product.OnlyOfficial = true
			},
			notify:  true,
			reasons: []string{ReasonOfficialOnly, ReasonPriceReached},
		},
		{
			name: "third party seller suppressed",
			modify: func(in *Input) {
				in.Product.OnlyOfficial = true
				in.Snapshot.Seller = "Gadget Warehouse Ltd"
			},
		},
		{
			name:    "seller ignored when only official is off",
			modify:  func(in *Input) { in.Snapshot.Seller = "Gadget Warehouse Ltd" },
			notify:  true,
			reasons: []string{ReasonPriceReached},
		},
		{
			name: "lowest within window",
			modify: func(in *Input) {
				in.Link.NotifyPrice = 0
				in.Product.LowestWithinDays = 30
				in.LowestInWindow = 85
			},
			notify:  true,
			reasons: []string{ReasonLowestWithin(30)},
		},
		{
			name: "lowest within window matches equal price",
			modify: func(in *Input) {
				in.Link.NotifyPrice = 0
				in.Product.LowestWithinDays = 7
				in.LowestInWindow = 80
			},
			notify:  true,
			reasons: []string{"Lowest Within 7 Days"},
		},
		{
			name: "above window minimum falls through to price reached",
			modify: func(in *Input) {
				in.Product.LowestWithinDays = 30
				in.LowestInWindow = 70
			},
			notify:  true,
			reasons: []string{ReasonPriceReached},
		},
		{
			name: "empty window never fires",
			modify: func(in *Input) {
				in.Link.NotifyPrice = 0
				in.Product.LowestWithinDays = 30
			},
		},
		{
			name: "lowest within bypasses the cap",
			modify: func(in *Input) {
				in.Product.LowestWithinDays = 30
				in.LowestInWindow = 85
				in.Product.MaxNotifications = 1
				in.Link.NotificationsSent = 9
			},
			notify:  true,
			reasons: []string{ReasonLowestWithin(30)},
		},
		{
			name: "cap at exactly max still fires",
			modify: func(in *Input) {
				in.Product.MaxNotifications = 5
				in.Link.NotificationsSent = 5
			},
			notify:  true,
			reasons: []string{ReasonPriceReached},
		},
		{
			name: "cap exceeded suppresses",
			modify: func(in *Input) {
				in.Product.MaxNotifications = 5
				in.Link.NotificationsSent = 6
			},
		},
		{
			name:   "above desired price",
			modify: func(in *Input) { in.Link.NotifyPrice = 70 },
		},
		{
			name: "shipping pushes over threshold",
			modify: func(in *Input) {
				in.Snapshot.Price = 90
				in.Snapshot.ShippingPrice = 15
				in.Link.AddShipping = true
				in.Link.NotifyPrice = 100
			},
		},
		{
			name: "shipping within threshold",
			modify: func(in *Input) {
				in.Snapshot.Price = 90
				in.Snapshot.ShippingPrice = 15
				in.Link.AddShipping = true
				in.Link.NotifyPrice = 110
			},
			notify:  true,
			reasons: []string{ReasonPriceReached},
		},
		{
			name: "shipping ignored without add shipping",
			modify: func(in *Input) {
				in.Snapshot.Price = 90
				in.Snapshot.ShippingPrice = 15
				in.Link.NotifyPrice = 100
			},
			notify:  true,
			reasons: []string{ReasonPriceReached},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			if tt.modify != nil {
				tt.modify(&in)
			}
			decision := NewEngine(tt.cfg).Decide(in)
			assert.Equal(t, tt.notify, decision.Notify)
			if tt.notify {
				assert.Equal(t, tt.reasons, decision.Reasons)
			} else {
				assert.Empty(t, decision.Reasons)
			}
		})
	}
}

func TestDecideHistoryScale(t *testing.T) {
	in := baseInput()
	in.Link.NotifyPrice = 0
	in.Product.LowestWithinDays = 30

	// history stored in major units
	in.LowestInWindow = 85
	assert.True(t, NewEngine(Config{HistoryPriceScale: 1}).Decide(in).Notify)
	assert.False(t, NewEngine(Config{HistoryPriceScale: 100}).Decide(in).Notify)

	// history stored in minor units
	in.LowestInWindow = 8500
	assert.True(t, NewEngine(Config{HistoryPriceScale: 100}).Decide(in).Notify)
	assert.True(t, NewEngine(Config{HistoryPriceScale: 1}).Decide(in).Notify)

	in.LowestInWindow = 7900
	assert.False(t, NewEngine(Config{HistoryPriceScale: 100}).Decide(in).Notify)

	// an unset scale behaves like 1
	in.LowestInWindow = 85
	assert.True(t, NewEngine(Config{}).Decide(in).Notify)
}

func TestDecideIsDeterministic(t *testing.T) {
	engine := NewEngine(Config{NotifyAnyChange: true})
	in := baseInput()

	first := engine.Decide(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, engine.Decide(in))
	}
	assert.Len(t, first.Reasons, 1, "one rule fires")
}

func TestDecisionPrices(t *testing.T) {
	in := baseInput()
	in.Snapshot.ShippingPrice = 4.5
	in.Link.AddShipping = true

	decision := NewEngine(Config{}).Decide(in)
	assert.Equal(t, 80.0, decision.Price)
	assert.Equal(t, 84.5, decision.EffectivePrice)
}

func TestRulesOrder(t *testing.T) {
	assert.Equal(t, []string{
		"snoozed",
		"stock available",
		"any change",
		"price unchanged",
		"official seller",
		"lowest within",
		"max notifications",
		"price reached",
	}, NewEngine(Config{}).Rules())
}
