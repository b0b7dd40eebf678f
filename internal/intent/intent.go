// Package intent maps free-text order/action labels ("Buy To Open",
// "Market Order Liquidation", ...) into a canonical, closed set of
// intents. Parsing is total: unrecognized input still yields a
// best-effort partial result tagged Unrecognized, and callers must
// handle that variant explicitly instead of passing raw strings on.
package intent

import (
	"strings"

	"tradeledger/internal/domain"
)

// Kind is the closed set of recognized order intents.
type Kind int

const (
	Unrecognized Kind = iota
	OpenLong
	OpenShort
	CloseLong
	CloseShort
	Liquidation
	PlainBuy  // bare "buy": side known, open/close resolved from position state
	PlainSell // bare "sell"
)

func (k Kind) String() string {
	switch k {
	case OpenLong:
		return "open-long"
	case OpenShort:
		return "open-short"
	case CloseLong:
		return "close-long"
	case CloseShort:
		return "close-short"
	case Liquidation:
		return "liquidation"
	case PlainBuy:
		return "buy"
	case PlainSell:
		return "sell"
	default:
		return "unrecognized"
	}
}

// Intent is the normalized reading of an order label.
type Intent struct {
	Kind Kind
	// Action is the resolved fill side, empty when the label alone cannot
	// determine it (e.g. a liquidation with no stated side).
	Action domain.OrderSide
	// Opening is true/false when the label states it, nil when the label
	// leaves open-versus-close to position-state inference.
	Opening *bool
	// Direction is the trade direction the label names, nil if unstated.
	Direction *domain.Direction
	// IsLiquidation marks a forced close; its side is inferred from the
	// sign of the net position when Action is empty.
	IsLiquidation bool
}

var (
	yes = true
	no  = false

	long  = domain.Long
	short = domain.Short
)

// exact holds full-label matches, checked before any heuristics. Keys
// are lowercased with collapsed whitespace.
var exact = map[string]Intent{
	"open long":    {Kind: OpenLong, Action: domain.Buy, Opening: &yes, Direction: &long},
	"buy to open":  {Kind: OpenLong, Action: domain.Buy, Opening: &yes, Direction: &long},
	"open short":   {Kind: OpenShort, Action: domain.Sell, Opening: &yes, Direction: &short},
	"sell to open": {Kind: OpenShort, Action: domain.Sell, Opening: &yes, Direction: &short},
	"sell short":   {Kind: OpenShort, Action: domain.Sell, Opening: &yes, Direction: &short},

	// Bare directional labels state where the trader wants to end up but
	// not whether this fill opens or reverses; routing decides from the
	// current position.
	"long":  {Kind: PlainBuy, Action: domain.Buy, Direction: &long},
	"short": {Kind: PlainSell, Action: domain.Sell, Direction: &short},

	"close long":    {Kind: CloseLong, Action: domain.Sell, Opening: &no, Direction: &long},
	"sell to close": {Kind: CloseLong, Action: domain.Sell, Opening: &no, Direction: &long},
	"close short":   {Kind: CloseShort, Action: domain.Buy, Opening: &no, Direction: &short},
	"buy to close":  {Kind: CloseShort, Action: domain.Buy, Opening: &no, Direction: &short},
	"buy to cover":  {Kind: CloseShort, Action: domain.Buy, Opening: &no, Direction: &short},

	"liquidation":              {Kind: Liquidation, Opening: &no, IsLiquidation: true},
	"forced liquidation":       {Kind: Liquidation, Opening: &no, IsLiquidation: true},
	"market order liquidation": {Kind: Liquidation, Opening: &no, IsLiquidation: true},
	"margin call":              {Kind: Liquidation, Opening: &no, IsLiquidation: true},
	"adl":                      {Kind: Liquidation, Opening: &no, IsLiquidation: true},

	"buy":         {Kind: PlainBuy, Action: domain.Buy},
	"market buy":  {Kind: PlainBuy, Action: domain.Buy},
	"sell":        {Kind: PlainSell, Action: domain.Sell},
	"market sell": {Kind: PlainSell, Action: domain.Sell},
}

// Parse normalizes a raw order/action label. It never fails; the zero
// Intent with Kind Unrecognized is the worst case.
func Parse(raw string) Intent {
	key := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	if key == "" {
		return Intent{Kind: Unrecognized}
	}

	if it, ok := exact[key]; ok {
		return it
	}

	// Substring heuristics, most specific first.
	switch {
	case strings.Contains(key, "liquidat"), strings.Contains(key, "margin call"):
		return Intent{Kind: Liquidation, Opening: &no, IsLiquidation: true}
	case strings.Contains(key, "open") && strings.Contains(key, "long"):
		return Intent{Kind: OpenLong, Action: domain.Buy, Opening: &yes, Direction: &long}
	case strings.Contains(key, "open") && strings.Contains(key, "short"):
		return Intent{Kind: OpenShort, Action: domain.Sell, Opening: &yes, Direction: &short}
	case strings.Contains(key, "close") && strings.Contains(key, "long"):
		return Intent{Kind: CloseLong, Action: domain.Sell, Opening: &no, Direction: &long}
	case strings.Contains(key, "close") && strings.Contains(key, "short"),
		strings.Contains(key, "cover"):
		return Intent{Kind: CloseShort, Action: domain.Buy, Opening: &no, Direction: &short}
	case strings.Contains(key, "sell") && strings.Contains(key, "short"):
		return Intent{Kind: OpenShort, Action: domain.Sell, Opening: &yes, Direction: &short}
	case strings.Contains(key, "buy"):
		// Side is known; whether it opens or closes depends on position
		// state and is resolved downstream.
		return Intent{Kind: PlainBuy, Action: domain.Buy}
	case strings.Contains(key, "sell"):
		return Intent{Kind: PlainSell, Action: domain.Sell}
	}

	return Intent{Kind: Unrecognized}
}
