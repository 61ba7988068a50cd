// Package risk owns position tracking, sizing and the daily circuit
// breaker. The trading engine is the only mutator; every public method is
// safe under a single internal mutex.
package risk

import "time"

// Position is one open exposure under SL/TP supervision.
type Position struct {
	Symbol          string    `json:"symbol"`
	Direction       string    `json:"direction"` // "long" or "short"
	EntryPrice      float64   `json:"entry_price"`
	Size            float64   `json:"size"`
	Leverage        int       `json:"leverage"`
	StopLossPrice   float64   `json:"stop_loss_price"`
	TakeProfitPrice float64   `json:"take_profit_price"`
	OpenedAt        time.Time `json:"opened_at"`
}

// StopLossPct derives the SL distance in percent of entry.
func (p *Position) StopLossPct() float64 {
	if p.Direction == "long" {
		return (p.EntryPrice - p.StopLossPrice) / p.EntryPrice * 100
	}
	return (p.StopLossPrice - p.EntryPrice) / p.EntryPrice * 100
}

// TakeProfitPct derives the TP distance in percent of entry.
func (p *Position) TakeProfitPct() float64 {
	if p.Direction == "long" {
		return (p.TakeProfitPrice - p.EntryPrice) / p.EntryPrice * 100
	}
	return (p.EntryPrice - p.TakeProfitPrice) / p.EntryPrice * 100
}

// CheckExit returns "stop_loss", "take_profit" or "" for the given price,
// direction-aware.
func (p *Position) CheckExit(currentPrice float64) string {
	if p.Direction == "long" {
		if currentPrice <= p.StopLossPrice {
			return "stop_loss"
		}
		if currentPrice >= p.TakeProfitPrice {
			return "take_profit"
		}
		return ""
	}
	if currentPrice >= p.StopLossPrice {
		return "stop_loss"
	}
	if currentPrice <= p.TakeProfitPrice {
		return "take_profit"
	}
	return ""
}

// PnL is the unrealized profit in USD at the given price.
func (p *Position) PnL(currentPrice float64) float64 {
	if p.Direction == "long" {
		return (currentPrice - p.EntryPrice) * p.Size
	}
	return (p.EntryPrice - currentPrice) * p.Size
}
