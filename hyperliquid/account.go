package hyperliquid

import (
	"context"
	"fmt"
)

// AccountStatus is the per-cycle view of the master account.
type AccountStatus struct {
	BalanceUSD      float64
	PerpsBalanceUSD float64
	SpotBalanceUSD  float64
	Withdrawable    float64
	Positions       []Position
}

// AccountStatus derives the usable balance and open positions. The balance
// fallback chain is fixed: crossMarginSummary.accountValue, then
// marginSummary.accountValue plus spot, then withdrawable. Testnet accounts
// routinely report zero on the earlier summaries.
func (c *Client) AccountStatus(ctx context.Context) (*AccountStatus, error) {
	st, err := c.UserState(ctx)
	if err != nil {
		return nil, fmt.Errorf("user state: %w", err)
	}

	perps := parseF(st.CrossMarginSummary.AccountValue)
	if perps == 0 {
		perps = parseF(st.MarginSummary.AccountValue)
	}

	spot := 0.0
	if spotState, err := c.SpotUserState(ctx); err == nil {
		for _, b := range spotState.Balances {
			if b.Coin == "USDC" {
				spot += parseF(b.Total)
			}
		}
	} else {
		c.log.Warn().Err(err).Msg("spot state unavailable")
	}

	withdrawable := parseF(st.Withdrawable)

	balance := perps + spot
	if balance == 0 && withdrawable > 0 {
		balance = withdrawable
	}

	return &AccountStatus{
		BalanceUSD:      balance,
		PerpsBalanceUSD: perps,
		SpotBalanceUSD:  spot,
		Withdrawable:    withdrawable,
		Positions:       extractPositions(st),
	}, nil
}

// extractPositions parses assetPositions, skipping zero-size entries.
func extractPositions(st *UserState) []Position {
	out := make([]Position, 0, len(st.AssetPositions))
	for _, ap := range st.AssetPositions {
		szi := parseF(ap.Position.Szi)
		if szi == 0 {
			continue
		}
		out = append(out, Position{
			Symbol:        ap.Position.Coin,
			Size:          szi,
			EntryPrice:    parseF(ap.Position.EntryPx),
			PositionValue: parseF(ap.Position.PositionValue),
			UnrealizedPnl: parseF(ap.Position.UnrealizedPnl),
			Leverage:      ap.Position.Leverage.Value,
		})
	}
	return out
}

// FindPosition locates a live position by exact symbol match, falling back to
// a substring match (the venue renames some listings, e.g. kPEPE).
func FindPosition(positions []Position, symbol string) (Position, bool) {
	for _, p := range positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	for _, p := range positions {
		if containsFold(p.Symbol, symbol) || containsFold(symbol, p.Symbol) {
			return p, true
		}
	}
	return Position{}, false
}

func containsFold(s, substr string) bool {
	if len(substr) == 0 || len(s) < len(substr) {
		return false
	}
	ls, lsub := lower(s), lower(substr)
	for i := 0; i+len(lsub) <= len(ls); i++ {
		if ls[i:i+len(lsub)] == lsub {
			return true
		}
	}
	return false
}

func lower(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
