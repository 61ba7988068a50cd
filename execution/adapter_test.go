package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyper-agent/decision"
	"hyper-agent/hyperliquid"
	"hyper-agent/risk"
)

type fakeVenue struct {
	status    *hyperliquid.AccountStatus
	statusErr error

	mids map[string]float64

	closeResult *hyperliquid.OrderResult
	closeErr    error
	closeCalls  []string

	openResult *hyperliquid.OrderResult
	openErr    error
	openCalls  []openCall

	leverageCalls []int
	leverageErr   error
}

type openCall struct {
	symbol   string
	isBuy    bool
	size     float64
	slippage float64
}

func (f *fakeVenue) AccountStatus(context.Context) (*hyperliquid.AccountStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeVenue) Asset(symbol string) (hyperliquid.AssetMeta, error) {
	return hyperliquid.AssetMeta{ID: 1, SzDecimals: 3, MaxLeverage: 50, MinSz: 0.001}, nil
}

func (f *fakeVenue) AllMids(context.Context) (map[string]float64, error) {
	return f.mids, nil
}

func (f *fakeVenue) SetLeverage(_ context.Context, _ string, leverage int, _ bool) error {
	f.leverageCalls = append(f.leverageCalls, leverage)
	return f.leverageErr
}

func (f *fakeVenue) MarketOpen(_ context.Context, symbol string, isBuy bool, size, slippage float64) (*hyperliquid.OrderResult, error) {
	f.openCalls = append(f.openCalls, openCall{symbol, isBuy, size, slippage})
	return f.openResult, f.openErr
}

func (f *fakeVenue) MarketClose(_ context.Context, symbol string) (*hyperliquid.OrderResult, error) {
	f.closeCalls = append(f.closeCalls, symbol)
	return f.closeResult, f.closeErr
}

func newTestAdapter(venue *fakeVenue) (*Adapter, *risk.Manager) {
	rm := risk.NewManager(risk.DefaultConfig(), zerolog.Nop())
	a := NewAdapter(venue, rm, zerolog.Nop())
	a.leverageGrace = 0
	return a, rm
}

func openDecision(symbol string) *decision.Decision {
	return &decision.Decision{
		Operation: decision.OpOpen,
		Open: &decision.OpenParams{
			Symbol:                 symbol,
			Direction:              "long",
			TargetPortionOfBalance: 0.1,
			Leverage:               3,
			StopLossPct:            2.0,
			TakeProfitPct:          6.0,
		},
		Reason:     "breakout continuation",
		Confidence: 0.8,
	}
}

func TestExecuteHoldIsNoop(t *testing.T) {
	venue := &fakeVenue{}
	a, _ := newTestAdapter(venue)

	out := a.Execute(context.Background(), decision.SafeHold("nothing to do"))
	assert.Equal(t, StatusNoop, out.Status)
	assert.Empty(t, venue.openCalls)
	assert.Empty(t, venue.closeCalls)
}

func TestCloseWithoutLivePositionSkipsAndCleans(t *testing.T) {
	venue := &fakeVenue{status: &hyperliquid.AccountStatus{BalanceUSD: 10000}}
	a, rm := newTestAdapter(venue)
	rm.RegisterPosition("BTC", "long", 50000, 0.1, 3, 2, 6)

	out := a.Execute(context.Background(), &decision.Decision{
		Operation: decision.OpClose,
		Close:     &decision.CloseParams{Symbol: "BTC"},
	})

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Empty(t, venue.closeCalls)
	_, tracked := rm.GetPosition("BTC")
	assert.False(t, tracked)
}

func TestCloseLivePosition(t *testing.T) {
	venue := &fakeVenue{
		status: &hyperliquid.AccountStatus{
			BalanceUSD: 10000,
			Positions:  []hyperliquid.Position{{Symbol: "ETH", Size: 1.5, EntryPrice: 3000}},
		},
		closeResult: &hyperliquid.OrderResult{Filled: true, TotalSz: 1.5, AvgPx: 3100, Oid: 42},
	}
	a, rm := newTestAdapter(venue)
	rm.RegisterPosition("ETH", "long", 3000, 1.5, 3, 2, 6)

	out := a.Execute(context.Background(), &decision.Decision{
		Operation: decision.OpClose,
		Close:     &decision.CloseParams{Symbol: "ETH"},
	})

	require.Equal(t, StatusExecuted, out.Status)
	assert.Equal(t, []string{"ETH"}, venue.closeCalls)
	assert.Equal(t, 1.5, out.Size)
	assert.Equal(t, 3100.0, out.AvgPrice)
	assert.Equal(t, int64(42), out.OrderID)
	_, tracked := rm.GetPosition("ETH")
	assert.False(t, tracked)
}

func TestCloseSubstringMatch(t *testing.T) {
	venue := &fakeVenue{
		status: &hyperliquid.AccountStatus{
			Positions: []hyperliquid.Position{{Symbol: "kPEPE", Size: 100}},
		},
		closeResult: &hyperliquid.OrderResult{Filled: true, TotalSz: 100, AvgPx: 0.01},
	}
	a, _ := newTestAdapter(venue)

	out := a.Execute(context.Background(), &decision.Decision{
		Operation: decision.OpClose,
		Close:     &decision.CloseParams{Symbol: "PEPE"},
	})

	require.Equal(t, StatusExecuted, out.Status)
	assert.Equal(t, []string{"kPEPE"}, venue.closeCalls)
}

func TestCloseNilResultFallsBackToOppositeOrder(t *testing.T) {
	venue := &fakeVenue{
		status: &hyperliquid.AccountStatus{
			Positions: []hyperliquid.Position{{Symbol: "SOL", Size: -20, EntryPrice: 150}},
		},
		closeResult: nil, // library found nothing to close
		openResult:  &hyperliquid.OrderResult{Filled: true, TotalSz: 20, AvgPx: 149},
	}
	a, rm := newTestAdapter(venue)
	rm.RegisterPosition("SOL", "short", 150, 20, 3, 2, 6)

	out := a.Execute(context.Background(), &decision.Decision{
		Operation: decision.OpClose,
		Close:     &decision.CloseParams{Symbol: "SOL"},
	})

	require.Equal(t, StatusExecuted, out.Status)
	require.Len(t, venue.openCalls, 1)
	call := venue.openCalls[0]
	assert.Equal(t, "SOL", call.symbol)
	assert.True(t, call.isBuy) // buying back the short
	assert.Equal(t, 20.0, call.size)
	_, tracked := rm.GetPosition("SOL")
	assert.False(t, tracked)
}

func TestCloseUnfilledKeepsSupervision(t *testing.T) {
	venue := &fakeVenue{
		status: &hyperliquid.AccountStatus{
			Positions: []hyperliquid.Position{{Symbol: "BTC", Size: 0.1, EntryPrice: 50000}},
		},
		// IoC accepted but nothing crossed: no error, no fill.
		closeResult: &hyperliquid.OrderResult{},
		openResult:  &hyperliquid.OrderResult{},
	}
	a, rm := newTestAdapter(venue)
	rm.RegisterPosition("BTC", "long", 50000, 0.1, 3, 2, 6)

	out := a.Execute(context.Background(), &decision.Decision{
		Operation: decision.OpClose,
		Close:     &decision.CloseParams{Symbol: "BTC"},
	})

	assert.Equal(t, StatusError, out.Status)
	assert.Equal(t, 0.0, out.AvgPrice)
	_, tracked := rm.GetPosition("BTC")
	assert.True(t, tracked, "an unfilled close must not drop risk supervision")
}

func TestCloseUnfilledFlattensWithOppositeOrder(t *testing.T) {
	venue := &fakeVenue{
		status: &hyperliquid.AccountStatus{
			Positions: []hyperliquid.Position{{Symbol: "ETH", Size: 2, EntryPrice: 3000}},
		},
		closeResult: &hyperliquid.OrderResult{},
		openResult:  &hyperliquid.OrderResult{Filled: true, TotalSz: 2, AvgPx: 2990},
	}
	a, rm := newTestAdapter(venue)
	rm.RegisterPosition("ETH", "long", 3000, 2, 3, 2, 6)

	out := a.Execute(context.Background(), &decision.Decision{
		Operation: decision.OpClose,
		Close:     &decision.CloseParams{Symbol: "ETH"},
	})

	require.Equal(t, StatusExecuted, out.Status)
	assert.Equal(t, 2990.0, out.AvgPrice)
	require.Len(t, venue.openCalls, 1)
	assert.False(t, venue.openCalls[0].isBuy) // selling down the long
	_, tracked := rm.GetPosition("ETH")
	assert.False(t, tracked)
}

func TestCloseErrorKeepsRiskTracking(t *testing.T) {
	venue := &fakeVenue{
		status: &hyperliquid.AccountStatus{
			Positions: []hyperliquid.Position{{Symbol: "BTC", Size: 0.1}},
		},
		closeErr: errors.New("exchange unavailable"),
	}
	a, rm := newTestAdapter(venue)
	rm.RegisterPosition("BTC", "long", 50000, 0.1, 3, 2, 6)

	out := a.Execute(context.Background(), &decision.Decision{
		Operation: decision.OpClose,
		Close:     &decision.CloseParams{Symbol: "BTC"},
	})

	assert.Equal(t, StatusError, out.Status)
	_, tracked := rm.GetPosition("BTC")
	assert.True(t, tracked)
}

func TestOpenHappyPath(t *testing.T) {
	venue := &fakeVenue{
		status:     &hyperliquid.AccountStatus{BalanceUSD: 10000},
		mids:       map[string]float64{"BTC": 50000},
		openResult: &hyperliquid.OrderResult{Filled: true, TotalSz: 0.06, AvgPx: 50010, Oid: 7},
	}
	a, rm := newTestAdapter(venue)

	out := a.Execute(context.Background(), openDecision("BTC"))

	require.Equal(t, StatusExecuted, out.Status)
	assert.Equal(t, []int{3}, venue.leverageCalls)
	require.Len(t, venue.openCalls, 1)
	call := venue.openCalls[0]
	assert.True(t, call.isBuy)
	// 10000 * 0.1 * 3 / 50000 = 0.06
	assert.InDelta(t, 0.06, call.size, 1e-9)
	assert.Equal(t, hyperliquid.DefaultSlippage, call.slippage)

	pos, tracked := rm.GetPosition("BTC")
	require.True(t, tracked)
	assert.Equal(t, 50010.0, pos.EntryPrice)
	assert.Equal(t, 0.06, pos.Size)
}

func TestOpenRejectedByRiskGate(t *testing.T) {
	venue := &fakeVenue{status: &hyperliquid.AccountStatus{BalanceUSD: 10000}}
	a, rm := newTestAdapter(venue)
	rm.RecordTradeResult(-600) // past the daily USD limit, breaker armed

	out := a.Execute(context.Background(), openDecision("BTC"))

	assert.Equal(t, StatusRejected, out.Status)
	assert.Empty(t, venue.openCalls)
	assert.Empty(t, venue.leverageCalls)
}

func TestOpenSizingCapsOversizedRequest(t *testing.T) {
	venue := &fakeVenue{
		status:     &hyperliquid.AccountStatus{BalanceUSD: 10000},
		mids:       map[string]float64{"BTC": 50000},
		openResult: &hyperliquid.OrderResult{Filled: true, TotalSz: 0.06, AvgPx: 50000},
	}
	a, _ := newTestAdapter(venue)

	d := openDecision("BTC")
	d.Open.TargetPortionOfBalance = 0.9 // max position cap brings this down to 30%
	out := a.Execute(context.Background(), d)

	require.Equal(t, StatusExecuted, out.Status)
	require.Len(t, venue.openCalls, 1)
	// 10000 * 0.3 * 3 / 50000 = 0.18
	assert.InDelta(t, 0.18, venue.openCalls[0].size, 1e-9)
}

func TestOpenBelowMinimumSizeIsRejected(t *testing.T) {
	venue := &fakeVenue{
		status: &hyperliquid.AccountStatus{BalanceUSD: 1},
		mids:   map[string]float64{"BTC": 50000},
	}
	a, _ := newTestAdapter(venue)

	out := a.Execute(context.Background(), openDecision("BTC"))
	assert.Equal(t, StatusRejected, out.Status)
	assert.Empty(t, venue.openCalls)
}

func TestOpenOrderErrorIsNotRegistered(t *testing.T) {
	venue := &fakeVenue{
		status:     &hyperliquid.AccountStatus{BalanceUSD: 10000},
		mids:       map[string]float64{"BTC": 50000},
		openResult: &hyperliquid.OrderResult{ErrorMsg: "insufficient margin"},
	}
	a, rm := newTestAdapter(venue)

	out := a.Execute(context.Background(), openDecision("BTC"))
	assert.Equal(t, StatusError, out.Status)
	_, tracked := rm.GetPosition("BTC")
	assert.False(t, tracked)
}
