package history

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyper-agent/hyperliquid"
	"hyper-agent/store"
)

type fakeVenue struct {
	fills []hyperliquid.Fill
}

func (f *fakeVenue) UserFills(context.Context) ([]hyperliquid.Fill, error) {
	return f.fills, nil
}

func newTestReconciler(t *testing.T, fills []hyperliquid.Fill) (*Reconciler, *store.TradeStore) {
	t.Helper()
	require.NoError(t, store.Init(t.TempDir()))
	t.Cleanup(func() { store.Close() })

	trades := store.NewTradeStore()
	return NewReconciler(&fakeVenue{fills: fills}, trades, zerolog.Nop()), trades
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func TestSyncRecoversMissedOpen(t *testing.T) {
	at := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	r, trades := newTestReconciler(t, []hyperliquid.Fill{
		{Coin: "BTC", Px: "50000", Sz: "0.1", Dir: "Open Long", Time: ms(at), Oid: 11},
	})

	require.NoError(t, r.Sync(context.Background()))

	rec, err := trades.LatestOpen("BTC", "long")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 50000.0, rec.EntryPrice)
	assert.Equal(t, 0.1, rec.Size)
	assert.Equal(t, int64(11), rec.OrderID)
}

func TestSyncClosesTrackedTrade(t *testing.T) {
	opened := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	closed := opened.Add(time.Hour)
	r, trades := newTestReconciler(t, []hyperliquid.Fill{
		{Coin: "ETH", Px: "3150", Sz: "1", Dir: "Close Long", ClosedPnl: "150", Time: ms(closed), Oid: 22},
	})

	_, err := trades.InsertOpen(&store.TradeRecord{
		Symbol: "ETH", Direction: "long", EntryPrice: 3000, Size: 1, OrderID: 21, OpenedAt: opened,
	})
	require.NoError(t, err)

	require.NoError(t, r.Sync(context.Background()))

	recent, err := trades.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	rec := recent[0]
	assert.Equal(t, store.TradeStatusClosed, rec.Status)
	assert.Equal(t, 3150.0, rec.ExitPrice)
	assert.Equal(t, 150.0, rec.PnL)
	assert.InDelta(t, 5.0, rec.PnLPct, 1e-9)
	assert.Equal(t, store.ExitReasonSyncedFill, rec.ExitReason)
}

func TestSyncReconstructsUntrackedShortClose(t *testing.T) {
	closed := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	r, trades := newTestReconciler(t, []hyperliquid.Fill{
		{Coin: "SOL", Px: "140", Sz: "10", Dir: "Close Short", ClosedPnl: "100", Time: ms(closed), Oid: 33},
	})

	require.NoError(t, r.Sync(context.Background()))

	recent, err := trades.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	rec := recent[0]
	// short entry = exit + pnl/size = 140 + 10 = 150
	assert.Equal(t, 150.0, rec.EntryPrice)
	assert.Equal(t, 140.0, rec.ExitPrice)
	assert.Equal(t, store.ExitReasonSyncedHist, rec.ExitReason)
	assert.InDelta(t, (150.0-140.0)/150.0*100, rec.PnLPct, 1e-9)
}

func TestSyncIsIdempotent(t *testing.T) {
	opened := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	closed := opened.Add(time.Hour)
	r, trades := newTestReconciler(t, []hyperliquid.Fill{
		// Out of order on purpose; the sync sorts ascending.
		{Coin: "BTC", Px: "51000", Sz: "0.1", Dir: "Close Long", ClosedPnl: "100", Time: ms(closed), Oid: 12},
		{Coin: "BTC", Px: "50000", Sz: "0.1", Dir: "Open Long", Time: ms(opened), Oid: 11},
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Sync(context.Background()))
	}

	recent, err := trades.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1, "replays must not duplicate records")
	assert.Equal(t, store.TradeStatusClosed, recent[0].Status)
	assert.Equal(t, 50000.0, recent[0].EntryPrice)
	assert.Equal(t, 51000.0, recent[0].ExitPrice)
}

func TestSyncSkipsNonPerpFills(t *testing.T) {
	at := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	r, trades := newTestReconciler(t, []hyperliquid.Fill{
		{Coin: "PURR/USDC", Px: "0.2", Sz: "100", Dir: "Buy", Time: ms(at)},
		{Coin: "BTC", Px: "50000", Sz: "0.1", Dir: "Long > Short", Time: ms(at)},
	})

	require.NoError(t, r.Sync(context.Background()))

	recent, err := trades.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
