package trader

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyper-agent/screener"
	"hyper-agent/store"
)

func TestDailyRescorePersistsRun(t *testing.T) {
	require.NoError(t, store.Init(t.TempDir()))
	t.Cleanup(func() { store.Close() })

	universe := &fakeUniverse{result: &screener.Result{
		SelectedCoins: []screener.CoinScore{
			{Symbol: "BTC", Score: 80, Rank: 1, Factors: map[string]float64{"momentum_7d": 0.8}},
		},
		ExcludedCoins: []string{"USDT"},
		ScreeningType: screener.TypeDailyUpdate,
		NextRebalance: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
	}}
	s := &Scheduler{
		universe:   universe,
		screenings: store.NewScreeningStore(),
		log:        zerolog.Nop(),
	}

	s.rescoreUniverse(context.Background())

	runs, err := s.screenings.RecentScreenings(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, screener.TypeDailyUpdate, runs[0].ScreeningType)
	assert.Equal(t, []string{"BTC"}, runs[0].SelectedCoins)
	assert.Equal(t, []string{"USDT"}, runs[0].ExcludedCoins)
}
