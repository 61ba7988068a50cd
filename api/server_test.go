package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyper-agent/config"
	"hyper-agent/events"
	"hyper-agent/llm"
	"hyper-agent/risk"
	"hyper-agent/store"
	"hyper-agent/trader"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	require.NoError(t, store.Init(t.TempDir()))
	t.Cleanup(func() { store.Close() })

	rm := risk.NewManager(risk.DefaultConfig(), zerolog.Nop())
	engine := trader.NewEngine(&config.Config{}, trader.Deps{Risk: rm}, zerolog.Nop())
	hub := events.NewHub(zerolog.Nop())
	registry := llm.NewRegistry(zerolog.Nop())

	return NewServer("0", engine, rm, hub, registry, zerolog.Nop())
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()

	s.handleHealth(rec, httptest.NewRequest("GET", "/api/health", nil))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusIncludesRiskAndEngine(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()

	s.handleStatus(rec, httptest.NewRequest("GET", "/api/status", nil))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body, "engine")
	assert.Contains(t, body, "risk")
	assert.Contains(t, body, "total_pnl")
}

func TestTradesEndpoint(t *testing.T) {
	s := newTestServer(t)
	_, err := s.trades.InsertOpen(&store.TradeRecord{
		Symbol: "BTC", Direction: "long", EntryPrice: 50000, Size: 0.1, OpenedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.handleTrades(rec, httptest.NewRequest("GET", "/api/trades?status=open", nil))

	var trades []*store.TradeRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "BTC", trades[0].Symbol)
}

func TestContextsRequireCycleID(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()

	s.handleContexts(rec, httptest.NewRequest("GET", "/api/contexts", nil))

	assert.Equal(t, 400, rec.Code)
}

func TestQueryLimitBounds(t *testing.T) {
	assert.Equal(t, 50, queryLimit(httptest.NewRequest("GET", "/x", nil), 50))
	assert.Equal(t, 7, queryLimit(httptest.NewRequest("GET", "/x?limit=7", nil), 50))
	assert.Equal(t, 50, queryLimit(httptest.NewRequest("GET", "/x?limit=-3", nil), 50))
	assert.Equal(t, 50, queryLimit(httptest.NewRequest("GET", "/x?limit=9999", nil), 50))
}
