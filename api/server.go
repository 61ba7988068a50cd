// Package api exposes a read-only monitoring surface: agent status,
// trade history, operation log, screenings, model usage and a live
// event stream. Nothing here mutates trading state.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"hyper-agent/events"
	"hyper-agent/llm"
	"hyper-agent/risk"
	"hyper-agent/store"
	"hyper-agent/trader"
)

type Server struct {
	port       string
	engine     *trader.Engine
	riskMgr    *risk.Manager
	hub        *events.Hub
	registry   *llm.Registry
	trades     *store.TradeStore
	ops        *store.OperationStore
	snapshots  *store.SnapshotStore
	screenings *store.ScreeningStore
	usage      *store.UsageStore
	log        zerolog.Logger
}

func NewServer(port string, engine *trader.Engine, riskMgr *risk.Manager, hub *events.Hub, registry *llm.Registry, log zerolog.Logger) *Server {
	return &Server{
		port:       port,
		engine:     engine,
		riskMgr:    riskMgr,
		hub:        hub,
		registry:   registry,
		trades:     store.NewTradeStore(),
		ops:        store.NewOperationStore(),
		snapshots:  store.NewSnapshotStore(),
		screenings: store.NewScreeningStore(),
		usage:      store.NewUsageStore(),
		log:        log,
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/operations", s.handleOperations)
	mux.HandleFunc("/api/contexts", s.handleContexts)
	mux.HandleFunc("/api/screenings", s.handleScreenings)
	mux.HandleFunc("/api/usage", s.handleUsage)
	mux.HandleFunc("/api/models", s.handleModels)
	mux.Handle("/api/events", s.hub)

	handler := corsMiddleware(mux)

	s.log.Info().Str("port", s.port).Msg("api server starting")
	return http.ListenAndServe(":"+s.port, handler)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.snapshots.Latest()
	if err != nil {
		s.log.Warn().Err(err).Msg("latest snapshot unavailable")
	}
	totalPnL, err := s.trades.TotalPnL()
	if err != nil {
		s.log.Warn().Err(err).Msg("total pnl unavailable")
	}

	s.jsonResponse(w, map[string]any{
		"engine":    s.engine.Status(),
		"risk":      s.riskMgr.GetStatus(),
		"account":   snapshot,
		"total_pnl": totalPnL,
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("status") == "open" {
		trades, err := s.trades.OpenTrades()
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.jsonResponse(w, trades)
		return
	}

	trades, err := s.trades.Recent(queryLimit(r, 50))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, trades)
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := s.ops.RecentOperations(queryLimit(r, 100))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, ops)
}

func (s *Server) handleContexts(w http.ResponseWriter, r *http.Request) {
	cycleID := r.URL.Query().Get("cycle_id")
	if cycleID == "" {
		s.errorResponse(w, http.StatusBadRequest, "cycle_id is required")
		return
	}
	contexts, err := s.ops.ContextsByCycle(cycleID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, contexts)
}

func (s *Server) handleScreenings(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid screening id")
			return
		}
		scores, err := s.screenings.ScoresByScreening(id)
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.jsonResponse(w, scores)
		return
	}

	rows, err := s.screenings.RecentScreenings(queryLimit(r, 10))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, rows)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			hours = n
		}
	}
	summary, err := s.usage.SummarizeSince(time.Now().UTC().Add(-time.Duration(hours) * time.Hour))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, map[string]any{
		"window_hours": hours,
		"models":       summary,
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]any{
		"current": s.registry.Current(),
		"models":  s.registry.List(),
	})
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 500 {
		return def
	}
	return n
}
