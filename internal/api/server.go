// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"stocksiege/internal/config"
	"stocksiege/internal/game"
	"stocksiege/internal/market"
	"stocksiege/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	cfg  config.APIConfig
	log  *slog.Logger
	game *game.Service
	hub  *Hub
	mux  *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, gameSvc *game.Service, hub *Hub) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		game: gameSvc,
		hub:  hub,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if s.cfg.MetricsEnabled {
		r.Use(metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/api/v1", func(r chi.Router) {
		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWS)
		}

		r.Post("/participants", s.handleRegister)
		r.Get("/participants", s.handleParticipants)
		r.Get("/participants/{id}", s.handlePortfolio)
		r.Get("/market", s.handleMarket)
		r.Get("/odds", s.handleOdds)
		r.Get("/standings", s.handleStandings)
		r.Get("/elimination/ranking", s.handleFinalRanking)

		r.Post("/portfolios/{id}/buy", s.handleBuy)
		r.Post("/portfolios/{id}/sell", s.handleSell)
		r.Post("/portfolios/{id}/ratio-buy", s.handleRatioBuy)

		r.Group(func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Get("/admin/changes", s.handleYearHistory)
			r.Post("/admin/changes", s.handleSetYearChange)
			r.Post("/admin/changes/preview", s.handlePreviewGenerate)
			r.Post("/admin/changes/commit", s.handleCommitGenerate)
			r.Post("/admin/stage", s.handleStage)
			r.Post("/admin/settle", s.handleSettle)
			r.Post("/admin/revert", s.handleRevert)
			r.Post("/admin/buy", s.handleAdminBuy)
			r.Post("/admin/sell", s.handleAdminSell)
			r.Post("/admin/force-cash", s.handleForceCash)
			r.Post("/admin/clear", s.handleAdminClear)
			r.Post("/admin/lock", s.handleLock)
			r.Post("/admin/mode", s.handleMode)
			r.Post("/admin/policy", s.handlePolicy)
			r.Post("/admin/freeze", s.handleFreeze)
			r.Post("/admin/reset", s.handleReset)
			r.Post("/admin/elimination/cut", s.handleBottomCut)
		})
	})
}

// adminMiddleware gates the owner endpoints behind a shared token. With no
// token configured the endpoints are disabled outright.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			writeError(w, http.StatusForbidden, "admin endpoints are disabled")
			return
		}
		token := strings.TrimSpace(r.Header.Get("X-Admin-Token"))
		if token == "" || token != s.cfg.AdminToken {
			writeError(w, http.StatusUnauthorized, "missing or invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ParticipantID string `json:"participant_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pf, err := s.game.Register(r.Context(), in.ParticipantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.Participants.Inc()
	writeJSON(w, http.StatusCreated, pf)
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	pfs, err := s.game.Portfolios(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": pfs})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	pf, err := s.game.Portfolio(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pf)
}

// marketItem is the public projection of one item: the shown price only,
// never the staged and current prices side by side.
type marketItem struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.game.Market(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	items := make([]marketItem, 0, len(market.ItemCodes))
	for _, code := range market.ItemCodes {
		it := cfg.Items[code]
		items = append(items, marketItem{Code: code, Name: it.Name, Price: it.Shown(cfg.UsingStagedPrices)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":             items,
		"game_mode":         cfg.GameMode,
		"trading_locked":    cfg.TradingLocked,
		"staged":            cfg.UsingStagedPrices,
		"last_settled_year": cfg.LastSettledYear,
	})
}

func (s *Server) handleOdds(w http.ResponseWriter, r *http.Request) {
	scope := game.OddsScope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = game.OddsRHint
	}
	// The full-history view is owner-only.
	if scope == game.OddsOwner {
		token := strings.TrimSpace(r.Header.Get("X-Admin-Token"))
		if s.cfg.AdminToken == "" || token != s.cfg.AdminToken {
			writeError(w, http.StatusUnauthorized, "owner odds require the admin token")
			return
		}
	}
	odds, err := s.game.Odds(r.Context(), scope)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scope": scope, "odds": odds})
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	rows, err := s.game.Standings(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *Server) handleFinalRanking(w http.ResponseWriter, r *http.Request) {
	var policy market.RankingPolicy
	if q := r.URL.Query().Get("policy"); q != "" {
		p, err := market.ParseRankingPolicy(q)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		policy = p
	}
	rank, err := s.game.FinalRanking(r.Context(), policy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rank)
}

type ordersBody struct {
	Orders string `json:"orders"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, "buy", s.game.Buy)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, "sell", s.game.Sell)
}

func (s *Server) handleRatioBuy(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, "ratio_buy", s.game.RatioBuy)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request, kind string, exec func(ctx context.Context, id, orders string) (*game.TradeResult, error)) {
	var in ordersBody
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := exec(r.Context(), chi.URLParam(r, "id"), in.Orders)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	recordTrade(kind, res)
	writeJSON(w, http.StatusOK, res)
}

func recordTrade(kind string, res *game.TradeResult) {
	metrics.TradesTotal.WithLabelValues(kind).Inc()
	for _, line := range res.Lines {
		if line.Filled > 0 {
			metrics.TradeVolume.WithLabelValues(line.Code, kind).Add(float64(line.Filled))
		}
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrValidation):
		metrics.EngineErrors.WithLabelValues("validation").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, market.ErrNotFound):
		metrics.EngineErrors.WithLabelValues("not_found").Inc()
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, market.ErrTradingLocked):
		metrics.EngineErrors.WithLabelValues("locked").Inc()
		writeError(w, http.StatusLocked, err.Error())
	case errors.Is(err, market.ErrSequencing):
		metrics.EngineErrors.WithLabelValues("sequencing").Inc()
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, market.ErrMode):
		metrics.EngineErrors.WithLabelValues("mode").Inc()
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, market.ErrInvariant):
		metrics.EngineErrors.WithLabelValues("invariant").Inc()
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, market.ErrConflict):
		metrics.EngineErrors.WithLabelValues("conflict").Inc()
		writeError(w, http.StatusConflict, err.Error())
	default:
		metrics.EngineErrors.WithLabelValues("internal").Inc()
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
