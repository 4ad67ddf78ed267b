package api

import (
	"net/http"

	"stocksiege/internal/market"
	"stocksiege/internal/metrics"
)

func (s *Server) handleYearHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.game.YearHistory(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"years": history})
}

func (s *Server) handleSetYearChange(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Changes map[string]int `json:"changes"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	yc, err := s.game.SetYearChange(r.Context(), in.Changes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, yc)
}

func (s *Server) handlePreviewGenerate(w http.ResponseWriter, r *http.Request) {
	preview, err := s.game.PreviewGenerate(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleCommitGenerate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	yc, err := s.game.CommitGenerate(r.Context(), in.Token)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, yc)
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Year int `json:"year"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.game.StageNext(r.Context(), in.Year)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.YearTransitions.WithLabelValues("stage").Inc()
	s.broadcast(Event{Type: EventStaged, Year: res.Year, Payload: res})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	res, err := s.game.Settle(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.YearTransitions.WithLabelValues("settle").Inc()
	s.broadcast(Event{Type: EventSettled, Year: res.Year, Payload: res})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	res, err := s.game.Revert(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.YearTransitions.WithLabelValues("revert").Inc()
	s.broadcast(Event{Type: EventReverted, Year: res.Year, Payload: res})
	writeJSON(w, http.StatusOK, res)
}

type adminTradeBody struct {
	ParticipantID string `json:"participant_id"`
	Orders        string `json:"orders"`
}

func (s *Server) handleAdminBuy(w http.ResponseWriter, r *http.Request) {
	var in adminTradeBody
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.game.AdminBuy(r.Context(), in.ParticipantID, in.Orders)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	recordTrade("admin_buy", res)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAdminSell(w http.ResponseWriter, r *http.Request) {
	var in adminTradeBody
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.game.AdminSell(r.Context(), in.ParticipantID, in.Orders)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	recordTrade("admin_sell", res)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleForceCash(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ParticipantID string `json:"participant_id"`
		Amount        int64  `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pf, err := s.game.AdminForceCash(r.Context(), in.ParticipantID, in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pf)
}

func (s *Server) handleAdminClear(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ParticipantID string `json:"participant_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.game.AdminClear(r.Context(), in.ParticipantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	recordTrade("admin_clear", res)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Locked bool `json:"locked"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := s.game.SetTradingLocked(r.Context(), in.Locked)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trading_locked": cfg.TradingLocked})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := market.ParseGameMode(in.Mode)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	cfg, err := s.game.SetGameMode(r.Context(), mode)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"game_mode": cfg.GameMode})
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Policy string `json:"policy"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	policy, err := market.ParseRankingPolicy(in.Policy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	cfg, err := s.game.SetRankingPolicy(r.Context(), policy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"elim_ranking_policy": cfg.ElimRankingPolicy})
}

func (s *Server) handleFreeze(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ParticipantID string `json:"participant_id"`
		Frozen        bool   `json:"frozen"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pf, err := s.game.SetFrozen(r.Context(), in.ParticipantID, in.Frozen)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pf)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Mode  string `json:"mode"`
		Items []struct {
			Code  string `json:"code"`
			Name  string `json:"name"`
			Price int64  `json:"price"`
		} `json:"items"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := market.ParseGameMode(in.Mode)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	names := make(map[string]string, len(in.Items))
	prices := make(map[string]int64, len(in.Items))
	for _, it := range in.Items {
		names[it.Code] = it.Name
		prices[it.Code] = it.Price
	}
	cfg, err := s.game.ResetSeason(r.Context(), mode, names, prices)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.Participants.Set(0)
	s.broadcast(Event{Type: EventReset, Year: cfg.LastSettledYear})
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleBottomCut(w http.ResponseWriter, r *http.Request) {
	res, err := s.game.BottomCut(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.YearTransitions.WithLabelValues("cut").Inc()
	s.broadcast(Event{Type: EventCut, Year: res.Year, Payload: res})
	writeJSON(w, http.StatusOK, res)
}
