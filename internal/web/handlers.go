package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"signaldeck/internal/classifier"
	"signaldeck/internal/market"
	"signaldeck/internal/scanner"
	"signaldeck/internal/store"
	"signaldeck/pkg/model"
)

// HealthResponse reports API and broker reachability
type HealthResponse struct {
	Status string `json:"status"`
	Broker *bool  `json:"broker,omitempty"`
}

// SignalsResponse is the rolling buffer
type SignalsResponse struct {
	Signals []model.TradeSignal `json:"signals"`
	Count   int                 `json:"count"`
}

// TakenRequest toggles the taken flag. A missing body marks the signal taken.
type TakenRequest struct {
	Taken *bool `json:"taken"`
}

// FeedbackRequest attaches a remark to a signal
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
}

// MarketResponse combines exchange hours and the classifier's mood
type MarketResponse struct {
	IsOpen      bool               `json:"isOpen"`
	Reason      string             `json:"reason"`
	CurrentTime string             `json:"currentTime"`
	TimeToOpen  string             `json:"timeToOpen,omitempty"`
	TimeToClose string             `json:"timeToClose,omitempty"`
	Breadth     classifier.Breadth `json:"breadth"`
	Mood        classifier.Mood    `json:"mood"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if s.deps.Broker != nil {
		ok := s.deps.Broker.Health(r.Context())
		resp.Broker = &ok
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Scanner.Start(s.baseCtx, nil)
	switch {
	case err == nil:
		s.log.Info().Msg("scan started")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	case errors.Is(err, scanner.ErrScanInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scanner.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.log.Error().Err(err).Msg("scan start failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Scanner.Status())
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	signals, err := s.deps.Signals.Load(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("load signals")
		writeError(w, http.StatusInternalServerError, "failed to load signals")
		return
	}
	if signals == nil {
		signals = []model.TradeSignal{}
	}
	writeJSON(w, http.StatusOK, SignalsResponse{Signals: signals, Count: len(signals)})
}

func (s *Server) handleTaken(w http.ResponseWriter, r *http.Request) {
	var req TakenRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	taken := true
	if req.Taken != nil {
		taken = *req.Taken
	}

	sig, err := s.deps.Signals.MarkTaken(r.Context(), chi.URLParam(r, "id"), taken)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	text := strings.TrimSpace(req.Feedback)
	if text == "" {
		writeError(w, http.StatusBadRequest, "feedback must not be empty")
		return
	}

	sig, err := s.deps.Signals.SetFeedback(r.Context(), chi.URLParam(r, "id"), text)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if s.deps.Feedback != nil {
		if err := s.deps.Feedback.Append(r.Context(), sig.Symbol, string(sig.Timeframe), text); err != nil {
			s.log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("feedback log append failed")
		}
	}
	writeJSON(w, http.StatusOK, sig)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Signals.Clear(r.Context()); err != nil {
		s.writeStoreError(w, err)
		return
	}
	if s.deps.Feedback != nil {
		if err := s.deps.Feedback.Clear(r.Context()); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}
	s.log.Info().Msg("signals and feedback cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	st := market.StatusAt(s.now(), market.DefaultSchedule())
	breadth := s.deps.Scanner.Breadth()

	mood := classifier.FallbackMood
	if s.deps.Mood != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 90*time.Second)
		mood = s.deps.Mood.MarketMood(ctx, breadth)
		cancel()
	}

	resp := MarketResponse{
		IsOpen:      st.IsOpen,
		Reason:      st.Reason,
		CurrentTime: st.CurrentIST.Format("15:04:05 MST"),
		Breadth:     breadth,
		Mood:        mood,
	}
	if st.TimeToOpen > 0 {
		resp.TimeToOpen = market.FormatDuration(st.TimeToOpen)
	}
	if st.TimeToClose > 0 {
		resp.TimeToClose = market.FormatDuration(st.TimeToClose)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error().Err(err).Msg("store")
	writeError(w, http.StatusInternalServerError, "storage error")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
