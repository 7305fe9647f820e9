package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/kjannette/trahn-agent/internal/models"
)

// activeWindow is how recent the last log must be for the agent to count as running.
const activeWindow = 5 * time.Minute

type agentStatus struct {
	Running     bool                    `json:"running"`
	State       string                  `json:"state"`
	UptimeMS    int64                   `json:"uptime_ms"`
	LastCycleAt *time.Time              `json:"last_cycle_at"`
	Balance     *models.BalanceSnapshot `json:"balance"`
	TradeCount  int64                   `json:"trade_count"`
	WinRate     int                     `json:"win_rate"`
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	bal, err := s.store.LatestBalance(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("status: balance")
		writeError(w, http.StatusInternalServerError, "failed to fetch status")
		return
	}
	stats, err := s.store.TradeStats(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("status: trade stats")
		writeError(w, http.StatusInternalServerError, "failed to fetch status")
		return
	}
	last, err := s.store.LatestLogAt(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("status: latest log")
		writeError(w, http.StatusInternalServerError, "failed to fetch status")
		return
	}

	now := s.now()
	st := agentStatus{
		UptimeMS:    now.Sub(s.startedAt).Milliseconds(),
		LastCycleAt: last,
		Balance:     bal,
		TradeCount:  stats.TotalTrades,
		WinRate:     int(math.Round(stats.WinRate())),
	}
	if last != nil {
		st.Running = now.Sub(*last) < activeWindow
	}
	if s.agent != nil {
		st.State = string(s.agent.State())
	}
	writeJSON(w, http.StatusOK, st)
}

type controlRequest struct {
	Action string `json:"action"`
}

type controlResponse struct {
	Success bool   `json:"success"`
	Action  string `json:"action"`
	Message string `json:"message"`
}

// handleAgentControl records the request. "stop" also stops the scheduler;
// "start" cannot restart a stopped process and is only recorded.
func (s *Server) handleAgentControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Action != "start" && req.Action != "stop" {
		writeError(w, http.StatusBadRequest, "Invalid action")
		return
	}

	s.events.Record(r.Context(), models.LogSystem, fmt.Sprintf("Agent %s requested via dashboard", req.Action))

	if req.Action == "stop" && s.agent != nil {
		s.agent.Stop("dashboard")
	}

	writeJSON(w, http.StatusOK, controlResponse{
		Success: true,
		Action:  req.Action,
		Message: fmt.Sprintf("Agent %s signal sent", req.Action),
	})
}
