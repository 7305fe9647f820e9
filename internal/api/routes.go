package api

import (
	"net/http"
	"time"

	"github.com/kjannette/trahn-agent/internal/models"
)

const defaultLogWindow = 100

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 10)

	trades, err := s.store.RecentTrades(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("fetch trades")
		writeError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}
	if trades == nil {
		trades = []models.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// handleLogs returns entries after ?after= (RFC 3339) in ascending order, or
// the most recent window when after is absent.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	var (
		logs []models.LogEntry
		err  error
	)

	if v := r.URL.Query().Get("after"); v != "" {
		after, perr := time.Parse(time.RFC3339Nano, v)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid after, expected RFC 3339 timestamp")
			return
		}
		logs, err = s.store.LogsAfter(r.Context(), after)
	} else {
		logs, err = s.store.RecentLogs(r.Context(), parseLimit(r, defaultLogWindow))
	}
	if err != nil {
		s.log.Error().Err(err).Msg("fetch logs")
		writeError(w, http.StatusInternalServerError, "failed to fetch logs")
		return
	}
	if logs == nil {
		logs = []models.LogEntry{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleLatestBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := s.store.LatestBalance(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("fetch balance")
		writeError(w, http.StatusInternalServerError, "failed to fetch balance")
		return
	}
	if bal == nil {
		writeError(w, http.StatusNotFound, "no balance recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "log stream disabled")
		return
	}
	s.hub.ServeWS(w, r)
}
