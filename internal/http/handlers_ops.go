package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	applog "expensedash/internal/log"
	"expensedash/internal/middleware/trace"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// stater is implemented by publishers that expose a circuit state.
type stater interface {
	State() string
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleReady fails only when the session store is unreachable. The activity
// publisher is reported but never blocks readiness.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	res := readiness{Status: "ok", Checks: map[string]string{"sessions": "ok", "activity": "disabled"}}
	code := http.StatusOK
	if err := s.sessions.Ping(ctx); err != nil {
		res.Status = "unavailable"
		res.Checks["sessions"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if s.publisher != nil {
		res.Checks["activity"] = "enabled"
		if st, ok := s.publisher.(stater); ok {
			res.Checks["activity"] = "circuit " + st.State()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(res)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.RateLimited.Store(s.limiter.Hits())
	s.metrics.Suspicious.Store(s.detector.Flagged())

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	err := s.metrics.WriteText(w,
		trace.Gauge{Name: "rate_limit_clients", Value: int64(s.limiter.ActiveClients())},
		trace.Gauge{Name: "month_cache_entries", Value: int64(s.monthCache.Size())},
	)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Writing metrics failed", applog.FieldError, err)
	}
}
