package opshttp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumenforge/lumenforge-web/internal/log"
)

// mountLimiterAdmin adds
//
//	POST /ratelimit/{tier}/reset?id=<identifier>
//	POST /ratelimit/{tier}/clear
//
// for unblocking a client (or everyone) without a restart.
func mountLimiterAdmin(r chi.Router, L log.Logger, limiters map[string]LimiterAdmin) {
	lookup := func(w http.ResponseWriter, req *http.Request) (string, LimiterAdmin, bool) {
		tier := chi.URLParam(req, "tier")
		l, ok := limiters[tier]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown tier"})
			return "", nil, false
		}
		return tier, l, true
	}

	r.Post("/ratelimit/{tier}/reset", func(w http.ResponseWriter, req *http.Request) {
		tier, l, ok := lookup(w, req)
		if !ok {
			return
		}
		id := req.URL.Query().Get("id")
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
			return
		}
		l.Reset(req.Context(), id)
		L.Info(req.Context(), "rate limit reset", "tier", tier, "id", id, "remote_addr", req.RemoteAddr)
		writeJSON(w, http.StatusOK, map[string]string{"tier": tier, "reset": id})
	})

	r.Post("/ratelimit/{tier}/clear", func(w http.ResponseWriter, req *http.Request) {
		tier, l, ok := lookup(w, req)
		if !ok {
			return
		}
		l.Clear(req.Context())
		L.Warn(req.Context(), "rate limit tier cleared", "tier", tier, "remote_addr", req.RemoteAddr)
		writeJSON(w, http.StatusOK, map[string]string{"tier": tier, "cleared": "all"})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
