package opshttp

import (
	"net/http"
	"net/http/pprof"

	"github.com/go-chi/chi/v5"
)

func mountPprof(r chi.Router) {
	r.HandleFunc("/debug/pprof/*", pprof.Index)
	r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

func notFound(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }
