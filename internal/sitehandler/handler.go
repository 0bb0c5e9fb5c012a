// Package sitehandler serves the marketing site's single page app.
package sitehandler

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// unmatched API paths never get the app shell
	if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}` + "\n"))
		return
	}

	name, res := resolvePath(r.URL.Path, h.opts.FS)
	switch res {
	case resolveRedirect:
		http.Redirect(w, r, name, http.StatusPermanentRedirect)
	case resolveMissing:
		h.serveNotFound(w, r)
	case resolveRoute:
		h.serve(w, r, h.opts.IndexFile)
	default:
		h.serve(w, r, name)
	}
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, name string) {
	if cc := h.opts.cacheControl(strings.ToLower(path.Ext(name))); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	http.ServeFileFS(w, r, h.opts.FS, name)
}

func (h *Handler) serveNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	if existsFile(h.opts.FS, h.opts.NotFoundFile) {
		serveFileWithStatus(w, r, http.StatusNotFound, h.opts.FS, h.opts.NotFoundFile)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("404 page not found"))
}

// statusOverrideWriter replaces the status of the first WriteHeader, since
// http.ServeFileFS always writes its own.
type statusOverrideWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusOverrideWriter) WriteHeader(code int) {
	if w.wroteHeader {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(w.status)
}

func (w *statusOverrideWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func serveFileWithStatus(w http.ResponseWriter, r *http.Request, status int, fsys fs.FS, name string) {
	http.ServeFileFS(&statusOverrideWriter{ResponseWriter: w, status: status}, r, fsys, name)
}
