package sitehandler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
)

func newTestHandler(t *testing.T, fsys fstest.MapFS) *Handler {
	t.Helper()
	h, err := New(Options{FS: fsys})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("nil FS err = %v", err)
	}
	if _, err := New(Options{FS: fstest.MapFS{"app.js": {Data: []byte("x")}}}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("missing index err = %v", err)
	}
}

func TestServeHTTP_ClientRouteGetsShell(t *testing.T) {
	h := newTestHandler(t, testFS())
	for _, p := range []string{"/", "/pricing", "/services/web-design", "/contact/"} {
		rec := do(h, http.MethodGet, p)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", p, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "id=app") {
			t.Fatalf("%s: body = %q, want app shell", p, rec.Body.String())
		}
		if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
			t.Fatalf("%s: Cache-Control = %q", p, cc)
		}
	}
}

func TestServeHTTP_Asset(t *testing.T) {
	h := newTestHandler(t, testFS())
	rec := do(h, http.MethodGet, "/assets/app-3f9a.js")
	if rec.Code != http.StatusOK || rec.Body.String() != "console.log(1)" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=31536000, immutable" {
		t.Fatalf("Cache-Control = %q", cc)
	}

	rec = do(h, http.MethodGet, "/robots.txt")
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=3600" {
		t.Fatalf("robots Cache-Control = %q", cc)
	}
}

func TestServeHTTP_MissingAsset404(t *testing.T) {
	h := newTestHandler(t, testFS())
	rec := do(h, http.MethodGet, "/assets/app-old.js")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Not here") {
		t.Fatalf("body = %q, want themed 404", rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("Cache-Control = %q", cc)
	}
}

func TestServeHTTP_PlainText404(t *testing.T) {
	fsys := testFS()
	delete(fsys, "404.html")
	h := newTestHandler(t, fsys)

	rec := do(h, http.MethodGet, "/missing.png")
	if rec.Code != http.StatusNotFound || rec.Body.String() != "404 page not found" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestServeHTTP_UnknownAPIPath(t *testing.T) {
	h := newTestHandler(t, testFS())
	for _, p := range []string{"/api", "/api/unknown", "/api/forms/contact/extra"} {
		rec := do(h, http.MethodGet, p)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d", p, rec.Code)
		}
		if got := rec.Body.String(); got != "{\"error\":\"not found\"}\n" {
			t.Fatalf("%s: body = %q", p, got)
		}
	}
	// only the /api segment is reserved
	if rec := do(h, http.MethodGet, "/apis"); rec.Code != http.StatusOK {
		t.Fatalf("/apis status = %d", rec.Code)
	}
}

func TestServeHTTP_Redirect(t *testing.T) {
	h := newTestHandler(t, testFS())
	rec := do(h, http.MethodGet, "/legal")
	if rec.Code != http.StatusPermanentRedirect {
		t.Fatalf("status = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/legal/" {
		t.Fatalf("Location = %q", loc)
	}
}

func TestServeHTTP_Head(t *testing.T) {
	h := newTestHandler(t, testFS())
	rec := do(h, http.MethodHead, "/pricing")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatal("HEAD should not write a body")
	}
}

func TestServeHTTP_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, testFS())
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		rec := do(h, m, "/")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: status = %d", m, rec.Code)
		}
		if rec.Header().Get("Allow") != "GET, HEAD" {
			t.Fatalf("%s: Allow = %q", m, rec.Header().Get("Allow"))
		}
		if rec.Body.Len() != 0 {
			t.Fatalf("%s: body should be empty", m)
		}
	}
}

func TestCacheControl(t *testing.T) {
	o := Options{}
	o.setDefaults()
	cases := map[string]string{
		".html":  o.HTMLCacheControl,
		"":       o.HTMLCacheControl,
		".js":    o.AssetCacheControl,
		".woff2": o.AssetCacheControl,
		".avif":  o.AssetCacheControl,
		".json":  o.OtherCacheControl,
		".xml":   o.OtherCacheControl,
	}
	for ext, want := range cases {
		if got := o.cacheControl(ext); got != want {
			t.Errorf("cacheControl(%q) = %q, want %q", ext, got, want)
		}
	}
}
