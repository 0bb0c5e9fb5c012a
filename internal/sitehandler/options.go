package sitehandler

import (
	"errors"
	"fmt"
	"io/fs"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

type Options struct {
	// FS holds the built single page app
	FS fs.FS

	// IndexFile is served for client-side routes, default "index.html"
	IndexFile string
	// NotFoundFile is served for missing assets when present, default "404.html"
	NotFoundFile string

	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=31536000, immutable"
	OtherCacheControl string // default: "public, max-age=3600"
}

func (o *Options) setDefaults() {
	if o.IndexFile == "" {
		o.IndexFile = "index.html"
	}
	if o.NotFoundFile == "" {
		o.NotFoundFile = "404.html"
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.FS == nil {
		return fmt.Errorf("%w: FS is nil", ErrInvalidOptions)
	}
	// a bundle without its shell is mispackaged
	if !existsFile(o.FS, o.IndexFile) {
		return fmt.Errorf("%w: missing %q in site FS", ErrInvalidOptions, o.IndexFile)
	}
	return nil
}

// cacheControl picks a policy from the served file's extension.
func (o *Options) cacheControl(ext string) string {
	switch ext {
	case ".html", "":
		return o.HTMLCacheControl
	case ".css", ".js", ".mjs", ".map",
		".png", ".jpg", ".jpeg", ".webp", ".gif", ".svg", ".ico", ".avif",
		".woff", ".woff2", ".ttf":
		return o.AssetCacheControl
	}
	return o.OtherCacheControl
}
