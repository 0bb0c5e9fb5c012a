package sitehandler

import (
	"io/fs"
	"path"
	"strings"
)

type resolution int

const (
	resolveMissing resolution = iota
	resolveFile
	resolveRoute
	resolveRedirect
)

// resolvePath maps a URL path onto the bundle. Paths with an extension are
// assets and must exist. Extensionless paths are client-side routes and fall
// back to the app shell, except that a real <dir>/index.html wins and is
// redirected to its slash form.
func resolvePath(urlPath string, fsys fs.FS) (name string, res resolution) {
	p := urlPath
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if strings.ContainsAny(p, "\x00\\") || hasDotSegment(p) {
		return "", resolveMissing
	}

	slash := strings.HasSuffix(p, "/")
	clean := strings.TrimPrefix(path.Clean(p), "/")

	switch {
	case clean == "":
		return "", resolveRoute
	case slash:
		if idx := clean + "/index.html"; existsFile(fsys, idx) {
			return idx, resolveFile
		}
		return "", resolveRoute
	case path.Ext(clean) != "":
		if existsFile(fsys, clean) {
			return clean, resolveFile
		}
		return "", resolveMissing
	case existsFile(fsys, clean+"/index.html"):
		return "/" + clean + "/", resolveRedirect
	}
	return "", resolveRoute
}

func hasDotSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
