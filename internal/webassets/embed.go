package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

// dist/ is the built SPA, replaced by the frontend build before go build.
//
//go:embed dist
var embedded embed.FS

// DistFS returns the embedded site rooted at dist/.
func DistFS() fs.FS {
	sub, err := fs.Sub(embedded, "dist")
	if err != nil {
		panic(fmt.Errorf("webassets: dist subfs: %w", err))
	}
	return sub
}
