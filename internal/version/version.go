// Package version reports what binary is running. The vars are set with
// -ldflags "-X" at release time, VCS details fall back to the Go build info.
package version

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strings"
)

var (
	AppName    = "lumenforge-web"
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildId    string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildId    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

// String is the one-line form printed by -V and sent as the mail X-Mailer
// header, e.g. "v1.4.0 (3f9c2ab, dirty)".
func (i Info) String() string {
	c := i.Commit
	if len(c) > 7 {
		c = c[:7]
	}
	var b strings.Builder
	b.WriteString(i.Version + " (" + c)
	if i.VCSDirty != nil && *i.VCSDirty {
		b.WriteString(", dirty")
	}
	b.WriteString(")")
	return b.String()
}

func Get() Info {
	out := Info{
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildId:    BuildId,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		out.GoVersion = bi.GoVersion
		out.fill(bi.Settings)
	}
	return out
}

// fill takes VCS details from build settings. ldflags values win, except
// for vcs.modified which only the toolchain knows for certain.
func (i *Info) fill(settings []debug.BuildSetting) {
	for _, s := range settings {
		if s.Value == "" {
			continue
		}
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "none" || i.Commit == "" {
				i.Commit = s.Value
			}
		case "vcs.time":
			i.CommitDate = s.Value
			if i.BuildDate == "" {
				i.BuildDate = s.Value
			}
		case "vcs.modified":
			dirty := s.Value == "true"
			i.VCSDirty = &dirty
		}
	}
}

// Handler serves Get() as JSON on the admin listener.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(struct {
			App string `json:"app"`
			Info
		}{AppName, Get()})
	})
}
