package ratelimit

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lumenforge/lumenforge-web/internal/xerrors"
)

// Tier is a named window/limit preset.
type Tier struct {
	Name   string
	Window time.Duration
	Max    int
}

var (
	// TierForm guards public form submissions.
	TierForm = Tier{Name: "form", Window: time.Minute, Max: 5}
	// TierAPI guards general API calls.
	TierAPI = Tier{Name: "api", Window: time.Minute, Max: 30}
	// TierBulk guards bulk API calls.
	TierBulk = Tier{Name: "bulk", Window: time.Minute, Max: 100}
)

// Tiers returns the built-in presets keyed by name.
func Tiers() map[string]Tier {
	return map[string]Tier{
		TierForm.Name: TierForm,
		TierAPI.Name:  TierAPI,
		TierBulk.Name: TierBulk,
	}
}

type tiersFile struct {
	Tiers map[string]struct {
		Window string `yaml:"window"`
		Max    int    `yaml:"max"`
	} `yaml:"tiers"`
}

// LoadTiers reads a YAML file of the form
//
//	tiers:
//	  form: {window: 1m, max: 5}
//
// and overlays it on the built-in presets. Unknown tier names are rejected,
// omitted fields keep their default.
func LoadTiers(path string) (map[string]Tier, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read limits file %s", path)
	}
	return ParseTiers(b)
}

// ParseTiers is LoadTiers on an in-memory document.
func ParseTiers(doc []byte) (map[string]Tier, error) {
	var f tiersFile
	if err := yaml.Unmarshal(doc, &f); err != nil {
		return nil, xerrors.Wrap(err, "parse limits file")
	}

	out := Tiers()
	for name, o := range f.Tiers {
		t, ok := out[name]
		if !ok {
			return nil, xerrors.Newf("unknown rate limit tier %q", name)
		}
		if o.Window != "" {
			d, err := time.ParseDuration(o.Window)
			if err != nil {
				return nil, xerrors.Wrapf(err, "tier %s window", name)
			}
			t.Window = d
		}
		if o.Max != 0 {
			t.Max = o.Max
		}
		if t.Window <= 0 || t.Max <= 0 {
			return nil, xerrors.Newf("tier %s: window and max must be positive", name)
		}
		// redis expiries are whole milliseconds, PEXPIRE 0 would drop the key
		if t.Window < time.Millisecond {
			return nil, xerrors.Newf("tier %s: window %s is shorter than 1ms", name, t.Window)
		}
		out[name] = t
	}
	return out, nil
}
