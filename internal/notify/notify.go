// Package notify delivers accepted form submissions to the people and
// systems that act on them.
package notify

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/lumenforge/lumenforge-web/internal/xerrors"
)

// Submission is an accepted form submission.
type Submission struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Fields     map[string]string `json:"fields"`
	ClientIP   string            `json:"client_ip"`
	UserAgent  string            `json:"user_agent"`
	ReceivedAt time.Time         `json:"received_at"`
	BotScore   int               `json:"bot_score"`
}

// FieldNames returns the submitted field names in sorted order.
func (s Submission) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Sink delivers a submission somewhere.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, s Submission) error
}

// Fanout delivers to every sink in order. All sinks are attempted even when
// one fails, the failures are joined.
type Fanout struct {
	sinks   []Sink
	onError func(sink string, err error)
}

type FanoutOption func(*Fanout)

// WithOnError is called for each failing sink, used for metrics.
func WithOnError(fn func(sink string, err error)) FanoutOption {
	return func(f *Fanout) { f.onError = fn }
}

func NewFanout(sinks []Sink, opts ...FanoutOption) *Fanout {
	f := &Fanout{sinks: sinks}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Fanout) Name() string { return "fanout" }

// Sinks returns the configured sink names.
func (f *Fanout) Sinks() []string {
	out := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		out[i] = s.Name()
	}
	return out
}

func (f *Fanout) Deliver(ctx context.Context, s Submission) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Deliver(ctx, s); err != nil {
			if f.onError != nil {
				f.onError(sink.Name(), err)
			}
			errs = append(errs, xerrors.Wrapf(err, "sink %s", sink.Name()))
		}
	}
	return errors.Join(errs...)
}
