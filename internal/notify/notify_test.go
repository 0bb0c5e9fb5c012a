package notify

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

type recordingSink struct {
	name string
	err  error
	got  []Submission
}

func (r *recordingSink) Name() string { return r.name }
func (r *recordingSink) Deliver(_ context.Context, s Submission) error {
	r.got = append(r.got, s)
	return r.err
}

func testSubmission() Submission {
	return Submission{
		ID:   "0b7e4c1a-8f43-4a8e-9a55-3f1b2c9d7e60",
		Kind: "contact",
		Fields: map[string]string{
			"name":    "Dana Whitfield",
			"email":   "dana@northwind.io",
			"message": "Could you send pricing for the team plan?",
		},
		ClientIP:   "198.51.100.23",
		UserAgent:  "Mozilla/5.0",
		ReceivedAt: time.Date(2026, 4, 9, 23, 30, 0, 0, time.FixedZone("PDT", -7*3600)),
		BotScore:   10,
	}
}

func TestSubmission_FieldNamesSorted(t *testing.T) {
	got := testSubmission().FieldNames()
	want := []string{"email", "message", "name"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FieldNames = %v, want %v", got, want)
	}
}

func TestFanout_DeliversToAll(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	f := NewFanout([]Sink{a, b})

	if err := f.Deliver(context.Background(), testSubmission()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("deliveries a=%d b=%d, want 1 each", len(a.got), len(b.got))
	}
	if got := f.Sinks(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Sinks = %v", got)
	}
}

func TestFanout_JoinsErrorsAndContinues(t *testing.T) {
	errA := errors.New("smtp down")
	errC := errors.New("s3 down")
	a := &recordingSink{name: "mail", err: errA}
	b := &recordingSink{name: "log"}
	c := &recordingSink{name: "s3", err: errC}

	var failed []string
	f := NewFanout([]Sink{a, b, c}, WithOnError(func(sink string, _ error) { failed = append(failed, sink) }))

	err := f.Deliver(context.Background(), testSubmission())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errA) || !errors.Is(err, errC) {
		t.Fatalf("joined error lost a cause: %v", err)
	}
	if !strings.Contains(err.Error(), "sink mail") || !strings.Contains(err.Error(), "sink s3") {
		t.Fatalf("error should name failing sinks: %v", err)
	}
	if len(b.got) != 1 {
		t.Fatal("healthy sink should still receive the submission")
	}
	if !reflect.DeepEqual(failed, []string{"mail", "s3"}) {
		t.Fatalf("onError sinks = %v", failed)
	}
}

func TestFanout_Empty(t *testing.T) {
	if err := NewFanout(nil).Deliver(context.Background(), testSubmission()); err != nil {
		t.Fatalf("empty fanout: %v", err)
	}
}
