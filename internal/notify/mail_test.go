package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	gomail "gopkg.in/mail.v2"
)

type fakeSender struct {
	err  error
	sent []*gomail.Message
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func newTestMailSink(t *testing.T, sender mailSender) *MailSink {
	t.Helper()
	m, err := NewMailSink(MailOptions{
		Host: "smtp.example.test",
		Port: 587,
		From: "forms@lumenforge.dev",
		To:   []string{"hello@lumenforge.dev", "sales@lumenforge.dev"},
	})
	if err != nil {
		t.Fatalf("NewMailSink: %v", err)
	}
	m.sender = sender
	return m
}

func TestNewMailSink_Validation(t *testing.T) {
	if _, err := NewMailSink(MailOptions{From: "a@b.c", To: []string{"d@e.f"}}); err == nil {
		t.Fatal("expected error without host")
	}
	if _, err := NewMailSink(MailOptions{Host: "smtp", From: "a@b.c"}); err == nil {
		t.Fatal("expected error without recipients")
	}
}

func TestMailSink_Message(t *testing.T) {
	fs := &fakeSender{}
	m := newTestMailSink(t, fs)
	s := testSubmission()

	if err := m.Deliver(context.Background(), s); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(fs.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fs.sent))
	}
	msg := fs.sent[0]

	if got := msg.GetHeader("To"); len(got) != 2 {
		t.Fatalf("To = %v", got)
	}
	if got := msg.GetHeader("Reply-To"); len(got) != 1 || got[0] != "dana@northwind.io" {
		t.Fatalf("Reply-To = %v", got)
	}
	if got := msg.GetHeader("Subject"); len(got) != 1 || got[0] != "New contact submission (0b7e4c1a)" {
		t.Fatalf("Subject = %v", got)
	}
	if got := msg.GetHeader("X-Mailer"); len(got) != 0 {
		t.Fatalf("X-Mailer = %v, want none", got)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	body := buf.String()
	for _, want := range []string{"Kind: contact", "Received: 2026-04-10T06:30:00Z", "Bot score: 10", "Could you send pricing"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestMailSink_XMailer(t *testing.T) {
	fs := &fakeSender{}
	m, err := NewMailSink(MailOptions{
		Host:    "smtp.example.test",
		From:    "forms@lumenforge.dev",
		To:      []string{"hello@lumenforge.dev"},
		XMailer: "lumenforge-web v1.4.0 (3f9c2ab)",
	})
	if err != nil {
		t.Fatal(err)
	}
	m.sender = fs
	if err := m.Deliver(context.Background(), testSubmission()); err != nil {
		t.Fatal(err)
	}
	if got := fs.sent[0].GetHeader("X-Mailer"); len(got) != 1 || got[0] != "lumenforge-web v1.4.0 (3f9c2ab)" {
		t.Fatalf("X-Mailer = %v", got)
	}
}

func TestMailSink_NoReplyToForBadEmail(t *testing.T) {
	fs := &fakeSender{}
	m := newTestMailSink(t, fs)
	s := testSubmission()
	s.Fields["email"] = "not an address"

	if err := m.Deliver(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if got := fs.sent[0].GetHeader("Reply-To"); len(got) != 0 {
		t.Fatalf("Reply-To = %v, want none", got)
	}
}

func TestMailSink_SendError(t *testing.T) {
	cause := errors.New("535 authentication failed")
	m := newTestMailSink(t, &fakeSender{err: cause})

	err := m.Deliver(context.Background(), testSubmission())
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want wrapped cause", err)
	}
}

func TestMailSink_CancelledContext(t *testing.T) {
	fs := &fakeSender{}
	m := newTestMailSink(t, fs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Deliver(ctx, testSubmission()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(fs.sent) != 0 {
		t.Fatal("nothing should be sent on a cancelled context")
	}
}
