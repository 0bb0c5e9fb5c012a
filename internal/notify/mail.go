package notify

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	gomail "gopkg.in/mail.v2"

	"github.com/lumenforge/lumenforge-web/internal/xerrors"
)

// mailSender is the part of *gomail.Dialer used to send.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type MailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	// Timeout bounds the SMTP dial and send, defaults to 10s
	Timeout time.Duration
	// XMailer is sent as the X-Mailer header when set
	XMailer string
}

// MailSink emails each submission to the site owners.
type MailSink struct {
	from    string
	to      []string
	xmailer string
	sender  mailSender
}

func NewMailSink(opts MailOptions) (*MailSink, error) {
	if opts.Host == "" {
		return nil, xerrors.New("smtp host is required")
	}
	if opts.From == "" || len(opts.To) == 0 {
		return nil, xerrors.New("mail from and to are required")
	}
	d := gomail.NewDialer(opts.Host, opts.Port, opts.Username, opts.Password)
	d.Timeout = opts.Timeout
	if d.Timeout <= 0 {
		d.Timeout = 10 * time.Second
	}
	return &MailSink{from: opts.From, to: opts.To, xmailer: opts.XMailer, sender: d}, nil
}

func (m *MailSink) Name() string { return "mail" }

func (m *MailSink) Deliver(ctx context.Context, s Submission) error {
	if err := ctx.Err(); err != nil {
		return xerrors.Wrap(err, "send submission mail")
	}
	if err := m.sender.DialAndSend(m.message(s)); err != nil {
		return xerrors.Wrapf(err, "send submission mail %s", s.ID)
	}
	return nil
}

func (m *MailSink) message(s Submission) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to...)
	msg.SetHeader("Subject", fmt.Sprintf("New %s submission (%s)", s.Kind, shortID(s.ID)))
	if addr, err := mail.ParseAddress(s.Fields["email"]); err == nil {
		msg.SetHeader("Reply-To", addr.Address)
	}
	if m.xmailer != "" {
		msg.SetHeader("X-Mailer", m.xmailer)
	}
	msg.SetBody("text/plain", mailBody(s))
	return msg
}

func mailBody(s Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Kind: %s\n", s.Kind)
	fmt.Fprintf(&b, "ID: %s\n", s.ID)
	fmt.Fprintf(&b, "Received: %s\n", s.ReceivedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Client IP: %s\n", s.ClientIP)
	fmt.Fprintf(&b, "Bot score: %d\n\n", s.BotScore)
	for _, k := range s.FieldNames() {
		fmt.Fprintf(&b, "%s:\n%s\n\n", k, s.Fields[k])
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
