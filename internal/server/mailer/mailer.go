// Package mailer delivers the notification sent when a retro is archived.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"text/template"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/common"
)

// ArchiveEmail is the template data of the archive notification.
type ArchiveEmail struct {
	RetroName   string
	RetroURL    string
	ArchiveURL  string
	ExportURL   string
	ArchivedAt  time.Time
	ActionItems []string
}

type Mailer interface {
	Send(ctx context.Context, recipient string, data ArchiveEmail) error
}

// NopMailer drops every message. It is used when archive emails are off.
type NopMailer struct{}

func (NopMailer) Send(context.Context, string, ArchiveEmail) error { return nil }

var archiveTemplate = template.Must(template.New("archive").Parse(
	`From: {{.From}}
To: {{.To}}
Subject: Your retro "{{.Data.RetroName}}" has been archived
MIME-Version: 1.0
Content-Type: text/plain; charset=UTF-8

Your retro "{{.Data.RetroName}}" was archived on {{.Data.ArchivedAt.Format "2006-01-02 15:04 MST"}}.
{{if .Data.ActionItems}}
Action items:
{{range .Data.ActionItems}}  - {{.}}
{{end}}{{else}}
There were no completed action items.
{{end}}
View the archive: {{.Data.ArchiveURL}}
{{- if .Data.ExportURL}}
Download the snapshot: {{.Data.ExportURL}}
{{- end}}
Back to the board: {{.Data.RetroURL}}
`))

// SMTPMailer sends plain-text mail through an SMTP relay.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer returns a mailer for host:port. Authentication is used when
// user is set.
func NewSMTPMailer(host string, port int, user, password, from string) *SMTPMailer {
	m := &SMTPMailer{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		from: from,
		send: smtp.SendMail,
	}
	if user != "" {
		m.auth = smtp.PlainAuth("", user, password, host)
	}
	return m
}

// Render builds the full RFC 822 message for recipient.
func (m *SMTPMailer) Render(recipient string, data ArchiveEmail) ([]byte, error) {
	var buf bytes.Buffer
	err := archiveTemplate.Execute(&buf, struct {
		From, To string
		Data     ArchiveEmail
	}{m.from, recipient, data})
	if err != nil {
		return nil, fmt.Errorf("render archive email: %w", err)
	}
	return buf.Bytes(), nil
}

func (m *SMTPMailer) Send(ctx context.Context, recipient string, data ArchiveEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := m.Render(recipient, data)
	if err != nil {
		return err
	}
	if err := m.send(m.addr, m.auth, m.from, []string{recipient}, msg); err != nil {
		return fmt.Errorf("smtp %s: %v: %w", m.addr, err, common.ErrorUpstream)
	}
	return nil
}
