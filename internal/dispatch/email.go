package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/serverpulse/serverpulse/internal/alert"
	"github.com/serverpulse/serverpulse/internal/config"
)

// Email delivers alerts over SMTP as multipart/alternative messages with a
// plain-text and an HTML body.
type Email struct {
	cfg config.EmailConfig

	// tlsConfig overrides the STARTTLS client config; nil verifies the
	// server certificate against cfg.SMTPHost. Set in tests.
	tlsConfig *tls.Config
}

// NewEmail builds the SMTP sender from validated config.
func NewEmail(cfg config.EmailConfig) *Email {
	return &Email{cfg: cfg}
}

func (e *Email) Name() string { return "email" }

// Send connects, optionally upgrades via STARTTLS, authenticates when
// credentials are configured, and submits the message. The ctx deadline
// bounds the dial; the connection inherits it as an I/O deadline.
func (e *Email) Send(ctx context.Context, a alert.Alert) error {
	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPHost, e.cfg.SMTPPort)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, e.cfg.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if e.cfg.StartTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			tlsCfg := e.tlsConfig
			if tlsCfg == nil {
				tlsCfg = &tls.Config{ServerName: e.cfg.SMTPHost}
			}
			if err := client.StartTLS(tlsCfg); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}

	if e.cfg.Username != "" && e.cfg.Password() != "" {
		auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password(), e.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(e.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range e.cfg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write(e.buildMessage(a)); err != nil {
		wc.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}

// buildMessage renders the full RFC 5322 message with text and HTML parts.
func (e *Email) buildMessage(a alert.Alert) []byte {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Severity)), a.Kind)
	if a.Resolved {
		subject = fmt.Sprintf("[RESOLVED] %s", a.Kind)
	}

	fmt.Fprintf(&buf, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())

	text, _ := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	fmt.Fprintf(text, "ServerPulse Alert\r\n\r\n"+
		"Severity: %s\r\nKind: %s\r\nMessage: %s\r\n"+
		"Value: %.2f\r\nThreshold: %.2f\r\nTime: %s\r\n",
		a.Severity, a.Kind, a.Message,
		a.Value, a.Threshold, a.Timestamp.Format(time.RFC3339))

	html, _ := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=utf-8"},
	})
	fmt.Fprintf(html, `<html><body>
<h2>ServerPulse Alert</h2>
<div style="border-left:5px solid %s;padding:12px;background:#f5f5f5">
<h3>%s</h3>
<p><strong>Severity:</strong> %s</p>
<p>%s</p>
<p><strong>Value:</strong> %.2f &middot; <strong>Threshold:</strong> %.2f</p>
<p><em>%s</em></p>
</div>
</body></html>`,
		htmlColor(a), a.Kind, a.Severity, a.Message,
		a.Value, a.Threshold, a.Timestamp.Format(time.RFC3339))

	mw.Close()
	return buf.Bytes()
}

func htmlColor(a alert.Alert) string {
	if a.Resolved {
		return "#4caf50"
	}
	switch a.Severity {
	case alert.SeverityCritical:
		return "#f44336"
	case alert.SeverityWarning:
		return "#ff9800"
	default:
		return "#2196f3"
	}
}
