// Package emailsender implements the email transport: a multipart
// plain/HTML message delivered over SMTP with TLS or STARTTLS per config.
//
// No example repo in the retrieval pack imports a third-party mail or SMTP
// client, so this stays on net/smtp + crypto/tls, mirroring the source's
// direct use of aiosmtplib with no higher-level mail library either.
package emailsender

import (
	"crypto/tls"
	"fmt"
	"log"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/fleetmon/fleetmon/pkg/config"
)

// Sender holds the SMTP configuration for one process.
type Sender struct {
	cfg config.EmailConfig
}

// New creates a Sender bound to cfg.Email.
func New(cfg *config.Config) *Sender {
	return &Sender{cfg: cfg.Email}
}

// Send delivers subject/plain/html to every recipient in to. A missing SMTP
// host or an empty recipient list is a silent no-op, matching the source.
func (s *Sender) Send(to []string, subject, plain, htmlBody string) error {
	recipients := nonEmpty(to)
	if len(recipients) == 0 {
		return nil
	}
	if s.cfg.Host == "" {
		log.Println("✉️  smtp host not configured; skipping email send")
		return nil
	}

	message := buildMessage(s.cfg.FromAddr, recipients, subject, plain, htmlBody)

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	timeout := 10 * time.Second
	if s.cfg.Timeout != "" {
		if d, err := time.ParseDuration(s.cfg.Timeout); err == nil {
			timeout = d
		}
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("failed to dial smtp host %s: %w", addr, err)
	}

	if s.cfg.SSL {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: s.cfg.Host})
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	defer client.Quit()

	if !s.cfg.SSL && s.cfg.TLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("starttls failed: %w", err)
		}
	}

	if s.cfg.User != "" {
		auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	if err := client.Mail(s.cfg.FromAddr); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s failed: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}
	return w.Close()
}

// buildMessage renders a plain-text-only message when htmlBody is empty, and
// otherwise a multipart/alternative MIME message with a plain-text part and
// an HTML alternative.
func buildMessage(from string, to []string, subject, plain, htmlBody string) []byte {
	boundary := "fleetmon-boundary"

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))

	if htmlBody == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(plain)
		return []byte(b.String())
	}

	fmt.Fprintf(&b, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(plain)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String())
}

func nonEmpty(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}
