package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/watchdog/internal/config"
)

// Email sends plain text mail over SMTP, upgrading with STARTTLS when the
// server offers it.
type Email struct {
	cfg    config.SMTP
	dialer net.Dialer
	now    func() time.Time
}

func NewEmail(cfg config.SMTP) *Email {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Email{cfg: cfg, now: time.Now}
}

// recipients merges the channel list with escalation recipients that look
// like mail addresses.
func (e *Email) recipients(ev Event) []string {
	out := slices.Clone(e.cfg.To)
	for _, r := range ev.Recipients {
		if strings.IndexByte(r, '@') > 0 && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

func (e *Email) message(ev Event, to []string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", joinComma(to))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", ev.Title))
	fmt.Fprintf(&b, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(ev.Text)
	b.WriteString("\r\n")
	return b.Bytes()
}

func (e *Email) Send(ctx context.Context, ev Event) error {
	to := e.recipients(ev)
	if len(to) == 0 {
		return fmt.Errorf("email: no recipients")
	}
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	conn, err := e.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	c, err := smtp.NewClient(conn, e.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: e.cfg.Host}); err != nil {
			return err
		}
	}
	if e.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(e.cfg.From); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(e.message(ev, to)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
