package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/watchdog/internal/config"
)

func TestEmail_MessageAndRecipients(t *testing.T) {
	e := NewEmail(config.SMTP{Host: "mail.example.com", From: "watchdog@example.com", To: []string{"ops@example.com"}})
	e.now = func() time.Time { return time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC) }

	ev := Event{Title: "db is critical", Text: "connection refused", Recipients: []string{"lead@example.com", "ops@example.com", "#pager"}}
	to := e.recipients(ev)
	if strings.Join(to, ",") != "ops@example.com,lead@example.com" {
		t.Fatalf("unexpected recipients %v", to)
	}
	msg := string(e.message(ev, to))
	for _, want := range []string{
		"From: watchdog@example.com\r\n",
		"To: ops@example.com, lead@example.com\r\n",
		"Subject: db is critical\r\n",
		"\r\n\r\nconnection refused\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
	if e.cfg.Port != 587 {
		t.Fatalf("default port = %d", e.cfg.Port)
	}
}
