package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStatus_TextRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusUnknown, StatusHealthy, StatusDegraded, StatusCritical} {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatalf("marshal %v: %v", s, err)
		}
		var got Status
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("unmarshal %q: %v", b, err)
		}
		if got != s {
			t.Fatalf("want %v got %v", s, got)
		}
	}
	var bad Status
	if err := bad.UnmarshalText([]byte("sideways")); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestStatus_CodeIsTriState(t *testing.T) {
	cases := []struct {
		in     Status
		want   float64
		wantOK bool
	}{
		{StatusHealthy, 1, true},
		{StatusDegraded, 0, true},
		{StatusCritical, -1, true},
		{StatusUnknown, 0, false},
	}
	for _, c := range cases {
		got, ok := c.in.Code()
		if got != c.want || ok != c.wantOK {
			t.Fatalf("%v.Code()=(%v,%v) want (%v,%v)", c.in, got, ok, c.want, c.wantOK)
		}
	}
}

func TestCheckResult_JSONUsesNames(t *testing.T) {
	r := CheckResult{
		Service:   "db",
		Timestamp: time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC),
		Outcome:   OutcomeDegraded,
		Message:   "slow",
	}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["outcome"] != "degraded" {
		t.Fatalf("outcome should marshal by name, got %v", raw["outcome"])
	}
}

func TestServiceDefinition_Defaults(t *testing.T) {
	var d ServiceDefinition
	if d.Timeout() != DefaultTimeout {
		t.Fatalf("timeout default: %v", d.Timeout())
	}
	if d.Threshold() != 1 {
		t.Fatalf("threshold must never drop below 1, got %d", d.Threshold())
	}
	d.TimeoutSeconds = 3
	d.CriticalAfterFailures = 4
	if d.Timeout() != 3*time.Second || d.Threshold() != 4 {
		t.Fatalf("explicit values ignored: %v %d", d.Timeout(), d.Threshold())
	}
}

func TestRecoveryAction_Label(t *testing.T) {
	a := RecoveryAction{Type: ActionRestartService, Target: "nginx"}
	if a.Label() != "restart-service:nginx" {
		t.Fatalf("label: %q", a.Label())
	}
	if (RecoveryAction{Type: ActionNotifyOnly}).Label() != "notify-only" {
		t.Fatalf("bare label wrong")
	}
}
