package alerting

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

type recordingChannel struct {
	name      string
	delivered []Alert
	err       error
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Deliver(alert Alert) error {
	c.delivered = append(c.delivered, alert)
	return c.err
}

func TestSendDeliversToAllChannels(t *testing.T) {
	first := &recordingChannel{name: "first"}
	second := &recordingChannel{name: "second"}
	m := NewManager(time.Minute, first, second)

	m.Send("critical", "swap usage at 85%", 85)

	if len(first.delivered) != 1 || len(second.delivered) != 1 {
		t.Fatalf("expected 1 delivery per channel, got %d and %d", len(first.delivered), len(second.delivered))
	}
	alert := first.delivered[0]
	if alert.Severity != "critical" || alert.SwapPercent != 85 {
		t.Errorf("unexpected alert payload: %+v", alert)
	}
	if alert.Hostname == "" {
		t.Error("expected hostname to be populated")
	}
}

func TestSendCooldownSuppressesRepeat(t *testing.T) {
	ch := &recordingChannel{name: "test"}
	m := NewManager(15*time.Minute, ch)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.nowFunc = func() time.Time { return now }

	m.Send("critical", "swap usage at 85%", 85)
	now = now.Add(5 * time.Minute)
	m.Send("critical", "swap usage at 85%", 87)

	if len(ch.delivered) != 1 {
		t.Fatalf("expected repeat within cooldown suppressed, got %d deliveries", len(ch.delivered))
	}

	now = now.Add(11 * time.Minute)
	m.Send("critical", "swap usage at 85%", 90)

	if len(ch.delivered) != 2 {
		t.Fatalf("expected delivery after cooldown expiry, got %d", len(ch.delivered))
	}
}

func TestSendCooldownKeyedBySeverityAndMessage(t *testing.T) {
	ch := &recordingChannel{name: "test"}
	m := NewManager(15*time.Minute, ch)

	m.Send("critical", "swap usage high", 85)
	m.Send("warning", "swap usage high", 85)
	m.Send("critical", "restart failed", 85)

	if len(ch.delivered) != 3 {
		t.Fatalf("distinct severity/message pairs must not share a cooldown, got %d deliveries", len(ch.delivered))
	}
}

func TestSendCooldownTruncatesLongMessages(t *testing.T) {
	ch := &recordingChannel{name: "test"}
	m := NewManager(15*time.Minute, ch)

	prefix := strings.Repeat("x", cooldownKeyLen)
	m.Send("warning", prefix+" first tail", 70)
	m.Send("warning", prefix+" second tail", 72)

	if len(ch.delivered) != 1 {
		t.Fatalf("messages sharing the first %d bytes must share a cooldown, got %d deliveries", cooldownKeyLen, len(ch.delivered))
	}
}

func TestSendChannelFailureDoesNotBlockOthers(t *testing.T) {
	failing := &recordingChannel{name: "failing", err: errors.New("boom")}
	healthy := &recordingChannel{name: "healthy"}
	m := NewManager(time.Minute, failing, healthy)

	m.Send("warning", "test", 50)

	if len(healthy.delivered) != 1 {
		t.Fatal("healthy channel must still receive the alert")
	}
}

func TestSendNoChannels(t *testing.T) {
	m := NewManager(time.Minute)
	m.Send("info", "nothing listens", 10) // must not panic
	if len(m.lastSent) != 0 {
		t.Error("cooldown state should not grow without channels")
	}
}

func TestWebhookChannelDeliver(t *testing.T) {
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL)
	err := ch.Deliver(Alert{Severity: "critical", Message: "swap at 90%", SwapPercent: 90, Hostname: "web1"})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got.Severity != "critical" || got.SwapPercent != 90 || got.Hostname != "web1" {
		t.Errorf("unexpected payload received: %+v", got)
	}
}

func TestWebhookChannelNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL)
	if err := ch.Deliver(Alert{Severity: "warning"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestEmailChannelDeliver(t *testing.T) {
	ch := NewEmailChannel("mail.example.com", 25, "swapwatch@example.com",
		[]string{"ops@example.com"}, "", "")

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	ch.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		if a != nil {
			t.Error("expected nil auth without a username")
		}
		return nil
	}

	alert := Alert{
		Severity:    "critical",
		Message:     "swap usage at 88%",
		SwapPercent: 88,
		Hostname:    "db1",
		Timestamp:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := ch.Deliver(alert); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if gotAddr != "mail.example.com:25" {
		t.Errorf("unexpected addr %s", gotAddr)
	}
	if gotFrom != "swapwatch@example.com" || len(gotTo) != 1 {
		t.Errorf("unexpected envelope from=%s to=%v", gotFrom, gotTo)
	}
	body := string(gotMsg)
	if !strings.Contains(body, "Subject: [swapwatch] CRITICAL on db1") {
		t.Errorf("missing subject line in:\n%s", body)
	}
	if !strings.Contains(body, "swap usage at 88%") {
		t.Errorf("missing message body in:\n%s", body)
	}
}

func TestEmailChannelSendFailure(t *testing.T) {
	ch := NewEmailChannel("mail.example.com", 25, "a@b", []string{"c@d"}, "user", "pass")
	ch.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if a == nil {
			t.Error("expected plain auth with a username")
		}
		return errors.New("connection refused")
	}
	if err := ch.Deliver(Alert{}); err == nil {
		t.Fatal("expected delivery error")
	}
}
