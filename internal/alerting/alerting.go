// Package alerting fans alerts out to configured channels with a per-message
// cooldown so a sustained condition does not flood operators.
package alerting

import (
	"log"
	"os"
	"sync"
	"time"
)

// DefaultCooldown is the minimum gap between deliveries of the same alert.
const DefaultCooldown = 15 * time.Minute

// cooldownKeyLen bounds the message portion of the dedup key so alerts that
// differ only in a trailing measurement still share a cooldown slot.
const cooldownKeyLen = 50

// Alert is the payload delivered to every channel.
type Alert struct {
	Severity    string    `json:"severity"`
	Message     string    `json:"message"`
	SwapPercent float64   `json:"swap_percent"`
	Hostname    string    `json:"hostname"`
	Timestamp   time.Time `json:"timestamp"`
}

// Channel delivers one alert. Implementations must be safe for concurrent
// use; a failing channel never blocks the others.
type Channel interface {
	Name() string
	Deliver(alert Alert) error
}

// Manager owns the channels and the cooldown bookkeeping.
type Manager struct {
	mu       sync.Mutex
	channels []Channel
	cooldown time.Duration
	lastSent map[string]time.Time
	hostname string

	nowFunc func() time.Time
}

// NewManager builds a manager with the given cooldown. A non-positive
// cooldown falls back to the default.
func NewManager(cooldown time.Duration, channels ...Channel) *Manager {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Manager{
		channels: channels,
		cooldown: cooldown,
		lastSent: make(map[string]time.Time),
		hostname: hostname,
		nowFunc:  time.Now,
	}
}

// Send delivers to every channel unless the same severity/message pair fired
// within the cooldown window. Channel failures are logged, never returned:
// alerting is best-effort and must not stall the caller.
func (m *Manager) Send(severity, message string, swapPercent float64) {
	if len(m.channels) == 0 {
		return
	}

	now := m.nowFunc()

	m.mu.Lock()
	key := cooldownKey(severity, message)
	if last, ok := m.lastSent[key]; ok && now.Sub(last) < m.cooldown {
		m.mu.Unlock()
		return
	}
	m.lastSent[key] = now
	m.mu.Unlock()

	alert := Alert{
		Severity:    severity,
		Message:     message,
		SwapPercent: swapPercent,
		Hostname:    m.hostname,
		Timestamp:   now,
	}

	for _, ch := range m.channels {
		if err := ch.Deliver(alert); err != nil {
			log.Printf("[Alerting] %s delivery failed: %v", ch.Name(), err)
		}
	}
}

func cooldownKey(severity, message string) string {
	if len(message) > cooldownKeyLen {
		message = message[:cooldownKeyLen]
	}
	return severity + ":" + message
}
