package alerting

import (
	"fmt"
	"net/smtp"
	"strings"
)

// EmailChannel sends plain-text alert mail through an SMTP relay.
type EmailChannel struct {
	Host     string
	Port     int
	From     string
	To       []string
	Username string
	Password string

	// sendMail is swapped in tests; nil means smtp.SendMail.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel builds the channel. Username may be empty for relays that
// accept unauthenticated mail from the host.
func NewEmailChannel(host string, port int, from string, to []string, username, password string) *EmailChannel {
	return &EmailChannel{
		Host:     host,
		Port:     port,
		From:     from,
		To:       to,
		Username: username,
		Password: password,
	}
}

func (c *EmailChannel) Name() string { return "email" }

// Deliver formats and sends the alert as a single plain-text message.
func (c *EmailChannel) Deliver(alert Alert) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(c.To, ", "))
	fmt.Fprintf(&b, "Subject: [swapwatch] %s on %s\r\n", strings.ToUpper(alert.Severity), alert.Hostname)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "%s\r\n\r\n", alert.Message)
	fmt.Fprintf(&b, "Host:      %s\r\n", alert.Hostname)
	fmt.Fprintf(&b, "Swap:      %.1f%%\r\n", alert.SwapPercent)
	fmt.Fprintf(&b, "Time:      %s\r\n", alert.Timestamp.Format("2006-01-02 15:04:05 MST"))

	var auth smtp.Auth
	if c.Username != "" {
		auth = smtp.PlainAuth("", c.Username, c.Password, c.Host)
	}

	send := c.sendMail
	if send == nil {
		send = smtp.SendMail
	}
	addr := fmt.Sprintf("%s:%d", c.Host, c.Port)
	if err := send(addr, auth, c.From, c.To, []byte(b.String())); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	return nil
}
