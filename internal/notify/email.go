package notify

import (
	"fmt"
	"net/smtp"

	"github.com/pkg/errors"

	"volspike/internal/types"
	"volspike/lib/helpers"
	"volspike/lib/translation"
)

type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// EmailChannel delivers alerts over plain SMTP (Pro and Elite tiers).
type EmailChannel struct {
	cfg EmailConfig
	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg, send: smtp.SendMail}
}

func (c *EmailChannel) Name() string    { return "email" }
func (c *EmailChannel) Feature() string { return "email_alerts" }

func (c *EmailChannel) Eligible(r types.Recipient) bool {
	return r.EmailAlertsEnabled && r.Email != "" && c.cfg.Host != ""
}

func (c *EmailChannel) Send(r types.Recipient, event types.AlertEvent, extra types.AlertContext) error {
	subject := translation.Translate("Volume Spike Alert") + ": " + event.Asset

	body := fmt.Sprintf("%s\r\n\r\n%s: %s\r\n%s: %s\r\n",
		event.Message,
		translation.Translate("Current price"), helpers.FormatAlertPrice(extra.Price),
		translation.Translate("Funding rate"), helpers.FormatFundingRate(extra.FundingRate),
	)

	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		c.cfg.From, r.Email, subject, body))

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	var auth smtp.Auth
	if c.cfg.User != "" {
		auth = smtp.PlainAuth("", c.cfg.User, c.cfg.Password, c.cfg.Host)
	}

	if err := c.send(addr, auth, c.cfg.From, []string{r.Email}, msg); err != nil {
		return errors.Wrapf(err, "smtp send to %s", r.Email)
	}
	return nil
}
