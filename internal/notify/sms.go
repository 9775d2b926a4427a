package notify

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"volspike/internal/types"
)

// SMSChannel is a stub for a future Twilio integration (Elite tier). It
// logs the message that would have been sent and reports success so the
// dispatch path is exercised end to end.
type SMSChannel struct{}

func NewSMSChannel() *SMSChannel { return &SMSChannel{} }

func (c *SMSChannel) Name() string    { return "sms" }
func (c *SMSChannel) Feature() string { return "sms_alerts" }

func (c *SMSChannel) Eligible(r types.Recipient) bool {
	return r.PhoneNumber != ""
}

func (c *SMSChannel) Send(r types.Recipient, event types.AlertEvent, extra types.AlertContext) error {
	text := fmt.Sprintf("ALERT: %s volume spike! %.1fx increase detected.", event.Asset, event.Ratio)
	log.Infof("[STUB] SMS alert would be sent to %s: %s", r.PhoneNumber, text)
	return nil
}
