package notify

import (
	log "github.com/sirupsen/logrus"

	"volspike/internal/tier"
	"volspike/internal/types"
)

// Channel is one delivery mechanism. Eligible checks the recipient's
// capability struct (resolved once at the database boundary, never probed
// downstream); Feature names the tier flag gating the channel.
type Channel interface {
	Name() string
	Feature() string
	Eligible(r types.Recipient) bool
	Send(r types.Recipient, event types.AlertEvent, extra types.AlertContext) error
}

// RecipientSource lists the users that opted into alert delivery.
type RecipientSource interface {
	AlertRecipients() ([]types.Recipient, error)
}

// AuditSink records per-channel delivery outcomes. May be nil.
type AuditSink interface {
	RecordDelivery(userID int64, channel string, delivered bool, detail string)
}

// MultiDispatcher fans one alert out to every eligible recipient/channel
// pair. Channel failures are logged and audited, never propagated; the
// alert engine sees fire-and-forget semantics.
type MultiDispatcher struct {
	channels []Channel
	source   RecipientSource
	audit    AuditSink
}

func NewMultiDispatcher(source RecipientSource, audit AuditSink, channels ...Channel) *MultiDispatcher {
	return &MultiDispatcher{
		channels: channels,
		source:   source,
		audit:    audit,
	}
}

func (d *MultiDispatcher) Dispatch(event types.AlertEvent, extra types.AlertContext) {
	recipients, err := d.source.AlertRecipients()
	if err != nil {
		log.Errorf("failed to load alert recipients: %v", err)
		return
	}

	for _, r := range recipients {
		for _, ch := range d.channels {
			if !tier.HasFeature(r.Tier, ch.Feature()) {
				continue
			}
			if !ch.Eligible(r) {
				continue
			}

			err := ch.Send(r, event, extra)
			if err != nil {
				log.Errorf("%s delivery to user %d failed: %v", ch.Name(), r.UserID, err)
			} else {
				log.Debugf("%s delivery to user %d ok: %s", ch.Name(), r.UserID, event.Message)
			}
			if d.audit != nil {
				detail := event.Message
				if err != nil {
					detail = err.Error()
				}
				d.audit.RecordDelivery(r.UserID, ch.Name(), err == nil, detail)
			}
		}
	}
}
