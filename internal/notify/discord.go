package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"volspike/internal/types"
	"volspike/lib/translation"
)

// DiscordChannel posts alerts to a user-configured webhook (Elite tier).
type DiscordChannel struct {
	httpClient *http.Client
}

func NewDiscordChannel() *DiscordChannel {
	return &DiscordChannel{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

func (c *DiscordChannel) Name() string    { return "discord" }
func (c *DiscordChannel) Feature() string { return "discord_alerts" }

func (c *DiscordChannel) Eligible(r types.Recipient) bool {
	return r.DiscordWebhook != ""
}

func (c *DiscordChannel) Send(r types.Recipient, event types.AlertEvent, extra types.AlertContext) error {
	payload := map[string]interface{}{
		"content": "🚨 **" + translation.Translate("Volume Spike Alert") + "**",
		"embeds": []map[string]interface{}{
			{
				"title":       event.Symbol,
				"description": event.Message,
				"color":       0x00ff88,
				"footer":      map[string]string{"text": "volspike"},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal discord payload")
	}

	resp, err := c.httpClient.Post(r.DiscordWebhook, "application/json", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "post discord webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return errors.Errorf("discord webhook returned status %d", resp.StatusCode)
	}
	return nil
}
