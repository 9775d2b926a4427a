package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"volspike/internal/types"
	"volspike/lib/helpers"
	"volspike/lib/translation"
)

// TelegramSender is the part of the bot API the channel uses.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel pushes alerts to a user's chat via the bot API (Elite
// tier).
type TelegramChannel struct {
	bot TelegramSender
}

func NewTelegramChannel(token string) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}
	return &TelegramChannel{bot: bot}, nil
}

func NewTelegramChannelWithSender(bot TelegramSender) *TelegramChannel {
	return &TelegramChannel{bot: bot}
}

func (c *TelegramChannel) Name() string    { return "telegram" }
func (c *TelegramChannel) Feature() string { return "telegram_alerts" }

func (c *TelegramChannel) Eligible(r types.Recipient) bool {
	return r.TelegramChatID != 0
}

func (c *TelegramChannel) Send(r types.Recipient, event types.AlertEvent, extra types.AlertContext) error {
	text := fmt.Sprintf("🚨 *%s*\n\n%s\n\n%s: %s\n%s: %s",
		helpers.EscapeMarkdownV2(translation.Translate("Volume Spike Alert")),
		helpers.EscapeMarkdownV2(event.Message),
		helpers.EscapeMarkdownV2(translation.Translate("Current price")),
		helpers.EscapeMarkdownV2(helpers.FormatAlertPrice(extra.Price)),
		helpers.EscapeMarkdownV2(translation.Translate("Funding rate")),
		helpers.EscapeMarkdownV2(helpers.FormatFundingRate(extra.FundingRate)),
	)

	msg := tgbotapi.NewMessage(r.TelegramChatID, text)
	msg.DisableWebPagePreview = true
	msg.ParseMode = "MarkdownV2"

	_, err := c.bot.Send(msg)
	return errors.Wrapf(err, "could not send telegram message to chat %d", r.TelegramChatID)
}
