package database

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"

	"volspike/internal/types"
)

// InsertUser creates a user and its alert preference row.
func InsertUser(email string, tierLevel int, apiKey string) (int64, error) {
	res, err := DB.Exec(
		`INSERT INTO users (email, tier, api_key) VALUES (?, ?, ?);`,
		email, tierLevel, nullable(apiKey))
	if err != nil {
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read user id: %w", err)
	}

	_, err = DB.Exec(
		`INSERT INTO alert_preferences (user_id, email_alerts_enabled, email_address) VALUES (?, 0, NULL);`,
		id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert preferences: %w", err)
	}
	return id, nil
}

// EnableEmailAlerts opts a user into email delivery at the given address.
func EnableEmailAlerts(userID int64, address string) error {
	_, err := DB.Exec(
		`UPDATE alert_preferences SET email_alerts_enabled = 1, email_address = ? WHERE user_id = ?;`,
		address, userID)
	if err != nil {
		return fmt.Errorf("failed to enable email alerts: %w", err)
	}
	return nil
}

// SetContactDetails stores the optional delivery endpoints of a user.
// Empty values clear the corresponding capability.
func SetContactDetails(userID int64, phone string, telegramChatID int64, discordWebhook string) error {
	_, err := DB.Exec(
		`UPDATE users SET phone_number = ?, telegram_chat_id = ?, discord_webhook_url = ? WHERE id = ?;`,
		nullable(phone), nullableInt(telegramChatID), nullable(discordWebhook), userID)
	if err != nil {
		return fmt.Errorf("failed to set contact details: %w", err)
	}
	return nil
}

// GetTierByAPIKey resolves an API key to the owning user's tier. A
// missing key reports found=false rather than an error.
func GetTierByAPIKey(apiKey string) (tierLevel int, found bool, err error) {
	err = DB.QueryRow(
		`SELECT tier FROM users WHERE api_key = ? AND is_active = 1;`,
		apiKey).Scan(&tierLevel)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up api key: %w", err)
	}
	return tierLevel, true, nil
}

// GetAlertRecipients returns every active user with at least one delivery
// capability configured, all capabilities resolved up front. The email
// opt-in flag only gates the email channel; a user with just a telegram
// chat, phone number or webhook is still a recipient.
func GetAlertRecipients() ([]types.Recipient, error) {
	rows, err := DB.Query(`
	SELECT u.id, u.tier, ap.email_alerts_enabled, ap.email_address, u.phone_number, u.telegram_chat_id, u.discord_webhook_url
	FROM users u
	JOIN alert_preferences ap ON ap.user_id = u.id
	WHERE u.is_active = 1 AND (
		ap.email_alerts_enabled = 1
		OR u.phone_number IS NOT NULL
		OR u.telegram_chat_id IS NOT NULL
		OR u.discord_webhook_url IS NOT NULL
	);`)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert recipients: %w", err)
	}
	defer rows.Close()

	var recipients []types.Recipient
	for rows.Next() {
		var r types.Recipient
		var email, phone, webhook sql.NullString
		var chatID sql.NullInt64
		if err := rows.Scan(&r.UserID, &r.Tier, &r.EmailAlertsEnabled, &email, &phone, &chatID, &webhook); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Email = email.String
		r.PhoneNumber = phone.String
		r.TelegramChatID = chatID.Int64
		r.DiscordWebhook = webhook.String
		recipients = append(recipients, r)
	}
	return recipients, nil
}

// InsertAuditLog records an event for a user.
func InsertAuditLog(userID int64, eventType, eventData string) error {
	_, err := DB.Exec(
		`INSERT INTO audit_log (user_id, event_type, event_data) VALUES (?, ?, ?);`,
		userID, eventType, eventData)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Store adapts the package-level helpers to the interfaces the dispatcher
// and server consume.
type Store struct{}

func (Store) AlertRecipients() ([]types.Recipient, error) {
	return GetAlertRecipients()
}

func (Store) RecordDelivery(userID int64, channel string, delivered bool, detail string) {
	eventType := "alert_sent"
	if !delivered {
		eventType = "alert_failed"
	}
	if err := InsertAuditLog(userID, eventType, fmt.Sprintf("%s: %s", channel, detail)); err != nil {
		log.Printf("failed to record delivery audit for user %d: %v", userID, err)
	}
}

func (Store) TierByAPIKey(apiKey string) (int, bool, error) {
	return GetTierByAPIKey(apiKey)
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}
