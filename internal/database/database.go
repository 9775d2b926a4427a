package database

import (
	"database/sql"
	"fmt"
	"log"
)

var DB *sql.DB

func InitDB(dbPath string) error {
	var err error
	DB, err = sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	createUsersTable := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		tier INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		api_key TEXT DEFAULT NULL,
		phone_number TEXT DEFAULT NULL,
		telegram_chat_id INTEGER DEFAULT NULL,
		discord_webhook_url TEXT DEFAULT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err = DB.Exec(createUsersTable); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	createPreferencesTable := `
	CREATE TABLE IF NOT EXISTS alert_preferences (
		user_id INTEGER PRIMARY KEY,
		email_alerts_enabled INTEGER NOT NULL DEFAULT 0,
		email_address TEXT DEFAULT NULL,
		FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	);`
	if _, err = DB.Exec(createPreferencesTable); err != nil {
		return fmt.Errorf("failed to create alert_preferences table: %w", err)
	}

	createAuditTable := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		event_data TEXT DEFAULT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err = DB.Exec(createAuditTable); err != nil {
		return fmt.Errorf("failed to create audit_log table: %w", err)
	}

	createMetricsTable := `
	CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT NOT NULL,
		label_key TEXT DEFAULT NULL,
		label_value TEXT DEFAULT NULL,
		metric_value REAL NOT NULL,
		PRIMARY KEY (metric_name, label_key, label_value)
	);`
	if _, err = DB.Exec(createMetricsTable); err != nil {
		return fmt.Errorf("failed to create metrics table: %w", err)
	}

	log.Println("Database initialized successfully.")
	return nil
}

func CloseDB() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
