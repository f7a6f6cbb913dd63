// internal/helper/schema.go
package helper

import (
	"database/sql"
	"fmt"
)

// InitSchema creates the bot records table. The statements are portable between
// postgres and sqlite so the same schema serves both app database drivers.
func InitSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS bots (
            bot_id          VARCHAR(64) PRIMARY KEY,
            jid             VARCHAR(255),
            phone_number    VARCHAR(50),
            status          VARCHAR(32) NOT NULL DEFAULT 'starting',
            is_connected    BOOLEAN NOT NULL DEFAULT FALSE,
            webhook_url     TEXT,
            webhook_secret  TEXT,
            created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            connected_at    TIMESTAMP,
            disconnected_at TIMESTAMP,
            qr_updated_at   TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_bots_jid ON bots(jid)`,
		`CREATE INDEX IF NOT EXISTS idx_bots_status ON bots(status)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
