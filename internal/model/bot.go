// internal/model/bot.go
package model

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gowa-multibot/database"
)

// Bot is the persisted record of one WhatsApp session.
type Bot struct {
	BotID          string
	JID            sql.NullString
	PhoneNumber    sql.NullString
	Status         string
	IsConnected    bool
	WebhookURL     sql.NullString
	WebhookSecret  sql.NullString
	CreatedAt      time.Time
	ConnectedAt    sql.NullTime
	DisconnectedAt sql.NullTime
	QRUpdatedAt    sql.NullTime
}

var ErrBotNotFound = errors.New("bot not found")

const botColumns = `bot_id, jid, phone_number, status, is_connected, webhook_url, webhook_secret,
        created_at, connected_at, disconnected_at, qr_updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBot(row rowScanner) (*Bot, error) {
	var b Bot
	err := row.Scan(
		&b.BotID, &b.JID, &b.PhoneNumber, &b.Status, &b.IsConnected,
		&b.WebhookURL, &b.WebhookSecret,
		&b.CreatedAt, &b.ConnectedAt, &b.DisconnectedAt, &b.QRUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// EnsureBot inserts a record for botID unless one already exists.
func EnsureBot(botID string, createdAt time.Time) error {
	_, err := database.AppDB.Exec(`
        INSERT INTO bots (bot_id, status, is_connected, created_at)
        VALUES ($1, 'starting', FALSE, $2)
        ON CONFLICT (bot_id) DO NOTHING
    `, botID, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("ensure bot %s: %w", botID, err)
	}
	return nil
}

func GetBot(botID string) (*Bot, error) {
	row := database.AppDB.QueryRow(`SELECT `+botColumns+` FROM bots WHERE bot_id = $1`, botID)
	b, err := scanBot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bot %s: %w", botID, err)
	}
	return b, nil
}

func GetAllBots() ([]Bot, error) {
	rows, err := database.AppDB.Query(`SELECT ` + botColumns + ` FROM bots ORDER BY created_at ASC, bot_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	var bots []Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		bots = append(bots, *b)
	}
	return bots, rows.Err()
}

// GetBotJID returns the paired device JID of a bot, or "" when it never paired.
func GetBotJID(botID string) (string, error) {
	var jid sql.NullString
	err := database.AppDB.QueryRow(`SELECT jid FROM bots WHERE bot_id = $1`, botID).Scan(&jid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrBotNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get bot jid %s: %w", botID, err)
	}
	return jid.String, nil
}

func GetAllBotIDs() ([]string, error) {
	rows, err := database.AppDB.Query(`SELECT bot_id FROM bots ORDER BY bot_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list bot ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func UpdateBotStatus(botID, status string, connected bool) error {
	return execOne(`
        UPDATE bots SET status = $1, is_connected = $2 WHERE bot_id = $3
    `, botID, status, connected, botID)
}

func UpdateBotOnConnected(botID, jid, phoneNumber string, at time.Time) error {
	return execOne(`
        UPDATE bots
        SET status = 'connected', is_connected = TRUE,
            jid = $1, phone_number = $2, connected_at = $3
        WHERE bot_id = $4
    `, botID, jid, phoneNumber, at.UTC(), botID)
}

func UpdateBotOnDisconnected(botID, status string, at time.Time) error {
	return execOne(`
        UPDATE bots SET status = $1, is_connected = FALSE, disconnected_at = $2
        WHERE bot_id = $3
    `, botID, status, at.UTC(), botID)
}

// UpdateBotOnLoggedOut clears the device identity; the next pairing may be a different number.
func UpdateBotOnLoggedOut(botID string, at time.Time) error {
	return execOne(`
        UPDATE bots
        SET status = 'logged_out', is_connected = FALSE, jid = NULL, phone_number = NULL,
            disconnected_at = $1
        WHERE bot_id = $2
    `, botID, at.UTC(), botID)
}

func UpdateBotQR(botID string, at time.Time) error {
	return execOne(`
        UPDATE bots SET status = 'waiting_qr', is_connected = FALSE, qr_updated_at = $1
        WHERE bot_id = $2
    `, botID, at.UTC(), botID)
}

func UpdateBotWebhook(botID, url, secret string) error {
	return execOne(`
        UPDATE bots SET webhook_url = $1, webhook_secret = $2 WHERE bot_id = $3
    `, botID, url, secret, botID)
}

func DeleteBot(botID string) error {
	return execOne(`DELETE FROM bots WHERE bot_id = $1`, botID, botID)
}

// execOne runs a single-row statement and maps "no row touched" to ErrBotNotFound.
func execOne(query, botID string, args ...any) error {
	res, err := database.AppDB.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("bot %s: %w", botID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bot %s: %w", botID, err)
	}
	if n == 0 {
		return ErrBotNotFound
	}
	return nil
}

// BotDirectory resolves bot ids to paired device JIDs for the shared credential store.
type BotDirectory struct{}

func (BotDirectory) DeviceJID(botID string) (string, error) {
	jid, err := GetBotJID(botID)
	if errors.Is(err, ErrBotNotFound) {
		return "", nil
	}
	return jid, err
}

func (BotDirectory) SessionIDs() ([]string, error) {
	return GetAllBotIDs()
}
