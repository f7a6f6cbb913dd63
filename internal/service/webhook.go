package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gowa-multibot/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/types/events"
)

const (
	SignatureHeader  = "X-Bot-Signature"
	DeliveryIDHeader = "X-Delivery-ID"

	webhookTimeout = 5 * time.Second
)

type WebhookPayload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type IncomingMessageData struct {
	BotID     string    `json:"botId"`
	MessageID string    `json:"messageId"`
	Chat      string    `json:"chat"`
	Sender    string    `json:"sender"`
	PushName  string    `json:"pushName,omitempty"`
	IsGroup   bool      `json:"isGroup"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sentAt"`
}

// WebhookSender forwards inbound messages to the URL configured per bot.
type WebhookSender struct {
	client *http.Client
	log    zerolog.Logger
}

func NewWebhookSender(log zerolog.Logger) *WebhookSender {
	return &WebhookSender{
		client: &http.Client{Timeout: webhookTimeout},
		log:    log.With().Str("component", "webhook").Logger(),
	}
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func NewIncomingMessageData(botID string, evt *events.Message) IncomingMessageData {
	return IncomingMessageData{
		BotID:     botID,
		MessageID: evt.Info.ID,
		Chat:      evt.Info.Chat.String(),
		Sender:    evt.Info.Sender.String(),
		PushName:  evt.Info.PushName,
		IsGroup:   evt.Info.IsGroup,
		Text:      ExtractText(evt.Message),
		SentAt:    evt.Info.Timestamp.UTC(),
	}
}

// IncomingMessage posts the message to the bot's webhook, if it has one.
func (w *WebhookSender) IncomingMessage(ctx context.Context, botID string, evt *events.Message) {
	bot, err := model.GetBot(botID)
	if err != nil || !bot.WebhookURL.Valid || bot.WebhookURL.String == "" {
		return
	}

	err = w.Deliver(ctx, bot.WebhookURL.String, bot.WebhookSecret.String, WebhookPayload{
		Event:     "incoming_message",
		Timestamp: time.Now().UTC(),
		Data:      NewIncomingMessageData(botID, evt),
	})
	if err != nil {
		w.log.Warn().Err(err).Str("bot", botID).Msg("webhook delivery failed")
	}
}

// Deliver POSTs payload to url, signing it when secret is set.
func (w *WebhookSender) Deliver(ctx context.Context, url, secret string, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DeliveryIDHeader, uuid.NewString())
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %s", resp.Status)
	}
	return nil
}
