package ws

import "time"

const (
	EventBotCreated       = "BOT_CREATED"
	EventQRGenerated      = "QR_GENERATED"
	EventBotStatusChanged = "BOT_STATUS_CHANGED"
	EventBotRemoved       = "BOT_REMOVED"
	EventMessageReplied   = "MESSAGE_REPLIED"
)

type WsEvent struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

type BotEventData struct {
	BotID       string `json:"botId"`
	Status      string `json:"status"`
	IsConnected bool   `json:"isConnected"`
	JID         string `json:"jid,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type QREventData struct {
	BotID     string    `json:"botId"`
	QRDataURL string    `json:"qrDataUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ReplyEventData struct {
	BotID   string `json:"botId"`
	Chat    string `json:"chat"`
	Sender  string `json:"sender"`
	Keyword string `json:"keyword,omitempty"`
	Source  string `json:"source"`
}
