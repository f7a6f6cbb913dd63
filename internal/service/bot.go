package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"gowa-multibot/internal/credential"
	"gowa-multibot/internal/helper"
	"gowa-multibot/internal/model"
	"gowa-multibot/internal/ws"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

type Status string

const (
	StatusStarting     Status = "starting"
	StatusWaitingQR    Status = "waiting_qr"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusLoggedOut    Status = "logged_out"
	StatusReplaced     Status = "replaced"
	StatusStopped      Status = "stopped"
)

// Label is the human readable status shown on the dashboard.
func (s Status) Label() string {
	switch s {
	case StatusConnected:
		return "✅ Connected"
	case StatusWaitingQR:
		return "⌛ Waiting QR"
	case StatusReconnecting:
		return "🔄 Reconnecting"
	case StatusStarting:
		return "⏳ Starting"
	case StatusLoggedOut:
		return "🚪 Logged out"
	case StatusReplaced:
		return "⚠️ Replaced"
	case StatusStopped:
		return "⏹ Stopped"
	}
	return string(s)
}

var (
	ErrBotNotFound     = errors.New("bot not found")
	ErrBotNotConnected = errors.New("bot not connected")
	ErrBotStopped      = errors.New("bot stopped")
)

// restartTimeout bounds a single background restart attempt.
const restartTimeout = 30 * time.Second

// Client is the part of *whatsmeow.Client a Bot drives.
type Client interface {
	AddEventHandler(handler whatsmeow.EventHandler) uint32
	GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)
	Connect() error
	Disconnect()
	IsConnected() bool
	IsLoggedIn() bool
	Logout(ctx context.Context) error
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
	SendPresence(ctx context.Context, state types.Presence) error
}

type ClientFactory func(device *store.Device, log waLog.Logger) Client

// NewWhatsmeowClient builds a real client. Reconnection is owned by the Bot.
func NewWhatsmeowClient(device *store.Device, log waLog.Logger) Client {
	client := whatsmeow.NewClient(device, log)
	client.EnableAutoReconnect = false
	return client
}

// botDeps is shared by every Bot of a Manager.
type botDeps struct {
	store     credential.Store
	newClient ClientFactory
	log       zerolog.Logger
	waLog     waLog.Logger
	realtime  ws.RealtimePublisher
	qrOut     io.Writer

	reconnectInitial time.Duration
	reconnectMax     time.Duration

	onMessage func(b *Bot, evt *events.Message)
}

// BotSnapshot is an immutable view of a Bot.
type BotSnapshot struct {
	ID          string     `json:"botId"`
	Status      Status     `json:"status"`
	StatusLabel string     `json:"statusLabel"`
	IsConnected bool       `json:"isConnected"`
	JID         string     `json:"jid,omitempty"`
	PhoneNumber string     `json:"phoneNumber,omitempty"`
	QRCode      string     `json:"-"`
	QRDataURL   string     `json:"qrDataUrl,omitempty"`
	QRExpiresAt *time.Time `json:"qrExpiresAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`
}

// Bot owns one WhatsApp session: its client, QR handoff and reconnects.
//
// Every Start bumps the generation; events and timers carrying an older
// generation belong to a superseded client and are ignored.
type Bot struct {
	id        string
	createdAt time.Time
	deps      *botDeps
	log       zerolog.Logger

	// startMu serialises Start, Logout and Stop. Stop waits for an in-flight
	// Start so a removed session's credentials cannot be recreated behind it.
	startMu sync.Mutex

	mu          sync.Mutex
	gen         uint64
	client      Client
	device      *store.Device
	status      Status
	connected   bool
	jid         string
	phone       string
	qrCode      string
	qrDataURL   string
	qrExpires   time.Time
	connectedAt time.Time
	cancelQR    context.CancelFunc
	restart     *time.Timer
	backoff     *backoff.ExponentialBackOff
	stopped     bool
}

func newBot(id string, createdAt time.Time, deps *botDeps) *Bot {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = deps.reconnectInitial
	bo.MaxInterval = deps.reconnectMax
	bo.Reset()

	return &Bot{
		id:        id,
		createdAt: createdAt,
		deps:      deps,
		log:       deps.log.With().Str("bot", id).Logger(),
		status:    StatusStarting,
		backoff:   bo,
	}
}

func (b *Bot) ID() string { return b.id }

func (b *Bot) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Bot) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Bot) Snapshot() BotSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Bot) snapshotLocked() BotSnapshot {
	s := BotSnapshot{
		ID:          b.id,
		Status:      b.status,
		StatusLabel: b.status.Label(),
		IsConnected: b.connected,
		JID:         b.jid,
		PhoneNumber: b.phone,
		QRCode:      b.qrCode,
		QRDataURL:   b.qrDataURL,
		CreatedAt:   b.createdAt,
	}
	if !b.qrExpires.IsZero() {
		t := b.qrExpires
		s.QRExpiresAt = &t
	}
	if !b.connectedAt.IsZero() {
		t := b.connectedAt
		s.ConnectedAt = &t
	}
	return s
}

// Start (re)connects the session with a fresh client. A device without an ID
// has never paired, so a QR channel is opened before connecting.
func (b *Bot) Start(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	return b.start(ctx)
}

// start requires startMu.
func (b *Bot) start(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrBotStopped
	}
	b.gen++
	gen := b.gen
	old := b.detachLocked()
	b.connected = false
	b.setStatusLocked(StatusStarting)
	b.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}

	device, err := b.deps.store.Device(ctx, b.id)
	if err != nil {
		b.log.Error().Err(err).Msg("failed to load device")
		b.scheduleRestart(gen, "device load failed")
		return fmt.Errorf("load device: %w", err)
	}

	client := b.deps.newClient(device, b.deps.waLog.Sub(b.id))
	client.AddEventHandler(func(evt any) { b.handleEvent(gen, evt) })

	var qrChan <-chan whatsmeow.QRChannelItem
	var cancelQR context.CancelFunc
	if device.ID == nil {
		var qrCtx context.Context
		qrCtx, cancelQR = context.WithCancel(context.Background())
		qrChan, err = client.GetQRChannel(qrCtx)
		if err != nil {
			cancelQR()
			b.log.Error().Err(err).Msg("failed to open QR channel")
			b.scheduleRestart(gen, "qr channel failed")
			return fmt.Errorf("qr channel: %w", err)
		}
	}

	b.mu.Lock()
	if b.stopped || b.gen != gen {
		b.mu.Unlock()
		if cancelQR != nil {
			cancelQR()
		}
		return nil
	}
	b.client = client
	b.device = device
	b.cancelQR = cancelQR
	b.mu.Unlock()

	if qrChan != nil {
		go b.watchQR(gen, qrChan)
	}

	if err := client.Connect(); err != nil {
		b.log.Warn().Err(err).Msg("connect failed")
		b.scheduleRestart(gen, "connect failed")
		return fmt.Errorf("connect: %w", err)
	}
	b.log.Info().Bool("paired", device.ID != nil).Msg("client started")
	return nil
}

// detachLocked forgets the current client and cancels whatever is pending for it.
func (b *Bot) detachLocked() Client {
	if b.restart != nil {
		b.restart.Stop()
		b.restart = nil
	}
	if b.cancelQR != nil {
		b.cancelQR()
		b.cancelQR = nil
	}
	b.qrCode, b.qrDataURL, b.qrExpires = "", "", time.Time{}
	old := b.client
	b.client = nil
	return old
}

// Stop shuts the bot down for good. With logout the device is unlinked first.
func (b *Bot) Stop(ctx context.Context, logout bool) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.gen++
	client := b.detachLocked()
	b.connected = false
	b.status = StatusStopped
	b.mu.Unlock()

	if client == nil {
		return nil
	}
	defer client.Disconnect()
	if logout && client.IsLoggedIn() {
		if err := client.Logout(ctx); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
	}
	return nil
}

// Logout unlinks the device and starts over with a fresh QR code. When the
// server cannot be told, the local credentials are dropped instead.
func (b *Bot) Logout(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrBotStopped
	}
	b.gen++
	client := b.detachLocked()
	paired := b.device != nil && b.device.ID != nil
	b.connected = false
	b.jid, b.phone = "", ""
	b.setStatusLocked(StatusLoggedOut)
	b.mu.Unlock()

	dropLocal := paired
	if client != nil {
		if client.IsLoggedIn() {
			if err := client.Logout(ctx); err != nil {
				b.log.Warn().Err(err).Msg("remote logout failed, dropping local credentials")
			} else {
				dropLocal = false
			}
		}
		client.Disconnect()
	}
	if dropLocal {
		if err := b.deps.store.Remove(ctx, b.id); err != nil {
			return fmt.Errorf("remove credentials: %w", err)
		}
	}

	if err := model.UpdateBotOnLoggedOut(b.id, time.Now().UTC()); err != nil {
		b.log.Warn().Err(err).Msg("failed to record logout")
	}
	b.publishStatus()

	b.resetBackoff()
	return b.start(ctx)
}

// Send delivers a text message.
func (b *Bot) Send(ctx context.Context, to types.JID, text string) (types.MessageID, error) {
	client, err := b.connectedClient()
	if err != nil {
		return "", err
	}
	resp, err := client.SendMessage(ctx, to, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// SendPresence marks the account as available.
func (b *Bot) SendPresence(ctx context.Context) error {
	client, err := b.connectedClient()
	if err != nil {
		return err
	}
	return client.SendPresence(ctx, types.PresenceAvailable)
}

func (b *Bot) connectedClient() (Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected || b.client == nil {
		return nil, ErrBotNotConnected
	}
	return b.client, nil
}

func (b *Bot) resetBackoff() {
	b.mu.Lock()
	b.backoff.Reset()
	b.mu.Unlock()
}

func (b *Bot) current(gen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.stopped && b.gen == gen
}

func (b *Bot) setStatusLocked(s Status) {
	if b.status == s {
		return
	}
	b.log.Debug().Str("from", string(b.status)).Str("to", string(s)).Msg("status changed")
	b.status = s
}

func (b *Bot) publishStatus() {
	s := b.Snapshot()
	b.deps.realtime.Publish(ws.WsEvent{
		Event: ws.EventBotStatusChanged,
		Data: ws.BotEventData{
			BotID:       s.ID,
			Status:      string(s.Status),
			IsConnected: s.IsConnected,
			JID:         s.JID,
			PhoneNumber: s.PhoneNumber,
		},
	})
}

// scheduleRestart arms a single delayed Start for generation gen.
func (b *Bot) scheduleRestart(gen uint64, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || b.gen != gen || b.restart != nil {
		return
	}

	delay := b.backoff.NextBackOff()
	if b.status != StatusLoggedOut {
		b.setStatusLocked(StatusReconnecting)
	}
	b.log.Info().Str("reason", reason).Dur("delay", delay).Msg("restart scheduled")

	b.restart = time.AfterFunc(delay, func() {
		b.mu.Lock()
		b.restart = nil
		stale := b.stopped || b.gen != gen
		b.mu.Unlock()
		if stale {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), restartTimeout)
		defer cancel()
		if err := b.Start(ctx); err != nil {
			b.log.Warn().Err(err).Msg("restart failed")
		}
	})
}

func (b *Bot) watchQR(gen uint64, ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		if !b.current(gen) {
			return
		}

		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			b.onQRCode(gen, item.Code, item.Timeout)

		case whatsmeow.QRChannelSuccess.Event:
			b.log.Info().Msg("QR scanned, pairing")

		case whatsmeow.QRChannelTimeout.Event:
			b.log.Info().Msg("QR expired, requesting a new one")
			b.resetBackoff()
			b.scheduleRestart(gen, "qr timeout")

		default:
			b.log.Warn().Str("event", item.Event).AnErr("error", item.Error).Msg("QR channel error")
			b.scheduleRestart(gen, "qr "+item.Event)
		}
	}
}

func (b *Bot) onQRCode(gen uint64, code string, timeout time.Duration) {
	dataURL, err := helper.QRDataURL(code)
	if err != nil {
		b.log.Error().Err(err).Msg("failed to render QR")
	}
	now := time.Now().UTC()

	b.mu.Lock()
	if b.stopped || b.gen != gen {
		b.mu.Unlock()
		return
	}
	b.qrCode = code
	b.qrDataURL = dataURL
	b.qrExpires = now.Add(timeout)
	b.setStatusLocked(StatusWaitingQR)
	expires := b.qrExpires
	b.mu.Unlock()

	b.log.Info().Dur("valid_for", timeout).Msg("QR code ready, scan it from WhatsApp > Linked devices")
	if b.deps.qrOut != nil {
		fmt.Fprintf(b.deps.qrOut, "Scan QR for %s:\n", b.id)
		helper.PrintQR(b.deps.qrOut, code)
	}

	if err := model.UpdateBotQR(b.id, now); err != nil {
		b.log.Warn().Err(err).Msg("failed to record QR")
	}
	b.deps.realtime.Publish(ws.WsEvent{
		Event: ws.EventQRGenerated,
		Data:  ws.QREventData{BotID: b.id, QRDataURL: dataURL, ExpiresAt: expires},
	})
}

func (b *Bot) handleEvent(gen uint64, evt any) {
	if !b.current(gen) {
		return
	}

	switch v := evt.(type) {
	case *events.Connected:
		b.onConnected(gen)

	case *events.PairSuccess:
		b.log.Info().Str("jid", v.ID.String()).Str("platform", v.Platform).Msg("pair success")

	case *events.Message:
		if b.deps.onMessage != nil {
			go b.deps.onMessage(b, v)
		}

	case *events.Disconnected:
		b.onClosed(gen, StatusReconnecting, "disconnected")

	case *events.ConnectFailure:
		b.log.Warn().Int("reason", int(v.Reason)).Str("message", v.Message).Msg("connect failure")
		b.onClosed(gen, StatusReconnecting, "connect failure")

	case *events.LoggedOut:
		b.onLoggedOut(gen, v)

	case *events.StreamReplaced:
		b.log.Warn().Msg("stream replaced by another connection, not reconnecting")
		b.onTerminal(gen, StatusReplaced)

	case *events.ClientOutdated:
		b.log.Error().Msg("client outdated, update whatsmeow")
		b.onTerminal(gen, StatusStopped)

	case *events.TemporaryBan:
		b.log.Error().Str("ban", v.String()).Msg("account temporarily banned")
		b.onTerminal(gen, StatusStopped)
	}
}

func (b *Bot) onConnected(gen uint64) {
	now := time.Now().UTC()

	b.mu.Lock()
	if b.stopped || b.gen != gen {
		b.mu.Unlock()
		return
	}
	client := b.client
	if b.device != nil && b.device.ID != nil {
		b.jid = b.device.ID.String()
		b.phone = b.device.ID.User
	}
	b.connected = true
	b.connectedAt = now
	b.setStatusLocked(StatusConnected)
	if b.cancelQR != nil {
		b.cancelQR()
		b.cancelQR = nil
	}
	b.qrCode, b.qrDataURL, b.qrExpires = "", "", time.Time{}
	jid, phone := b.jid, b.phone
	b.backoff.Reset()
	b.mu.Unlock()

	b.log.Info().Str("jid", jid).Msg("connected")

	if client != nil {
		// kirim presence saat connected, untuk status online di hp
		if err := client.SendPresence(context.Background(), types.PresenceAvailable); err != nil {
			b.log.Debug().Err(err).Msg("failed to send presence")
		}
	}

	if err := model.UpdateBotOnConnected(b.id, jid, phone, now); err != nil {
		b.log.Warn().Err(err).Msg("failed to record connection")
	}
	b.publishStatus()
}

func (b *Bot) onClosed(gen uint64, status Status, reason string) {
	b.mu.Lock()
	if b.stopped || b.gen != gen {
		b.mu.Unlock()
		return
	}
	b.connected = false
	b.setStatusLocked(status)
	b.mu.Unlock()

	b.log.Warn().Str("reason", reason).Msg("connection closed")
	if err := model.UpdateBotOnDisconnected(b.id, string(status), time.Now().UTC()); err != nil {
		b.log.Warn().Err(err).Msg("failed to record disconnect")
	}
	b.publishStatus()
	b.scheduleRestart(gen, reason)
}

// onLoggedOut: whatsmeow has already deleted the device, so the restart pairs
// from scratch.
func (b *Bot) onLoggedOut(gen uint64, evt *events.LoggedOut) {
	b.mu.Lock()
	if b.stopped || b.gen != gen {
		b.mu.Unlock()
		return
	}
	b.connected = false
	b.jid, b.phone = "", ""
	b.setStatusLocked(StatusLoggedOut)
	b.mu.Unlock()

	b.log.Warn().Bool("on_connect", evt.OnConnect).Str("reason", evt.Reason.String()).Msg("logged out")
	if err := model.UpdateBotOnLoggedOut(b.id, time.Now().UTC()); err != nil {
		b.log.Warn().Err(err).Msg("failed to record logout")
	}
	b.publishStatus()
	b.scheduleRestart(gen, "logged out")
}

func (b *Bot) onTerminal(gen uint64, status Status) {
	b.mu.Lock()
	if b.stopped || b.gen != gen {
		b.mu.Unlock()
		return
	}
	b.gen++
	client := b.detachLocked()
	b.connected = false
	b.setStatusLocked(status)
	b.mu.Unlock()

	if client != nil {
		go client.Disconnect()
	}
	if err := model.UpdateBotOnDisconnected(b.id, string(status), time.Now().UTC()); err != nil {
		b.log.Warn().Err(err).Msg("failed to record status")
	}
	b.publishStatus()
}
