package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gowa-multibot/internal/credential"
	"gowa-multibot/internal/helper"
	"gowa-multibot/internal/model"
	"gowa-multibot/internal/ws"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

const botIDPrefix = "bot_"

var (
	ErrManagerClosed    = errors.New("manager is shut down")
	ErrInvalidRecipient = errors.New("invalid recipient")
)

type ManagerOptions struct {
	Store credential.Store
	// NewClient defaults to NewWhatsmeowClient.
	NewClient       ClientFactory
	Logger          zerolog.Logger
	WhatsmeowLogger waLog.Logger
	// Realtime defaults to a publisher that drops every event.
	Realtime ws.RealtimePublisher
	Replier  *AutoReplier
	// Webhook is nil when forwarding is disabled.
	Webhook *WebhookSender
	// QRTerminal, when set, receives every QR code rendered as text.
	QRTerminal     io.Writer
	DefaultCountry string

	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	Now func() time.Time
}

// Manager is the registry of running bots.
type Manager struct {
	opts ManagerOptions
	deps *botDeps
	log  zerolog.Logger

	mu     sync.RWMutex
	bots   map[string]*Bot
	lastID int64
	closed bool
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.NewClient == nil {
		opts.NewClient = NewWhatsmeowClient
	}
	if opts.WhatsmeowLogger == nil {
		opts.WhatsmeowLogger = waLog.Noop
	}
	if opts.Realtime == nil {
		opts.Realtime = ws.NopPublisher{}
	}
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = 2 * time.Second
	}
	if opts.ReconnectMax < opts.ReconnectInitial {
		opts.ReconnectMax = opts.ReconnectInitial
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		opts: opts,
		log:  opts.Logger.With().Str("component", "manager").Logger(),
		bots: make(map[string]*Bot),
	}
	m.deps = &botDeps{
		store:            opts.Store,
		newClient:        opts.NewClient,
		log:              opts.Logger,
		waLog:            opts.WhatsmeowLogger,
		realtime:         opts.Realtime,
		qrOut:            opts.QRTerminal,
		reconnectInitial: opts.ReconnectInitial,
		reconnectMax:     opts.ReconnectMax,
		onMessage:        m.handleMessage,
	}
	return m
}

// ParseBotTime recovers the creation time encoded in a bot_<millis> id.
func ParseBotTime(id string) (time.Time, bool) {
	millis, err := strconv.ParseInt(strings.TrimPrefix(id, botIDPrefix), 10, 64)
	if err != nil || !strings.HasPrefix(id, botIDPrefix) || millis <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(millis).UTC(), true
}

// LoadExisting starts a bot for every session with stored credentials. A
// session that fails to start keeps retrying on its own; loading goes on.
func (m *Manager) LoadExisting(ctx context.Context) (int, error) {
	ids, err := m.opts.Store.Sessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	sort.Strings(ids)

	loaded := 0
	for _, id := range ids {
		createdAt, ok := ParseBotTime(id)
		if !ok {
			createdAt = m.opts.Now().UTC()
		}

		bot, err := m.register(id, createdAt)
		if err != nil {
			if errors.Is(err, ErrManagerClosed) {
				return loaded, err
			}
			m.log.Warn().Err(err).Str("bot", id).Msg("skipping session")
			continue
		}
		loaded++

		if err := bot.Start(ctx); err != nil {
			m.log.Warn().Err(err).Str("bot", id).Msg("session failed to start, will retry")
		}
	}

	m.log.Info().Int("sessions", loaded).Msg("existing sessions loaded")
	return loaded, nil
}

// Create starts a brand new session that will ask for a QR scan.
func (m *Manager) Create(ctx context.Context) (*Bot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	now := m.opts.Now()
	millis := now.UnixMilli()
	if millis <= m.lastID {
		millis = m.lastID + 1
	}
	for {
		if _, taken := m.bots[botIDPrefix+strconv.FormatInt(millis, 10)]; !taken {
			break
		}
		millis++
	}
	m.lastID = millis
	id := botIDPrefix + strconv.FormatInt(millis, 10)
	m.mu.Unlock()

	bot, err := m.register(id, time.UnixMilli(millis).UTC())
	if err != nil {
		return nil, err
	}

	m.opts.Realtime.Publish(ws.WsEvent{
		Event: ws.EventBotCreated,
		Data:  ws.BotEventData{BotID: id, Status: string(StatusStarting)},
	})
	m.log.Info().Str("bot", id).Msg("bot created")

	if err := bot.Start(ctx); err != nil {
		m.log.Warn().Err(err).Str("bot", id).Msg("bot failed to start, will retry")
	}
	return bot, nil
}

func (m *Manager) register(id string, createdAt time.Time) (*Bot, error) {
	if err := credential.ValidateSessionID(id); err != nil {
		return nil, err
	}
	if err := model.EnsureBot(id, createdAt); err != nil {
		return nil, fmt.Errorf("record bot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if b, ok := m.bots[id]; ok {
		return b, nil
	}
	if t, ok := ParseBotTime(id); ok && t.UnixMilli() > m.lastID {
		m.lastID = t.UnixMilli()
	}

	b := newBot(id, createdAt, m.deps)
	m.bots[id] = b
	return b, nil
}

func (m *Manager) Get(id string) (*Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bots[id]
	if !ok {
		return nil, ErrBotNotFound
	}
	return b, nil
}

// List returns snapshots ordered by id, which is creation order for bot_<millis> ids.
func (m *Manager) List() []BotSnapshot {
	m.mu.RLock()
	bots := make([]*Bot, 0, len(m.bots))
	for _, b := range m.bots {
		bots = append(bots, b)
	}
	m.mu.RUnlock()

	out := make([]BotSnapshot, 0, len(bots))
	for _, b := range bots {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bots)
}

// Logout unlinks the bot's device and restarts it for a fresh QR code.
func (m *Manager) Logout(ctx context.Context, id string) error {
	b, err := m.Get(id)
	if err != nil {
		return err
	}
	return b.Logout(ctx)
}

// Remove unlinks the device, deletes its credentials and record, and drops
// the bot from the registry.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	b, ok := m.bots[id]
	if ok {
		delete(m.bots, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrBotNotFound
	}

	if err := b.Stop(ctx, true); err != nil {
		m.log.Warn().Err(err).Str("bot", id).Msg("logout before removal failed")
	}
	if err := m.opts.Store.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove credentials: %w", err)
	}
	if err := model.DeleteBot(id); err != nil && !errors.Is(err, model.ErrBotNotFound) {
		return fmt.Errorf("delete bot record: %w", err)
	}
	if m.opts.Replier != nil {
		m.opts.Replier.Forget(id)
	}

	m.opts.Realtime.Publish(ws.WsEvent{
		Event: ws.EventBotRemoved,
		Data:  ws.BotEventData{BotID: id, Status: string(StatusStopped)},
	})
	m.log.Info().Str("bot", id).Msg("bot removed")
	return nil
}

// Send delivers text from bot id. to is a phone number or a full JID.
func (m *Manager) Send(ctx context.Context, id, to, text string) (types.MessageID, error) {
	b, err := m.Get(id)
	if err != nil {
		return "", err
	}
	jid, err := helper.ParseRecipient(to, m.opts.DefaultCountry)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	return b.Send(ctx, jid, text)
}

// Connected returns the bots that currently hold a live connection.
func (m *Manager) Connected() []*Bot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Bot
	for _, b := range m.bots {
		if b.IsConnected() {
			out = append(out, b)
		}
	}
	return out
}

// BroadcastPresence marks every connected bot as available. It returns how
// many bots were refreshed and the first error met.
func (m *Manager) BroadcastPresence(ctx context.Context) (int, error) {
	var firstErr error
	sent := 0
	for _, b := range m.Connected() {
		if err := b.SendPresence(ctx); err != nil {
			b.log.Debug().Err(err).Msg("presence failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", b.ID(), err)
			}
			continue
		}
		sent++
	}
	return sent, firstErr
}

// Shutdown stops every bot without unlinking its device.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	bots := make([]*Bot, 0, len(m.bots))
	for _, b := range m.bots {
		bots = append(bots, b)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, b := range bots {
		wg.Add(1)
		go func(b *Bot) {
			defer wg.Done()
			if err := b.Stop(ctx, false); err != nil {
				m.log.Warn().Err(err).Str("bot", b.ID()).Msg("stop failed")
			}
		}(b)
	}
	wg.Wait()
	m.log.Info().Int("bots", len(bots)).Msg("all bots stopped")
}

func (m *Manager) handleMessage(b *Bot, evt *events.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if m.opts.Webhook != nil && !evt.Info.IsFromMe {
		go m.opts.Webhook.IncomingMessage(context.WithoutCancel(ctx), b.ID(), evt)
	}
	if m.opts.Replier == nil {
		return
	}

	reply, ok := m.opts.Replier.Reply(ctx, b.ID(), evt)
	if !ok {
		return
	}
	if _, err := b.Send(ctx, evt.Info.Chat, reply.Text); err != nil {
		b.log.Warn().Err(err).Str("chat", evt.Info.Chat.String()).Msg("auto reply failed")
		return
	}

	b.log.Info().Str("chat", evt.Info.Chat.String()).Str("source", reply.Source).Msg("auto reply sent")
	m.opts.Realtime.Publish(ws.WsEvent{
		Event: ws.EventMessageReplied,
		Data: ws.ReplyEventData{
			BotID:   b.ID(),
			Chat:    evt.Info.Chat.String(),
			Sender:  evt.Info.Sender.String(),
			Keyword: reply.Keyword,
			Source:  reply.Source,
		},
	})
}
