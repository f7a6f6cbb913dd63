package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"gowa-multibot/database"
	"gowa-multibot/internal/helper"
	"gowa-multibot/internal/ws"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

type sentMessage struct {
	to   types.JID
	text string
}

type fakeClient struct {
	device *store.Device
	autoQR bool

	mu          sync.Mutex
	handlers    []whatsmeow.EventHandler
	qr          chan whatsmeow.QRChannelItem
	connectErr  error
	connected   bool
	loggedIn    bool
	sent        []sentMessage
	presences   int
	logouts     int
	disconnects int
}

func (c *fakeClient) AddEventHandler(h whatsmeow.EventHandler) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
	return uint32(len(c.handlers))
}

func (c *fakeClient) GetQRChannel(context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qr = make(chan whatsmeow.QRChannelItem, 4)
	if c.autoQR {
		c.qr <- whatsmeow.QRChannelItem{Event: whatsmeow.QRChannelEventCode, Code: "2@fake-qr-code", Timeout: time.Minute}
	}
	return c.qr, nil
}

func (c *fakeClient) Connect() error {
	c.mu.Lock()
	if c.connectErr != nil {
		err := c.connectErr
		c.mu.Unlock()
		return err
	}
	c.connected = true
	paired := c.device.ID != nil
	c.loggedIn = paired
	c.mu.Unlock()

	if paired {
		c.emit(&events.Connected{})
	}
	return nil
}

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.loggedIn = false
	c.disconnects++
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// Logout mimics whatsmeow: the device row is deleted, so the device loses its ID.
func (c *fakeClient) Logout(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts++
	c.loggedIn = false
	c.device.ID = nil
	return nil
}

func (c *fakeClient) SendMessage(_ context.Context, to types.JID, msg *waE2E.Message, _ ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return whatsmeow.SendResponse{}, errors.New("not connected")
	}
	c.sent = append(c.sent, sentMessage{to: to, text: msg.GetConversation()})
	return whatsmeow.SendResponse{ID: types.MessageID("MSG" + time.Now().Format("150405.000"))}, nil
}

func (c *fakeClient) SendPresence(context.Context, types.Presence) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presences++
	return nil
}

func (c *fakeClient) emit(evt any) {
	c.mu.Lock()
	handlers := append([]whatsmeow.EventHandler(nil), c.handlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(evt)
	}
}

func (c *fakeClient) sendQR(item whatsmeow.QRChannelItem) {
	c.mu.Lock()
	ch := c.qr
	c.mu.Unlock()
	ch <- item
}

func (c *fakeClient) sentMessages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	autoQR  bool
}

func (f *fakeFactory) New(device *store.Device, _ waLog.Logger) Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeClient{device: device, autoQR: f.autoQR}
	f.clients = append(f.clients, c)
	return c
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fakeFactory) last() *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return nil
	}
	return f.clients[len(f.clients)-1]
}

type fakeStore struct {
	mu      sync.Mutex
	devices map[string]*store.Device
	removed []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{devices: make(map[string]*store.Device)}
}

func (s *fakeStore) paired(id, jid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parsed := types.NewJID(jid, types.DefaultUserServer)
	s.devices[id] = &store.Device{ID: &parsed}
}

func (s *fakeStore) Device(_ context.Context, id string) (*store.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		d = &store.Device{}
		s.devices[id] = d
	}
	return d, nil
}

func (s *fakeStore) Sessions(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *fakeStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, id)
	s.removed = append(s.removed, id)
	return nil
}

func (s *fakeStore) Close() error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []ws.WsEvent
}

func (p *recordingPublisher) Publish(e ws.WsEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) has(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.Event == name {
			return true
		}
	}
	return false
}

func setupDB(t *testing.T) {
	t.Helper()
	db, _, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := helper.InitSchema(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	prev := database.AppDB
	database.AppDB = db
	t.Cleanup(func() {
		database.AppDB = prev
		_ = db.Close()
	})
}

type testEnv struct {
	manager   *Manager
	factory   *fakeFactory
	store     *fakeStore
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T, replier *AutoReplier, opts ...func(*ManagerOptions)) *testEnv {
	t.Helper()
	setupDB(t)

	env := &testEnv{
		factory:   &fakeFactory{autoQR: true},
		store:     newFakeStore(),
		publisher: &recordingPublisher{},
	}
	mo := ManagerOptions{
		Store:            env.store,
		NewClient:        env.factory.New,
		Logger:           zerolog.Nop(),
		Realtime:         env.publisher,
		Replier:          replier,
		DefaultCountry:   "62",
		ReconnectInitial: 10 * time.Millisecond,
		ReconnectMax:     50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&mo)
	}
	env.manager = NewManager(mo)
	t.Cleanup(func() { env.manager.Shutdown(context.Background()) })
	return env
}

func withReconnect(initial, maxInterval time.Duration) func(*ManagerOptions) {
	return func(o *ManagerOptions) {
		o.ReconnectInitial = initial
		o.ReconnectMax = maxInterval
	}
}

// gatedStore holds the first Device call until release is closed.
type gatedStore struct {
	*fakeStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore(inner *fakeStore) *gatedStore {
	return &gatedStore{fakeStore: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *gatedStore) Device(ctx context.Context, id string) (*store.Device, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return s.fakeStore.Device(ctx, id)
}

// failingStore cannot load the device of one session.
type failingStore struct {
	*fakeStore
	failID string

	mu       sync.Mutex
	attempts int
}

func (s *failingStore) Device(ctx context.Context, id string) (*store.Device, error) {
	if id == s.failID {
		s.mu.Lock()
		s.attempts++
		s.mu.Unlock()
		return nil, errors.New("device row is corrupt")
	}
	return s.fakeStore.Device(ctx, id)
}

func (s *failingStore) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
