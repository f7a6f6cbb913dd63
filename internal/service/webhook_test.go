package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gowa-multibot/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type capturedRequest struct {
	header http.Header
	body   []byte
}

func newWebhookServer(t *testing.T, status int) (*httptest.Server, chan capturedRequest) {
	t.Helper()
	got := make(chan capturedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- capturedRequest{header: r.Header.Clone(), body: body}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestWebhookDeliverSigned(t *testing.T) {
	srv, got := newWebhookServer(t, http.StatusOK)
	sender := NewWebhookSender(zerolog.Nop())

	err := sender.Deliver(context.Background(), srv.URL, "s3cret", WebhookPayload{
		Event:     "incoming_message",
		Timestamp: time.Now().UTC(),
		Data:      map[string]string{"text": "hai"},
	})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	req := <-got
	if sig := req.header.Get(SignatureHeader); sig != Sign("s3cret", req.body) {
		t.Errorf("signature = %q", sig)
	}
	if _, err := uuid.Parse(req.header.Get(DeliveryIDHeader)); err != nil {
		t.Errorf("delivery id %q: %v", req.header.Get(DeliveryIDHeader), err)
	}
	if ct := req.header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestWebhookDeliverUnsignedAndErrors(t *testing.T) {
	srv, got := newWebhookServer(t, http.StatusInternalServerError)
	sender := NewWebhookSender(zerolog.Nop())

	err := sender.Deliver(context.Background(), srv.URL, "", WebhookPayload{Event: "incoming_message"})
	if err == nil {
		t.Error("expected error for 500 response")
	}
	if req := <-got; req.header.Get(SignatureHeader) != "" {
		t.Error("unsigned delivery carries a signature")
	}
}

func TestWebhookIncomingMessage(t *testing.T) {
	setupDB(t)
	srv, got := newWebhookServer(t, http.StatusOK)

	if err := model.EnsureBot("bot_1", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := model.UpdateBotWebhook("bot_1", srv.URL, "k"); err != nil {
		t.Fatal(err)
	}

	sender := NewWebhookSender(zerolog.Nop())
	evt := textMessage(testChat, "halo")
	evt.Info.ID = "MSG1"
	sender.IncomingMessage(context.Background(), "bot_1", evt)

	var req capturedRequest
	select {
	case req = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called")
	}

	var payload struct {
		Event string              `json:"event"`
		Data  IncomingMessageData `json:"data"`
	}
	if err := json.Unmarshal(req.body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Event != "incoming_message" || payload.Data.BotID != "bot_1" || payload.Data.Text != "halo" || payload.Data.MessageID != "MSG1" {
		t.Errorf("payload = %+v", payload)
	}
	if payload.Data.PushName != "Budi" {
		t.Errorf("pushName = %q", payload.Data.PushName)
	}
}

func TestWebhookSkipsBotsWithoutURL(t *testing.T) {
	setupDB(t)
	if err := model.EnsureBot("bot_1", time.Now()); err != nil {
		t.Fatal(err)
	}
	// no URL configured: nothing to dial, must simply return
	NewWebhookSender(zerolog.Nop()).IncomingMessage(context.Background(), "bot_1", textMessage(testChat, "halo"))
	NewWebhookSender(zerolog.Nop()).IncomingMessage(context.Background(), "missing", textMessage(testChat, "halo"))
}
