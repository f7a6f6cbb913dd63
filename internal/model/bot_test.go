package model

import (
	"errors"
	"testing"
	"time"

	"gowa-multibot/database"
	"gowa-multibot/internal/helper"
)

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

func TestBotLifecycleRecord(t *testing.T) {
	setupDB(t)
	now := time.Now().Truncate(time.Second)

	if err := EnsureBot("bot_1", now); err != nil {
		t.Fatalf("EnsureBot: %v", err)
	}
	// second insert is a no-op
	if err := EnsureBot("bot_1", now.Add(time.Hour)); err != nil {
		t.Fatalf("EnsureBot again: %v", err)
	}

	b, err := GetBot("bot_1")
	if err != nil {
		t.Fatalf("GetBot: %v", err)
	}
	if b.Status != "starting" || b.IsConnected {
		t.Errorf("new bot = %+v", b)
	}
	if !b.CreatedAt.Equal(now.UTC()) {
		t.Errorf("CreatedAt = %v, want %v", b.CreatedAt, now.UTC())
	}

	if err := UpdateBotQR("bot_1", now); err != nil {
		t.Fatalf("UpdateBotQR: %v", err)
	}
	if err := UpdateBotOnConnected("bot_1", "628123:1@s.whatsapp.net", "628123", now); err != nil {
		t.Fatalf("UpdateBotOnConnected: %v", err)
	}
	b, _ = GetBot("bot_1")
	if !b.IsConnected || b.Status != "connected" || b.PhoneNumber.String != "628123" || !b.QRUpdatedAt.Valid {
		t.Errorf("connected bot = %+v", b)
	}

	jid, err := GetBotJID("bot_1")
	if err != nil || jid != "628123:1@s.whatsapp.net" {
		t.Errorf("GetBotJID = %q, %v", jid, err)
	}

	if err := UpdateBotOnDisconnected("bot_1", "reconnecting", now); err != nil {
		t.Fatalf("UpdateBotOnDisconnected: %v", err)
	}
	b, _ = GetBot("bot_1")
	if b.IsConnected || b.Status != "reconnecting" || !b.DisconnectedAt.Valid {
		t.Errorf("disconnected bot = %+v", b)
	}

	if err := UpdateBotOnLoggedOut("bot_1", now); err != nil {
		t.Fatalf("UpdateBotOnLoggedOut: %v", err)
	}
	b, _ = GetBot("bot_1")
	if b.JID.Valid || b.Status != "logged_out" {
		t.Errorf("logged out bot = %+v", b)
	}

	if err := UpdateBotWebhook("bot_1", "https://hook.test", "s3cret"); err != nil {
		t.Fatalf("UpdateBotWebhook: %v", err)
	}
	b, _ = GetBot("bot_1")
	if b.WebhookURL.String != "https://hook.test" || b.WebhookSecret.String != "s3cret" {
		t.Errorf("webhook not stored: %+v", b)
	}

	if err := DeleteBot("bot_1"); err != nil {
		t.Fatalf("DeleteBot: %v", err)
	}
	if _, err := GetBot("bot_1"); !errors.Is(err, ErrBotNotFound) {
		t.Errorf("GetBot after delete err = %v", err)
	}
}

func TestMissingBot(t *testing.T) {
	setupDB(t)

	if err := UpdateBotStatus("nope", "connected", true); !errors.Is(err, ErrBotNotFound) {
		t.Errorf("UpdateBotStatus err = %v", err)
	}
	if err := DeleteBot("nope"); !errors.Is(err, ErrBotNotFound) {
		t.Errorf("DeleteBot err = %v", err)
	}
	if _, err := GetBotJID("nope"); !errors.Is(err, ErrBotNotFound) {
		t.Errorf("GetBotJID err = %v", err)
	}
}

func TestListBots(t *testing.T) {
	setupDB(t)
	base := time.Now()
	for i, id := range []string{"bot_b", "bot_a", "bot_c"} {
		if err := EnsureBot(id, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}

	bots, err := GetAllBots()
	if err != nil {
		t.Fatalf("GetAllBots: %v", err)
	}
	if len(bots) != 3 || bots[0].BotID != "bot_b" || bots[2].BotID != "bot_c" {
		t.Errorf("GetAllBots order = %+v", bots)
	}

	ids, err := GetAllBotIDs()
	if err != nil {
		t.Fatalf("GetAllBotIDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != "bot_a" {
		t.Errorf("GetAllBotIDs = %v", ids)
	}
}
