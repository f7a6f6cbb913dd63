package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Directory maps session ids to the device JIDs they paired as.
type Directory interface {
	// DeviceJID returns "" for a session that never paired.
	DeviceJID(id string) (string, error)
	SessionIDs() ([]string, error)
}

// SharedStore keeps all sessions in one whatsmeow container on postgres.
type SharedStore struct {
	db        *sql.DB
	container *sqlstore.Container
	dir       Directory
}

func NewSharedStore(ctx context.Context, url string, dir Directory, log waLog.Logger) (*SharedStore, error) {
	if url == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	if log == nil {
		log = waLog.Noop
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open whatsmeow db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping whatsmeow db: %w", err)
	}

	container := sqlstore.NewWithDB(db, "postgres", log)
	if err := container.Upgrade(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("upgrade whatsmeow db: %w", err)
	}

	return &SharedStore{db: db, container: container, dir: dir}, nil
}

func (s *SharedStore) Device(ctx context.Context, id string) (*store.Device, error) {
	if err := ValidateSessionID(id); err != nil {
		return nil, err
	}
	device, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return s.container.NewDevice(), nil
	}
	return device, nil
}

func (s *SharedStore) lookup(ctx context.Context, id string) (*store.Device, error) {
	raw, err := s.dir.DeviceJID(id)
	if err != nil {
		return nil, fmt.Errorf("lookup jid for %s: %w", id, err)
	}
	if raw == "" {
		return nil, nil
	}
	jid, err := types.ParseJID(raw)
	if err != nil {
		return nil, fmt.Errorf("parse jid for %s: %w", id, err)
	}
	device, err := s.container.GetDevice(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("load device for %s: %w", id, err)
	}
	return device, nil
}

func (s *SharedStore) Sessions(_ context.Context) ([]string, error) {
	return s.dir.SessionIDs()
}

func (s *SharedStore) Remove(ctx context.Context, id string) error {
	device, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if device == nil {
		return nil
	}
	if err := device.Delete(ctx); err != nil {
		return fmt.Errorf("delete device for %s: %w", id, err)
	}
	return nil
}

func (s *SharedStore) Close() error {
	return s.db.Close()
}
