package credential

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

const deviceDBName = "whatsmeow.db"

// DirStore keeps every session in its own directory (root/<id>/whatsmeow.db),
// so a session's credentials can be copied or deleted as a unit.
type DirStore struct {
	root string
	log  waLog.Logger

	mu   sync.Mutex
	open map[string]*dirContainer
}

type dirContainer struct {
	db        *sql.DB
	container *sqlstore.Container
}

func NewDirStore(root string, log waLog.Logger) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	if log == nil {
		log = waLog.Noop
	}
	return &DirStore{
		root: root,
		log:  log,
		open: make(map[string]*dirContainer),
	}, nil
}

func (s *DirStore) Root() string { return s.root }

func (s *DirStore) container(ctx context.Context, id string) (*sqlstore.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.open[id]; ok {
		return c.container, nil
	}

	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(dir, deviceDBName))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open device db: %w", err)
	}
	db.SetMaxOpenConns(1)

	container := sqlstore.NewWithDB(db, "sqlite3", s.log.Sub(id))
	if err := container.Upgrade(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("upgrade device db: %w", err)
	}

	s.open[id] = &dirContainer{db: db, container: container}
	return container, nil
}

func (s *DirStore) Device(ctx context.Context, id string) (*store.Device, error) {
	if err := ValidateSessionID(id); err != nil {
		return nil, err
	}
	container, err := s.container(ctx, id)
	if err != nil {
		return nil, err
	}
	// GetFirstDevice hands out a new unpaired device when the store is empty,
	// which is also the state left behind by a logout.
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device for %s: %w", id, err)
	}
	return device, nil
}

// Sessions lists the session directories under root.
func (s *DirStore) Sessions(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := ValidateSessionID(e.Name()); err != nil {
			s.log.Warnf("Skipping session directory %q: %v", e.Name(), err)
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

func (s *DirStore) Remove(_ context.Context, id string) error {
	if err := ValidateSessionID(id); err != nil {
		return err
	}

	s.mu.Lock()
	if c, ok := s.open[id]; ok {
		_ = c.db.Close()
		delete(s.open, id)
	}
	s.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(s.root, id)); err != nil {
		return fmt.Errorf("remove session dir: %w", err)
	}
	return nil
}

func (s *DirStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, c := range s.open {
		if err := c.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.open, id)
	}
	return firstErr
}
