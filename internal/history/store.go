package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists a History at a lifecycle boundary.
type Store interface {
	Save(ctx context.Context, h *History) error
	Load(ctx context.Context) (*History, error)
}

// FileStore keeps the document in a single JSON file.
type FileStore struct {
	Path string
}

// Save writes to a temporary file next to Path and renames it into place, so a
// failed save leaves any previous document intact.
func (s FileStore) Save(_ context.Context, h *History) error {
	data, err := Encode(h)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace history file: %w", err)
	}
	return nil
}

func (s FileStore) Load(_ context.Context) (*History, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return Decode(data)
}

// DocumentDB is the storage a DBStore writes raw documents to.
type DocumentDB interface {
	SaveHistoryDocument(ctx context.Context, runID string, doc []byte) error
	LatestHistoryDocument(ctx context.Context, runID string) ([]byte, error)
}

// DBStore keeps documents in a database, one row per save, keyed by run id.
type DBStore struct {
	DB    DocumentDB
	RunID string
}

func (s DBStore) Save(ctx context.Context, h *History) error {
	data, err := Encode(h)
	if err != nil {
		return err
	}
	if err := s.DB.SaveHistoryDocument(ctx, s.RunID, data); err != nil {
		return fmt.Errorf("save history document: %w", err)
	}
	return nil
}

func (s DBStore) Load(ctx context.Context) (*History, error) {
	data, err := s.DB.LatestHistoryDocument(ctx, s.RunID)
	if err != nil {
		return nil, fmt.Errorf("load history document: %w", err)
	}
	return Decode(data)
}

// MultiStore saves to every store and loads from the first one that succeeds.
type MultiStore []Store

func (m MultiStore) Save(ctx context.Context, h *History) error {
	for _, s := range m {
		if err := s.Save(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiStore) Load(ctx context.Context) (*History, error) {
	var lastErr error = fmt.Errorf("no history store configured")
	for _, s := range m {
		h, err := s.Load(ctx)
		if err == nil {
			return h, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
