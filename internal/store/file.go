package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// FileStore persists all keys to a single JSON file
type FileStore struct {
	mu       sync.RWMutex
	filepath string
	data     map[string]json.RawMessage
	log      zerolog.Logger
}

// NewFileStore opens (or creates) dir/signaldeck.json
func NewFileStore(dir string, log zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	fs := &FileStore{
		filepath: filepath.Join(dir, "signaldeck.json"),
		data:     make(map[string]json.RawMessage),
		log:      log.With().Str("component", "store").Logger(),
	}

	if err := fs.load(); err != nil && !os.IsNotExist(err) {
		fs.log.Warn().Err(err).Str("path", fs.filepath).Msg("could not load store, starting fresh")
		fs.data = make(map[string]json.RawMessage)
	}

	fs.log.Debug().Int("keys", len(fs.data)).Str("path", fs.filepath).Msg("store opened")
	return fs, nil
}

func (fs *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	v, ok := fs.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores value, which must be valid JSON. The in-memory view changes
// only after the file has been written.
func (fs *FileStore) Set(ctx context.Context, key string, value []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	next := fs.snapshot()
	next[key] = append(json.RawMessage(nil), value...)
	return fs.commit(next)
}

func (fs *FileStore) Delete(ctx context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.data[key]; !ok {
		return nil
	}
	next := fs.snapshot()
	delete(next, key)
	return fs.commit(next)
}

func (fs *FileStore) Clear(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.commit(make(map[string]json.RawMessage))
}

func (fs *FileStore) Close() error { return nil }

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filepath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &fs.data)
}

// snapshot copies the key map; values are never mutated in place
func (fs *FileStore) snapshot() map[string]json.RawMessage {
	next := make(map[string]json.RawMessage, len(fs.data)+1)
	for k, v := range fs.data {
		next[k] = v
	}
	return next
}

// commit writes next to a temp file, renames it over the store and then
// swaps it in
func (fs *FileStore) commit(next map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return err
	}
	tmp := fs.filepath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, fs.filepath); err != nil {
		return err
	}
	fs.data = next
	return nil
}
