package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dvcrn/gymapp-client/internal/logger"
)

// FileStore implements Store using a JSON file.
type FileStore struct {
	mu       sync.Mutex
	filePath string
}

// NewFileStore creates a file-based store. An empty path selects
// ~/.gymapp/credentials.json.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".gymapp", "credentials.json")
	}
	return &FileStore{filePath: path}, nil
}

// Get reads the pair from disk.
func (f *FileStore) Get(_ context.Context) (*Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	pair := &Pair{}
	if err := json.Unmarshal(data, pair); err != nil {
		return nil, fmt.Errorf("failed to parse credentials from file: %w", err)
	}
	if pair.AccessToken == "" && pair.RefreshToken == "" {
		return nil, ErrNotFound
	}
	return pair, nil
}

// Save writes the pair through a temp file so a crash never leaves a torn file.
func (f *FileStore) Save(_ context.Context, pair Pair) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.filePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(pair, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	tmp := f.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials to %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.filePath); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.filePath, err)
	}

	logger.Get().Debug().Str("path", f.filePath).Msg("Saved credentials")
	return nil
}

// Clear deletes the file.
func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", f.filePath, err)
	}
	return nil
}

// Name returns the store name
func (f *FileStore) Name() string {
	return fmt.Sprintf("FileStore(%s)", f.filePath)
}
