package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// AssetStore is a path-addressed blob store for synthesized audio. Keys are
// hashed so provider prompts never leak into the filesystem layout.
type AssetStore struct {
	directory string
	mu        sync.Mutex
}

func NewAssetStore(directory string) (*AssetStore, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}
	return &AssetStore{directory: directory}, nil
}

// Put writes the asset and returns its addressable path.
func (s *AssetStore) Put(ctx context.Context, key string, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(key))
	name := hex.EncodeToString(sum[:]) + "." + ext
	path := filepath.Join(s.directory, name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write asset: %w", err)
	}
	return path, nil
}

// Get reads an asset back by path.
func (s *AssetStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	return data, nil
}
