//go:build js && wasm

package credentials

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvcrn/gymapp-client/internal/logger"

	"github.com/syumai/workers/cloudflare/kv"
)

const kvCredentialsKey = "gymapp_credentials"

// KVStore implements Store using Cloudflare KV storage
type KVStore struct {
	kvStore *kv.Namespace
}

// NewKVStore opens the KV namespace bound as binding in wrangler.toml.
func NewKVStore(binding string) (*KVStore, error) {
	ns, err := kv.NewNamespace(binding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KV namespace: %w", err)
	}
	return &KVStore{kvStore: ns}, nil
}

func (c *KVStore) Get(_ context.Context) (*Pair, error) {
	raw, err := c.kvStore.GetString(kvCredentialsKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials from KV: %w", err)
	}
	if raw == "" {
		return nil, ErrNotFound
	}

	var pair Pair
	if err := json.Unmarshal([]byte(raw), &pair); err != nil {
		return nil, fmt.Errorf("failed to parse credentials JSON: %w", err)
	}
	return &pair, nil
}

func (c *KVStore) Save(_ context.Context, pair Pair) error {
	raw, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := c.kvStore.PutString(kvCredentialsKey, string(raw), nil); err != nil {
		return fmt.Errorf("failed to store credentials in KV: %w", err)
	}

	logger.Get().Info().Msg("Saved credentials to Cloudflare KV")
	return nil
}

func (c *KVStore) Clear(_ context.Context) error {
	if err := c.kvStore.Delete(kvCredentialsKey); err != nil {
		return fmt.Errorf("failed to delete credentials from KV: %w", err)
	}
	return nil
}

func (c *KVStore) Name() string {
	return "KVStore"
}
