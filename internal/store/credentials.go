package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Credentials is one owner's persisted session state.
type Credentials struct {
	Blob string `json:"blob"`
	AFK  bool   `json:"afk"`
}

// CredentialsFile stores the credentials of all connected owners as a single
// JSON document keyed by owner chat ID.
type CredentialsFile struct {
	provider FileProvider
	name     string

	mu      sync.Mutex
	entries map[string]Credentials
}

// NewCredentialsFile creates a credentials file backed by the provider.
func NewCredentialsFile(provider FileProvider, name string) (*CredentialsFile, error) {
	if provider == nil {
		return nil, fmt.Errorf("file provider is required")
	}
	if name == "" {
		name = "credentials.json"
	}
	return &CredentialsFile{
		provider: provider,
		name:     name,
		entries:  map[string]Credentials{},
	}, nil
}

// Load reads all persisted credentials. A missing file yields an empty map.
func (f *CredentialsFile) Load(ctx context.Context) (map[string]Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.provider.Read(ctx, f.name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f.entries = map[string]Credentials{}
			return map[string]Credentials{}, nil
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	entries := map[string]Credentials{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	f.entries = entries

	out := make(map[string]Credentials, len(entries))
	for k, v := range entries {
		out[k] = v
	}
	return out, nil
}

// Put stores or replaces one owner's credentials and writes the file.
func (f *CredentialsFile) Put(ctx context.Context, chatID string, creds Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries[chatID] = creds
	return f.flush(ctx)
}

// Delete removes one owner's credentials and writes the file.
func (f *CredentialsFile) Delete(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.entries, chatID)
	return f.flush(ctx)
}

func (f *CredentialsFile) flush(ctx context.Context) error {
	data, err := json.MarshalIndent(f.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := f.provider.Write(ctx, f.name, data); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	return nil
}
