package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/practicekit/sprucesync/internal/model"
)

// DefaultFreshnessWindow bounds how long a cached history is served without
// a re-fetch.
const DefaultFreshnessWindow = 5 * time.Minute

// MessageStore caches per-conversation message history, one JSON file per
// conversation id, so writing one history never risks corrupting another.
type MessageStore struct {
	mu  sync.Mutex
	dir string
	log zerolog.Logger
}

// OpenMessages prepares the store's directory.
func OpenMessages(dir string, log zerolog.Logger) (*MessageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &MessageStore{dir: dir, log: log}, nil
}

// fileFor maps a conversation id to its cache file. Upstream ids are opaque
// strings, so path-hostile characters are replaced before use.
func (s *MessageStore) fileFor(conversationID string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.':
			return '_'
		}
		return r
	}, conversationID)
	return filepath.Join(s.dir, safe+".json")
}

// Read returns the cached entry for a conversation, or nil when none exists.
// A corrupt cache file is treated as a miss.
func (s *MessageStore) Read(conversationID string) *model.MessageCacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.fileFor(conversationID))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("message cache unreadable")
		return nil
	}
	var entry model.MessageCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("message cache corrupt")
		return nil
	}
	return &entry
}

// IsFresh reports whether entry was fetched within the freshness window.
func IsFresh(entry *model.MessageCacheEntry, nowMs int64, window time.Duration) bool {
	if entry == nil {
		return false
	}
	return nowMs-entry.LastFetchedAt < window.Milliseconds()
}

// HealthPing verifies the cache directory is still writable.
func (s *MessageStore) HealthPing(ctx context.Context) error {
	probe := filepath.Join(s.dir, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}

// Write replaces a conversation's cached history and stamps the fetch time.
func (s *MessageStore) Write(conversationID string, messages []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := model.MessageCacheEntry{
		LastFetchedAt: time.Now().UnixMilli(),
		Messages:      messages,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.fileFor(conversationID), data, 0o644)
}
