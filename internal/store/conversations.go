// Package store holds the durable caches the sync service serves reads from.
// Persistence is plain JSON on disk: one document for conversation summaries,
// one file per conversation for message history.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/practicekit/sprucesync/internal/model"
)

// ConversationStore is the process-wide cache of conversation summaries.
// The in-memory map is the source of truth; the JSON document on disk is a
// best-effort recovery mechanism loaded once at open.
type ConversationStore struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]model.ConversationSummary

	path string
	log  zerolog.Logger
}

// OpenConversations loads the store from path. A missing or unparseable
// file yields an empty store; that is logged, never fatal.
func OpenConversations(path string, log zerolog.Logger) *ConversationStore {
	s := &ConversationStore{
		byID: make(map[string]model.ConversationSummary),
		path: path,
		log:  log,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s
	}
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("conversation cache unreadable, starting empty")
		return s
	}
	var summaries []model.ConversationSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("conversation cache corrupt, starting empty")
		return s
	}
	for _, c := range summaries {
		if _, dup := s.byID[c.ID]; dup {
			continue
		}
		s.order = append(s.order, c.ID)
		s.byID[c.ID] = c
	}
	return s
}

// Snapshot returns the cached summaries in store order.
func (s *ConversationStore) Snapshot() []model.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ConversationSummary, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Len reports the number of cached conversations.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Get returns the summary for id.
func (s *ConversationStore) Get(id string) (model.ConversationSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	return c, ok
}

// ReplaceAll overwrites the entire store. Used after a full sync; a failed
// sync never reaches this point, so the previous cache survives it intact.
func (s *ConversationStore) ReplaceAll(summaries []model.ConversationSummary) {
	s.mu.Lock()
	s.order = s.order[:0]
	s.byID = make(map[string]model.ConversationSummary, len(summaries))
	for _, c := range summaries {
		if _, dup := s.byID[c.ID]; dup {
			continue
		}
		s.order = append(s.order, c.ID)
		s.byID[c.ID] = c
	}
	s.mu.Unlock()
	s.persist()
}

// UpsertOne merges a newer observation of one conversation into the store.
// Unknown ids are prepended, matching the upstream's most-recent-first feed.
func (s *ConversationStore) UpsertOne(c model.ConversationSummary) {
	s.mu.Lock()
	if _, ok := s.byID[c.ID]; ok {
		s.byID[c.ID] = c
	} else {
		s.order = append([]string{c.ID}, s.order...)
		s.byID[c.ID] = c
	}
	s.mu.Unlock()
	s.persist()
}

// PatchFields merges only the supplied fields into an existing summary.
// A miss is a no-op: the history fetcher may patch a conversation that a
// concurrent full sync has dropped.
func (s *ConversationStore) PatchFields(id string, patch model.SummaryPatch) {
	s.mu.Lock()
	c, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if patch.UpdatedAt != nil {
		c.UpdatedAt = *patch.UpdatedAt
	}
	if patch.LastMessage != nil {
		c.LastMessage = *patch.LastMessage
	}
	if patch.Archived != nil {
		c.Archived = *patch.Archived
	}
	s.byID[id] = c
	s.mu.Unlock()
	s.persist()
}

// Flush writes the current state to disk synchronously.
func (s *ConversationStore) Flush() error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, data, 0o644)
}

// persist is the fire-and-forget write behind every mutation. Readers see
// the in-memory state immediately; disk is only for recovery.
func (s *ConversationStore) persist() {
	if err := s.Flush(); err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("conversation cache write failed")
	}
}
