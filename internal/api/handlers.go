// Package api exposes the sync service's HTTP surface.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	respond "github.com/practicekit/sprucesync/internal/api/respond"
	"github.com/practicekit/sprucesync/internal/model"
	"github.com/practicekit/sprucesync/internal/store"
)

// SyncService is the slice of the syncer the handlers use.
type SyncService interface {
	FullSync(ctx context.Context) (int, error)
	IncrementalUpdate(ctx context.Context, since string) ([]model.ConversationSummary, error)
	History(ctx context.Context, conversationID string) ([]model.Message, error)
	Archive(ctx context.Context, conversationID string) error
}

// ConversationHandler is a thin HTTP transport over the syncer and the
// conversation cache.
type ConversationHandler struct {
	svc           SyncService
	conversations *store.ConversationStore
	log           zerolog.Logger
}

func NewConversationHandler(svc SyncService, conversations *store.ConversationStore, log zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{svc: svc, conversations: conversations, log: log}
}

// ListConversations GET /api/conversations
// Serves from cache; a cold (empty) cache triggers a full sync first.
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	if h.conversations.Len() == 0 {
		h.log.Info().Msg("conversation cache cold, triggering full sync")
		if _, err := h.svc.FullSync(r.Context()); err != nil {
			respond.WriteBadGateway(w, err.Error())
			return
		}
	}
	summaries := h.conversations.Snapshot()
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": summaries,
		"count":         len(summaries),
	})
}

// Sync POST /api/sync
func (h *ConversationHandler) Sync(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.FullSync(r.Context())
	if err != nil {
		respond.WriteBadGateway(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   count,
	})
}

// Updates GET /api/updates?since=<RFC3339>
func (h *ConversationHandler) Updates(w http.ResponseWriter, r *http.Request) {
	since := r.URL.Query().Get("since")
	changed, err := h.svc.IncrementalUpdate(r.Context(), since)
	if err != nil {
		respond.WriteBadGateway(w, err.Error())
		return
	}
	if changed == nil {
		changed = []model.ConversationSummary{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":         len(changed),
		"conversations": changed,
	})
}

// History GET /api/history/{conversationId}
// Returns the message list unwrapped, matching what the dashboard renders.
func (h *ConversationHandler) History(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["conversationId"]
	if id == "" {
		respond.WriteBadRequest(w, "conversationId required")
		return
	}
	messages, err := h.svc.History(r.Context(), id)
	if err != nil {
		respond.WriteBadGateway(w, err.Error())
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	respond.WriteJSON(w, http.StatusOK, messages)
}

// Archive POST /api/archive/{conversationId}
func (h *ConversationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["conversationId"]
	if id == "" {
		respond.WriteBadRequest(w, "conversationId required")
		return
	}
	if err := h.svc.Archive(r.Context(), id); err != nil {
		respond.WriteBadGateway(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
