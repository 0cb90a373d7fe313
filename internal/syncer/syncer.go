// Package syncer reconciles the local caches with the upstream Spruce API.
package syncer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/practicekit/sprucesync/internal/config"
	"github.com/practicekit/sprucesync/internal/model"
	"github.com/practicekit/sprucesync/internal/spruce"
	"github.com/practicekit/sprucesync/internal/store"
)

// UpstreamClient is the slice of the Spruce client the orchestrators use.
type UpstreamClient interface {
	ListConversations(ctx context.Context, scheme config.AuthScheme, paginationToken string, limit int) (*spruce.ConversationsPage, error)
	ListConversationItems(ctx context.Context, scheme config.AuthScheme, conversationID, paginationToken string, limit int) (*spruce.ItemsPage, error)
	ListConversationMessages(ctx context.Context, scheme config.AuthScheme, conversationID string, limit int) (*spruce.MessagesPage, error)
	ArchiveConversation(ctx context.Context, scheme config.AuthScheme, conversationID string) error
}

// Syncer owns full syncs, incremental updates and history fetches. Racing
// invocations of the same operation coalesce into one upstream round-trip
// via singleflight instead of racing ReplaceAll.
type Syncer struct {
	client        UpstreamClient
	conversations *store.ConversationStore
	messages      *store.MessageStore
	cfg           *config.Config
	log           zerolog.Logger

	flight singleflight.Group
}

// New constructs a Syncer over the given client and stores.
func New(client UpstreamClient, conversations *store.ConversationStore, messages *store.MessageStore, cfg *config.Config, log zerolog.Logger) *Syncer {
	return &Syncer{
		client:        client,
		conversations: conversations,
		messages:      messages,
		cfg:           cfg,
		log:           log,
	}
}

// FullSync rebuilds the conversation cache from upstream. The store is only
// replaced after the pagination loop completes, so any failure leaves the
// previous cache intact. Returns the number of cached conversations.
func (s *Syncer) FullSync(ctx context.Context) (int, error) {
	v, err, _ := s.flight.Do("sync", func() (interface{}, error) {
		return s.fullSync(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (s *Syncer) fullSync(ctx context.Context) (int, error) {
	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Logger()
	log.Info().Msg("full sync starting")

	var all []spruce.RawConversation
	token := ""
	pages := 0

	for {
		page, err := s.listConversationsAnyScheme(ctx, token, s.cfg.ConversationPageSize)
		if err != nil {
			syncRunsTotal.WithLabelValues("error").Inc()
			log.Error().Err(err).Int("pages", pages).Msg("full sync aborted, cache left untouched")
			return 0, fmt.Errorf("full sync page %d: %w", pages+1, err)
		}
		all = append(all, page.Conversations...)
		pages++
		pagesFetchedTotal.Inc()

		token = page.NextToken()
		// The page cap guards against an upstream cursor that never
		// terminates; 100 pages of 200 is ~20k conversations.
		if !page.HasMore || token == "" || pages >= s.cfg.ConversationPageCap {
			break
		}
	}

	normalized := make([]model.ConversationSummary, 0, len(all))
	for _, raw := range all {
		normalized = append(normalized, spruce.NormalizeConversation(raw))
	}
	s.conversations.ReplaceAll(normalized)

	syncRunsTotal.WithLabelValues("ok").Inc()
	log.Info().Int("pages", pages).Int("conversations", len(normalized)).Msg("full sync complete")
	return len(normalized), nil
}

// IncrementalUpdate fetches the first page of the feed and merges in every
// conversation whose activity is strictly after since; an empty since treats
// the whole page as new. It inspects one page only, so bursts larger than
// the page size can be missed until the next full sync.
func (s *Syncer) IncrementalUpdate(ctx context.Context, since string) ([]model.ConversationSummary, error) {
	page, err := s.listConversationsAnyScheme(ctx, "", s.cfg.UpdatePageSize)
	if err != nil {
		return nil, fmt.Errorf("incremental update: %w", err)
	}

	var changed []model.ConversationSummary
	for _, raw := range page.Conversations {
		activity := raw.LastActivity
		if activity == "" {
			activity = raw.UpdatedAt
		}
		if since != "" && activity <= since {
			continue
		}
		c := spruce.NormalizeConversation(raw)
		s.conversations.UpsertOne(c)
		changed = append(changed, c)
	}

	if len(changed) > 0 {
		incrementalUpdatesTotal.Add(float64(len(changed)))
		s.log.Info().Int("changed", len(changed)).Str("since", since).Msg("incremental update applied")
	}
	return changed, nil
}

// Archive archives the conversation upstream and mirrors the flag onto the
// cached summary so it disappears from listings without a re-sync.
func (s *Syncer) Archive(ctx context.Context, conversationID string) error {
	err := s.client.ArchiveConversation(ctx, s.cfg.AuthScheme, conversationID)
	if err != nil {
		if alt, ok := alternateScheme(s.cfg.AuthScheme); ok {
			if err2 := s.client.ArchiveConversation(ctx, alt, conversationID); err2 == nil {
				err = nil
			}
		}
	}
	if err != nil {
		return err
	}
	archived := true
	s.conversations.PatchFields(conversationID, model.SummaryPatch{Archived: &archived})
	return nil
}

// listConversationsAnyScheme tries the configured auth scheme and falls back
// to the alternate one, since the upstream is inconsistent about which
// endpoints accept which scheme.
func (s *Syncer) listConversationsAnyScheme(ctx context.Context, token string, limit int) (*spruce.ConversationsPage, error) {
	page, err := s.client.ListConversations(ctx, s.cfg.AuthScheme, token, limit)
	if err == nil {
		return page, nil
	}
	alt, ok := alternateScheme(s.cfg.AuthScheme)
	if !ok {
		return nil, err
	}
	s.log.Warn().Err(err).Str("fallback_scheme", string(alt)).Msg("conversations call failed, retrying with alternate auth scheme")
	page, err2 := s.client.ListConversations(ctx, alt, token, limit)
	if err2 != nil {
		return nil, err
	}
	return page, nil
}

func alternateScheme(scheme config.AuthScheme) (config.AuthScheme, bool) {
	switch scheme {
	case config.AuthBasic:
		return config.AuthBearer, true
	case config.AuthBearer:
		return config.AuthBasic, true
	}
	return "", false
}
