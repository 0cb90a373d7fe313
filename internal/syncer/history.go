package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/practicekit/sprucesync/internal/model"
	"github.com/practicekit/sprucesync/internal/spruce"
	"github.com/practicekit/sprucesync/internal/store"
)

// fallbackMessageLimit is the single-page limit used when the items
// endpoint yields nothing.
const fallbackMessageLimit = 500

// History returns the full message history for one conversation, serving
// from cache inside the freshness window. Cache misses paginate the items
// endpoint, fall back to the messages endpoint (with the alternate auth
// scheme) when items produce nothing, write the result through to the
// message cache, and patch the cached summary's preview fields.
func (s *Syncer) History(ctx context.Context, conversationID string) ([]model.Message, error) {
	v, err, _ := s.flight.Do("history:"+conversationID, func() (interface{}, error) {
		return s.history(ctx, conversationID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Message), nil
}

func (s *Syncer) history(ctx context.Context, conversationID string) ([]model.Message, error) {
	if entry := s.messages.Read(conversationID); store.IsFresh(entry, time.Now().UnixMilli(), s.cfg.FreshnessWindow) {
		historyFetchesTotal.WithLabelValues("hit").Inc()
		return entry.Messages, nil
	}
	historyFetchesTotal.WithLabelValues("miss").Inc()

	items, itemsErr := s.fetchItems(ctx, conversationID)
	if itemsErr != nil {
		// Items endpoint unavailable is not terminal; the fallback
		// endpoint may still have the history.
		s.log.Warn().Err(itemsErr).Str("conversation_id", conversationID).Msg("items endpoint unavailable, trying messages fallback")
	}

	if len(items) == 0 {
		fallback, err := s.fetchMessagesFallback(ctx, conversationID)
		if err != nil {
			if itemsErr != nil {
				// Both endpoints failed; serve a stale cache if one exists.
				if entry := s.messages.Read(conversationID); entry != nil {
					s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("both endpoints failed, serving stale history")
					return entry.Messages, nil
				}
				return nil, fmt.Errorf("history %s: %w", conversationID, err)
			}
			s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("messages fallback failed, conversation treated as empty")
		}
		items = fallback
	}

	messages := spruce.NormalizeItems(items)

	if err := s.messages.Write(conversationID, messages); err != nil {
		s.log.Error().Err(err).Str("conversation_id", conversationID).Msg("message cache write failed")
	}
	if len(messages) > 0 {
		last := messages[len(messages)-1]
		s.conversations.PatchFields(conversationID, model.SummaryPatch{
			UpdatedAt:   &last.Timestamp,
			LastMessage: &last.Content,
		})
	}
	return messages, nil
}

// fetchItems paginates the items endpoint up to the history page cap.
func (s *Syncer) fetchItems(ctx context.Context, conversationID string) ([]spruce.RawItem, error) {
	var items []spruce.RawItem
	token := ""
	pages := 0

	for {
		page, err := s.client.ListConversationItems(ctx, s.cfg.AuthScheme, conversationID, token, s.cfg.ConversationPageSize)
		if err != nil {
			return items, err
		}
		if len(page.Items) == 0 {
			return items, nil
		}
		items = append(items, page.Items...)
		pages++

		token = page.NextToken()
		if !page.HasMore || token == "" || pages >= s.cfg.HistoryPageCap {
			return items, nil
		}
	}
}

// fetchMessagesFallback calls the single-page messages endpoint with the
// alternate auth scheme, which is the combination the upstream has been
// observed to accept for it.
func (s *Syncer) fetchMessagesFallback(ctx context.Context, conversationID string) ([]spruce.RawItem, error) {
	scheme := s.cfg.AuthScheme
	if alt, ok := alternateScheme(scheme); ok {
		scheme = alt
	}
	page, err := s.client.ListConversationMessages(ctx, scheme, conversationID, fallbackMessageLimit)
	if err != nil {
		// One more attempt with the configured scheme before giving up.
		page, err = s.client.ListConversationMessages(ctx, s.cfg.AuthScheme, conversationID, fallbackMessageLimit)
		if err != nil {
			return nil, err
		}
	}
	return page.Messages, nil
}
