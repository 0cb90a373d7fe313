package spruce

import (
	"sort"
	"strings"
	"time"

	"github.com/practicekit/sprucesync/internal/model"
)

// Now is the timestamp source used for missing-field fallbacks; swapped in tests.
var Now = func() time.Time { return time.Now().UTC() }

// itemKind tags the known upstream item shapes. Anything unrecognized is
// normalized best-effort rather than dropped.
type itemKind int

const (
	kindMessage itemKind = iota
	kindAttachment
	kindEvent
	kindUnknown
)

func classifyItem(it RawItem) itemKind {
	switch it.Type {
	case "", "message":
		return kindMessage
	case "attachment":
		return kindAttachment
	case "event":
		return kindEvent
	}
	if len(it.Attachments) > 0 {
		return kindAttachment
	}
	return kindUnknown
}

// NormalizeConversation maps a raw upstream conversation onto the cached
// summary shape, applying the defensive fallback chains for records that
// predate newer upstream fields.
func NormalizeConversation(raw RawConversation) model.ConversationSummary {
	name := "Unknown"
	for _, p := range raw.Participants {
		if p.IsExternal && p.DisplayName != "" {
			name = p.DisplayName
			break
		}
	}
	if name == "Unknown" && raw.Title != "" {
		name = raw.Title
	}

	last := "No messages"
	if raw.LastMessage != nil {
		if raw.LastMessage.Content != "" {
			last = raw.LastMessage.Content
		} else if raw.LastMessage.Text != "" {
			last = raw.LastMessage.Text
		}
	}
	if last == "No messages" && raw.Subtitle != "" {
		last = raw.Subtitle
	}

	updated := firstNonEmpty(
		raw.LastMessageAt,
		raw.LastActivity,
		lastMessageSentAt(raw.LastMessage),
		raw.UpdatedAt,
		raw.CreatedAt,
	)
	if updated == "" {
		updated = Now().Format(time.RFC3339)
	}

	unread := raw.UnreadCount
	if unread < 0 {
		unread = 0
	}

	return model.ConversationSummary{
		ID:          raw.ID,
		PatientName: name,
		LastMessage: last,
		UpdatedAt:   updated,
		UnreadCount: unread,
		Archived:    raw.Archived,
	}
}

// NormalizeItem maps one raw item onto the Message shape. Attachments keep
// only image URLs and get a "[Photo]" placeholder body; events keep a label
// derived from their event type. Unknown kinds are included best-effort.
func NormalizeItem(it RawItem) model.Message {
	kind := classifyItem(it)

	msg := model.Message{
		ID:             it.ID,
		Timestamp:      itemTimestamp(it),
		SenderName:     senderName(it),
		IsFromPatient:  isFromPatient(it),
		IsInternalNote: it.Internal,
		Type:           it.Type,
	}
	if msg.Type == "" {
		msg.Type = "message"
	}

	switch kind {
	case kindAttachment:
		msg.Content = "[Photo]"
		msg.Media = imageURLs(it.Attachments)
		if len(msg.Media) == 0 {
			// Non-image attachment: keep the record, note the kind.
			msg.Content = "[Attachment]"
		}
	case kindEvent:
		if it.EventType != "" {
			msg.Content = "[" + it.EventType + "]"
		} else {
			msg.Content = "[Event]"
		}
	default:
		msg.Content = firstNonEmpty(it.Content, it.Text, it.Body)
		if media := imageURLs(it.Attachments); len(media) > 0 {
			msg.Media = media
		}
		if msg.Content == "" && kind == kindUnknown && it.EventType != "" {
			msg.Content = "[" + it.EventType + "]"
		}
	}
	return msg
}

// NormalizeItems maps and sorts a raw item list ascending by timestamp.
func NormalizeItems(items []RawItem) []model.Message {
	out := make([]model.Message, 0, len(items))
	for _, it := range items {
		out = append(out, NormalizeItem(it))
	}
	SortMessages(out)
	return out
}

// SortMessages orders messages ascending by timestamp. Timestamps are
// RFC3339 strings, so lexicographic order is chronological order; a stable
// sort keeps upstream delivery order for equal stamps.
func SortMessages(msgs []model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp < msgs[j].Timestamp
	})
}

func itemTimestamp(it RawItem) string {
	ts := firstNonEmpty(it.Timestamp, it.CreatedAt, it.SentAt)
	if ts == "" {
		ts = Now().Format(time.RFC3339)
	}
	return ts
}

func senderName(it RawItem) string {
	if it.Author != nil && it.Author.DisplayName != "" {
		return it.Author.DisplayName
	}
	if isFromPatient(it) {
		return "Patient"
	}
	return "Doctor"
}

func isFromPatient(it RawItem) bool {
	if it.FromPatient != nil {
		return *it.FromPatient
	}
	return strings.EqualFold(it.Direction, "inbound")
}

func imageURLs(atts []RawAttachment) []string {
	var urls []string
	for _, a := range atts {
		if a.URL != "" && strings.HasPrefix(a.ContentType, "image/") {
			urls = append(urls, a.URL)
		}
	}
	return urls
}

func lastMessageSentAt(lm *RawLastMessage) string {
	if lm == nil {
		return ""
	}
	return lm.SentAt
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
