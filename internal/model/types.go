package model

// ConversationSummary is the normalized view of one upstream conversation.
// The conversation cache store keys records by ID.
type ConversationSummary struct {
	ID          string `json:"id"`
	PatientName string `json:"patientName"`
	LastMessage string `json:"lastMessage"`
	UpdatedAt   string `json:"updatedAt"`
	UnreadCount int    `json:"unreadCount"`
	Archived    bool   `json:"archived"`
}

// Message is one normalized item within a conversation's history.
// Media is nil when the item carries no attachments.
type Message struct {
	ID             string   `json:"id"`
	Content        string   `json:"content"`
	Timestamp      string   `json:"timestamp"`
	SenderName     string   `json:"senderName"`
	IsFromPatient  bool     `json:"isFromPatient"`
	IsInternalNote bool     `json:"isInternalNote"`
	Type           string   `json:"type"`
	Media          []string `json:"media,omitempty"`
}

// MessageCacheEntry wraps a conversation's cached history with the fetch
// time used for the freshness check. LastFetchedAt is epoch milliseconds.
type MessageCacheEntry struct {
	LastFetchedAt int64     `json:"lastFetchedAt"`
	Messages      []Message `json:"messages"`
}

// SummaryPatch carries the fields the history fetcher writes back onto a
// cached summary after a successful fetch. Nil fields are left untouched.
type SummaryPatch struct {
	UpdatedAt   *string
	LastMessage *string
	Archived    *bool
}
