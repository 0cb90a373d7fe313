// Package spruce is the client for the Spruce Health conversations API.
package spruce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/practicekit/sprucesync/internal/config"
	"github.com/practicekit/sprucesync/internal/model"
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

// Client issues authenticated calls against the Spruce API. It performs no
// retries; retry and fallback policy belongs to the orchestrators.
//
// The upstream is inconsistent about which endpoints accept which auth
// scheme, so every operation takes an explicit scheme and callers fall back
// to the alternate one on failure.
type Client struct {
	http        *resty.Client
	basicToken  string
	bearerToken string
}

// NewClient builds a Client from credentials in cfg. The Basic credential is
// resolved once here (see config.BasicToken) rather than sniffed per call.
func NewClient(cfg *config.Config) *Client {
	c := resty.New().
		SetBaseURL(cfg.SpruceBaseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.UpstreamTimeout)

	return &Client{
		http:        c,
		basicToken:  cfg.BasicToken(),
		bearerToken: cfg.SpruceBearerToken,
	}
}

// RawConversation is an upstream conversation record. Field names differ
// between endpoints and API revisions, so every plausible spelling is kept
// and normalization picks the first populated one.
type RawConversation struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Subtitle      string          `json:"subtitle"`
	Participants  []Participant   `json:"participants"`
	LastMessage   *RawLastMessage `json:"lastMessage"`
	LastMessageAt string          `json:"lastMessageAt"`
	LastActivity  string          `json:"lastActivity"`
	UpdatedAt     string          `json:"updatedAt"`
	CreatedAt     string          `json:"createdAt"`
	UnreadCount   int             `json:"unreadCount"`
	Archived      bool            `json:"archived"`
}

type Participant struct {
	DisplayName string `json:"displayName"`
	IsExternal  bool   `json:"isExternal"`
}

type RawLastMessage struct {
	Content string `json:"content"`
	Text    string `json:"text"`
	SentAt  string `json:"sentAt"`
}

// RawItem is one entry from the conversation items endpoint. Items come in
// several kinds (message, attachment, event) with partially overlapping
// schemas; see normalize.go for how they collapse into model.Message.
type RawItem struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	EventType   string          `json:"eventType"`
	Content     string          `json:"content"`
	Text        string          `json:"text"`
	Body        string          `json:"body"`
	Timestamp   string          `json:"timestamp"`
	CreatedAt   string          `json:"createdAt"`
	SentAt      string          `json:"sentAt"`
	Author      *Author         `json:"author"`
	Direction   string          `json:"direction"`
	FromPatient *bool           `json:"fromPatient"`
	Internal    bool            `json:"internal"`
	Attachments []RawAttachment `json:"attachments"`
}

type Author struct {
	DisplayName string `json:"displayName"`
}

type RawAttachment struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
}

// ConversationsPage is one page of the conversations feed.
type ConversationsPage struct {
	Conversations   []RawConversation `json:"conversations"`
	HasMore         bool              `json:"hasMore"`
	PaginationToken string            `json:"paginationToken"`
	NextPageToken   string            `json:"nextPageToken"`
}

// NextToken returns the cursor for the following page, preferring the
// explicit pagination token over the legacy next-page field.
func (p *ConversationsPage) NextToken() string {
	if p.PaginationToken != "" {
		return p.PaginationToken
	}
	return p.NextPageToken
}

// ItemsPage is one page of a conversation's items feed.
type ItemsPage struct {
	Items           []RawItem `json:"items"`
	HasMore         bool      `json:"hasMore"`
	PaginationToken string    `json:"paginationToken"`
	NextPageToken   string    `json:"nextPageToken"`
}

func (p *ItemsPage) NextToken() string {
	if p.PaginationToken != "" {
		return p.PaginationToken
	}
	return p.NextPageToken
}

// MessagesPage is the fallback messages endpoint's single-page response.
type MessagesPage struct {
	Messages []RawItem `json:"messages"`
}

func (c *Client) authorize(req *resty.Request, scheme config.AuthScheme) error {
	switch scheme {
	case config.AuthBearer:
		if c.bearerToken == "" {
			return model.ErrNoCredentials
		}
		req.SetHeader("Authorization", "Bearer "+c.bearerToken)
	default:
		if c.basicToken == "" {
			return model.ErrNoCredentials
		}
		req.SetHeader("Authorization", "Basic "+c.basicToken)
	}
	return nil
}

func (c *Client) get(ctx context.Context, scheme config.AuthScheme, path string, query map[string]string, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if err := c.authorize(req, scheme); err != nil {
		return err
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrUpstream, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return &StatusError{Code: resp.StatusCode(), Body: resp.String()}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ListConversations fetches one page of the conversations feed, ordered by
// last activity. An empty paginationToken requests the first page.
func (c *Client) ListConversations(ctx context.Context, scheme config.AuthScheme, paginationToken string, limit int) (*ConversationsPage, error) {
	q := map[string]string{"limit": fmt.Sprintf("%d", limit)}
	if paginationToken != "" {
		q["paginationToken"] = paginationToken
	}
	var page ConversationsPage
	if err := c.get(ctx, scheme, "/conversations", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListConversationItems fetches one page of a conversation's items.
func (c *Client) ListConversationItems(ctx context.Context, scheme config.AuthScheme, conversationID, paginationToken string, limit int) (*ItemsPage, error) {
	q := map[string]string{"limit": fmt.Sprintf("%d", limit)}
	if paginationToken != "" {
		q["paginationToken"] = paginationToken
	}
	var page ItemsPage
	if err := c.get(ctx, scheme, "/conversations/"+conversationID+"/items", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListConversationMessages is the single-page fallback for conversations
// whose items endpoint fails or returns nothing.
func (c *Client) ListConversationMessages(ctx context.Context, scheme config.AuthScheme, conversationID string, limit int) (*MessagesPage, error) {
	q := map[string]string{"limit": fmt.Sprintf("%d", limit)}
	var page MessagesPage
	if err := c.get(ctx, scheme, "/conversations/"+conversationID+"/messages", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// HealthPing probes the conversations endpoint with a one-item page.
// Used by the health checker; any successful round-trip counts as healthy.
func (c *Client) HealthPing(ctx context.Context) error {
	scheme := config.AuthBasic
	if c.basicToken == "" {
		scheme = config.AuthBearer
	}
	_, err := c.ListConversations(ctx, scheme, "", 1)
	return err
}

// ArchiveConversation archives the conversation upstream.
func (c *Client) ArchiveConversation(ctx context.Context, scheme config.AuthScheme, conversationID string) error {
	req := c.http.R().SetContext(ctx)
	if err := c.authorize(req, scheme); err != nil {
		return err
	}
	resp, err := req.Post("/conversations/" + conversationID + "/archive")
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrUpstream, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return &StatusError{Code: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}
