package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicekit/sprucesync/internal/model"
	"github.com/practicekit/sprucesync/internal/store"
)

// --- Fakes ---

type fakeSyncService struct {
	fullSyncs    int
	fullSyncErr  error
	onFullSync   func()
	updates      []model.ConversationSummary
	updatesErr   error
	gotSince     string
	history      []model.Message
	historyErr   error
	gotHistoryID string
	archived     []string
	archiveErr   error
}

func (f *fakeSyncService) FullSync(ctx context.Context) (int, error) {
	f.fullSyncs++
	if f.onFullSync != nil {
		f.onFullSync()
	}
	return 0, f.fullSyncErr
}

func (f *fakeSyncService) IncrementalUpdate(ctx context.Context, since string) ([]model.ConversationSummary, error) {
	f.gotSince = since
	return f.updates, f.updatesErr
}

func (f *fakeSyncService) History(ctx context.Context, conversationID string) ([]model.Message, error) {
	f.gotHistoryID = conversationID
	return f.history, f.historyErr
}

func (f *fakeSyncService) Archive(ctx context.Context, conversationID string) error {
	f.archived = append(f.archived, conversationID)
	return f.archiveErr
}

func testServer(t *testing.T, svc SyncService, conversations *store.ConversationStore) *httptest.Server {
	t.Helper()
	h := NewConversationHandler(svc, conversations, zerolog.Nop())
	r := mux.NewRouter()
	r.HandleFunc("/api/conversations", h.ListConversations).Methods("GET")
	r.HandleFunc("/api/sync", h.Sync).Methods("POST")
	r.HandleFunc("/api/updates", h.Updates).Methods("GET")
	r.HandleFunc("/api/history/{conversationId}", h.History).Methods("GET")
	r.HandleFunc("/api/archive/{conversationId}", h.Archive).Methods("POST")
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func emptyConvStore(t *testing.T) *store.ConversationStore {
	t.Helper()
	return store.OpenConversations(filepath.Join(t.TempDir(), "conversations.json"), zerolog.Nop())
}

// --- Tests ---

func TestListConversations_ColdCacheTriggersSync(t *testing.T) {
	conversations := emptyConvStore(t)
	svc := &fakeSyncService{}
	svc.onFullSync = func() {
		conversations.ReplaceAll([]model.ConversationSummary{{ID: "c1", PatientName: "Ana"}})
	}
	srv := testServer(t, svc, conversations)

	resp, err := http.Get(srv.URL + "/api/conversations")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, svc.fullSyncs)

	var body struct {
		Conversations []model.ConversationSummary `json:"conversations"`
		Count         int                         `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "c1", body.Conversations[0].ID)
}

func TestListConversations_WarmCacheSkipsSync(t *testing.T) {
	conversations := emptyConvStore(t)
	conversations.ReplaceAll([]model.ConversationSummary{{ID: "c1"}})
	svc := &fakeSyncService{}
	srv := testServer(t, svc, conversations)

	resp, err := http.Get(srv.URL + "/api/conversations")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, 0, svc.fullSyncs, "warm cache must be served without an upstream trip")
}

func TestListConversations_ColdCacheSyncFailure(t *testing.T) {
	svc := &fakeSyncService{fullSyncErr: errors.New("upstream down")}
	srv := testServer(t, svc, emptyConvStore(t))

	resp, err := http.Get(srv.URL + "/api/conversations")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestSync_ReturnsCount(t *testing.T) {
	conversations := emptyConvStore(t)
	svc := &fakeSyncService{}
	srv := testServer(t, svc, conversations)

	resp, err := http.Post(srv.URL+"/api/sync", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, 1, svc.fullSyncs)
}

func TestUpdates_PassesSinceAndWrapsResult(t *testing.T) {
	svc := &fakeSyncService{updates: []model.ConversationSummary{{ID: "c9"}}}
	srv := testServer(t, svc, emptyConvStore(t))

	resp, err := http.Get(srv.URL + "/api/updates?since=2026-03-01T10:00:00Z")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2026-03-01T10:00:00Z", svc.gotSince)

	var body struct {
		Count         int                         `json:"count"`
		Conversations []model.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
}

func TestUpdates_EmptyResultIsEmptyArray(t *testing.T) {
	svc := &fakeSyncService{}
	srv := testServer(t, svc, emptyConvStore(t))

	resp, err := http.Get(srv.URL + "/api/updates")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.JSONEq(t, "[]", string(body["conversations"]), "null would break the dashboard")
}

func TestHistory_ReturnsUnwrappedList(t *testing.T) {
	svc := &fakeSyncService{history: []model.Message{{ID: "m1"}, {ID: "m2"}}}
	srv := testServer(t, svc, emptyConvStore(t))

	resp, err := http.Get(srv.URL + "/api/history/conv-1")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "conv-1", svc.gotHistoryID)

	var msgs []model.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msgs))
	assert.Len(t, msgs, 2)
}

func TestHistory_UpstreamFailure(t *testing.T) {
	svc := &fakeSyncService{historyErr: errors.New("both endpoints down")}
	srv := testServer(t, svc, emptyConvStore(t))

	resp, err := http.Get(srv.URL + "/api/history/conv-1")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestArchive(t *testing.T) {
	svc := &fakeSyncService{}
	srv := testServer(t, svc, emptyConvStore(t))

	resp, err := http.Post(srv.URL+"/api/archive/conv-1", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"conv-1"}, svc.archived)
}
