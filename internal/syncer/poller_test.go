package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicekit/sprucesync/internal/spruce"
)

func TestPoller_DisabledWithZeroInterval(t *testing.T) {
	up := &fakeUpstream{}
	s, _ := newTestSyncer(t, up)

	p := NewPoller(s, 0, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled poller must return immediately")
	}
	assert.Equal(t, 0, up.listCalls)
}

func TestPoller_AdvancesWatermark(t *testing.T) {
	up := &fakeUpstream{pages: []*spruce.ConversationsPage{{
		Conversations: []spruce.RawConversation{
			{ID: "c1", LastActivity: "2026-03-01T10:00:00Z"},
		},
	}}}
	s, conversations := newTestSyncer(t, up)

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(s, 10*time.Millisecond, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.conversations.Len() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	require.GreaterOrEqual(t, up.listCalls, 1, "poller polls on its interval")
	_, ok := conversations.Get("c1")
	assert.True(t, ok)
	assert.Equal(t, "2026-03-01T10:00:00Z", p.watermark, "watermark advances to the newest activity seen")
}
