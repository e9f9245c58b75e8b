package ledgerd

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"leadfive/core/events"
	"leadfive/core/ledger"
	"leadfive/core/types"
)

func TestHubFiltersAndDrops(t *testing.T) {
	hub := NewHub()
	all, cancelAll := hub.Subscribe()
	defer cancelAll()
	paused, cancelPaused := hub.Subscribe(events.TypeLedgerPaused)
	defer cancelPaused()
	require.Equal(t, 2, hub.Subscribers())

	hub.Emit(events.ParticipantStatus{ID: addr(1), Active: false})
	hub.Emit(events.LedgerPaused{Paused: true})

	require.Equal(t, events.TypeParticipantStatus, (<-all).Type)
	require.Equal(t, events.TypeLedgerPaused, (<-all).Type)
	evt := <-paused
	require.Equal(t, events.TypeLedgerPaused, evt.Type)
	require.Equal(t, "true", evt.Attr("paused"))
	require.Len(t, paused, 0)

	// A full queue drops instead of blocking the writer.
	for i := 0; i < subscriberQueueSize+5; i++ {
		hub.Emit(events.LedgerPaused{Paused: i%2 == 0})
	}
	require.Len(t, all, subscriberQueueSize)

	cancelAll()
	cancelAll()
	require.Equal(t, 1, hub.Subscribers())
}

func TestEventStreamDeliversCommittedEvents(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.server.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events?types=" + events.TypeContribution
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool { return h.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.seq.Do(ctx, func(e *ledger.Engine) error {
		_, err := e.Contribute(ctx, ledger.Contribution{Payer: addr(2), Tier: 1, Referrer: ptr(addr(1))})
		return err
	}))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var evt types.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, events.TypeContribution, evt.Type)
	require.Equal(t, strings.ToLower(addr(2).Hex()), strings.ToLower(evt.Attr("payer")))
	require.Equal(t, units(30).String(), evt.Attr("amount"))
}

func ptr[T any](v T) *T { return &v }
