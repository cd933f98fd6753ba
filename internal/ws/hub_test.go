package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampfilter/internal/models"
)

func TestHubStreamsEvents(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Give the hub a moment to register the client.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), &models.Event{
		DeviceID:          1,
		Filter:            "Ia > 5",
		ThresholdAchieved: true,
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev models.Event
	require.NoError(t, json.Unmarshal(message, &ev))
	assert.Equal(t, 1, ev.DeviceID)
	assert.Equal(t, "Ia > 5", ev.Filter)
	assert.True(t, ev.ThresholdAchieved)
}

func TestHubClientDetachAfterShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx) // returns immediately and closes the done channel

	// A pump noticing a dead connection after shutdown must not block
	// on the unregister channel nobody reads anymore.
	detached := make(chan struct{})
	go func() {
		hub.drop(&Client{})
		close(detached)
	}()

	select {
	case <-detached:
	case <-time.After(time.Second):
		t.Fatal("client detach blocked after hub shutdown")
	}
}

func TestHubPublishWithoutClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// No clients connected; publishing is still a successful no-op.
	err := hub.Publish(context.Background(), &models.Event{DeviceID: 2, Filter: "Ic = 8"})
	assert.NoError(t, err)
}
