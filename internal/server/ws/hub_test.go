package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

type chanBus struct {
	ch chan []byte
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }

func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) { return b.ch, nil }

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubRelaysSubscribedEvents(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 8)}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Channels: []string{"signals"}, Mode: "Run"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	status := readEvent(t, conn)
	assert.Equal(t, "status", status["event"])
	assert.Equal(t, "run", status["data"].(map[string]any)["mode"])

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "subscribe", Events: []string{"consensus"}}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if !c.wants("new_trade") {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	bus.ch <- []byte(`{"event":"new_trade","data":{}}`)
	bus.ch <- []byte(`{"event":"consensus","data":{"asset":"BTC"}}`)

	got := readEvent(t, conn)
	assert.Equal(t, "consensus", got["event"])
}

func TestEventType(t *testing.T) {
	assert.Equal(t, "consensus", eventType([]byte(`{"event":"consensus"}`)))
	assert.Empty(t, eventType([]byte(`[1,2]`)))
}
