package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New(zap.NewNop(), nil)
	go h.Run(ctx)

	srv := httptest.NewServer(httptestHandler(h))
	defer srv.Close()

	a, b := dial(t, srv), dial(t, srv)
	defer a.Close()
	defer b.Close()
	waitClients(t, h, 2)

	h.Broadcast(Event{Type: TypeStatusChanged, Service: "db", Payload: map[string]string{"new_status": "critical"}})

	for _, c := range []*websocket.Conn{a, b} {
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := c.ReadMessage()
		require.NoError(t, err)
		var got Event
		require.NoError(t, json.Unmarshal(msg, &got))
		require.Equal(t, TypeStatusChanged, got.Type)
		require.Equal(t, "db", got.Service)
		require.False(t, got.Timestamp.IsZero())
	}
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New(zap.NewNop(), nil)
	go h.Run(ctx)

	srv := httptest.NewServer(httptestHandler(h))
	defer srv.Close()

	c := dial(t, srv)
	waitClients(t, h, 1)
	c.Close()
	waitClients(t, h, 0)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	h := New(zap.NewNop(), []string{"https://status.example.com"})
	ok := func(origin string) bool {
		r := httptest.NewRequest("GET", "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return h.upgrader.CheckOrigin(r)
	}
	require.True(t, ok(""))
	require.True(t, ok("https://status.example.com"))
	require.True(t, ok("http://localhost:3000"))
	require.False(t, ok("https://evil.example.org"))
}

func TestHub_BroadcastDoesNotBlockWithoutRun(t *testing.T) {
	h := New(zap.NewNop(), nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Broadcast(Event{Type: TypeCheckResult})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked")
	}
}

func httptestHandler(h *Hub) http.HandlerFunc { return h.HandleConnect }
