package ws

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConnectionClosesSocketWhenViewerLeaves(t *testing.T) {
	accepted := make(chan *Connection, 1)
	closed := make(chan string, 1)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewConnection("viewer-1", conn, time.Second, zap.NewNop(), func(id string) { closed <- id })
		accepted <- c
		go c.Start(context.Background())
	}))
	defer srv.Close()

	client := dialViewer(t, srv)
	var c *Connection
	select {
	case c = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("viewer was not accepted")
	}

	require.NoError(t, client.Close())
	select {
	case id := <-closed:
		require.Equal(t, "viewer-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("viewer was not cleaned up")
	}

	_, err := c.ws.UnderlyingConn().Write([]byte("x"))
	require.ErrorIs(t, err, net.ErrClosed)
	require.False(t, c.Send([]byte("late")))
}
