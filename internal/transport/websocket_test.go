package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSDialer_Dial(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	d := NewWSDialer(DefaultWSConfig(), nil)

	conn, err := d.Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if !conn.IsOpen() {
		t.Error("expected IsOpen to return true")
	}

	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if conn.IsOpen() {
		t.Error("expected IsOpen to return false after Close")
	}
}

func TestWSDialer_DialFailure(t *testing.T) {
	d := NewWSDialer(WSConfig{HandshakeTimeout: 500 * time.Millisecond}, nil)

	if _, err := d.Dial(context.Background(), "ws://127.0.0.1:1/nothing"); err == nil {
		t.Fatal("Dial expected error for unreachable server")
	}
}

func TestWSConn_Send(t *testing.T) {
	var mu sync.Mutex
	var received []byte

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})
	defer server.Close()

	d := NewWSDialer(DefaultWSConfig(), nil)
	conn, err := d.Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	want := []byte(`{"type":"ping","timestamp":1}`)
	if err := conn.Send(want); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Wait for the server to receive it
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		got := string(received)
		mu.Unlock()
		if got == string(want) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server received %q, want %q", got, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSConn_SendAfterClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	d := NewWSDialer(DefaultWSConfig(), nil)
	conn, err := d.Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	conn.Close()

	if err := conn.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("Send error = %v, want ErrNotConnected", err)
	}
}

func TestWSConn_Receive(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","id":"m1"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	d := NewWSDialer(DefaultWSConfig(), nil)
	conn, err := d.Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case msg := <-conn.Messages():
		if !strings.Contains(string(msg.Data), `"id":"m1"`) {
			t.Errorf("unexpected message: %s", msg.Data)
		}
		if msg.ReceivedAt.IsZero() {
			t.Error("expected ReceivedAt to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestWSConn_ServerCloseReportsError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Drop the connection immediately
	})
	defer server.Close()

	d := NewWSDialer(DefaultWSConfig(), nil)
	conn, err := d.Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case <-conn.Errors():
		// expected
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connection error")
	}

	if conn.IsOpen() {
		t.Error("expected IsOpen to return false after server close")
	}
}
