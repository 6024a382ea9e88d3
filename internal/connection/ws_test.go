package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
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

func echoWSHandler(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(msgType, data); err != nil {
			return
		}
	}
}

func testWSConfig(url string) WSConfig {
	return WSConfig{
		URL: url,
		Reconnect: ReconnectConfig{
			Timeout:       2 * time.Second,
			DelayInitial:  20 * time.Millisecond,
			DelayMax:      100 * time.Millisecond,
			BackoffFactor: 1.5,
		},
	}
}

func TestWSClient_SendAndReceive(t *testing.T) {
	server := mockWSServer(t, echoWSHandler)
	defer server.Close()

	messages := make(chan string, 16)
	client, err := NewWSClient(testWSConfig(wsURL(server)), func(data []byte) {
		messages <- string(data)
	}, Hooks{}, nil)
	if err != nil {
		t.Fatalf("NewWSClient failed: %v", err)
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	if !client.IsActive() {
		t.Error("expected IsActive after Connect")
	}

	if err := client.SendText(context.Background(), []byte(`{"op":"subscribe"}`)); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	select {
	case got := <-messages:
		if got != `{"op":"subscribe"}` {
			t.Errorf("received %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for echoed message")
	}
}

func TestWSClient_Stream(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("tick"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client, err := NewWSClient(testWSConfig(wsURL(server)), nil, Hooks{}, nil)
	if err != nil {
		t.Fatalf("NewWSClient failed: %v", err)
	}

	stream, err := client.ConnectStream(context.Background())
	if err != nil {
		t.Fatalf("ConnectStream failed: %v", err)
	}
	defer client.Disconnect()

	select {
	case msg := <-stream:
		if string(msg.Data) != "tick" {
			t.Errorf("stream message = %q, want %q", msg.Data, "tick")
		}
		if msg.ReceivedAt.IsZero() {
			t.Error("expected ReceivedAt to be set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for stream message")
	}
}

func TestWSClient_ResubscribeOnReconnect(t *testing.T) {
	var conns atomic.Int32
	replayed := make(chan string, 16)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		if conns.Add(1) == 1 {
			// Drop the first connection to force a reconnect.
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			replayed <- string(data)
		}
	})
	defer server.Close()

	cfg := testWSConfig(wsURL(server))
	cfg.Resubscribe = func() [][]byte {
		return [][]byte{[]byte(`{"op":"subscribe","channel":"trades"}`)}
	}

	client, err := NewWSClient(cfg, nil, Hooks{}, nil)
	if err != nil {
		t.Fatalf("NewWSClient failed: %v", err)
	}

	stream, err := client.ConnectStream(context.Background())
	if err != nil {
		t.Fatalf("ConnectStream failed: %v", err)
	}
	defer client.Disconnect()

	select {
	case got := <-replayed:
		if got != `{"op":"subscribe","channel":"trades"}` {
			t.Errorf("replayed frame = %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for replayed subscription")
	}

	// The stream carries a reconnected marker.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-stream:
			if msg.Reconnected {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for reconnected marker")
		}
	}
}

func TestWSClient_ReconnectMarkerPrecedesData(t *testing.T) {
	var conns atomic.Int32
	server := mockWSServer(t, func(conn *websocket.Conn) {
		if conns.Add(1) == 1 {
			// Drop the first connection to force a reconnect.
			return
		}
		// Push data as soon as the replayed subscription arrives.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte("tick"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	cfg := testWSConfig(wsURL(server))
	cfg.Resubscribe = func() [][]byte {
		return [][]byte{[]byte(`{"op":"subscribe","channel":"trades"}`)}
	}

	client, err := NewWSClient(cfg, nil, Hooks{}, nil)
	if err != nil {
		t.Fatalf("NewWSClient failed: %v", err)
	}

	stream, err := client.ConnectStream(context.Background())
	if err != nil {
		t.Fatalf("ConnectStream failed: %v", err)
	}
	defer client.Disconnect()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-stream:
			if string(msg.Data) == "tick" {
				t.Fatal("data message arrived before reconnected marker")
			}
			if !msg.Reconnected {
				continue
			}
			// Data follows the marker.
			select {
			case next := <-stream:
				if string(next.Data) != "tick" {
					t.Errorf("message after marker = %q, want %q", next.Data, "tick")
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timeout waiting for data after marker")
			}
			return
		case <-deadline:
			t.Fatal("timeout waiting for reconnected marker")
		}
	}
}

func TestWSClient_RateLimitedSend(t *testing.T) {
	server := mockWSServer(t, echoWSHandler)
	defer server.Close()

	cfg := testWSConfig(wsURL(server))
	cfg.DefaultQuota = &Quota{Rate: 2, Burst: 2}

	client, err := NewWSClient(cfg, func([]byte) {}, Hooks{}, nil)
	if err != nil {
		t.Fatalf("NewWSClient failed: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := client.SendText(context.Background(), []byte("x")); err != nil {
			t.Fatalf("SendText #%d failed: %v", i+1, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("three sends took %v, expected the third to be delayed", elapsed)
	}
}

func TestWSClient_PingForwarding(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteControl(websocket.PingMessage, []byte("probe"), time.Now().Add(time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	pings := make(chan string, 16)
	cfg := testWSConfig(wsURL(server))
	cfg.PingHandler = func(data []byte) {
		pings <- string(data)
	}

	client, err := NewWSClient(cfg, func([]byte) {}, Hooks{}, nil)
	if err != nil {
		t.Fatalf("NewWSClient failed: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	select {
	case got := <-pings:
		if got != "probe" {
			t.Errorf("ping payload = %q, want %q", got, "probe")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for forwarded ping")
	}
}

func TestWSClient_DisconnectIsIdempotent(t *testing.T) {
	server := mockWSServer(t, echoWSHandler)
	defer server.Close()

	client, err := NewWSClient(testWSConfig(wsURL(server)), func([]byte) {}, Hooks{}, nil)
	if err != nil {
		t.Fatalf("NewWSClient failed: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := client.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if err := client.Disconnect(); err != nil {
		t.Fatalf("second Disconnect failed: %v", err)
	}

	if !client.IsDisconnected() {
		t.Error("expected IsDisconnected after Disconnect")
	}
	if err := client.SendText(context.Background(), []byte("late")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendText after Disconnect = %v, want ErrNotConnected", err)
	}
}

func TestWSClient_HeaderValidation(t *testing.T) {
	cfg := testWSConfig("ws://localhost:1")
	cfg.Headers = []Header{{Name: "bad name", Value: "v"}}
	if _, err := NewWSClient(cfg, nil, Hooks{}, nil); !errors.Is(err, ErrBadConfig) {
		t.Errorf("invalid header name: err = %v, want ErrBadConfig", err)
	}

	cfg = testWSConfig("ws://localhost:1")
	cfg.Headers = []Header{{Name: "X-Auth", Value: "bad\r\nvalue"}}
	if _, err := NewWSClient(cfg, nil, Hooks{}, nil); !errors.Is(err, ErrBadConfig) {
		t.Errorf("invalid header value: err = %v, want ErrBadConfig", err)
	}
}
