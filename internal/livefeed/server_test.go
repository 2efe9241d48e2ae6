package livefeed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap/zaptest"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{Addr: "127.0.0.1:0", Logger: zaptest.NewLogger(t)})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func waitClients(t *testing.T, server *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", server.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Addr: "127.0.0.1:0"})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if server.Addr() == "127.0.0.1:0" {
		t.Error("Addr() should report the bound port")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestPublishReachesAllClients(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := dial(t, ctx, server)
	b := dial(t, ctx, server)
	waitClients(t, server, 2)

	server.Publish(Message{Type: MessageTypeSnapshot, Topic: "u1/trade", Data: json.RawMessage(`{"records":[]}`)})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeSnapshot || msg.Topic != "u1/trade" {
			t.Errorf("got %s %q, want snapshot u1/trade", msg.Type, msg.Topic)
		}
		if msg.Timestamp.IsZero() {
			t.Error("Timestamp should be set")
		}
	}
}

func TestLateClientGetsLatestPerTopic(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// A connected client makes sure all publishes went through the loop.
	first := dial(t, ctx, server)
	waitClients(t, server, 1)
	server.Publish(Message{Type: MessageTypeSnapshot, Topic: "u1/trade", Data: json.RawMessage(`1`)})
	server.Publish(Message{Type: MessageTypeSnapshot, Topic: "u1/tag", Data: json.RawMessage(`2`)})
	server.Publish(Message{Type: MessageTypeSnapshot, Topic: "u1/trade", Data: json.RawMessage(`3`)})
	for i := 0; i < 3; i++ {
		readMessage(t, ctx, first)
	}

	late := dial(t, ctx, server)
	want := []struct{ topic, data string }{{"u1/tag", "2"}, {"u1/trade", "3"}}
	for _, w := range want {
		msg := readMessage(t, ctx, late)
		if msg.Topic != w.topic || string(msg.Data) != w.data {
			t.Errorf("replayed %q %s, want %q %s", msg.Topic, msg.Data, w.topic, w.data)
		}
	}
}

func TestClientDisconnect(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	waitClients(t, server, 1)
	_ = conn.Close(websocket.StatusNormalClosure, "")
	waitClients(t, server, 0)
}
