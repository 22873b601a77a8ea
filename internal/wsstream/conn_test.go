package wsstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectSendReceive(t *testing.T) {
	srv := echoServer(t)
	c := New(Config{URL: wsURL(srv)})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if !c.IsConnected() {
		t.Fatal("IsConnected = false after Connect")
	}
	if err := c.Send([]byte(`{"hello":1}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := c.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(data) != `{"hello":1}` {
		t.Errorf("echoed %q", data)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := echoServer(t)
	c := New(Config{URL: wsURL(srv)})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected = true after Close")
	}

	select {
	case <-c.Done():
	default:
		t.Error("Done not closed after Close")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	srv := echoServer(t)
	c := New(Config{URL: wsURL(srv)})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c.Close()
	if err := c.Send([]byte("x")); err == nil {
		t.Error("Send after Close succeeded")
	}
}

func TestReceiveHonorsContext(t *testing.T) {
	srv := echoServer(t)
	c := New(Config{URL: wsURL(srv)})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Receive(ctx); err != context.DeadlineExceeded {
		t.Errorf("Receive err = %v, want deadline exceeded", err)
	}
}

func TestConnectWithRetryGivesUp(t *testing.T) {
	c := New(Config{
		URL:            "ws://127.0.0.1:1", // nothing listens here
		DialTimeout:    200 * time.Millisecond,
		MaxRetries:     2,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	})
	start := time.Now()
	err := c.ConnectWithRetry(context.Background())
	if err == nil {
		t.Fatal("expected error dialing dead address")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("err = %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("retry loop took too long")
	}
}
