package live

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/codespace/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

func newLiveServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.With(identity.Middleware).Handle("/ws/codespaces/{id}", NewWebSocketHandler(hub, HandlerConfig{IsDev: true}))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/codespaces/" + id
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, id string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Count(id) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers for %s, have %d", n, id, hub.Count(id))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketReceivesNotifications(t *testing.T) {
	hub := NewHub(8, nil)
	srv := newLiveServer(t, hub)
	conn := dial(t, srv, "demo")
	waitForSubscribers(t, hub, "demo", 1)

	src := "export default function App(){return null}"
	hub.Notify(Notification{SessionID: "demo", Version: 1, Fields: Fields{Source: &src}})
	hub.Notify(Notification{SessionID: "demo", Version: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for want := int64(1); want <= 2; want++ {
		var got Notification
		if err := wsjson.Read(ctx, conn, &got); err != nil {
			t.Fatalf("read: %v", err)
		}
		if got.SessionID != "demo" || got.Version != want {
			t.Fatalf("expected demo@%d, got %+v", want, got)
		}
		if want == 1 && (got.Fields.Source == nil || *got.Fields.Source != src) {
			t.Fatalf("expected source in first frame, got %+v", got.Fields)
		}
	}
}

func TestWebSocketSlowConsumerClose(t *testing.T) {
	hub := NewHub(1, nil)
	srv := newLiveServer(t, hub)
	conn := dial(t, srv, "demo")
	waitForSubscribers(t, hub, "demo", 1)

	hub.mu.RLock()
	var sub *Subscriber
	for _, s := range hub.sessions["demo"] {
		sub = s
	}
	hub.mu.RUnlock()
	hub.remove(sub, ErrSlowConsumer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Fatalf("expected close 1008, got %v", err)
	}
}

func TestWebSocketRejectsInvalidID(t *testing.T) {
	hub := NewHub(1, nil)
	srv := newLiveServer(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/codespaces/bad%20id"
	_, resp, err := websocket.Dial(ctx, url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != 400 {
		t.Fatalf("expected 400 response, got %+v", resp)
	}
}

func TestWebSocketOriginCheck(t *testing.T) {
	h := NewWebSocketHandler(NewHub(1, nil), HandlerConfig{AllowedOrigin: "https://app.example"})
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	if h.checkOrigin(req) {
		t.Fatal("expected foreign origin to be rejected")
	}
	req.Header.Set("Origin", "https://app.example")
	if !h.checkOrigin(req) {
		t.Fatal("expected configured origin to be accepted")
	}
}
