package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chain-sentinel/internal/schema"
)

var upgrader = websocket.Upgrader{}

// fakeGateway accepts one connection, checks the token, and replays frames.
func fakeGateway(t *testing.T, token string, frames ...string) string {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env struct {
			Token string `json:"token"`
		}
		if json.Unmarshal(frame, &env) != nil || env.Token != token {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(4401, "invalid token"))
			return
		}

		conn.WriteMessage(websocket.TextMessage, []byte(`{"status":"authenticated"}`))
		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(100 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDialAndReceive(t *testing.T) {
	url := fakeGateway(t, "tok",
		`{"id":"3b7e3b1e-0000-4000-8000-000000000001","rule_name":"whale","severity":"high","blockchain":"ethereum"}`,
		`not json, skipped`,
		`{"id":"3b7e3b1e-0000-4000-8000-000000000002","rule_name":"watched","severity":"low","blockchain":"polygon"}`,
	)

	client, err := Dial(context.Background(), url, "tok")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	var got []*schema.FiredAlert
	for alert := range client.Alerts() {
		got = append(got, alert)
	}

	if len(got) != 2 {
		t.Fatalf("received %d alerts, want 2 (non-alert frames skipped)", len(got))
	}
	if got[0].RuleName != "whale" || got[1].RuleName != "watched" {
		t.Errorf("alerts = %q, %q", got[0].RuleName, got[1].RuleName)
	}
	if err := client.Err(); err != nil {
		t.Errorf("normal closure should leave no error, got %v", err)
	}
}

func TestDialRejectedToken(t *testing.T) {
	url := fakeGateway(t, "tok")

	_, err := Dial(context.Background(), url, "wrong")
	if !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("Dial with bad token = %v, want ErrAuthRejected", err)
	}
}

func TestDialUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if _, err := Dial(ctx, "ws://localhost:1/ws/alerts", "tok"); err == nil {
		t.Fatal("expected dial error for unreachable server")
	}
}
