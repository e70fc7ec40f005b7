package plugin

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/com-four/warmachine-ng/internal/domain"
)

func giphyWithServer(t *testing.T, handler http.HandlerFunc) *Giphy {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g := NewGiphy(testLogger())
	g.Configure(map[string]string{"apiBase": srv.URL, "apiKey": "test-key"})
	return g
}

func TestGiphy_RepliesWithFirstResult(t *testing.T) {
	var gotKey, gotQuery atomic.Value
	g := giphyWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.URL.Query().Get("api_key"))
		gotQuery.Store(r.URL.Query().Get("q"))
		io.WriteString(w, `{"data": [{"images": {"original": {"url": "https://gif.example/cat.gif"}}}]}`)
	})

	conn := &fakeConn{}
	msg := domain.Message{Sender: "alice", Channel: "#general", Text: "!giphy grumpy cat"}
	if err := g.OnMessage(context.Background(), conn, msg); err != nil {
		t.Fatalf("OnMessage: %v", err)
	}

	if gotKey.Load() != "test-key" {
		t.Errorf("api_key = %v", gotKey.Load())
	}
	if gotQuery.Load() != "grumpy cat" {
		t.Errorf("q = %v", gotQuery.Load())
	}
	says := conn.said()
	if len(says) != 1 || says[0] != "https://gif.example/cat.gif" {
		t.Errorf("says = %v", says)
	}
	if conn.dests[0] != "#general" {
		t.Errorf("dest = %q, want #general", conn.dests[0])
	}
}

func TestGiphy_NoMatch(t *testing.T) {
	g := giphyWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": []}`)
	})

	conn := &fakeConn{}
	msg := domain.Message{Sender: "alice", Text: "!giphy nothing at all"}
	if err := g.OnMessage(context.Background(), conn, msg); err != nil {
		t.Fatalf("OnMessage: %v", err)
	}

	says := conn.said()
	if len(says) != 1 || says[0] != "No match for: nothing at all" {
		t.Errorf("says = %v", says)
	}
	// DM origin replies to the sender.
	if conn.dests[0] != "alice" {
		t.Errorf("dest = %q, want alice", conn.dests[0])
	}
}

func TestGiphy_IgnoresOtherMessages(t *testing.T) {
	var calls atomic.Int32
	g := giphyWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	conn := &fakeConn{}
	for _, text := range []string{"hello", "!giphyless", "!giphy ", "!giphy"} {
		if err := g.OnMessage(context.Background(), conn, domain.Message{Text: text}); err != nil {
			t.Errorf("OnMessage(%q): %v", text, err)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("api calls = %d, want 0", calls.Load())
	}
	if len(conn.said()) != 0 {
		t.Errorf("says = %v, want none", conn.said())
	}
}
