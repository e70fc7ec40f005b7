package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestHeartbeat_PingCarriesSequenceAndTimestamp(t *testing.T) {
	env := newTestEnv(t)
	tr := env.connect(t)
	c := env.client

	c.sendPing()
	c.sendPing()

	writes := tr.written()
	if len(writes) != 2 {
		t.Fatalf("writes = %d, want 2", len(writes))
	}
	for i, w := range writes {
		var ping pingMessage
		if err := json.Unmarshal(w, &ping); err != nil {
			t.Fatalf("decode ping %d: %v", i, err)
		}
		if ping.Type != "ping" {
			t.Errorf("type = %q, want ping", ping.Type)
		}
		if ping.ID != int64(i+1) {
			t.Errorf("id = %d, want %d", ping.ID, i+1)
		}
		if ping.Time <= 0 {
			t.Errorf("time = %v, want a unix timestamp", ping.Time)
		}
	}
}

func TestHeartbeat_PongMatchesPendingPing(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	c := env.client

	c.sendPing()
	c.onPong(context.Background(), json.RawMessage(`{"type":"pong","reply_to":1}`))

	if lag := c.Lag(); lag < 0 {
		t.Errorf("lag = %v, want >= 0", lag)
	}
	c.pingMu.Lock()
	pending := len(c.pendingPing)
	c.pingMu.Unlock()
	if pending != 0 {
		t.Errorf("pending pings = %d, want 0 after pong", pending)
	}
}

func TestHeartbeat_PongFallsBackToEchoedTime(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	c := env.client

	// A pong for a probe we no longer track still yields a lag sample from
	// the echoed issue timestamp.
	issued := time.Now().Add(-250 * time.Millisecond).UnixMilli()
	pong := fmt.Sprintf(`{"type":"pong","reply_to":99,"time":%d}`, issued)
	c.onPong(context.Background(), json.RawMessage(pong))

	if lag := c.Lag(); lag < 200*time.Millisecond {
		t.Errorf("lag = %v, want >= 200ms from echoed timestamp", lag)
	}
}

func TestHeartbeat_UnmatchableTimelessPongIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	c := env.client
	c.lagMS.Store(7)

	c.onPong(context.Background(), json.RawMessage(`{"type":"pong","reply_to":99}`))

	if got := c.lagMS.Load(); got != 7 {
		t.Errorf("lag overwritten to %d by unmatchable pong", got)
	}
}

func TestHeartbeat_LoopSendsWhileConnected(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.PingInterval = 5 * time.Millisecond
	})
	tr := env.connect(t)
	tr.push(helloFrame, msgFrame("C1", "U1", "go"))
	env.readOne(t)

	deadline := time.Now().Add(2 * time.Second)
	for {
		var pings int
		for _, w := range tr.written() {
			var ping pingMessage
			if json.Unmarshal(w, &ping) == nil && ping.Type == "ping" {
				pings++
			}
		}
		if pings >= 2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("pings = %d, want >= 2", pings)
		}
		time.Sleep(time.Millisecond)
	}
}
