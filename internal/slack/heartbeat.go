package slack

import (
	"context"
	"encoding/json"
	"time"

	"github.com/com-four/warmachine-ng/internal/metrics"
)

// startHeartbeat launches the heartbeat loop once per client lifetime. The
// loop runs independently of inbound traffic and stops only when the client
// is closed.
func (c *Client) startHeartbeat() {
	c.heartbeatOnce.Do(func() {
		go c.heartbeatLoop()
	})
}

// heartbeatLoop sends a liveness probe every ping interval while connected.
// The send is rescheduled regardless of success: a failed write during a
// disconnect is logged and the next read-loop reconnect restores the
// session.
func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.State() != StateConnected {
				continue
			}
			c.sendPing()
		}
	}
}

// sendPing writes one probe with the next heartbeat sequence id and records
// its issue time so the matching pong can be turned into a lag sample.
func (c *Client) sendPing() {
	id := c.pingSeq.Add(1)
	now := time.Now()

	c.pingMu.Lock()
	c.pendingPing[id] = now
	// Unmatched probes from a dead session would otherwise pile up.
	for pid, issued := range c.pendingPing {
		if now.Sub(issued) > 10*c.pingInterval {
			delete(c.pendingPing, pid)
		}
	}
	c.pingMu.Unlock()

	ping := pingMessage{
		ID:   id,
		Type: "ping",
		Time: float64(now.UnixMilli()),
	}
	data, err := json.Marshal(ping)
	if err != nil {
		return
	}
	if err := c.send(data); err != nil {
		c.logger.Debug("ping failed", "id", id, "err", err)
	}
}

// onPong matches a heartbeat reply to its probe by id and stores the round
// trip. Pongs for probes we no longer track fall back to the echoed issue
// timestamp.
func (c *Client) onPong(_ context.Context, raw json.RawMessage) {
	var pong struct {
		ID      int64   `json:"id"`
		ReplyTo *int64  `json:"reply_to,omitempty"`
		Time    float64 `json:"time,omitempty"`
	}
	if err := json.Unmarshal(raw, &pong); err != nil {
		c.logger.Warn("malformed pong", "err", err)
		return
	}

	id := pong.ID
	if pong.ReplyTo != nil {
		id = *pong.ReplyTo
	}

	now := time.Now()
	c.pingMu.Lock()
	issued, ok := c.pendingPing[id]
	if ok {
		delete(c.pendingPing, id)
	}
	c.pingMu.Unlock()

	var lag time.Duration
	switch {
	case ok:
		lag = now.Sub(issued)
	case pong.Time > 0:
		lag = time.Duration(float64(now.UnixMilli())-pong.Time) * time.Millisecond
	default:
		return
	}

	c.lagMS.Store(lag.Milliseconds())
	metrics.SlackLagMS.Set(lag.Milliseconds())
}
