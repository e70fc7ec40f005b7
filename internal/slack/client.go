// Package slack implements a long-lived connector to the Slack real-time
// messaging API: it authenticates via rtm.start, keeps one streaming
// session alive with heartbeats and an infinite reconnect loop, maintains
// local identity caches, and hands normalized messages to the caller.
package slack

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/com-four/warmachine-ng/internal/domain"
	"github.com/com-four/warmachine-ng/internal/metrics"
)

// State is the lifecycle position of the connector.
type State int32

const (
	StateUninitialized State = iota
	StateConnecting
	StateConnected
)

const (
	defaultAPIBase       = "https://slack.com/api"
	defaultReconnectWait = 300 * time.Second
	defaultPingInterval  = 4 * time.Second
)

// Config configures a Client. Only Token is required.
type Config struct {
	Token string

	// APIBase overrides the HTTP API root. Used by tests.
	APIBase string
	// ReconnectWait is the fixed pause between reconnect attempts.
	ReconnectWait time.Duration
	// PingInterval is the heartbeat period.
	PingInterval time.Duration

	Logger     *slog.Logger
	HTTPClient *http.Client
	// Dial opens the streaming session. Defaults to the websocket dialer;
	// tests substitute in-process transports.
	Dial func(ctx context.Context, url string) (Transport, error)
}

// Client owns one streaming session at a time and everything scoped to it:
// the directory cache, the DM resolver, the event dispatcher, and the
// heartbeat loop. It implements domain.Connection.
type Client struct {
	token  string
	api    *apiClient
	dial   func(ctx context.Context, url string) (Transport, error)
	logger *slog.Logger

	reconnectWait time.Duration
	pingInterval  time.Duration

	state atomic.Int32

	// connMu serializes every transport write and guards the connection
	// swap during reconnect, so a write mid-reconnect fails fast instead
	// of corrupting framing.
	connMu sync.Mutex
	conn   Transport

	directory *Directory
	dms       *DMResolver
	dispatch  *Dispatcher

	// Separate id namespaces: one for outbound messages, one for pings.
	// Process-lifetime state, never reset by reconnect.
	msgSeq  atomic.Int64
	pingSeq atomic.Int64

	pingMu      sync.Mutex
	pendingPing map[int64]time.Time
	lagMS       atomic.Int64

	heartbeatOnce sync.Once
	closeOnce     sync.Once
	done          chan struct{}
}

// NewClient builds a client and registers the built-in event handlers.
func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = defaultReconnectWait
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	c := &Client{
		token: cfg.Token,
		api: &apiClient{
			baseURL: cfg.APIBase,
			token:   cfg.Token,
			httpc:   cfg.HTTPClient,
			logger:  cfg.Logger,
		},
		dial:          cfg.Dial,
		logger:        cfg.Logger,
		reconnectWait: cfg.ReconnectWait,
		pingInterval:  cfg.PingInterval,
		directory:     NewDirectory(cfg.Logger),
		dispatch:      NewDispatcher(cfg.Logger),
		pendingPing:   make(map[int64]time.Time),
		done:          make(chan struct{}),
	}
	if c.dial == nil {
		c.dial = dialWebsocket
	}
	c.dms = NewDMResolver(c.api.openIM, cfg.Logger)

	c.dispatch.Register("hello", c.onHello)
	c.dispatch.Register("pong", c.onPong)
	c.dispatch.Register("user_change", c.onUserChange)
	c.dispatch.Register("presence_change", c.onPresenceChange)
	c.dispatch.Register("channel_joined", c.onChannelJoined)
	c.dispatch.Register("group_joined", c.onGroupJoined)
	// Experimental upstream event, intentionally ignored.
	c.dispatch.Register("reconnect_url", func(context.Context, json.RawMessage) {})

	return c
}

// ID identifies this connection by a digest of its credential, stable
// across restarts.
func (c *Client) ID() string {
	return fmt.Sprintf("%x", md5.Sum([]byte(c.token)))
}

// State reports the current lifecycle position.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Lag returns the last measured heartbeat round trip.
func (c *Client) Lag() time.Duration {
	return time.Duration(c.lagMS.Load()) * time.Millisecond
}

// Directory exposes the identity cache for collaborators that only read
// already-cached state.
func (c *Client) Directory() *Directory {
	return c.directory
}

// Connect authenticates, seeds the directory from the bootstrap payload,
// and opens the streaming session. The session becomes CONNECTED when the
// backend's hello event arrives on the stream.
func (c *Client) Connect(ctx context.Context) error {
	c.state.Store(int32(StateConnecting))

	b, err := c.api.rtmStart(ctx)
	if err != nil {
		c.logger.Error("error authenticating to slack", "err", err)
		return err
	}
	c.directory.Seed(b)

	c.logger.Info("connecting to slack", "url", b.URL)
	conn, err := c.dial(ctx, b.URL)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.connMu.Unlock()

	return nil
}

// Read blocks until the next user-authored message. Acks, typeless
// envelopes, dispatched events, and intercepted built-in commands are all
// consumed internally. On transport closure it reconnects forever, spaced
// by the fixed wait; a long-lived bot has no better fallback than waiting
// for connectivity to return.
func (c *Client) Read(ctx context.Context) (domain.Message, error) {
	for {
		select {
		case <-ctx.Done():
			return domain.Message{}, ctx.Err()
		default:
		}

		conn := c.currentConn()
		if conn == nil {
			return domain.Message{}, ErrTransportClosed
		}

		data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Error("slack transport closed", "err", err)
			c.state.Store(int32(StateConnecting))
			if rerr := c.reconnect(ctx); rerr != nil {
				return domain.Message{}, rerr
			}
			continue
		}
		metrics.EnvelopesTotal.Inc()

		msg, ok, err := c.handleEnvelope(ctx, data)
		if err != nil {
			metrics.EventsDropped.Inc()
			c.logger.Warn("dropping envelope", "err", err)
			continue
		}
		if ok {
			return msg, nil
		}
	}
}

// handleEnvelope classifies one decoded envelope. It returns a normalized
// message and true only for plain user-authored text messages that were not
// intercepted by a built-in command.
func (c *Client) handleEnvelope(ctx context.Context, data []byte) (domain.Message, bool, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.Message{}, false, fmt.Errorf("malformed envelope: %w", err)
	}

	if env.Type == "" {
		if env.ReplyTo != nil {
			// Ack for a message we sent.
			return domain.Message{}, false, nil
		}
		metrics.EventsDropped.Inc()
		c.logger.Error("received typeless envelope", "payload", string(data))
		return domain.Message{}, false, nil
	}

	if env.Type == "message" && env.Subtype == "" {
		var body messageEvent
		if err := json.Unmarshal(data, &body); err != nil {
			return domain.Message{}, false, fmt.Errorf("malformed message: %w", err)
		}
		return c.processMessage(ctx, &body)
	}

	c.dispatch.Dispatch(ctx, dispatchKey(env.Type, env.Subtype), data)
	return domain.Message{}, false, nil
}

// processMessage normalizes a plain text message and intercepts the
// built-in commands. Unresolvable user or channel ids surface as
// ErrNotFound so the read loop can log and drop the envelope.
func (c *Client) processMessage(ctx context.Context, body *messageEvent) (domain.Message, bool, error) {
	sender, err := c.directory.UserNameByID(body.User)
	if err != nil {
		return domain.Message{}, false, fmt.Errorf("normalize message: %w", err)
	}

	channel := ""
	if !strings.HasPrefix(body.Channel, "D") {
		name, err := c.directory.ChannelNameByID(body.Channel)
		if err != nil {
			return domain.Message{}, false, fmt.Errorf("normalize message: %w", err)
		}
		channel = "#" + name
	}

	msg := domain.Message{Sender: sender, Channel: channel, Text: body.Text}

	switch {
	case strings.HasPrefix(msg.Text, "!whois"):
		c.handleWhois(ctx, msg)
		return domain.Message{}, false, nil
	case strings.HasPrefix(msg.Text, "!slack-lag"):
		if err := c.Say(ctx, fmt.Sprintf("%dms", c.lagMS.Load()), msg.ReplyTarget()); err != nil {
			c.logger.Warn("cannot report lag", "err", err)
		}
		return domain.Message{}, false, nil
	}

	metrics.MessagesTotal.Inc()
	return msg, true, nil
}

// handleWhois answers "!whois name..." with the cached record of each named
// user.
func (c *Client) handleWhois(ctx context.Context, msg domain.Message) {
	target := msg.ReplyTarget()
	for _, name := range strings.Fields(msg.Text)[1:] {
		id, err := c.directory.UserIDByName(name)
		if err != nil {
			c.logger.Warn("whois for unknown user", "name", name)
			if err := c.Say(ctx, fmt.Sprintf("I don't know %s", name), target); err != nil {
				c.logger.Warn("whois reply failed", "err", err)
			}
			continue
		}
		u, err := c.directory.UserByID(id)
		if err != nil {
			continue
		}
		if err := c.Say(ctx, formatUser(u), target); err != nil {
			c.logger.Warn("whois reply failed", "err", err)
		}
	}
}

// Say resolves destination to a concrete channel id and writes a message
// envelope with the next sequence id. Destinations that resolve to a bot or
// deleted account are logged and dropped; the backend forbids bot-to-bot
// delivery. A DM that cannot be opened is undeliverable and also dropped
// after logging.
func (c *Client) Say(ctx context.Context, text, destination string) error {
	var channelID string

	if strings.HasPrefix(destination, "#") {
		id, err := c.directory.ChannelIDByName(strings.TrimPrefix(destination, "#"))
		if err != nil {
			c.logger.Error("cannot resolve channel", "destination", destination, "err", err)
			return err
		}
		channelID = id
	} else {
		userID, err := c.directory.UserIDByName(destination)
		if err != nil {
			c.logger.Error("cannot resolve user", "destination", destination, "err", err)
			return err
		}
		u, err := c.directory.UserByID(userID)
		if err != nil {
			return err
		}
		if u.IsBot || u.Deleted {
			c.logger.Warn("dropping message to undeliverable user",
				"user", destination, "is_bot", u.IsBot, "deleted", u.Deleted)
			return nil
		}
		dm, err := c.dms.Resolve(ctx, userID)
		if err != nil {
			c.logger.Error("message undeliverable, cannot open dm", "user", destination, "err", err)
			return nil
		}
		channelID = dm
	}

	out := outboundMessage{
		ID:      c.msgSeq.Add(1),
		Type:    "message",
		Channel: channelID,
		Text:    text,
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	c.logger.Debug("saying", "channel", channelID, "id", out.ID)
	if err := c.send(data); err != nil {
		return err
	}
	metrics.OutboundTotal.Inc()
	return nil
}

// UsersInChannel returns the display names of a channel's members,
// resolving ids through the directory. Unknown ids are skipped.
func (c *Client) UsersInChannel(ctx context.Context, channel string) ([]string, error) {
	id, err := c.directory.ChannelIDByName(strings.TrimPrefix(channel, "#"))
	if err != nil {
		return nil, err
	}
	memberIDs, err := c.api.channelMembers(ctx, id)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(memberIDs))
	for _, uid := range memberIDs {
		name, err := c.directory.UserNameByID(uid)
		if err != nil {
			c.logger.Warn("roster member not in directory", "user", uid)
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Close tears down the streaming session and stops the heartbeat loop.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// send is the single point of transport write; messages and heartbeats both
// funnel through here so framing stays serialized per connection.
func (c *Client) send(data []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrTransportClosed
	}
	if err := c.conn.WriteMessage(data); err != nil {
		return fmt.Errorf("transport write: %w", err)
	}
	return nil
}

func (c *Client) currentConn() Transport {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

// reconnect retries Connect forever, pausing the fixed wait between
// attempts. Connectivity is assumed to eventually return, or the process is
// terminated externally; only context cancellation breaks the loop.
func (c *Client) reconnect(ctx context.Context) error {
	for {
		metrics.ReconnectsTotal.Inc()
		if err := c.Connect(ctx); err == nil {
			c.logger.Info("reconnected to slack")
			return nil
		}
		c.logger.Warn("trying to reconnect...", "wait", c.reconnectWait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrTransportClosed
		case <-time.After(c.reconnectWait):
		}
	}
}

func (c *Client) onHello(ctx context.Context, _ json.RawMessage) {
	_, nick := c.directory.Self()
	c.logger.Info("connected to slack", "nick", nick)
	c.state.Store(int32(StateConnected))
	c.startHeartbeat()
}

func (c *Client) onUserChange(_ context.Context, raw json.RawMessage) {
	var payload struct {
		User User `json:"user"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.User.ID == "" {
		c.logger.Warn("malformed user_change event", "err", err)
		return
	}
	c.directory.ApplyUserChange(payload.User)
}

func (c *Client) onPresenceChange(_ context.Context, raw json.RawMessage) {
	var payload struct {
		User     string `json:"user"`
		Presence string `json:"presence"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.User == "" {
		c.logger.Warn("malformed presence_change event", "err", err)
		return
	}
	c.directory.ApplyPresenceChange(payload.User, payload.Presence)
}

func (c *Client) onChannelJoined(_ context.Context, raw json.RawMessage) {
	c.addJoinedChannel(raw, KindChannel)
}

func (c *Client) onGroupJoined(_ context.Context, raw json.RawMessage) {
	c.addJoinedChannel(raw, KindGroup)
}

func (c *Client) addJoinedChannel(raw json.RawMessage, kind ChannelKind) {
	var payload struct {
		Channel Channel `json:"channel"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Channel.ID == "" {
		c.logger.Warn("malformed joined event", "err", err)
		return
	}
	payload.Channel.Kind = kind
	c.directory.AddChannel(payload.Channel)
}

// formatUser renders a cached user record for !whois, one attribute per
// line in key order.
func formatUser(u User) string {
	if len(u.Raw) == 0 {
		return fmt.Sprintf("%s (%s)", u.Name, u.ID)
	}
	keys := make([]string, 0, len(u.Raw))
	for k := range u.Raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %v\n", k, u.Raw[k])
	}
	return strings.TrimRight(sb.String(), "\n")
}
