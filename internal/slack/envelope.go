package slack

import "encoding/json"

// ChannelKind distinguishes the three conversation flavors slack merges
// into one id space.
type ChannelKind int

const (
	KindChannel ChannelKind = iota
	KindGroup
	KindDM
)

// User is a cached team member record. Known fields are promoted for fast
// access; the full record is kept in Raw so commands like !whois can render
// attributes this connector does not otherwise care about.
type User struct {
	ID       string
	Name     string
	Presence string
	IsBot    bool
	Deleted  bool
	Raw      map[string]any
}

func (u *User) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.Raw = raw
	if s, ok := raw["id"].(string); ok {
		u.ID = s
	}
	if s, ok := raw["name"].(string); ok {
		u.Name = s
	}
	if s, ok := raw["presence"].(string); ok {
		u.Presence = s
	}
	if b, ok := raw["is_bot"].(bool); ok {
		u.IsBot = b
	}
	if b, ok := raw["deleted"].(bool); ok {
		u.Deleted = b
	}
	return nil
}

// Channel is a cached conversation record: public channel, private group,
// or direct-message channel.
type Channel struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Kind ChannelKind `json:"-"`
}

// bootstrap is the rtm.start response: whether the call succeeded, the
// streaming endpoint, the bot's own identity, and the collections that seed
// the directory.
type bootstrap struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	URL   string `json:"url,omitempty"`
	Self  *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"self,omitempty"`
	Users    []User    `json:"users,omitempty"`
	IMs      []Channel `json:"ims,omitempty"`
	Channels []Channel `json:"channels,omitempty"`
	Groups   []Channel `json:"groups,omitempty"`
}

// envelope carries only the classification fields of one streaming unit.
// Acks carry a reply_to and no type; everything else carries a type and
// optionally a subtype. Event bodies are decoded per handler because their
// shapes differ by type: user_change carries user as an object while plain
// messages carry it as an id string.
type envelope struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	ReplyTo *int64 `json:"reply_to,omitempty"`
}

// messageEvent is the body of a plain text message, where channel and user
// are id strings.
type messageEvent struct {
	Channel string `json:"channel"`
	User    string `json:"user"`
	Text    string `json:"text"`
}

// outboundMessage is the wire form of a text message. IDs come from the
// process-lifetime message counter so acks can be correlated.
type outboundMessage struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// pingMessage is the liveness probe. Time is the issue timestamp in
// milliseconds; the pong echoes both fields back.
type pingMessage struct {
	ID   int64   `json:"id"`
	Type string  `json:"type"`
	Time float64 `json:"time"`
}

type openIMResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
}

type rosterResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Channel *struct {
		Members []string `json:"members"`
	} `json:"channel,omitempty"`
	Group *struct {
		Members []string `json:"members"`
	} `json:"group,omitempty"`
}
