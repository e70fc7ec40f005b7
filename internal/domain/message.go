package domain

// Message is the normalized sender/channel/text triple handed to plugins.
// Channel carries the "#name" form for channels and groups and is empty for
// direct messages.
type Message struct {
	Sender  string
	Channel string
	Text    string
}

// ReplyTarget returns where a response to this message should go: the
// originating channel when there is one, otherwise back to the sender.
func (m Message) ReplyTarget() string {
	if m.Channel != "" {
		return m.Channel
	}
	return m.Sender
}
