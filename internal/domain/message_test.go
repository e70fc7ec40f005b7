package domain

import "testing"

func TestMessage_ReplyTarget(t *testing.T) {
	channelMsg := Message{Sender: "alice", Channel: "#general", Text: "hi"}
	if got := channelMsg.ReplyTarget(); got != "#general" {
		t.Errorf("ReplyTarget = %q, want #general", got)
	}

	// A DM has no channel; replies go back to the sender.
	dm := Message{Sender: "alice", Text: "hi"}
	if got := dm.ReplyTarget(); got != "alice" {
		t.Errorf("ReplyTarget = %q, want alice", got)
	}
}
