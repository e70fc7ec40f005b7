package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/com-four/warmachine-ng/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestBus_PublishSubscribe(t *testing.T) {
	b := New(4, testLogger())
	defer b.Close()

	want := domain.Message{Sender: "alice", Channel: "#general", Text: "hi"}
	b.Publish(want)

	select {
	case got := <-b.Subscribe():
		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestBus_PreservesOrder(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	for i := 0; i < 10; i++ {
		b.Publish(domain.Message{Text: string(rune('a' + i))})
	}
	ch := b.Subscribe()
	for i := 0; i < 10; i++ {
		got := <-ch
		if got.Text != string(rune('a'+i)) {
			t.Fatalf("message %d = %q, out of order", i, got.Text)
		}
	}
}

func TestBus_PublishAfterCloseIsNoop(t *testing.T) {
	b := New(1, testLogger())
	b.Close()

	// Must not panic on the closed channel.
	b.Publish(domain.Message{Text: "late"})
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	b := New(1, testLogger())
	b.Close()
	b.Close()
}

func TestBus_SubscribeDrainsAfterClose(t *testing.T) {
	b := New(2, testLogger())
	b.Publish(domain.Message{Text: "one"})
	b.Close()

	ch := b.Subscribe()
	if got := <-ch; got.Text != "one" {
		t.Errorf("got %q, want one", got.Text)
	}
	if _, ok := <-ch; ok {
		t.Error("channel still open after close and drain")
	}
}
