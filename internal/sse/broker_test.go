package sse

import (
	"strings"
	"testing"
	"time"
)

func recv(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func TestSubscribeAndPublish(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	if got := b.ClientCount(); got != 1 {
		t.Errorf("ClientCount = %d, want 1", got)
	}

	b.PublishRunStarted("/decks/cards.deck")
	msg := recv(t, ch)
	if !strings.Contains(msg, "event: run.started") {
		t.Errorf("message = %q, want run.started event", msg)
	}
	if !strings.Contains(msg, "/decks/cards.deck") {
		t.Errorf("message = %q, want deck root in payload", msg)
	}
}

func TestPublishRunFinished(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishRunFinished(RunSummary{
		RunID:        7,
		Root:         "/decks/cards.deck",
		Pass:         true,
		RequiredBump: "minor",
		DeclaredBump: "major",
	})
	msg := recv(t, ch)
	if !strings.Contains(msg, "event: run.finished") {
		t.Errorf("message = %q, want run.finished event", msg)
	}
	if !strings.Contains(msg, `"pass":true`) || !strings.Contains(msg, `"run_id":7`) {
		t.Errorf("message = %q, want summary payload", msg)
	}
}

func TestDeckChangedThrottle(t *testing.T) {
	b := NewBroker(time.Hour) // effectively one notification per test
	defer b.Close()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishDeckChanged("vocab.flash")
	msg := recv(t, ch)
	if !strings.Contains(msg, "event: deck.changed") {
		t.Errorf("message = %q, want deck.changed event", msg)
	}

	// Burst events inside the throttle window are dropped.
	b.PublishDeckChanged("vocab.flash")
	b.PublishRunStarted("/decks/cards.deck") // marker event
	msg = recv(t, ch)
	if !strings.Contains(msg, "event: run.started") {
		t.Errorf("message = %q, want throttled change skipped", msg)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	ch := b.Subscribe()
	b.Unsubscribe(ch)
	if got := b.ClientCount(); got != 0 {
		t.Errorf("ClientCount = %d, want 0", got)
	}
	// The channel is closed on unsubscribe.
	if _, open := <-ch; open {
		t.Error("channel still open after Unsubscribe")
	}
}

func TestCloseStopsBroker(t *testing.T) {
	b := NewBroker(time.Second)
	ch := b.Subscribe()
	b.Close()

	if _, open := <-ch; open {
		t.Error("client channel still open after Close")
	}
	// Publishing after Close must not panic or block.
	b.PublishRunStarted("/decks/cards.deck")
	if got := b.ClientCount(); got != 0 {
		t.Errorf("ClientCount after Close = %d, want 0", got)
	}
}
