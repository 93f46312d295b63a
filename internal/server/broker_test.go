package server

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/playperu/escaperoom/internal/game"
)

func receive(t *testing.T, ch chan []byte) game.Event {
	t.Helper()
	select {
	case data := <-ch:
		var ev game.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return ev
	default:
		t.Fatal("no event delivered")
		return game.Event{}
	}
}

func TestBrokerPublishIsPerSession(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe("a")
	other := b.Subscribe("b")

	b.Publish("a", game.Event{Type: game.EventHintUsed})
	if ev := receive(t, a); ev.Type != game.EventHintUsed || ev.SessionID != "a" {
		t.Errorf("event = %+v", ev)
	}
	if len(other) != 0 {
		t.Error("event leaked to another session")
	}

	b.Broadcast(game.Event{Type: game.EventSettingsUpdated})
	receive(t, a)
	receive(t, other)

	b.Unsubscribe("a", a)
	if n := b.Subscribers("a"); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("a")
	for i := 0; i < cap(ch)+5; i++ {
		b.Publish("a", game.Event{Type: game.EventState})
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered = %d, want %d", len(ch), cap(ch))
	}
}

func TestRelayDeliver(t *testing.T) {
	local := NewBroker()
	r := NewRedisRelay(nil, local, slog.Default())
	ch := local.Subscribe("s1")

	payload := func(env envelope) []byte {
		data, _ := json.Marshal(env)
		return data
	}

	r.deliver(payload(envelope{Origin: "other", SessionID: "s1", Event: game.Event{Type: game.EventMessage, Message: "hi"}}))
	if ev := receive(t, ch); ev.Type != game.EventMessage || ev.Message != "hi" {
		t.Errorf("relayed event = %+v", ev)
	}

	r.deliver(payload(envelope{Origin: "other", Broadcast: true, Event: game.Event{Type: game.EventSettingsUpdated}}))
	if ev := receive(t, ch); ev.Type != game.EventSettingsUpdated {
		t.Errorf("relayed broadcast = %+v", ev)
	}

	// Own messages were already delivered locally.
	r.deliver(payload(envelope{Origin: r.origin, SessionID: "s1", Event: game.Event{Type: game.EventMessage}}))
	r.deliver([]byte("not json"))
	if len(ch) != 0 {
		t.Errorf("unexpected delivery, %d queued", len(ch))
	}
}
