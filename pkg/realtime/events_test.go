package realtime

import (
	"reflect"
	"testing"

	"github.com/mahaj/taskchat/pkg/model"
)

func TestDispatchInRegistrationOrder(t *testing.T) {
	e := NewEvents(nil)
	var got []string
	e.OnMessage(func(m model.Message) { got = append(got, "a:"+m.Content) })
	e.OnMessage(func(m model.Message) { got = append(got, "b:"+m.Content) })
	e.OnMessage(func(m model.Message) { got = append(got, "c:"+m.Content) })

	e.emitMessage(model.Message{Content: "1"})
	e.emitMessage(model.Message{Content: "2"})

	want := []string{"a:1", "b:1", "c:1", "a:2", "b:2", "c:2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	e := NewEvents(nil)
	calls := 0
	unsubscribe := e.OnTyping(func(model.TypingEvent) { calls++ })
	unsubscribe()

	e.emitTyping(model.TypingEvent{UserID: "u1", Typing: true})
	if calls != 0 {
		t.Fatalf("unsubscribed handler saw %d events", calls)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	e := NewEvents(nil)
	var got []string
	unA := e.OnConnected(func() { got = append(got, "a") })
	e.OnConnected(func() { got = append(got, "b") })

	unA()
	unA()
	if n := e.connected.len(); n != 1 {
		t.Fatalf("expected 1 subscriber left, got %d", n)
	}

	e.emitConnected()
	if !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("got %v", got)
	}
}

func TestSameFuncRegisteredTwice(t *testing.T) {
	e := NewEvents(nil)
	calls := 0
	fn := func(model.PresenceEvent) { calls++ }
	un1 := e.OnUserOnline(fn)
	e.OnUserOnline(fn)

	un1()
	e.emitPresence(model.PresenceEvent{UserID: "u", Online: true})
	if calls != 1 {
		t.Fatalf("expected the second registration to survive, calls = %d", calls)
	}
}

func TestPanickingHandlerDoesNotBlindOthers(t *testing.T) {
	e := NewEvents(nil)
	var got []string
	e.OnDisconnected(func(error) { got = append(got, "first") })
	e.OnDisconnected(func(error) { panic("boom") })
	e.OnDisconnected(func(error) { got = append(got, "third") })

	e.emitDisconnected(nil)
	e.emitDisconnected(nil)

	want := []string{"first", "third", "first", "third"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestUnsubscribeDuringDispatch(t *testing.T) {
	e := NewEvents(nil)
	var got []string
	var unB func()
	e.OnMessage(func(model.Message) {
		got = append(got, "a")
		unB()
	})
	unB = e.OnMessage(func(model.Message) { got = append(got, "b") })

	e.emitMessage(model.Message{})
	if !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("handler removed mid-dispatch still ran: %v", got)
	}
}

func TestPresenceRouting(t *testing.T) {
	e := NewEvents(nil)
	var online, offline []model.ID
	e.OnUserOnline(func(p model.PresenceEvent) { online = append(online, p.UserID) })
	e.OnUserOffline(func(p model.PresenceEvent) { offline = append(offline, p.UserID) })

	e.emitPresence(model.PresenceEvent{UserID: "1", Online: true})
	e.emitPresence(model.PresenceEvent{UserID: "2", Online: false})

	if !reflect.DeepEqual(online, []model.ID{"1"}) || !reflect.DeepEqual(offline, []model.ID{"2"}) {
		t.Fatalf("online %v offline %v", online, offline)
	}
}
