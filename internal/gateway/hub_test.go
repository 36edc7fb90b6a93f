package gateway

import "testing"

func TestHubRoomsAndBroadcast(t *testing.T) {
	h := newHub()
	a := newClient("c-a", "u-a", nil)
	b := newClient("c-b", "u-b", nil)
	h.Register(a)
	h.Register(b)

	h.JoinRoom("g1", a)
	h.JoinRoom("g1", b)
	h.JoinRoom("g1", b) // idempotent
	if h.RoomSize("g1") != 2 {
		t.Fatalf("room size: %d", h.RoomSize("g1"))
	}

	h.Broadcast("g1", newEnvelope("ping", nil))
	for _, c := range []*Client{a, b} {
		if ev := mustRecv(t, c); ev.Event != "ping" {
			t.Fatalf("%s got %s", c.id, ev.Event)
		}
	}

	h.BroadcastExcept("g1", a, newEnvelope("pong", nil))
	if ev := mustRecv(t, b); ev.Event != "pong" {
		t.Fatalf("b got %s", ev.Event)
	}
	assertNoEvent(t, a)

	h.LeaveRoom("g1", b)
	if h.RoomSize("g1") != 1 {
		t.Fatalf("room size after leave: %d", h.RoomSize("g1"))
	}

	h.Unregister(a)
	if h.RoomSize("g1") != 0 {
		t.Fatal("unregister should purge room membership")
	}
	if h.Client("c-a") != nil {
		t.Fatal("unregistered conn still resolvable")
	}
}

func TestHubBroadcastSkipsFullBuffers(t *testing.T) {
	h := newHub()
	c := newClient("c-1", "u-1", nil)
	h.Register(c)
	h.JoinRoom("g1", c)

	for range sendBufferSize + 10 {
		h.Broadcast("g1", newEnvelope("tick", nil))
	}
	// The room itself must stay intact after dropped frames.
	if h.RoomSize("g1") != 1 {
		t.Fatalf("room size: %d", h.RoomSize("g1"))
	}
}

func mustRecv(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	default:
		t.Fatalf("no event queued for %s", c.id)
		return Envelope{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.send:
		t.Fatalf("unexpected event %s for %s", ev.Event, c.id)
	default:
	}
}
