// Copyright (C) 2026 MicroTrends Ltd. All Rights Reserved.

package easypipes

import (
	"testing"

	"github.com/creachadair/mds/mtest"
	"github.com/google/go-cmp/cmp"
)

func TestNotifierOrder(t *testing.T) {
	n := NewNotifier()

	var got []string
	n.OnState(func(s string) { got = append(got, "first:"+s) })
	n.OnState(func(s string) { got = append(got, "second:"+s) })

	// Delivery happens on the pump's goroutine; here the "pump" is the test.
	// Dispatch must follow subscription order.
	n.publishState("a")
	n.publishState("b")

	want := []string{"first:a", "second:a", "first:b", "second:b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Dispatch order (-want, +got):\n%s", diff)
	}
}

func TestNotifierUnsubscribe(t *testing.T) {
	n := NewNotifier()

	var msgs, states int
	mid := n.OnMessage(func(Message) { msgs++ })
	sid := n.OnState(func(string) { states++ })

	n.publishMessage(Message{Bytes: []byte("x"), Text: "x"})
	n.publishState("up")

	n.Unsubscribe(mid)
	n.publishMessage(Message{Bytes: []byte("y"), Text: "y"})
	n.publishState("down")

	n.Unsubscribe(sid)
	n.Unsubscribe(sid) // removing twice is harmless
	n.publishState("gone")

	if msgs != 1 {
		t.Errorf("Message deliveries: got %d, want 1", msgs)
	}
	if states != 2 {
		t.Errorf("State deliveries: got %d, want 2", states)
	}
}

func TestNotifierNilHandler(t *testing.T) {
	n := NewNotifier()
	mtest.MustPanic(t, func() { n.OnMessage(nil) })
	mtest.MustPanic(t, func() { n.OnState(nil) })
}
