// Copyright (C) 2026 MicroTrends Ltd. All Rights Reserved.

package easypipes

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// A MessageHandler receives decoded messages.
type MessageHandler func(Message)

// A StateHandler receives free-form state and diagnostic text, such as
// connect, disconnect, and error events.
type StateHandler func(string)

// Notifier delivers decoded messages and diagnostic state text to zero or
// more subscribers. Subscriptions may be added and removed at any time.
//
// Delivery is synchronous on the pump's own goroutine, in subscription
// order: a slow handler stalls the pump, so handlers must not block.
type Notifier struct {
	mu     sync.Mutex
	msgs   []msgSub
	states []stateSub
}

type msgSub struct {
	id uuid.UUID
	fn MessageHandler
}

type stateSub struct {
	id uuid.UUID
	fn StateHandler
}

// NewNotifier constructs an empty notifier.
func NewNotifier() *Notifier { return new(Notifier) }

// OnMessage subscribes fn to message notifications and returns a handle
// that removes the subscription when passed to Unsubscribe. A nil handler
// panics.
func (n *Notifier) OnMessage(fn MessageHandler) uuid.UUID {
	if fn == nil {
		panic("easypipes: nil message handler")
	}
	id := uuid.New()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msgSub{id: id, fn: fn})
	return id
}

// OnState subscribes fn to state and diagnostic notifications and returns a
// handle that removes the subscription when passed to Unsubscribe. A nil
// handler panics.
func (n *Notifier) OnState(fn StateHandler) uuid.UUID {
	if fn == nil {
		panic("easypipes: nil state handler")
	}
	id := uuid.New()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, stateSub{id: id, fn: fn})
	return id
}

// Unsubscribe removes the subscription with the given handle, if one
// exists. It is safe to call with a handle that was already removed.
func (n *Notifier) Unsubscribe(id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, s := range n.msgs {
		if s.id == id {
			n.msgs = append(n.msgs[:i], n.msgs[i+1:]...)
			return
		}
	}
	for i, s := range n.states {
		if s.id == id {
			n.states = append(n.states[:i], n.states[i+1:]...)
			return
		}
	}
}

// publishMessage delivers m to the message subscribers in order.
func (n *Notifier) publishMessage(m Message) {
	n.mu.Lock()
	subs := make([]msgSub, len(n.msgs))
	copy(subs, n.msgs)
	n.mu.Unlock()
	for _, s := range subs {
		s.fn(m)
	}
}

// publishState delivers text to the state subscribers in order.
func (n *Notifier) publishState(text string) {
	n.mu.Lock()
	subs := make([]stateSub, len(n.states))
	copy(subs, n.states)
	n.mu.Unlock()
	for _, s := range subs {
		s.fn(text)
	}
}

// statef formats and delivers a state notification.
func (n *Notifier) statef(format string, args ...any) {
	n.publishState(fmt.Sprintf(format, args...))
}
