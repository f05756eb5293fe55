// Copyright (C) 2026 MicroTrends Ltd. All Rights Reserved.

package easypipes

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ConnectionState describes the lifecycle of a connection slot.
//
// Idle moves to Connecting when an attempt starts, Connecting to Ready on
// success and to Faulted on timeout or error, and Ready to Faulted on a
// read or write error. Faulted is transient: the owner tears down the
// transport and returns to Idle, ready to retry.
type ConnectionState int32

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateReady
	StateFaulted
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateFaulted:
		return "FAULTED"
	default:
		return fmt.Sprintf("state %d", int32(s))
	}
}

// connState is an atomic holder for a ConnectionState.
type connState struct{ v atomic.Int32 }

func (s *connState) get() ConnectionState  { return ConnectionState(s.v.Load()) }
func (s *connState) set(c ConnectionState) { s.v.Store(int32(c)) }

// guard is a single-flight flag for an operation. At most one caller holds
// it at a time; the rest observe immediate rejection instead of queuing.
type guard struct{ busy atomic.Bool }

// tryAcquire attempts to take the guard and reports whether it succeeded.
func (g *guard) tryAcquire() bool { return g.busy.CompareAndSwap(false, true) }

// release returns the guard. It must only be called by the holder.
func (g *guard) release() { g.busy.Store(false) }

// acquireWithin polls for the guard at the given interval until it is
// acquired, the overall timeout elapses, or stop is signaled. It reports
// whether the guard was acquired.
func (g *guard) acquireWithin(timeout, poll time.Duration, stop <-chan struct{}) bool {
	if g.tryAcquire() {
		return true
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(poll)
	defer tick.Stop()
	for {
		select {
		case <-deadline.C:
			return false
		case <-stop:
			return false
		case <-tick.C:
			if g.tryAcquire() {
				return true
			}
		}
	}
}
