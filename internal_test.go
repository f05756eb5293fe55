// Copyright (C) 2026 MicroTrends Ltd. All Rights Reserved.

package easypipes

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MicroTrendsLtd/EasyPipes/pipe"
	"github.com/fortytw2/leaktest"
)

func TestGuardSingleFlight(t *testing.T) {
	var g guard

	const callers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners int

	start := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if g.tryAcquire() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if winners != 1 {
		t.Errorf("Winners: got %d, want 1", winners)
	}
}

func TestGuardAcquireWithin(t *testing.T) {
	var g guard
	if !g.tryAcquire() {
		t.Fatal("initial acquire failed")
	}

	begin := time.Now()
	if g.acquireWithin(100*time.Millisecond, 5*time.Millisecond, nil) {
		t.Error("acquireWithin succeeded while the guard was held")
	}
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Errorf("acquireWithin blocked %v, want about 100ms", elapsed)
	}

	g.release()
	if !g.acquireWithin(100*time.Millisecond, 5*time.Millisecond, nil) {
		t.Error("acquireWithin failed on a free guard")
	}
}

func TestGuardAcquireStop(t *testing.T) {
	var g guard
	g.tryAcquire()

	stop := make(chan struct{})
	close(stop)
	begin := time.Now()
	if g.acquireWithin(time.Minute, 5*time.Millisecond, stop) {
		t.Error("acquireWithin succeeded after stop")
	}
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Errorf("acquireWithin blocked %v after stop", elapsed)
	}
}

func TestConnectSingleFlight(t *testing.T) {
	c := NewClient(pipe.Config{Name: filepath.Join(t.TempDir(), "nobody-listens.pipe")})

	// Hold the connect guard as if an attempt were in flight: concurrent
	// callers must observe immediate rejection, with no second attempt.
	if !c.connecting.tryAcquire() {
		t.Fatal("could not hold connect guard")
	}
	const callers = 8
	results := make(chan bool, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.TryConnect()
		}()
	}
	wg.Wait()
	close(results)
	for ok := range results {
		if ok {
			t.Error("TryConnect succeeded while an attempt was in flight")
		}
	}
	c.connecting.release()

	// With nobody listening the attempt itself fails, and the state settles
	// back to Idle.
	if c.TryConnect() {
		t.Error("TryConnect succeeded with no listener")
	}
	if got := c.State(); got != StateIdle {
		t.Errorf("State after failed connect: got %v, want %v", got, StateIdle)
	}
}

func TestConnectFastPath(t *testing.T) {
	c := NewClient(pipe.Config{Name: "unused", Direction: pipe.In})
	cc, sc := pipe.Pair(
		pipe.Config{Name: "unused", Direction: pipe.In},
		pipe.Config{Name: "unused", Direction: pipe.Out},
	)
	defer cc.Close()
	defer sc.Close()

	c.mu.Lock()
	c.conn = cc
	c.mu.Unlock()
	c.state.set(StateReady)

	if !c.TryConnect() {
		t.Error("TryConnect on a ready client reported false")
	}
	c.mu.Lock()
	if c.conn != cc {
		t.Error("TryConnect replaced the transport on the fast path")
	}
	c.conn = nil
	c.mu.Unlock()
}

// pairServer returns a started server wired to an in-memory conn, and the
// consumer side of that conn.
func pairServer(t *testing.T) (*Server, *pipe.Conn) {
	t.Helper()
	sc, cc := pipe.Pair(
		pipe.Config{Name: "unused", Direction: pipe.Out},
		pipe.Config{Name: "unused", Direction: pipe.In},
	)
	s := NewServer(pipe.Config{Name: "unused", Direction: pipe.Out})
	s.started.Store(true)
	s.mu.Lock()
	s.conn = sc
	s.mu.Unlock()
	s.state.set(StateReady)
	t.Cleanup(func() {
		sc.Close()
		cc.Close()
	})
	return s, cc
}

func TestSendGuardTimeout(t *testing.T) {
	defer leaktest.Check(t)()

	s, _ := pairServer(t)
	s.SendTimeout(100 * time.Millisecond)

	if !s.sending.tryAcquire() {
		t.Fatal("could not hold send guard")
	}
	defer s.sending.release()

	begin := time.Now()
	if s.Send("late") {
		t.Error("Send succeeded while the guard was held")
	}
	elapsed := time.Since(begin)
	if elapsed < 100*time.Millisecond || elapsed > time.Second {
		t.Errorf("Send blocked %v, want about 100ms", elapsed)
	}
}

func TestSendOversize(t *testing.T) {
	defer leaktest.Check(t)()

	s, _ := pairServer(t)

	var texts []string // dispatch is synchronous on the sending goroutine
	s.OnState(func(text string) { texts = append(texts, text) })

	if s.SendBytes(make([]byte, MaxPayloadSize+1)) {
		t.Error("SendBytes over the payload ceiling reported delivered")
	}
	s.pendingMu.Lock()
	pending := s.pending
	s.pendingMu.Unlock()
	if pending != nil {
		t.Error("oversize payload was parked in the pending slot")
	}
	if len(texts) == 0 || !strings.Contains(texts[len(texts)-1], OversizeMessage.String()) {
		t.Errorf("Diagnostics %q do not report the oversize rejection", texts)
	}
}

func TestSendLastWriteWins(t *testing.T) {
	defer leaktest.Check(t)()

	s, cc := pairServer(t)
	s.SendTimeout(50 * time.Millisecond)

	got := make(chan Message, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, err := DecodeMessage(cc, "pair")
			if err != nil {
				return
			}
			got <- msg
		}
	}()

	// The first payload parks in the pending slot when its guard wait times
	// out; the next call supersedes it and delivers only the newer payload.
	s.sending.tryAcquire()
	if s.Send("first") {
		t.Error("Send(first) succeeded while the guard was held")
	}
	s.sending.release()

	if !s.Send("second") {
		t.Error("Send(second) failed")
	}

	select {
	case msg := <-got:
		if msg.Text != "second" {
			t.Errorf("Received %q, want %q", msg.Text, "second")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the delivered payload")
	}
	select {
	case msg := <-got:
		t.Errorf("Unexpected extra message %q", msg.Text)
	case <-time.After(100 * time.Millisecond):
	}

	s.disposeConn()
	<-done
}

func TestSendSuperseded(t *testing.T) {
	defer leaktest.Check(t)()

	s, _ := pairServer(t)
	s.SendTimeout(time.Second)

	// Hold the guard, let a send park on it, and empty the pending slot as
	// a competing call would have. The parked send must report true: its
	// payload slot was delivered on its behalf.
	s.sending.tryAcquire()

	result := make(chan bool, 1)
	go func() { result <- s.Send("parked") }()

	// Wait for the pending slot to fill.
	for {
		s.pendingMu.Lock()
		filled := s.pending != nil
		s.pendingMu.Unlock()
		if filled {
			break
		}
		time.Sleep(time.Millisecond)
	}

	s.pendingMu.Lock()
	s.pending = nil
	s.pendingMu.Unlock()
	s.sending.release()

	select {
	case ok := <-result:
		if !ok {
			t.Error("superseded Send reported false, want true")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the parked send")
	}
}

func TestReconnect(t *testing.T) {
	defer leaktest.Check(t)()

	name := filepath.Join(t.TempDir(), "reconnect.pipe")
	s := NewServer(pipe.Config{Name: name, Direction: pipe.Out, Timeout: 2 * time.Second})
	if err := s.Start(); err != nil {
		t.Fatalf("Start server: %v", err)
	}
	defer s.Stop()

	c := NewClient(pipe.Config{Name: name, Direction: pipe.In, Timeout: 2 * time.Second})
	msgs := make(chan Message, 16)
	c.OnMessage(func(m Message) { msgs <- m })
	c.Start()
	defer c.Stop()

	sendEventually(t, s, "one")
	waitMessage(t, msgs, "one")

	// Forcibly close the consumer's transport mid-stream. The client must
	// fault, reconnect on its own, and receive subsequent sends.
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		t.Fatal("client has no active transport")
	}
	conn.Close()

	sendEventually(t, s, "two")
	waitMessage(t, msgs, "two")

	if got := c.State(); got != StateReady {
		t.Errorf("State after reconnect: got %v, want %v", got, StateReady)
	}
}

// sendEventually retries Send until it reports delivered; the producer may
// need a few attempts while the consumer reconnects.
func sendEventually(t *testing.T, s *Server, text string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if s.Send(text) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("Send(%q) did not succeed before the deadline", text)
}

// waitMessage waits for a message with the given text, skipping duplicates
// of earlier payloads that may arrive after a retried send.
func waitMessage(t *testing.T, msgs <-chan Message, text string) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case m := <-msgs:
			if m.Text == text {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for message %q", text)
		}
	}
}
