// Copyright (C) 2026 MicroTrends Ltd. All Rights Reserved.

package easypipes

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MicroTrendsLtd/EasyPipes/pipe"
	"github.com/creachadair/mds/value"
	"github.com/someonegg/gox/syncx"
)

// Send-guard contention is resolved by polling: a caller that finds the
// guard held retries at sendPollInterval until DefaultSendTimeout (or the
// value set with SendTimeout) elapses, then fails closed.
const (
	DefaultSendTimeout = 2 * time.Second
	sendPollInterval   = 5 * time.Millisecond
)

// Server is the producer role for an endpoint. It owns the listening socket
// and supervises one active consumer connection at a time, re-accepting
// after a disconnect. Accept and send run on the caller's goroutine, with
// internal guards serializing overlapping calls.
//
// The send path keeps at most one pending payload, not a queue: a payload
// stored while another send is in flight may be superseded by a newer one
// (last write wins). A false result from Send means "not sent", with no
// automatic retry.
//
// All methods are safe for concurrent use.
type Server struct {
	*Notifier
	cfg pipe.Config

	started atomic.Bool

	state     connState
	accepting guard // single-flight accept
	sending   guard // single-flight send

	sendTimeout time.Duration

	mu    sync.Mutex // guards lst, conn, and stopD; serializes Start and Stop
	lst   *pipe.Listener
	conn  *pipe.Conn
	stopD syncx.DoneChan

	pendingMu sync.Mutex
	pending   []byte // the one pending payload slot; nil when empty
}

// NewServer constructs an unstarted server for the configured endpoint.
func NewServer(cfg pipe.Config) *Server {
	return &Server{
		Notifier:    NewNotifier(),
		cfg:         cfg,
		sendTimeout: DefaultSendTimeout,
		stopD:       syncx.NewDoneChan(),
	}
}

// SendTimeout sets how long Send waits for the send guard before failing
// closed. It returns s to permit chaining and must be called before Start.
func (s *Server) SendTimeout(d time.Duration) *Server {
	if d > 0 {
		s.sendTimeout = d
	}
	return s
}

// Start claims the listening endpoint. Calling Start on a running server is
// a no-op. Consumers are accepted on demand by the first Send that needs
// one. After Stop, Start may be called again.
func (s *Server) Start() error {
	// The started transition and the lst/stopD stores happen in one
	// critical section, so a concurrent Stop that wins its own transition
	// always observes the listener belonging to the run it is stopping.
	s.mu.Lock()
	if !s.started.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return nil
	}
	lst, err := pipe.Listen(s.cfg)
	if err != nil {
		s.started.Store(false)
		s.mu.Unlock()
		return err
	}
	s.lst = lst
	s.stopD = syncx.NewDoneChan()
	s.mu.Unlock()
	s.statef("server %q: listening (%s)",
		s.cfg.Name, value.Cond(s.cfg.WriteThrough, "write-through", "buffered"))
	return nil
}

// Stop closes the active connection and releases the endpoint, failing any
// blocked accept or guard wait. Calling Stop on a stopped server is a
// no-op.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started.CompareAndSwap(true, false) {
		s.mu.Unlock()
		return
	}
	conn, lst := s.conn, s.lst
	s.conn, s.lst = nil, nil
	stop := s.stopD
	s.mu.Unlock()
	stop.SetDone()

	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.statef("server %q: dispose: %v", s.cfg.Name, err)
		}
	}
	if lst != nil {
		if err := lst.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.statef("server %q: close endpoint: %v", s.cfg.Name, err)
		}
	}
	s.state.set(StateIdle)
	s.statef("server %q: stopped", s.cfg.Name)
}

// State reports the current connection state.
func (s *Server) State() ConnectionState { return s.state.get() }

// Ready reports whether the server holds a connected consumer with no
// unresolved error.
func (s *Server) Ready() bool {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return s.state.get() == StateReady && conn != nil && conn.Connected()
}

// TryAccept waits for one consumer to connect, bounded by the configured
// timeout. If an accept is already in flight it returns false immediately
// without starting another; if a consumer is already connected it returns
// true. It returns the post-attempt readiness.
func (s *Server) TryAccept() bool {
	if !s.accepting.tryAcquire() {
		return false
	}
	defer s.accepting.release()

	if s.Ready() {
		return true
	}
	s.disposeConn()

	s.mu.Lock()
	lst := s.lst
	s.mu.Unlock()
	if lst == nil {
		return false
	}
	s.state.set(StateConnecting)

	conn, err := lst.Accept()
	if err != nil {
		s.state.set(StateFaulted)
		metrics.acceptErrors.Add(1)
		if pipe.IsTimeout(err) {
			s.statef("server %q: %v", s.cfg.Name, ErrConnectTimeout)
		} else {
			s.statef("server %q: accept failed: %v", s.cfg.Name, err)
		}
		s.state.set(StateIdle)
		return false
	}

	// Let any output still in flight from the handshake drain before the
	// slot is declared ready.
	if err := conn.Flush(); err != nil {
		s.state.set(StateFaulted)
		s.statef("server %q: handshake drain: %v", s.cfg.Name, err)
		conn.Close()
		s.state.set(StateIdle)
		return false
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.state.set(StateReady)
	metrics.accepts.Add(1)
	s.statef("server %q: consumer connected", s.cfg.Name)
	return s.Ready()
}

// Send frames and delivers a text payload, reporting whether it was
// written. It is shorthand for SendBytes([]byte(text)).
func (s *Server) Send(text string) bool { return s.SendBytes([]byte(text)) }

// SendBytes frames and delivers a payload.
//
// The payload is stored in the single pending slot, where a newer payload
// may supersede it before the send guard is acquired. If the server is not
// ready, one accept attempt is made first. A caller that cannot acquire the
// guard within the send timeout fails closed. SendBytes reports false when
// the payload was not written and not superseded; a superseded payload
// reports true, since the slot was delivered by the competing call.
func (s *Server) SendBytes(payload []byte) bool {
	if !s.started.Load() {
		return false
	}
	if len(payload) > MaxPayloadSize {
		s.statef("server %q: %v", s.cfg.Name,
			&ProtocolError{Reason: OversizeMessage})
		return false
	}

	s.pendingMu.Lock()
	s.pending = payload
	s.pendingMu.Unlock()

	if !s.Ready() && !s.TryAccept() {
		metrics.sendDropped.Add(1)
		return false
	}

	if !s.sending.acquireWithin(s.sendTimeout, sendPollInterval, s.stopChan()) {
		metrics.sendDropped.Add(1)
		s.statef("server %q: %v", s.cfg.Name, ErrSendTimeout)
		return false
	}
	defer s.sending.release()

	s.pendingMu.Lock()
	out := s.pending
	s.pending = nil
	s.pendingMu.Unlock()
	if out == nil {
		// A competing call took the slot and delivered a newer payload.
		return true
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.fault(net.ErrClosed)
		return false
	}

	// Drain previously buffered output, then frame, write, and flush.
	if err := conn.Flush(); err != nil {
		s.fault(err)
		return false
	}
	f := Frame{Payload: out}
	if _, err := f.WriteTo(conn); err != nil {
		s.fault(err)
		return false
	}
	if err := conn.Flush(); err != nil {
		s.fault(err)
		return false
	}
	metrics.framesSent.Add(1)
	metrics.bytesSent.Add(int64(len(out)))
	return true
}

// fault drives Ready to Faulted, tears the connection down, and returns to
// Idle; the next Send re-accepts.
func (s *Server) fault(err error) {
	s.state.set(StateFaulted)
	if errors.Is(err, net.ErrClosed) {
		s.statef("server %q: consumer disconnected", s.cfg.Name)
	} else {
		metrics.sendErrors.Add(1)
		s.statef("server %q: send failed: %v", s.cfg.Name, err)
	}
	s.disposeConn()
	s.state.set(StateIdle)
}

// disposeConn releases the active connection, if any, leaving the listener
// in place.
func (s *Server) disposeConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.statef("server %q: dispose: %v", s.cfg.Name, err)
	}
}

func (s *Server) stopChan() syncx.DoneChanR {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopD.R()
}
