// Copyright (C) 2026 MicroTrends Ltd. All Rights Reserved.

package easypipes

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MicroTrendsLtd/EasyPipes/pipe"
	"github.com/creachadair/taskgroup"
	"github.com/someonegg/gox/syncx"
)

// connectRetryInterval paces the reconnect loop after a connect attempt
// that failed faster than the configured timeout (for example, connection
// refused while no producer is listening).
const connectRetryInterval = 100 * time.Millisecond

// Client is the consumer role for an endpoint. Once started it runs a
// single background goroutine that alternates between connecting and
// reading one frame at a time, publishing each decoded message to the
// subscribers. Transient errors fault the connection and drive a reconnect;
// they never terminate the loop.
//
// All methods are safe for concurrent use.
type Client struct {
	*Notifier
	cfg pipe.Config

	started atomic.Bool

	state      connState
	connecting guard // single-flight connect
	reading    guard // single-flight read

	mu    sync.Mutex // guards conn, stopD, and tasks; serializes Start and Stop
	conn  *pipe.Conn
	stopD syncx.DoneChan
	tasks *taskgroup.Group
}

// NewClient constructs an unstarted client for the configured endpoint.
func NewClient(cfg pipe.Config) *Client {
	return &Client{Notifier: NewNotifier(), cfg: cfg}
}

// Start launches the background read loop. Calling Start on a running
// client is a no-op. After Stop, Start may be called again.
func (c *Client) Start() {
	// The started transition and the stopD/tasks stores happen in one
	// critical section, so a concurrent Stop that wins its own transition
	// always observes the pair belonging to the run it is stopping.
	c.mu.Lock()
	if !c.started.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return
	}
	stop := syncx.NewDoneChan()
	g := taskgroup.New(nil)
	c.stopD = stop
	c.tasks = g
	c.mu.Unlock()

	c.statef("client %q: started", c.cfg.Name)
	g.Go(func() error { c.run(stop.R()); return nil })
}

// Stop signals the read loop to exit, forces any blocked read to fail by
// disposing the connection, and blocks until the loop has exited. Calling
// Stop on a stopped client is a no-op.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.started.CompareAndSwap(true, false) {
		c.mu.Unlock()
		return
	}
	stop, tasks := c.stopD, c.tasks
	c.mu.Unlock()
	stop.SetDone()

	c.dispose()
	tasks.Wait()
	c.state.set(StateIdle)
	c.statef("client %q: stopped", c.cfg.Name)
}

// State reports the current connection state.
func (c *Client) State() ConnectionState { return c.state.get() }

// Ready reports whether the client holds a connected transport with no
// unresolved error.
func (c *Client) Ready() bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	return c.state.get() == StateReady && conn != nil && conn.Connected()
}

// run is the pump loop: while not ready, attempt one connect per iteration;
// while ready, read one frame. It exits only when stop is signaled.
func (c *Client) run(stop syncx.DoneChanR) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if c.Ready() {
			c.readOne()
			continue
		}
		if !c.TryConnect() {
			// Pace the retry so a fast-failing dial does not spin.
			select {
			case <-stop:
				return
			case <-time.After(connectRetryInterval):
			}
		}
	}
}

// TryConnect attempts to establish the connection, bounded by the
// configured timeout. If an attempt is already in flight it returns false
// immediately without starting another; if the client is already Ready it
// returns true without reconnecting. It returns the post-attempt readiness.
func (c *Client) TryConnect() bool {
	if !c.connecting.tryAcquire() {
		return false
	}
	defer c.connecting.release()

	if c.Ready() {
		return true
	}

	c.dispose() // release any stale transport before a fresh attempt
	c.state.set(StateConnecting)

	conn, err := pipe.Dial(c.cfg)
	if err != nil {
		c.state.set(StateFaulted)
		metrics.connectErrors.Add(1)
		if pipe.IsTimeout(err) {
			c.statef("client %q: %v", c.cfg.Name, ErrConnectTimeout)
		} else {
			c.statef("client %q: connect failed: %v", c.cfg.Name, err)
		}
		c.state.set(StateIdle)
		return false
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.state.set(StateReady)
	metrics.connects.Add(1)
	c.statef("client %q: connected", c.cfg.Name)
	return c.Ready()
}

// readOne decodes a single frame and publishes it. If a read is already in
// flight it returns immediately. A decode failure faults the connection,
// returning the loop to the connect phase.
func (c *Client) readOne() {
	if !c.reading.tryAcquire() {
		return
	}
	defer c.reading.release()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.fault(net.ErrClosed)
		return
	}

	msg, err := DecodeMessage(conn, c.cfg.Name)
	if err != nil {
		c.fault(err)
		return
	}
	metrics.framesRead.Add(1)
	metrics.bytesRead.Add(int64(len(msg.Bytes)))
	if msg.Valid() {
		c.publishMessage(msg)
	}
}

// fault drives Ready to Faulted, tears the transport down, and returns to
// Idle so the loop can retry.
func (c *Client) fault(err error) {
	c.state.set(StateFaulted)
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		c.statef("client %q: disconnected", c.cfg.Name)
	} else {
		metrics.readErrors.Add(1)
		c.statef("client %q: read failed: %v", c.cfg.Name, err)
	}
	c.dispose()
	c.state.set(StateIdle)
}

// dispose releases the current transport, if any. Flush errors during
// teardown are swallowed by the transport; a close error is reported only
// as a diagnostic.
func (c *Client) dispose() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.statef("client %q: dispose: %v", c.cfg.Name, err)
	}
}
