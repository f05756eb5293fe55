// Copyright (C) 2026 MicroTrends Ltd. All Rights Reserved.

// Package pipe provides the named local endpoint transport used by
// easypipes. An endpoint name identifies a Unix-domain socket on the local
// filesystem, the portable analogue of a named pipe; access control is the
// socket file's permissions.
//
// The package exposes exactly the operations the framing layer above it
// needs: dial or listen-and-accept, read, write, flush, report-connected,
// and close. Message boundaries are not a transport concern; all framing
// happens above.
package pipe

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Direction constrains which stream operations a connection permits.
type Direction int

const (
	InOut Direction = iota // duplex; the zero value
	In                     // read only (consumer role)
	Out                    // write only (producer role)
)

func (d Direction) String() string {
	switch d {
	case InOut:
		return "in/out"
	case In:
		return "in"
	case Out:
		return "out"
	default:
		return fmt.Sprintf("direction %d", int(d))
	}
}

// Defaults applied by Config accessors when a field is zero.
const (
	DefaultTimeout    = 5 * time.Second
	DefaultBufferSize = 64 * 1024
)

// ErrDirection is reported when a read or write is attempted against the
// configured direction of a connection.
var ErrDirection = errors.New("pipe: operation not permitted by direction")

// ErrBusy is reported by Accept when the endpoint already has MaxInstances
// live connections.
var ErrBusy = errors.New("pipe: endpoint instance limit reached")

// Config describes a named endpoint. A Config is immutable once handed to
// Dial or Listen; create a new value to change settings.
type Config struct {
	// Name identifies the endpoint. A name containing a path separator is
	// used verbatim as the socket path; otherwise the socket is created
	// under the system temporary directory. See SocketPath.
	Name string

	// Direction constrains the connection; the zero value is duplex.
	Direction Direction

	// Timeout bounds connect and accept attempts. Zero means
	// DefaultTimeout.
	Timeout time.Duration

	// ReadBufferSize and WriteBufferSize size the stream buffers. Zero
	// means DefaultBufferSize. The write size is a producer-side hint.
	ReadBufferSize  int
	WriteBufferSize int

	// MaxInstances bounds how many consumers may queue on the endpoint at
	// once. The listening role still supervises exactly one active
	// connection at a time. Zero means 1.
	MaxInstances int

	// WriteThrough flushes the stream after every write instead of waiting
	// for an explicit Flush.
	WriteThrough bool
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c Config) readSize() int {
	if c.ReadBufferSize > 0 {
		return c.ReadBufferSize
	}
	return DefaultBufferSize
}

func (c Config) writeSize() int {
	if c.WriteBufferSize > 0 {
		return c.WriteBufferSize
	}
	return DefaultBufferSize
}

func (c Config) maxInstances() int {
	if c.MaxInstances > 0 {
		return c.MaxInstances
	}
	return 1
}

func (c Config) check() error {
	if c.Name == "" {
		return errors.New("pipe: empty endpoint name")
	}
	if c.MaxInstances < 0 {
		return fmt.Errorf("pipe: invalid max instances %d", c.MaxInstances)
	}
	return nil
}

// SocketPath reports the filesystem path for an endpoint name. A name that
// already contains a path separator is used verbatim; a bare name maps into
// the system temporary directory with a ".pipe" suffix, so that unrelated
// processes agree on the location by name alone.
func SocketPath(name string) string {
	if strings.ContainsRune(name, os.PathSeparator) {
		return name
	}
	return filepath.Join(os.TempDir(), name+".pipe")
}

// IsTimeout reports whether err is a transport timeout.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// A Conn is one live connection to an endpoint. It buffers reads and writes
// and tracks whether the underlying stream is still usable. A Conn is
// created fresh for every connection attempt and is not reused after close.
//
// A Conn is safe for one concurrent reader and one concurrent writer, which
// by construction the directions keep apart.
type Conn struct {
	cfg       Config
	nc        net.Conn
	r         *bufio.Reader
	w         *bufio.Writer
	connected atomic.Bool
	closeOnce sync.Once
	onClose   func() // releases the listener's instance slot, if any
}

func newConn(cfg Config, nc net.Conn) *Conn {
	c := &Conn{
		cfg: cfg,
		nc:  nc,
		r:   bufio.NewReaderSize(nc, cfg.readSize()),
		w:   bufio.NewWriterSize(nc, cfg.writeSize()),
	}
	c.connected.Store(true)
	return c
}

// Read reads from the stream. It blocks until at least one byte is
// available or the stream ends.
func (c *Conn) Read(p []byte) (int, error) {
	if c.cfg.Direction == Out {
		return 0, ErrDirection
	}
	n, err := c.r.Read(p)
	if err != nil {
		c.connected.Store(false)
	}
	return n, err
}

// Write writes to the stream buffer. With WriteThrough set the buffer is
// flushed after every write.
func (c *Conn) Write(p []byte) (int, error) {
	if c.cfg.Direction == In {
		return 0, ErrDirection
	}
	n, err := c.w.Write(p)
	if err == nil && c.cfg.WriteThrough {
		err = c.w.Flush()
	}
	if err != nil {
		c.connected.Store(false)
	}
	return n, err
}

// Flush drains any buffered output to the stream. On a read-only connection
// it is a no-op.
func (c *Conn) Flush() error {
	if c.cfg.Direction == In {
		return nil
	}
	err := c.w.Flush()
	if err != nil {
		c.connected.Store(false)
	}
	return err
}

// Buffered reports how many bytes have been read from the stream but not
// yet consumed.
func (c *Conn) Buffered() int { return c.r.Buffered() }

// Discard skips the next n buffered bytes.
func (c *Conn) Discard(n int) (int, error) { return c.r.Discard(n) }

// Connected reports whether the stream is still usable: no read, write, or
// close has failed it.
func (c *Conn) Connected() bool { return c.connected.Load() }

// Close tears the connection down: buffered output is flushed best-effort
// (a flush failure does not stop the close), then the stream is closed and
// released. Close is safe to call more than once.
func (c *Conn) Close() error {
	if c.connected.Swap(false) && c.cfg.Direction != In {
		c.w.Flush() // best effort; the close proceeds regardless
	}
	err := c.nc.Close()
	c.closeOnce.Do(func() {
		if c.onClose != nil {
			c.onClose()
		}
	})
	return err
}

// Dial connects to the named endpoint as a consumer, bounded by the
// configured timeout.
func Dial(cfg Config) (*Conn, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	nc, err := net.DialTimeout("unix", SocketPath(cfg.Name), cfg.timeout())
	if err != nil {
		return nil, err
	}
	return newConn(cfg, nc), nil
}

// A Listener owns the endpoint for the producer role. It hands out one Conn
// per accepted consumer.
type Listener struct {
	cfg    Config
	ul     *net.UnixListener
	active atomic.Int32 // live conns handed out and not yet closed
}

// Listen claims the named endpoint. A stale socket file left behind by a
// crashed previous owner is removed and the listen retried once; a socket
// with a live owner stays put and the error is returned.
func Listen(cfg Config) (*Listener, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	path := SocketPath(cfg.Name)
	addr := &net.UnixAddr{Name: path, Net: "unix"}
	ul, err := net.ListenUnix("unix", addr)
	if err != nil && isAddrInUse(err) && !hasLiveOwner(path) {
		os.Remove(path)
		ul, err = net.ListenUnix("unix", addr)
	}
	if err != nil {
		return nil, err
	}
	return &Listener{cfg: cfg, ul: ul}, nil
}

// Accept waits for one consumer to connect, bounded by the configured
// timeout. A timeout cancels the pending accept and reports an error for
// which IsTimeout is true. When MaxInstances connections are already live,
// the new connection is refused and Accept reports ErrBusy.
func (l *Listener) Accept() (*Conn, error) {
	if err := l.ul.SetDeadline(time.Now().Add(l.cfg.timeout())); err != nil {
		return nil, err
	}
	nc, err := l.ul.Accept()
	if err != nil {
		return nil, err
	}
	if int(l.active.Load()) >= l.cfg.maxInstances() {
		nc.Close()
		return nil, ErrBusy
	}
	l.active.Add(1)
	conn := newConn(l.cfg, nc)
	conn.onClose = func() { l.active.Add(-1) }
	return conn, nil
}

// Addr reports the endpoint address.
func (l *Listener) Addr() net.Addr { return l.ul.Addr() }

// Close releases the endpoint and unlinks its socket file. Any pending
// accept fails.
func (l *Listener) Close() error { return l.ul.Close() }

// Pair returns two connected Conns over an in-memory duplex stream. The
// configs apply per side. Useful for tests and in-process wiring.
func Pair(a, b Config) (*Conn, *Conn) {
	ca, cb := net.Pipe()
	return newConn(a, ca), newConn(b, cb)
}

// isAddrInUse reports whether err is the address-in-use listen failure.
func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

// hasLiveOwner probes whether something is still accepting on the socket at
// path.
func hasLiveOwner(path string) bool {
	nc, err := net.DialTimeout("unix", path, 100*time.Millisecond)
	if err == nil {
		nc.Close()
		return true
	}
	return false
}
