// Copyright (C) 2026 MicroTrends Ltd. All Rights Reserved.

package easypipes

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// FrameToken is the fixed marker that begins every frame. It encodes on the
// wire as the bytes "MT" (little-endian order).
const FrameToken uint16 = 0x544D

// frameHeaderLen is the size of the token and length header.
const frameHeaderLen = 6

// MaxPayloadSize is the largest payload the codec will encode or decode.
// The wire format permits lengths up to 2^32-1; this ceiling bounds the
// single allocation a frame decode performs against available memory.
const MaxPayloadSize = 1 << 30

// Frame is the unit exchanged on the wire: a fixed token, a little-endian
// uint32 payload length, and the raw payload bytes.
type Frame struct {
	Payload []byte
}

// Encode encodes f in binary format.
func (f Frame) Encode() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, frameHeaderLen+len(f.Payload)))
	if _, err := f.WriteTo(buf); err != nil {
		panic(fmt.Errorf("encoding frame: %w", err))
	}
	return buf.Bytes()
}

// WriteTo writes the frame to w in binary format. It satisfies io.WriterTo.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	if len(f.Payload) > MaxPayloadSize {
		return 0, &ProtocolError{
			Reason: OversizeMessage,
			Detail: fmt.Sprintf("payload %d exceeds %d bytes", len(f.Payload), MaxPayloadSize),
		}
	}
	var buf [frameHeaderLen]byte
	binary.LittleEndian.PutUint16(buf[0:], FrameToken)
	binary.LittleEndian.PutUint32(buf[2:], uint32(len(f.Payload)))
	nw, err := w.Write(buf[:])
	if err == nil && len(f.Payload) != 0 {
		var np int
		np, err = w.Write(f.Payload)
		nw += np
	}
	return int64(nw), err
}

// ReadFrom reads a frame from r in binary format. It satisfies io.ReaderFrom.
//
// A clean end of stream before any header byte is read is reported as
// io.EOF. A stream that ends mid-frame is reported as a ProtocolError with
// reason UnexpectedEndOfStream. A token mismatch discards any bytes r has
// already buffered, to give the stream a chance to resynchronize, and is
// reported as a ProtocolError with reason InvalidToken; the caller decides
// whether to retry.
func (f *Frame) ReadFrom(r io.Reader) (int64, error) {
	var hdr [frameHeaderLen]byte
	nr, err := io.ReadFull(r, hdr[:2])
	if err != nil {
		return int64(nr), eosError(nr, err)
	}
	if tok := binary.LittleEndian.Uint16(hdr[:2]); tok != FrameToken {
		drain(r)
		return int64(nr), &ProtocolError{
			Reason: InvalidToken,
			Detail: fmt.Sprintf("got %#04x, want %#04x", tok, FrameToken),
		}
	}

	np, err := io.ReadFull(r, hdr[2:])
	nr += np
	if err != nil {
		return int64(nr), eosError(1, err)
	}

	psize := binary.LittleEndian.Uint32(hdr[2:])
	if psize > MaxPayloadSize {
		return int64(nr), &ProtocolError{
			Reason: OversizeMessage,
			Detail: fmt.Sprintf("payload %d exceeds %d bytes", psize, MaxPayloadSize),
		}
	}
	f.Payload = nil
	if psize > 0 {
		f.Payload = make([]byte, int(psize))
		np, err = io.ReadFull(r, f.Payload)
		nr += np
		if err != nil {
			return int64(nr), eosError(1, err)
		}
	}
	return int64(nr), nil
}

// String returns a human-friendly rendering of the frame.
func (f *Frame) String() string {
	if len(f.Payload) > 16 {
		return fmt.Sprintf("Frame([%d bytes] %q ...)", len(f.Payload), f.Payload[:16])
	}
	return fmt.Sprintf("Frame([%d bytes] %q)", len(f.Payload), f.Payload)
}

// eosError maps an end-of-stream error during a frame read. Before the first
// byte of a frame (n == 0) a plain io.EOF passes through as a clean close;
// anywhere else the frame is torn and the error is a protocol violation.
func eosError(n int, err error) error {
	if n == 0 && err == io.EOF {
		return err
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return &ProtocolError{Reason: UnexpectedEndOfStream, Detail: err.Error()}
	}
	return err
}

// buffered is the subset of bufio.Reader used to discard readahead after a
// token mismatch. The pipe transport's reader satisfies it.
type buffered interface {
	Buffered() int
	Discard(int) (int, error)
}

// drain discards whatever r has already buffered. Best effort: readers that
// do not buffer are left alone, and discard errors are ignored because the
// stream is already known to be corrupt.
func drain(r io.Reader) {
	if b, ok := r.(buffered); ok {
		if n := b.Buffered(); n > 0 {
			b.Discard(n)
		}
	}
}
