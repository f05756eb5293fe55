// Copyright (C) 2026 MicroTrends Ltd. All Rights Reserved.

package easypipes

import (
	"io"
	"time"
)

// Message is a decoded payload delivered to message subscribers. A Message
// is created only by a successful frame decode and is immutable after
// construction; the subscriber that receives it owns it.
type Message struct {
	Bytes      []byte    // the raw payload
	Text       string    // the payload decoded as UTF-8
	ReceivedAt time.Time // decode time, UTC
	Source     string    // name of the endpoint the message arrived on
}

// newMessage wraps a decoded payload with a fresh UTC timestamp. The text
// form is a permissive decoding: arbitrary bytes yield garbled text rather
// than an error.
func newMessage(payload []byte, source string) Message {
	return Message{
		Bytes:      payload,
		Text:       string(payload),
		ReceivedAt: time.Now().UTC(),
		Source:     source,
	}
}

// Valid reports whether m carries a payload: non-nil bytes and non-empty
// text. The read loop publishes only valid messages.
func (m Message) Valid() bool { return m.Bytes != nil && m.Text != "" }

// DecodeMessage reads one frame from r and wraps its payload into a Message
// annotated with the given source name. Errors are as documented on
// [Frame.ReadFrom].
func DecodeMessage(r io.Reader, source string) (Message, error) {
	var f Frame
	if _, err := f.ReadFrom(r); err != nil {
		return Message{}, err
	}
	return newMessage(f.Payload, source), nil
}
