// Copyright (C) 2026 MicroTrends Ltd. All Rights Reserved.

// Package easypipes implements framed one-way message delivery between two
// processes on the same machine over a named local pipe endpoint.
//
// The producer side ([Server]) holds the listening role for an endpoint and
// pushes text or binary payloads. The consumer side ([Client]) connects to
// the same endpoint, continuously reads, decodes framed messages, and
// notifies subscribers as they arrive. Each role supervises exactly one live
// connection at a time and reconnects on its own after a fault.
//
// # Wire format
//
// Messages travel as frames with a fixed 6-byte header:
//
//	offset 0..1: token   (uint16, little-endian, always 0x544D)
//	offset 2..5: length  (uint32, little-endian, payload byte count)
//	offset 6.. : payload (raw bytes; text payloads are UTF-8)
//
// The token marks the start of every frame so that a reader which finds
// itself mid-frame after a torn reconnect can detect the misalignment
// instead of interpreting garbage as a length.
//
// # Producer
//
// To publish messages, create a server bound to an endpoint name and start
// it:
//
//	s := easypipes.NewServer(pipe.Config{Name: "t1", Direction: pipe.Out})
//	if err := s.Start(); err != nil {
//	   log.Fatalf("Start: %v", err)
//	}
//	defer s.Stop()
//
//	if !s.Send("hello") {
//	   // not delivered; diagnostics explain why
//	}
//
// Send reports false rather than failing hard: a false result means "not
// sent", with no automatic retry. The first Send after a disconnect waits
// for a consumer to connect, bounded by the configured timeout.
//
// # Consumer
//
// To receive messages, create a client for the same endpoint, subscribe,
// and start it:
//
//	c := easypipes.NewClient(pipe.Config{Name: "t1", Direction: pipe.In})
//	c.OnMessage(func(m easypipes.Message) {
//	   fmt.Println(m.Text)
//	})
//	c.Start()
//	defer c.Stop()
//
// The client runs a single background goroutine that alternates between
// connecting and reading until Stop is called. Transient errors never
// terminate the loop; they surface as state notifications and drive a
// reconnect.
//
// # Notifications
//
// Both roles emit state/diagnostic text through [Notifier.OnState], and the
// client emits decoded messages through [Notifier.OnMessage]. Delivery is
// synchronous on the pump's own goroutine, so handlers must not block.
package easypipes
