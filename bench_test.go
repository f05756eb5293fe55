// Copyright (C) 2026 MicroTrends Ltd. All Rights Reserved.

package easypipes_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/MicroTrendsLtd/EasyPipes"
)

func BenchmarkEncode(b *testing.B) {
	for _, size := range []int{16, 1024, 65536} {
		payload := bytes.Repeat([]byte("x"), size)
		b.Run(fmt.Sprintf("%d", size), func(b *testing.B) {
			f := easypipes.Frame{Payload: payload}
			for b.Loop() {
				f.Encode()
			}
		})
	}
}

func BenchmarkDecode(b *testing.B) {
	for _, size := range []int{16, 1024, 65536} {
		enc := easypipes.Frame{Payload: bytes.Repeat([]byte("x"), size)}.Encode()
		b.Run(fmt.Sprintf("%d", size), func(b *testing.B) {
			for b.Loop() {
				var f easypipes.Frame
				if _, err := f.ReadFrom(bytes.NewReader(enc)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
