// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fifo_test

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/go-lpc/afe/fifo"
	"github.com/go-lpc/afe/internal/fakebus"
	"golang.org/x/xerrors"
)

func TestDecoder(t *testing.T) {
	for _, tc := range []struct {
		name  string
		shape fifo.Shape
		bus   fifo.Shape
		push  int
		n     int
		ferr  error
		want  error
	}{
		{
			name:  "byte-stream",
			shape: fifo.ByteStream,
			bus:   fifo.ByteStream,
			push:  40,
			n:     40,
		},
		{
			name:  "word-stream",
			shape: fifo.WordStream,
			bus:   fifo.WordStream,
			push:  160,
			n:     128,
		},
		{
			name:  "empty-burst",
			shape: fifo.ByteStream,
			bus:   fifo.ByteStream,
			n:     0,
		},
		{
			name:  "too-large",
			shape: fifo.ByteStream,
			bus:   fifo.ByteStream,
			n:     129,
			want:  xerrors.Errorf("fifo: invalid burst size 129 (max=128)"),
		},
		{
			name:  "negative",
			shape: fifo.WordStream,
			bus:   fifo.WordStream,
			n:     -1,
			want:  xerrors.Errorf("fifo: invalid burst size -1 (max=128)"),
		},
		{
			name:  "shape-mismatch",
			shape: fifo.ByteStream,
			bus:   fifo.WordStream,
			n:     4,
			want:  xerrors.Errorf("fifo: transport shape mismatch (got=word-stream, want=byte-stream)"),
		},
		{
			name:  "transport-error",
			shape: fifo.WordStream,
			bus:   fifo.WordStream,
			n:     4,
			ferr:  io.ErrUnexpectedEOF,
			want:  xerrors.Errorf("fifo: could not read 4 samples: %w", io.ErrUnexpectedEOF),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			bus := fakebus.New(tc.bus)
			bus.FIFOErr = tc.ferr
			want := make([]uint32, tc.push)
			for i := range want {
				want[i] = uint32(i*0x030201) & 0xffffff
				if i%2 == 1 {
					want[i] |= 0x800000
				}
			}
			bus.Push(want...)

			dec := fifo.NewDecoder(tc.shape, binary.LittleEndian, 128)
			got, err := dec.Read(bus, tc.n)
			switch {
			case err != nil && tc.want != nil:
				if got, want := err.Error(), tc.want.Error(); got != want {
					t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
				}
				return
			case err != nil && tc.want == nil:
				t.Fatalf("unexpected error: %+v", err)
			case err == nil && tc.want != nil:
				t.Fatalf("expected an error (%v)", tc.want)
			}

			if len(got) != tc.n {
				t.Fatalf("invalid number of words: got=%d, want=%d", len(got), tc.n)
			}
			for i := range got {
				if got[i] != want[i] {
					t.Fatalf("word %d: got=0x%06x, want=0x%06x", i, got[i], want[i])
				}
			}
			if got, want := bus.Pending(), tc.push-tc.n; got != want {
				t.Fatalf("invalid number of pending samples: got=%d, want=%d", got, want)
			}
			if tc.n == 0 && bus.Bursts() != 0 {
				t.Fatalf("empty burst reached the transport")
			}
		})
	}
}

func TestDecoderByteOrder(t *testing.T) {
	dec := fifo.NewDecoder(fifo.WordStream, binary.BigEndian, 2)
	buf := dec.Buffer()
	copy(buf, []byte{0xff, 0x12, 0x34, 0x56, 0x00, 0xab, 0xcd, 0xef})

	got := dec.Decode(2)
	want := []uint32{0x123456, 0xabcdef}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("word %d: got=0x%06x, want=0x%06x", i, got[i], want[i])
		}
	}
}
