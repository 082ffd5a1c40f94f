// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regmap

import (
	"io"
	"math/rand"
	"testing"

	"github.com/go-lpc/afe/fifo"
	"github.com/go-lpc/afe/internal/fakebus"
	"golang.org/x/xerrors"
)

// split layout: a 12-bit offset DAC spread over two registers, a 32-bit
// value spread over 3 registers and single-field groups.
var testFields = []Field{
	NewField(0x3e, 8, 8),   // 0: lsb-ext
	NewField(0x3e, 6, 6),   // 1: lsb
	NewField(0x3a, 15, 18), // 2: mid
	NewField(0x3e, 7, 7),   // 3: msb
	NewField(0x10, 0, 23),  // 4
	NewField(0x11, 16, 23), // 5
	NewField(0x21, 0, 2),   // 6
	NewField(0x21, 6, 6),   // 7
}

var testGroups = []Group{
	{0, 1, 2, 3}, // 7 bits
	{4, 5},       // 32 bits
	{6, 7},       // 4 bits
	{0},          // field 0 alone
}

func newTestTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := NewTable(testFields, testGroups)
	if err != nil {
		t.Fatalf("could not create table: %+v", err)
	}
	return tbl
}

func TestGroupRoundTrip(t *testing.T) {
	tbl := newTestTable(t)
	rnd := rand.New(rand.NewSource(1234))

	for id := GroupID(0); int(id) < tbl.NumGroups(); id++ {
		w := tbl.Width(id)
		for i := 0; i < 100; i++ {
			bus := fakebus.New(fifo.WordStream)
			m := New(bus, tbl)

			v := rnd.Uint32()
			want := v
			if w < 32 {
				want = v & (1<<uint(w) - 1)
			}

			err := m.WriteGroup(id, v)
			if err != nil {
				t.Fatalf("group %d: could not write 0x%x: %+v", id, v, err)
			}
			got, err := m.ReadGroup(id)
			if err != nil {
				t.Fatalf("group %d: could not read: %+v", id, err)
			}
			if got != want {
				t.Fatalf("group %d: invalid round trip: got=0x%x, want=0x%x", id, got, want)
			}
		}
	}
}

func TestGroupLayout(t *testing.T) {
	tbl := newTestTable(t)
	bus := fakebus.New(fifo.WordStream)
	bus.Regs[0x3a] = 0xffffff
	bus.Regs[0x3e] = 0xffffff
	m := New(bus, tbl)

	// 0b1011010: lsb-ext=0, lsb=1, mid=0b0110, msb=1
	err := m.WriteGroup(0, 0x5a)
	if err != nil {
		t.Fatalf("could not write group: %+v", err)
	}

	if got, want := bus.Regs[0x3e], uint32(0xffffff&^(1<<8)); got != want {
		t.Fatalf("invalid reg 0x3e: got=0x%06x, want=0x%06x", got, want)
	}
	if got, want := bus.Regs[0x3a], uint32(0xffffff&^(0xf<<15)|0x6<<15); got != want {
		t.Fatalf("invalid reg 0x3a: got=0x%06x, want=0x%06x", got, want)
	}
}

func TestGroupTruncation(t *testing.T) {
	tbl := newTestTable(t)
	bus := fakebus.New(fifo.WordStream)
	m := New(bus, tbl)

	err := m.WriteGroup(2, 0xfff5)
	if err != nil {
		t.Fatalf("could not write group: %+v", err)
	}
	got, err := m.ReadGroup(2)
	if err != nil {
		t.Fatalf("could not read group: %+v", err)
	}
	if want := uint32(0x5); got != want {
		t.Fatalf("invalid value: got=0x%x, want=0x%x", got, want)
	}
	if got, want := bus.Regs[0x21], uint32(0x5|0<<6); got != want {
		t.Fatalf("invalid register: got=0x%x, want=0x%x", got, want)
	}
}

type failingRW struct {
	n    int // number of successful ops before failure
	ops  []Field
	vals []uint32
}

func (rw *failingRW) ReadField(f Field) (uint32, error) {
	if len(rw.ops) >= rw.n {
		return 0, io.ErrUnexpectedEOF
	}
	rw.ops = append(rw.ops, f)
	return 1, nil
}

func (rw *failingRW) WriteField(f Field, v uint32) error {
	if len(rw.ops) >= rw.n {
		return io.ErrShortWrite
	}
	rw.ops = append(rw.ops, f)
	rw.vals = append(rw.vals, v)
	return nil
}

func TestGroupFailure(t *testing.T) {
	tbl := newTestTable(t)

	for _, tc := range []struct {
		name string
		n    int
		want error
	}{
		{name: "first", n: 0},
		{name: "second", n: 1},
		{name: "last", n: 3},
	} {
		t.Run("read-"+tc.name, func(t *testing.T) {
			rw := &failingRW{n: tc.n}
			v, err := ReadGroup(rw, tbl, 0)
			if !xerrors.Is(err, io.ErrUnexpectedEOF) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, io.ErrUnexpectedEOF)
			}
			if v != 0 {
				t.Fatalf("partial value returned: 0x%x", v)
			}
			if got, want := len(rw.ops), tc.n; got != want {
				t.Fatalf("invalid number of field reads: got=%d, want=%d", got, want)
			}
		})
		t.Run("write-"+tc.name, func(t *testing.T) {
			rw := &failingRW{n: tc.n}
			err := WriteGroup(rw, tbl, 0, 0x7f)
			if !xerrors.Is(err, io.ErrShortWrite) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, io.ErrShortWrite)
			}
			if got, want := len(rw.ops), tc.n; got != want {
				t.Fatalf("invalid number of field writes: got=%d, want=%d", got, want)
			}
			for i, f := range rw.ops {
				if f != testFields[testGroups[0][i]] {
					t.Fatalf("field %d written out of order: %+v", i, f)
				}
			}
		})
	}
}

func TestGroupWriteOrder(t *testing.T) {
	tbl := newTestTable(t)
	rw := &failingRW{n: 4}
	err := WriteGroup(rw, tbl, 0, 0x5a)
	if err != nil {
		t.Fatalf("could not write group: %+v", err)
	}
	want := []uint32{0x0, 0x1, 0x6, 0x1}
	if len(rw.vals) != len(want) {
		t.Fatalf("invalid number of writes: got=%d, want=%d", len(rw.vals), len(want))
	}
	for i := range want {
		if rw.vals[i] != want[i] {
			t.Fatalf("field %d: got=0x%x, want=0x%x", i, rw.vals[i], want[i])
		}
	}
}
