// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakebus provides an in-memory AFE register file and FIFO,
// for tests.
package fakebus // import "github.com/go-lpc/afe/internal/fakebus"

import (
	"encoding/binary"
	"fmt"

	"github.com/go-lpc/afe/fifo"
)

// Op is one register transaction recorded by a Bus.
type Op struct {
	Write bool
	Reg   uint8
	Val   uint32
}

func (op Op) String() string {
	if op.Write {
		return fmt.Sprintf("w(0x%02x, 0x%06x)", op.Reg, op.Val)
	}
	return fmt.Sprintf("r(0x%02x)", op.Reg)
}

// Bus is an in-memory register file with a FIFO.
type Bus struct {
	Regs [256]uint32
	Ops  []Op

	// ReadErr and WriteErr inject failures for the given registers.
	ReadErr  map[uint8]error
	WriteErr map[uint8]error
	// FIFOErr makes every FIFO burst fail.
	FIFOErr error

	shape fifo.Shape
	order binary.ByteOrder
	fifo  []uint32
	nfifo int // number of FIFO bursts
}

// New returns an empty register file delivering FIFO bursts with the
// provided shape. Word-stream samples are little-endian.
func New(shape fifo.Shape) *Bus {
	return &Bus{
		ReadErr:  make(map[uint8]error),
		WriteErr: make(map[uint8]error),
		shape:    shape,
		order:    binary.LittleEndian,
	}
}

// ReadReg implements regmap.Bus.
func (bus *Bus) ReadReg(reg uint8) (uint32, error) {
	bus.Ops = append(bus.Ops, Op{Reg: reg})
	if err := bus.ReadErr[reg]; err != nil {
		return 0, err
	}
	return bus.Regs[reg], nil
}

// WriteReg implements regmap.Bus.
func (bus *Bus) WriteReg(reg uint8, v uint32) error {
	bus.Ops = append(bus.Ops, Op{Write: true, Reg: reg, Val: v})
	if err := bus.WriteErr[reg]; err != nil {
		return err
	}
	bus.Regs[reg] = v
	return nil
}

// Push appends 24-bit samples to the FIFO.
func (bus *Bus) Push(vs ...uint32) {
	for _, v := range vs {
		bus.fifo = append(bus.fifo, v&0xffffff)
	}
}

// Pending returns the number of samples left in the FIFO.
func (bus *Bus) Pending() int { return len(bus.fifo) }

// Bursts returns the number of FIFO bursts performed so far.
func (bus *Bus) Bursts() int { return bus.nfifo }

// Shape implements fifo.Reader.
func (bus *Bus) Shape() fifo.Shape { return bus.shape }

// ReadFIFO implements fifo.Reader.
func (bus *Bus) ReadFIFO(p []byte) error {
	bus.nfifo++
	if bus.FIFOErr != nil {
		return bus.FIFOErr
	}

	stride := bus.shape.Stride()
	if len(p)%stride != 0 {
		return fmt.Errorf("fakebus: burst of %d bytes is not a multiple of %d", len(p), stride)
	}
	n := len(p) / stride
	if n > len(bus.fifo) {
		return fmt.Errorf("fakebus: FIFO underflow (got=%d, want=%d)", len(bus.fifo), n)
	}

	for i, v := range bus.fifo[:n] {
		switch bus.shape {
		case fifo.ByteStream:
			p[3*i+0] = byte(v >> 16)
			p[3*i+1] = byte(v >> 8)
			p[3*i+2] = byte(v)
		default:
			bus.order.PutUint32(p[4*i:], v)
		}
	}
	bus.fifo = bus.fifo[n:]
	return nil
}

// Writes returns the write transactions recorded so far.
func (bus *Bus) Writes() []Op {
	var ops []Op
	for _, op := range bus.Ops {
		if op.Write {
			ops = append(ops, op)
		}
	}
	return ops
}

// Reset clears the transaction log.
func (bus *Bus) Reset() {
	bus.Ops = bus.Ops[:0]
}
