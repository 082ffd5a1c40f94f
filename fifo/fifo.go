// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fifo decodes AFE FIFO bursts into 24-bit sample words.
package fifo // import "github.com/go-lpc/afe/fifo"

import (
	"encoding/binary"
	"fmt"
)

// Addr is the register address of a FIFO burst read.
const Addr = 0xff

// Shape describes how a transport delivers FIFO samples.
type Shape int

const (
	// ByteStream transports carry 3 big-endian bytes per sample, unpadded.
	ByteStream Shape = iota
	// WordStream transports deliver each sample in its own 32-bit word.
	WordStream
)

func (s Shape) String() string {
	switch s {
	case ByteStream:
		return "byte-stream"
	case WordStream:
		return "word-stream"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// Stride returns the number of bytes one sample occupies on the wire.
func (s Shape) Stride() int {
	if s == ByteStream {
		return 3
	}
	return 4
}

// Reader performs FIFO burst reads.
type Reader interface {
	// ReadFIFO fills p with consecutive FIFO entries, starting a burst
	// at address Addr.
	ReadFIFO(p []byte) error
	// Shape returns the layout of the bytes ReadFIFO delivers.
	Shape() Shape
}

// Repack24 realigns n samples packed as 3-byte big-endian triples at the
// start of buf into n 4-byte little-endian slots of the same buffer.
// buf must hold at least 4*n bytes.
//
// Slots are filled from the last to the first: source triples sit at a
// stride of 3 and slots at a stride of 4, so any other order overwrites
// triples that have not been read yet.
func Repack24(buf []byte, n int) {
	if n <= 0 {
		return
	}
	_ = buf[4*n-1]
	for i := n - 1; i >= 0; i-- {
		j := 3 * i
		v := uint32(buf[j])<<16 | uint32(buf[j+1])<<8 | uint32(buf[j+2])
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
}

// SignExtend interprets the low bits of v as a two's complement integer.
func SignExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}
