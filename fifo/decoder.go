// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fifo

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

const mask24 = 1<<24 - 1

// Decoder reads FIFO bursts from a transport and realigns them into
// 24-bit sample words.
// A Decoder reuses its buffers across calls to Read.
type Decoder struct {
	shape Shape
	order binary.ByteOrder

	buf   []byte   // raw transfer buffer, 4 bytes per sample
	words []uint32 // decoded samples
}

// NewDecoder creates a decoder for transports of the provided shape,
// able to hold up to max samples per burst.
// order is the byte order of word-stream samples; it is unused for
// byte-stream transports.
func NewDecoder(shape Shape, order binary.ByteOrder, max int) *Decoder {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Decoder{
		shape: shape,
		order: order,
		buf:   make([]byte, 4*max),
		words: make([]uint32, max),
	}
}

// Shape returns the transport shape the decoder expects.
func (dec *Decoder) Shape() Shape { return dec.shape }

// Max returns the maximum number of samples per burst.
func (dec *Decoder) Max() int { return len(dec.words) }

// Read performs one FIFO burst of n samples from r and returns the
// decoded unsigned 24-bit words.
// The returned slice is only valid until the next call to Read.
func (dec *Decoder) Read(r Reader, n int) ([]uint32, error) {
	switch {
	case n < 0, n > len(dec.words):
		return nil, xerrors.Errorf("fifo: invalid burst size %d (max=%d)", n, len(dec.words))
	case n == 0:
		return dec.words[:0], nil
	}

	if shape := r.Shape(); shape != dec.shape {
		return nil, xerrors.Errorf("fifo: transport shape mismatch (got=%v, want=%v)", shape, dec.shape)
	}

	raw := dec.buf[:n*dec.shape.Stride()]
	err := r.ReadFIFO(raw)
	if err != nil {
		return nil, xerrors.Errorf("fifo: could not read %d samples: %w", n, err)
	}

	return dec.Decode(n), nil
}

// Decode realigns the first n samples of the raw transfer buffer,
// as filled by a transport of the decoder's shape.
func (dec *Decoder) Decode(n int) []uint32 {
	words := dec.words[:n]
	switch dec.shape {
	case ByteStream:
		Repack24(dec.buf, n)
		for i := range words {
			words[i] = binary.LittleEndian.Uint32(dec.buf[4*i:]) & mask24
		}
	default:
		for i := range words {
			words[i] = dec.order.Uint32(dec.buf[4*i:]) & mask24
		}
	}
	return words
}

// Buffer returns the raw transfer buffer of the decoder.
func (dec *Decoder) Buffer() []byte { return dec.buf }
