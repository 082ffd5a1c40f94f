// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package afe

import (
	"math/bits"

	"github.com/go-lpc/afe/fifo"
	"golang.org/x/xerrors"
)

// Watermark returns the FIFO fill level at which the device raises its
// data-ready interrupt, for the given number of active phases and
// cycles per interrupt.
func Watermark(phases, depth int) int {
	return phases*depth - 1
}

// PointerDiff converts a raw FIFO pointer difference register value,
// bits wide, into the number of new samples since the last drain.
func PointerDiff(raw uint32, bits uint) int {
	return int(fifo.SignExtend(raw, bits)) + 1
}

// Cycles returns the number of complete sampling cycles held by n new
// FIFO samples.
func Cycles(n, phases int) (int, error) {
	if phases <= 0 || n < 0 || n%phases != 0 {
		return 0, &FramingError{Samples: n, Phases: phases}
	}
	return n / phases, nil
}

// contiguous returns the number of channels selected by mask,
// which must select channels 0 to n-1.
func contiguous(mask uint32) (int, bool) {
	n := bits.TrailingZeros32(^mask)
	return n, n > 0 && mask>>uint(n) == 0
}

// scanner keeps the active phase count of a device and drains its FIFO.
type scanner struct {
	dev *device

	phases int // active phases
	depth  int // expected cycles per interrupt

	// pointer difference register and its width. ptrBits is zero for
	// devices that always deliver depth cycles per interrupt.
	ptrReg  uint8
	ptrBits uint
}

// newSamples returns the number of samples the device reports
// since the last drain.
func (sc *scanner) newSamples() (int, error) {
	if sc.ptrBits == 0 {
		return sc.phases * sc.depth, nil
	}
	raw, err := sc.dev.regs.Read(sc.ptrReg)
	if err != nil {
		return 0, xerrors.Errorf("afe: could not read FIFO pointer difference: %w", err)
	}
	return PointerDiff(raw, sc.ptrBits), nil
}

// service drains one interrupt's worth of FIFO samples.
func (sc *scanner) service() ([]Frame, error) {
	var (
		dev    = sc.dev
		phases = sc.phases
	)

	n, err := sc.newSamples()
	if err != nil {
		return nil, err
	}

	cycles, err := Cycles(n, phases)
	if err != nil {
		dev.msg.Errorf("samples in FIFO not a multiple of used phases (samples=%d, phases=%d)", n, phases)
		return nil, err
	}
	if n > dev.dec.Max() {
		dev.msg.Errorf("FIFO overflow (samples=%d, max=%d)", n, dev.dec.Max())
		return nil, &FramingError{Samples: n, Phases: phases}
	}

	dev.msg.Debugf("full cycles in FIFO: %d", cycles)
	late := false
	switch {
	case cycles < sc.depth:
		dev.msg.Infof("early FIFO interrupt (cycles=%d)", cycles)
	case cycles > sc.depth:
		dev.msg.Infof("late FIFO interrupt (cycles=%d)", cycles)
		late = true
	}

	words, err := dev.dec.Read(dev.tr, n)
	if err != nil {
		return nil, xerrors.Errorf("afe: could not drain FIFO: %w", err)
	}

	frames := make([]Frame, cycles)
	for i := range frames {
		samples := make([]int32, phases)
		for j, w := range words[i*phases : (i+1)*phases] {
			samples[j] = fifo.SignExtend(w, 24)
		}
		frames[i] = Frame{Samples: samples, Late: late}
	}
	return frames, nil
}
