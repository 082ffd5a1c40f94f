// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"bytes"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/afe"
	"golang.org/x/xerrors"
)

// EncodeFrames encodes the frames drained by one interrupt:
//
//	u32 number of cycles
//	u32 number of phases
//	u8  late flag
//	u32 samples, cycle after cycle
func EncodeFrames(frames []afe.Frame) ([]byte, error) {
	var (
		buf    = new(bytes.Buffer)
		enc    = tdaq.NewEncoder(buf)
		phases = 0
		late   = uint8(0)
	)
	if len(frames) > 0 {
		phases = len(frames[0].Samples)
		if frames[0].Late {
			late = 1
		}
	}

	enc.WriteU32(uint32(len(frames)))
	enc.WriteU32(uint32(phases))
	enc.WriteU8(late)
	for i, f := range frames {
		if len(f.Samples) != phases {
			return nil, xerrors.Errorf("daq: frame %d has %d samples (want %d)", i, len(f.Samples), phases)
		}
		for _, v := range f.Samples {
			enc.WriteU32(uint32(v))
		}
	}

	if err := enc.Err(); err != nil {
		return nil, xerrors.Errorf("daq: could not encode frames: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeFrames decodes frames encoded with EncodeFrames.
func DecodeFrames(raw []byte) ([]afe.Frame, error) {
	dec := tdaq.NewDecoder(bytes.NewReader(raw))
	var (
		cycles = int(dec.ReadU32())
		phases = int(dec.ReadU32())
		late   = dec.ReadU8() != 0
	)
	if err := dec.Err(); err != nil {
		return nil, xerrors.Errorf("daq: could not decode frames header: %w", err)
	}
	if want := 9 + 4*cycles*phases; len(raw) != want {
		return nil, xerrors.Errorf("daq: invalid frames payload size %d (want %d)", len(raw), want)
	}

	frames := make([]afe.Frame, cycles)
	for i := range frames {
		samples := make([]int32, phases)
		for j := range samples {
			samples[j] = int32(dec.ReadU32())
		}
		frames[i] = afe.Frame{Samples: samples, Late: late}
	}
	if err := dec.Err(); err != nil {
		return nil, xerrors.Errorf("daq: could not decode frames: %w", err)
	}
	return frames, nil
}
