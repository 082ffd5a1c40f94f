// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package afe

import (
	"fmt"
)

// FramingError reports a FIFO sample count that does not split into
// whole sampling cycles. The data of that interrupt is discarded.
type FramingError struct {
	Samples int // new samples reported by the device
	Phases  int // active phases
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("afe: %d new FIFO samples is not a whole number of %d-phase cycles", e.Samples, e.Phases)
}

// ConfigError reports a configuration request the device can not represent.
type ConfigError struct {
	Attr string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Attr == "" {
		return "afe: " + e.Msg
	}
	return fmt.Sprintf("afe: %s: %s", e.Attr, e.Msg)
}

func configErrorf(attr, format string, args ...interface{}) error {
	return &ConfigError{Attr: attr, Msg: fmt.Sprintf(format, args...)}
}
