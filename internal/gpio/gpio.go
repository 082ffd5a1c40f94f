// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gpio drives GPIO lines through the Linux sysfs interface.
package gpio // import "github.com/go-lpc/afe/internal/gpio"

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

var sysfs = "/sys/class/gpio"

// pollSlice is the poll timeout, in milliseconds, between two checks
// of the wait context.
const pollSlice = 100

// Edge selects the transitions an input line reports.
type Edge string

const (
	None    Edge = "none"
	Rising  Edge = "rising"
	Falling Edge = "falling"
	Both    Edge = "both"
)

// Pin is an exported GPIO line.
type Pin struct {
	n int
	f *os.File // value file
}

func pinDir(n int) string {
	return filepath.Join(sysfs, "gpio"+strconv.Itoa(n))
}

// Export makes line n available in sysfs, if it is not already.
func Export(n int) error {
	_, err := os.Stat(pinDir(n))
	if err == nil {
		return nil
	}

	err = os.WriteFile(filepath.Join(sysfs, "export"), []byte(strconv.Itoa(n)), 0)
	if err != nil {
		return xerrors.Errorf("gpio: could not export line %d: %w", n, err)
	}
	return nil
}

func open(n int, attrs ...[2]string) (*Pin, error) {
	err := Export(n)
	if err != nil {
		return nil, err
	}

	dir := pinDir(n)
	for _, attr := range attrs {
		err = os.WriteFile(filepath.Join(dir, attr[0]), []byte(attr[1]), 0)
		if err != nil {
			return nil, xerrors.Errorf("gpio: could not set %s of line %d to %q: %w", attr[0], n, attr[1], err)
		}
	}

	f, err := os.OpenFile(filepath.Join(dir, "value"), os.O_RDWR, 0)
	if err != nil {
		return nil, xerrors.Errorf("gpio: could not open line %d: %w", n, err)
	}
	return &Pin{n: n, f: f}, nil
}

// OpenInput exports line n as an input reporting the provided edges.
func OpenInput(n int, edge Edge) (*Pin, error) {
	return open(n, [2]string{"direction", "in"}, [2]string{"edge", string(edge)})
}

// OpenOutput exports line n as an output driven to v.
func OpenOutput(n int, v int) (*Pin, error) {
	dir := "low"
	if v != 0 {
		dir = "high"
	}
	return open(n, [2]string{"direction", dir})
}

// Close releases the line. The line stays exported.
func (p *Pin) Close() error {
	if p.f == nil {
		return nil
	}
	err := p.f.Close()
	p.f = nil
	if err != nil {
		return xerrors.Errorf("gpio: could not close line %d: %w", p.n, err)
	}
	return nil
}

// Set drives the line low when v is 0, high otherwise.
func (p *Pin) Set(v int) error {
	b := []byte("0")
	if v != 0 {
		b[0] = '1'
	}
	_, err := p.f.WriteAt(b, 0)
	if err != nil {
		return xerrors.Errorf("gpio: could not set line %d: %w", p.n, err)
	}
	return nil
}

// Value returns the current level of the line.
func (p *Pin) Value() (int, error) {
	var buf [1]byte
	_, err := p.f.ReadAt(buf[:], 0)
	if err != nil {
		return 0, xerrors.Errorf("gpio: could not read line %d: %w", p.n, err)
	}
	switch buf[0] {
	case '0':
		return 0, nil
	case '1':
		return 1, nil
	default:
		return 0, xerrors.Errorf("gpio: invalid value %q for line %d", buf[0], p.n)
	}
}

// Wait blocks until the line is high or reports an edge, or until ctx
// is done.
func (p *Pin) Wait(ctx context.Context) error {
	v, err := p.Value()
	if err != nil {
		return err
	}
	if v == 1 {
		return nil
	}

	fds := []unix.PollFd{{
		Fd:     int32(p.f.Fd()),
		Events: unix.POLLPRI | unix.POLLERR,
	}}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := unix.Poll(fds, pollSlice)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			return xerrors.Errorf("gpio: could not poll line %d: %w", p.n, err)
		case n == 0:
			continue
		}

		// reading the value acknowledges the edge.
		_, err = p.Value()
		return err
	}
}

// Rail is a power rail switched by an output line.
type Rail struct {
	pin *Pin
}

// NewRail returns a rail switched by pin.
func NewRail(pin *Pin) *Rail {
	return &Rail{pin: pin}
}

// Enable drives the rail line high.
func (r *Rail) Enable() error { return r.pin.Set(1) }

// Disable drives the rail line low.
func (r *Rail) Disable() error { return r.pin.Set(0) }
