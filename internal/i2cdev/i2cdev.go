// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package i2cdev gives register and FIFO access to an AFE device
// connected on an I2C bus.
package i2cdev // import "github.com/go-lpc/afe/internal/i2cdev"

import (
	"github.com/go-daq/smbus"
	"github.com/go-lpc/afe/fifo"
	"golang.org/x/xerrors"
)

// chunkSize is the largest whole number of 3-byte samples fitting in
// an SMBus block transfer.
const chunkSize = 30

type smbusConn interface {
	ReadBlockData(addr, reg uint8, buf []byte) error
	WriteBlockData(addr, reg uint8, buf []byte) error
	Close() error
}

var smbusOpen = func(bus int, addr uint8) (smbusConn, error) {
	return smbus.Open(bus, addr)
}

// Conn is an I2C connection to an AFE device.
// Conn is not safe for concurrent use.
type Conn struct {
	bus  smbusConn
	addr uint8
	buf  [3]byte
}

// Open opens the I2C bus number bus and addresses the device at addr.
func Open(bus int, addr uint8) (*Conn, error) {
	c, err := smbusOpen(bus, addr)
	if err != nil {
		return nil, xerrors.Errorf("i2cdev: could not open bus %d (addr=0x%02x): %w", bus, addr, err)
	}
	return &Conn{bus: c, addr: addr}, nil
}

// Close closes the underlying bus.
func (c *Conn) Close() error {
	err := c.bus.Close()
	if err != nil {
		return xerrors.Errorf("i2cdev: could not close bus: %w", err)
	}
	return nil
}

// Shape implements fifo.Reader.
func (c *Conn) Shape() fifo.Shape { return fifo.ByteStream }

// ReadReg implements regmap.Bus.
func (c *Conn) ReadReg(reg uint8) (uint32, error) {
	err := c.bus.ReadBlockData(c.addr, reg, c.buf[:])
	if err != nil {
		return 0, xerrors.Errorf("i2cdev: could not read register 0x%02x: %w", reg, err)
	}
	return uint32(c.buf[0])<<16 | uint32(c.buf[1])<<8 | uint32(c.buf[2]), nil
}

// WriteReg implements regmap.Bus.
func (c *Conn) WriteReg(reg uint8, v uint32) error {
	c.buf = [3]byte{byte(v >> 16), byte(v >> 8), byte(v)}
	err := c.bus.WriteBlockData(c.addr, reg, c.buf[:])
	if err != nil {
		return xerrors.Errorf("i2cdev: could not write register 0x%02x: %w", reg, err)
	}
	return nil
}

// ReadFIFO implements fifo.Reader.
// Samples are read from the FIFO address in block transfers of at
// most ten samples.
func (c *Conn) ReadFIFO(p []byte) error {
	for beg := 0; beg < len(p); beg += chunkSize {
		end := beg + chunkSize
		if end > len(p) {
			end = len(p)
		}
		err := c.bus.ReadBlockData(c.addr, fifo.Addr, p[beg:end])
		if err != nil {
			return xerrors.Errorf("i2cdev: could not read FIFO bytes [%d:%d]: %w", beg, end, err)
		}
	}
	return nil
}
