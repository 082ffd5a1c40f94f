// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spidev gives register and FIFO access to an AFE device
// connected through a Linux spidev character device.
package spidev // import "github.com/go-lpc/afe/internal/spidev"

import (
	"os"
	"runtime"
	"unsafe"

	"github.com/go-lpc/afe/fifo"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

const (
	iocWrMode         = 0x40016b01
	iocWrBitsPerWord  = 0x40016b03
	iocWrMaxSpeedHz   = 0x40046b04
	iocMessageBase    = 0x40006b00
	iocTransferSize   = 32
	defaultSpeedHz    = 4000000
	registerBurstSize = 4
)

func iocMessage(n int) uintptr {
	return uintptr(iocMessageBase | (n*iocTransferSize)<<16)
}

// transfer mirrors struct spi_ioc_transfer.
type transfer struct {
	txBuf       uint64
	rxBuf       uint64
	len         uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

// msg is one segment of a full-duplex SPI message.
type msg struct {
	tx  []byte
	rx  []byte
	bpw uint8
}

// Conn is an SPI connection to an AFE device.
// Conn is not safe for concurrent use.
type Conn struct {
	f     *os.File
	speed uint32
	buf   [registerBurstSize]byte

	xfer func(msgs []msg) error
}

// Open opens the spidev device at path, in SPI mode 0, clocked at speed Hz.
// A zero speed selects 4 MHz.
func Open(path string, speed uint32) (*Conn, error) {
	if speed == 0 {
		speed = defaultSpeedHz
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, xerrors.Errorf("spidev: could not open %q: %w", path, err)
	}

	conn := &Conn{f: f, speed: speed}
	conn.xfer = conn.ioctl

	var (
		mode uint8 = 0
		bpw  uint8 = 8
	)
	for _, v := range []struct {
		name string
		req  uintptr
		ptr  unsafe.Pointer
	}{
		{"mode", iocWrMode, unsafe.Pointer(&mode)},
		{"bits per word", iocWrBitsPerWord, unsafe.Pointer(&bpw)},
		{"max speed", iocWrMaxSpeedHz, unsafe.Pointer(&conn.speed)},
	} {
		err = ioctl(f.Fd(), v.req, v.ptr)
		if err != nil {
			_ = f.Close()
			return nil, xerrors.Errorf("spidev: could not set %s of %q: %w", v.name, path, err)
		}
	}

	return conn, nil
}

// Close closes the underlying spidev device.
func (c *Conn) Close() error {
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	if err != nil {
		return xerrors.Errorf("spidev: could not close device: %w", err)
	}
	return nil
}

// Shape implements fifo.Reader.
// The 24-bit frame mode of the controller delivers one sample per 32-bit word.
func (c *Conn) Shape() fifo.Shape { return fifo.WordStream }

// ReadReg implements regmap.Bus.
func (c *Conn) ReadReg(reg uint8) (uint32, error) {
	c.buf = [registerBurstSize]byte{reg}
	err := c.xfer([]msg{{tx: c.buf[:], rx: c.buf[:], bpw: 8}})
	if err != nil {
		return 0, xerrors.Errorf("spidev: could not read register 0x%02x: %w", reg, err)
	}
	return uint32(c.buf[1])<<16 | uint32(c.buf[2])<<8 | uint32(c.buf[3]), nil
}

// WriteReg implements regmap.Bus.
func (c *Conn) WriteReg(reg uint8, v uint32) error {
	c.buf = [registerBurstSize]byte{reg, byte(v >> 16), byte(v >> 8), byte(v)}
	err := c.xfer([]msg{{tx: c.buf[:], bpw: 8}})
	if err != nil {
		return xerrors.Errorf("spidev: could not write register 0x%02x: %w", reg, err)
	}
	return nil
}

// ReadFIFO implements fifo.Reader.
// The FIFO address is sent with 8-bit words, then the samples are
// clocked in with 24-bit words.
func (c *Conn) ReadFIFO(p []byte) error {
	addr := []byte{fifo.Addr}
	err := c.xfer([]msg{
		{tx: addr, bpw: 8},
		{rx: p, bpw: 24},
	})
	if err != nil {
		return xerrors.Errorf("spidev: could not read %d FIFO bytes: %w", len(p), err)
	}
	return nil
}

func (c *Conn) ioctl(msgs []msg) error {
	if c.f == nil {
		return os.ErrClosed
	}

	xfers := make([]transfer, len(msgs))
	for i, m := range msgs {
		n := len(m.tx)
		if n == 0 {
			n = len(m.rx)
		}
		xfers[i] = transfer{
			len:         uint32(n),
			speedHz:     c.speed,
			bitsPerWord: m.bpw,
		}
		if len(m.tx) > 0 {
			xfers[i].txBuf = uint64(uintptr(unsafe.Pointer(&m.tx[0])))
		}
		if len(m.rx) > 0 {
			xfers[i].rxBuf = uint64(uintptr(unsafe.Pointer(&m.rx[0])))
		}
	}
	err := ioctl(c.f.Fd(), iocMessage(len(xfers)), unsafe.Pointer(&xfers[0]))
	runtime.KeepAlive(msgs)
	return err
}

func ioctl(fd, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
