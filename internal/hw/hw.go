// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hw assembles an AFE device with its bus and GPIO lines.
package hw // import "github.com/go-lpc/afe/internal/hw"

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/afe"
	"github.com/go-lpc/afe/internal/config"
	"github.com/go-lpc/afe/internal/gpio"
	"github.com/go-lpc/afe/internal/i2cdev"
	"github.com/go-lpc/afe/internal/spidev"
	"golang.org/x/time/rate"
	"golang.org/x/xerrors"
)

type transport interface {
	afe.Transport
	io.Closer
}

type waiter interface {
	Wait(ctx context.Context) error
}

var (
	openSPI = func(dev string, speed uint32) (transport, error) {
		return spidev.Open(dev, speed)
	}
	openI2C = func(bus int, addr uint8) (transport, error) {
		return i2cdev.Open(bus, addr)
	}
	openIRQ = func(n int) (waiter, io.Closer, error) {
		pin, err := gpio.OpenInput(n, gpio.Rising)
		if err != nil {
			return nil, nil, err
		}
		return pin, pin, nil
	}

	newBackOff = func() backoff.BackOff {
		return &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.1,
			Multiplier:          2,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      5 * time.Second,
			Clock:               backoff.SystemClock,
		}
	}
)

// pollPeriod is the FIFO polling period of boards without a
// data-ready interrupt line.
const pollPeriod = 20 * time.Millisecond

// errPause is the delay before waiting for the next interrupt after a
// failed service. A level-triggered data-ready line stays high while
// the FIFO is not drained.
var errPause = 10 * time.Millisecond

// ErrClosed is returned when accessing a closed board.
var ErrClosed = xerrors.New("hw: board closed")

// Board is an AFE device with its bus and GPIO lines.
//
// Board serializes configuration accesses with the interrupt service,
// so its methods are safe for concurrent use.
type Board struct {
	mu  sync.Mutex
	dev afe.Device
	irq waiter
	msg log.MsgStream
	lim *rate.Limiter // rate of error messages from the hot path

	closers []io.Closer // closed in reverse order
}

// Open opens the bus and the GPIO lines described by cfg, then
// initializes the device and applies its channels and attributes.
func Open(cfg config.Config, msg log.MsgStream) (*Board, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	if cfg.Device.Variant == config.AFE4410 && cfg.Device.IRQ < 0 {
		return nil, xerrors.Errorf("hw: variant %s needs a data-ready interrupt line", cfg.Device.Variant)
	}

	board := &Board{
		msg: msg,
		lim: rate.NewLimiter(rate.Every(time.Second), 5),
		irq: ticker(pollPeriod),
	}
	defer func() {
		if err != nil {
			board.release()
		}
	}()

	tr, err := openBus(cfg.Device, msg)
	if err != nil {
		return nil, err
	}
	board.closers = append(board.closers, tr)

	opts := []afe.Option{afe.WithMsgStream(msg)}
	if n := cfg.Device.Supply; n >= 0 {
		var pin *gpio.Pin
		pin, err = gpio.OpenOutput(n, 0)
		if err != nil {
			return nil, xerrors.Errorf("hw: could not open supply line: %w", err)
		}
		board.closers = append(board.closers, pin)
		opts = append(opts, afe.WithRail(gpio.NewRail(pin)))
	}
	if n := cfg.Device.Reset; n >= 0 {
		var pin *gpio.Pin
		pin, err = gpio.OpenOutput(n, 1)
		if err != nil {
			return nil, xerrors.Errorf("hw: could not open reset line: %w", err)
		}
		board.closers = append(board.closers, pin)
		opts = append(opts, afe.WithReset(pin))
	}
	if n := cfg.Device.IRQ; n >= 0 {
		var (
			irq waiter
			c   io.Closer
		)
		irq, c, err = openIRQ(n)
		if err != nil {
			return nil, xerrors.Errorf("hw: could not open data-ready line: %w", err)
		}
		board.closers = append(board.closers, c)
		board.irq = irq
	}

	dev, err := newDevice(cfg.Device.Variant, tr, opts)
	if err != nil {
		return nil, xerrors.Errorf("hw: could not create %s device: %w", cfg.Device.Variant, err)
	}

	err = configure(dev, cfg)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	board.dev = dev

	return board, nil
}

func openBus(cfg config.Device, msg log.MsgStream) (transport, error) {
	var (
		tr   transport
		name string
		op   func() error
	)
	switch cfg.Bus {
	case config.BusSPI:
		name = cfg.SPI.Dev
		op = func() error {
			var err error
			tr, err = openSPI(cfg.SPI.Dev, cfg.SPI.Speed)
			return err
		}
	case config.BusI2C:
		name = "/dev/i2c-" + strconv.Itoa(cfg.I2C.Bus)
		op = func() error {
			var err error
			tr, err = openI2C(cfg.I2C.Bus, cfg.I2C.Addr)
			return err
		}
	default:
		return nil, xerrors.Errorf("hw: invalid bus %q", cfg.Bus)
	}

	err := backoff.RetryNotify(op, newBackOff(), func(err error, d time.Duration) {
		msg.Debugf("could not open %s (retrying in %v): %+v", name, d, err)
	})
	if err != nil {
		return nil, xerrors.Errorf("hw: could not open %s bus %q: %w", cfg.Bus, name, err)
	}
	return tr, nil
}

func newDevice(variant string, tr transport, opts []afe.Option) (afe.Device, error) {
	switch variant {
	case config.AFE4420:
		return afe.NewAFE4420(tr, opts...)
	case config.AFE4410:
		return afe.NewAFE4410(tr, opts...)
	default:
		return nil, xerrors.Errorf("hw: invalid variant %q", variant)
	}
}

func configure(dev afe.Device, cfg config.Config) error {
	err := dev.ConfigureChannels(cfg.Mask(dev.MaxPhases()))
	if err != nil {
		return xerrors.Errorf("hw: could not configure channels: %w", err)
	}

	for _, name := range cfg.AttrNames() {
		err = dev.SetAttr(name, cfg.Attributes[name])
		if err != nil {
			return xerrors.Errorf("hw: could not apply configuration: %w", err)
		}
	}
	return nil
}

// Device returns the underlying device.
// Callers must use Do to access it while Run is active.
func (b *Board) Device() afe.Device { return b.dev }

// Do runs f with exclusive access to the device.
func (b *Board) Do(f func(dev afe.Device) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dev == nil {
		return ErrClosed
	}
	return f(b.dev)
}

// Run services data-ready interrupts until ctx is done, handing the
// drained frames over to sink.
// Framing and bus errors are logged and the faulty interrupt dropped.
// Run returns the first error of sink, or nil once ctx is done or the
// board is closed.
func (b *Board) Run(ctx context.Context, sink func(frames []afe.Frame) error) error {
	for {
		err := b.irq.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil || b.closed() {
				return nil
			}
			return xerrors.Errorf("hw: could not wait for data-ready interrupt: %w", err)
		}

		b.mu.Lock()
		if b.dev == nil {
			b.mu.Unlock()
			return nil
		}
		frames, err := b.dev.ServiceInterrupt()
		b.mu.Unlock()
		if err != nil {
			if b.lim.Allow() {
				b.msg.Errorf("could not service interrupt: %+v", err)
			}
			if ticker(errPause).Wait(ctx) != nil {
				return nil
			}
			continue
		}
		if len(frames) == 0 {
			continue
		}

		err = sink(frames)
		if err != nil {
			return xerrors.Errorf("hw: could not process frames: %w", err)
		}
	}
}

func (b *Board) closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev == nil
}

// Close powers the device down and releases its bus and GPIO lines.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.dev != nil {
		err = b.dev.Close()
		if err != nil {
			err = xerrors.Errorf("hw: could not close device: %w", err)
		}
		b.dev = nil
	}
	if e := b.release(); e != nil && err == nil {
		err = e
	}
	return err
}

func (b *Board) release() error {
	var err error
	for i := len(b.closers) - 1; i >= 0; i-- {
		e := b.closers[i].Close()
		if e != nil && err == nil {
			err = xerrors.Errorf("hw: could not release board: %w", e)
		}
	}
	b.closers = nil
	return err
}

// ticker is a waiter firing at a fixed period.
type ticker time.Duration

func (t ticker) Wait(ctx context.Context) error {
	timer := time.NewTimer(time.Duration(t))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
