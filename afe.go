// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package afe

import (
	"os"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/afe/fifo"
	"github.com/go-lpc/afe/regmap"
)

// Device is an AFE optical front end.
//
// Device values are not safe for concurrent use: the interrupt service
// and the configuration methods must be serialized by the caller.
type Device interface {
	// Name returns the variant name of the device (afe4420, afe4410).
	Name() string
	// Phases returns the number of currently active phases.
	Phases() int
	// MaxPhases returns the number of phases the device supports.
	MaxPhases() int

	// ConfigureChannels selects the active channels.
	ConfigureChannels(mask uint32) error
	// ServiceInterrupt drains the FIFO after a data-ready interrupt.
	ServiceInterrupt() ([]Frame, error)

	// ReadAttribute reads the raw value of a field group.
	ReadAttribute(id regmap.GroupID) (uint32, error)
	// WriteAttribute writes the raw value of a field group.
	WriteAttribute(id regmap.GroupID, v uint32) error

	// Attrs returns the sorted names of the device attributes.
	Attrs() []string
	// Attr returns the formatted value of the named attribute.
	Attr(name string) (string, error)
	// SetAttr parses and stores the value of the named attribute.
	SetAttr(name, value string) error

	// ReadReg reads a raw device register.
	ReadReg(reg uint8) (uint32, error)
	// WriteReg writes a raw device register.
	WriteReg(reg uint8, v uint32) error

	// Start enables the FIFO and the sequence timer.
	Start() error
	// Stop disables the FIFO and holds the sequence timer in reset.
	Stop() error
	// Suspend powers the device down.
	Suspend() error
	// Resume powers the device up after Suspend.
	Resume() error
	// Close powers the device down and releases it.
	Close() error
}

// Frame holds the samples of all active channels for one sampling cycle.
type Frame struct {
	Samples []int32
	// Late reports that the FIFO held more cycles than expected
	// when it was drained, so older data may have been overwritten.
	Late bool
}

// Transport is a register and FIFO transport to a device.
type Transport interface {
	regmap.Bus
	fifo.Reader
}

// Rail is a power supply rail.
type Rail interface {
	Enable() error
	Disable() error
}

// Line is a digital output line.
type Line interface {
	Set(v int) error
}

type msgStream interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type config struct {
	msg   msgStream
	rail  Rail
	reset Line
}

// Option configures a device.
type Option func(cfg *config)

// WithMsgStream sets the message stream a device logs to.
func WithMsgStream(msg log.MsgStream) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithRail sets the power rail feeding the device.
func WithRail(rail Rail) Option {
	return func(cfg *config) {
		cfg.rail = rail
	}
}

// WithReset sets the active-high reset line of the device.
func WithReset(line Line) Option {
	return func(cfg *config) {
		cfg.reset = line
	}
}

func newConfig(name string, opts []Option) config {
	cfg := config{
		rail: nopRail{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.msg == nil {
		cfg.msg = log.NewMsgStream(name, log.LvlInfo, os.Stdout)
	}
	return cfg
}

type nopRail struct{}

func (nopRail) Enable() error  { return nil }
func (nopRail) Disable() error { return nil }
