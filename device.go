// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package afe

import (
	"sort"

	"github.com/go-lpc/afe/fifo"
	"github.com/go-lpc/afe/regmap"
	"golang.org/x/xerrors"
)

// device holds the state shared by all AFE variants.
type device struct {
	name string
	msg  msgStream

	tr    Transport
	regs  *regmap.Map
	dec   *fifo.Decoder
	rail  Rail
	reset Line

	chans []Channel
	attrs []attribute // sorted by name
	scan  scanner
}

func newDevice(name string, tr Transport, tbl *regmap.Table, chans []Channel, max int, cfg config, opts ...regmap.Option) (*device, error) {
	err := checkChannels(tbl, chans)
	if err != nil {
		return nil, xerrors.Errorf("afe: invalid %s channel table: %w", name, err)
	}

	dev := &device{
		name:  name,
		msg:   cfg.msg,
		tr:    tr,
		regs:  regmap.New(tr, tbl, opts...),
		dec:   fifo.NewDecoder(tr.Shape(), nil, max),
		rail:  cfg.rail,
		reset: cfg.reset,
		chans: chans,
	}
	dev.scan.dev = dev
	return dev, nil
}

func (dev *device) setAttrs(attrs []attribute) error {
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].name < attrs[j].name
	})
	for i, attr := range attrs {
		if i > 0 && attrs[i-1].name == attr.name {
			return xerrors.Errorf("afe: duplicate attribute %q", attr.name)
		}
		if attr.group != regmap.NoGroup && !dev.regs.Table().HasGroup(attr.group) {
			return xerrors.Errorf("afe: attribute %q references unknown group %d", attr.name, attr.group)
		}
	}
	dev.attrs = attrs
	return nil
}

// Name returns the variant name of the device.
func (dev *device) Name() string { return dev.name }

// Phases returns the number of active phases.
func (dev *device) Phases() int { return dev.scan.phases }

// Channels returns the channel table of the device.
func (dev *device) Channels() []Channel { return dev.chans }

// ServiceInterrupt drains the FIFO after a data-ready interrupt and returns
// the complete sampling cycles it held, oldest first.
//
// A *FramingError is returned when the device reports a number of samples
// that does not split into whole cycles, and the samples are not read.
func (dev *device) ServiceInterrupt() ([]Frame, error) {
	return dev.scan.service()
}

// ReadAttribute reads the raw value of field group id.
func (dev *device) ReadAttribute(id regmap.GroupID) (uint32, error) {
	if !dev.regs.Table().HasGroup(id) {
		return 0, configErrorf("", "unknown field group %d", id)
	}
	return dev.regs.ReadGroup(id)
}

// WriteAttribute writes v to field group id.
// Bits of v beyond the width of the group are dropped.
func (dev *device) WriteAttribute(id regmap.GroupID, v uint32) error {
	if !dev.regs.Table().HasGroup(id) {
		return configErrorf("", "unknown field group %d", id)
	}
	return dev.regs.WriteGroup(id, v)
}

// ReadReg reads a raw device register.
func (dev *device) ReadReg(reg uint8) (uint32, error) {
	return dev.regs.Read(reg)
}

// WriteReg writes a raw device register.
func (dev *device) WriteReg(reg uint8, v uint32) error {
	return dev.regs.Write(reg, v)
}

func (dev *device) setReset(v int) {
	if dev.reset == nil {
		return
	}
	err := dev.reset.Set(v)
	if err != nil {
		dev.msg.Errorf("could not set reset line to %d: %+v", v, err)
	}
}

func (dev *device) powerUp() error {
	err := dev.rail.Enable()
	if err != nil {
		dev.msg.Errorf("unable to enable regulator: %+v", err)
		return xerrors.Errorf("afe: could not enable power rail: %w", err)
	}
	dev.setReset(0)
	return nil
}

func (dev *device) powerDown() error {
	err := dev.rail.Disable()
	if err != nil {
		dev.msg.Errorf("unable to disable regulator: %+v", err)
		return xerrors.Errorf("afe: could not disable power rail: %w", err)
	}
	return nil
}

// Close powers the device down.
func (dev *device) Close() error {
	return dev.powerDown()
}
