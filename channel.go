// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package afe

import (
	"golang.org/x/xerrors"

	"github.com/go-lpc/afe/regmap"
)

// Channel describes where the value and settings of one logical
// intensity channel live in the device.
// Settings a channel does not carry are set to regmap.NoGroup.
type Channel struct {
	Name string

	Value    uint8 // raw intensity register, valid when HasValue
	HasValue bool

	LED      regmap.GroupID // LED current
	Offset   regmap.GroupID // offset cancellation DAC
	Pol      regmap.GroupID // offset DAC polarity
	Gain     regmap.GroupID // TIA feedback resistance
	Cap      regmap.GroupID // TIA feedback capacitance
	Averages regmap.GroupID // number of averaged conversions
}

func (ch Channel) groups() []regmap.GroupID {
	return []regmap.GroupID{ch.LED, ch.Offset, ch.Pol, ch.Gain, ch.Cap, ch.Averages}
}

// checkChannels verifies that every group referenced by the channel
// table exists in the layout table.
func checkChannels(tbl *regmap.Table, chans []Channel) error {
	for i, ch := range chans {
		for _, id := range ch.groups() {
			if id == regmap.NoGroup {
				continue
			}
			if !tbl.HasGroup(id) {
				return xerrors.Errorf("channel %d (%s) references unknown group %d", i, ch.Name, id)
			}
		}
	}
	return nil
}
