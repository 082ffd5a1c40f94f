// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package afe

import (
	"fmt"

	"github.com/go-lpc/afe/regmap"
	"golang.org/x/xerrors"
)

// AFE4410 registers.
const (
	afe4410Control0     = 0x00
	afe4410LED2STC      = 0x01
	afe4410LED2ENDC     = 0x02
	afe4410LED1LEDSTC   = 0x03
	afe4410LED1LEDENDC  = 0x04
	afe4410ALED2STC     = 0x05
	afe4410ALED2ENDC    = 0x06
	afe4410LED1STC      = 0x07
	afe4410LED1ENDC     = 0x08
	afe4410LED2LEDSTC   = 0x09
	afe4410LED2LEDENDC  = 0x0a
	afe4410ALED1STC     = 0x0b
	afe4410ALED1ENDC    = 0x0c
	afe4410LED2CONVST   = 0x0d
	afe4410LED2CONVEND  = 0x0e
	afe4410ALED2CONVST  = 0x0f
	afe4410ALED2CONVEND = 0x10
	afe4410LED1CONVST   = 0x11
	afe4410LED1CONVEND  = 0x12
	afe4410ALED1CONVST  = 0x13
	afe4410ALED1CONVEND = 0x14
	afe4410PRPCount     = 0x1d
	afe4410Control1     = 0x1e
	afe4410TIAGainSep23 = 0x1f
	afe4410TIAGainSep   = 0x20
	afe4410TIAGain      = 0x21
	afe4410LEDCntrl     = 0x22
	afe4410Control2     = 0x23
	afe4410LEDCntrl2    = 0x24
	afe4410LED2Val      = 0x2a
	afe4410ALED2Val     = 0x2b
	afe4410LED1Val      = 0x2c
	afe4410ALED1Val     = 0x2d
	afe4410LED2ALED2Val = 0x2e
	afe4410LED1ALED1Val = 0x2f
	afe4410LED3LEDSTC   = 0x36
	afe4410LED3LEDENDC  = 0x37
	afe4410OffDAC       = 0x3a
	afe4410OffDACLMSB   = 0x3e
	afe4410AvgLED2ALED2 = 0x3f
	afe4410AvgLED1ALED1 = 0x40
	afe4410FIFO         = 0x42
	afe4410LED4LEDSTC   = 0x43
	afe4410LED4LEDENDC  = 0x44
	afe4410DataRdySTC   = 0x52
	afe4410DataRdyENDC  = 0x53
	afe4410DynTIASTC    = 0x64
	afe4410DynTIAENDC   = 0x65
	afe4410DynADCSTC    = 0x66
	afe4410DynADCENDC   = 0x67
	afe4410DynClkSTC    = 0x68
	afe4410DynClkENDC   = 0x69
	afe4410DeepSleepSTC = 0x6a
	afe4410DeepSlpENDC  = 0x6b
)

// AFE4410 register bits.
const (
	afe4410Control0SWReset   = 1 << 3
	afe4410Control0RWCont    = 1 << 4
	afe4410Control0EnableULP = 1 << 5
	afe4410Control0FIFOEn    = 1 << 6

	afe4410Control1TimerEn = 1 << 8

	afe4410TIAGainEnSepGain = 1 << 15

	afe4410Control2PdnAFE     = 1 << 0
	afe4410Control2DynADC     = 1 << 3
	afe4410Control2DynTIA     = 1 << 4
	afe4410Control2OscEnable  = 1 << 9
	afe4410Control2DynBias    = 1 << 14
	afe4410Control2EnSepGain4 = 1 << 15
	afe4410Control2DynTX0     = 1 << 20
)

const (
	afe4410Phases  = 4
	afe4410FIFOLen = 10
)

// AFE4410 fields.
const (
	fTIAGainSep2LSB regmap.FieldID = iota
	fTIACFSep2
	fTIAGainSep2MSB
	fTIAGainSep3LSB
	fTIACFSep3
	fTIAGainSep3MSB
	fTIAGainSepLSB
	fTIACFSep
	fTIAGainSepMSB
	fTIAGainLSB
	fTIACF
	fTIAGainMSB

	fILED1MSB
	fILED2MSB
	fILED3MSB
	fILED4MSB
	fILED1LSB
	fILED2LSB
	fILED3LSB
	fILED4LSB

	fOffDACLED3Mid
	fPolOffDACLED3
	fOffDACLED1Mid
	fPolOffDACLED1
	fOffDACAmb1Mid
	fPolOffDACAmb1
	fOffDACLED2Mid
	fPolOffDACLED2
	fOffDACLED3LSB
	fOffDACLED3MSB
	fOffDACLED1LSB
	fOffDACLED1MSB
	fOffDACAmb1LSB
	fOffDACAmb1MSB
	fOffDACLED2LSB
	fOffDACLED2MSB
	fOffDACLED3LSBExt
	fOffDACLED1LSBExt
	fOffDACAmb1LSBExt
	fOffDACLED2LSBExt

	fFIFOPartition
	fIntMux1
	fRegFIFOPeriod
	fFIFOEarly
	fIntMux2
	fIntMux3

	afe4410NumFields
)

var afe4410Fields = []regmap.Field{
	fTIAGainSep2LSB: regmap.NewField(afe4410TIAGainSep23, 0, 2),
	fTIACFSep2:      regmap.NewField(afe4410TIAGainSep23, 3, 5),
	fTIAGainSep2MSB: regmap.NewField(afe4410TIAGainSep23, 6, 6),
	fTIAGainSep3LSB: regmap.NewField(afe4410TIAGainSep23, 8, 10),
	fTIACFSep3:      regmap.NewField(afe4410TIAGainSep23, 11, 13),
	fTIAGainSep3MSB: regmap.NewField(afe4410TIAGainSep23, 14, 14),
	fTIAGainSepLSB:  regmap.NewField(afe4410TIAGainSep, 0, 2),
	fTIACFSep:       regmap.NewField(afe4410TIAGainSep, 3, 5),
	fTIAGainSepMSB:  regmap.NewField(afe4410TIAGainSep, 6, 6),
	fTIAGainLSB:     regmap.NewField(afe4410TIAGain, 0, 2),
	fTIACF:          regmap.NewField(afe4410TIAGain, 3, 5),
	fTIAGainMSB:     regmap.NewField(afe4410TIAGain, 6, 6),

	fILED1MSB: regmap.NewField(afe4410LEDCntrl, 0, 5),
	fILED2MSB: regmap.NewField(afe4410LEDCntrl, 6, 11),
	fILED3MSB: regmap.NewField(afe4410LEDCntrl, 12, 17),
	fILED4MSB: regmap.NewField(afe4410LEDCntrl2, 11, 16),
	fILED1LSB: regmap.NewField(afe4410LEDCntrl, 18, 19),
	fILED2LSB: regmap.NewField(afe4410LEDCntrl, 20, 21),
	fILED3LSB: regmap.NewField(afe4410LEDCntrl, 22, 23),
	fILED4LSB: regmap.NewField(afe4410LEDCntrl2, 9, 10),

	fOffDACLED3Mid:    regmap.NewField(afe4410OffDAC, 0, 3),
	fPolOffDACLED3:    regmap.NewField(afe4410OffDAC, 4, 4),
	fOffDACLED1Mid:    regmap.NewField(afe4410OffDAC, 5, 8),
	fPolOffDACLED1:    regmap.NewField(afe4410OffDAC, 9, 9),
	fOffDACAmb1Mid:    regmap.NewField(afe4410OffDAC, 10, 13),
	fPolOffDACAmb1:    regmap.NewField(afe4410OffDAC, 14, 14),
	fOffDACLED2Mid:    regmap.NewField(afe4410OffDAC, 15, 18),
	fPolOffDACLED2:    regmap.NewField(afe4410OffDAC, 19, 19),
	fOffDACLED3LSB:    regmap.NewField(afe4410OffDACLMSB, 0, 0),
	fOffDACLED3MSB:    regmap.NewField(afe4410OffDACLMSB, 1, 1),
	fOffDACLED1LSB:    regmap.NewField(afe4410OffDACLMSB, 2, 2),
	fOffDACLED1MSB:    regmap.NewField(afe4410OffDACLMSB, 3, 3),
	fOffDACAmb1LSB:    regmap.NewField(afe4410OffDACLMSB, 4, 4),
	fOffDACAmb1MSB:    regmap.NewField(afe4410OffDACLMSB, 5, 5),
	fOffDACLED2LSB:    regmap.NewField(afe4410OffDACLMSB, 6, 6),
	fOffDACLED2MSB:    regmap.NewField(afe4410OffDACLMSB, 7, 7),
	fOffDACLED3LSBExt: regmap.NewField(afe4410OffDACLMSB, 8, 8),
	fOffDACLED1LSBExt: regmap.NewField(afe4410OffDACLMSB, 9, 9),
	fOffDACAmb1LSBExt: regmap.NewField(afe4410OffDACLMSB, 10, 10),
	fOffDACLED2LSBExt: regmap.NewField(afe4410OffDACLMSB, 11, 11),

	fFIFOPartition: regmap.NewField(afe4410FIFO, 0, 3),
	fIntMux1:       regmap.NewField(afe4410FIFO, 4, 5),
	fRegFIFOPeriod: regmap.NewField(afe4410FIFO, 6, 13),
	fFIFOEarly:     regmap.NewField(afe4410FIFO, 14, 18),
	fIntMux2:       regmap.NewField(afe4410FIFO, 20, 21),
	fIntMux3:       regmap.NewField(afe4410FIFO, 22, 23),
}

// AFE4410 field groups.
const (
	AFE4410TIAGainSep2 regmap.GroupID = iota
	AFE4410TIACFSep2
	AFE4410TIAGainSep3
	AFE4410TIACFSep3
	AFE4410TIAGainSep
	AFE4410TIACFSep
	AFE4410TIAGain
	AFE4410TIACF

	AFE4410ILED1
	AFE4410ILED2
	AFE4410ILED3
	AFE4410ILED4

	AFE4410OffDACLED2
	AFE4410OffDACALED2
	AFE4410OffDACLED1
	AFE4410OffDACALED1

	AFE4410PolOffDACLED2
	AFE4410PolOffDACALED2
	AFE4410PolOffDACLED1
	AFE4410PolOffDACALED1

	AFE4410FIFOPartition
	AFE4410IntMux1
	AFE4410FIFOPeriod
	AFE4410FIFOEarly
	AFE4410IntMux2
	AFE4410IntMux3

	afe4410NumGroups
)

// Groups list their fields least significant first.
var afe4410Groups = []regmap.Group{
	AFE4410TIAGainSep2: {fTIAGainSep2LSB, fTIAGainSep2MSB},
	AFE4410TIACFSep2:   {fTIACFSep2},
	AFE4410TIAGainSep3: {fTIAGainSep3LSB, fTIAGainSep3MSB},
	AFE4410TIACFSep3:   {fTIACFSep3},
	AFE4410TIAGainSep:  {fTIAGainSepLSB, fTIAGainSepMSB},
	AFE4410TIACFSep:    {fTIACFSep},
	AFE4410TIAGain:     {fTIAGainLSB, fTIAGainMSB},
	AFE4410TIACF:       {fTIACF},

	AFE4410ILED1: {fILED1LSB, fILED1MSB},
	AFE4410ILED2: {fILED2LSB, fILED2MSB},
	AFE4410ILED3: {fILED3LSB, fILED3MSB},
	AFE4410ILED4: {fILED4LSB, fILED4MSB},

	AFE4410OffDACLED2:  {fOffDACLED2LSBExt, fOffDACLED2LSB, fOffDACLED2Mid, fOffDACLED2MSB},
	AFE4410OffDACALED2: {fOffDACLED3LSBExt, fOffDACLED3LSB, fOffDACLED3Mid, fOffDACLED3MSB},
	AFE4410OffDACLED1:  {fOffDACLED1LSBExt, fOffDACLED1LSB, fOffDACLED1Mid, fOffDACLED1MSB},
	AFE4410OffDACALED1: {fOffDACAmb1LSBExt, fOffDACAmb1LSB, fOffDACAmb1Mid, fOffDACAmb1MSB},

	AFE4410PolOffDACLED2:  {fPolOffDACLED2},
	AFE4410PolOffDACALED2: {fPolOffDACLED3},
	AFE4410PolOffDACLED1:  {fPolOffDACLED1},
	AFE4410PolOffDACALED1: {fPolOffDACAmb1},

	AFE4410FIFOPartition: {fFIFOPartition},
	AFE4410IntMux1:       {fIntMux1},
	AFE4410FIFOPeriod:    {fRegFIFOPeriod},
	AFE4410FIFOEarly:     {fFIFOEarly},
	AFE4410IntMux2:       {fIntMux2},
	AFE4410IntMux3:       {fIntMux3},
}

// Channels, in FIFO sample order: LED2, ALED2, LED1, ALED1.
var afe4410Channels = []Channel{
	{
		Name: "in_intensity0", Value: afe4410LED2Val, HasValue: true,
		LED: AFE4410ILED2, Offset: AFE4410OffDACLED2, Pol: AFE4410PolOffDACLED2,
		Gain: AFE4410TIAGainSep, Cap: AFE4410TIACFSep, Averages: regmap.NoGroup,
	},
	{
		Name: "in_intensity1", Value: afe4410ALED2Val, HasValue: true,
		LED: AFE4410ILED3, Offset: AFE4410OffDACALED2, Pol: AFE4410PolOffDACALED2,
		Gain: AFE4410TIAGainSep2, Cap: AFE4410TIACFSep2, Averages: regmap.NoGroup,
	},
	{
		Name: "in_intensity2", Value: afe4410LED1Val, HasValue: true,
		LED: AFE4410ILED1, Offset: AFE4410OffDACLED1, Pol: AFE4410PolOffDACLED1,
		Gain: AFE4410TIAGain, Cap: AFE4410TIACF, Averages: regmap.NoGroup,
	},
	{
		Name: "in_intensity3", Value: afe4410ALED1Val, HasValue: true,
		LED: AFE4410ILED4, Offset: AFE4410OffDACALED1, Pol: AFE4410PolOffDACALED1,
		Gain: AFE4410TIAGainSep3, Cap: AFE4410TIACFSep3, Averages: regmap.NoGroup,
	},
}

var afe4410ResTable = []Fixed{
	{500000, 0},
	{250000, 0},
	{100000, 0},
	{50000, 0},
	{25000, 0},
	{10000, 0},
	{1000000, 0},
	{2000000, 0},
	{1500000, 0},
}

var afe4410CapTable = []Fixed{
	{0, 5000},
	{0, 2500},
	{0, 10000},
	{0, 7500},
	{0, 20000},
	{0, 17500},
	{0, 25000},
	{0, 22500},
}

// timing values are in units of 10 clock ticks.
var afe4410Sequence = []regmap.RegValue{
	{Reg: afe4410Control0, Val: afe4410Control0RWCont | afe4410Control0EnableULP},

	{Reg: afe4410LED2STC, Val: 10 * 0x01},
	{Reg: afe4410LED2ENDC, Val: 10 * 0x03},
	{Reg: afe4410LED1LEDSTC, Val: 10 * 0x0a},
	{Reg: afe4410LED1LEDENDC, Val: 10 * 0x0d},
	{Reg: afe4410ALED2STC, Val: 10 * 0x06},
	{Reg: afe4410ALED2ENDC, Val: 10 * 0x08},
	{Reg: afe4410LED1STC, Val: 10 * 0x0b},
	{Reg: afe4410LED1ENDC, Val: 10 * 0x0d},
	{Reg: afe4410LED2LEDSTC, Val: 10 * 0x00},
	{Reg: afe4410LED2LEDENDC, Val: 10 * 0x03},
	{Reg: afe4410ALED1STC, Val: 10 * 0x10},
	{Reg: afe4410ALED1ENDC, Val: 10 * 0x12},
	{Reg: afe4410LED2CONVST, Val: 10 * 0x05},
	{Reg: afe4410LED2CONVEND, Val: 10 * 0x08},
	{Reg: afe4410ALED2CONVST, Val: 10 * 0x0a},
	{Reg: afe4410ALED2CONVEND, Val: 10 * 0x0d},
	{Reg: afe4410LED1CONVST, Val: 10 * 0x0f},
	{Reg: afe4410LED1CONVEND, Val: 10 * 0x12},
	{Reg: afe4410ALED1CONVST, Val: 10 * 0x14},
	{Reg: afe4410ALED1CONVEND, Val: 10 * 0x17},
	{Reg: afe4410PRPCount, Val: 10 * 0x1f},
	{Reg: afe4410LED3LEDSTC, Val: 10 * 0x05},
	{Reg: afe4410LED3LEDENDC, Val: 10 * 0x08},
	{Reg: afe4410LED4LEDSTC, Val: 10 * 0x0f},
	{Reg: afe4410LED4LEDENDC, Val: 10 * 0x12},
	{Reg: afe4410DataRdySTC, Val: 10 * 0x1d},
	{Reg: afe4410DataRdyENDC, Val: 10 * 0x1d},
	{Reg: afe4410DynTIASTC, Val: 10 * 0x00},
	{Reg: afe4410DynTIAENDC, Val: 10 * 0x20},
	{Reg: afe4410DynADCSTC, Val: 10 * 0x00},
	{Reg: afe4410DynADCENDC, Val: 10 * 0x20},
	{Reg: afe4410DynClkSTC, Val: 10 * 0x00},
	{Reg: afe4410DynClkENDC, Val: 10 * 0x20},
	{Reg: afe4410DeepSleepSTC, Val: 10 * 0x21},
	{Reg: afe4410DeepSlpENDC, Val: 10 * 0x18},

	{Reg: afe4410TIAGainSep, Val: afe4410TIAGainEnSepGain},
	{Reg: afe4410Control2, Val: afe4410Control2DynADC | afe4410Control2DynTIA |
		afe4410Control2OscEnable | afe4410Control2DynBias |
		afe4410Control2EnSepGain4 | afe4410Control2DynTX0},
	{Reg: afe4410FIFO, Val: 0x260},
}

// afe4410Volatile reports the registers the device updates on its own.
func afe4410Volatile(reg uint8) bool {
	switch {
	case afe4410LED2Val <= reg && reg <= afe4410LED1ALED1Val:
		return true
	case afe4410AvgLED2ALED2 <= reg && reg <= afe4410AvgLED1ALED1:
		return true
	}
	return false
}

func afe4410Attrs() []attribute {
	attrs := []attribute{
		constAttr("in_intensity_resistance_available", tableText(afe4410ResTable)),
		constAttr("in_intensity_capacitance_available", tableText(afe4410CapTable)),
	}
	for i, ch := range afe4410Channels {
		attrs = append(attrs,
			valueAttr(ch.Name+"_raw", ch.Value),
			rawAttr(ch.Name+"_offset", ch.Offset),
			tableAttr(ch.Name+"_resistance", ch.Gain, afe4410ResTable),
			tableAttr(ch.Name+"_capacitance", ch.Cap, afe4410CapTable),
			rawAttr(fmt.Sprintf("out_current%d_raw", i), ch.LED),
			constAttr(fmt.Sprintf("out_current%d_scale", i), ledScale.String()),
		)
	}
	return attrs
}

// AFE4410 is a 4-phase optical bio-sensor front end.
//
// Its scan mode is fixed: the four channels are always active and
// every interrupt delivers ten sampling cycles.
type AFE4410 struct {
	*device
}

// NewAFE4410 powers up, resets and initializes an AFE4410 reachable
// through tr.
func NewAFE4410(tr Transport, opts ...Option) (*AFE4410, error) {
	const name = "afe4410"

	tbl, err := regmap.NewTable(afe4410Fields, afe4410Groups)
	if err != nil {
		return nil, xerrors.Errorf("afe: invalid %s register layout: %w", name, err)
	}

	dev, err := newDevice(
		name, tr, tbl, afe4410Channels, afe4410Phases*afe4410FIFOLen,
		newConfig(name, opts), regmap.WithCache(afe4410Volatile),
	)
	if err != nil {
		return nil, err
	}
	dev.scan.phases = afe4410Phases
	dev.scan.depth = afe4410FIFOLen

	err = dev.setAttrs(afe4410Attrs())
	if err != nil {
		return nil, err
	}

	afe := &AFE4410{device: dev}

	err = afe.powerUp()
	if err != nil {
		return nil, err
	}

	err = afe.init()
	if err != nil {
		_ = afe.powerDown()
		return nil, err
	}

	return afe, nil
}

func (afe *AFE4410) init() error {
	err := afe.regs.Write(afe4410Control0, afe4410Control0SWReset)
	if err != nil {
		afe.msg.Errorf("unable to reset device: %+v", err)
		return xerrors.Errorf("afe: could not reset device: %w", err)
	}
	afe.regs.Drop()

	err = afe.regs.MultiWrite(afe4410Sequence)
	if err != nil {
		afe.msg.Errorf("unable to set register defaults: %+v", err)
		return xerrors.Errorf("afe: could not set register defaults: %w", err)
	}

	// offset DACs only sink current.
	for _, ch := range afe.chans {
		err = afe.regs.WriteGroup(ch.Pol, 1)
		if err != nil {
			afe.msg.Errorf("unable to set offset DAC polarity of %s: %+v", ch.Name, err)
			return xerrors.Errorf("afe: could not set offset DAC polarity of %s: %w", ch.Name, err)
		}
	}
	return nil
}

// MaxPhases returns the number of phases of the AFE4410.
func (afe *AFE4410) MaxPhases() int { return afe4410Phases }

// ConfigureChannels accepts only the mask selecting all four channels.
func (afe *AFE4410) ConfigureChannels(mask uint32) error {
	const all = 1<<afe4410Phases - 1
	if mask != all {
		return configErrorf("", "invalid scan mask 0x%x (want 0x%x)", mask, all)
	}
	return nil
}

// Start enables the FIFO and starts the sequence timer.
func (afe *AFE4410) Start() error {
	err := afe.regs.UpdateBits(afe4410Control0, afe4410Control0FIFOEn, afe4410Control0FIFOEn)
	if err != nil {
		return xerrors.Errorf("afe: could not enable FIFO: %w", err)
	}
	err = afe.regs.UpdateBits(afe4410Control1, afe4410Control1TimerEn, afe4410Control1TimerEn)
	if err != nil {
		return xerrors.Errorf("afe: could not start sequence timer: %w", err)
	}
	return nil
}

// Stop stops the sequence timer and disables the FIFO.
func (afe *AFE4410) Stop() error {
	err := afe.regs.UpdateBits(afe4410Control1, afe4410Control1TimerEn, 0)
	if err != nil {
		return xerrors.Errorf("afe: could not stop sequence timer: %w", err)
	}
	err = afe.regs.UpdateBits(afe4410Control0, afe4410Control0FIFOEn, 0)
	if err != nil {
		return xerrors.Errorf("afe: could not disable FIFO: %w", err)
	}
	return nil
}

// Suspend powers the analog front end down and disables the power rail.
func (afe *AFE4410) Suspend() error {
	err := afe.regs.UpdateBits(afe4410Control2, afe4410Control2PdnAFE, afe4410Control2PdnAFE)
	if err != nil {
		return xerrors.Errorf("afe: could not power down front end: %w", err)
	}
	return afe.powerDown()
}

// Resume enables the power rail, powers the analog front end up and
// restores the cached register values.
func (afe *AFE4410) Resume() error {
	err := afe.powerUp()
	if err != nil {
		return err
	}

	err = afe.regs.UpdateBits(afe4410Control2, afe4410Control2PdnAFE, 0)
	if err != nil {
		return xerrors.Errorf("afe: could not power up front end: %w", err)
	}

	err = afe.regs.Sync()
	if err != nil {
		afe.msg.Errorf("unable to restore registers: %+v", err)
		return xerrors.Errorf("afe: could not restore registers: %w", err)
	}
	return nil
}

var (
	_ Device = (*AFE4410)(nil)
)
