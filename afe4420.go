// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package afe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-lpc/afe/regmap"
	"golang.org/x/xerrors"
)

// AFE4420 registers.
const (
	afe4420Control0    = 0x00
	afe4420PRPCount    = 0x1d
	afe4420Control1    = 0x23
	afe4420FIFO        = 0x42
	afe4420PointerDiff = 0x6d
	afe4420Phase       = 0x88
	afe4420AACM        = 0x93
	afe4420LEDCntrl1   = 0xac
	afe4420LEDCntrl2   = 0xae
)

func afe4420PDCntrl0(pd int) uint8    { return uint8(0x98 + 4*pd) }
func afe4420PDCntrl1(pd int) uint8    { return uint8(0x99 + 4*pd) }
func afe4420PDCntrl2(pd int) uint8    { return uint8(0x9a + 4*pd) }
func afe4420PhaseCntrl0(ph int) uint8 { return uint8(0xb8 + 3*ph) }
func afe4420PhaseCntrl1(ph int) uint8 { return uint8(0xb9 + 3*ph) }
func afe4420PhaseCntrl2(ph int) uint8 { return uint8(0xba + 3*ph) }

// AFE4420 register bits.
const (
	afe4420Control0TMCountRst = 1 << 1
	afe4420Control0SWReset    = 1 << 3
	afe4420Control0FIFOEn     = 1 << 6

	afe4420PRPCountTimerEn = 1 << 23

	afe4420Control1IFSOffDAC = 0x7 << 10
	afe4420Control1EnAACMGbl = 1 << 15
	afe4420Control1ILED2x    = 1 << 17

	afe4420FIFOIntMuxFIFORdy = 0x20

	afe4420PhaseFilt1ResetEnz = 1 << 16
	afe4420PhaseFilt2ResetEnz = 1 << 17
	afe4420PhaseFilt3ResetEnz = 1 << 18
	afe4420PhaseFilt4ResetEnz = 1 << 19

	afe4420AACMImmRefresh = 1 << 0
	afe4420AACMQuickConv  = 1 << 1

	afe4420PhaseCntrl0LEDDrv1TX1 = 1 << 0
	afe4420PhaseCntrl0LEDDrv1TX2 = 1 << 1
	afe4420PhaseCntrl0LEDDrv1TX3 = 1 << 2
	afe4420PhaseCntrl0LEDDrv1TX4 = 1 << 3
	afe4420PhaseCntrl0LEDDrv2TX1 = 1 << 8
	afe4420PhaseCntrl0LEDDrv2TX2 = 1 << 9
	afe4420PhaseCntrl0LEDDrv2TX3 = 1 << 10
	afe4420PhaseCntrl0LEDDrv2TX4 = 1 << 11
	afe4420PhaseCntrl0PDOn1      = 1 << 16

	afe4420PhaseCntrl2TWLED      = 0xff
	afe4420PhaseCntrl2StaggerLED = 1 << 12
)

const (
	afe4420TotalPhases    = 16
	afe4420TotalPDs       = 4
	afe4420TotalLEDs      = 4
	afe4420FIFOMaxSamples = 128
	afe4420FIFOLen        = 10
	afe4420PointerBits    = 8

	afe4420DefaultPRPCount = 0x13ff
	afe4420DefaultTWLED    = 0x6
)

// AFE4420 field groups. Each AFE4420 group holds a single field, so
// group and field identifiers coincide.
const (
	AFE4420IFSOffDAC regmap.GroupID = iota
	AFE4420PDDisconnect
	AFE4420WatermarkFIFO
	AFE4420NumPhase
	AFE4420ChannelOffsetAACM

	afe4420PDBase
)

// per photodiode fields.
const (
	pdEnAACM = iota
	pdNumPhaseAACM
	pdFreezeAACM
	pdIOffDACBase
	pdPolOffDACBase
	pdCalibAACM
	pdIOffDACAACMRead
	pdPolOffDACAACMRead
	pdFields
)

// per phase fields.
const (
	phNumAv = iota
	phTIAGainRF
	phTIAGainCF
	phIOffDAC
	phPolOffDAC
	phFields
)

const (
	afe4420LEDBase   = afe4420PDBase + afe4420TotalPDs*pdFields
	afe4420PhaseBase = afe4420LEDBase + afe4420TotalLEDs
	afe4420NumFields = afe4420PhaseBase + afe4420TotalPhases*phFields
)

// afe4420PD returns the group of field f of photodiode pd.
func afe4420PD(pd, f int) regmap.GroupID {
	return afe4420PDBase + regmap.GroupID(pd*pdFields+f)
}

// AFE4420LED returns the current group of LED led.
func AFE4420LED(led int) regmap.GroupID {
	return afe4420LEDBase + regmap.GroupID(led)
}

func afe4420PhaseGroup(ph, f int) regmap.GroupID {
	return afe4420PhaseBase + regmap.GroupID(ph*phFields+f)
}

var afe4420Fields = func() []regmap.Field {
	fs := make([]regmap.Field, afe4420NumFields)
	fs[AFE4420IFSOffDAC] = regmap.NewField(afe4420Control1, 10, 12)
	fs[AFE4420PDDisconnect] = regmap.NewField(afe4420Control1, 23, 23)
	fs[AFE4420WatermarkFIFO] = regmap.NewField(afe4420FIFO, 6, 13)
	fs[AFE4420NumPhase] = regmap.NewField(afe4420Phase, 0, 3)
	fs[AFE4420ChannelOffsetAACM] = regmap.NewField(afe4420AACM, 8, 20)

	for pd := 0; pd < afe4420TotalPDs; pd++ {
		fs[afe4420PD(pd, pdEnAACM)] = regmap.NewField(afe4420PDCntrl0(pd), 0, 0)
		fs[afe4420PD(pd, pdNumPhaseAACM)] = regmap.NewField(afe4420PDCntrl0(pd), 4, 7)
		fs[afe4420PD(pd, pdFreezeAACM)] = regmap.NewField(afe4420PDCntrl0(pd), 10, 10)
		fs[afe4420PD(pd, pdIOffDACBase)] = regmap.NewField(afe4420PDCntrl0(pd), 16, 22)
		fs[afe4420PD(pd, pdPolOffDACBase)] = regmap.NewField(afe4420PDCntrl0(pd), 23, 23)
		fs[afe4420PD(pd, pdCalibAACM)] = regmap.NewField(afe4420PDCntrl1(pd), 0, 11)
		fs[afe4420PD(pd, pdIOffDACAACMRead)] = regmap.NewField(afe4420PDCntrl2(pd), 1, 7)
		fs[afe4420PD(pd, pdPolOffDACAACMRead)] = regmap.NewField(afe4420PDCntrl2(pd), 8, 8)
	}

	fs[AFE4420LED(0)] = regmap.NewField(afe4420LEDCntrl1, 0, 7)
	fs[AFE4420LED(1)] = regmap.NewField(afe4420LEDCntrl1, 12, 19)
	fs[AFE4420LED(2)] = regmap.NewField(afe4420LEDCntrl2, 0, 7)
	fs[AFE4420LED(3)] = regmap.NewField(afe4420LEDCntrl2, 12, 19)

	for ph := 0; ph < afe4420TotalPhases; ph++ {
		fs[afe4420PhaseGroup(ph, phNumAv)] = regmap.NewField(afe4420PhaseCntrl1(ph), 0, 3)
		fs[afe4420PhaseGroup(ph, phTIAGainRF)] = regmap.NewField(afe4420PhaseCntrl1(ph), 4, 7)
		fs[afe4420PhaseGroup(ph, phTIAGainCF)] = regmap.NewField(afe4420PhaseCntrl1(ph), 10, 12)
		fs[afe4420PhaseGroup(ph, phIOffDAC)] = regmap.NewField(afe4420PhaseCntrl1(ph), 16, 22)
		fs[afe4420PhaseGroup(ph, phPolOffDAC)] = regmap.NewField(afe4420PhaseCntrl1(ph), 23, 23)
	}
	return fs
}()

var afe4420Channels = func() []Channel {
	chans := make([]Channel, afe4420TotalPhases)
	for ph := range chans {
		chans[ph] = Channel{
			Name:     "in_intensity" + strconv.Itoa(ph),
			LED:      regmap.NoGroup,
			Offset:   afe4420PhaseGroup(ph, phIOffDAC),
			Pol:      afe4420PhaseGroup(ph, phPolOffDAC),
			Gain:     afe4420PhaseGroup(ph, phTIAGainRF),
			Cap:      afe4420PhaseGroup(ph, phTIAGainCF),
			Averages: afe4420PhaseGroup(ph, phNumAv),
		}
	}
	return chans
}()

var afe4420ResTable = []Fixed{
	{10000, 0},
	{25000, 0},
	{50000, 0},
	{100000, 0},
	{166000, 0},
	{200000, 0},
	{250000, 0},
	{500000, 0},
	{1000000, 0},
	{1500000, 0},
	{2000000, 0},
}

var afe4420CapTable = []Fixed{
	{0, 2500},
	{0, 5000},
	{0, 7500},
	{0, 10000},
	{0, 17500},
	{0, 20000},
	{0, 22500},
	{0, 25000},
}

var afe4420Sequence = []regmap.RegValue{
	{Reg: afe4420Control0, Val: afe4420Control0TMCountRst},
	{Reg: afe4420PRPCount, Val: afe4420PRPCountTimerEn | afe4420DefaultPRPCount},
	{Reg: afe4420Control1, Val: afe4420Control1IFSOffDAC | afe4420Control1EnAACMGbl | afe4420Control1ILED2x},
	{Reg: afe4420FIFO, Val: afe4420FIFOIntMuxFIFORdy},
	{Reg: afe4420Phase, Val: afe4420PhaseFilt1ResetEnz | afe4420PhaseFilt2ResetEnz |
		afe4420PhaseFilt3ResetEnz | afe4420PhaseFilt4ResetEnz},
	{Reg: afe4420AACM, Val: afe4420AACMImmRefresh | afe4420AACMQuickConv},

	// default timings
	{Reg: afe4420PhaseCntrl2(1), Val: afe4420PhaseCntrl2StaggerLED},
	{Reg: afe4420PhaseCntrl0(3), Val: afe4420PhaseCntrl0LEDDrv1TX1 | afe4420PhaseCntrl0LEDDrv2TX1},
	{Reg: afe4420PhaseCntrl0(4), Val: afe4420PhaseCntrl0LEDDrv1TX2 | afe4420PhaseCntrl0LEDDrv2TX2},
	{Reg: afe4420PhaseCntrl0(5), Val: afe4420PhaseCntrl0LEDDrv1TX3 | afe4420PhaseCntrl0LEDDrv2TX3},
	{Reg: afe4420PhaseCntrl0(6), Val: afe4420PhaseCntrl0LEDDrv1TX4 | afe4420PhaseCntrl0LEDDrv2TX4},
}

func afe4420Attrs() []attribute {
	avgs := make([]string, maxAverages)
	for i := range avgs {
		avgs[i] = strconv.Itoa(i + 1)
	}

	attrs := []attribute{
		constAttr("in_intensity_averages_available", strings.Join(avgs, " ")),
		constAttr("in_intensity_resistance_available", tableText(afe4420ResTable)),
		constAttr("in_intensity_capacitance_available", tableText(afe4420CapTable)),
		constAttr("sampling_frequency", "25"), // 128000 / afe4420DefaultPRPCount
		rawAttr("pd_disconnect", AFE4420PDDisconnect),
		rawAttr("ifs_offdac", AFE4420IFSOffDAC),
		rawAttr("channel_offset_aacm", AFE4420ChannelOffsetAACM),
	}

	pdNames := [pdFields]string{
		pdEnAACM:            "en_aacm",
		pdNumPhaseAACM:      "numphase_aacm",
		pdFreezeAACM:        "freeze_aacm",
		pdIOffDACBase:       "ioffdac_base",
		pdPolOffDACBase:     "pol_offdac_base",
		pdCalibAACM:         "calib_aacm",
		pdIOffDACAACMRead:   "ioffdac_aacm_read",
		pdPolOffDACAACMRead: "pol_offdac_aacm_read",
	}
	for pd := 0; pd < afe4420TotalPDs; pd++ {
		for f, name := range pdNames {
			attrs = append(attrs, rawAttr(fmt.Sprintf("in_pd%d_%s", pd, name), afe4420PD(pd, f)))
		}
	}

	for led := 0; led < afe4420TotalLEDs; led++ {
		attrs = append(attrs,
			rawAttr(fmt.Sprintf("out_current%d_raw", led), AFE4420LED(led)),
			constAttr(fmt.Sprintf("out_current%d_scale", led), ledScale.String()),
		)
	}

	for _, ch := range afe4420Channels {
		attrs = append(attrs,
			averagesAttr(ch.Name+"_averages", ch.Averages),
			tableAttr(ch.Name+"_resistance", ch.Gain, afe4420ResTable),
			tableAttr(ch.Name+"_capacitance", ch.Cap, afe4420CapTable),
			rawAttr(ch.Name+"_ioffdac", ch.Offset),
			rawAttr(ch.Name+"_poloffdac", ch.Pol),
		)
	}
	return attrs
}

// ledScale is the LED current step, in mA.
var ledScale = Fixed{0, 200000}

// AFE4420 is a 16-phase optical bio-sensor front end.
type AFE4420 struct {
	*device
}

// NewAFE4420 powers up, resets and initializes an AFE4420 reachable
// through tr.
func NewAFE4420(tr Transport, opts ...Option) (*AFE4420, error) {
	const name = "afe4420"

	tbl, err := regmap.NewTable(afe4420Fields, regmap.Singletons(len(afe4420Fields)))
	if err != nil {
		return nil, xerrors.Errorf("afe: invalid %s register layout: %w", name, err)
	}

	dev, err := newDevice(name, tr, tbl, afe4420Channels, afe4420FIFOMaxSamples, newConfig(name, opts))
	if err != nil {
		return nil, err
	}
	dev.scan.depth = afe4420FIFOLen
	dev.scan.ptrReg = afe4420PointerDiff
	dev.scan.ptrBits = afe4420PointerBits

	err = dev.setAttrs(afe4420Attrs())
	if err != nil {
		return nil, err
	}

	afe := &AFE4420{device: dev}

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

func (afe *AFE4420) init() error {
	err := afe.regs.Write(afe4420Control0, afe4420Control0SWReset)
	if err != nil {
		afe.msg.Errorf("unable to reset device: %+v", err)
		return xerrors.Errorf("afe: could not reset device: %w", err)
	}

	err = afe.regs.MultiWrite(afe4420Sequence)
	if err != nil {
		afe.msg.Errorf("unable to set register defaults: %+v", err)
		return xerrors.Errorf("afe: could not set register defaults: %w", err)
	}
	return nil
}

// MaxPhases returns the number of phases of the AFE4420.
func (afe *AFE4420) MaxPhases() int { return afe4420TotalPhases }

// ConfigureChannels activates the phases selected by mask, which must
// select phases 0 to n-1 for some n in [1, 16].
//
// Photodiodes and sample timing windows are enabled for each active
// phase, then the FIFO watermark and the phase count are programmed.
// A failing step leaves the previous steps applied.
func (afe *AFE4420) ConfigureChannels(mask uint32) error {
	phases, ok := contiguous(mask)
	if !ok || phases > afe4420TotalPhases {
		return configErrorf("", "invalid scan mask 0x%x (want phases 0..n-1, n in [1, %d])", mask, afe4420TotalPhases)
	}
	return afe.configure(phases)
}

func (afe *AFE4420) configure(phases int) error {
	for i := 0; i < phases; i++ {
		err := afe.regs.UpdateBits(afe4420PhaseCntrl0(i), afe4420PhaseCntrl0PDOn1, afe4420PhaseCntrl0PDOn1)
		if err != nil {
			afe.msg.Errorf("unable to write PD enable to phase %d: %+v", i, err)
			return xerrors.Errorf("afe: could not enable photodiode of phase %d: %w", i, err)
		}
	}

	for i := 0; i < phases; i++ {
		err := afe.regs.UpdateBits(afe4420PhaseCntrl2(i), afe4420PhaseCntrl2TWLED, afe4420DefaultTWLED)
		if err != nil {
			afe.msg.Errorf("unable to write sample time to phase %d: %+v", i, err)
			return xerrors.Errorf("afe: could not set sample time of phase %d: %w", i, err)
		}
	}

	err := afe.regs.WriteGroup(AFE4420WatermarkFIFO, uint32(Watermark(phases, afe.scan.depth)))
	if err != nil {
		afe.msg.Errorf("unable to write watermark level: %+v", err)
		return xerrors.Errorf("afe: could not set FIFO watermark: %w", err)
	}

	err = afe.regs.WriteGroup(AFE4420NumPhase, uint32(phases-1))
	if err != nil {
		afe.msg.Errorf("unable to write number of active phases: %+v", err)
		return xerrors.Errorf("afe: could not set number of phases: %w", err)
	}

	afe.scan.phases = phases
	return nil
}

// Start releases the sequence timer from reset and enables the FIFO.
func (afe *AFE4420) Start() error {
	err := afe.regs.Write(afe4420Control0, afe4420Control0FIFOEn)
	if err != nil {
		return xerrors.Errorf("afe: could not enable FIFO: %w", err)
	}
	return nil
}

// Stop disables the FIFO and puts the sequence timer in reset.
func (afe *AFE4420) Stop() error {
	err := afe.regs.Write(afe4420Control0, afe4420Control0TMCountRst)
	if err != nil {
		return xerrors.Errorf("afe: could not disable FIFO: %w", err)
	}
	return nil
}

// Suspend holds the device in reset and disables its power rail.
func (afe *AFE4420) Suspend() error {
	afe.setReset(1)
	return afe.powerDown()
}

// Resume powers the device up, releases it from reset and restores
// its register defaults and active phases.
func (afe *AFE4420) Resume() error {
	err := afe.powerUp()
	if err != nil {
		return err
	}

	err = afe.init()
	if err != nil {
		return err
	}

	if afe.scan.phases > 0 {
		err = afe.configure(afe.scan.phases)
		if err != nil {
			return err
		}
	}
	return nil
}

var (
	_ Device = (*AFE4420)(nil)
)
