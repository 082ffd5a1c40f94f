// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package afe

import (
	"errors"
	"sort"
	"testing"

	"github.com/go-lpc/afe/fifo"
	"github.com/go-lpc/afe/internal/fakebus"
	"github.com/go-lpc/afe/regmap"
	"golang.org/x/xerrors"
)

func TestParseFixed(t *testing.T) {
	for _, tc := range []struct {
		str  string
		want Fixed
		err  error
	}{
		{str: "100000", want: Fixed{100000, 0}},
		{str: "0.0025", want: Fixed{0, 2500}},
		{str: "0.002500", want: Fixed{0, 2500}},
		{str: ".5", want: Fixed{0, 500000}},
		{str: "1.", want: Fixed{1, 0}},
		{str: " 1.5\n", want: Fixed{1, 500000}},
		{str: "0.12345678", want: Fixed{0, 123456}},
		{str: "", err: xerrors.Errorf(`afe: invalid fixed-point value ""`)},
		{str: ".", err: xerrors.Errorf(`afe: invalid fixed-point value "."`)},
		{str: "-1.5", err: xerrors.Errorf(`afe: invalid fixed-point value "-1.5"`)},
		{str: "1.2x", err: xerrors.Errorf(`afe: invalid fixed-point value "1.2x"`)},
		{
			str: "x.2",
			err: xerrors.Errorf(`afe: invalid fixed-point value "x.2": strconv.Atoi: parsing "x": invalid syntax`),
		},
	} {
		t.Run(tc.str, func(t *testing.T) {
			got, err := ParseFixed(tc.str)
			switch {
			case err != nil && tc.err != nil:
				if got, want := err.Error(), tc.err.Error(); got != want {
					t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
				}
				return
			case err != nil && tc.err == nil:
				t.Fatalf("unexpected error: %+v", err)
			case err == nil && tc.err != nil:
				t.Fatalf("expected an error (%v)", tc.err)
			}
			if got != tc.want {
				t.Fatalf("invalid value: got=%v, want=%v", got, tc.want)
			}
		})
	}
}

func TestFixedString(t *testing.T) {
	for _, tc := range []struct {
		v    Fixed
		want string
	}{
		{Fixed{0, 200000}, "0.200000"},
		{Fixed{0, 2500}, "0.002500"},
		{Fixed{2000000, 0}, "2000000.000000"},
	} {
		if got := tc.v.String(); got != tc.want {
			t.Fatalf("invalid string: got=%q, want=%q", got, tc.want)
		}
	}
}

func TestAFE4420Attrs(t *testing.T) {
	dev, bus := newTestAFE4420(t, new(recorder))

	names := dev.Attrs()
	if !sort.StringsAreSorted(names) {
		t.Fatalf("attributes are not sorted")
	}
	// 4 global constants, 3 raw globals, 4x8 PD, 4x2 LED, 16x5 phases.
	if got, want := len(names), 4+3+4*8+4*2+16*5; got != want {
		t.Fatalf("invalid number of attributes: got=%d, want=%d", got, want)
	}

	for _, tc := range []struct {
		name string
		set  string
		want string
		reg  uint8
		val  uint32
		mask uint32
		err  string
	}{
		{
			name: "sampling_frequency",
			want: "25",
		},
		{
			name: "in_intensity_averages_available",
			want: "1 2 3 4 5 6 7 8 9 10 11 12 13 14 15 16",
		},
		{
			name: "in_intensity_capacitance_available",
			want: "0.002500 0.005000 0.007500 0.010000 0.017500 0.020000 0.022500 0.025000",
		},
		{
			name: "out_current2_scale",
			want: "0.200000",
		},
		{
			name: "in_intensity3_averages",
			set:  "4",
			want: "4",
			reg:  afe4420PhaseCntrl1(3),
			val:  3,
			mask: 0xf,
		},
		{
			name: "in_intensity0_resistance",
			set:  "166000",
			want: "166000.000000",
			reg:  afe4420PhaseCntrl1(0),
			val:  4 << 4,
			mask: 0xf << 4,
		},
		{
			name: "in_intensity15_capacitance",
			set:  "0.0175",
			want: "0.017500",
			reg:  afe4420PhaseCntrl1(15),
			val:  4 << 10,
			mask: 0x7 << 10,
		},
		{
			name: "in_intensity1_poloffdac",
			set:  "1",
			want: "1",
			reg:  afe4420PhaseCntrl1(1),
			val:  1 << 23,
			mask: 1 << 23,
		},
		{
			name: "in_intensity1_ioffdac",
			set:  "0x1ff", // truncated to 7 bits
			want: "127",
			reg:  afe4420PhaseCntrl1(1),
			val:  0x7f << 16,
			mask: 0x7f << 16,
		},
		{
			name: "in_pd2_calib_aacm",
			set:  "4095",
			want: "4095",
			reg:  afe4420PDCntrl1(2),
			val:  0xfff,
			mask: 0xfff,
		},
		{
			name: "out_current1_raw",
			set:  "200",
			want: "200",
			reg:  afe4420LEDCntrl1,
			val:  200 << 12,
			mask: 0xff << 12,
		},
		{
			name: "pd_disconnect",
			set:  "1",
			want: "1",
			reg:  afe4420Control1,
			val:  1 << 23,
			mask: 1 << 23,
		},
		{
			name: "in_intensity3_averages",
			set:  "17",
			err:  "afe: in_intensity3_averages: invalid number of averages \"17\" (want 1..16)",
		},
		{
			name: "in_intensity3_averages",
			set:  "0",
			err:  "afe: in_intensity3_averages: invalid number of averages \"0\" (want 1..16)",
		},
		{
			name: "in_intensity0_resistance",
			set:  "12345",
			err: "afe: in_intensity0_resistance: value 12345.000000 not in " +
				"[10000.000000 25000.000000 50000.000000 100000.000000 166000.000000 " +
				"200000.000000 250000.000000 500000.000000 1000000.000000 " +
				"1500000.000000 2000000.000000]",
		},
		{
			name: "in_intensity0_capacitance",
			set:  "abc",
			err:  "afe: in_intensity0_capacitance: invalid value \"abc\"",
		},
		{
			name: "sampling_frequency",
			set:  "50",
			err:  "afe: sampling_frequency: read-only attribute",
		},
		{
			name: "ifs_offdac",
			set:  "two",
			err:  "afe: ifs_offdac: invalid integer \"two\"",
		},
		{
			name: "in_intensity16_averages",
			set:  "2",
			err:  "afe: in_intensity16_averages: no such attribute",
		},
	} {
		t.Run(tc.name+"="+tc.set, func(t *testing.T) {
			if tc.set != "" {
				err := dev.SetAttr(tc.name, tc.set)
				switch {
				case err != nil && tc.err != "":
					if got, want := err.Error(), tc.err; got != want {
						t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
					}
					var cerr *ConfigError
					if !xerrors.As(err, &cerr) {
						t.Fatalf("invalid error type %T", err)
					}
					return
				case err != nil && tc.err == "":
					t.Fatalf("unexpected error: %+v", err)
				case err == nil && tc.err != "":
					t.Fatalf("expected an error (%v)", tc.err)
				}
				if got, want := bus.Regs[tc.reg]&tc.mask, tc.val; got != want {
					t.Fatalf("invalid register 0x%02x: got=0x%x, want=0x%x", tc.reg, got, want)
				}
			}

			got, err := dev.Attr(tc.name)
			if err != nil {
				t.Fatalf("could not read attribute: %+v", err)
			}
			if got != tc.want {
				t.Fatalf("invalid attribute value: got=%q, want=%q", got, tc.want)
			}
		})
	}
}

func TestAFE4410Attrs(t *testing.T) {
	bus := fakebus.New(fifo.WordStream)
	dev, err := NewAFE4410(bus, withRecorder(new(recorder)))
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}

	// LED1 intensity, negative.
	bus.Regs[afe4410LED1Val] = 0xfffff0
	got, err := dev.Attr("in_intensity2_raw")
	if err != nil {
		t.Fatalf("could not read intensity: %+v", err)
	}
	if want := "-16"; got != want {
		t.Fatalf("invalid intensity: got=%q, want=%q", got, want)
	}

	// value registers are not cached.
	bus.Regs[afe4410LED1Val] = 42
	got, err = dev.Attr("in_intensity2_raw")
	if err != nil {
		t.Fatalf("could not read intensity: %+v", err)
	}
	if want := "42"; got != want {
		t.Fatalf("invalid intensity: got=%q, want=%q", got, want)
	}

	err = dev.SetAttr("in_intensity2_raw", "1")
	if err == nil {
		t.Fatalf("expected an error")
	}

	// intensity1 (ALED2) uses the SEP2 gain of TIA_GAIN_SEP23.
	err = dev.SetAttr("in_intensity1_resistance", "1500000")
	if err != nil {
		t.Fatalf("could not set resistance: %+v", err)
	}
	// index 8 = 0b1000: LSB=0 (bits 0-2), MSB=1 (bit 6).
	if got, want := bus.Regs[afe4410TIAGainSep23]&0x47, uint32(1<<6); got != want {
		t.Fatalf("invalid gain register: got=0x%x, want=0x%x", got, want)
	}
	got, err = dev.Attr("in_intensity1_resistance")
	if err != nil {
		t.Fatalf("could not read resistance: %+v", err)
	}
	if want := "1500000.000000"; got != want {
		t.Fatalf("invalid resistance: got=%q, want=%q", got, want)
	}

	// out of table register value.
	bus.Regs[afe4410TIAGain] = 0x4f // index 15
	dev.regs.Drop()
	_, err = dev.Attr("in_intensity2_resistance")
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := err.Error(), "afe: in_intensity2_resistance: register value 15 not in table"; got != want {
		t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
	}

	err = dev.SetAttr("out_current3_raw", "255")
	if err != nil {
		t.Fatalf("could not set LED current: %+v", err)
	}
	// ILED4: LSB bits 9-10, MSB bits 11-16.
	if got, want := bus.Regs[afe4410LEDCntrl2], uint32(0xff<<9); got != want {
		t.Fatalf("invalid LED register: got=0x%x, want=0x%x", got, want)
	}

	got, err = dev.Attr("in_intensity0_offset")
	if err != nil {
		t.Fatalf("could not read offset: %+v", err)
	}
	if want := "0"; got != want {
		t.Fatalf("invalid offset: got=%q, want=%q", got, want)
	}
}

func TestAttrIOError(t *testing.T) {
	dev, bus := newTestAFE4420(t, new(recorder))
	bus.ReadErr[afe4420Control1] = errBus

	_, err := dev.Attr("ifs_offdac")
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := err.Error(), "afe: could not read ifs_offdac: regmap: could not read register 0x23: bus error"; got != want {
		t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
	}

	err = dev.SetAttr("ifs_offdac", "3")
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := err.Error(), "afe: could not write ifs_offdac: regmap: could not read register 0x23: bus error"; got != want {
		t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
	}
}

var errBus = errors.New("bus error")

func TestCheckChannels(t *testing.T) {
	tbl, err := regmap.NewTable(afe4410Fields, afe4410Groups)
	if err != nil {
		t.Fatalf("could not create table: %+v", err)
	}

	err = checkChannels(tbl, afe4410Channels)
	if err != nil {
		t.Fatalf("invalid channel table: %+v", err)
	}

	bad := []Channel{
		afe4410Channels[0],
		{
			Name: "in_intensity1", LED: regmap.NoGroup, Offset: 99, Pol: regmap.NoGroup,
			Gain: regmap.NoGroup, Cap: regmap.NoGroup, Averages: regmap.NoGroup,
		},
	}
	err = checkChannels(tbl, bad)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := err.Error(), "channel 1 (in_intensity1) references unknown group 99"; got != want {
		t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
	}
}

func TestSetAttrs(t *testing.T) {
	dev, _ := newTestAFE4420(t, new(recorder))

	err := dev.setAttrs([]attribute{
		constAttr("b", "1"),
		rawAttr("a", AFE4420IFSOffDAC),
		constAttr("b", "2"),
	})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := err.Error(), `afe: duplicate attribute "b"`; got != want {
		t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
	}

	err = dev.setAttrs([]attribute{rawAttr("a", 1000)})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := err.Error(), `afe: attribute "a" references unknown group 1000`; got != want {
		t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
	}
}
