// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config describes the hardware setup of an AFE board.
package config // import "github.com/go-lpc/afe/internal/config"

import (
	"bytes"
	"io"
	"os"
	"sort"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// Config is the description of one AFE board.
type Config struct {
	Device   Device `yaml:"device"`
	Channels int    `yaml:"channels"` // number of active phases, 0 for all.

	// Attributes holds attribute values, applied once the channels
	// are configured.
	Attributes map[string]string `yaml:"attributes"`
}

// Device describes how the AFE is wired.
type Device struct {
	Variant string `yaml:"variant"` // afe4420 or afe4410
	Bus     string `yaml:"bus"`     // spi or i2c
	SPI     SPI    `yaml:"spi"`
	I2C     I2C    `yaml:"i2c"`

	// sysfs GPIO numbers, -1 when not wired.
	IRQ    int `yaml:"irq"`
	Reset  int `yaml:"reset"`
	Supply int `yaml:"supply"`
}

type SPI struct {
	Dev   string `yaml:"dev"`
	Speed uint32 `yaml:"speed"` // Hz, 0 for the driver default.
}

type I2C struct {
	Bus  int   `yaml:"bus"`
	Addr uint8 `yaml:"addr"`
}

const (
	AFE4420 = "afe4420"
	AFE4410 = "afe4410"

	BusSPI = "spi"
	BusI2C = "i2c"
)

// Default returns a configuration with every optional field set.
func Default() Config {
	return Config{
		Device: Device{
			Variant: AFE4420,
			Bus:     BusSPI,
			SPI:     SPI{Dev: "/dev/spidev0.0"},
			I2C:     I2C{Bus: 1, Addr: 0x58},
			IRQ:     -1,
			Reset:   -1,
			Supply:  -1,
		},
	}
}

// Load reads and validates the configuration file fname.
func Load(fname string) (Config, error) {
	f, err := os.Open(fname)
	if err != nil {
		return Config{}, xerrors.Errorf("config: could not open %q: %w", fname, err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return cfg, xerrors.Errorf("config: could not load %q: %w", fname, err)
	}
	return cfg, nil
}

// Decode reads and validates a configuration from r.
// Fields absent from r keep their Default value.
func Decode(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, xerrors.Errorf("config: could not read: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	err = dec.Decode(&cfg)
	if err != nil && err != io.EOF {
		return cfg, xerrors.Errorf("config: could not decode: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the consistency of the configuration.
func (cfg Config) Validate() error {
	dev := cfg.Device
	maxChans := 0
	switch dev.Variant {
	case AFE4420:
		maxChans = 16
		if dev.Bus != BusSPI {
			return xerrors.Errorf("config: variant %s needs an %s bus (got %q)", dev.Variant, BusSPI, dev.Bus)
		}
	case AFE4410:
		maxChans = 4
	default:
		return xerrors.Errorf("config: invalid variant %q", dev.Variant)
	}

	switch dev.Bus {
	case BusSPI:
		if dev.SPI.Dev == "" {
			return xerrors.Errorf("config: missing spi device")
		}
	case BusI2C:
		if dev.I2C.Bus < 0 {
			return xerrors.Errorf("config: invalid i2c bus %d", dev.I2C.Bus)
		}
		if dev.I2C.Addr == 0 || dev.I2C.Addr > 0x7f {
			return xerrors.Errorf("config: invalid i2c address 0x%02x", dev.I2C.Addr)
		}
	default:
		return xerrors.Errorf("config: invalid bus %q", dev.Bus)
	}

	for _, v := range []struct {
		name string
		pin  int
	}{
		{"irq", dev.IRQ},
		{"reset", dev.Reset},
		{"supply", dev.Supply},
	} {
		if v.pin < -1 {
			return xerrors.Errorf("config: invalid %s gpio %d", v.name, v.pin)
		}
	}

	switch {
	case cfg.Channels < 0 || cfg.Channels > maxChans:
		return xerrors.Errorf("config: invalid number of channels %d (want [0, %d])", cfg.Channels, maxChans)
	case dev.Variant == AFE4410 && cfg.Channels != 0 && cfg.Channels != maxChans:
		return xerrors.Errorf("config: variant %s only runs %d channels (got %d)", dev.Variant, maxChans, cfg.Channels)
	}

	return nil
}

// Mask returns the scan mask of the configured channels, given the
// number of phases the device supports.
func (cfg Config) Mask(max int) uint32 {
	n := cfg.Channels
	if n == 0 || n > max {
		n = max
	}
	return 1<<uint(n) - 1
}

// AttrNames returns the names of the configured attributes, in the
// order they are applied.
func (cfg Config) AttrNames() []string {
	names := make([]string, 0, len(cfg.Attributes))
	for k := range cfg.Attributes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
