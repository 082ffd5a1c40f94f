// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command afe-ctl inspects and configures an AFE board.
//
// Usage:
//
//	$> afe-ctl --config afe.yaml attrs
//	$> afe-ctl --config afe.yaml get in_intensity0_averages
//	$> afe-ctl --config afe.yaml set in_intensity0_averages 4
//	$> afe-ctl --config afe.yaml reg 0x6d
//	$> afe-ctl --config afe.yaml watch
//	$> afe-ctl --config afe.yaml shell
package main // import "github.com/go-lpc/afe/cmd/afe-ctl"

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/afe"
	"github.com/go-lpc/afe/internal/config"
	"github.com/go-lpc/afe/internal/hw"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

func main() {
	log.SetPrefix("afe-ctl: ")
	log.SetFlags(0)

	err := newRootCommand(os.Stdout).Execute()
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type board interface {
	Do(f func(dev afe.Device) error) error
	Run(ctx context.Context, sink func(frames []afe.Frame) error) error
	Close() error
}

var openBoard = func(fname string, verbose bool) (board, error) {
	cfg, err := config.Load(fname)
	if err != nil {
		return nil, err
	}
	lvl := tlog.LvlInfo
	if verbose {
		lvl = tlog.LvlDebug
	}
	b, err := hw.Open(cfg, tlog.NewMsgStream("afe-ctl", lvl, os.Stderr))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newRootCommand(out io.Writer) *cobra.Command {
	var (
		fname   string
		verbose bool
	)

	// withCtl opens the board for the duration of f.
	withCtl := func(f func(c *ctl) error) error {
		b, err := openBoard(fname, verbose)
		if err != nil {
			return xerrors.Errorf("could not open board: %w", err)
		}
		defer b.Close()
		return f(&ctl{w: out, board: b})
	}

	cmd := &cobra.Command{
		Use:           "afe-ctl",
		Short:         "Tool to inspect and configure AFE optical front ends",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&fname, "config", os.Getenv("AFE_CONFIG"), "path to the board configuration file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose mode")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version of afe-ctl",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				version, sum := afe.Version()
				if version == "" {
					version = "(devel)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "afe-ctl %s %s\n", version, sum)
				return nil
			},
		},
		&cobra.Command{
			Use:   "attrs",
			Short: "List the device attributes and their values",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCtl(func(c *ctl) error { return c.attrs() })
			},
		},
		&cobra.Command{
			Use:   "get NAME",
			Short: "Print the value of an attribute",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCtl(func(c *ctl) error { return c.get(args[0]) })
			},
		},
		&cobra.Command{
			Use:   "set NAME VALUE",
			Short: "Set the value of an attribute",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCtl(func(c *ctl) error { return c.set(args[0], args[1]) })
			},
		},
		&cobra.Command{
			Use:   "reg ADDR [VALUE]",
			Short: "Read or write a raw device register",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCtl(func(c *ctl) error { return c.reg(args) })
			},
		},
		&cobra.Command{
			Use:   "watch",
			Short: "Acquire and print frames until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCtl(func(c *ctl) error {
					stop := make(chan os.Signal, 1)
					signal.Notify(stop, os.Interrupt)
					defer signal.Stop(stop)
					return c.watch(context.Background(), stop)
				})
			},
		},
		&cobra.Command{
			Use:   "shell",
			Short: "Run an interactive attribute shell",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCtl(func(c *ctl) error { return c.shell() })
			},
		},
	)

	return cmd
}

// ctl runs the afe-ctl verbs against an opened board.
type ctl struct {
	w     io.Writer
	board board
}

func (c *ctl) attrs() error {
	return c.board.Do(func(dev afe.Device) error {
		fmt.Fprintf(c.w, "device: %s (phases=%d/%d)\n", dev.Name(), dev.Phases(), dev.MaxPhases())
		names := dev.Attrs()
		width := 0
		for _, name := range names {
			if len(name) > width {
				width = len(name)
			}
		}
		for _, name := range names {
			v, err := dev.Attr(name)
			if err != nil {
				v = "<" + err.Error() + ">"
			}
			fmt.Fprintf(c.w, "%-*s %s\n", width, name, v)
		}
		return nil
	})
}

func (c *ctl) get(name string) error {
	return c.board.Do(func(dev afe.Device) error {
		v, err := dev.Attr(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.w, "%s\n", v)
		return nil
	})
}

func (c *ctl) set(name, value string) error {
	return c.board.Do(func(dev afe.Device) error {
		return dev.SetAttr(name, value)
	})
}

func (c *ctl) reg(args []string) error {
	addr, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return xerrors.Errorf("invalid register address %q: %w", args[0], err)
	}
	reg := uint8(addr)

	if len(args) == 1 {
		return c.board.Do(func(dev afe.Device) error {
			v, err := dev.ReadReg(reg)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.w, "0x%02x: 0x%06x\n", reg, v)
			return nil
		})
	}

	v, err := strconv.ParseUint(args[1], 0, 24)
	if err != nil {
		return xerrors.Errorf("invalid register value %q: %w", args[1], err)
	}
	return c.board.Do(func(dev afe.Device) error {
		return dev.WriteReg(reg, uint32(v))
	})
}

// watch starts the acquisition and prints frames until stop fires.
func (c *ctl) watch(ctx context.Context, stop <-chan os.Signal) error {
	err := c.board.Do(func(dev afe.Device) error { return dev.Start() })
	if err != nil {
		return xerrors.Errorf("could not start acquisition: %w", err)
	}
	defer func() {
		err := c.board.Do(func(dev afe.Device) error { return dev.Stop() })
		if err != nil {
			log.Printf("could not stop acquisition: %+v", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
		return nil
	})
	grp.Go(func() error {
		n := 0
		return c.board.Run(ctx, func(frames []afe.Frame) error {
			for _, f := range frames {
				flag := ""
				if f.Late {
					flag = " (late)"
				}
				fmt.Fprintf(c.w, "cycle %06d: %v%s\n", n, f.Samples, flag)
				n++
			}
			return nil
		})
	})

	return grp.Wait()
}

// exec runs one shell command line.
func (c *ctl) exec(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}

	verb, args := args[0], args[1:]
	want, ok := verbs[verb]
	if !ok {
		return xerrors.Errorf("unknown command %q", verb)
	}
	if len(args) < want[0] || len(args) > want[1] {
		return xerrors.Errorf("invalid number of arguments for %q (got=%d)", verb, len(args))
	}

	switch verb {
	case "help":
		names := make([]string, 0, len(verbs))
		for k := range verbs {
			names = append(names, k)
		}
		sort.Strings(names)
		fmt.Fprintf(c.w, "commands: %s\n", strings.Join(names, ", "))
		return nil
	case "attrs":
		return c.attrs()
	case "get":
		return c.get(args[0])
	case "set":
		return c.set(args[0], args[1])
	case "reg":
		return c.reg(args)
	case "start":
		return c.board.Do(func(dev afe.Device) error { return dev.Start() })
	case "stop":
		return c.board.Do(func(dev afe.Device) error { return dev.Stop() })
	}
	panic("unreachable")
}

// verbs holds the shell commands with their min and max number of arguments.
var verbs = map[string][2]int{
	"help":  {0, 0},
	"attrs": {0, 0},
	"get":   {1, 1},
	"set":   {2, 2},
	"reg":   {1, 2},
	"start": {0, 0},
	"stop":  {0, 0},
}
