// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daq exposes an AFE board as a TDAQ run-control node.
package daq // import "github.com/go-lpc/afe/daq"

import (
	"bytes"
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/afe"
	"github.com/go-lpc/afe/internal/config"
	"github.com/go-lpc/afe/internal/hw"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// Board is an AFE device driven by an interrupt loop.
type Board interface {
	Do(f func(dev afe.Device) error) error
	Run(ctx context.Context, sink func(frames []afe.Frame) error) error
	Close() error
}

// Opener opens the board described by a configuration.
type Opener func(cfg config.Config, msg log.MsgStream) (Board, error)

// Server handles the run-control commands of one AFE board.
type Server struct {
	name  string
	fname string // configuration file
	open  Opener

	cfg   config.Config
	board Board

	data  chan []byte
	stats struct {
		cycles  uint64
		dropped uint64
	}
	freq time.Duration // statistics report period
}

// NewServer returns a server reading its configuration from fname.
// An empty fname selects the AFE_CONFIG environment variable.
func NewServer(name, fname string, open Opener) *Server {
	if fname == "" {
		fname = os.Getenv("AFE_CONFIG")
	}
	if open == nil {
		open = openBoard
	}
	return &Server{
		name:  name,
		fname: fname,
		open:  open,
		cfg:   config.Default(),
		data:  make(chan []byte, 1024),
		freq:  10 * time.Second,
	}
}

func openBoard(cfg config.Config, msg log.MsgStream) (Board, error) {
	board, err := hw.Open(cfg, msg)
	if err != nil {
		return nil, err
	}
	return board, nil
}

// OnConfig loads the board configuration.
// The request body may carry the path of the configuration file.
func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	fname := srv.fname
	if len(req.Body) > 0 {
		dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
		fname = dec.ReadStr()
		if err := dec.Err(); err != nil {
			return xerrors.Errorf("could not decode /config request: %w", err)
		}
		srv.fname = fname
	}
	if fname == "" {
		ctx.Msg.Errorf("no configuration file")
		return xerrors.Errorf("no configuration file")
	}

	cfg, err := config.Load(fname)
	if err != nil {
		ctx.Msg.Errorf("could not load configuration: %+v", err)
		return xerrors.Errorf("could not load configuration: %w", err)
	}
	srv.cfg = cfg
	ctx.Msg.Infof("configuration %q: %s over %s", fname, cfg.Device.Variant, cfg.Device.Bus)
	return nil
}

// OnInit opens the board.
func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	if srv.board != nil {
		ctx.Msg.Errorf("board already initialized")
		return xerrors.Errorf("board already initialized")
	}
	return srv.init(ctx)
}

func (srv *Server) init(ctx tdaq.Context) error {
	board, err := srv.open(srv.cfg, ctx.Msg)
	if err != nil {
		ctx.Msg.Errorf("could not open board: %+v", err)
		return xerrors.Errorf("could not open board: %w", err)
	}
	srv.board = board
	ctx.Msg.Infof("board %s: OK", srv.cfg.Device.Variant)
	return nil
}

// OnReset closes and reopens the board.
func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	err := srv.close()
	if err != nil {
		ctx.Msg.Errorf("could not close board: %+v", err)
	}
	srv.data = make(chan []byte, cap(srv.data))
	atomic.StoreUint64(&srv.stats.cycles, 0)
	atomic.StoreUint64(&srv.stats.dropped, 0)
	return srv.init(ctx)
}

// OnStart configures the channels and enables the FIFO.
func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if srv.board == nil {
		return xerrors.Errorf("board not initialized")
	}
	err := srv.board.Do(func(dev afe.Device) error {
		err := dev.ConfigureChannels(srv.cfg.Mask(dev.MaxPhases()))
		if err != nil {
			return xerrors.Errorf("could not configure channels: %w", err)
		}
		return dev.Start()
	})
	if err != nil {
		ctx.Msg.Errorf("could not start board: %+v", err)
		return xerrors.Errorf("could not start board: %w", err)
	}
	return nil
}

// OnStop disables the FIFO.
func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command... -> cycles=%d, dropped=%d",
		atomic.LoadUint64(&srv.stats.cycles),
		atomic.LoadUint64(&srv.stats.dropped),
	)
	if srv.board == nil {
		return xerrors.Errorf("board not initialized")
	}
	err := srv.board.Do(func(dev afe.Device) error { return dev.Stop() })
	if err != nil {
		ctx.Msg.Errorf("could not stop board: %+v", err)
		return xerrors.Errorf("could not stop board: %w", err)
	}
	return nil
}

// OnQuit closes the board.
func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	err := srv.close()
	if err != nil {
		ctx.Msg.Errorf("could not close board: %+v", err)
		return xerrors.Errorf("could not close board: %w", err)
	}
	return nil
}

func (srv *Server) close() error {
	if srv.board == nil {
		return nil
	}
	err := srv.board.Close()
	srv.board = nil
	return err
}

// Output sends the encoded frames of one interrupt.
func (srv *Server) Output(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-srv.data:
		dst.Body = data
	}
	return nil
}

// Run services the board interrupts until the run is stopped.
func (srv *Server) Run(ctx tdaq.Context) error {
	board := srv.board
	if board == nil {
		return xerrors.Errorf("board not initialized")
	}

	grp, gctx := errgroup.WithContext(ctx.Ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	grp.Go(func() error {
		// a board closed by /quit ends the run.
		defer cancel()
		return board.Run(gctx, srv.sink)
	})
	grp.Go(func() error {
		tick := time.NewTicker(srv.freq)
		defer tick.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-tick.C:
				ctx.Msg.Infof("cycles=%d, dropped=%d",
					atomic.LoadUint64(&srv.stats.cycles),
					atomic.LoadUint64(&srv.stats.dropped),
				)
			}
		}
	})

	err := grp.Wait()
	if err != nil {
		ctx.Msg.Errorf("could not run board: %+v", err)
		return xerrors.Errorf("could not run board: %w", err)
	}
	return nil
}

func (srv *Server) sink(frames []afe.Frame) error {
	raw, err := EncodeFrames(frames)
	if err != nil {
		return err
	}
	select {
	case srv.data <- raw:
		atomic.AddUint64(&srv.stats.cycles, uint64(len(frames)))
	default:
		atomic.AddUint64(&srv.stats.dropped, uint64(len(frames)))
	}
	return nil
}
