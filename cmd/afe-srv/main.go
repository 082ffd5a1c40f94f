// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command afe-srv starts a TDAQ server driving an AFE board.
//
// The board configuration file is given by the /config command or,
// by default, by the AFE_CONFIG environment variable.
package main // import "github.com/go-lpc/afe/cmd/afe-srv"

import (
	"context"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/afe/daq"
)

func main() {
	cmd := flags.New()

	name := "afe-srv"
	if len(cmd.Args) > 0 {
		name = cmd.Args[0]
	}
	dev := daq.NewServer(name, os.Getenv("AFE_CONFIG"), nil)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/afe", dev.Output)

	srv.RunHandle(dev.Run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
