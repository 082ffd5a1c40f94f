// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command afe-boot (re)starts the afe-srv processes of a node, one per
// board configuration file.
//
// Usage: afe-boot [OPTIONS] board1.yaml [board2.yaml [...]]
//
// Example:
//
//	$> afe-boot -dir /var/log/afe -pmon ./wrist.yaml ./finger.yaml
package main // import "github.com/go-lpc/afe/cmd/afe-boot"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

var (
	doMon  = flag.Bool("pmon", false, "enable pmon monitoring")
	doFreq = flag.Duration("freq", 1*time.Second, "pmon frequency")
	logDir = flag.String("dir", os.Getenv("AFE_LOGDIR"), "directory holding the log files")
	srvCmd = flag.String("cmd", "afe-srv", "run-control server command")
	rcAddr = flag.String("rc-addr", ":44000", "[ip]:port of the run-control")

	stop = make(chan os.Signal, 1)
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `afe-boot (re)starts the afe-srv processes of a node.

Usage: afe-boot [OPTIONS] board1.yaml [board2.yaml [...]]

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	log.SetPrefix("afe-boot: ")
	log.SetFlags(0)

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing board configuration file")
	}

	cmds := make([]*exec.Cmd, flag.NArg())
	for i, fname := range flag.Args() {
		cmds[i] = newServer(*srvCmd, *rcAddr, fname)
	}

	err := run(*doMon, *doFreq, cmds, *logDir, stop)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

// newServer returns the command running the server of the board
// described by fname.
func newServer(name, addr, fname string) *exec.Cmd {
	id := strings.TrimSuffix(filepath.Base(fname), filepath.Ext(fname))
	cmd := exec.Command(name, "-rc-addr", addr, "-id", name+"-"+id)
	cmd.Env = append(os.Environ(), "AFE_CONFIG="+fname)
	return cmd
}

// logName returns the log file name of cmd, given its index.
func logName(cmd *exec.Cmd, i int) string {
	for j, arg := range cmd.Args {
		if arg == "-id" && j+1 < len(cmd.Args) {
			return cmd.Args[j+1]
		}
	}
	return fmt.Sprintf("%s-%d", filepath.Base(cmd.Path), i)
}

func run(doMon bool, freq time.Duration, cmds []*exec.Cmd, dir string, stop chan os.Signal) error {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	names := make(map[string]struct{})
	for _, cmd := range cmds {
		names[filepath.Base(cmd.Path)] = struct{}{}
	}
	for name := range names {
		kill := exec.Command("killall", name)
		kill.Stderr = os.Stderr
		kill.Stdout = os.Stdout
		err := kill.Run()
		if err != nil {
			log.Printf("could not kill %q: %+v", name, err)
		}
	}

	if dir == "" {
		dir = "/var/log/afe"
	}

	var (
		grp  errgroup.Group
		kill = make(chan int)
	)
	for i := range cmds {
		cmd := cmds[i]
		name := logName(cmd, i)
		grp.Go(func() error {
			return start(cmd, name, dir, kill, doMon, freq)
		})
	}

	go func() {
		<-stop
		close(kill)
	}()

	err := grp.Wait()
	if err != nil {
		return fmt.Errorf("could not boot AFE servers: %w", err)
	}
	return nil
}

func start(cmd *exec.Cmd, name, dir string, kill chan int, doMon bool, freq time.Duration) error {
	out, err := os.Create(filepath.Join(dir, name+".log"))
	if err != nil {
		return fmt.Errorf("could not create output log file for %q: %w", name, err)
	}
	defer out.Close()

	cmd.Stdout = out
	cmd.Stderr = out

	log.Printf("starting %q...", name)
	err = cmd.Start()
	if err != nil {
		return fmt.Errorf("could not start %q: %w", name, err)
	}

	if doMon {
		p, err := pmon.Monitor(cmd.Process.Pid)
		if err != nil {
			return fmt.Errorf("could not start monitoring %q (pid=%d): %w", name, cmd.Process.Pid, err)
		}
		f, err := os.Create(filepath.Join(dir, name+"-pmon.log"))
		if err != nil {
			return fmt.Errorf("could not create pmon log file for command %q: %w", name, err)
		}
		defer f.Close()
		p.W = f
		p.Freq = freq

		go func() {
			log.Printf("run pmon %q...", name)
			err := p.Run()
			if err != nil {
				log.Printf("could not start monitoring %q: %+v", name, err)
			}
		}()

		defer func() {
			err := p.Kill()
			if err != nil {
				log.Printf("could not stop monitoring %q: %+v", name, err)
			}
		}()
	}

	errch := make(chan error)
	go func() {
		errch <- cmd.Wait()
	}()

	select {
	case <-kill:
		err = cmd.Process.Kill()
		if err != nil {
			return fmt.Errorf("could not kill %q: %+v", name, err)
		}
	case err = <-errch:
		if err != nil {
			return fmt.Errorf("could not run %q: %w", name, err)
		}
	}

	return nil
}
