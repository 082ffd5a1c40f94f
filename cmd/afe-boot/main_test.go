// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"
	"time"
)

func TestNewServer(t *testing.T) {
	cmd := newServer("afe-srv", ":44000", "/etc/afe/wrist.yaml")
	if got, want := cmd.Args, []string{"afe-srv", "-rc-addr", ":44000", "-id", "afe-srv-wrist"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid args:\ngot= %q\nwant=%q", got, want)
	}
	if got, want := cmd.Env[len(cmd.Env)-1], "AFE_CONFIG=/etc/afe/wrist.yaml"; got != want {
		t.Fatalf("invalid env: got=%q, want=%q", got, want)
	}
	if got, want := logName(cmd, 0), "afe-srv-wrist"; got != want {
		t.Fatalf("invalid log name: got=%q, want=%q", got, want)
	}

	if got, want := logName(exec.Command("/bin/true"), 2), "true-2"; got != want {
		t.Fatalf("invalid log name: got=%q, want=%q", got, want)
	}
}

// sleeper copies the sleep program under a name unique to the test,
// so run does not kill unrelated processes.
func sleeper(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("sleep")
	if err != nil {
		t.Skipf("no sleep program: %+v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read %q: %+v", path, err)
	}
	prog := filepath.Join(t.TempDir(), "afe-boot-sleeper")
	err = os.WriteFile(prog, raw, 0755)
	if err != nil {
		t.Fatalf("could not create test program: %+v", err)
	}
	return prog
}

func TestRun(t *testing.T) {
	prog := sleeper(t)

	for _, tc := range []struct {
		name  string
		delay string
		mon   bool
		stop  bool
	}{
		{name: "simple", delay: "0.2"},
		{name: "simple-pmon", delay: "0.5", mon: true},
		{name: "simple-stop", delay: "10", stop: true},
		{name: "simple-stop-pmon", delay: "10", stop: true, mon: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			cmds := []*exec.Cmd{
				exec.Command(prog, tc.delay),
				exec.Command(prog, tc.delay),
			}

			stop := make(chan os.Signal, 1)
			if tc.stop {
				go func() {
					time.Sleep(500 * time.Millisecond)
					stop <- os.Interrupt
				}()
			}
			err := run(tc.mon, 100*time.Millisecond, cmds, dir, stop)
			if err != nil {
				t.Fatalf("could not run processes: %+v", err)
			}

			for i := range cmds {
				fname := filepath.Join(dir, "afe-boot-sleeper-"+strconv.Itoa(i)+".log")
				_, err := os.Stat(fname)
				if err != nil {
					t.Fatalf("missing log file: %+v", err)
				}
			}
		})
	}
}

func TestRunError(t *testing.T) {
	cmds := []*exec.Cmd{exec.Command(filepath.Join(t.TempDir(), "not-there"))}
	err := run(false, time.Second, cmds, t.TempDir(), make(chan os.Signal, 1))
	if err == nil {
		t.Fatalf("expected an error")
	}
}
