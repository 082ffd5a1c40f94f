// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gpio

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"golang.org/x/xerrors"
)

func setupSysfs(t *testing.T, lines ...int) string {
	t.Helper()
	tmp := t.TempDir()
	orig := sysfs
	sysfs = tmp
	t.Cleanup(func() { sysfs = orig })

	err := os.WriteFile(filepath.Join(tmp, "export"), nil, 0644)
	if err != nil {
		t.Fatalf("could not create export file: %+v", err)
	}
	for _, n := range lines {
		dir := filepath.Join(tmp, "gpio"+strconv.Itoa(n))
		err = os.Mkdir(dir, 0755)
		if err != nil {
			t.Fatalf("could not create line dir: %+v", err)
		}
		for _, name := range []string{"direction", "edge", "value"} {
			err = os.WriteFile(filepath.Join(dir, name), []byte("0"), 0644)
			if err != nil {
				t.Fatalf("could not create %s file: %+v", name, err)
			}
		}
	}
	return tmp
}

func readFile(t *testing.T, fname string) string {
	t.Helper()
	raw, err := os.ReadFile(fname)
	if err != nil {
		t.Fatalf("could not read %q: %+v", fname, err)
	}
	return string(raw)
}

func TestOutput(t *testing.T) {
	root := setupSysfs(t, 17)

	pin, err := OpenOutput(17, 1)
	if err != nil {
		t.Fatalf("could not open output: %+v", err)
	}
	defer pin.Close()

	if got, want := readFile(t, filepath.Join(root, "gpio17", "direction")), "high"; got != want {
		t.Fatalf("invalid direction: got=%q, want=%q", got, want)
	}

	rail := NewRail(pin)
	for _, tc := range []struct {
		f    func() error
		want int
	}{
		{rail.Disable, 0},
		{rail.Enable, 1},
		{func() error { return pin.Set(0) }, 0},
		{func() error { return pin.Set(42) }, 1},
	} {
		err := tc.f()
		if err != nil {
			t.Fatalf("could not drive line: %+v", err)
		}
		v, err := pin.Value()
		if err != nil {
			t.Fatalf("could not read line: %+v", err)
		}
		if v != tc.want {
			t.Fatalf("invalid level: got=%d, want=%d", v, tc.want)
		}
	}

	err = pin.Close()
	if err != nil {
		t.Fatalf("could not close line: %+v", err)
	}
	err = pin.Close()
	if err != nil {
		t.Fatalf("could not close line twice: %+v", err)
	}
}

func TestInput(t *testing.T) {
	root := setupSysfs(t, 4)

	pin, err := OpenInput(4, Rising)
	if err != nil {
		t.Fatalf("could not open input: %+v", err)
	}
	defer pin.Close()

	if got, want := readFile(t, filepath.Join(root, "gpio4", "direction")), "in"; got != want {
		t.Fatalf("invalid direction: got=%q, want=%q", got, want)
	}
	if got, want := readFile(t, filepath.Join(root, "gpio4", "edge")), "rising"; got != want {
		t.Fatalf("invalid edge: got=%q, want=%q", got, want)
	}

	// level already high.
	err = os.WriteFile(filepath.Join(root, "gpio4", "value"), []byte("1\n"), 0644)
	if err != nil {
		t.Fatalf("could not set level: %+v", err)
	}
	err = pin.Wait(context.Background())
	if err != nil {
		t.Fatalf("could not wait for high line: %+v", err)
	}

	// no edge: wait until cancellation.
	err = os.WriteFile(filepath.Join(root, "gpio4", "value"), []byte("0\n"), 0644)
	if err != nil {
		t.Fatalf("could not set level: %+v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = pin.Wait(ctx)
	if !xerrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("invalid error: got=%v, want=%v", err, context.DeadlineExceeded)
	}
}

func TestInvalidValue(t *testing.T) {
	root := setupSysfs(t, 5)
	pin, err := OpenInput(5, Both)
	if err != nil {
		t.Fatalf("could not open input: %+v", err)
	}
	defer pin.Close()

	err = os.WriteFile(filepath.Join(root, "gpio5", "value"), []byte("x"), 0644)
	if err != nil {
		t.Fatalf("could not set level: %+v", err)
	}
	_, err = pin.Value()
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := err.Error(), `gpio: invalid value 'x' for line 5`; got != want {
		t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
	}
}

func TestExport(t *testing.T) {
	root := setupSysfs(t)

	err := Export(23)
	if err != nil {
		t.Fatalf("could not export line: %+v", err)
	}
	if got, want := readFile(t, filepath.Join(root, "export")), "23"; got != want {
		t.Fatalf("invalid export request: got=%q, want=%q", got, want)
	}

	// the fake sysfs does not create the line directory.
	_, err = OpenOutput(23, 0)
	if err == nil {
		t.Fatalf("expected an error")
	}

	sysfs = filepath.Join(root, "missing")
	err = Export(1)
	if err == nil {
		t.Fatalf("expected an error")
	}
}
