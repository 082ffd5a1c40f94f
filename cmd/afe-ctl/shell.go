// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-lpc/afe"
	"github.com/peterh/liner"
)

func (c *ctl) shell() error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(c.complete)

	for {
		line, err := term.Prompt("afe> ")
		switch err {
		case nil:
		case io.EOF, liner.ErrPromptAborted:
			fmt.Fprintf(c.w, "\n")
			return nil
		default:
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		term.AppendHistory(line)

		err = c.exec(line)
		if err != nil {
			fmt.Fprintf(c.w, "error: %+v\n", err)
		}
	}
}

// complete completes shell verbs and attribute names.
func (c *ctl) complete(line string) []string {
	var (
		out    []string
		fields = strings.Fields(line)
	)

	if len(fields) == 0 || (len(fields) == 1 && !strings.HasSuffix(line, " ")) {
		prefix := ""
		if len(fields) == 1 {
			prefix = fields[0]
		}
		for verb := range verbs {
			if strings.HasPrefix(verb, prefix) {
				out = append(out, verb+" ")
			}
		}
		sort.Strings(out)
		return out
	}

	switch fields[0] {
	case "get", "set":
	default:
		return nil
	}

	prefix := ""
	if len(fields) == 2 && !strings.HasSuffix(line, " ") {
		prefix = fields[1]
	} else if len(fields) > 1 {
		return nil
	}

	_ = c.board.Do(func(dev afe.Device) error {
		for _, name := range dev.Attrs() {
			if strings.HasPrefix(name, prefix) {
				out = append(out, fields[0]+" "+name+" ")
			}
		}
		return nil
	})
	return out
}
