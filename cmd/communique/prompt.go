// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/term"
)

var errNoInput = errors.New("input closed before a password was entered")

// prompter reads passwords from the same lines as the rest of the input with
// terminal echo switched off.
// A preset password, if any, is used for the first prompt.
type prompter struct {
	w      io.Writer
	fd     int
	lines  <-chan string
	preset string
}

func newPrompter(w io.Writer, fd int, lines <-chan string, preset string) *prompter {
	return &prompter{w: w, fd: fd, lines: lines, preset: preset}
}

func (p *prompter) Password(prompt string) (string, error) {
	if p.preset != "" {
		pass := p.preset
		p.preset = ""
		return pass, nil
	}
	fmt.Fprint(p.w, prompt+" ")
	if term.IsTerminal(p.fd) {
		restore, err := noEcho(p.fd)
		if err == nil {
			defer restore()
		}
	}
	pass, ok := <-p.lines
	fmt.Fprintln(p.w)
	if !ok {
		return "", errNoInput
	}
	return pass, nil
}
