// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

//go:build !linux
// +build !linux

package main

import (
	"errors"
)

var errEchoUnsupported = errors.New("turning off echo is not supported on this platform")

func noEcho(int) (func(), error) {
	return nil, errEchoUnsupported
}
