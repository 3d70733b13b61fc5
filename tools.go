// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

//go:build tools
// +build tools

// Package communique is a terminal XMPP client.
// The client itself is built from cmd/communique.
package communique // import "mellium.im/communique"

import (
	_ "golang.org/x/tools/cmd/stringer"
)
