// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

// ProtocolError is a request the server or a remote entity refused, or one
// that could not be sent.
type ProtocolError struct {
	// Target is the address the request was about.
	Target string
	Op     string
	Err    error
}

func (e ProtocolError) Error() string {
	if e.Target == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Target + ": " + e.Err.Error()
}

func (e ProtocolError) Unwrap() error {
	return e.Err
}
