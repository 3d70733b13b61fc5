// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package termui

import (
	"bufio"
	"context"
	"io"
)

// maxLine is the longest line of input accepted.
const maxLine = 64 * 1024

// Lines reads lines from r and sends them on the returned channel until r is
// exhausted or ctx is done.
// The channel is closed when reading stops.
// A read that is blocked when ctx is cancelled is not interrupted.
func Lines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		s := bufio.NewScanner(r)
		s.Buffer(make([]byte, 0, 4096), maxLine)
		for s.Scan() {
			select {
			case out <- s.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
