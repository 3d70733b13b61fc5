// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chatstate_test

import (
	"strconv"
	"testing"
	"time"

	"mellium.im/communique/internal/chatstate"
)

var epoch = time.Date(2021, 3, 15, 12, 0, 0, 0, time.UTC)

type step struct {
	at      time.Duration
	op      string
	want    chatstate.State
	changed bool
}

func TestTracker(t *testing.T) {
	for i, tc := range [...][]step{
		0: {
			{at: 0, op: "typing", want: chatstate.Composing, changed: true},
			{at: time.Second, op: "typing", want: chatstate.Composing},
			{at: 5 * time.Second, op: "idle", want: chatstate.Composing},
			{at: 12 * time.Second, op: "idle", want: chatstate.Paused, changed: true},
			{at: 13 * time.Second, op: "idle", want: chatstate.Paused},
			{at: 43 * time.Second, op: "idle", want: chatstate.Inactive, changed: true},
			{at: 43*time.Second + 9*time.Minute, op: "idle", want: chatstate.Inactive},
			{at: 44*time.Second + 10*time.Minute, op: "idle", want: chatstate.Gone, changed: true},
			{at: 11 * time.Minute, op: "idle", want: chatstate.Gone},
		},
		1: {
			{at: 0, op: "active", want: chatstate.Active},
			{at: 31 * time.Second, op: "idle", want: chatstate.Inactive, changed: true},
			{at: 32 * time.Second, op: "typing", want: chatstate.Composing, changed: true},
			{at: 33 * time.Second, op: "close", want: chatstate.Gone, changed: true},
			{at: 34 * time.Second, op: "close", want: chatstate.Gone},
		},
		2: {
			{at: 0, op: "idle", want: chatstate.Gone},
			{at: time.Hour, op: "idle", want: chatstate.Gone},
		},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			tr := chatstate.New(epoch)
			for j, s := range tc {
				now := epoch.Add(s.at)
				var got chatstate.State
				var changed bool
				switch s.op {
				case "typing":
					got, changed = tr.Typing(now)
				case "idle":
					got, changed = tr.Idle(now)
				case "close":
					got, changed = tr.Close(now)
				case "active":
					tr.Active(now)
					got = tr.State()
				}
				if got != s.want || changed != s.changed {
					t.Errorf("step %d (%s): want=%v/%t, got=%v/%t", j, s.op, s.want, s.changed, got, changed)
				}
			}
		})
	}
}

func TestReset(t *testing.T) {
	tr := chatstate.New(epoch)
	tr.Typing(epoch)
	tr.Reset(epoch.Add(time.Second))
	if s := tr.State(); s != chatstate.Gone {
		t.Errorf("reset should forget activity: got=%v", s)
	}
	if _, changed := tr.Idle(epoch.Add(time.Hour)); changed {
		t.Errorf("idle after reset should not send anything")
	}
}

func TestParse(t *testing.T) {
	for st := chatstate.Active; st <= chatstate.Gone; st++ {
		got, err := chatstate.Parse(st.String())
		if err != nil || got != st {
			t.Errorf("state %v did not parse: got=%v, err=%v", st, got, err)
		}
		if n := st.Name(); n.Space != chatstate.NS {
			t.Errorf("wrong namespace for %v: %q", st, n.Space)
		}
	}
	if _, err := chatstate.Parse("sleeping"); err == nil {
		t.Errorf("expected error for unknown state")
	}
}
