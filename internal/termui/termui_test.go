// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package termui_test

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"mellium.im/communique/internal/chatstate"
	"mellium.im/communique/internal/client"
	"mellium.im/communique/internal/encryption"
	"mellium.im/communique/internal/roster"
	"mellium.im/communique/internal/session"
	"mellium.im/communique/internal/termui"
)

var now = time.Date(2021, 5, 1, 12, 0, 0, 0, time.UTC)

type teardown struct{}

func (teardown) Connected() bool         { return true }
func (teardown) LeaveRoom(*session.Room) {}
func (teardown) EndChat(*session.Chat)   {}
func (teardown) ResetChat(*session.Chat) {}

func newTerminal(opts ...termui.Option) (*termui.Terminal, *bytes.Buffer, *session.Registry) {
	var buf bytes.Buffer
	opts = append([]termui.Option{
		termui.Color(false),
		termui.Clock(func() time.Time { return now }),
	}, opts...)
	reg := session.New(teardown{}, session.Clock(func() time.Time { return now }))
	t := termui.New(&buf, opts...)
	t.Windows(reg.All(), reg.Current())
	return t, &buf, reg
}

var formatTestCases = [...]struct {
	line client.Line
	out  string
}{
	0: {
		line: client.Line{Kind: client.LineInfo, Stamp: now, Text: "Connecting with account thirdwitch"},
		out:  "12:00:00 - Connecting with account thirdwitch\n",
	},
	1: {
		line: client.Line{Kind: client.LineError, Stamp: now, Text: "Lost connection."},
		out:  "12:00:00 ! Lost connection.\n",
	},
	2: {
		line: client.Line{Kind: client.LineIncoming, Stamp: now, From: "Macbeth", Text: "So foul and fair a day"},
		out:  "12:00:00 Macbeth: So foul and fair a day\n",
	},
	3: {
		line: client.Line{Kind: client.LineOutgoing, Stamp: now, From: "me", Text: "All hail", Mode: encryption.PGP},
		out:  "12:00:00 [PGP] me: All hail\n",
	},
	4: {
		line: client.Line{Kind: client.LineHistory, Stamp: now.Add(-72 * time.Hour), From: "me", Text: "When shall we three meet again"},
		out:  "3 days ago me: When shall we three meet again\n",
	},
	5: {
		line: client.Line{Kind: client.LineXML, Text: "<presence/>"},
		out:  "<presence/>\n",
	},
}

func TestFormat(t *testing.T) {
	for i, tc := range formatTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			term, buf, reg := newTerminal()
			buf.Reset()
			term.Print(reg.Console(), tc.line)
			if out := buf.String(); out != tc.out {
				t.Errorf("wrong output:\nwant=%q,\n got=%q", tc.out, out)
			}
		})
	}
}

func TestBackgroundWindow(t *testing.T) {
	term, buf, reg := newTerminal()
	ch, _ := reg.OpenChat("macbeth@shakespeare.lit")
	buf.Reset()

	term.Print(ch, client.Line{Kind: client.LineIncoming, Stamp: now, From: "Macbeth", Text: "Speak, I charge you"})
	if buf.Len() != 0 {
		t.Fatalf("line for a background window was written: %q", buf.String())
	}

	reg.FocusConversation(ch)
	term.Windows(reg.All(), reg.Current())
	out := buf.String()
	if !strings.Contains(out, "2: macbeth@shakespeare.lit") {
		t.Errorf("window title not shown: %q", out)
	}
	if !strings.Contains(out, "Macbeth: Speak, I charge you") {
		t.Errorf("scrollback not shown on focus: %q", out)
	}
	if !strings.Contains(out, " 1 [2]") {
		t.Errorf("status line does not mark the current window: %q", out)
	}
}

func TestStatusLineOnlyOnChange(t *testing.T) {
	term, buf, reg := newTerminal()
	buf.Reset()
	term.Windows(reg.All(), reg.Current())
	if buf.Len() != 0 {
		t.Errorf("unchanged status line was written again: %q", buf.String())
	}
	term.Roster([]*roster.Contact{{JID: "macbeth@shakespeare.lit"}})
	term.Windows(reg.All(), reg.Current())
	if !strings.Contains(buf.String(), "0/1 online") {
		t.Errorf("roster count not shown: %q", buf.String())
	}
}

func TestScrollback(t *testing.T) {
	term, buf, reg := newTerminal(termui.Scrollback(2))
	ch, _ := reg.OpenChat("banquo@shakespeare.lit")
	for i := 0; i < 3; i++ {
		term.Print(ch, client.Line{Kind: client.LineInfo, Stamp: now, Text: "line " + strconv.Itoa(i)})
	}
	buf.Reset()
	reg.FocusConversation(ch)
	term.Windows(reg.All(), reg.Current())
	out := buf.String()
	if strings.Contains(out, "line 0") {
		t.Errorf("line beyond the scrollback was kept: %q", out)
	}
	if !strings.Contains(out, "line 1") || !strings.Contains(out, "line 2") {
		t.Errorf("scrollback lost lines: %q", out)
	}
}

func TestReceipt(t *testing.T) {
	term, buf, reg := newTerminal()
	ch, _ := reg.OpenChat("macbeth@shakespeare.lit")
	reg.FocusConversation(ch)
	term.Windows(reg.All(), reg.Current())
	term.Print(ch, client.Line{Kind: client.LineOutgoing, Stamp: now, From: "me", Text: "Hail", ID: "abc"})
	buf.Reset()

	term.Receipt(ch, "unknown")
	term.Receipt(ch, "")
	if buf.Len() != 0 {
		t.Fatalf("receipt for an unknown message was shown: %q", buf.String())
	}
	term.Receipt(ch, "abc")
	if !strings.Contains(buf.String(), "delivered: Hail") {
		t.Errorf("receipt not shown: %q", buf.String())
	}

	term.Clear(ch)
	reg.FocusConversation(reg.Console())
	term.Windows(reg.All(), reg.Current())
	reg.FocusConversation(ch)
	buf.Reset()
	term.Windows(reg.All(), reg.Current())
	if strings.Contains(buf.String(), "Hail") {
		t.Errorf("cleared window was redrawn with old lines: %q", buf.String())
	}
}

func TestTyping(t *testing.T) {
	term, buf, reg := newTerminal()
	ch, _ := reg.OpenChat("macbeth@shakespeare.lit")
	reg.FocusConversation(ch)
	term.Windows(reg.All(), reg.Current())
	buf.Reset()
	term.Typing(ch, chatstate.Composing)
	term.Windows(reg.All(), reg.Current())
	if !strings.Contains(buf.String(), "macbeth@shakespeare.lit is typing...") {
		t.Errorf("typing notification not shown: %q", buf.String())
	}
}

func TestNotify(t *testing.T) {
	term, buf, reg := newTerminal(termui.Width(30))
	ch, _ := reg.OpenChat("macbeth@shakespeare.lit")
	buf.Reset()
	term.Notify(ch, "Macbeth", "Stay, you imperfect speakers, tell me more")
	out := strings.TrimSuffix(buf.String(), "\n")
	if !strings.HasPrefix(out, "<< Macbeth (2): ") {
		t.Errorf("wrong notification: %q", out)
	}
	if len([]rune(out)) > 30 {
		t.Errorf("notification not truncated to the width: %q", out)
	}
}

func TestStyling(t *testing.T) {
	term, buf, reg := newTerminal(termui.Color(true))
	buf.Reset()
	term.Print(reg.Console(), client.Line{Kind: client.LineIncoming, Stamp: now, From: "Macbeth", Text: "*Hail*"})
	if !strings.Contains(buf.String(), "\x1b[1m*Hail*\x1b[22m") {
		t.Errorf("strong span not rendered: %q", buf.String())
	}
}

func TestLines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lines := termui.Lines(ctx, strings.NewReader("/connect\nhello\n"))
	var got []string
	for l := range lines {
		got = append(got, l)
	}
	if len(got) != 2 || got[0] != "/connect" || got[1] != "hello" {
		t.Errorf("wrong lines: %q", got)
	}
}
