// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package termui is a line based terminal front end for the client.
//
// Only the focused window is written to the terminal.
// Lines printed to other windows are kept in a bounded scrollback and shown
// when the window is focused.
package termui // import "mellium.im/communique/internal/termui"

import (
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"mellium.im/xmpp/muc"

	"mellium.im/communique/internal/chatstate"
	"mellium.im/communique/internal/client"
	"mellium.im/communique/internal/roster"
	"mellium.im/communique/internal/session"
)

const (
	defaultWidth      = 80
	defaultScrollback = 500
)

const (
	clearScreen = "\x1b[H\x1b[2J"
	bell        = "\a"
)

// Option configures a Terminal.
type Option func(*Terminal)

// Color forces colored output on or off.
// By default colors are used when the output is a terminal.
func Color(on bool) Option {
	return func(t *Terminal) {
		t.color = on
	}
}

// Width sets the number of columns used for status lines.
func Width(n int) Option {
	return func(t *Terminal) {
		if n > 0 {
			t.width = n
		}
	}
}

// Scrollback sets the number of lines kept for each window.
func Scrollback(n int) Option {
	return func(t *Terminal) {
		if n > 0 {
			t.scrollback = n
		}
	}
}

// Clock sets the function used to read the current time.
func Clock(now func() time.Time) Option {
	return func(t *Terminal) {
		t.now = now
	}
}

type entry struct {
	line      client.Line
	delivered bool
}

// Terminal writes the client's windows to a terminal.
// Its methods are called from the client's event loop.
type Terminal struct {
	w          io.Writer
	color      bool
	width      int
	scrollback int
	now        func() time.Time

	lines   map[string][]entry
	current string
	status  string
	online  int
	total   int
	typing  string
}

// New returns a Terminal writing to w.
func New(w io.Writer, opts ...Option) *Terminal {
	t := &Terminal{
		w:          w,
		width:      defaultWidth,
		scrollback: defaultScrollback,
		now:        time.Now,
		lines:      make(map[string][]entry),
	}
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		t.color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func key(c session.Conversation) string {
	return c.Kind().String() + ":" + c.Key()
}

func (t *Terminal) write(s string) {
	/* #nosec */
	io.WriteString(t.w, s)
}

func (t *Terminal) writeLine(s string) {
	t.write(s + "\n")
}

// Print implements client.UI.
func (t *Terminal) Print(c session.Conversation, l client.Line) {
	k := key(c)
	buf := append(t.lines[k], entry{line: l})
	if len(buf) > t.scrollback {
		buf = buf[len(buf)-t.scrollback:]
	}
	t.lines[k] = buf
	if k == t.current {
		t.writeLine(t.format(entry{line: l}))
	}
}

// Windows implements client.UI.
// Focusing another window redraws the terminal with its scrollback.
func (t *Terminal) Windows(all []session.Conversation, current session.Conversation) {
	if current != nil {
		if k := key(current); k != t.current {
			t.current = k
			t.typing = ""
			t.redraw(current)
		}
	}
	status := t.statusLine(all, current)
	if status == t.status {
		return
	}
	t.status = status
	t.writeLine(t.dim(status))
}

func (t *Terminal) redraw(c session.Conversation) {
	if t.color {
		t.write(clearScreen)
	}
	t.writeLine(t.bold(t.rule(session.DisplayNum(c.Num()) + ": " + title(c))))
	for _, e := range t.lines[key(c)] {
		t.writeLine(t.format(e))
	}
}

// rule pads a title with a horizontal line to the width of the terminal.
func (t *Terminal) rule(s string) string {
	s = "── " + s + " "
	if w := runewidth.StringWidth(s); w < t.width {
		s += strings.Repeat("─", t.width-w)
	}
	return runewidth.Truncate(s, t.width, "")
}

func title(c session.Conversation) string {
	switch w := c.(type) {
	case *session.Console:
		return "Console"
	case *session.Chat:
		if w.Resource != "" {
			return w.To()
		}
		return w.Addr()
	case *session.Room:
		if w.MUC != nil && w.MUC.Subject != "" {
			return w.Key() + " - " + w.MUC.Subject
		}
		return w.Key()
	case *session.Config:
		return "Configuration of " + w.Room()
	case *session.XMLConsole:
		return "XML Console"
	}
	return c.Key()
}

func (t *Terminal) statusLine(all []session.Conversation, current session.Conversation) string {
	var b strings.Builder
	for _, c := range all {
		num := session.DisplayNum(c.Num())
		switch {
		case current != nil && c.Num() == current.Num():
			b.WriteString("[" + num + "]")
		case c.Unread() > 0:
			b.WriteString(" " + num + ":" + strconv.Itoa(c.Unread()) + " ")
		default:
			b.WriteString(" " + num + " ")
		}
	}
	if t.total > 0 {
		b.WriteString("  " + strconv.Itoa(t.online) + "/" + strconv.Itoa(t.total) + " online")
	}
	if t.typing != "" {
		b.WriteString("  " + t.typing)
	}
	return runewidth.Truncate(b.String(), t.width, "…")
}

// Occupants implements client.UI.
func (t *Terminal) Occupants(r *session.Room) {
	if !r.ShowOccupants || key(r) != t.current || r.MUC == nil {
		return
	}
	var parts []string
	for _, role := range []muc.Role{muc.RoleModerator, muc.RoleParticipant, muc.RoleVisitor} {
		nicks := r.MUC.ByRole(role)
		if len(nicks) == 0 {
			continue
		}
		sort.Strings(nicks)
		parts = append(parts, role.String()+": "+strings.Join(nicks, ", "))
	}
	if len(parts) == 0 {
		return
	}
	t.writeLine(t.dim(runewidth.Truncate("Occupants "+strings.Join(parts, "; "), t.width, "…")))
}

// Roster implements client.UI.
func (t *Terminal) Roster(contacts []*roster.Contact) {
	t.total = len(contacts)
	t.online = 0
	for _, c := range contacts {
		if c.Available() {
			t.online++
		}
	}
}

// Typing implements client.UI.
func (t *Terminal) Typing(c *session.Chat, st chatstate.State) {
	if key(c) != t.current {
		return
	}
	switch st {
	case chatstate.Composing:
		t.typing = c.Addr() + " is typing..."
	case chatstate.Paused:
		t.typing = c.Addr() + " has stopped typing"
	default:
		t.typing = ""
	}
}

// Receipt implements client.UI.
func (t *Terminal) Receipt(c session.Conversation, id string) {
	if id == "" {
		return
	}
	buf := t.lines[key(c)]
	for i := len(buf) - 1; i >= 0; i-- {
		if buf[i].line.ID == id {
			buf[i].delivered = true
			if key(c) == t.current {
				t.writeLine(t.dim("✓ delivered: " + truncate(buf[i].line.Text, 40)))
			}
			return
		}
	}
}

// Clear implements client.UI.
func (t *Terminal) Clear(c session.Conversation) {
	delete(t.lines, key(c))
	if key(c) == t.current && t.color {
		t.write(clearScreen)
	}
}

// Notify implements client.UI.
func (t *Terminal) Notify(c session.Conversation, from, text string) {
	msg := "<< " + from + " (" + session.DisplayNum(c.Num()) + "): " + text
	t.writeLine(t.highlight(runewidth.Truncate(msg, t.width, "…")))
}

// Beep implements client.UI.
func (t *Terminal) Beep() {
	t.write(bell)
}

func truncate(s string, n int) string {
	return runewidth.Truncate(s, n, "…")
}
