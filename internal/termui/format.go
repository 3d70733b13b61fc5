// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package termui

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"mellium.im/xmpp/color"
	"mellium.im/xmpp/styling"

	"mellium.im/communique/internal/client"
	"mellium.im/communique/internal/encryption"
)

// SGR escape sequences.
const (
	sgrReset     = "\x1b[0m"
	sgrBold      = "\x1b[1m"
	sgrDim       = "\x1b[2m"
	sgrItalic    = "\x1b[3m"
	sgrStrike    = "\x1b[9m"
	sgrNoBold    = "\x1b[22m"
	sgrNoItalic  = "\x1b[23m"
	sgrNoStrike  = "\x1b[29m"
	sgrRed       = "\x1b[31m"
	sgrYellow    = "\x1b[33m"
	sgrCyan      = "\x1b[36m"
	sgrDefaultFG = "\x1b[39m"
)

// nickLuma is the luma used for nickname colors on dark and light
// backgrounds.
const nickLuma = 128

const timeFormat = "15:04:05"

func (t *Terminal) sgr(code, s string) string {
	if !t.color {
		return s
	}
	return code + s + sgrReset
}

func (t *Terminal) bold(s string) string      { return t.sgr(sgrBold, s) }
func (t *Terminal) dim(s string) string       { return t.sgr(sgrDim, s) }
func (t *Terminal) highlight(s string) string { return t.sgr(sgrYellow, s) }

// nick colors a nickname with its XEP-0392 consistent color.
func (t *Terminal) nick(s string) string {
	if !t.color || s == "" {
		return s
	}
	r, g, b, _ := color.String(s, nickLuma, color.None).RGBA()
	return "\x1b[38;2;" + strconv.Itoa(int(r>>8)) + ";" + strconv.Itoa(int(g>>8)) + ";" +
		strconv.Itoa(int(b>>8)) + "m" + s + sgrDefaultFG
}

// stamp formats the time of a line.
// Lines from earlier days are shown relative to now.
func (t *Terminal) stamp(ts time.Time) string {
	if ts.IsZero() {
		ts = t.now()
	}
	now := t.now()
	y1, m1, d1 := ts.Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return ts.Format(timeFormat)
	}
	return humanize.RelTime(ts, now, "ago", "from now")
}

func (t *Terminal) format(e entry) string {
	l := e.line
	stamp := t.dim(t.stamp(l.Stamp))
	switch l.Kind {
	case client.LineXML:
		return l.Text
	case client.LineError:
		return stamp + " ! " + t.sgr(sgrRed, l.Text)
	case client.LineRoom:
		return stamp + " " + t.sgr(sgrCyan, l.Text)
	case client.LineInfo:
		return stamp + " - " + l.Text
	}

	var b strings.Builder
	b.WriteString(stamp)
	if l.Mode != encryption.None {
		b.WriteString(" [" + l.Mode.String() + "]")
	}
	b.WriteString(" ")
	if l.Kind == client.LineHistory {
		b.WriteString(t.dim(l.From + ": " + l.Text))
		return b.String()
	}
	if l.Kind == client.LineOutgoing && !t.color {
		b.WriteString(l.From)
	} else {
		b.WriteString(t.nick(l.From))
	}
	b.WriteString(": ")
	b.WriteString(t.styled(l.Text))
	if e.delivered {
		b.WriteString(" ✓")
	}
	return b.String()
}

// styled renders XEP-0393 message styling with terminal attributes.
// The styling directives themselves are kept.
func (t *Terminal) styled(text string) string {
	if !t.color {
		return text
	}
	var b strings.Builder
	d := styling.NewDecoder(strings.NewReader(text))
	for d.Next() {
		tok := d.Token()
		switch {
		case tok.Mask&styling.SpanStrongStart == styling.SpanStrongStart:
			b.WriteString(sgrBold)
		case tok.Mask&styling.SpanEmphStart == styling.SpanEmphStart:
			b.WriteString(sgrItalic)
		case tok.Mask&styling.SpanStrikeStart == styling.SpanStrikeStart:
			b.WriteString(sgrStrike)
		}
		b.Write(tok.Data)
		switch {
		case tok.Mask&styling.SpanStrongEnd == styling.SpanStrongEnd:
			b.WriteString(sgrNoBold)
		case tok.Mask&styling.SpanEmphEnd == styling.SpanEmphEnd:
			b.WriteString(sgrNoItalic)
		case tok.Mask&styling.SpanStrikeEnd == styling.SpanStrikeEnd:
			b.WriteString(sgrNoStrike)
		}
	}
	if d.Err() != nil {
		return text
	}
	return b.String()
}
