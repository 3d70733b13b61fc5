// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client_test

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"mellium.im/xmpp/muc"

	"mellium.im/communique/internal/chatstate"
	"mellium.im/communique/internal/client"
	"mellium.im/communique/internal/encryption"
	"mellium.im/communique/internal/network"
	"mellium.im/communique/internal/roster"
	"mellium.im/communique/internal/session"
)

var portTestCases = [...]struct {
	line    string
	connect bool
	port    int
	err     string
}{
	0: {line: "/connect " + testAccount + " port 0", err: "Value 0 out of range. Must be in 1..65535."},
	1: {line: "/connect " + testAccount + " port 65536", err: "Value 65536 out of range. Must be in 1..65535."},
	2: {line: "/connect " + testAccount + " port x", err: "Could not convert \"x\" to a number."},
	3: {line: "/connect " + testAccount + " port 5222", connect: true, port: 5222},
	4: {line: "/connect " + testAccount + " server xmpp.shakespeare.lit port 1", connect: true, port: 1},
}

func TestConnectPort(t *testing.T) {
	for i, tc := range portTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			f := newFixture(t)
			f.input(tc.line)
			if tc.err != "" && !f.ui.printed(f.console(), tc.err) {
				t.Errorf("expected error %q, got %v", tc.err, f.ui.text(f.console()))
			}
			if n := f.net.count("connect"); tc.connect != (n == 1) {
				t.Fatalf("wrong number of connection attempts: %d", n)
			}
			if !tc.connect {
				return
			}
			if p := f.net.logins[0].Port; p != tc.port {
				t.Errorf("wrong port: want=%d, got=%d", tc.port, p)
			}
			if pw := f.net.logins[0].Password; pw != "hurlyburly" {
				t.Errorf("wrong password: %q", pw)
			}
		})
	}
}

func TestConnectTwice(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.input("/connect")
	if !f.ui.printed(f.console(), "You are either connected already, or a login is in process.") {
		t.Errorf("second connect was not refused: %v", f.ui.text(f.console()))
	}
	if n := f.net.count("connect"); n != 1 {
		t.Errorf("wrong number of connection attempts: %d", n)
	}
}

func TestAccountPort(t *testing.T) {
	f := newFixture(t)
	f.input("/account set " + testAccount + " port 70000")
	if !f.ui.printed(f.console(), "Value 70000 out of range. Must be in 1..65535.") {
		t.Errorf("out of range port was accepted: %v", f.ui.text(f.console()))
	}
	acct, _ := f.cfg.Account(testAccount)
	if acct.Port != 0 {
		t.Errorf("port should not have changed, got %d", acct.Port)
	}

	f.input("/account set " + testAccount + " port 5223")
	if acct.Port != 5223 {
		t.Errorf("port was not updated, got %d", acct.Port)
	}
	if !f.ui.printed(f.console(), "Updated port for account "+testAccount+": 5223") {
		t.Errorf("update not reported: %v", f.ui.text(f.console()))
	}
}

var priorityTestCases = [...]struct {
	arg string
	ok  bool
}{
	0: {arg: "128"},
	1: {arg: "-129"},
	2: {arg: "127", ok: true},
	3: {arg: "-128", ok: true},
	4: {arg: "0", ok: true},
}

func TestPriority(t *testing.T) {
	for i, tc := range priorityTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			f := newFixture(t)
			f.input("/priority " + tc.arg)
			if !tc.ok {
				want := "Value " + tc.arg + " out of range. Must be in -128..127."
				if !f.ui.printed(f.console(), want) {
					t.Errorf("expected %q, got %v", want, f.ui.text(f.console()))
				}
				return
			}
			if !f.ui.printed(f.console(), "Priority set to "+tc.arg+".") {
				t.Errorf("priority not set: %v", f.ui.text(f.console()))
			}
			acct, _ := f.cfg.Account(testAccount)
			want, _ := strconv.Atoi(tc.arg)
			if got := acct.PriorityFor(roster.Online); got != want {
				t.Errorf("wrong saved priority: want=%d, got=%d", want, got)
			}
		})
	}
}

func TestNotConnected(t *testing.T) {
	f := newFixture(t)
	f.input("/roster")
	if !f.ui.printed(f.console(), "You are not currently connected.") {
		t.Errorf("expected not connected error, got %v", f.ui.text(f.console()))
	}
}

func TestResource(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.addContact("cauldron")

	f.input("/resource set cauldron")
	if !f.ui.printed(f.console(), "Resource can only be changed in chat windows.") {
		t.Errorf("resource changed outside of a chat: %v", f.ui.text(f.console()))
	}

	f.input("/msg " + testContact)
	ch, ok := f.c.Registry().Chat(testContact)
	if !ok {
		t.Fatalf("chat was not opened")
	}
	if f.current() != session.Conversation(ch) {
		t.Fatalf("chat was not focused")
	}

	f.input("/resource set nothere")
	if !f.ui.printed(ch, "No such resource nothere") {
		t.Errorf("unknown resource accepted: %v", f.ui.text(ch))
	}

	f.input("/resource set cauldron")
	if ch.Resource != "cauldron" {
		t.Errorf("resource was not set, got %q", ch.Resource)
	}
	if to := ch.To(); to != testContact+"/cauldron" {
		t.Errorf("messages would be sent to %q", to)
	}

	ch.SetMode(encryption.OTR)
	f.input("/resource off")
	if !f.ui.printed(ch, "You are in an OTR session, cannot change the resource.") {
		t.Errorf("resource changed during OTR: %v", f.ui.text(ch))
	}
	if ch.Resource != "cauldron" {
		t.Errorf("resource should not have changed during OTR, got %q", ch.Resource)
	}

	ch.SetMode(encryption.None)
	f.input("/resource off")
	if ch.Resource != "" {
		t.Errorf("resource was not cleared, got %q", ch.Resource)
	}
	if st := ch.State.State(); st != chatstate.Gone {
		t.Errorf("chat state should be reset, got %v", st)
	}
}

func TestMsgReusesWindow(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	f.input("/msg " + testContact + " Thane of Cawdor")
	first := f.current().Num()
	f.input("/win 1")
	f.input("/msg " + testContact)
	if n := f.current().Num(); n != first {
		t.Errorf("second /msg opened a new window: want=%d, got=%d", first, n)
	}
	if n := f.net.count("chat " + testContact); n != 1 {
		t.Errorf("wrong number of messages sent: %d", n)
	}
}

func TestPGPDowngrade(t *testing.T) {
	f := newFixture(t, client.WithPGP(fakeKeyring{}))
	acct, _ := f.cfg.Account(testAccount)
	acct.PGPKeyID = "OWNKEY"
	if err := f.db.Account(testAccount).SetContactKey(testContact, "MACBETHKEY"); err != nil {
		t.Fatalf("error setting contact key: %v", err)
	}
	f.connect(t)
	f.addContact("cauldron")

	f.input("/msg " + testContact)
	ch, _ := f.c.Registry().Chat(testContact)
	f.input("/pgp start")
	if m := ch.Mode(); m != encryption.PGP {
		t.Fatalf("PGP was not started: %v, %v", m, f.ui.text(ch))
	}
	if !f.ui.printed(ch, "PGP encryption enabled.") {
		t.Errorf("start not reported: %v", f.ui.text(ch))
	}

	f.input("Fair is foul")
	if n := f.net.count("pgp " + testContact); n != 1 {
		t.Errorf("message was not encrypted: %v", f.net.calls)
	}

	f.handle(network.Message{ID: "1", From: testContact + "/cauldron", Body: "and foul is fair"})
	if m := ch.Mode(); m != encryption.None {
		t.Errorf("plain message did not end PGP, mode %v", m)
	}
	if !f.ui.printed(ch, encryption.NoticePGPDisabled) {
		t.Errorf("downgrade not reported: %v", f.ui.text(ch))
	}
	if !f.ui.printed(ch, "and foul is fair") {
		t.Errorf("message not shown: %v", f.ui.text(ch))
	}
}

func TestPGPNoKey(t *testing.T) {
	f := newFixture(t, client.WithPGP(fakeKeyring{}))
	f.connect(t)
	f.input("/msg " + testContact)
	ch, _ := f.c.Registry().Chat(testContact)
	f.input("/pgp start")
	if ch.Mode() != encryption.None {
		t.Errorf("PGP started without a key")
	}
	if !f.ui.printed(ch, "You must specify a PGP key ID for this account in order to start PGP encryption.") {
		t.Errorf("missing key not reported: %v", f.ui.text(ch))
	}
}

var pgpReceiveTestCases = [...]struct {
	body     string
	envelope string
	mode     encryption.Mode
	shown    string
	logged   string
}{
	0: {body: "[This message is encrypted]", envelope: "not armored", mode: encryption.None, shown: "[This message is encrypted]", logged: "[This message is encrypted]"},
	1: {envelope: "not armored", mode: encryption.None, shown: "not armored", logged: "not armored"},
	2: {body: "[This message is encrypted]", envelope: "OWNKEY:Double, double", mode: encryption.PGP, shown: "Double, double", logged: encryption.Redacted},
}

func TestPGPReceive(t *testing.T) {
	for i, tc := range pgpReceiveTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			f := newFixture(t, client.WithPGP(fakeKeyring{}))
			acct, _ := f.cfg.Account(testAccount)
			acct.PGPKeyID = "OWNKEY"
			if err := f.db.Account(testAccount).SetContactKey(testContact, "MACBETHKEY"); err != nil {
				t.Fatalf("error setting contact key: %v", err)
			}
			f.connect(t)
			f.addContact("cauldron")
			f.input("/msg " + testContact)
			ch, _ := f.c.Registry().Chat(testContact)
			f.input("/pgp start")
			if ch.Mode() != encryption.PGP {
				t.Fatalf("PGP was not started: %v", f.ui.text(ch))
			}

			f.handle(network.Message{
				ID:       "1",
				From:     testContact + "/cauldron",
				Body:     tc.body,
				Envelope: tc.envelope,
			})
			if m := ch.Mode(); m != tc.mode {
				t.Errorf("wrong mode after receive: want=%v, got=%v", tc.mode, m)
			}
			if !f.ui.printed(ch, tc.shown) {
				t.Errorf("message not shown as %q: %v", tc.shown, f.ui.text(ch))
			}
			history, err := f.db.Account(testAccount).ChatHistory(testContact, 1)
			if err != nil {
				t.Fatalf("error reading history: %v", err)
			}
			if len(history) != 1 || history[0].Body != tc.logged || history[0].Outgoing {
				t.Errorf("wrong log entry: want body %q, got %+v", tc.logged, history)
			}
		})
	}
}

func subject(s string) *string { return &s }

var joinFlushTestCases = [...]struct {
	queued []network.RoomMessage
	want   []string
}{
	0: {
		queued: []network.RoomMessage{
			{Room: testRoom, Nick: "firstwitch", Body: "When shall we three meet again", History: true},
			{Room: testRoom, Subject: subject("Fire burn")},
			{Room: testRoom, Body: "This room is not anonymous"},
		},
		want: []string{"When shall we three meet again", "Room subject: Fire burn", "This room is not anonymous"},
	},
	1: {
		queued: []network.RoomMessage{
			{Room: testRoom, Subject: subject("")},
			{Room: testRoom, Nick: "firstwitch", Body: "In thunder, lightning, or in rain?"},
		},
		want: []string{"In thunder, lightning, or in rain?"},
	},
	2: {
		queued: []network.RoomMessage{
			{Room: testRoom, Nick: "secondwitch", Subject: subject("Cauldron bubble")},
			{Room: testRoom, Nick: "secondwitch", Body: "When the hurlyburly's done"},
		},
		want: []string{"*secondwitch has set the room subject: Cauldron bubble", "When the hurlyburly's done"},
	},
}

func TestJoinFlush(t *testing.T) {
	for i, tc := range joinFlushTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			f := newFixture(t)
			f.connect(t)
			f.input("/join " + testRoom)
			f.handle(network.RoomPresence{
				Room:        testRoom,
				Nick:        "thirdwitch",
				Presence:    roster.Online,
				Role:        muc.RoleParticipant,
				Affiliation: muc.AffiliationMember,
				Self:        true,
			})
			win, ok := f.c.Registry().Room(testRoom)
			if !ok {
				t.Fatalf("room window was not opened")
			}
			for _, m := range tc.queued {
				f.handle(m)
			}
			if lines := f.ui.text(win); len(lines) != 0 {
				t.Fatalf("lines shown before the room was loaded: %q", lines)
			}

			f.handle(network.RoomInfo{Room: testRoom, Name: "Coven"})
			lines := f.ui.text(win)
			if len(lines) < 2 || !strings.HasPrefix(lines[0], "-> You have joined the room as thirdwitch") {
				t.Fatalf("join not reported first: %q", lines)
			}
			if got, want := strings.Join(lines[2:], "\n"), strings.Join(tc.want, "\n"); got != want {
				t.Errorf("queued lines out of order:\nwant=%q\n got=%q", want, got)
			}
			if n := f.ui.count(win, "subject"); n > 1 {
				t.Errorf("subject shown %d times: %q", n, lines)
			}
		})
	}
}

func TestPrivileges(t *testing.T) {
	for i, on := range []bool{true, false} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			f := newFixture(t)
			f.cfg.Prefs.Privileges = on
			f.connect(t)
			win := f.joinRoom(t, "")

			hecate := network.RoomPresence{
				Room:        testRoom,
				Nick:        "hecate",
				Presence:    roster.Online,
				Role:        muc.RoleParticipant,
				Affiliation: muc.AffiliationMember,
			}
			f.handle(hecate)
			hecate.Role = muc.RoleModerator
			f.handle(hecate)

			want := 0
			if on {
				want = 1
			}
			if n := f.ui.count(win, "hecate's role has been changed"); n != want {
				t.Errorf("wrong number of privilege lines: want=%d, got=%d", want, n)
			}
			if o, _ := win.MUC.Occupant("hecate"); o.Role != muc.RoleModerator {
				t.Errorf("role was not updated: %v", o.Role)
			}
		})
	}
}

func TestRejoin(t *testing.T) {
	for i, pass := range []string{"", "toil"} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			f := newFixture(t)
			f.connect(t)
			args := ""
			if pass != "" {
				args = " password " + pass
			}
			f.joinRoom(t, args)

			f.net.status = network.Disconnected
			f.handle(network.Lost{})
			f.net.status = network.Connected
			f.handle(network.LoggedIn{JID: testSelf})

			want := 1
			if pass != "" {
				want = 2
			}
			if n := f.net.count("join " + testRoom); n != want {
				t.Errorf("wrong number of joins: want=%d, got=%d (%v)", want, n, f.net.calls)
			}
		})
	}
}

func TestDisconnectForgetsRooms(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.joinRoom(t, " password toil")
	f.input("/disconnect")
	if _, ok := f.c.Rooms().Get(testRoom); ok {
		t.Errorf("room should be forgotten after disconnect")
	}
	if _, ok := f.c.Registry().Room(testRoom); ok {
		t.Errorf("room window should be closed after disconnect")
	}
	if !f.ui.printed(f.console(), testSelf+" logged out successfully.") {
		t.Errorf("logout not reported: %v", f.ui.text(f.console()))
	}
}

func TestReconnect(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.net.status = network.Disconnected
	f.handle(network.Lost{})

	f.c.Tick(f.ctx, epoch.Add(10*time.Second))
	if n := f.net.count("connect"); n != 1 {
		t.Fatalf("reconnected too early: %d attempts", n)
	}
	f.c.Tick(f.ctx, epoch.Add(31*time.Second))
	if n := f.net.count("connect"); n != 2 {
		t.Fatalf("did not reconnect: %d attempts", n)
	}
	if l := f.net.logins[1]; l.JID != testAccount || l.Password != "hurlyburly" {
		t.Errorf("wrong login on reconnect: %+v", l)
	}
}

func TestReconnectOff(t *testing.T) {
	f := newFixture(t)
	f.cfg.Prefs.Reconnect = 0
	f.connect(t)
	f.net.status = network.Disconnected
	f.handle(network.Lost{})
	f.c.Tick(f.ctx, epoch.Add(time.Hour))
	if n := f.net.count("connect"); n != 1 {
		t.Errorf("reconnected with reconnect disabled: %d attempts", n)
	}
}

func TestAutoAway(t *testing.T) {
	f := newFixture(t)
	f.cfg.Prefs.AutoAway.Mode = "away"
	f.cfg.Prefs.AutoAway.Time = 15
	f.connect(t)

	f.now = epoch.Add(14 * time.Minute)
	f.c.Tick(f.ctx, f.now)
	if f.ui.printed(f.console(), "status set to away") {
		t.Fatalf("went away too early")
	}

	f.now = epoch.Add(16 * time.Minute)
	f.c.Tick(f.ctx, f.now)
	if !f.ui.printed(f.console(), "Idle for 16 minutes, status set to away") {
		t.Fatalf("did not go away: %v", f.ui.text(f.console()))
	}
	f.c.Tick(f.ctx, f.now.Add(time.Minute))
	if n := f.ui.count(f.console(), "status set to away"); n != 1 {
		t.Errorf("away was set more than once: %d", n)
	}

	f.input("/wins")
	if !f.ui.printed(f.console(), "No longer idle, status set to online") {
		t.Errorf("did not come back: %v", f.ui.text(f.console()))
	}
}

func TestAlias(t *testing.T) {
	f := newFixture(t)
	f.input("/alias add w wins")
	if got := f.cfg.Prefs.Aliases["w"]; got != "/wins" {
		t.Errorf("alias not saved: %q", got)
	}
	f.input("/w")
	if !f.ui.printed(f.console(), "Active windows:") {
		t.Errorf("alias did not run: %v", f.ui.text(f.console()))
	}
	f.input("/alias add wins close")
	if !f.ui.printed(f.console(), "Command or alias '/wins' already exists.") {
		t.Errorf("alias shadowed a command: %v", f.ui.text(f.console()))
	}
}

func TestCloseConsole(t *testing.T) {
	f := newFixture(t)
	f.input("/close 1")
	if !f.ui.printed(f.console(), "Cannot close console window.") {
		t.Errorf("console close not refused: %v", f.ui.text(f.console()))
	}
	f.input("/wins swap 1 2")
	if !f.ui.printed(f.console(), "Cannot move console window.") {
		t.Errorf("console swap not refused: %v", f.ui.text(f.console()))
	}
}
