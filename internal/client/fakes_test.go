// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"mellium.im/xmpp/muc"

	"mellium.im/communique/internal/chatstate"
	"mellium.im/communique/internal/client"
	"mellium.im/communique/internal/config"
	"mellium.im/communique/internal/dataform"
	"mellium.im/communique/internal/encryption/pgp"
	"mellium.im/communique/internal/network"
	"mellium.im/communique/internal/roster"
	"mellium.im/communique/internal/session"
	"mellium.im/communique/internal/store"
)

const (
	testAccount = "thirdwitch@shakespeare.lit"
	testSelf    = testAccount + "/heath"
	testContact = "macbeth@shakespeare.lit"
	testRoom    = "coven@chat.shakespeare.lit"
	testMUC     = "chat.shakespeare.lit"
)

var epoch = time.Date(2021, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeNetwork records the requests made by the client.
type fakeNetwork struct {
	events chan network.Event
	status network.Status
	calls  []string
	logins []network.Login
	trace  bool
	nextID int
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{events: make(chan network.Event)}
}

func (f *fakeNetwork) record(op string, args ...interface{}) {
	parts := []string{op}
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	f.calls = append(f.calls, strings.Join(parts, " "))
}

func (f *fakeNetwork) id() string {
	f.nextID++
	return "id" + strconv.Itoa(f.nextID)
}

// count returns the number of recorded calls that start with prefix.
func (f *fakeNetwork) count(prefix string) int {
	var n int
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeNetwork) Events() <-chan network.Event { return f.events }
func (f *fakeNetwork) Status() network.Status       { return f.status }
func (f *fakeNetwork) Trace(on bool)                { f.trace = on }

func (f *fakeNetwork) Connect(_ context.Context, l network.Login) error {
	f.status = network.Started
	f.logins = append(f.logins, l)
	f.record("connect", l.JID)
	return nil
}

func (f *fakeNetwork) Disconnect() error {
	f.status = network.Disconnected
	f.record("disconnect")
	return nil
}

func (f *fakeNetwork) SendChat(_ context.Context, to, body string, o network.Outgoing) (string, error) {
	f.record("chat", to, body)
	return f.id(), nil
}

func (f *fakeNetwork) SendPGP(_ context.Context, to, envelope string, o network.Outgoing) (string, error) {
	f.record("pgp", to, envelope)
	return f.id(), nil
}

func (f *fakeNetwork) SendGroupChat(_ context.Context, room, body string) (string, error) {
	f.record("groupchat", room, body)
	return f.id(), nil
}

func (f *fakeNetwork) SendPrivate(_ context.Context, to, body string) (string, error) {
	f.record("private", to, body)
	return f.id(), nil
}

func (f *fakeNetwork) SendChatState(_ context.Context, to string, st chatstate.State) error {
	f.record("state", to, st)
	return nil
}

func (f *fakeNetwork) SendReceipt(_ context.Context, to, id string) error {
	f.record("receipt", to, id)
	return nil
}

func (f *fakeNetwork) SendPresence(_ context.Context, to string, p roster.Presence, status string, priority int) error {
	f.record("presence", to, p, status, priority)
	return nil
}

func (f *fakeNetwork) Subscription(_ context.Context, to, typ string) error {
	f.record("subscription", to, typ)
	return nil
}

func (f *fakeNetwork) AddContact(_ context.Context, addr, name string) error {
	f.record("addcontact", addr, name)
	return nil
}

func (f *fakeNetwork) UpdateContact(_ context.Context, addr, name string, groups []string) error {
	f.record("updatecontact", addr, name, strings.Join(groups, ","))
	return nil
}

func (f *fakeNetwork) RemoveContact(_ context.Context, addr string) error {
	f.record("removecontact", addr)
	return nil
}

func (f *fakeNetwork) Ping(_ context.Context, to string) error {
	f.record("ping", to)
	return nil
}

func (f *fakeNetwork) SoftwareVersion(_ context.Context, to string) error {
	f.record("version", to)
	return nil
}

func (f *fakeNetwork) Carbons(_ context.Context, enable bool) error {
	f.record("carbons", enable)
	return nil
}

func (f *fakeNetwork) JoinRoom(_ context.Context, room, nick, password string, p roster.Presence, status string) error {
	f.record("join", room, nick, password)
	return nil
}

func (f *fakeNetwork) ChangeNick(_ context.Context, room, nick string, p roster.Presence, status string) error {
	f.record("nick", room, nick)
	return nil
}

func (f *fakeNetwork) LeaveRoom(_ context.Context, room, nick, status string) error {
	f.record("leave", room, nick)
	return nil
}

func (f *fakeNetwork) SetSubject(_ context.Context, room, subject string) error {
	f.record("subject", room, subject)
	return nil
}

func (f *fakeNetwork) Invite(_ context.Context, room, to, reason string) error {
	f.record("invite", room, to, reason)
	return nil
}

func (f *fakeNetwork) DeclineInvite(_ context.Context, room, to, reason string) error {
	f.record("decline", room, to)
	return nil
}

func (f *fakeNetwork) RequestRoomInfo(_ context.Context, room string) error {
	f.record("roominfo", room)
	return nil
}

func (f *fakeNetwork) RequestRoomConfig(_ context.Context, room string) error {
	f.record("roomconfig", room)
	return nil
}

func (f *fakeNetwork) SubmitRoomConfig(_ context.Context, room string, form *dataform.Form) error {
	f.record("submitconfig", room, form != nil)
	return nil
}

func (f *fakeNetwork) CancelRoomConfig(_ context.Context, room string) error {
	f.record("cancelconfig", room)
	return nil
}

func (f *fakeNetwork) DestroyRoom(_ context.Context, room, reason string) error {
	f.record("destroy", room)
	return nil
}

func (f *fakeNetwork) Kick(_ context.Context, room, nick, reason string) error {
	f.record("kick", room, nick, reason)
	return nil
}

func (f *fakeNetwork) SetRole(_ context.Context, room, nick string, role muc.Role, reason string) error {
	f.record("role", room, nick, role)
	return nil
}

func (f *fakeNetwork) Ban(_ context.Context, room, addr, reason string) error {
	f.record("ban", room, addr)
	return nil
}

func (f *fakeNetwork) SetAffiliation(_ context.Context, room, addr string, aff muc.Affiliation, reason string) error {
	f.record("affiliation", room, addr, aff)
	return nil
}

func (f *fakeNetwork) ListAffiliation(_ context.Context, room string, aff muc.Affiliation) error {
	f.record("listaffiliation", room, aff)
	return nil
}

func (f *fakeNetwork) ListRole(_ context.Context, room string, role muc.Role) error {
	f.record("listrole", room, role)
	return nil
}

// fakeUI records the lines printed to each window.
type fakeUI struct {
	lines    map[string][]client.Line
	occupied int
	receipts []string
	notified int
}

func newFakeUI() *fakeUI {
	return &fakeUI{lines: make(map[string][]client.Line)}
}

func windowKey(c session.Conversation) string {
	return c.Kind().String() + ":" + c.Key()
}

func (u *fakeUI) Print(c session.Conversation, l client.Line) {
	k := windowKey(c)
	u.lines[k] = append(u.lines[k], l)
}

func (u *fakeUI) Windows([]session.Conversation, session.Conversation) {}
func (u *fakeUI) Occupants(*session.Room)                              { u.occupied++ }
func (u *fakeUI) Roster([]*roster.Contact)                             {}
func (u *fakeUI) Typing(*session.Chat, chatstate.State)                {}
func (u *fakeUI) Receipt(_ session.Conversation, id string)            { u.receipts = append(u.receipts, id) }
func (u *fakeUI) Clear(c session.Conversation)                         { delete(u.lines, windowKey(c)) }
func (u *fakeUI) Notify(session.Conversation, string, string)          { u.notified++ }
func (u *fakeUI) Beep()                                                {}

// text returns the text of every line printed to c.
func (u *fakeUI) text(c session.Conversation) []string {
	var out []string
	for _, l := range u.lines[windowKey(c)] {
		out = append(out, l.Text)
	}
	return out
}

// printed reports whether a line in c contains s.
func (u *fakeUI) printed(c session.Conversation, s string) bool {
	return u.count(c, s) > 0
}

// count returns the number of lines in c that contain s.
func (u *fakeUI) count(c session.Conversation, s string) int {
	var n int
	for _, t := range u.text(c) {
		if strings.Contains(t, s) {
			n++
		}
	}
	return n
}

// fakeKeyring encrypts by prefixing the key ID.
type fakeKeyring struct{}

func (fakeKeyring) Encrypt(text, keyID string) (string, error) {
	return keyID + ":" + text, nil
}

func (fakeKeyring) Decrypt(envelope string) (string, error) {
	i := strings.Index(envelope, ":")
	if i < 0 {
		return "", fmt.Errorf("bad envelope %q", envelope)
	}
	return envelope[i+1:], nil
}

func (fakeKeyring) Valid(keyID string) bool {
	return keyID == "OWNKEY" || keyID == "MACBETHKEY"
}

func (fakeKeyring) Keys() []pgp.Key {
	return []pgp.Key{{ID: "OWNKEY", Name: testAccount, Private: true}}
}

// fakeOTR records the sessions it is asked to start and end.
type fakeOTR struct {
	started []string
	ended   []string
}

func (o *fakeOTR) Start(_ context.Context, barejid string) error {
	o.started = append(o.started, barejid)
	return nil
}

func (o *fakeOTR) End(_ context.Context, barejid string) error {
	o.ended = append(o.ended, barejid)
	return nil
}

func (o *fakeOTR) Trust(string) error                                     { return nil }
func (o *fakeOTR) Untrust(string) error                                   { return nil }
func (o *fakeOTR) Secret(context.Context, string, string) error           { return nil }
func (o *fakeOTR) Question(context.Context, string, string, string) error { return nil }
func (o *fakeOTR) Answer(context.Context, string, string) error           { return nil }

func (o *fakeOTR) OnMessageSend(context.Context, string, string) (bool, error) {
	return false, nil
}

func (o *fakeOTR) OnMessageRecv(_ context.Context, _, _, body string) (string, bool, bool, error) {
	return body, true, false, nil
}

type fixture struct {
	c   *client.Client
	net *fakeNetwork
	ui  *fakeUI
	cfg *config.Config
	db  *store.DB
	now time.Time
	ctx context.Context
}

// newFixture returns a client with one account that is not connected yet.
func newFixture(t *testing.T, opts ...client.Option) *fixture {
	t.Helper()
	cfg := config.New("")
	acct, err := cfg.AddAccount(testAccount)
	if err != nil {
		t.Fatalf("error adding account: %v", err)
	}
	acct.Password = "hurlyburly"
	acct.MUCService = testMUC
	acct.MUCNick = "thirdwitch"

	db, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("error opening store: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("error closing store: %v", err)
		}
	})

	f := &fixture{
		net: newFakeNetwork(),
		ui:  newFakeUI(),
		cfg: cfg,
		db:  db,
		now: epoch,
		ctx: context.Background(),
	}
	opts = append([]client.Option{
		client.WithConfig(cfg),
		client.WithUI(f.ui),
		client.WithAccount(testAccount),
		client.WithClock(func() time.Time { return f.now }),
		client.WithStore(func(name string) client.Store { return db.Account(name) }),
	}, opts...)
	f.c = client.New(f.net, opts...)
	return f
}

// connect logs in to the test account.
func (f *fixture) connect(t *testing.T) {
	t.Helper()
	f.input("/connect")
	if f.net.status != network.Started {
		t.Fatalf("connect was not attempted: %v", f.ui.text(f.console()))
	}
	f.net.status = network.Connected
	f.handle(network.LoggedIn{JID: testSelf})
}

func (f *fixture) input(line string) {
	f.c.Input(f.ctx, line)
}

func (f *fixture) handle(ev network.Event) {
	f.c.Handle(f.ctx, ev)
}

func (f *fixture) console() session.Conversation {
	return f.c.Registry().Console()
}

func (f *fixture) current() session.Conversation {
	return f.c.Registry().Current()
}

// addContact puts testContact in the roster with one available resource.
func (f *fixture) addContact(resource string) {
	f.handle(network.Roster{Items: []roster.Item{{
		JID:          testContact,
		Name:         "Macbeth",
		Subscription: roster.SubBoth,
	}}})
	f.handle(network.Presence{From: testContact + "/" + resource, Presence: roster.Online})
}

// joinRoom joins testRoom and completes the join.
func (f *fixture) joinRoom(t *testing.T, args string) *session.Room {
	t.Helper()
	f.input("/join " + testRoom + args)
	f.handle(network.RoomPresence{
		Room:        testRoom,
		Nick:        "thirdwitch",
		Presence:    roster.Online,
		Role:        muc.RoleParticipant,
		Affiliation: muc.AffiliationMember,
		Self:        true,
	})
	f.handle(network.RoomInfo{Room: testRoom, Name: "Coven"})
	win, ok := f.c.Registry().Room(testRoom)
	if !ok {
		t.Fatalf("room window was not opened")
	}
	if !f.c.Rooms().Active(testRoom) {
		t.Fatalf("room should be active after the info result, got %v", win.MUC.State())
	}
	return win
}
