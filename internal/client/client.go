// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package client is the application core: it owns the windows, roster, rooms,
// and commands, and runs the event loop that connects them to the network and
// the user interface.
//
// Everything in a Client is mutated only by the goroutine running Run (or by
// the caller of Input, Handle, and Tick in tests).
package client // import "mellium.im/communique/internal/client"

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"mellium.im/xmpp/jid"

	"mellium.im/communique/internal/command"
	"mellium.im/communique/internal/config"
	"mellium.im/communique/internal/encryption"
	"mellium.im/communique/internal/network"
	"mellium.im/communique/internal/room"
	"mellium.im/communique/internal/roster"
	"mellium.im/communique/internal/session"
)

// TickInterval is how often the soft timers are checked by Run.
const TickInterval = time.Second

// Option configures a Client.
type Option func(*Client)

// WithConfig sets the preferences and accounts.
func WithConfig(cfg *config.Config) Option {
	return func(c *Client) {
		c.cfg = cfg
	}
}

// WithUI sets the user interface.
func WithUI(ui UI) Option {
	return func(c *Client) {
		c.ui = ui
	}
}

// WithPrompter sets the collaborator used to ask for passwords.
func WithPrompter(p Prompter) Option {
	return func(c *Client) {
		c.prompt = p
	}
}

// WithStore sets the function that opens the data of an account.
func WithStore(open func(account string) Store) Option {
	return func(c *Client) {
		c.openStore = open
	}
}

// WithPGP enables PGP encryption.
func WithPGP(k Keyring) Option {
	return func(c *Client) {
		c.keyring = k
	}
}

// WithOTR enables OTR encryption.
func WithOTR(o encryption.OTRSession) Option {
	return func(c *Client) {
		c.otr = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithClock sets the function used to read the current time.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithAccount selects the account used by /connect when none is given.
func WithAccount(name string) Option {
	return func(c *Client) {
		c.account = name
	}
}

// Client is the state of a running client.
type Client struct {
	cfg       *config.Config
	net       Network
	ui        UI
	prompt    Prompter
	openStore func(string) Store
	keyring   Keyring
	otr       encryption.OTRSession
	logger    *zap.Logger
	now       func() time.Time

	reg    *session.Registry
	roster *roster.Roster
	rooms  *room.Rooms
	cmds   *command.Dispatcher
	crypto *encryption.Arbiter

	// account is the name of the selected account and acct its settings.
	account string
	acct    *config.Account
	store   Store
	login   network.Login

	// self is the full JID bound by the server.
	self     string
	presence roster.Presence
	status   string

	// inviters maps a room to the user who invited us to it.
	inviters map[string]string

	lastActivity time.Time
	autoAway     bool
	lastPing     time.Time
	autopinging  bool

	// reconnect is set while the connection is lost and will be retried.
	reconnect *rate.Limiter

	ctx  context.Context
	quit bool
}

// New returns a client that uses n to talk to the server.
func New(n Network, opts ...Option) *Client {
	c := &Client{
		net:      n,
		inviters: make(map[string]string),
		now:      time.Now,
		ctx:      context.Background(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.cfg == nil {
		c.cfg = config.New("")
	}
	if c.ui == nil {
		c.ui = nopUI{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.account == "" {
		c.account = c.cfg.Prefs.DefaultAccount
	}

	c.reg = session.New(teardown{c}, session.Clock(c.now), session.Logger(c.logger.Named("session")))
	c.roster = roster.New(c.logger.Named("roster"))
	c.rooms = room.NewRooms(c.logger.Named("room"))
	c.cmds = command.NewDispatcher(env{c}, c.logger.Named("command"))

	cryptoOpts := []encryption.Option{encryption.WithLogger(c.logger.Named("encryption"))}
	if c.otr != nil {
		cryptoOpts = append(cryptoOpts, encryption.WithOTR(c.otr))
	}
	if c.keyring != nil {
		cryptoOpts = append(cryptoOpts, encryption.WithPGP(c.keyring, keys{c}))
	}
	c.crypto = encryption.New(sender{c}, chatLog{c}, policies{c}, cryptoOpts...)

	c.register()
	for name, value := range c.cfg.Prefs.Aliases {
		if err := c.cmds.AddAlias(name, value); err != nil {
			c.logger.Warn("alias_ignored", zap.String("alias", name), zap.Error(err))
		}
	}
	if c.account != "" {
		if a, ok := c.cfg.Account(c.account); ok {
			c.selectAccount(c.account, a)
		}
	}
	c.lastActivity = c.now()
	c.presence = roster.Online
	return c
}

func (c *Client) register() {
	var cmds []command.Command
	cmds = append(cmds, c.connectionCommands()...)
	cmds = append(cmds, c.presenceCommands()...)
	cmds = append(cmds, c.rosterCommands()...)
	cmds = append(cmds, c.windowCommands()...)
	cmds = append(cmds, c.roomCommands()...)
	cmds = append(cmds, c.cryptoCommands()...)
	cmds = append(cmds, c.prefCommands()...)
	c.cmds.Register(cmds...)
	c.cmds.SetFallback(c.formField)
}

// Registry returns the open windows.
func (c *Client) Registry() *session.Registry {
	return c.reg
}

// Roster returns the contact list.
func (c *Client) Roster() *roster.Roster {
	return c.roster
}

// Rooms returns the joined rooms and pending invitations.
func (c *Client) Rooms() *room.Rooms {
	return c.rooms
}

// Dispatcher returns the command dispatcher.
func (c *Client) Dispatcher() *command.Dispatcher {
	return c.cmds
}

// Connected reports whether a session is established.
func (c *Client) Connected() bool {
	return c.net.Status() == network.Connected
}

// Run processes network events, lines of input, and timers until the
// context is done, input is closed, or /quit is used.
func (c *Client) Run(ctx context.Context, input <-chan string) error {
	c.ctx = ctx
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	c.ui.Windows(c.reg.All(), c.reg.Current())
	for !c.quit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.net.Events():
			c.Handle(ctx, ev)
		case line, ok := <-input:
			if !ok {
				return nil
			}
			c.Input(ctx, line)
		case <-ticker.C:
			c.Tick(ctx, c.now())
		}
	}
	return nil
}

// Close disconnects and forgets all state.
func (c *Client) Close() error {
	c.reg.LostConnection()
	var err error
	if c.net.Status() != network.Disconnected {
		err = c.net.Disconnect()
	}
	c.roster.Clear()
	c.rooms.Disconnected()
	return err
}

// Input handles a line typed by the user in the focused window.
func (c *Client) Input(ctx context.Context, line string) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}
	c.activity(ctx)

	if command.IsCommand(line) {
		if err := c.cmds.Execute(ctx, line); err != nil {
			c.errorf(c.reg.Current(), "%s", command.Message(err))
		}
		c.ui.Windows(c.reg.All(), c.reg.Current())
		return
	}

	switch conv := c.reg.Current().(type) {
	case *session.Chat:
		c.sendChat(ctx, conv, line)
	case *session.Room:
		c.sendRoom(ctx, conv, line)
	case *session.Private:
		c.sendPrivate(ctx, conv, line)
	case *session.Config:
		c.errorf(conv, "Expecting a command, use /form help for details.")
	default:
		c.errorf(c.reg.Console(), "Unknown command: %s", line)
	}
}

// Typing is called on each key press in the focused window.
func (c *Client) Typing(ctx context.Context) {
	c.activity(ctx)
	ch, ok := c.reg.Current().(*session.Chat)
	if !ok || !c.cfg.Prefs.States || !ch.SupportsStates || !c.Connected() {
		return
	}
	if st, changed := ch.State.Typing(c.now()); changed {
		c.sendState(ctx, ch, st)
	}
}

func (c *Client) selectAccount(name string, a *config.Account) {
	if c.acct == a && c.store != nil {
		return
	}
	c.account = name
	c.acct = a
	if c.openStore != nil {
		c.store = c.openStore(strings.ToLower(name))
	}
}

// split returns the bare JID and resource of addr.
func split(addr string) (bare, resource string) {
	j, err := jid.Parse(addr)
	if err != nil {
		return addr, ""
	}
	return j.Bare().String(), j.Resourcepart()
}

// Output helpers.

func (c *Client) print(conv session.Conversation, l Line) {
	if l.Stamp.IsZero() {
		l.Stamp = c.now()
	}
	c.ui.Print(conv, l)
}

func (c *Client) infof(conv session.Conversation, format string, a ...interface{}) {
	c.print(conv, Line{Kind: LineInfo, Text: fmt.Sprintf(format, a...)})
}

func (c *Client) errorf(conv session.Conversation, format string, a ...interface{}) {
	c.print(conv, Line{Kind: LineError, Text: fmt.Sprintf(format, a...)})
}

func (c *Client) cons(format string, a ...interface{}) {
	c.infof(c.reg.Console(), format, a...)
}

// window returns the window where output about addr belongs, or the
// console.
func (c *Client) window(addr string) session.Conversation {
	bare, _ := split(addr)
	if p, ok := c.reg.Private(addr); ok {
		return p
	}
	if r, ok := c.reg.Room(bare); ok {
		return r
	}
	if ch, ok := c.reg.Chat(bare); ok {
		return ch
	}
	return c.reg.Console()
}

// protocolError shows a failed request in the window it concerns.
func (c *Client) protocolError(target, op string, err error) {
	if err == nil {
		return
	}
	perr := ProtocolError{Target: target, Op: op, Err: err}
	c.logger.Warn("protocol_error", zap.String("op", op), zap.String("target", target), zap.Error(err))
	conv := c.window(target)
	c.errorf(conv, "Error %s", perr.Error())
	if conv.Kind() != session.KindConsole {
		c.errorf(c.reg.Console(), "Error %s", perr.Error())
	}
}

func (c *Client) save() {
	if c.cfg.Path() == "" {
		return
	}
	if err := c.cfg.Save(); err != nil {
		c.logger.Error("config_save_failed", zap.Error(err))
		c.errorf(c.reg.Console(), "Could not save preferences: %v", err)
	}
}

// env adapts the client to command.Env.
type env struct{ c *Client }

func (e env) Connected() bool               { return e.c.Connected() }
func (e env) Current() session.Conversation { return e.c.reg.Current() }

// teardown adapts the client to session.Teardown.
type teardown struct{ c *Client }

func (t teardown) Connected() bool { return t.c.Connected() }

func (t teardown) LeaveRoom(r *session.Room) {
	c := t.c
	if r.MUC.State() != room.Closed {
		err := c.net.LeaveRoom(c.ctx, r.MUC.JID, r.MUC.Nick, "")
		if err != nil {
			c.logger.Warn("leave_room_failed", zap.String("room", r.MUC.JID), zap.Error(err))
		}
	}
	c.rooms.Leave(r.MUC.JID)
}

func (t teardown) EndChat(ch *session.Chat) {
	c := t.c
	if c.cfg.Prefs.States && ch.SupportsStates {
		if st, changed := ch.State.Close(c.now()); changed {
			c.sendState(c.ctx, ch, st)
		}
	}
	t.ResetChat(ch)
}

func (t teardown) ResetChat(ch *session.Chat) {
	t.c.crypto.Reset(t.c.ctx, ch)
}
