// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package xmppnet connects the client to an XMPP server.
//
// A Conn turns the stanzas it receives into network events and offers
// methods to send the stanzas the client needs.
// Requests that expect an answer, such as fetching a room configuration, return
// immediately and deliver the answer as an event.
package xmppnet // import "mellium.im/communique/internal/xmppnet"

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"mellium.im/sasl"
	"mellium.im/xmlstream"
	"mellium.im/xmpp"
	"mellium.im/xmpp/dial"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
	"mellium.im/xmpp/version"

	"mellium.im/communique/internal/network"
)

// ErrNotConnected is returned when sending without a session.
var ErrNotConnected = errors.New("xmppnet: not connected")

// ErrStarted is returned by Connect if a connection is already in progress.
var ErrStarted = errors.New("xmppnet: already connected or connecting")

const (
	defaultPort    = 5222
	defaultTimeout = 30 * time.Second
	eventBuffer    = 64
)

// Option configures a Conn.
type Option func(*Conn)

// Software sets the name and version returned for software version requests.
func Software(name, ver string) Option {
	return func(c *Conn) {
		c.software = version.Query{Name: name, Version: ver, OS: runtime.GOOS}
	}
}

// Timeout sets how long to wait for logins and answers to requests.
func Timeout(d time.Duration) Option {
	return func(c *Conn) {
		c.timeout = d
	}
}

// ChatStateRate limits how often chat state notifications are sent.
func ChatStateRate(limit rate.Limit, burst int) Option {
	return func(c *Conn) {
		c.states = rate.NewLimiter(limit, burst)
	}
}

// Conn is a connection to an XMPP server.
type Conn struct {
	logger   *zap.Logger
	events   chan network.Event
	done     chan struct{}
	closed   sync.Once
	timeout  time.Duration
	software version.Query
	states   *rate.Limiter
	trace    int32

	mu      sync.Mutex
	status  network.Status
	session *xmpp.Session
	self    string
	ctx     context.Context
	cancel  context.CancelFunc
}

// New returns a disconnected Conn.
func New(logger *zap.Logger, opts ...Option) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Conn{
		logger:   logger.Named("xmpp"),
		events:   make(chan network.Event, eventBuffer),
		done:     make(chan struct{}),
		timeout:  defaultTimeout,
		software: version.Query{Name: "communique", OS: runtime.GOOS},
		states:   rate.NewLimiter(rate.Every(time.Second), 2),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Events returns the channel on which events are delivered.
func (c *Conn) Events() <-chan network.Event {
	return c.events
}

// Status reports the connection state.
func (c *Conn) Status() network.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Trace turns delivery of raw XML events on or off.
func (c *Conn) Trace(on bool) {
	var v int32
	if on {
		v = 1
	}
	atomic.StoreInt32(&c.trace, v)
}

// Close disconnects and stops delivering events.
func (c *Conn) Close() error {
	err := c.Disconnect()
	c.closed.Do(func() { close(c.done) })
	return err
}

func (c *Conn) emit(e network.Event) {
	if e == nil {
		return
	}
	select {
	case c.events <- e:
	case <-c.done:
	}
}

type traceWriter struct {
	c        *Conn
	incoming bool
}

func (w traceWriter) Write(p []byte) (int, error) {
	if atomic.LoadInt32(&w.c.trace) == 0 {
		return len(p), nil
	}
	// Trace output is best effort and never blocks the stream.
	select {
	case w.c.events <- network.XML{Incoming: w.incoming, Data: string(p)}:
	default:
	}
	return len(p), nil
}

// Connect starts logging in.
// The outcome is reported with a LoggedIn or LoginFailed event.
func (c *Conn) Connect(ctx context.Context, l network.Login) error {
	c.mu.Lock()
	if c.status != network.Disconnected {
		c.mu.Unlock()
		return ErrStarted
	}
	c.status = network.Started
	c.mu.Unlock()

	go c.login(ctx, l)
	return nil
}

func (c *Conn) login(ctx context.Context, l network.Login) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	s, err := c.dial(ctx, l)
	cancel()
	if err != nil {
		c.mu.Lock()
		c.status = network.Disconnected
		c.mu.Unlock()
		c.logger.Debug("login failed", zap.String("jid", l.JID), zap.Error(err))
		c.emit(network.LoginFailed{Err: err})
		return
	}

	sctx, scancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.status != network.Started {
		// Disconnect was called while logging in.
		c.mu.Unlock()
		scancel()
		s.Close()
		s.Conn().Close()
		return
	}
	c.session = s
	c.self = s.LocalAddr().Bare().String()
	c.status = network.Connected
	c.ctx = sctx
	c.cancel = scancel
	c.mu.Unlock()

	go c.serve(s)

	c.logger.Info("logged in", zap.Stringer("jid", s.LocalAddr()))
	c.emit(network.LoggedIn{JID: s.LocalAddr().String()})

	rctx, rcancel := context.WithTimeout(sctx, c.timeout)
	defer rcancel()
	var q rosterQuery
	err = s.UnmarshalIQElement(rctx, element(nsRoster, "query", nil), stanza.IQ{Type: stanza.GetIQ}, &q)
	if err != nil {
		c.logger.Warn("error fetching roster", zap.Error(err))
		return
	}
	c.emit(network.Roster{Items: rosterItems(q)})
}

func (c *Conn) dial(ctx context.Context, l network.Login) (*xmpp.Session, error) {
	origin, err := jid.Parse(l.JID)
	if err != nil {
		return nil, fmt.Errorf("invalid JID %q: %w", l.JID, err)
	}
	if l.Resource != "" {
		origin, err = origin.WithResource(l.Resource)
		if err != nil {
			return nil, fmt.Errorf("invalid resource %q: %w", l.Resource, err)
		}
	}

	var conn net.Conn
	if l.Server != "" || l.Port != 0 {
		host := l.Server
		if host == "" {
			host = origin.Domainpart()
		}
		port := l.Port
		if port == 0 {
			port = defaultPort
		}
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	} else {
		conn, err = dial.Client(ctx, "tcp", origin)
	}
	if err != nil {
		return nil, fmt.Errorf("error dialing connection: %w", err)
	}

	negotiator := xmpp.NewNegotiator(func(*xmpp.Session, *xmpp.StreamConfig) xmpp.StreamConfig {
		return xmpp.StreamConfig{
			Features: []xmpp.StreamFeature{
				xmpp.BindResource(),
				xmpp.StartTLS(&tls.Config{
					ServerName: origin.Domain().String(),
					MinVersion: tls.VersionTLS12,
				}),
				xmpp.SASL("", l.Password, sasl.ScramSha256Plus, sasl.ScramSha1Plus, sasl.ScramSha256, sasl.ScramSha1, sasl.Plain),
			},
			TeeIn:  traceWriter{c: c, incoming: true},
			TeeOut: traceWriter{c: c},
		}
	})
	s, err := xmpp.NewSession(ctx, origin.Domain(), origin, conn, 0, negotiator)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error logging in: %w", err)
	}
	return s, nil
}

func (c *Conn) serve(s *xmpp.Session) {
	err := s.Serve(xmpp.HandlerFunc(c.handle))

	c.mu.Lock()
	lost := c.session == s
	if lost {
		c.reset()
	}
	c.mu.Unlock()

	if lost {
		c.logger.Info("connection lost", zap.Error(err))
		s.Conn().Close()
		c.emit(network.Lost{Err: err})
	}
}

// reset forgets the session. The caller must hold mu.
func (c *Conn) reset() {
	c.session = nil
	c.status = network.Disconnected
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Disconnect closes the session.
// No Lost event is sent.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	s := c.session
	c.reset()
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	err := s.Close()
	if cerr := s.Conn().Close(); err == nil {
		err = cerr
	}
	return err
}

// current returns the session and its context.
func (c *Conn) current() (*xmpp.Session, context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, nil, ErrNotConnected
	}
	return c.session, c.ctx, nil
}

func (c *Conn) encode(ctx context.Context, v interface{}) error {
	s, _, err := c.current()
	if err != nil {
		return err
	}
	return s.Encode(ctx, v)
}

// async runs a request in the background and delivers its result.
func (c *Conn) async(f func(ctx context.Context, s *xmpp.Session) network.Event) error {
	s, ctx, err := c.current()
	if err != nil {
		return err
	}
	go func() {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		c.emit(f(ctx, s))
	}()
	return nil
}

func (c *Conn) handle(t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	d := xml.NewTokenDecoder(xmlstream.MultiReader(xmlstream.Token(*start), t))
	if _, err := d.Token(); err != nil {
		return err
	}

	switch start.Name.Local {
	case "message":
		var m inMessage
		if err := d.DecodeElement(&m, start); err != nil && err != io.EOF {
			c.logger.Debug("error decoding message", zap.Error(err))
			return nil
		}
		c.mu.Lock()
		self := c.self
		c.mu.Unlock()
		c.emit(messageEvent(m, self))
	case "presence":
		var p inPresence
		if err := d.DecodeElement(&p, start); err != nil && err != io.EOF {
			c.logger.Debug("error decoding presence", zap.Error(err))
			return nil
		}
		c.emit(presenceEvent(p))
	case "iq":
		var iq inIQ
		if err := d.DecodeElement(&iq, start); err != nil && err != io.EOF {
			c.logger.Debug("error decoding iq", zap.Error(err))
			return nil
		}
		return c.handleIQ(t, iq)
	}
	return nil
}

func (c *Conn) handleIQ(t xmlstream.TokenReadEncoder, iq inIQ) error {
	if iq.Type != "get" && iq.Type != "set" {
		return nil
	}
	from, _ := jid.Parse(iq.From)
	reply := stanza.IQ{ID: iq.ID, To: from, Type: stanza.ResultIQ}

	switch {
	case iq.Type == "get" && iq.Payload.XMLName.Space == nsPing:
		return t.Encode(reply)
	case iq.Type == "get" && iq.Payload.XMLName.Space == version.NS:
		return t.Encode(versionReply{IQ: reply, Query: c.software})
	case iq.Type == "set" && iq.Roster != nil:
		c.mu.Lock()
		self := c.self
		c.mu.Unlock()
		// Pushes are only accepted from our own server.
		if bare, _ := split(iq.From); iq.From != "" && bare != self {
			break
		}
		if err := t.Encode(reply); err != nil {
			return err
		}
		for _, item := range rosterItems(*iq.Roster) {
			c.emit(network.RosterPush{Item: item})
		}
		return nil
	}

	e := iqError{IQ: stanza.IQ{ID: iq.ID, To: from, Type: stanza.ErrorIQ}}
	e.Error.Type = "cancel"
	e.Error.Condition.XMLName = xml.Name{Space: nsStanza, Local: "service-unavailable"}
	return t.Encode(e)
}
