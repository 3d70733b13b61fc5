// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package otr provides Off-the-Record messaging sessions for one-to-one
// chats.
//
// An Engine is not safe for concurrent use.
// It is driven from the client's event loop.
package otr // import "mellium.im/communique/internal/encryption/otr"

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	xotr "golang.org/x/crypto/otr"
	"gopkg.in/yaml.v3"
)

// Errors returned by the engine.
var (
	ErrNoSession   = errors.New("otr: no secure session")
	ErrNotAttached = errors.New("otr: engine has no peer")
	ErrBadKey      = errors.New("otr: malformed private key")
)

// Peer sends the messages produced by the engine and is told about changes to
// the state of a session.
type Peer interface {
	SendOTR(ctx context.Context, to, body string) error
	OTRSecure(ctx context.Context, barejid string, trusted bool)
	OTRInsecure(barejid string)
	OTRQuestion(barejid, question string)
	OTRAuthenticated(barejid string, ok bool)
}

// Option configures an Engine.
type Option func(*Engine)

// Logger sets the logger used for protocol failures.
func Logger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// TrustFile sets the file that verified fingerprints are loaded from and
// saved to.
func TrustFile(path string) Option {
	return func(e *Engine) {
		e.trustPath = path
	}
}

// Engine keeps one OTR conversation per contact.
type Engine struct {
	key       *xotr.PrivateKey
	peer      Peer
	logger    *zap.Logger
	convs     map[string]*xotr.Conversation
	trusted   map[string][]string
	trustPath string
}

// New returns an engine that uses key as the long term identity.
func New(key *xotr.PrivateKey, opts ...Option) *Engine {
	e := &Engine{
		key:     key,
		logger:  zap.NewNop(),
		convs:   make(map[string]*xotr.Conversation),
		trusted: make(map[string][]string),
	}
	for _, o := range opts {
		o(e)
	}
	if e.trustPath != "" {
		if err := e.loadTrust(); err != nil {
			e.logger.Warn("otr_trust_load_failed", zap.String("path", e.trustPath), zap.Error(err))
		}
	}
	return e
}

// Attach sets the peer that messages and session changes are delivered to.
func (e *Engine) Attach(p Peer) {
	e.peer = p
}

// LoadKey reads a private key from path.
// If the file does not exist a new key is generated and written to it.
func LoadKey(path string) (*xotr.PrivateKey, error) {
	key := new(xotr.PrivateKey)
	b, err := ioutil.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		key.Generate(rand.Reader)
		err = ioutil.WriteFile(path, key.Serialize(nil), 0600)
		if err != nil {
			return nil, err
		}
		return key, nil
	case err != nil:
		return nil, err
	}
	if _, ok := key.Parse(b); !ok {
		return nil, ErrBadKey
	}
	return key, nil
}

// FormatFingerprint formats a fingerprint as upper case groups of eight hex
// digits.
func FormatFingerprint(fp []byte) string {
	s := strings.ToUpper(hex.EncodeToString(fp))
	var groups []string
	for len(s) > 8 {
		groups = append(groups, s[:8])
		s = s[8:]
	}
	return strings.Join(append(groups, s), " ")
}

// Fingerprint returns the formatted fingerprint of the engine's own key.
func (e *Engine) Fingerprint() string {
	return FormatFingerprint(e.key.PublicKey.Fingerprint())
}

// TheirFingerprint returns the formatted fingerprint of the contact in an
// active session.
func (e *Engine) TheirFingerprint(barejid string) (string, error) {
	c, err := e.session(barejid)
	if err != nil {
		return "", err
	}
	return FormatFingerprint(c.TheirPublicKey.Fingerprint()), nil
}

// IsTrusted reports whether fp has been verified for the contact.
func (e *Engine) IsTrusted(barejid, fp string) bool {
	for _, t := range e.trusted[barejid] {
		if t == fp {
			return true
		}
	}
	return false
}

func (e *Engine) conv(barejid string) *xotr.Conversation {
	c, ok := e.convs[barejid]
	if !ok {
		c = &xotr.Conversation{PrivateKey: e.key, Rand: rand.Reader}
		e.convs[barejid] = c
	}
	return c
}

func (e *Engine) session(barejid string) (*xotr.Conversation, error) {
	c, ok := e.convs[barejid]
	if !ok || !c.IsEncrypted() {
		return nil, ErrNoSession
	}
	return c, nil
}

func (e *Engine) send(ctx context.Context, to string, msgs [][]byte) error {
	if len(msgs) == 0 {
		return nil
	}
	if e.peer == nil {
		return ErrNotAttached
	}
	for _, m := range msgs {
		if err := e.peer.SendOTR(ctx, to, string(m)); err != nil {
			return err
		}
	}
	return nil
}

// Start sends an OTR query to the contact.
func (e *Engine) Start(ctx context.Context, barejid string) error {
	e.conv(barejid)
	return e.send(ctx, barejid, [][]byte{[]byte(xotr.QueryMessage)})
}

// End ends the session with the contact and forgets it.
func (e *Engine) End(ctx context.Context, barejid string) error {
	c, ok := e.convs[barejid]
	if !ok {
		return nil
	}
	delete(e.convs, barejid)
	return e.send(ctx, barejid, c.End())
}

// Trust marks the fingerprint of the contact in the active session as
// verified.
func (e *Engine) Trust(barejid string) error {
	fp, err := e.TheirFingerprint(barejid)
	if err != nil {
		return err
	}
	e.trust(barejid, fp)
	return nil
}

// Untrust removes the verification of the contact's current fingerprint.
func (e *Engine) Untrust(barejid string) error {
	fp, err := e.TheirFingerprint(barejid)
	if err != nil {
		return err
	}
	var keep []string
	for _, t := range e.trusted[barejid] {
		if t != fp {
			keep = append(keep, t)
		}
	}
	if len(keep) == 0 {
		delete(e.trusted, barejid)
	} else {
		e.trusted[barejid] = keep
	}
	return e.saveTrust()
}

func (e *Engine) trust(barejid, fp string) {
	if e.IsTrusted(barejid, fp) {
		return
	}
	e.trusted[barejid] = append(e.trusted[barejid], fp)
	if err := e.saveTrust(); err != nil {
		e.logger.Warn("otr_trust_save_failed", zap.String("path", e.trustPath), zap.Error(err))
	}
}

func (e *Engine) authenticate(ctx context.Context, barejid, question, secret string) error {
	c, err := e.session(barejid)
	if err != nil {
		return err
	}
	msgs, err := c.Authenticate(question, []byte(secret))
	if err != nil {
		return fmt.Errorf("otr: starting authentication: %w", err)
	}
	return e.send(ctx, barejid, msgs)
}

// Secret starts or answers authentication with a shared secret.
func (e *Engine) Secret(ctx context.Context, barejid, secret string) error {
	return e.authenticate(ctx, barejid, "", secret)
}

// Question starts authentication by asking the contact a question.
func (e *Engine) Question(ctx context.Context, barejid, question, answer string) error {
	return e.authenticate(ctx, barejid, question, answer)
}

// Answer answers a question asked by the contact.
func (e *Engine) Answer(ctx context.Context, barejid, answer string) error {
	return e.authenticate(ctx, barejid, "", answer)
}

// OnMessageSend encrypts text if there is a secure session with the
// recipient.
func (e *Engine) OnMessageSend(ctx context.Context, to, text string) (bool, error) {
	barejid := to
	if i := strings.IndexByte(to, '/'); i >= 0 {
		barejid = to[:i]
	}
	c, err := e.session(barejid)
	if err != nil {
		return false, nil
	}
	msgs, err := c.Send([]byte(text))
	if err != nil {
		return true, err
	}
	return true, e.send(ctx, to, msgs)
}

// OnMessageRecv passes an incoming message through the contact's
// conversation.
// Plain messages from contacts without a conversation are returned as is.
func (e *Engine) OnMessageRecv(ctx context.Context, barejid, resource, body string) (string, bool, bool, error) {
	if _, ok := e.convs[barejid]; !ok && !strings.HasPrefix(body, "?OTR") {
		return body, true, false, nil
	}
	c := e.conv(barejid)
	out, encrypted, change, toSend, err := c.Receive([]byte(body))
	if err != nil {
		return "", false, false, err
	}
	to := barejid
	if resource != "" {
		to = barejid + "/" + resource
	}
	if err := e.send(ctx, to, toSend); err != nil {
		e.logger.Warn("otr_send_failed", zap.String("contact", to), zap.Error(err))
	}
	if e.peer != nil {
		switch change {
		case xotr.NewKeys:
			fp := FormatFingerprint(c.TheirPublicKey.Fingerprint())
			e.peer.OTRSecure(ctx, barejid, e.IsTrusted(barejid, fp))
		case xotr.ConversationEnded:
			delete(e.convs, barejid)
			e.peer.OTRInsecure(barejid)
		case xotr.SMPSecretNeeded:
			e.peer.OTRQuestion(barejid, c.SMPQuestion())
		case xotr.SMPComplete:
			e.trust(barejid, FormatFingerprint(c.TheirPublicKey.Fingerprint()))
			e.peer.OTRAuthenticated(barejid, true)
		case xotr.SMPFailed:
			e.peer.OTRAuthenticated(barejid, false)
		}
	}
	return string(out), len(out) > 0, encrypted, nil
}

func (e *Engine) loadTrust() error {
	b, err := ioutil.ReadFile(e.trustPath)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return err
	}
	return yaml.Unmarshal(b, &e.trusted)
}

func (e *Engine) saveTrust() error {
	if e.trustPath == "" {
		return nil
	}
	for _, fps := range e.trusted {
		sort.Strings(fps)
	}
	b, err := yaml.Marshal(e.trusted)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(e.trustPath, b, 0600)
}
