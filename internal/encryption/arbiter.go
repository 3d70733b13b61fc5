// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package encryption

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Policies reports the user's current encryption preferences.
// They are read on every message so that changes apply immediately.
type Policies interface {
	PGPLog() LogPolicy
	OTRLog() LogPolicy
	OTRPolicy() OTRPolicy
}

// DefaultPolicies are the policies used when none are configured.
type DefaultPolicies struct{}

// PGPLog returns LogRedact.
func (DefaultPolicies) PGPLog() LogPolicy { return LogRedact }

// OTRLog returns LogRedact.
func (DefaultPolicies) OTRLog() LogPolicy { return LogRedact }

// OTRPolicy returns PolicyManual.
func (DefaultPolicies) OTRPolicy() OTRPolicy { return PolicyManual }

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithOTR makes OTR available to chats.
func WithOTR(o OTRSession) Option {
	return func(a *Arbiter) {
		a.otr = o
	}
}

// WithPGP makes PGP available to chats.
// Keys is used to find the account's own key and the keys of contacts.
func WithPGP(p PGPSession, k Keys) Option {
	return func(a *Arbiter) {
		a.pgp = p
		a.keys = k
	}
}

// WithLogger sets the logger used for mode changes and failures.
func WithLogger(l *zap.Logger) Option {
	return func(a *Arbiter) {
		a.logger = l
	}
}

// Arbiter dispatches outgoing and incoming chat messages through the
// encryption scheme active in each chat.
// All mode changes happen through the Arbiter so that OTR and PGP are never
// active at the same time and never replace each other directly.
type Arbiter struct {
	otr      OTRSession
	pgp      PGPSession
	keys     Keys
	sender   Sender
	chatLog  Log
	policies Policies
	logger   *zap.Logger
}

// New creates an Arbiter that sends through s and writes to the chat log l.
// If p is nil DefaultPolicies are used.
func New(s Sender, l Log, p Policies, opt ...Option) *Arbiter {
	if p == nil {
		p = DefaultPolicies{}
	}
	a := &Arbiter{
		sender:   s,
		chatLog:  l,
		policies: p,
	}
	for _, o := range opt {
		o(a)
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

// OTRAvailable reports whether an OTR implementation is configured.
func (a *Arbiter) OTRAvailable() bool {
	return a.otr != nil
}

// PGPAvailable reports whether a PGP implementation is configured.
func (a *Arbiter) PGPAvailable() bool {
	return a.pgp != nil
}

func (a *Arbiter) transition(c Chat, to Mode) error {
	from := c.Mode()
	if from == to {
		return nil
	}
	if from != None && to != None {
		return ErrEndOtherSession
	}
	c.SetMode(to)
	a.logger.Info("encryption_mode_changed",
		zap.String("contact", c.Addr()),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	return nil
}

func (a *Arbiter) record(c Chat, resource string, outgoing bool, text string, m Mode, p LogPolicy) {
	if a.chatLog == nil {
		return
	}
	switch p {
	case LogOff:
		return
	case LogRedact:
		text = Redacted
	}
	err := a.chatLog.LogChat(Record{
		Contact:  c.Addr(),
		Resource: resource,
		Outgoing: outgoing,
		Body:     text,
		Mode:     m,
	})
	if err != nil {
		a.logger.Warn("chat_log_failed", zap.String("contact", c.Addr()), zap.Error(err))
	}
}

// Sent describes a message that was handed to the network.
type Sent struct {
	// ID is the stanza ID if known.
	// Messages sent by the OTR implementation have no ID.
	ID string

	// Mode is the scheme actually used on the wire.
	// It differs from the chat's mode when an OTR chat falls back to plaintext.
	Mode Mode
}

// Send encrypts text according to the chat's mode and sends it to the
// address to (the bare JID, or a full JID if the chat is pinned to a
// resource).
func (a *Arbiter) Send(ctx context.Context, c Chat, to, text string) (Sent, error) {
	c.StateActive()

	switch c.Mode() {
	case OTR:
		if a.otr != nil {
			handled, err := a.otr.OnMessageSend(ctx, to, text)
			if err != nil {
				return Sent{}, err
			}
			if handled {
				a.record(c, "", true, text, OTR, a.policies.OTRLog())
				return Sent{Mode: OTR}, nil
			}
		}
		return a.sendPlain(ctx, c, to, text)
	case PGP:
		if a.pgp == nil {
			return Sent{}, ErrUnavailable
		}
		var keyID string
		var ok bool
		if a.keys != nil {
			keyID, ok = a.keys.ContactKey(c.Addr())
		}
		if !ok {
			return Sent{}, ErrNoContactKey
		}
		envelope, err := a.pgp.Encrypt(text, keyID)
		if err != nil {
			return Sent{}, fmt.Errorf("encryption: encrypting message to %s: %w", c.Addr(), err)
		}
		id, err := a.sender.SendPGP(ctx, to, envelope)
		if err != nil {
			return Sent{}, err
		}
		a.record(c, "", true, text, PGP, a.policies.PGPLog())
		return Sent{ID: id, Mode: PGP}, nil
	}

	if a.otr != nil && a.policies.OTRPolicy() == PolicyAlways {
		return Sent{}, ErrPolicyAlways
	}
	return a.sendPlain(ctx, c, to, text)
}

func (a *Arbiter) sendPlain(ctx context.Context, c Chat, to, text string) (Sent, error) {
	id, err := a.sender.SendChat(ctx, to, text)
	if err != nil {
		return Sent{}, err
	}
	a.record(c, "", true, text, None, LogPlain)
	return Sent{ID: id, Mode: None}, nil
}

// Decision tells the caller what to display for an incoming message.
type Decision struct {
	// Show is false if nothing but Warning should be displayed.
	Show bool
	Text string

	// Decrypted is true if Text was recovered from an encrypted payload.
	Decrypted bool

	// Warning, if set, should be shown to the user in the chat.
	Warning string

	// Notice, if set, describes a mode change caused by the message.
	Notice string
}

// Messages shown by Receive.
const (
	WarnPGPInOTR      = "PGP encrypted message received whilst in OTR session."
	NoticePGPDisabled = "PGP encryption disabled."
)

// Receive processes a message from resource of the chat's contact.
// Envelope is the XEP-0027 encrypted payload, or the empty string if the
// message was not PGP encrypted.
//
// The first matching rule wins:
// a PGP envelope during an OTR session is not decrypted and produces a
// warning; a PGP envelope otherwise is decrypted, switching the chat to PGP
// on success and silently to None (showing the raw body) on failure; a plain
// message in a PGP chat switches the chat to None; anything else is handed to
// OTR.
func (a *Arbiter) Receive(ctx context.Context, c Chat, resource, body, envelope string) (Decision, error) {
	if envelope != "" {
		if c.Mode() == OTR {
			return Decision{Warning: WarnPGPInOTR}, nil
		}
		if a.pgp != nil {
			text, err := a.pgp.Decrypt(envelope)
			if err == nil {
				// Mode is None or PGP here, so this cannot fail.
				_ = a.transition(c, PGP)
				a.record(c, resource, false, text, PGP, a.policies.PGPLog())
				return Decision{Show: true, Text: text, Decrypted: true}, nil
			}
			a.logger.Info("pgp_decrypt_failed", zap.String("contact", c.Addr()), zap.Error(err))
		}
		d := Decision{Show: true, Text: body}
		if d.Text == "" {
			d.Text = envelope
		}
		_ = a.transition(c, None)
		a.record(c, resource, false, d.Text, None, LogPlain)
		return d, nil
	}

	if c.Mode() == PGP {
		_ = a.transition(c, None)
		a.record(c, resource, false, body, None, LogPlain)
		return Decision{Show: true, Text: body, Notice: NoticePGPDisabled}, nil
	}

	if a.otr == nil {
		a.record(c, resource, false, body, None, LogPlain)
		return Decision{Show: true, Text: body}, nil
	}
	text, show, decrypted, err := a.otr.OnMessageRecv(ctx, c.Addr(), resource, body)
	if err != nil {
		return Decision{}, err
	}
	if !show {
		return Decision{}, nil
	}
	if decrypted {
		a.record(c, resource, false, text, OTR, a.policies.OTRLog())
	} else {
		a.record(c, resource, false, text, None, LogPlain)
	}
	return Decision{Show: true, Text: text, Decrypted: decrypted}, nil
}

// StartOTR asks the OTR implementation to begin a session.
// The chat does not enter OTR mode until Secure is called.
func (a *Arbiter) StartOTR(ctx context.Context, c Chat) error {
	switch {
	case c.Mode() == PGP:
		return ErrEndOtherSession
	case c.Mode() == OTR:
		return ErrAlreadyActive
	case a.otr == nil:
		return ErrUnavailable
	}
	return a.otr.Start(ctx, c.Addr())
}

// Secure is called when an OTR session with the contact has been
// established.
// If the chat is using PGP the new OTR session is ended again and
// ErrEndOtherSession is returned.
func (a *Arbiter) Secure(ctx context.Context, c Chat) error {
	err := a.transition(c, OTR)
	if err != nil && a.otr != nil {
		if endErr := a.otr.End(ctx, c.Addr()); endErr != nil {
			a.logger.Warn("otr_end_failed", zap.String("contact", c.Addr()), zap.Error(endErr))
		}
	}
	return err
}

// Insecure is called when the contact ends an OTR session.
func (a *Arbiter) Insecure(c Chat) {
	if c.Mode() == OTR {
		_ = a.transition(c, None)
	}
}

// EndOTR ends the chat's OTR session.
func (a *Arbiter) EndOTR(ctx context.Context, c Chat) error {
	if c.Mode() != OTR || a.otr == nil {
		return ErrNotActive
	}
	if err := a.otr.End(ctx, c.Addr()); err != nil {
		return err
	}
	return a.transition(c, None)
}

// StartPGP switches the chat to PGP after checking that both the account
// and the contact have usable keys.
func (a *Arbiter) StartPGP(c Chat) error {
	switch {
	case c.Mode() == OTR:
		return ErrEndOtherSession
	case c.Mode() == PGP:
		return ErrAlreadyActive
	case a.pgp == nil || a.keys == nil:
		return ErrUnavailable
	}
	own := a.keys.AccountKey()
	if own == "" || !a.pgp.Valid(own) {
		return ErrNoOwnKey
	}
	if _, ok := a.keys.ContactKey(c.Addr()); !ok {
		return ErrNoContactKey
	}
	return a.transition(c, PGP)
}

// EndPGP switches a PGP chat back to None.
func (a *Arbiter) EndPGP(c Chat) error {
	if c.Mode() != PGP {
		return ErrNotActive
	}
	return a.transition(c, None)
}

// Reset ends any OTR session and puts the chat back in None.
// It is used when the chat is closed or the connection is lost.
func (a *Arbiter) Reset(ctx context.Context, c Chat) {
	if c.Mode() == OTR && a.otr != nil {
		if err := a.otr.End(ctx, c.Addr()); err != nil {
			a.logger.Warn("otr_end_failed", zap.String("contact", c.Addr()), zap.Error(err))
		}
	}
	_ = a.transition(c, None)
}

func (a *Arbiter) otrSession(c Chat) error {
	if a.otr == nil {
		return ErrUnavailable
	}
	if c.Mode() != OTR {
		return ErrNotActive
	}
	return nil
}

// Trust marks the contact's OTR fingerprint as verified.
func (a *Arbiter) Trust(c Chat) error {
	if err := a.otrSession(c); err != nil {
		return err
	}
	return a.otr.Trust(c.Addr())
}

// Untrust removes verification of the contact's OTR fingerprint.
func (a *Arbiter) Untrust(c Chat) error {
	if err := a.otrSession(c); err != nil {
		return err
	}
	return a.otr.Untrust(c.Addr())
}

// Secret starts SMP authentication with a shared secret.
func (a *Arbiter) Secret(ctx context.Context, c Chat, secret string) error {
	if err := a.otrSession(c); err != nil {
		return err
	}
	return a.otr.Secret(ctx, c.Addr(), secret)
}

// Question starts SMP authentication with a question and expected answer.
func (a *Arbiter) Question(ctx context.Context, c Chat, question, answer string) error {
	if err := a.otrSession(c); err != nil {
		return err
	}
	return a.otr.Question(ctx, c.Addr(), question, answer)
}

// Answer responds to an SMP question from the contact.
func (a *Arbiter) Answer(ctx context.Context, c Chat, answer string) error {
	if err := a.otrSession(c); err != nil {
		return err
	}
	return a.otr.Answer(ctx, c.Addr(), answer)
}
