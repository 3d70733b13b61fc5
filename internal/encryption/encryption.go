// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

//go:generate go run -tags=tools golang.org/x/tools/cmd/stringer -output=string.go -type=Mode,LogPolicy,OTRPolicy -linecomment

// Package encryption arbitrates between the end-to-end encryption schemes
// that may be active in a one-to-one chat.
//
// A chat is always in exactly one Mode.
// OTR and PGP are mutually exclusive: moving from one to the other requires
// ending the first session and passing through None.
// Both schemes are optional capabilities; when one is missing the Arbiter
// reports ErrUnavailable instead of failing in some other way.
package encryption // import "mellium.im/communique/internal/encryption"

import (
	"context"
	"errors"
)

// Mode is the encryption scheme currently in use by a chat.
type Mode uint8

// A list of encryption modes.
const (
	None Mode = iota // none
	OTR              // OTR
	PGP              // PGP
)

// LogPolicy controls how messages sent or received under an encryption mode
// are written to the local chat log.
type LogPolicy uint8

// A list of log policies.
const (
	LogPlain  LogPolicy = iota // on
	LogOff                     // off
	LogRedact                  // redact
)

// Redacted is written to the log in place of message text when the log
// policy is LogRedact.
const Redacted = "[redacted]"

// ParseLogPolicy parses the user facing name of a log policy.
// Both "on" and "plain" select LogPlain.
func ParseLogPolicy(s string) (LogPolicy, error) {
	switch s {
	case "on", "plain":
		return LogPlain, nil
	case LogOff.String():
		return LogOff, nil
	case LogRedact.String():
		return LogRedact, nil
	}
	return LogPlain, errors.New("encryption: unrecognized log policy")
}

// OTRPolicy controls when OTR sessions are started or required.
type OTRPolicy uint8

// A list of OTR policies.
const (
	PolicyManual        OTRPolicy = iota // manual
	PolicyOpportunistic                  // opportunistic
	PolicyAlways                         // always
)

// ParseOTRPolicy parses the name of an OTR policy.
func ParseOTRPolicy(s string) (OTRPolicy, error) {
	switch s {
	case PolicyManual.String():
		return PolicyManual, nil
	case PolicyOpportunistic.String():
		return PolicyOpportunistic, nil
	case PolicyAlways.String():
		return PolicyAlways, nil
	}
	return PolicyManual, errors.New("encryption: unrecognized OTR policy")
}

// Errors returned by the Arbiter.
var (
	ErrEndOtherSession = errors.New("encryption: end the other session first")
	ErrUnavailable     = errors.New("encryption: not available")
	ErrAlreadyActive   = errors.New("encryption: session already started")
	ErrNotActive       = errors.New("encryption: no session in progress")
	ErrNoOwnKey        = errors.New("encryption: no valid PGP key configured for this account")
	ErrNoContactKey    = errors.New("encryption: no PGP key found for contact")
	ErrPolicyAlways    = errors.New("encryption: OTR policy set to always, message not sent")
)

// Chat is the per-conversation state that the Arbiter reads and mutates.
type Chat interface {
	// Addr is the bare JID of the contact.
	Addr() string
	Mode() Mode
	SetMode(Mode)

	// StateActive marks the local chat state as active.
	StateActive()
}

// Sender puts messages on the wire.
type Sender interface {
	SendChat(ctx context.Context, to, body string) (id string, err error)
	SendPGP(ctx context.Context, to, envelope string) (id string, err error)
}

// OTRSession is an Off-the-Record messaging implementation.
// Sessions are keyed by the bare JID of the contact.
type OTRSession interface {
	Start(ctx context.Context, barejid string) error
	End(ctx context.Context, barejid string) error
	Trust(barejid string) error
	Untrust(barejid string) error
	Secret(ctx context.Context, barejid, secret string) error
	Question(ctx context.Context, barejid, question, answer string) error
	Answer(ctx context.Context, barejid, answer string) error

	// OnMessageSend encrypts and sends text if there is an OTR session with
	// the recipient.
	// If it reports that the message was not handled the caller sends it in the
	// clear.
	OnMessageSend(ctx context.Context, to, text string) (handled bool, err error)

	// OnMessageRecv processes an incoming message.
	// If show is false the message was part of the OTR protocol and should not
	// be displayed.
	OnMessageRecv(ctx context.Context, barejid, resource, body string) (text string, show, decrypted bool, err error)
}

// PGPSession is an OpenPGP implementation used for XEP-0027 messages.
type PGPSession interface {
	Encrypt(plaintext, keyID string) (envelope string, err error)
	Decrypt(envelope string) (string, error)
	Valid(keyID string) bool
}

// Keys looks up the PGP keys used by the account and its contacts.
type Keys interface {
	AccountKey() string
	ContactKey(barejid string) (string, bool)
}

// Record is a single entry in the chat log.
type Record struct {
	Contact  string
	Resource string
	Outgoing bool
	Body     string
	Mode     Mode
}

// Log receives chat log records after the log policy has been applied.
type Log interface {
	LogChat(Record) error
}
