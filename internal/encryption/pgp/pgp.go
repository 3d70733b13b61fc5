// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package pgp implements XEP-0027: Current Jabber OpenPGP Usage.
//
// Envelopes are ASCII armored OpenPGP messages with the armor header, armor
// headers, and footer removed.
package pgp // import "mellium.im/communique/internal/encryption/pgp"

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"sort"
	"strings"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
)

// Namespaces used by XEP-0027.
const (
	NSEncrypted = "jabber:x:encrypted"
	NSSigned    = "jabber:x:signed"
)

// Errors returned by the keyring.
var (
	ErrNoKey     = errors.New("pgp: no such key")
	ErrEnvelope  = errors.New("pgp: malformed envelope")
	ErrPassword  = errors.New("pgp: could not unlock private key")
	messageBegin = "-----BEGIN " + messageType + "-----"
	messageEnd   = "-----END " + messageType + "-----"
)

const messageType = "PGP MESSAGE"

// Key describes a key in the keyring.
type Key struct {
	ID      string
	Name    string
	Private bool
}

// Keyring holds the keys used to encrypt and decrypt messages.
type Keyring struct {
	entities   openpgp.EntityList
	passphrase []byte
}

// New returns a keyring containing entities.
// Passphrase, if not nil, is used to unlock encrypted private keys.
func New(entities openpgp.EntityList, passphrase []byte) *Keyring {
	return &Keyring{entities: entities, passphrase: passphrase}
}

// Read reads an armored keyring.
func Read(r io.Reader, passphrase []byte) (*Keyring, error) {
	el, err := openpgp.ReadArmoredKeyRing(r)
	if err != nil {
		return nil, fmt.Errorf("pgp: reading keyring: %w", err)
	}
	return New(el, passphrase), nil
}

// Load reads an armored keyring from a file.
func Load(path string, passphrase []byte) (*Keyring, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, passphrase)
}

func normalizeID(keyID string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimPrefix(keyID, "0x"), "0X"))
}

func (k *Keyring) entity(keyID string) *openpgp.Entity {
	id := normalizeID(keyID)
	if id == "" {
		return nil
	}
	for _, e := range k.entities {
		long := e.PrimaryKey.KeyIdString()
		if long == id || strings.HasSuffix(long, id) && len(id) >= 8 {
			return e
		}
		for _, sub := range e.Subkeys {
			if sub.PublicKey.KeyIdString() == id {
				return e
			}
		}
	}
	return nil
}

// Keys lists the keys in the keyring sorted by ID.
func (k *Keyring) Keys() []Key {
	out := make([]Key, 0, len(k.entities))
	for _, e := range k.entities {
		key := Key{
			ID:      e.PrimaryKey.KeyIdString(),
			Private: e.PrivateKey != nil,
		}
		for name := range e.Identities {
			if key.Name == "" || name < key.Name {
				key.Name = name
			}
		}
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Valid reports whether keyID names a key in the keyring.
func (k *Keyring) Valid(keyID string) bool {
	return k.entity(keyID) != nil
}

// Encrypt encrypts plaintext to keyID and returns the envelope.
func (k *Keyring) Encrypt(plaintext, keyID string) (string, error) {
	e := k.entity(keyID)
	if e == nil {
		return "", ErrNoKey
	}
	var buf bytes.Buffer
	aw, err := armor.Encode(&buf, messageType, nil)
	if err != nil {
		return "", err
	}
	w, err := openpgp.Encrypt(aw, []*openpgp.Entity{e}, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("pgp: encrypting: %w", err)
	}
	if _, err = io.WriteString(w, plaintext); err != nil {
		return "", err
	}
	if err = w.Close(); err != nil {
		return "", err
	}
	if err = aw.Close(); err != nil {
		return "", err
	}
	return Strip(buf.String())
}

// Decrypt decrypts an envelope with a private key from the keyring.
func (k *Keyring) Decrypt(envelope string) (string, error) {
	block, err := armor.Decode(strings.NewReader(Wrap(envelope)))
	if err != nil {
		return "", fmt.Errorf("pgp: decoding envelope: %w", err)
	}
	tried := false
	prompt := func(keys []openpgp.Key, symmetric bool) ([]byte, error) {
		if tried || symmetric || k.passphrase == nil {
			return nil, ErrPassword
		}
		tried = true
		for _, key := range keys {
			if key.PrivateKey != nil && key.PrivateKey.Encrypted {
				if err := key.PrivateKey.Decrypt(k.passphrase); err != nil {
					return nil, ErrPassword
				}
			}
		}
		return nil, nil
	}
	md, err := openpgp.ReadMessage(block.Body, k.entities, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("pgp: decrypting: %w", err)
	}
	plaintext, err := ioutil.ReadAll(md.UnverifiedBody)
	if err != nil {
		return "", fmt.Errorf("pgp: decrypting: %w", err)
	}
	return string(plaintext), nil
}

// Strip turns an armored message into an envelope.
func Strip(armored string) (string, error) {
	lines := strings.Split(strings.ReplaceAll(armored, "\r\n", "\n"), "\n")
	start, end := -1, -1
	for i, l := range lines {
		switch strings.TrimSpace(l) {
		case messageBegin:
			start = i
		case messageEnd:
			end = i
		}
	}
	if start < 0 || end < start {
		return "", ErrEnvelope
	}
	body := lines[start+1 : end]
	// Armor headers end at the first blank line.
	for i, l := range body {
		if strings.TrimSpace(l) == "" {
			body = body[i+1:]
			break
		}
	}
	return strings.Join(body, "\n"), nil
}

// Wrap turns an envelope back into an armored message.
func Wrap(envelope string) string {
	return messageBegin + "\n\n" + strings.TrimSpace(envelope) + "\n" + messageEnd + "\n"
}
