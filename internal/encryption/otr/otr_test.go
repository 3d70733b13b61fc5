// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package otr_test

import (
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	xotr "golang.org/x/crypto/otr"

	"mellium.im/communique/internal/encryption/otr"
)

const (
	romeo  = "romeo@example.net"
	juliet = "juliet@example.com"
)

type sent struct {
	to   string
	body string
}

// peer records everything an engine tells it.
type peer struct {
	out       []sent
	secure    []bool
	insecure  int
	questions []string
	auth      []bool
}

func (p *peer) SendOTR(_ context.Context, to, body string) error {
	p.out = append(p.out, sent{to: to, body: body})
	return nil
}
func (p *peer) OTRSecure(_ context.Context, _ string, trusted bool) { p.secure = append(p.secure, trusted) }
func (p *peer) OTRInsecure(string)                                  { p.insecure++ }
func (p *peer) OTRQuestion(_, q string)                             { p.questions = append(p.questions, q) }
func (p *peer) OTRAuthenticated(_ string, ok bool)                  { p.auth = append(p.auth, ok) }

type side struct {
	addr   string
	engine *otr.Engine
	peer   *peer
}

func newSide(t *testing.T, addr string, opts ...otr.Option) *side {
	t.Helper()
	key := new(xotr.PrivateKey)
	key.Generate(rand.Reader)
	s := &side{addr: addr, engine: otr.New(key, opts...), peer: &peer{}}
	s.engine.Attach(s.peer)
	return s
}

// pump delivers queued messages in both directions until neither side has
// anything left to send.
// It returns the displayed messages received by each side.
func pump(t *testing.T, a, b *side) (toA, toB []string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; len(a.peer.out) > 0 || len(b.peer.out) > 0; i++ {
		if i > 50 {
			t.Fatalf("conversation did not settle")
		}
		for _, d := range []struct {
			from, to *side
			got      *[]string
		}{{from: a, to: b, got: &toB}, {from: b, to: a, got: &toA}} {
			msgs := d.from.peer.out
			d.from.peer.out = nil
			for _, m := range msgs {
				if !strings.HasPrefix(m.to, d.to.addr) {
					t.Fatalf("message sent to wrong address: want=%s, got=%s", d.to.addr, m.to)
				}
				text, show, _, err := d.to.engine.OnMessageRecv(ctx, d.from.addr, "", m.body)
				if err != nil {
					t.Fatalf("error receiving: %v", err)
				}
				if show {
					*d.got = append(*d.got, text)
				}
			}
		}
	}
	return toA, toB
}

func secure(t *testing.T, a, b *side) {
	t.Helper()
	if err := a.engine.Start(context.Background(), b.addr); err != nil {
		t.Fatalf("error starting session: %v", err)
	}
	pump(t, a, b)
	if len(a.peer.secure) != 1 || len(b.peer.secure) != 1 {
		t.Fatalf("session not secured: a=%v, b=%v", a.peer.secure, b.peer.secure)
	}
}

func TestSession(t *testing.T) {
	ctx := context.Background()
	a, b := newSide(t, romeo), newSide(t, juliet)

	handled, err := a.engine.OnMessageSend(ctx, juliet, "Wherefore art thou")
	if handled || err != nil {
		t.Fatalf("plain message handled before session: handled=%t, err=%v", handled, err)
	}
	text, show, decrypted, err := b.engine.OnMessageRecv(ctx, romeo, "orchard", "Wherefore art thou")
	if err != nil || !show || decrypted || text != "Wherefore art thou" {
		t.Fatalf("wrong plain receive: text=%q, show=%t, decrypted=%t, err=%v", text, show, decrypted, err)
	}

	secure(t, a, b)
	if a.peer.secure[0] || b.peer.secure[0] {
		t.Errorf("new session should not be trusted")
	}

	handled, err = a.engine.OnMessageSend(ctx, juliet, "O gentle Romeo")
	if !handled || err != nil {
		t.Fatalf("message not encrypted: handled=%t, err=%v", handled, err)
	}
	if body := a.peer.out[0].body; !strings.HasPrefix(body, "?OTR:") {
		t.Errorf("message sent in the clear: %q", body)
	}
	_, toB := pump(t, a, b)
	if !reflect.DeepEqual(toB, []string{"O gentle Romeo"}) {
		t.Errorf("wrong messages:\nwant=%v,\n got=%v", []string{"O gentle Romeo"}, toB)
	}

	if err := a.engine.End(ctx, juliet); err != nil {
		t.Fatalf("error ending session: %v", err)
	}
	pump(t, a, b)
	if b.peer.insecure != 1 {
		t.Errorf("wrong number of insecure calls: want=1, got=%d", b.peer.insecure)
	}
	if handled, _ := b.engine.OnMessageSend(ctx, romeo, "Farewell"); handled {
		t.Errorf("message handled after session ended")
	}
}

var authTestCases = [...]struct {
	question string
	secret   string
	answer   string
	ok       bool
}{
	0: {secret: "Capulet", answer: "Capulet", ok: true},
	1: {question: "Whose daughter?", secret: "Capulet", answer: "Capulet", ok: true},
	2: {question: "Whose daughter?", secret: "Capulet", answer: "Montague"},
}

func TestAuthenticate(t *testing.T) {
	for i, tc := range authTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			ctx := context.Background()
			a, b := newSide(t, romeo), newSide(t, juliet)
			secure(t, a, b)

			var err error
			if tc.question == "" {
				err = a.engine.Secret(ctx, juliet, tc.secret)
			} else {
				err = a.engine.Question(ctx, juliet, tc.question, tc.secret)
			}
			if err != nil {
				t.Fatalf("error starting authentication: %v", err)
			}
			pump(t, a, b)
			if !reflect.DeepEqual(b.peer.questions, []string{tc.question}) {
				t.Fatalf("wrong question:\nwant=%q,\n got=%q", tc.question, b.peer.questions)
			}
			if err := b.engine.Answer(ctx, romeo, tc.answer); err != nil {
				t.Fatalf("error answering: %v", err)
			}
			pump(t, a, b)
			for _, got := range [][]bool{a.peer.auth, b.peer.auth} {
				if tc.ok && !reflect.DeepEqual(got, []bool{true}) {
					t.Errorf("authentication did not succeed: a=%v, b=%v", a.peer.auth, b.peer.auth)
				}
				for _, ok := range got {
					if ok && !tc.ok {
						t.Errorf("authentication succeeded with the wrong answer")
					}
				}
			}
			fp, err := a.engine.TheirFingerprint(juliet)
			if err != nil {
				t.Fatalf("error getting fingerprint: %v", err)
			}
			if trusted := a.engine.IsTrusted(juliet, fp); trusted != tc.ok {
				t.Errorf("wrong trust: want=%t, got=%t", tc.ok, trusted)
			}
		})
	}
}

func TestTrust(t *testing.T) {
	dir := t.TempDir()
	trustFile := filepath.Join(dir, "otr_trust.yml")
	a, b := newSide(t, romeo, otr.TrustFile(trustFile)), newSide(t, juliet)

	if err := a.engine.Trust(juliet); !errors.Is(err, otr.ErrNoSession) {
		t.Errorf("wrong error trusting without a session: want=%v, got=%v", otr.ErrNoSession, err)
	}
	secure(t, a, b)
	if err := a.engine.Trust(juliet); err != nil {
		t.Fatalf("error trusting: %v", err)
	}
	fp := b.engine.Fingerprint()
	if got, _ := a.engine.TheirFingerprint(juliet); got != fp {
		t.Errorf("wrong fingerprint:\nwant=%s,\n got=%s", fp, got)
	}

	// Trust survives in the file.
	key := new(xotr.PrivateKey)
	key.Generate(rand.Reader)
	if reloaded := otr.New(key, otr.TrustFile(trustFile)); !reloaded.IsTrusted(juliet, fp) {
		t.Errorf("trust was not persisted")
	}

	if err := a.engine.Untrust(juliet); err != nil {
		t.Fatalf("error untrusting: %v", err)
	}
	if a.engine.IsTrusted(juliet, fp) {
		t.Errorf("fingerprint still trusted")
	}
}

func TestLoadKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otr.key")
	key, err := otr.LoadKey(path)
	if err != nil {
		t.Fatalf("error generating key: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("key was not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("wrong key permissions: want=%o, got=%o", 0600, perm)
	}
	again, err := otr.LoadKey(path)
	if err != nil {
		t.Fatalf("error loading key: %v", err)
	}
	if want, got := otr.FormatFingerprint(key.PublicKey.Fingerprint()), otr.FormatFingerprint(again.PublicKey.Fingerprint()); want != got {
		t.Errorf("wrong key loaded:\nwant=%s,\n got=%s", want, got)
	}

	if err := os.WriteFile(path, []byte("not a key"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := otr.LoadKey(path); !errors.Is(err, otr.ErrBadKey) {
		t.Errorf("wrong error: want=%v, got=%v", otr.ErrBadKey, err)
	}
}

func TestFormatFingerprint(t *testing.T) {
	const want = "01234567 89ABCDEF 01"
	if got := otr.FormatFingerprint([]byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0x01}); got != want {
		t.Errorf("wrong fingerprint:\nwant=%s,\n got=%s", want, got)
	}
}
