// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package encryption_test

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"testing"

	"mellium.im/communique/internal/encryption"
)

type testChat struct {
	t      *testing.T
	addr   string
	mode   encryption.Mode
	active int
}

func (c *testChat) Addr() string          { return c.addr }
func (c *testChat) Mode() encryption.Mode { return c.mode }
func (c *testChat) StateActive()          { c.active++ }
func (c *testChat) SetMode(m encryption.Mode) {
	if c.mode != encryption.None && m != encryption.None {
		c.t.Errorf("direct transition from %v to %v", c.mode, m)
	}
	c.mode = m
}

type sentMsg struct {
	to, body string
	pgp      bool
}

type testSender struct {
	sent []sentMsg
}

func (s *testSender) SendChat(_ context.Context, to, body string) (string, error) {
	s.sent = append(s.sent, sentMsg{to: to, body: body})
	return "id" + strconv.Itoa(len(s.sent)), nil
}

func (s *testSender) SendPGP(_ context.Context, to, envelope string) (string, error) {
	s.sent = append(s.sent, sentMsg{to: to, body: envelope, pgp: true})
	return "id" + strconv.Itoa(len(s.sent)), nil
}

type testLog struct {
	records []encryption.Record
}

func (l *testLog) LogChat(r encryption.Record) error {
	l.records = append(l.records, r)
	return nil
}

type testOTR struct {
	handle  bool
	started []string
	ended   []string
}

func (o *testOTR) Start(_ context.Context, j string) error { o.started = append(o.started, j); return nil }
func (o *testOTR) End(_ context.Context, j string) error   { o.ended = append(o.ended, j); return nil }
func (o *testOTR) Trust(string) error                      { return nil }
func (o *testOTR) Untrust(string) error                    { return nil }
func (o *testOTR) Secret(context.Context, string, string) error {
	return nil
}
func (o *testOTR) Question(context.Context, string, string, string) error {
	return nil
}
func (o *testOTR) Answer(context.Context, string, string) error {
	return nil
}
func (o *testOTR) OnMessageSend(_ context.Context, to, text string) (bool, error) {
	return o.handle, nil
}
func (o *testOTR) OnMessageRecv(_ context.Context, _, _, body string) (string, bool, bool, error) {
	if body == "?OTR heartbeat" {
		return "", false, false, nil
	}
	return body, true, false, nil
}

var errBadEnvelope = errors.New("bad envelope")

type testPGP struct{}

func (testPGP) Encrypt(text, keyID string) (string, error) {
	return "enc(" + keyID + ":" + text + ")", nil
}

func (testPGP) Decrypt(envelope string) (string, error) {
	if envelope == "garbage" {
		return "", errBadEnvelope
	}
	return "plain:" + envelope, nil
}

func (testPGP) Valid(keyID string) bool { return keyID == "OWNKEY" }

type testKeys map[string]string

func (k testKeys) AccountKey() string { return k[""] }
func (k testKeys) ContactKey(j string) (string, bool) {
	v, ok := k[j]
	return v, ok
}

type policies struct {
	pgpLog encryption.LogPolicy
	otr    encryption.OTRPolicy
}

func (p policies) PGPLog() encryption.LogPolicy    { return p.pgpLog }
func (p policies) OTRLog() encryption.LogPolicy    { return encryption.LogPlain }
func (p policies) OTRPolicy() encryption.OTRPolicy { return p.otr }

func newArbiter(t *testing.T, p policies, otr *testOTR) (*encryption.Arbiter, *testSender, *testLog) {
	s := &testSender{}
	l := &testLog{}
	opts := []encryption.Option{
		encryption.WithPGP(testPGP{}, testKeys{"": "OWNKEY", "juliet@example.net": "JULIETKEY"}),
	}
	if otr != nil {
		opts = append(opts, encryption.WithOTR(otr))
	}
	return encryption.New(s, l, p, opts...), s, l
}

func TestSend(t *testing.T) {
	for i, tc := range [...]struct {
		mode     encryption.Mode
		handle   bool
		pgpLog   encryption.LogPolicy
		wireMode encryption.Mode
		sent     []sentMsg
		logged   []string
	}{
		0: {
			mode:     encryption.None,
			wireMode: encryption.None,
			sent:     []sentMsg{{to: "juliet@example.net", body: "hi"}},
			logged:   []string{"hi"},
		},
		1: {
			mode:     encryption.OTR,
			handle:   true,
			wireMode: encryption.OTR,
			logged:   []string{"hi"},
		},
		2: {
			mode:     encryption.OTR,
			wireMode: encryption.None,
			sent:     []sentMsg{{to: "juliet@example.net", body: "hi"}},
			logged:   []string{"hi"},
		},
		3: {
			mode:     encryption.PGP,
			pgpLog:   encryption.LogRedact,
			wireMode: encryption.PGP,
			sent:     []sentMsg{{to: "juliet@example.net", body: "enc(JULIETKEY:hi)", pgp: true}},
			logged:   []string{encryption.Redacted},
		},
		4: {
			mode:     encryption.PGP,
			pgpLog:   encryption.LogOff,
			wireMode: encryption.PGP,
			sent:     []sentMsg{{to: "juliet@example.net", body: "enc(JULIETKEY:hi)", pgp: true}},
		},
		5: {
			mode:     encryption.PGP,
			pgpLog:   encryption.LogPlain,
			wireMode: encryption.PGP,
			sent:     []sentMsg{{to: "juliet@example.net", body: "enc(JULIETKEY:hi)", pgp: true}},
			logged:   []string{"hi"},
		},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			a, s, l := newArbiter(t, policies{pgpLog: tc.pgpLog}, &testOTR{handle: tc.handle})
			c := &testChat{t: t, addr: "juliet@example.net", mode: tc.mode}
			res, err := a.Send(context.Background(), c, "juliet@example.net", "hi")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Mode != tc.wireMode {
				t.Errorf("wrong wire mode: want=%v, got=%v", tc.wireMode, res.Mode)
			}
			if c.active != 1 {
				t.Errorf("chat state should be set active once, got %d", c.active)
			}
			if len(s.sent) != len(tc.sent) {
				t.Fatalf("wrong number of sent messages: want=%v, got=%v", tc.sent, s.sent)
			}
			for i, m := range tc.sent {
				if s.sent[i] != m {
					t.Errorf("wrong message sent: want=%v, got=%v", m, s.sent[i])
				}
			}
			if len(l.records) != len(tc.logged) {
				t.Fatalf("wrong number of log records: want=%v, got=%v", tc.logged, l.records)
			}
			for i, body := range tc.logged {
				if l.records[i].Body != body {
					t.Errorf("wrong log body: want=%q, got=%q", body, l.records[i].Body)
				}
			}
		})
	}
}

func TestSendPolicyAlways(t *testing.T) {
	a, s, _ := newArbiter(t, policies{otr: encryption.PolicyAlways}, &testOTR{})
	c := &testChat{t: t, addr: "juliet@example.net"}
	_, err := a.Send(context.Background(), c, "juliet@example.net", "hi")
	if !errors.Is(err, encryption.ErrPolicyAlways) {
		t.Errorf("wrong error: want=%v, got=%v", encryption.ErrPolicyAlways, err)
	}
	if len(s.sent) != 0 {
		t.Errorf("nothing should be sent, got %v", s.sent)
	}
}

func TestReceive(t *testing.T) {
	for i, tc := range [...]struct {
		mode     encryption.Mode
		body     string
		envelope string
		noPGP    bool
		outMode  encryption.Mode
		decision encryption.Decision
		logged   []encryption.Record
	}{
		0: {
			mode:     encryption.OTR,
			body:     "This message is encrypted",
			envelope: "secret",
			outMode:  encryption.OTR,
			decision: encryption.Decision{Warning: encryption.WarnPGPInOTR},
		},
		1: {
			mode:     encryption.None,
			envelope: "secret",
			outMode:  encryption.PGP,
			decision: encryption.Decision{Show: true, Text: "plain:secret", Decrypted: true},
			logged:   []encryption.Record{{Contact: "juliet@example.net", Resource: "balcony", Body: "plain:secret", Mode: encryption.PGP}},
		},
		2: {
			mode:     encryption.PGP,
			body:     "This message is encrypted",
			envelope: "garbage",
			outMode:  encryption.None,
			decision: encryption.Decision{Show: true, Text: "This message is encrypted"},
			logged:   []encryption.Record{{Contact: "juliet@example.net", Resource: "balcony", Body: "This message is encrypted", Mode: encryption.None}},
		},
		3: {
			mode:     encryption.PGP,
			body:     "hello",
			outMode:  encryption.None,
			decision: encryption.Decision{Show: true, Text: "hello", Notice: encryption.NoticePGPDisabled},
			logged:   []encryption.Record{{Contact: "juliet@example.net", Resource: "balcony", Body: "hello", Mode: encryption.None}},
		},
		4: {
			mode:     encryption.None,
			body:     "?OTR heartbeat",
			outMode:  encryption.None,
			decision: encryption.Decision{},
		},
		5: {
			mode:     encryption.None,
			body:     "hello",
			outMode:  encryption.None,
			decision: encryption.Decision{Show: true, Text: "hello"},
			logged:   []encryption.Record{{Contact: "juliet@example.net", Resource: "balcony", Body: "hello", Mode: encryption.None}},
		},
		6: {
			mode:     encryption.None,
			envelope: "secret",
			noPGP:    true,
			outMode:  encryption.None,
			decision: encryption.Decision{Show: true, Text: "secret"},
			logged:   []encryption.Record{{Contact: "juliet@example.net", Resource: "balcony", Body: "secret", Mode: encryption.None}},
		},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			var a *encryption.Arbiter
			l := &testLog{}
			if tc.noPGP {
				a = encryption.New(&testSender{}, l, policies{pgpLog: encryption.LogPlain})
			} else {
				a, _, l = newArbiter(t, policies{pgpLog: encryption.LogPlain}, &testOTR{})
			}
			c := &testChat{t: t, addr: "juliet@example.net", mode: tc.mode}
			d, err := a.Receive(context.Background(), c, "balcony", tc.body, tc.envelope)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d != tc.decision {
				t.Errorf("wrong decision: want=%+v, got=%+v", tc.decision, d)
			}
			if c.mode != tc.outMode {
				t.Errorf("wrong mode after receive: want=%v, got=%v", tc.outMode, c.mode)
			}
			if len(l.records) != len(tc.logged) {
				t.Fatalf("wrong log records: want=%+v, got=%+v", tc.logged, l.records)
			}
			for i, r := range tc.logged {
				if l.records[i] != r {
					t.Errorf("wrong log record: want=%+v, got=%+v", r, l.records[i])
				}
			}
		})
	}
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	otr := &testOTR{}
	a, _, _ := newArbiter(t, policies{}, otr)

	c := &testChat{t: t, addr: "juliet@example.net"}
	if err := a.StartPGP(c); err != nil {
		t.Fatalf("error starting PGP: %v", err)
	}
	if err := a.StartOTR(ctx, c); !errors.Is(err, encryption.ErrEndOtherSession) {
		t.Errorf("starting OTR during PGP: want=%v, got=%v", encryption.ErrEndOtherSession, err)
	}
	if err := a.Secure(ctx, c); !errors.Is(err, encryption.ErrEndOtherSession) {
		t.Errorf("securing OTR during PGP: want=%v, got=%v", encryption.ErrEndOtherSession, err)
	}
	if c.mode != encryption.PGP {
		t.Errorf("mode changed by rejected transition: %v", c.mode)
	}
	if len(otr.ended) != 1 {
		t.Errorf("OTR session established during PGP should be ended")
	}
	if err := a.StartPGP(c); !errors.Is(err, encryption.ErrAlreadyActive) {
		t.Errorf("restarting PGP: want=%v, got=%v", encryption.ErrAlreadyActive, err)
	}
	if err := a.EndPGP(c); err != nil {
		t.Fatalf("error ending PGP: %v", err)
	}
	if err := a.EndPGP(c); !errors.Is(err, encryption.ErrNotActive) {
		t.Errorf("ending PGP twice: want=%v, got=%v", encryption.ErrNotActive, err)
	}

	if err := a.StartOTR(ctx, c); err != nil {
		t.Fatalf("error starting OTR: %v", err)
	}
	if c.mode != encryption.None {
		t.Errorf("OTR mode should wait for the session to be secure, got %v", c.mode)
	}
	if err := a.Secure(ctx, c); err != nil {
		t.Fatalf("error securing OTR: %v", err)
	}
	if err := a.StartPGP(c); !errors.Is(err, encryption.ErrEndOtherSession) {
		t.Errorf("starting PGP during OTR: want=%v, got=%v", encryption.ErrEndOtherSession, err)
	}
	if err := a.EndOTR(ctx, c); err != nil {
		t.Fatalf("error ending OTR: %v", err)
	}
	if c.mode != encryption.None {
		t.Errorf("wrong mode after ending OTR: %v", c.mode)
	}
}

func TestStartPGPKeys(t *testing.T) {
	a, _, _ := newArbiter(t, policies{}, nil)
	c := &testChat{t: t, addr: "romeo@example.net"}
	if err := a.StartPGP(c); !errors.Is(err, encryption.ErrNoContactKey) {
		t.Errorf("wrong error: want=%v, got=%v", encryption.ErrNoContactKey, err)
	}

	noOwn := encryption.New(&testSender{}, nil, nil, encryption.WithPGP(testPGP{}, testKeys{"romeo@example.net": "K"}))
	if err := noOwn.StartPGP(c); !errors.Is(err, encryption.ErrNoOwnKey) {
		t.Errorf("wrong error: want=%v, got=%v", encryption.ErrNoOwnKey, err)
	}

	none := encryption.New(&testSender{}, nil, nil)
	if err := none.StartPGP(c); !errors.Is(err, encryption.ErrUnavailable) {
		t.Errorf("wrong error: want=%v, got=%v", encryption.ErrUnavailable, err)
	}
	if err := none.StartOTR(context.Background(), c); !errors.Is(err, encryption.ErrUnavailable) {
		t.Errorf("wrong error: want=%v, got=%v", encryption.ErrUnavailable, err)
	}
}

// Drive the arbiter with random operations; testChat fails the test if a
// direct OTR/PGP switch is ever made.
func TestRandomTransitions(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newArbiter(t, policies{}, &testOTR{handle: true})
	c := &testChat{t: t, addr: "juliet@example.net"}
	r := rand.New(rand.NewSource(1))
	envelopes := []string{"", "secret", "garbage"}
	for i := 0; i < 2000; i++ {
		switch r.Intn(8) {
		case 0:
			_ = a.StartPGP(c)
		case 1:
			_ = a.EndPGP(c)
		case 2:
			_ = a.StartOTR(ctx, c)
		case 3:
			_ = a.Secure(ctx, c)
		case 4:
			a.Insecure(c)
		case 5:
			_ = a.EndOTR(ctx, c)
		case 6:
			_, _ = a.Receive(ctx, c, "balcony", "body", envelopes[r.Intn(len(envelopes))])
		case 7:
			a.Reset(ctx, c)
		}
	}
}
