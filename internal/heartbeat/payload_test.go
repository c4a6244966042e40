package heartbeat

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

func newSigner(t *testing.T) (ssh.Signer, string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return signer, string(ssh.MarshalAuthorizedKey(signer.PublicKey()))
}

func samplePayload() *Payload {
	return &Payload{
		ServerID:    "srv-1",
		ClusterID:   "cl-1",
		KeyVersion:  1,
		Nonce:       42,
		SentAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Unix(),
		PlayerCount: 10,
		Capacity:    20,
		Status:      map[string]string{"map": "de_dust2", "mode": "casual"},
	}
}

func TestCanonicalIsDeterministic(t *testing.T) {
	a := samplePayload()
	b := samplePayload()
	b.Status = map[string]string{"mode": "casual", "map": "de_dust2"}
	b.Signature = "ignored"

	ca, err := a.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	cb, err := b.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if string(ca) != string(cb) {
		t.Fatalf("canonical encodings differ:\n%s\n%s", ca, cb)
	}
}

func TestSignAndVerify(t *testing.T) {
	signer, pub := newSigner(t)
	p := samplePayload()
	if err := p.Sign(signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := p.VerifySignature(pub); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	p.PlayerCount = 11
	if err := p.VerifySignature(pub); err == nil {
		t.Fatalf("expected tampered payload to fail verification")
	}
}

func TestVerifyWithOtherKeyFails(t *testing.T) {
	signer, _ := newSigner(t)
	_, otherPub := newSigner(t)
	p := samplePayload()
	if err := p.Sign(signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := p.VerifySignature(otherPub); err == nil {
		t.Fatalf("expected verification with a different key to fail")
	}
}

func TestVerifyErrors(t *testing.T) {
	_, pub := newSigner(t)
	p := samplePayload()
	if err := p.VerifySignature(pub); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
	p.Signature = "AAAA"
	if err := p.VerifySignature("not a key"); !errors.Is(err, ErrMalformedKey) {
		t.Fatalf("expected ErrMalformedKey, got %v", err)
	}
}

func TestFactsRoundTripKeepsReceivedAt(t *testing.T) {
	received := time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC)
	f := FactsFrom(samplePayload(), received)
	data, err := f.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalFacts(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.ReceivedAt.Equal(received) || got.Nonce != 42 || got.Status["map"] != "de_dust2" {
		t.Fatalf("unexpected facts: %+v", got)
	}
}
