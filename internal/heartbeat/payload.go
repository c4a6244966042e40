// Package heartbeat defines the signed message an agent sends and the
// authenticated fact set the pipeline derives from it.
package heartbeat

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"
)

var (
	ErrMissingSignature = errors.New("heartbeat: missing signature")
	ErrMalformedKey     = errors.New("heartbeat: malformed public key")
)

// Payload is the wire form of a heartbeat. Signature covers Canonical().
type Payload struct {
	ServerID    string            `json:"server_id"`
	ClusterID   string            `json:"cluster_id"`
	KeyVersion  int               `json:"key_version"`
	Nonce       int64             `json:"nonce"`
	SentAt      int64             `json:"sent_at"`
	PlayerCount int               `json:"player_count"`
	Capacity    int               `json:"capacity"`
	Status      map[string]string `json:"status,omitempty"`
	Signature   string            `json:"signature"`
}

// canonicalPayload fixes field order for signing. encoding/json sorts map
// keys, so the Status map encodes deterministically too.
type canonicalPayload struct {
	ServerID    string            `json:"server_id"`
	ClusterID   string            `json:"cluster_id"`
	KeyVersion  int               `json:"key_version"`
	Nonce       int64             `json:"nonce"`
	SentAt      int64             `json:"sent_at"`
	PlayerCount int               `json:"player_count"`
	Capacity    int               `json:"capacity"`
	Status      map[string]string `json:"status"`
}

// Canonical returns the byte encoding covered by the signature.
func (p *Payload) Canonical() ([]byte, error) {
	status := p.Status
	if status == nil {
		status = map[string]string{}
	}
	return json.Marshal(canonicalPayload{
		ServerID:    p.ServerID,
		ClusterID:   p.ClusterID,
		KeyVersion:  p.KeyVersion,
		Nonce:       p.Nonce,
		SentAt:      p.SentAt,
		PlayerCount: p.PlayerCount,
		Capacity:    p.Capacity,
		Status:      status,
	})
}

func (p *Payload) SentTime() time.Time {
	return time.Unix(p.SentAt, 0).UTC()
}

// Sign fills Signature using the cluster's private key.
func (p *Payload) Sign(signer ssh.Signer) error {
	data, err := p.Canonical()
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	sig, err := signer.Sign(nil, data)
	if err != nil {
		return fmt.Errorf("failed to sign payload: %w", err)
	}
	p.Signature = base64.StdEncoding.EncodeToString(sig.Blob)
	return nil
}

// VerifySignature checks Signature against an authorized-key formatted public key.
func (p *Payload) VerifySignature(authorizedKey string) error {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(authorizedKey))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if p.Signature == "" {
		return ErrMissingSignature
	}
	blob, err := base64.StdEncoding.DecodeString(p.Signature)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}
	data, err := p.Canonical()
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	return pub.Verify(data, &ssh.Signature{Format: pub.Type(), Blob: blob})
}

// Facts is the authenticated fact set stored as a job payload.
type Facts struct {
	ServerID    string            `json:"server_id"`
	ClusterID   string            `json:"cluster_id"`
	KeyVersion  int               `json:"key_version"`
	Nonce       int64             `json:"nonce"`
	SentAt      time.Time         `json:"sent_at"`
	ReceivedAt  time.Time         `json:"received_at"`
	PlayerCount int               `json:"player_count"`
	Capacity    int               `json:"capacity"`
	Status      map[string]string `json:"status,omitempty"`
}

// FactsFrom converts a verified payload; receivedAt is the ingest clock.
func FactsFrom(p *Payload, receivedAt time.Time) *Facts {
	return &Facts{
		ServerID:    p.ServerID,
		ClusterID:   p.ClusterID,
		KeyVersion:  p.KeyVersion,
		Nonce:       p.Nonce,
		SentAt:      p.SentTime(),
		ReceivedAt:  receivedAt.UTC(),
		PlayerCount: p.PlayerCount,
		Capacity:    p.Capacity,
		Status:      p.Status,
	}
}

func (f *Facts) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

func UnmarshalFacts(data []byte) (*Facts, error) {
	var f Facts
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode heartbeat facts: %w", err)
	}
	return &f, nil
}
