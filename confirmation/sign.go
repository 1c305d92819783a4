package confirmation

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// signingPayload builds the canonical bytes a record is signed over:
// (transferId, routerId, amount, timestamp). Canonical means fixed field
// order and a fixed timestamp format, so two routers computing over
// identical inputs produce identical bytes.
func signingPayload(r *Record) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s|%s", r.TransferID, r.RouterID, r.Metadata.Amount, r.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")))
}

// sign computes r.Signature in place using priv, base64-encoding the raw
// Ed25519 signature for storage as a string field.
func sign(r *Record, priv ed25519.PrivateKey) {
	if len(priv) == 0 {
		return
	}
	sig := ed25519.Sign(priv, signingPayload(r))
	r.Signature = base64.StdEncoding.EncodeToString(sig)
}

// VerifyRecord checks r.Signature against pub. Records written without a
// signing key (empty Signature) are reported unverifiable, not forged.
func VerifyRecord(r *Record, pub ed25519.PublicKey) (bool, error) {
	if r.Signature == "" {
		return false, fmt.Errorf("confirmation record %s has no signature", r.ID)
	}
	sig, err := base64.StdEncoding.DecodeString(r.Signature)
	if err != nil {
		return false, fmt.Errorf("confirmation record %s: malformed signature: %w", r.ID, err)
	}
	return ed25519.Verify(pub, signingPayload(r), sig), nil
}
