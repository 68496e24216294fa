// Package bridgecodec implements the mobile bridge envelope: a tagged Base64
// encoding used by the companion mobile client when the strong field codec is
// unavailable and on the bridge wire protocol.
//
// This is obfuscation, not encryption. The envelope provides no
// confidentiality; its only guarantee is the ownership assertion on decode.
// It must never be mistaken for the AEAD field codec in fieldcrypto.
package bridgecodec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mbruegge/gradesync/internal/errs"
)

type envelope struct {
	OwnerID   string          `json:"ownerId"`
	Timestamp int64           `json:"timestamp"` // unix millis at encode time
	Payload   json.RawMessage `json:"payload"`
}

// Encode wraps payload as base64(JSON{ownerId, timestamp, payload}).
func Encode(ownerID string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	env, err := json.Marshal(envelope{
		OwnerID:   ownerID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   raw,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(env), nil
}

// Decode unwraps an envelope into out, asserting that the embedded owner
// matches the caller. A mismatch is a hard failure (errs.ErrOwnershipMismatch):
// unlike the field codec's fallback chain, this check is access control, not
// format compatibility, and is never softened.
func Decode(ownerID, enc string, out any) error {
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return fmt.Errorf("envelope not base64: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("envelope not JSON: %w", err)
	}
	if env.OwnerID != ownerID {
		return &errs.OwnershipError{Want: ownerID, Got: env.OwnerID}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Payload, out)
}
