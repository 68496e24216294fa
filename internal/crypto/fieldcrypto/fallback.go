package fieldcrypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mbruegge/gradesync/internal/errs"
)

// decoderStrategy is one interpretation of a stored field string. The fallback
// order is data, not nested recovery logic, so it stays auditable and testable.
type decoderStrategy struct {
	name string
	fn   func(c *Codec, field string) (any, error)
}

// decodeChain is tried in order until a strategy succeeds. rawDecode is total,
// so Decrypt always produces a value.
var decodeChain = []decoderStrategy{
	{name: "aead", fn: aeadDecode},
	{name: "json", fn: jsonDecode},
	{name: "raw", fn: rawDecode},
}

// aeadDecode base64-decodes, splits nonce from ciphertext and authenticates.
func aeadDecode(c *Codec, field string) (any, error) {
	if c.degraded {
		return nil, errs.ErrCryptoUnavailable
	}
	blob, err := base64.StdEncoding.DecodeString(field)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64", errs.ErrDecryptionFailed)
	}
	if len(blob) <= nonceSize {
		return nil, fmt.Errorf("%w: too short", errs.ErrDecryptionFailed)
	}
	plain, err := c.aead.Open(nil, blob[:nonceSize], blob[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrDecryptionFailed, err)
	}
	var v any
	if err := json.Unmarshal(plain, &v); err != nil {
		return nil, fmt.Errorf("%w: bad payload", errs.ErrDecryptionFailed)
	}
	return v, nil
}

// jsonDecode treats the field as legacy plaintext JSON (pre-encryption data).
func jsonDecode(_ *Codec, field string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(field), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// rawDecode returns the field string unchanged. Total; terminates the chain.
func rawDecode(_ *Codec, field string) (any, error) {
	return field, nil
}
