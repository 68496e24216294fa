package fieldcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/mbruegge/gradesync/internal/errs"
)

const nonceSize = 12 // GCM standard

// Codec encrypts and decrypts single JSON-serializable field values for one
// owner. When the AEAD cannot be constructed the codec degrades to plain JSON
// serialization; the degraded state is observable via Degraded so operators
// can detect owners whose data is stored without encryption.
type Codec struct {
	aead     cipher.AEAD
	degraded bool
	log      *zap.Logger
}

// New builds a codec for the owner, deriving the key with DeriveKey.
// AEAD construction failure degrades instead of failing: the returned codec is
// usable but stores plaintext, and the condition is logged as a warning.
func New(ownerID string, log *zap.Logger) *Codec {
	if log == nil {
		log = zap.NewNop()
	}
	aead, err := newAEAD(DeriveKey(ownerID))
	if err != nil {
		log.Warn("field encryption unavailable, storing plaintext",
			zap.String("owner", ownerID),
			zap.Error(fmt.Errorf("%w: %v", errs.ErrCryptoUnavailable, err)))
		return &Codec{degraded: true, log: log}
	}
	return &Codec{aead: aead, log: log}
}

// NewWithKey builds a codec from an already-derived 32-byte key.
func NewWithKey(key []byte, log *zap.Logger) (*Codec, error) {
	if log == nil {
		log = zap.NewNop()
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrCryptoUnavailable, err)
	}
	return &Codec{aead: aead, log: log}, nil
}

// NewPlaintext builds an explicitly degraded codec (no confidentiality).
func NewPlaintext(log *zap.Logger) *Codec {
	if log == nil {
		log = zap.NewNop()
	}
	return &Codec{degraded: true, log: log}
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Degraded reports whether the codec stores plaintext instead of ciphertext.
func (c *Codec) Degraded() bool { return c.degraded }

// Encrypt serializes value to JSON and seals it under a fresh random nonce,
// returning base64(nonce||ciphertext). Two calls with the same value yield
// different outputs. A nil value is a no-op and returns the empty string;
// callers omit the field rather than storing an encrypted "null".
func (c *Codec) Encrypt(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	plain, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode field: %w", err)
	}
	if c.degraded {
		return string(plain), nil
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := make([]byte, 0, nonceSize+len(plain)+c.aead.Overhead())
	out = append(out, nonce...)
	out = append(out, c.aead.Seal(nil, nonce, plain, nil)...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt recovers a field value, trying each decoder strategy in order:
// AEAD envelope, then plain JSON, then the raw string unchanged. It never
// returns an error for malformed input; historical plaintext values stay
// readable forever. An empty field decodes to nil.
func (c *Codec) Decrypt(field string) any {
	if field == "" {
		return nil
	}
	for _, s := range decodeChain {
		v, err := s.fn(c, field)
		if err == nil {
			return v
		}
		c.log.Debug("field decode strategy failed",
			zap.String("strategy", s.name), zap.Error(err))
	}
	// rawDecode cannot fail; unreachable.
	return field
}

// DecryptNumber decrypts a numeric field, returning 0 for empty, missing or
// non-numeric input so stale UI-facing values never surface as errors.
func (c *Codec) DecryptNumber(field string) float64 {
	switch v := c.Decrypt(field).(type) {
	case float64:
		return v
	case nil:
		return 0
	default:
		return 0
	}
}
