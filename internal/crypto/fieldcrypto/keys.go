// Package fieldcrypto derives per-owner keys and encrypts individual document
// fields (not whole documents) for storage in the remote collection.
package fieldcrypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters. The salt is a fixed application-wide constant;
// there is deliberately no per-user salt (the input is the owner id itself).
const (
	kdfIterations = 100_000
	keyLen        = 32 // AES-256

	// fieldKeySalt is baked into every build. Changing it orphans all
	// previously encrypted fields.
	fieldKeySalt = "gradesync.fieldkey.v1"
)

// DeriveKey derives the owner's 256-bit field encryption key from the owner id
// via PBKDF2-SHA256. Deterministic: same owner id, same key, on every device.
//
// Security note: the owner id is typically a non-secret account identifier, so
// this scheme is obfuscation against casual inspection of the data store, not
// confidentiality against anyone who can authenticate as the owner or who
// holds this algorithm and the id. It is not a security boundary against the
// service operator. Do not present it to users as end-to-end encryption.
func DeriveKey(ownerID string) []byte {
	return pbkdf2.Key([]byte(ownerID), []byte(fieldKeySalt), kdfIterations, keyLen, sha256.New)
}
