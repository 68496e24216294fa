// Package sync reconciles one owner's local subject/grade snapshot against the
// remote document store, encrypting fields on the way out and decrypting with
// fallback on the way in.
package sync

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mbruegge/gradesync/internal/crypto/fieldcrypto"
	"github.com/mbruegge/gradesync/internal/local"
	"github.com/mbruegge/gradesync/internal/remote"
)

// Context carries everything one owner's sync session needs. It replaces
// module-level state: construct once per session, pass by reference, and use
// Init/Shutdown instead of import-time side effects.
type Context struct {
	OwnerID string
	Remote  remote.Store
	Local   *local.Store // optional; Pull persists the snapshot when set
	Codec   *fieldcrypto.Codec
	Log     *zap.Logger

	initialized bool
}

// NewContext builds an uninitialized session context.
func NewContext(ownerID string, store remote.Store, log *zap.Logger) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	return &Context{OwnerID: ownerID, Remote: store, Log: log}
}

// Init derives the owner's field key and constructs the codec. Key derivation
// is deliberately expensive; call once per session, not per operation.
func (c *Context) Init(_ context.Context) error {
	if c.OwnerID == "" {
		return errors.New("sync context: empty owner id")
	}
	if c.Remote == nil {
		return errors.New("sync context: no remote store")
	}
	if c.Codec == nil {
		c.Codec = fieldcrypto.New(c.OwnerID, c.Log)
	}
	c.initialized = true
	return nil
}

// Shutdown releases session resources.
func (c *Context) Shutdown(_ context.Context) error {
	c.initialized = false
	if c.Local != nil {
		return c.Local.Close()
	}
	return nil
}
