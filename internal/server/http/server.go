// Package httpserver exposes the mobile bridge endpoints. The bridge runs the
// field codec server-side for companion clients that lack the strong crypto
// primitive locally.
package httpserver

import (
	"context"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mbruegge/gradesync/internal/crypto/fieldcrypto"
	"github.com/mbruegge/gradesync/internal/limiter"
	"github.com/mbruegge/gradesync/internal/remote"
	syncpkg "github.com/mbruegge/gradesync/internal/sync"
)

// CredentialChecker verifies an owner's password against the account backend.
// Returns errs.ErrUnauthorized for bad credentials.
type CredentialChecker interface {
	Check(ctx context.Context, ownerID, password string) error
}

// CredentialCheckerFunc adapts a function to CredentialChecker.
type CredentialCheckerFunc func(ctx context.Context, ownerID, password string) error

func (f CredentialCheckerFunc) Check(ctx context.Context, ownerID, password string) error {
	return f(ctx, ownerID, password)
}

// Server wires bridge handlers over the remote store.
type Server struct {
	store    remote.Store
	creds    CredentialChecker
	lim      limiter.Limiter
	signKey  []byte
	tokenTTL time.Duration
	log      *zap.Logger

	mu     stdsync.Mutex
	codecs map[string]*fieldcrypto.Codec  // per-owner; key derivation is expensive
	recs   map[string]*syncpkg.Reconciler // per-owner; carries the in-flight guard
}

// New constructs the bridge server.
func New(store remote.Store, creds CredentialChecker, lim limiter.Limiter, signKey []byte, tokenTTL time.Duration, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if tokenTTL <= 0 {
		tokenTTL = 15 * time.Minute
	}
	return &Server{
		store:    store,
		creds:    creds,
		lim:      lim,
		signKey:  signKey,
		tokenTTL: tokenTTL,
		log:      log,
		codecs:   map[string]*fieldcrypto.Codec{},
		recs:     map[string]*syncpkg.Reconciler{},
	}
}

// Router builds the gin engine with logging and recovery middleware.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(s.requestLog(), gin.Recovery())

	r.POST("/grades/mobile-decrypt", s.handleMobileDecrypt)
	r.POST("/grades/mobile-encrypt", s.handleMobileEncrypt)
	r.POST("/test-decrypt", s.handleTestDecrypt)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	return r
}

// requestLog logs method, path, status and duration. Payloads are never
// logged; they may contain grade data.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
		)
	}
}

// codecFor returns the cached field codec for an owner.
func (s *Server) codecFor(ownerID string) *fieldcrypto.Codec {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.codecs[ownerID]; ok {
		return c
	}
	c := fieldcrypto.New(ownerID, s.log)
	s.codecs[ownerID] = c
	return c
}
