package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mbruegge/gradesync/internal/crypto/bridgecodec"
	"github.com/mbruegge/gradesync/internal/errs"
	"github.com/mbruegge/gradesync/internal/model"
	syncpkg "github.com/mbruegge/gradesync/internal/sync"
)

type mobileDecryptReq struct {
	UserID   string `json:"userId" binding:"required"`
	Password string `json:"password"`
}

type mobileEncryptReq struct {
	UserID     string `json:"userId" binding:"required"`
	Password   string `json:"password"`
	GradesData string `json:"gradesData" binding:"required"`
}

type testDecryptReq struct {
	EncryptedData string `json:"encryptedData" binding:"required"`
	UserID        string `json:"userId" binding:"required"`
}

// handleMobileDecrypt pulls the owner's remote documents, decrypts them
// server-side and returns the snapshot in a bridge envelope, plus a session
// token for subsequent calls.
func (s *Server) handleMobileDecrypt(c *gin.Context) {
	var req mobileDecryptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	if !s.authorized(c, req.UserID, req.Password) {
		return
	}

	rec, err := s.reconciler(req.UserID)
	if err != nil {
		s.fail(c, "mobile-decrypt", err)
		return
	}
	snap, err := rec.Pull(c.Request.Context())
	if err != nil {
		s.fail(c, "mobile-decrypt", err)
		return
	}
	envelope, err := bridgecodec.Encode(req.UserID, snap)
	if err != nil {
		s.fail(c, "mobile-decrypt", err)
		return
	}

	resp := gin.H{"success": true, "decryptedData": envelope}
	if tok, err := s.issueToken(req.UserID); err == nil {
		resp["sessionToken"] = tok
	}
	c.JSON(http.StatusOK, resp)
}

// handleMobileEncrypt receives a snapshot in a bridge envelope, encrypts its
// fields and reconciles it into the remote store.
func (s *Server) handleMobileEncrypt(c *gin.Context) {
	var req mobileEncryptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	if !s.authorized(c, req.UserID, req.Password) {
		return
	}

	var snap model.Snapshot
	if err := bridgecodec.Decode(req.UserID, req.GradesData, &snap); err != nil {
		s.fail(c, "mobile-encrypt", err)
		return
	}
	snap.OwnerID = req.UserID

	rec, err := s.reconciler(req.UserID)
	if err != nil {
		s.fail(c, "mobile-encrypt", err)
		return
	}
	report, err := rec.Push(c.Request.Context(), &snap)
	if err != nil {
		s.fail(c, "mobile-encrypt", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   report.Outcome() != model.SyncFailed,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
	})
}

// handleTestDecrypt decodes a single stored field. Diagnostic endpoint; the
// key is derived from the supplied owner id, so no credential is involved.
func (s *Server) handleTestDecrypt(c *gin.Context) {
	var req testDecryptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"decryptedData": s.codecFor(req.UserID).Decrypt(req.EncryptedData),
	})
}

// authorized authenticates and writes the error response itself on failure.
func (s *Server) authorized(c *gin.Context, ownerID, password string) bool {
	err := s.authenticate(c, ownerID, password)
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, errs.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "too many attempts"})
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
	default:
		s.log.Error("credential backend failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
	}
	return false
}

// fail maps internal errors to the bridge's machine-readable failure shape.
// Raw crypto and transport messages stay out of responses.
func (s *Server) fail(c *gin.Context, op string, err error) {
	s.log.Warn("bridge operation failed", zap.String("op", op), zap.Error(err))
	switch {
	case errors.Is(err, errs.ErrOwnershipMismatch):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "ownership mismatch"})
	case errors.Is(err, errs.ErrRemoteUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "remote store unavailable"})
	case errors.Is(err, errs.ErrSyncInFlight):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "sync already running"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
	}
}

// reconciler returns the owner's cached reconciler, building it on first use.
// The cache is what makes the reconciler's in-flight guard effective at the
// bridge: two concurrent requests for the same owner share one instance, so
// the second sync is rejected instead of interleaving grade rewrites.
func (s *Server) reconciler(ownerID string) (*syncpkg.Reconciler, error) {
	codec := s.codecFor(ownerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.recs[ownerID]; ok {
		return r, nil
	}
	sc := syncpkg.NewContext(ownerID, s.store, s.log)
	sc.Codec = codec
	if err := sc.Init(context.Background()); err != nil {
		return nil, err
	}
	r := syncpkg.NewReconciler(sc)
	s.recs[ownerID] = r
	return r, nil
}
