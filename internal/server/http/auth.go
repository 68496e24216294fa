package httpserver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/mbruegge/gradesync/internal/errs"
	"github.com/mbruegge/gradesync/internal/limiter"
)

// issueToken returns a short-lived HS256 session token for the owner.
// Subsequent bridge calls may present it instead of the password, which keeps
// the account backend out of the hot path.
func (s *Server) issueToken(ownerID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   ownerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
}

// verifyToken checks a bearer token and that it belongs to the claimed owner.
func (s *Server) verifyToken(token, ownerID string) error {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signKey, nil
	})
	if err != nil || !parsed.Valid {
		return errs.ErrUnauthorized
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject != ownerID {
		return errs.ErrUnauthorized
	}
	return nil
}

// authenticate verifies the caller as ownerID, by bearer token when present,
// otherwise by password with rate limiting per (owner, IP).
func (s *Server) authenticate(c *gin.Context, ownerID, password string) error {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return s.verifyToken(strings.TrimPrefix(h, "Bearer "), ownerID)
	}

	ipHash := limiter.HashIP(c.ClientIP())
	allowed, _, err := s.lim.Allow(c.Request.Context(), ownerID, ipHash)
	if err != nil {
		return err
	}
	if !allowed {
		return errs.ErrRateLimited
	}

	if err := s.creds.Check(c.Request.Context(), ownerID, password); err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			if blocked, _, ferr := s.lim.Failure(c.Request.Context(), ownerID, ipHash); ferr == nil && blocked {
				return errs.ErrRateLimited
			}
		}
		return err
	}
	if err := s.lim.Success(c.Request.Context(), ownerID, ipHash); err != nil {
		s.log.Warn("limiter reset failed", zap.Error(err))
	}
	return nil
}
