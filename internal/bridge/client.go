// Package bridge implements the mobile-side sync client. Devices without the
// strong crypto primitive call a server-side bridge that runs the field codec
// for them; payloads cross the wire in the bridge envelope encoding.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mbruegge/gradesync/internal/crypto/bridgecodec"
	"github.com/mbruegge/gradesync/internal/errs"
	"github.com/mbruegge/gradesync/internal/model"
)

// Config carries bridge connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration // per-request; defaults to 15s
}

// Client calls the bridge endpoints. All three are idempotent, so transient
// transport failures are retried with a short capped backoff.
//
// Callers must distinguish the three outcomes: success, remote unavailability
// (errs.ErrRemoteUnavailable - fall back to the last-known-good local cache)
// and auth/ownership rejection (errs.ErrUnauthorized / errs.ErrOwnershipMismatch -
// security-relevant, never silently fall back).
type Client struct {
	cfg Config
	hc  *http.Client
	log *zap.Logger
}

// New builds a bridge client.
func New(cfg Config, log *zap.Logger) *Client {
	to := cfg.Timeout
	if to == 0 {
		to = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cfg: cfg, hc: &http.Client{Timeout: to}, log: log}
}

type decryptReq struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

type decryptResp struct {
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	DecryptedData string `json:"decryptedData,omitempty"`
}

type encryptReq struct {
	UserID     string `json:"userId"`
	Password   string `json:"password"`
	GradesData string `json:"gradesData"`
}

type encryptResp struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Pull fetches the owner's snapshot, decrypted server-side and wrapped in a
// bridge envelope. The envelope's ownership assertion runs locally, so a
// server handing back another owner's data fails hard here.
func (c *Client) Pull(ctx context.Context, ownerID, credential string) (*model.Snapshot, error) {
	var out decryptResp
	err := c.post(ctx, "/grades/mobile-decrypt", decryptReq{UserID: ownerID, Password: credential}, &out)
	if err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("bridge decrypt: %s", out.Error)
	}

	var snap model.Snapshot
	if err := bridgecodec.Decode(ownerID, out.DecryptedData, &snap); err != nil {
		return nil, err
	}
	snap.OwnerID = ownerID
	return &snap, nil
}

// Push uploads the owner's snapshot for server-side encryption and storage.
func (c *Client) Push(ctx context.Context, ownerID, credential string, snap *model.Snapshot) error {
	envelope, err := bridgecodec.Encode(ownerID, snap)
	if err != nil {
		return err
	}
	var out encryptResp
	if err := c.post(ctx, "/grades/mobile-encrypt", encryptReq{
		UserID: ownerID, Password: credential, GradesData: envelope,
	}, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("bridge encrypt: %s", out.Error)
	}
	return nil
}

type testDecryptReq struct {
	EncryptedData string `json:"encryptedData"`
	UserID        string `json:"userId"`
}

type testDecryptResp struct {
	DecryptedData any    `json:"decryptedData"`
	Error         string `json:"error,omitempty"`
}

// TestDecrypt asks the bridge to decode a single stored field. Diagnostic.
func (c *Client) TestDecrypt(ctx context.Context, ownerID, field string) (any, error) {
	var out testDecryptResp
	if err := c.post(ctx, "/test-decrypt", testDecryptReq{EncryptedData: field, UserID: ownerID}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("bridge test-decrypt: %s", out.Error)
	}
	return out.DecryptedData, nil
}

// post sends one JSON request with retry on transport-level failures only;
// auth and ownership rejections surface immediately.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.hc.Do(req)
		if err != nil {
			c.log.Debug("bridge transport failure", zap.String("path", path), zap.Error(err))
			return retry.RetryableError(fmt.Errorf("%w: %v", errs.ErrRemoteUnavailable, err))
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return errs.ErrUnauthorized
		case resp.StatusCode == http.StatusForbidden:
			return errs.ErrOwnershipMismatch
		case resp.StatusCode == http.StatusTooManyRequests:
			return errs.ErrRateLimited
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("%w: %s", errs.ErrRemoteUnavailable, resp.Status))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("bridge %s: %s", path, resp.Status)
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}
