package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	stdsync "sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/mbruegge/gradesync/internal/crypto/bridgecodec"
	"github.com/mbruegge/gradesync/internal/errs"
	"github.com/mbruegge/gradesync/internal/model"
	"github.com/mbruegge/gradesync/internal/remote"
)

func init() { gin.SetMode(gin.TestMode) }

// memStore is a minimal in-memory remote.Store for handler tests.
type memStore struct {
	mu   stdsync.Mutex
	seq  int
	docs map[string][]remote.Document

	listStarted chan struct{} // receives once when List is entered
	listBlock   chan struct{} // when set, List waits until closed
}

func newMemStore() *memStore { return &memStore{docs: map[string][]remote.Document{}} }

func (m *memStore) List(_ context.Context, collection string, filters ...remote.Filter) ([]remote.Document, error) {
	if m.listStarted != nil {
		select {
		case m.listStarted <- struct{}{}:
		default:
		}
	}
	if m.listBlock != nil {
		<-m.listBlock
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []remote.Document
	for _, doc := range m.docs[collection] {
		ok := true
		for _, f := range filters {
			if doc.Str(f.Field) != f.Value {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *memStore) Create(_ context.Context, collection string, fields map[string]any) (remote.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	doc := remote.Document{DocID: fmt.Sprintf("d%d", m.seq), Fields: fields}
	m.docs[collection] = append(m.docs[collection], doc)
	return doc, nil
}

func (m *memStore) Update(_ context.Context, collection, docID string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, doc := range m.docs[collection] {
		if doc.DocID == docID {
			m.docs[collection][i].Fields = fields
			return nil
		}
	}
	return errs.ErrNotFound
}

func (m *memStore) Delete(_ context.Context, collection, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, doc := range m.docs[collection] {
		if doc.DocID == docID {
			m.docs[collection] = append(m.docs[collection][:i], m.docs[collection][i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}

// allowLimiter permits everything and counts failures.
type allowLimiter struct {
	failures int
	blockAll bool
}

func (l *allowLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	if l.blockAll {
		return false, time.Minute, nil
	}
	return true, 0, nil
}
func (l *allowLimiter) Success(context.Context, string, []byte) error { return nil }
func (l *allowLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failures++
	return false, 0, nil
}

func newTestServer(t *testing.T, store remote.Store, lim *allowLimiter) *Server {
	t.Helper()
	creds := CredentialCheckerFunc(func(_ context.Context, ownerID, password string) error {
		if password != "correct-pw" {
			return errs.ErrUnauthorized
		}
		return nil
	})
	return New(store, creds, lim, []byte("test-sign-key"), time.Minute, nil)
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]any
	if len(w.Body.Bytes()) > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestMobileEncryptThenDecrypt_RoundTrip(t *testing.T) {
	store := newMemStore()
	s := newTestServer(t, store, &allowLimiter{})
	router := s.Router()

	snap := model.Snapshot{
		OwnerID: "owner-1",
		Subjects: []model.Subject{{
			ID: "math1", Name: "Math",
			Grades: []model.Grade{{ID: "g1", Value: 2.0, Type: "Test", Date: "2024-03-01", Weight: 1}},
		}},
	}
	envelope, err := bridgecodec.Encode("owner-1", snap)
	require.NoError(t, err)

	w, resp := postJSON(t, router, "/grades/mobile-encrypt",
		mobileEncryptReq{UserID: "owner-1", Password: "correct-pw", GradesData: envelope}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, resp["success"])

	// Fields landed encrypted, not plaintext.
	gdoc := store.docs[remote.CollectionGrades][0]
	require.NotEqual(t, "2", gdoc.Str(remote.FieldValue))

	w, resp = postJSON(t, router, "/grades/mobile-decrypt",
		mobileDecryptReq{UserID: "owner-1", Password: "correct-pw"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, resp["success"])

	var got model.Snapshot
	require.NoError(t, bridgecodec.Decode("owner-1", resp["decryptedData"].(string), &got))
	require.Len(t, got.Subjects, 1)
	require.Equal(t, "Math", got.Subjects[0].Name)
	require.Equal(t, 2.0, got.Subjects[0].Grades[0].Value)
}

func TestMobileDecrypt_BadPassword(t *testing.T) {
	lim := &allowLimiter{}
	s := newTestServer(t, newMemStore(), lim)

	w, resp := postJSON(t, s.Router(), "/grades/mobile-decrypt",
		mobileDecryptReq{UserID: "owner-1", Password: "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, false, resp["success"])
	require.NotEmpty(t, resp["error"])
	require.Equal(t, 1, lim.failures, "failed attempt must be recorded")
}

func TestMobileDecrypt_RateLimited(t *testing.T) {
	s := newTestServer(t, newMemStore(), &allowLimiter{blockAll: true})

	w, resp := postJSON(t, s.Router(), "/grades/mobile-decrypt",
		mobileDecryptReq{UserID: "owner-1", Password: "correct-pw"}, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, false, resp["success"])
}

func TestMobileEncrypt_ForeignEnvelopeRejected(t *testing.T) {
	s := newTestServer(t, newMemStore(), &allowLimiter{})

	envelope, err := bridgecodec.Encode("other-owner", model.Snapshot{})
	require.NoError(t, err)

	w, resp := postJSON(t, s.Router(), "/grades/mobile-encrypt",
		mobileEncryptReq{UserID: "owner-1", Password: "correct-pw", GradesData: envelope}, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "ownership mismatch", resp["error"])
}

func TestSessionToken_ReplacesPassword(t *testing.T) {
	store := newMemStore()
	s := newTestServer(t, store, &allowLimiter{})
	router := s.Router()

	_, resp := postJSON(t, router, "/grades/mobile-decrypt",
		mobileDecryptReq{UserID: "owner-1", Password: "correct-pw"}, nil)
	token, _ := resp["sessionToken"].(string)
	require.NotEmpty(t, token)

	envelope, err := bridgecodec.Encode("owner-1", model.Snapshot{OwnerID: "owner-1"})
	require.NoError(t, err)

	w, resp := postJSON(t, router, "/grades/mobile-encrypt",
		mobileEncryptReq{UserID: "owner-1", GradesData: envelope},
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, resp["success"])

	// A token for one owner does not authorize another.
	envelope2, err := bridgecodec.Encode("owner-2", model.Snapshot{OwnerID: "owner-2"})
	require.NoError(t, err)
	w, _ = postJSON(t, router, "/grades/mobile-encrypt",
		mobileEncryptReq{UserID: "owner-2", GradesData: envelope2},
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMobileEncrypt_ConcurrentSameOwnerConflicts(t *testing.T) {
	store := newMemStore()
	store.listStarted = make(chan struct{}, 1)
	store.listBlock = make(chan struct{})
	s := newTestServer(t, store, &allowLimiter{})
	router := s.Router()

	envelope, err := bridgecodec.Encode("owner-1", model.Snapshot{OwnerID: "owner-1"})
	require.NoError(t, err)
	body, err := json.Marshal(mobileEncryptReq{UserID: "owner-1", Password: "correct-pw", GradesData: envelope})
	require.NoError(t, err)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/grades/mobile-encrypt", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		first <- w
	}()
	<-store.listStarted // first request is now inside Push, holding the owner's guard

	w, resp := postJSON(t, router, "/grades/mobile-encrypt",
		mobileEncryptReq{UserID: "owner-1", Password: "correct-pw", GradesData: envelope}, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, false, resp["success"])

	close(store.listBlock)
	require.Equal(t, http.StatusOK, (<-first).Code)
}

func TestTestDecrypt_LegacyPlaintext(t *testing.T) {
	s := newTestServer(t, newMemStore(), &allowLimiter{})

	w, resp := postJSON(t, s.Router(), "/test-decrypt",
		testDecryptReq{UserID: "owner-1", EncryptedData: "2.5"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 2.5, resp["decryptedData"])
}
