package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mbruegge/gradesync/internal/errs"
	"github.com/mbruegge/gradesync/internal/model"
	"github.com/mbruegge/gradesync/internal/remote"
)

const defaultWorkers = 4

// Reconciler converges a local snapshot and the remote collections.
//
// Grade sets are synchronized by deleting every remote grade document for a
// subject and recreating them from the local snapshot. That trades write
// amplification for correctness: grade identity has drifted across historical
// schemas and diffing it per document is not reliable. The policy is not safe
// under concurrent multi-device sync: two devices racing on the same subject
// can interleave deletes and creates and produce transient duplicates. The
// remote store offers no per-owner mutex, so this is an accepted limitation;
// convergence happens on the next sync.
type Reconciler struct {
	sc      *Context
	workers int

	inFlight atomic.Bool
}

// Option tweaks a Reconciler.
type Option func(*Reconciler)

// WithWorkers bounds the parallel fan-out across independent subjects.
func WithWorkers(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.workers = n
		}
	}
}

// NewReconciler builds a reconciler over an initialized session context.
func NewReconciler(sc *Context, opts ...Option) *Reconciler {
	r := &Reconciler{sc: sc, workers: defaultWorkers}
	for _, o := range opts {
		o(r)
	}
	return r
}

// acquire rejects reentrant invocations. The delete-then-recreate grade
// strategy is not idempotent under interleaving, so a second sync for the same
// owner must wait for the first instead of running concurrently.
func (r *Reconciler) acquire() error {
	if !r.inFlight.CompareAndSwap(false, true) {
		return errs.ErrSyncInFlight
	}
	return nil
}

func (r *Reconciler) release() { r.inFlight.Store(false) }

// Push propagates the local snapshot to the remote store: update or create
// each subject, then delete-and-recreate its grade documents. Item failures
// are collected into the report and never abort the remaining items; only
// whole-pass failures (initial subject listing, reentrancy) return an error.
//
// Once a subject's processing has started, its remote calls run on a context
// detached from the caller's: tearing down the invoking UI mid-sync lets
// in-flight writes complete rather than leaving the subject half-written.
func (r *Reconciler) Push(ctx context.Context, snap *model.Snapshot) (*model.SyncReport, error) {
	if !r.sc.initialized {
		return nil, errors.New("sync context not initialized")
	}
	if snap == nil || snap.OwnerID != r.sc.OwnerID {
		return nil, errors.New("snapshot owner does not match session owner")
	}
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()

	docIDs, err := r.remoteSubjectMap(ctx)
	if err != nil {
		return nil, err
	}

	report := &model.SyncReport{}
	var mu stdsync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, subject := range snap.Subjects {
		subject := subject
		if gctx.Err() != nil {
			break // no new subjects after cancellation
		}
		g.Go(func() error {
			// Detached: in-flight subject writes run to completion.
			sctx := context.WithoutCancel(gctx)
			r.pushSubject(sctx, subject, docIDs[subject.ID], report, &mu)
			return nil
		})
	}
	_ = g.Wait()

	r.sc.Log.Info("push finished",
		zap.String("owner", snap.OwnerID),
		zap.String("outcome", report.Outcome().String()),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// remoteSubjectMap lists the owner's remote subjects and maps domain id to
// store document id, resolving legacy field-name aliases. Checking this map
// before every create is what keeps the store free of duplicate subject
// documents for the same domain id.
func (r *Reconciler) remoteSubjectMap(ctx context.Context) (map[string]string, error) {
	docs, err := r.sc.Remote.List(ctx, remote.CollectionSubjects,
		remote.Filter{Field: remote.FieldUserID, Value: r.sc.OwnerID})
	if err != nil {
		return nil, fmt.Errorf("list remote subjects: %w", err)
	}
	m := make(map[string]string, len(docs))
	for _, doc := range docs {
		id := remote.SubjectDomainID(doc)
		if _, dup := m[id]; !dup {
			m[id] = doc.DocID
		}
	}
	return m, nil
}

// pushSubject writes one subject document and reconciles its grade set.
// All remote calls within the subject are sequential; ordering across
// subjects is left to the worker pool.
func (r *Reconciler) pushSubject(ctx context.Context, s model.Subject, docID string, report *model.SyncReport, mu *stdsync.Mutex) {
	avg := s.AverageGrade
	if len(s.Grades) > 0 {
		avg = model.WeightedAverage(s.Grades)
	}
	encAvg, err := r.sc.Codec.Encrypt(avg)
	if err == nil {
		fields := remote.Sanitize(remote.CollectionSubjects, map[string]any{
			remote.FieldUserID:    r.sc.OwnerID,
			remote.FieldSubjectID: s.ID,
			remote.FieldName:      s.Name,
			remote.FieldAverage:   encAvg,
		})
		if docID != "" {
			err = r.sc.Remote.Update(ctx, remote.CollectionSubjects, docID, fields)
		} else {
			_, err = r.sc.Remote.Create(ctx, remote.CollectionSubjects, fields)
		}
	}

	mu.Lock()
	if err != nil {
		report.Record("subject", s.ID, err)
		r.sc.Log.Warn("subject push failed", zap.String("subject", s.ID), zap.Error(err))
	} else {
		report.Succeeded++
	}
	mu.Unlock()

	// Grades are linked by domain id, not by the subject document, so the
	// grade set still syncs even when the subject document write failed.
	r.pushGrades(ctx, s, report, mu)
}

// pushGrades replaces the subject's remote grade documents with the local set.
// Deletes must complete before any create starts; if a delete fails the
// recreate phase is skipped for this subject so the store never holds both the
// old and the new copy of a grade.
func (r *Reconciler) pushGrades(ctx context.Context, s model.Subject, report *model.SyncReport, mu *stdsync.Mutex) {
	existing, err := r.sc.Remote.List(ctx, remote.CollectionGrades,
		remote.Filter{Field: remote.FieldUserID, Value: r.sc.OwnerID},
		remote.Filter{Field: remote.FieldSubjectID, Value: s.ID},
	)
	if err != nil {
		mu.Lock()
		report.Record("grade", s.ID, fmt.Errorf("list grades: %w", err))
		mu.Unlock()
		return
	}

	deleteFailed := false
	for _, doc := range existing {
		if err := r.sc.Remote.Delete(ctx, remote.CollectionGrades, doc.DocID); err != nil && !errors.Is(err, errs.ErrNotFound) {
			deleteFailed = true
			r.sc.Log.Warn("grade delete failed",
				zap.String("subject", s.ID), zap.String("doc", doc.DocID), zap.Error(err))
		}
	}
	if deleteFailed {
		mu.Lock()
		report.Record("grade", s.ID, errors.New("stale grade documents could not be removed; recreate deferred to next sync"))
		mu.Unlock()
		return
	}

	for _, g := range s.Grades {
		err := r.createGrade(ctx, s.ID, g)
		mu.Lock()
		if err != nil {
			report.Record("grade", g.ID, err)
			r.sc.Log.Warn("grade push failed", zap.String("grade", g.ID), zap.Error(err))
		} else {
			report.Succeeded++
		}
		mu.Unlock()
	}
}

// createGrade writes one grade document, retrying once with the minimal field
// set when the remote side rejects the full schema.
func (r *Reconciler) createGrade(ctx context.Context, subjectID string, g model.Grade) error {
	encValue, err := r.sc.Codec.Encrypt(g.Value)
	if err != nil {
		return fmt.Errorf("encrypt grade value: %w", err)
	}
	full := remote.Sanitize(remote.CollectionGrades, map[string]any{
		remote.FieldUserID:    r.sc.OwnerID,
		remote.FieldSubjectID: subjectID,
		remote.FieldValue:     encValue,
		remote.FieldType:      g.Type,
		remote.FieldDate:      g.Date,
		remote.FieldWeight:    g.EffectiveWeight(),
	})
	if _, err := r.sc.Remote.Create(ctx, remote.CollectionGrades, full); err == nil {
		return nil
	}

	// Older deployments reject date/weight; retry with the required fields.
	minimal := remote.Sanitize(remote.CollectionGrades, map[string]any{
		remote.FieldUserID:    r.sc.OwnerID,
		remote.FieldSubjectID: subjectID,
		remote.FieldValue:     encValue,
		remote.FieldType:      g.Type,
	})
	if _, err := r.sc.Remote.Create(ctx, remote.CollectionGrades, minimal); err != nil {
		return err
	}
	return nil
}
