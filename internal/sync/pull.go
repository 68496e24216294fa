package sync

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/mbruegge/gradesync/internal/model"
	"github.com/mbruegge/gradesync/internal/remote"
)

// Pull rebuilds the local snapshot from the remote store, decrypting each
// field through the fallback chain. Remote-only subjects are imported, never
// deleted: deletions are always local-initiated and explicit.
//
// The stored averageGrade is decrypted but not trusted; whenever grades are
// present the average is recomputed as the weight-normalized mean of the
// pulled values, since the stored figure may be stale relative to the grades.
func (r *Reconciler) Pull(ctx context.Context) (*model.Snapshot, error) {
	if !r.sc.initialized {
		return nil, fmt.Errorf("sync context not initialized")
	}
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()

	docs, err := r.sc.Remote.List(ctx, remote.CollectionSubjects,
		remote.Filter{Field: remote.FieldUserID, Value: r.sc.OwnerID})
	if err != nil {
		return nil, fmt.Errorf("list remote subjects: %w", err)
	}

	snap := &model.Snapshot{OwnerID: r.sc.OwnerID}
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		id := remote.SubjectDomainID(doc)
		if seen[id] {
			// Duplicate documents can appear after concurrent multi-device
			// syncs; keep the first and let the next push converge.
			r.sc.Log.Warn("duplicate remote subject skipped", zap.String("subject", id))
			continue
		}
		seen[id] = true

		subject, err := r.pullSubject(ctx, doc, id)
		if err != nil {
			r.sc.Log.Warn("subject pull incomplete", zap.String("subject", id), zap.Error(err))
		}
		snap.Subjects = append(snap.Subjects, subject)
	}

	if r.sc.Local != nil {
		if err := r.sc.Local.SaveSnapshot(ctx, snap); err != nil {
			r.sc.Log.Warn("local snapshot save failed", zap.Error(err))
		}
	}
	return snap, nil
}

// pullSubject decodes one subject document and fetches its grades. A grade
// listing failure degrades to the stored average rather than failing the
// subject; the error is reported for logging only.
func (r *Reconciler) pullSubject(ctx context.Context, doc remote.Document, id string) (model.Subject, error) {
	subject := model.Subject{
		ID:           id,
		OwnerID:      r.sc.OwnerID,
		Name:         doc.Str(remote.FieldName),
		AverageGrade: r.decryptNum(doc, remote.FieldAverage),
	}

	gradeDocs, err := r.sc.Remote.List(ctx, remote.CollectionGrades,
		remote.Filter{Field: remote.FieldUserID, Value: r.sc.OwnerID},
		remote.Filter{Field: remote.FieldSubjectID, Value: id},
	)
	if err != nil {
		return subject, fmt.Errorf("list grades: %w", err)
	}

	for _, gd := range gradeDocs {
		subject.Grades = append(subject.Grades, model.Grade{
			ID:     gd.DocID,
			Value:  r.decryptNum(gd, remote.FieldValue),
			Type:   gd.Str(remote.FieldType),
			Date:   gd.Str(remote.FieldDate),
			Weight: numField(gd, remote.FieldWeight),
		})
	}
	model.SortNewestFirst(subject.Grades)
	if len(subject.Grades) > 0 {
		subject.AverageGrade = model.WeightedAverage(subject.Grades)
	}
	return subject, nil
}

// decryptNum reads an encrypted numeric field. The oldest documents stored
// these as bare JSON numbers rather than strings; those pass through without
// touching the codec.
func (r *Reconciler) decryptNum(doc remote.Document, field string) float64 {
	switch v := doc.Fields[field].(type) {
	case float64:
		return v
	case string:
		return r.sc.Codec.DecryptNumber(v)
	default:
		return 0
	}
}

// numField reads a numeric field that legacy documents sometimes stored as a
// string.
func numField(doc remote.Document, field string) float64 {
	switch v := doc.Fields[field].(type) {
	case float64:
		return v
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
