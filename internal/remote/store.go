// Package remote defines the contract over the hosted document database that
// holds one collection of subject documents and one of grade documents.
package remote

import "context"

// Collection names on the remote store.
const (
	CollectionSubjects = "subjects"
	CollectionGrades   = "grades"
)

// Canonical field names. Writes always use these; reads additionally accept
// the legacy aliases in aliases.go.
const (
	FieldUserID    = "userId"
	FieldSubjectID = "subjectid"
	FieldName      = "name"
	FieldAverage   = "averageGrade"
	FieldValue     = "value"
	FieldType      = "type"
	FieldDate      = "date"
	FieldWeight    = "weight"
)

// Document is the store's own representation: an opaque store-assigned id plus
// a field map. DocID is distinct from the client-assigned domain id.
type Document struct {
	DocID  string
	Fields map[string]any
}

// Str returns a field as a string, or "" when absent or differently typed.
func (d Document) Str(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// Filter restricts List to documents whose field equals the value.
type Filter struct {
	Field string
	Value string
}

// Store is the thin contract over the document database consumed by the
// reconciler. Implementations live behind network calls; every method honors
// ctx cancellation and returns errs.ErrRemoteUnavailable-compatible errors on
// transport failure.
type Store interface {
	// List returns all documents in the collection matching every filter.
	List(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	// Create stores a new document and returns it with the assigned DocID.
	// Fields must already be sanitized via Sanitize.
	Create(ctx context.Context, collection string, fields map[string]any) (Document, error)
	// Update replaces fields on an existing document.
	Update(ctx context.Context, collection, docID string, fields map[string]any) error
	// Delete removes a document.
	Delete(ctx context.Context, collection, docID string) error
}
