package remote

// Per-collection field allow-lists. Anything not listed is dropped before
// transmission: unknown fields trip the remote store's schema validation, and
// local-only metadata must never leak into the shared collection.
var allowedFields = map[string]map[string]bool{
	CollectionSubjects: {
		FieldUserID:    true,
		FieldSubjectID: true,
		FieldName:      true,
		FieldAverage:   true,
	},
	CollectionGrades: {
		FieldUserID:    true,
		FieldSubjectID: true,
		FieldValue:     true,
		FieldType:      true,
		FieldDate:      true,
		FieldWeight:    true,
	},
}

// Sanitize returns a copy of fields restricted to the collection's allow-list.
// Unknown collections yield an empty map.
func Sanitize(collection string, fields map[string]any) map[string]any {
	allowed := allowedFields[collection]
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if allowed[k] {
			out[k] = v
		}
	}
	return out
}
