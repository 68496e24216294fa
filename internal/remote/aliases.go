package remote

// Legacy field-name aliases, ordered by precedence. Historical clients wrote
// the subject domain id under several names; reads must accept all of them.
// The list is the whole compatibility surface - extend it here, nowhere else.
var subjectIDAliases = []string{"subjectid", "subjectId", "id"}

// SubjectDomainID resolves the client-assigned subject id from a document,
// trying each legacy alias in order and finally falling back to the store's
// own document id (oldest documents carried no domain id at all).
func SubjectDomainID(doc Document) string {
	if s := resolve(doc, subjectIDAliases); s != "" {
		return s
	}
	return doc.DocID
}

// resolve returns the first alias present as a non-empty string field.
func resolve(doc Document, aliases []string) string {
	for _, name := range aliases {
		if s := doc.Str(name); s != "" {
			return s
		}
	}
	return ""
}
