package store

import (
	"context"
	"fmt"
)

// Upsert writes a document, replacing any existing body for the same
// (collection, id). The version column counts accepted writes.
func (s *Store) Upsert(ctx context.Context, collection, id string, body []byte) error {
	if collection == "" || id == "" {
		return fmt.Errorf("upsert document: collection and id are required")
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body)
		VALUES (?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			body = excluded.body,
			version = documents.version + 1,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`, collection, id, string(body))
	if err != nil {
		return classify("upsert document", err)
	}
	return nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = ? AND id = ?
	`, collection, id)
	if err != nil {
		return classify("delete document", err)
	}
	return nil
}
