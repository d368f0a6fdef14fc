package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Document is one stored record.
type Document struct {
	Collection string
	ID         string
	Body       []byte
	Version    int64
	UpdatedAt  time.Time
}

// Get retrieves a single document.
// Returns an error wrapping ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, collection, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT collection, id, body, version, updated_at
		FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return Document{}, classify("get document", err)
	}
	return doc, nil
}

// List returns every document in a collection ordered by id.
//
// Returns an empty slice (not nil) if the collection is empty.
func (s *Store) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, id, body, version, updated_at
		FROM documents
		WHERE collection = ?
		ORDER BY id COLLATE BINARY ASC
	`, collection)
	if err != nil {
		return nil, classify("list documents", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate documents", err)
	}

	return docs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (Document, error) {
	var (
		doc       Document
		body      string
		updatedAt string
	)
	if err := row.Scan(&doc.Collection, &doc.ID, &body, &doc.Version, &updatedAt); err != nil {
		return Document{}, err
	}
	doc.Body = []byte(body)

	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("parse updated_at %q: %w", updatedAt, err)
	}
	doc.UpdatedAt = t
	return doc, nil
}
