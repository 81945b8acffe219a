package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vmcpio/vmcpd/pkg/store"
)

// BlobStore implements store.BlobStore using SQLite.
type BlobStore struct {
	wrapper *DB
	db      *sql.DB
}

// NewBlobStore creates a SQLite-backed BlobStore.
func NewBlobStore(db *DB) *BlobStore {
	return &BlobStore{wrapper: db, db: db.DB()}
}

var _ store.BlobStore = (*BlobStore)(nil)

// Put upserts b by id.
func (s *BlobStore) Put(ctx context.Context, b store.Blob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blob (id, filename, mime, bytes) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET filename = excluded.filename, mime = excluded.mime, bytes = excluded.bytes`,
		b.ID, b.Filename, b.MimeType, b.Bytes,
	)
	if err != nil {
		return fmt.Errorf("upserting blob %s: %w", b.ID, err)
	}
	return nil
}

// Get retrieves the blob with the given id.
func (s *BlobStore) Get(ctx context.Context, id string) (store.Blob, error) {
	var b store.Blob
	err := s.db.QueryRowContext(ctx, `SELECT id, filename, mime, bytes FROM blob WHERE id = ?`, id).
		Scan(&b.ID, &b.Filename, &b.MimeType, &b.Bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Blob{}, store.ErrNotFound
	}
	if err != nil {
		return store.Blob{}, fmt.Errorf("querying blob %s: %w", id, err)
	}
	return b, nil
}

// Delete removes the blob with the given id.
func (s *BlobStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blob WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting blob %s: %w", id, err)
	}
	return nil
}

// Rename updates the filename of the blob with the given id.
func (s *BlobStore) Rename(ctx context.Context, id, newFilename string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE blob SET filename = ? WHERE id = ?`, newFilename, id)
	if err != nil {
		return fmt.Errorf("renaming blob %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rename result for blob %s: %w", id, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// List returns every blob's metadata and bytes.
func (s *BlobStore) List(ctx context.Context) ([]store.Blob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, filename, mime, bytes FROM blob`)
	if err != nil {
		return nil, fmt.Errorf("querying blobs: %w", err)
	}
	defer rows.Close()

	var out []store.Blob
	for rows.Next() {
		var b store.Blob
		if err := rows.Scan(&b.ID, &b.Filename, &b.MimeType, &b.Bytes); err != nil {
			return nil, fmt.Errorf("scanning blob row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating blob rows: %w", err)
	}
	return out, nil
}
