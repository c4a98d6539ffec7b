package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Upload is one completed upload.
type Upload struct {
	ID          uuid.UUID
	Name        string
	ContentType string
	SizeBytes   int64
	SHA256Hex   string
	Backend     string
	CreatedAt   time.Time
}

// Ledger records completed uploads in the uploads table.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// RecordUpload inserts u. A zero ID is replaced with a fresh UUID; the
// stored ID is returned.
func (l *Ledger) RecordUpload(ctx context.Context, u Upload) (uuid.UUID, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO uploads (id, name, content_type, size_bytes, sha256_hex, backend)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Name, u.ContentType, u.SizeBytes, u.SHA256Hex, u.Backend)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert upload: %w", err)
	}
	return u.ID, nil
}

// Latest returns the most recent upload stored under name.
func (l *Ledger) Latest(ctx context.Context, name string) (Upload, error) {
	var u Upload
	err := l.db.QueryRowContext(ctx, `
		SELECT id, name, content_type, size_bytes, sha256_hex, backend, created_at
		FROM uploads
		WHERE name = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, name).Scan(&u.ID, &u.Name, &u.ContentType, &u.SizeBytes, &u.SHA256Hex, &u.Backend, &u.CreatedAt)
	if err != nil {
		return Upload{}, err
	}
	return u, nil
}

// Ping checks database connectivity.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}
