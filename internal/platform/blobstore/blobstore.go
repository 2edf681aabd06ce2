// Package blobstore provides content-addressed storage for encrypted record
// payloads. Ciphertext blobs are stored under the hex SHA-256 of their
// content, which makes writes idempotent and lets readers verify integrity
// independently of the metadata row that references the blob.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myhealthchain/api/internal/platform/db"
)

var (
	// ErrBlobNotFound is returned when no blob exists at the given address.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrEmptyBlob is returned when a caller attempts to store zero bytes.
	ErrEmptyBlob = errors.New("blob content is empty")
)

// Address returns the content address for the given bytes: the lowercase hex
// encoding of their SHA-256 digest.
func Address(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Store is a content-addressed blob store. Put returns the address the
// content was stored under; storing identical content twice returns the same
// address without error.
type Store interface {
	Put(ctx context.Context, content []byte) (addr string, err error)
	Get(ctx context.Context, addr string) ([]byte, error)
	Delete(ctx context.Context, addr string) error
}

// Memory is an in-process Store for tests and development.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, content []byte) (string, error) {
	if len(content) == 0 {
		return "", ErrEmptyBlob
	}
	addr := Address(content)
	cp := make([]byte, len(content))
	copy(cp, content)

	m.mu.Lock()
	m.blobs[addr] = cp
	m.mu.Unlock()
	return addr, nil
}

func (m *Memory) Get(_ context.Context, addr string) ([]byte, error) {
	m.mu.RLock()
	content, ok := m.blobs[addr]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	cp := make([]byte, len(content))
	copy(cp, content)
	return cp, nil
}

func (m *Memory) Delete(_ context.Context, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[addr]; !ok {
		return ErrBlobNotFound
	}
	delete(m.blobs, addr)
	return nil
}

// Postgres stores blobs in a bytea table. It participates in an ambient
// transaction when one is carried on the context, so a record's metadata row
// and its ciphertext commit or roll back together.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a Store backed by the blobs table.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Put(ctx context.Context, content []byte) (string, error) {
	if len(content) == 0 {
		return "", ErrEmptyBlob
	}
	addr := Address(content)
	q := db.QuerierFor(ctx, p.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO blobs (addr, content)
		VALUES ($1, $2)
		ON CONFLICT (addr) DO NOTHING`,
		addr, content)
	if err != nil {
		return "", fmt.Errorf("storing blob: %w", err)
	}
	return addr, nil
}

func (p *Postgres) Get(ctx context.Context, addr string) ([]byte, error) {
	q := db.QuerierFor(ctx, p.pool)
	var content []byte
	err := q.QueryRow(ctx, `SELECT content FROM blobs WHERE addr = $1`, addr).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading blob: %w", err)
	}
	return content, nil
}

func (p *Postgres) Delete(ctx context.Context, addr string) error {
	q := db.QuerierFor(ctx, p.pool)
	tag, err := q.Exec(ctx, `DELETE FROM blobs WHERE addr = $1`, addr)
	if err != nil {
		return fmt.Errorf("deleting blob: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlobNotFound
	}
	return nil
}
