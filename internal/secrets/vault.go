package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Vault resolves opaque secret references
type Vault interface {
	Resolve(ctx context.Context, ref string) (string, error)
	Store(ctx context.Context, plaintext string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// SQLVault keeps sealed secrets in the secrets table
type SQLVault struct {
	db     *sqlx.DB
	cipher *Cipher
}

// NewSQLVault creates a vault backed by PostgreSQL
func NewSQLVault(db *sqlx.DB, cipher *Cipher) *SQLVault {
	return &SQLVault{db: db, cipher: cipher}
}

// Resolve returns the plaintext for ref
func (v *SQLVault) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", ErrNotFound
	}

	var sealed []byte
	err := v.db.GetContext(ctx, &sealed, `SELECT ciphertext FROM secrets WHERE id = $1`, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load secret: %w", err)
	}
	return v.cipher.Open(ref, sealed)
}

// Store seals plaintext under a new reference
func (v *SQLVault) Store(ctx context.Context, plaintext string) (string, error) {
	ref := uuid.NewString()
	sealed, err := v.cipher.Seal(ref, plaintext)
	if err != nil {
		return "", err
	}

	if _, err := v.db.ExecContext(ctx, `INSERT INTO secrets (id, ciphertext) VALUES ($1, $2)`, ref, sealed); err != nil {
		return "", fmt.Errorf("failed to store secret: %w", err)
	}
	return ref, nil
}

// Delete removes ref. Deleting an unknown reference is not an error.
func (v *SQLVault) Delete(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	if _, err := v.db.ExecContext(ctx, `DELETE FROM secrets WHERE id = $1`, ref); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}

// MemoryVault is the in-process vault used without a database
type MemoryVault struct {
	cipher *Cipher
	mu     sync.RWMutex
	sealed map[string][]byte
}

// NewMemoryVault creates an empty in-memory vault
func NewMemoryVault(cipher *Cipher) *MemoryVault {
	return &MemoryVault{cipher: cipher, sealed: make(map[string][]byte)}
}

// Resolve returns the plaintext for ref
func (v *MemoryVault) Resolve(_ context.Context, ref string) (string, error) {
	v.mu.RLock()
	sealed, ok := v.sealed[ref]
	v.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return v.cipher.Open(ref, sealed)
}

// Store seals plaintext under a new reference
func (v *MemoryVault) Store(_ context.Context, plaintext string) (string, error) {
	ref := uuid.NewString()
	sealed, err := v.cipher.Seal(ref, plaintext)
	if err != nil {
		return "", err
	}

	v.mu.Lock()
	v.sealed[ref] = sealed
	v.mu.Unlock()
	return ref, nil
}

// Delete removes ref
func (v *MemoryVault) Delete(_ context.Context, ref string) error {
	v.mu.Lock()
	delete(v.sealed, ref)
	v.mu.Unlock()
	return nil
}
