// Package accounts is the credential store: tenants, their mail accounts and
// per-tenant AI settings.
package accounts

import (
	"context"
	"errors"
	"time"

	"mailpilot/internal/models"
)

var (
	// ErrNotFound is returned for unknown tenants and accounts
	ErrNotFound = errors.New("not found")
)

// Store persists tenants, accounts and settings
type Store interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetAccount(ctx context.Context, id string) (*models.MailAccount, error)
	ListAccounts(ctx context.Context, tenantID string) ([]models.MailAccount, error)
	// ListActive returns active accounts whose tenant is not disabled
	ListActive(ctx context.Context) ([]models.MailAccount, error)
	UpdateSyncStatus(ctx context.Context, id string, at time.Time, status string) error
	UpdateCheckpoint(ctx context.Context, id string, cp models.Checkpoint) error
	UpdateAccount(ctx context.Context, id string, upd AccountUpdate) (*models.MailAccount, error)
	GetSettings(ctx context.Context, tenantID string) (models.AISettings, error)
	SaveSettings(ctx context.Context, settings models.AISettings) error
}

// AccountUpdate lists the columns to change. Nil fields are kept.
type AccountUpdate struct {
	Email         *string
	IMAPHost      *string
	IMAPPort      *int
	IMAPUser      *string
	IMAPSecretRef *string
	SMTPHost      *string
	SMTPPort      *int
	SMTPUser      *string
	SMTPSecretRef *string
	Active        *bool
}

// apply copies the set fields onto acc
func (u AccountUpdate) apply(acc *models.MailAccount) {
	if u.Email != nil {
		acc.Email = *u.Email
	}
	if u.IMAPHost != nil {
		acc.IMAPHost = *u.IMAPHost
	}
	if u.IMAPPort != nil {
		acc.IMAPPort = *u.IMAPPort
	}
	if u.IMAPUser != nil {
		acc.IMAPUser = *u.IMAPUser
	}
	if u.IMAPSecretRef != nil {
		acc.IMAPSecretRef = *u.IMAPSecretRef
	}
	if u.SMTPHost != nil {
		acc.SMTPHost = *u.SMTPHost
	}
	if u.SMTPPort != nil {
		acc.SMTPPort = *u.SMTPPort
	}
	if u.SMTPUser != nil {
		acc.SMTPUser = *u.SMTPUser
	}
	if u.SMTPSecretRef != nil {
		acc.SMTPSecretRef = *u.SMTPSecretRef
	}
	if u.Active != nil {
		acc.Active = *u.Active
	}
}

// SecretUpdate is an explicit optional secret. The zero value leaves the
// stored secret alone; Set with an empty Value clears it; Set with a value rotates it.
type SecretUpdate struct {
	Set   bool
	Value string
}

// SecretFrom maps a JSON pointer field onto a SecretUpdate
func SecretFrom(p *string) SecretUpdate {
	if p == nil {
		return SecretUpdate{}
	}
	return SecretUpdate{Set: true, Value: *p}
}
