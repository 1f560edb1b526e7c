package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mailpilot/internal/apperr"
	"mailpilot/internal/cache"
	"mailpilot/internal/models"
	"mailpilot/internal/secrets"
)

// settingsTTL bounds how stale a cached settings read can be on another replica
const settingsTTL = 30 * time.Second

// Service wraps a Store with secret resolution, tenant scoping and a settings cache
type Service struct {
	store    Store
	vault    secrets.Vault
	settings *cache.Cache[models.AISettings]
	logger   zerolog.Logger
}

// NewService creates an accounts service
func NewService(store Store, vault secrets.Vault, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		vault:    vault,
		settings: cache.New[models.AISettings](settingsTTL),
		logger:   logger.With().Str("component", "accounts").Logger(),
	}
}

// Store exposes the underlying store for the engine's write-backs
func (s *Service) Store() Store {
	return s.store
}

// Account returns an account only if it belongs to tenantID
func (s *Service) Account(ctx context.Context, tenantID, id string) (*models.MailAccount, error) {
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return acc, nil
}

// DefaultAccount returns the tenant's first active account
func (s *Service) DefaultAccount(ctx context.Context, tenantID string) (*models.MailAccount, error) {
	accs, err := s.store.ListAccounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for i := range accs {
		if accs[i].Active {
			return &accs[i], nil
		}
	}
	return nil, ErrNotFound
}

// IMAPPassword resolves the account's incoming secret
func (s *Service) IMAPPassword(ctx context.Context, acc *models.MailAccount) (string, error) {
	return s.resolve(ctx, "imapSecretRef", acc.IMAPSecretRef)
}

// SMTPPassword resolves the account's outgoing secret
func (s *Service) SMTPPassword(ctx context.Context, acc *models.MailAccount) (string, error) {
	return s.resolve(ctx, "smtpSecretRef", acc.SMTPSecretRef)
}

func (s *Service) resolve(ctx context.Context, field, ref string) (string, error) {
	if ref == "" {
		return "", apperr.NewConfigError(field, "no password stored for this account")
	}
	plain, err := s.vault.Resolve(ctx, ref)
	if errors.Is(err, secrets.ErrNotFound) {
		return "", apperr.NewConfigError(field, "stored password reference is dangling")
	}
	return plain, err
}

// Settings returns a snapshot of the tenant's AI settings
func (s *Service) Settings(ctx context.Context, tenantID string) (models.AISettings, error) {
	if st, ok := s.settings.Get(tenantID); ok {
		return st.Snapshot(), nil
	}

	st, err := s.store.GetSettings(ctx, tenantID)
	if err != nil {
		return models.AISettings{}, err
	}
	s.settings.Set(tenantID, st.Snapshot())
	return st, nil
}

// SaveSettings persists settings and drops the cached copy
func (s *Service) SaveSettings(ctx context.Context, settings models.AISettings) error {
	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return err
	}
	s.settings.Delete(settings.TenantID)
	return nil
}

// Patch updates a tenant's account. Passwords follow SecretUpdate semantics.
func (s *Service) Patch(ctx context.Context, tenantID, id string, patch models.AccountPatch) (*models.MailAccount, error) {
	current, err := s.Account(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	for field, port := range map[string]*int{"imapPort": patch.IMAPPort, "smtpPort": patch.SMTPPort} {
		if port != nil && (*port <= 0 || *port > 65535) {
			return nil, apperr.NewConfigError(field, "port %d out of range", *port)
		}
	}

	upd := AccountUpdate{
		Email:    patch.Email,
		IMAPHost: patch.IMAPHost,
		IMAPPort: patch.IMAPPort,
		IMAPUser: patch.IMAPUser,
		SMTPHost: patch.SMTPHost,
		SMTPPort: patch.SMTPPort,
		SMTPUser: patch.SMTPUser,
		Active:   patch.Active,
	}

	var created []string
	var retired []string

	imapRef, err := s.applySecret(ctx, SecretFrom(patch.IMAPPassword), current.IMAPSecretRef, &created, &retired)
	if err != nil {
		return nil, err
	}
	upd.IMAPSecretRef = imapRef

	smtpRef, err := s.applySecret(ctx, SecretFrom(patch.SMTPPassword), current.SMTPSecretRef, &created, &retired)
	if err != nil {
		s.discard(ctx, created)
		return nil, err
	}
	upd.SMTPSecretRef = smtpRef

	updated, err := s.store.UpdateAccount(ctx, id, upd)
	if err != nil {
		s.discard(ctx, created)
		return nil, err
	}

	s.discard(ctx, retired)
	return updated, nil
}

// applySecret returns the new ref to store, or nil when the secret is untouched
func (s *Service) applySecret(ctx context.Context, upd SecretUpdate, oldRef string, created, retired *[]string) (*string, error) {
	if !upd.Set {
		return nil, nil
	}

	newRef := ""
	if upd.Value != "" {
		ref, err := s.vault.Store(ctx, upd.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to store secret: %w", err)
		}
		newRef = ref
		*created = append(*created, ref)
	}
	if oldRef != "" {
		*retired = append(*retired, oldRef)
	}
	return &newRef, nil
}

func (s *Service) discard(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := s.vault.Delete(ctx, ref); err != nil {
			s.logger.Warn().Err(err).Str("ref", ref).Msg("Failed to delete secret")
		}
	}
}
