package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mailpilot/internal/models"
)

const accountColumns = `a.id, a.tenant_id, a.email, a.imap_host, a.imap_port, a.imap_user, a.imap_secret_ref,
	a.smtp_host, a.smtp_port, a.smtp_user, a.smtp_secret_ref, a.active, a.last_sync_at, a.last_sync_status,
	a.checkpoint_uid, a.uid_validity, a.created_at, a.updated_at`

// PostgresStore is the Store backed by the engine's PostgreSQL database
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a PostgreSQL-backed store
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type settingsRow struct {
	TenantID          string         `db:"tenant_id"`
	PrimaryProvider   string         `db:"primary_provider"`
	FallbackProviders pq.StringArray `db:"fallback_providers"`
	EnableFallback    bool           `db:"enable_fallback"`
	Model             string         `db:"model"`
	Mode              string         `db:"mode"`
	Tone              string         `db:"tone"`
	MaxTokens         int            `db:"max_tokens"`
	Temperature       float64        `db:"temperature"`
	CostOptimization  bool           `db:"cost_optimization"`
	AutoReply         bool           `db:"auto_reply"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

// GetTenant loads a tenant by id
func (s *PostgresStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.GetContext(ctx, &t, `SELECT id, name, disabled, created_at FROM tenants WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

// GetAccount loads a mail account by id
func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*models.MailAccount, error) {
	var acc models.MailAccount
	err := s.db.GetContext(ctx, &acc, `SELECT `+accountColumns+` FROM mail_accounts a WHERE a.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acc, nil
}

// ListAccounts returns every account of a tenant
func (s *PostgresStore) ListAccounts(ctx context.Context, tenantID string) ([]models.MailAccount, error) {
	var accs []models.MailAccount
	err := s.db.SelectContext(ctx, &accs,
		`SELECT `+accountColumns+` FROM mail_accounts a WHERE a.tenant_id = $1 ORDER BY a.created_at, a.id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accs, nil
}

// ListActive returns active accounts of tenants that are not disabled
func (s *PostgresStore) ListActive(ctx context.Context) ([]models.MailAccount, error) {
	var accs []models.MailAccount
	err := s.db.SelectContext(ctx, &accs, `
		SELECT `+accountColumns+`
		FROM mail_accounts a
		JOIN tenants t ON t.id = a.tenant_id
		WHERE a.active AND NOT t.disabled
		ORDER BY a.last_sync_at NULLS FIRST, a.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}
	return accs, nil
}

// UpdateSyncStatus records the outcome of the latest sync
func (s *PostgresStore) UpdateSyncStatus(ctx context.Context, id string, at time.Time, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mail_accounts SET last_sync_at = $2, last_sync_status = $3, updated_at = NOW() WHERE id = $1`,
		id, at, status)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	return expectOne(res)
}

// UpdateCheckpoint stores the highest handled UID and its UIDVALIDITY
func (s *PostgresStore) UpdateCheckpoint(ctx context.Context, id string, cp models.Checkpoint) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mail_accounts SET checkpoint_uid = $2, uid_validity = $3, updated_at = NOW() WHERE id = $1`,
		id, cp.UID, cp.UIDValidity)
	if err != nil {
		return fmt.Errorf("failed to update checkpoint: %w", err)
	}
	return expectOne(res)
}

// UpdateAccount applies upd under a row lock and returns the new row
func (s *PostgresStore) UpdateAccount(ctx context.Context, id string, upd AccountUpdate) (*models.MailAccount, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin account update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var acc models.MailAccount
	err = tx.GetContext(ctx, &acc, `SELECT `+accountColumns+` FROM mail_accounts a WHERE a.id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	upd.apply(&acc)
	acc.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE mail_accounts SET
			email = $2, imap_host = $3, imap_port = $4, imap_user = $5, imap_secret_ref = $6,
			smtp_host = $7, smtp_port = $8, smtp_user = $9, smtp_secret_ref = $10, active = $11,
			updated_at = $12
		WHERE id = $1`,
		acc.ID, acc.Email, acc.IMAPHost, acc.IMAPPort, acc.IMAPUser, acc.IMAPSecretRef,
		acc.SMTPHost, acc.SMTPPort, acc.SMTPUser, acc.SMTPSecretRef, acc.Active, acc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit account update: %w", err)
	}
	return &acc, nil
}

// GetSettings returns the tenant's AI settings, or the defaults when none were saved
func (s *PostgresStore) GetSettings(ctx context.Context, tenantID string) (models.AISettings, error) {
	var row settingsRow
	err := s.db.GetContext(ctx, &row, `
		SELECT tenant_id, primary_provider, fallback_providers, enable_fallback, model, mode, tone,
			max_tokens, temperature, cost_optimization, auto_reply, updated_at
		FROM ai_settings WHERE tenant_id = $1`, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultAISettings(tenantID), nil
	}
	if err != nil {
		return models.AISettings{}, fmt.Errorf("failed to get ai settings: %w", err)
	}

	return models.AISettings{
		TenantID:          row.TenantID,
		PrimaryProvider:   row.PrimaryProvider,
		FallbackProviders: []string(row.FallbackProviders),
		EnableFallback:    row.EnableFallback,
		Model:             row.Model,
		Mode:              models.Mode(row.Mode),
		Tone:              row.Tone,
		MaxTokens:         row.MaxTokens,
		Temperature:       row.Temperature,
		CostOptimization:  row.CostOptimization,
		AutoReply:         row.AutoReply,
		UpdatedAt:         row.UpdatedAt,
	}, nil
}

// SaveSettings upserts the tenant's AI settings
func (s *PostgresStore) SaveSettings(ctx context.Context, settings models.AISettings) error {
	fallbacks := settings.FallbackProviders
	if fallbacks == nil {
		fallbacks = []string{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_settings (tenant_id, primary_provider, fallback_providers, enable_fallback, model, mode,
			tone, max_tokens, temperature, cost_optimization, auto_reply, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			primary_provider = EXCLUDED.primary_provider,
			fallback_providers = EXCLUDED.fallback_providers,
			enable_fallback = EXCLUDED.enable_fallback,
			model = EXCLUDED.model,
			mode = EXCLUDED.mode,
			tone = EXCLUDED.tone,
			max_tokens = EXCLUDED.max_tokens,
			temperature = EXCLUDED.temperature,
			cost_optimization = EXCLUDED.cost_optimization,
			auto_reply = EXCLUDED.auto_reply,
			updated_at = NOW()`,
		settings.TenantID, settings.PrimaryProvider, pq.StringArray(fallbacks), settings.EnableFallback,
		settings.Model, string(settings.Mode), settings.Tone, settings.MaxTokens, settings.Temperature,
		settings.CostOptimization, settings.AutoReply)
	if err != nil {
		return fmt.Errorf("failed to save ai settings: %w", err)
	}
	return nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
