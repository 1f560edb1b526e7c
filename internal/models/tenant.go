package models

import "time"

// Tenant is an isolated customer of the engine
type Tenant struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Disabled  bool      `db:"disabled" json:"disabled"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// MailAccount is a business mailbox connected over IMAP/SMTP.
// Secret refs are opaque ids resolved by the secrets vault at use time.
type MailAccount struct {
	ID             string     `db:"id" json:"id"`
	TenantID       string     `db:"tenant_id" json:"tenantId"`
	Email          string     `db:"email" json:"email"`
	IMAPHost       string     `db:"imap_host" json:"imapHost"`
	IMAPPort       int        `db:"imap_port" json:"imapPort"`
	IMAPUser       string     `db:"imap_user" json:"imapUser"`
	IMAPSecretRef  string     `db:"imap_secret_ref" json:"-"`
	SMTPHost       string     `db:"smtp_host" json:"smtpHost"`
	SMTPPort       int        `db:"smtp_port" json:"smtpPort"`
	SMTPUser       string     `db:"smtp_user" json:"smtpUser"`
	SMTPSecretRef  string     `db:"smtp_secret_ref" json:"-"`
	Active         bool       `db:"active" json:"active"`
	LastSyncAt     *time.Time `db:"last_sync_at" json:"lastSyncAt,omitempty"`
	LastSyncStatus string     `db:"last_sync_status" json:"lastSyncStatus"`
	CheckpointUID  int64      `db:"checkpoint_uid" json:"checkpointUid"`
	UIDValidity    int64      `db:"uid_validity" json:"uidValidity"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

// Checkpoint is the last IMAP UID handled under a given UIDVALIDITY
type Checkpoint struct {
	UID         int64 `json:"uid"`
	UIDValidity int64 `json:"uidValidity"`
}

// Checkpoint returns the account's stored checkpoint
func (a *MailAccount) Checkpoint() Checkpoint {
	return Checkpoint{UID: a.CheckpointUID, UIDValidity: a.UIDValidity}
}

// Mode steers model choice and provider ordering
type Mode string

const (
	ModeCheap    Mode = "cheap"
	ModeBalanced Mode = "balanced"
	ModePremium  Mode = "premium"
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	switch m {
	case ModeCheap, ModeBalanced, ModePremium:
		return true
	}
	return false
}

// AISettings is the per-tenant reply policy
type AISettings struct {
	TenantID          string    `json:"tenantId"`
	PrimaryProvider   string    `json:"primaryProvider"`
	FallbackProviders []string  `json:"fallbackProviders"`
	EnableFallback    bool      `json:"enableFallback"`
	Model             string    `json:"model"`
	Mode              Mode      `json:"mode"`
	Tone              string    `json:"tone"`
	MaxTokens         int       `json:"maxTokens"`
	Temperature       float64   `json:"temperature"`
	CostOptimization  bool      `json:"costOptimization"`
	AutoReply         bool      `json:"autoReply"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// DefaultAISettings returns the settings a tenant starts with.
// Auto-reply stays off until the tenant turns it on.
func DefaultAISettings(tenantID string) AISettings {
	return AISettings{
		TenantID:          tenantID,
		PrimaryProvider:   "openai",
		FallbackProviders: []string{},
		EnableFallback:    true,
		Mode:              ModeBalanced,
		Tone:              "professional",
		MaxTokens:         500,
		Temperature:       0.7,
	}
}

// Snapshot returns a deep copy so later edits cannot leak into an in-flight reply
func (s AISettings) Snapshot() AISettings {
	out := s
	if s.FallbackProviders != nil {
		out.FallbackProviders = append(make([]string, 0, len(s.FallbackProviders)), s.FallbackProviders...)
	}
	return out
}
