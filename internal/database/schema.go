package database

// Schema is applied in order by Migrate
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		disabled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS secrets (
		id TEXT PRIMARY KEY,
		ciphertext BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS mail_accounts (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		email TEXT NOT NULL,
		imap_host TEXT NOT NULL DEFAULT '',
		imap_port INTEGER NOT NULL DEFAULT 993,
		imap_user TEXT NOT NULL DEFAULT '',
		imap_secret_ref TEXT NOT NULL DEFAULT '',
		smtp_host TEXT NOT NULL DEFAULT '',
		smtp_port INTEGER NOT NULL DEFAULT 587,
		smtp_user TEXT NOT NULL DEFAULT '',
		smtp_secret_ref TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		last_sync_at TIMESTAMPTZ,
		last_sync_status TEXT NOT NULL DEFAULT '',
		checkpoint_uid BIGINT NOT NULL DEFAULT 0,
		uid_validity BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mail_accounts_tenant ON mail_accounts(tenant_id)`,
	`CREATE TABLE IF NOT EXISTS ai_settings (
		tenant_id TEXT PRIMARY KEY REFERENCES tenants(id),
		primary_provider TEXT NOT NULL DEFAULT '',
		fallback_providers TEXT[] NOT NULL DEFAULT '{}',
		enable_fallback BOOLEAN NOT NULL DEFAULT TRUE,
		model TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL DEFAULT 'balanced',
		tone TEXT NOT NULL DEFAULT 'professional',
		max_tokens INTEGER NOT NULL DEFAULT 500,
		temperature DOUBLE PRECISION NOT NULL DEFAULT 0.7,
		cost_optimization BOOLEAN NOT NULL DEFAULT FALSE,
		auto_reply BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS incoming_messages (
		id TEXT PRIMARY KEY,
		mail_account_id TEXT NOT NULL REFERENCES mail_accounts(id),
		from_address TEXT NOT NULL DEFAULT '',
		to_address TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		body_text TEXT NOT NULL DEFAULT '',
		body_html TEXT NOT NULL DEFAULT '',
		provider_message_id TEXT NOT NULL,
		in_reply_to TEXT NOT NULL DEFAULT '',
		message_references TEXT NOT NULL DEFAULT '',
		received_at TIMESTAMPTZ NOT NULL,
		imap_uid BIGINT NOT NULL DEFAULT 0,
		seen BOOLEAN NOT NULL DEFAULT FALSE,
		has_attachments BOOLEAN NOT NULL DEFAULT FALSE,
		auto_submitted TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'NEW',
		state_reason TEXT NOT NULL DEFAULT '',
		outgoing_id TEXT NOT NULL DEFAULT '',
		claimed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (mail_account_id, provider_message_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_incoming_claim ON incoming_messages(mail_account_id, state, received_at, imap_uid)`,
	`CREATE INDEX IF NOT EXISTS idx_incoming_processing ON incoming_messages(claimed_at) WHERE state = 'PROCESSING'`,
	`CREATE INDEX IF NOT EXISTS idx_incoming_from ON incoming_messages(mail_account_id, from_address)`,
	`CREATE TABLE IF NOT EXISTS reply_attempts (
		id TEXT PRIMARY KEY,
		incoming_message_id TEXT NOT NULL REFERENCES incoming_messages(id),
		provider TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		outcome TEXT NOT NULL,
		cost_estimate DOUBLE PRECISION NOT NULL DEFAULT 0,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		error_detail TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reply_attempts_message ON reply_attempts(incoming_message_id, started_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_reply_attempts_success ON reply_attempts(incoming_message_id) WHERE outcome = 'success'`,
	`CREATE TABLE IF NOT EXISTS outgoing_messages (
		id TEXT PRIMARY KEY,
		incoming_message_id TEXT REFERENCES incoming_messages(id),
		mail_account_id TEXT NOT NULL DEFAULT '',
		to_address TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		body_text TEXT NOT NULL DEFAULT '',
		body_html TEXT NOT NULL DEFAULT '',
		message_id TEXT NOT NULL DEFAULT '',
		in_reply_to TEXT NOT NULL DEFAULT '',
		message_references TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		send_state TEXT NOT NULL DEFAULT 'PENDING',
		sent_at TIMESTAMPTZ,
		smtp_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outgoing_incoming ON outgoing_messages(incoming_message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_outgoing_account_to ON outgoing_messages(mail_account_id, to_address)`,
}
