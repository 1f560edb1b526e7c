package accounts

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mailpilot/internal/models"
	"mailpilot/internal/secrets"
)

type seedFile struct {
	Tenants []struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		Disabled bool   `yaml:"disabled"`
		Settings *struct {
			Primary          string   `yaml:"primary"`
			Fallback         []string `yaml:"fallback"`
			EnableFallback   *bool    `yaml:"enable_fallback"`
			Model            string   `yaml:"model"`
			Mode             string   `yaml:"mode"`
			Tone             string   `yaml:"tone"`
			MaxTokens        int      `yaml:"max_tokens"`
			Temperature      *float64 `yaml:"temperature"`
			CostOptimization bool     `yaml:"cost_optimization"`
			AutoReply        bool     `yaml:"auto_reply"`
		} `yaml:"settings"`
		Accounts []struct {
			ID     string `yaml:"id"`
			Email  string `yaml:"email"`
			Active *bool  `yaml:"active"`
			IMAP   struct {
				Host     string `yaml:"host"`
				Port     int    `yaml:"port"`
				User     string `yaml:"user"`
				Password string `yaml:"password"`
			} `yaml:"imap"`
			SMTP struct {
				Host     string `yaml:"host"`
				Port     int    `yaml:"port"`
				User     string `yaml:"user"`
				Password string `yaml:"password"`
			} `yaml:"smtp"`
		} `yaml:"accounts"`
	} `yaml:"tenants"`
}

// LoadSeed reads a YAML seed file (with ${VAR} expansion) into store,
// sealing passwords into vault.
func LoadSeed(ctx context.Context, path string, store *MemoryStore, vault secrets.Vault) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file %s: %w", path, err)
	}
	return ParseSeed(ctx, data, store, vault)
}

// ParseSeed loads seed YAML from memory
func ParseSeed(ctx context.Context, data []byte, store *MemoryStore, vault secrets.Vault) error {
	expanded := os.ExpandEnv(string(data))

	var raw seedFile
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return fmt.Errorf("parse seed YAML: %w", err)
	}

	for _, t := range raw.Tenants {
		if t.ID == "" {
			return fmt.Errorf("seed tenant without id")
		}
		store.PutTenant(models.Tenant{ID: t.ID, Name: t.Name, Disabled: t.Disabled})

		if t.Settings != nil {
			st := models.DefaultAISettings(t.ID)
			if t.Settings.Primary != "" {
				st.PrimaryProvider = t.Settings.Primary
			}
			if t.Settings.Fallback != nil {
				st.FallbackProviders = t.Settings.Fallback
			}
			if t.Settings.EnableFallback != nil {
				st.EnableFallback = *t.Settings.EnableFallback
			}
			st.Model = t.Settings.Model
			if t.Settings.Mode != "" {
				st.Mode = models.Mode(t.Settings.Mode)
			}
			if t.Settings.Tone != "" {
				st.Tone = t.Settings.Tone
			}
			if t.Settings.MaxTokens > 0 {
				st.MaxTokens = t.Settings.MaxTokens
			}
			if t.Settings.Temperature != nil {
				st.Temperature = *t.Settings.Temperature
			}
			st.CostOptimization = t.Settings.CostOptimization
			st.AutoReply = t.Settings.AutoReply
			if err := store.SaveSettings(ctx, st); err != nil {
				return err
			}
		}

		for _, a := range t.Accounts {
			if a.ID == "" || a.Email == "" {
				return fmt.Errorf("seed account of tenant %s needs id and email", t.ID)
			}

			acc := models.MailAccount{
				ID:       a.ID,
				TenantID: t.ID,
				Email:    a.Email,
				IMAPHost: a.IMAP.Host,
				IMAPPort: orDefault(a.IMAP.Port, 993),
				IMAPUser: firstNonEmpty(a.IMAP.User, a.Email),
				SMTPHost: a.SMTP.Host,
				SMTPPort: orDefault(a.SMTP.Port, 587),
				SMTPUser: firstNonEmpty(a.SMTP.User, a.Email),
				Active:   a.Active == nil || *a.Active,
			}

			if a.IMAP.Password != "" {
				ref, err := vault.Store(ctx, a.IMAP.Password)
				if err != nil {
					return fmt.Errorf("store imap secret for %s: %w", a.ID, err)
				}
				acc.IMAPSecretRef = ref
			}
			if a.SMTP.Password != "" {
				ref, err := vault.Store(ctx, a.SMTP.Password)
				if err != nil {
					return fmt.Errorf("store smtp secret for %s: %w", a.ID, err)
				}
				acc.SMTPSecretRef = ref
			}
			store.PutAccount(acc)
		}
	}
	return nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
