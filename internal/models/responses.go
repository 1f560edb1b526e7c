package models

import "time"

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// DBHealthResponse represents a database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Connected bool          `json:"connected" example:"true"`                   // Database connection status
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// APIResponse is the generic {success, message} body of action endpoints
// @Description Action result
type APIResponse struct {
	Success bool   `json:"success" example:"true"`                 // Whether the action succeeded
	Message string `json:"message" example:"Connection succeeded"` // Human readable outcome
	Error   string `json:"error,omitempty" example:""`             // Error detail if any
}

// AISettingsPayload is the dashboard's view of a tenant's AI settings
// @Description AI settings
type AISettingsPayload struct {
	AIPrimary        string   `json:"aiPrimary" example:"openai"`              // Primary provider
	AIFallback       string   `json:"aiFallback" example:"deepseek,gemini"`    // Comma separated fallback providers
	AIModel          string   `json:"aiModel" example:"gpt-4o-mini"`           // Model override for the primary provider
	AIMode           string   `json:"aiMode" example:"balanced"`               // cheap, balanced or premium
	Tone             string   `json:"tone" example:"friendly"`                 // Reply tone
	AutoReply        *bool    `json:"autoReply,omitempty" example:"true"`      // Reply automatically to new mail
	MaxTokens        *int     `json:"maxTokens,omitempty" example:"500"`       // Reply length bound
	Temperature      *float64 `json:"temperature,omitempty" example:"0.7"`     // Sampling temperature, 0 to 2
	EnableFallback   *bool    `json:"enableFallback,omitempty" example:"true"` // Try fallback providers on failure
	CostOptimization *bool    `json:"costOptimization,omitempty" example:"false"`
}

// TestProviderRequest asks for a single probe call to one provider
type TestProviderRequest struct {
	Provider string `json:"provider" example:"openai"`
	Model    string `json:"model" example:"gpt-4o-mini"`
}

// AccountRequest addresses a single mail account
type AccountRequest struct {
	AccountID string `json:"accountId" example:"3f1c..."`
}

// RetryRequest asks for a FAILED message to be processed again
type RetryRequest struct {
	MessageID string `json:"messageId"`
}

// InboxPage is a page of incoming messages
type InboxPage struct {
	Messages []IncomingMessage `json:"messages"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// SendRequest is a manual single-recipient send
type SendRequest struct {
	To        string `json:"to" example:"customer@example.com"`
	Subject   string `json:"subject" example:"Re: your order"`
	Body      string `json:"body" example:"Hello..."`
	AccountID string `json:"accountId,omitempty"`
}

// BulkSendRequest sends the same HTML to several recipients
type BulkSendRequest struct {
	Emails    []string `json:"emails"`
	Subject   string   `json:"subject"`
	HTML      string   `json:"html"`
	AccountID string   `json:"accountId,omitempty"`
}

// BulkSendResult is the outcome for one bulk recipient
type BulkSendResult struct {
	Email   string `json:"email"`
	Status  string `json:"status" example:"sent"` // sent or failed
	Message string `json:"message,omitempty"`
}

// BulkSendResponse lists per-recipient outcomes
type BulkSendResponse struct {
	Success bool             `json:"success"`
	Sent    int              `json:"sent"`
	Failed  int              `json:"failed"`
	Results []BulkSendResult `json:"results"`
}

// AccountPatch updates a mail account. Nil fields are left alone.
// For passwords, an empty string clears the stored secret and any other value rotates it.
type AccountPatch struct {
	Email        *string `json:"email,omitempty"`
	IMAPHost     *string `json:"imapHost,omitempty"`
	IMAPPort     *int    `json:"imapPort,omitempty"`
	IMAPUser     *string `json:"imapUser,omitempty"`
	IMAPPassword *string `json:"imapPassword,omitempty"`
	SMTPHost     *string `json:"smtpHost,omitempty"`
	SMTPPort     *int    `json:"smtpPort,omitempty"`
	SMTPUser     *string `json:"smtpUser,omitempty"`
	SMTPPassword *string `json:"smtpPassword,omitempty"`
	Active       *bool   `json:"active,omitempty"`
}

// SendResponse is the result of a manual send
type SendResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Error    string           `json:"error,omitempty"`
	Outgoing *OutgoingMessage `json:"outgoing,omitempty"`
}
