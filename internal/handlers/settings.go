package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"mailpilot/internal/accounts"
	"mailpilot/internal/ai"
	"mailpilot/internal/apperr"
	"mailpilot/internal/models"
)

// GetAISettingsHandler returns the tenant's AI settings
// @Summary Get AI settings
// @Tags AI
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Success 200 {object} models.AISettingsPayload
// @Router /api/ai/settings [get]
func GetAISettingsHandler(svc *accounts.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		settings, err := svc.Settings(c.Request().Context(), tenantID(c))
		if err != nil {
			return failFrom(c, "Failed to load settings", err)
		}
		return c.JSON(http.StatusOK, toPayload(settings))
	}
}

// UpdateAISettingsHandler merges the posted fields into the tenant's settings
// @Summary Update AI settings
// @Description Empty string fields keep their value, except aiFallback and aiModel which are cleared
// @Tags AI
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param settings body models.AISettingsPayload true "Settings"
// @Success 200 {object} models.AISettingsPayload
// @Failure 400 {object} models.APIResponse
// @Router /api/ai/settings [post]
func UpdateAISettingsHandler(svc *accounts.Service, orchestrator *ai.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var payload models.AISettingsPayload
		if err := c.Bind(&payload); err != nil {
			return fail(c, http.StatusBadRequest, "Invalid request body", err)
		}

		ctx := c.Request().Context()
		settings, err := svc.Settings(ctx, tenantID(c))
		if err != nil {
			return failFrom(c, "Failed to load settings", err)
		}
		applyPayload(&settings, payload)

		if err := validateSettings(orchestrator, settings); err != nil {
			return fail(c, http.StatusBadRequest, apperr.Describe(err), err)
		}

		settings.UpdatedAt = time.Now().UTC()
		if err := svc.SaveSettings(ctx, settings); err != nil {
			return failFrom(c, "Failed to save settings", err)
		}
		return c.JSON(http.StatusOK, toPayload(settings))
	}
}

// TestAIProviderHandler makes one probe call to a provider without touching the ledger
// @Summary Test an AI provider
// @Tags AI
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param request body models.TestProviderRequest true "Provider and optional model"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /api/ai/test [post]
func TestAIProviderHandler(svc *accounts.Service, orchestrator *ai.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.TestProviderRequest
		if err := c.Bind(&req); err != nil {
			return fail(c, http.StatusBadRequest, "Invalid request body", err)
		}
		if strings.TrimSpace(req.Provider) == "" {
			return fail(c, http.StatusBadRequest, "provider is required", nil)
		}

		ctx := c.Request().Context()
		settings, err := svc.Settings(ctx, tenantID(c))
		if err != nil {
			return failFrom(c, "Failed to load settings", err)
		}

		started := time.Now()
		gen, err := orchestrator.Test(ctx, strings.ToLower(strings.TrimSpace(req.Provider)), strings.TrimSpace(req.Model), settings)
		if err != nil {
			return c.JSON(http.StatusOK, models.APIResponse{
				Success: false,
				Message: apperr.Describe(err),
				Error:   err.Error(),
			})
		}

		sample := []rune(strings.TrimSpace(gen.Text))
		if len(sample) > 120 {
			sample = append(sample[:120], '…')
		}
		name := req.Provider
		if gen.Model != "" {
			name += " (" + gen.Model + ")"
		}
		return c.JSON(http.StatusOK, models.APIResponse{
			Success: true,
			Message: fmt.Sprintf("%s answered in %s: %s", name, time.Since(started).Round(time.Millisecond), string(sample)),
		})
	}
}

func toPayload(s models.AISettings) models.AISettingsPayload {
	autoReply := s.AutoReply
	maxTokens := s.MaxTokens
	temperature := s.Temperature
	enableFallback := s.EnableFallback
	costOptimization := s.CostOptimization
	return models.AISettingsPayload{
		AIPrimary:        s.PrimaryProvider,
		AIFallback:       strings.Join(s.FallbackProviders, ","),
		AIModel:          s.Model,
		AIMode:           string(s.Mode),
		Tone:             s.Tone,
		AutoReply:        &autoReply,
		MaxTokens:        &maxTokens,
		Temperature:      &temperature,
		EnableFallback:   &enableFallback,
		CostOptimization: &costOptimization,
	}
}

func applyPayload(s *models.AISettings, p models.AISettingsPayload) {
	if v := strings.ToLower(strings.TrimSpace(p.AIPrimary)); v != "" {
		s.PrimaryProvider = v
	}
	s.FallbackProviders = splitProviders(p.AIFallback)
	s.Model = strings.TrimSpace(p.AIModel)
	if v := strings.ToLower(strings.TrimSpace(p.AIMode)); v != "" {
		s.Mode = models.Mode(v)
	}
	if v := strings.TrimSpace(p.Tone); v != "" {
		s.Tone = v
	}
	if p.AutoReply != nil {
		s.AutoReply = *p.AutoReply
	}
	if p.MaxTokens != nil {
		s.MaxTokens = *p.MaxTokens
	}
	if p.Temperature != nil {
		s.Temperature = *p.Temperature
	}
	if p.EnableFallback != nil {
		s.EnableFallback = *p.EnableFallback
	}
	if p.CostOptimization != nil {
		s.CostOptimization = *p.CostOptimization
	}
}

func splitProviders(list string) []string {
	out := []string{}
	for _, name := range strings.Split(list, ",") {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// validateSettings always checks the numeric bounds. Provider availability is
// only enforced once auto-reply is on, so settings can be prepared before keys exist.
func validateSettings(orchestrator *ai.Orchestrator, s models.AISettings) error {
	if s.AutoReply {
		return orchestrator.Validate(s)
	}
	if s.MaxTokens <= 0 {
		return apperr.NewConfigError("maxTokens", "must be positive, got %d", s.MaxTokens)
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return apperr.NewConfigError("temperature", "must be between 0 and 2, got %g", s.Temperature)
	}
	if s.Mode != "" && !s.Mode.Valid() {
		return apperr.NewConfigError("aiMode", "unknown mode %q", s.Mode)
	}
	return nil
}
