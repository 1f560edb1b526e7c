package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"mailpilot/internal/accounts"
	"mailpilot/internal/ledger"
	"mailpilot/internal/models"
	"mailpilot/internal/scan"
)

// ScanHandler runs one coordinator tick over the tenant's active accounts
// @Summary Trigger an auto-reply scan
// @Description The server scans on its own schedule; this runs a tick now
// @Tags Auto-reply
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Success 200 {object} scan.TickReport
// @Router /api/ai/auto-reply/scan [post]
func ScanHandler(coordinator *scan.Coordinator) echo.HandlerFunc {
	return func(c echo.Context) error {
		report, err := coordinator.TickTenant(c.Request().Context(), tenantID(c))
		if err != nil {
			return failFrom(c, "Scan failed", err)
		}
		return c.JSON(http.StatusOK, report)
	}
}

// ScanStatusHandler reports each account's current phase and last cycle
// @Summary Auto-reply status
// @Tags Auto-reply
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Success 200 {array} scan.AccountStatus
// @Router /api/ai/auto-reply/status [get]
func ScanStatusHandler(coordinator *scan.Coordinator) echo.HandlerFunc {
	return func(c echo.Context) error {
		status, err := coordinator.Status(c.Request().Context(), tenantID(c))
		if err != nil {
			return failFrom(c, "Failed to load status", err)
		}
		return c.JSON(http.StatusOK, status)
	}
}

// UsageHandler sums reply attempts and cost per provider
// @Summary AI usage per provider
// @Tags AI
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param accountId query string false "Restrict to one account"
// @Success 200 {array} models.ProviderUsage
// @Router /api/ai/usage [get]
func UsageHandler(svc *accounts.Service, l ledger.Ledger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ids, ok, err := scopedAccountIDs(c, svc)
		if !ok {
			return err
		}

		usage, err := l.UsageByProvider(c.Request().Context(), ids)
		if err != nil {
			return failFrom(c, "Failed to load usage", err)
		}
		if usage == nil {
			usage = []models.ProviderUsage{}
		}
		return c.JSON(http.StatusOK, usage)
	}
}
