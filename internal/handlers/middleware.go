package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"mailpilot/internal/accounts"
)

// TenantHeader carries the caller's tenant, set by the external auth layer
const TenantHeader = "X-Tenant-ID"

const tenantKey = "tenantID"

// TenantMiddleware rejects requests without a known, enabled tenant
func TenantMiddleware(store accounts.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := strings.TrimSpace(c.Request().Header.Get(TenantHeader))
			if id == "" {
				return fail(c, http.StatusUnauthorized, "Missing "+TenantHeader+" header", nil)
			}

			tenant, err := store.GetTenant(c.Request().Context(), id)
			if errors.Is(err, accounts.ErrNotFound) {
				return fail(c, http.StatusUnauthorized, "Unknown tenant", nil)
			}
			if err != nil {
				return fail(c, http.StatusInternalServerError, "Failed to load tenant", err)
			}
			if tenant.Disabled {
				return fail(c, http.StatusForbidden, "Tenant is disabled", nil)
			}

			c.Set(tenantKey, tenant.ID)
			return next(c)
		}
	}
}

func tenantID(c echo.Context) string {
	id, _ := c.Get(tenantKey).(string)
	return id
}
