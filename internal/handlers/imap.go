package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"mailpilot/internal/accounts"
	"mailpilot/internal/apperr"
	"mailpilot/internal/ledger"
	"mailpilot/internal/mailbox"
	"mailpilot/internal/models"
	"mailpilot/internal/scan"
)

// MailboxTester checks IMAP credentials without ingesting anything
type MailboxTester interface {
	TestConnection(ctx context.Context, acc *models.MailAccount) error
}

// SyncResponse is the result of a manual sync
type SyncResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Result  mailbox.SyncResult  `json:"result"`
	Account *models.MailAccount `json:"account,omitempty"`
}

// TestAccountHandler logs into the account's mailbox and reports the outcome
// @Summary Test IMAP credentials
// @Tags IMAP
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param request body models.AccountRequest true "Account"
// @Success 200 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /api/imap/test-account [post]
func TestAccountHandler(svc *accounts.Service, tester MailboxTester) echo.HandlerFunc {
	return func(c echo.Context) error {
		acc, ok, err := boundAccount(c, svc)
		if !ok {
			return err
		}

		if err := tester.TestConnection(c.Request().Context(), acc); err != nil {
			return c.JSON(http.StatusOK, models.APIResponse{
				Success: false,
				Message: apperr.Describe(err),
				Error:   err.Error(),
			})
		}
		return c.JSON(http.StatusOK, models.APIResponse{
			Success: true,
			Message: "Connected to " + acc.IMAPHost + " as " + acc.IMAPUser,
		})
	}
}

// SyncAccountHandler runs one connector pass for an account and returns its status
// @Summary Sync a mailbox now
// @Tags IMAP
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param request body models.AccountRequest true "Account"
// @Success 200 {object} SyncResponse
// @Failure 409 {object} models.APIResponse
// @Router /api/imap/sync [post]
func SyncAccountHandler(svc *accounts.Service, coordinator *scan.Coordinator) echo.HandlerFunc {
	return func(c echo.Context) error {
		acc, ok, err := boundAccount(c, svc)
		if !ok {
			return err
		}

		ctx := c.Request().Context()
		result, err := coordinator.SyncAccount(ctx, acc)
		if errors.Is(err, scan.ErrBusy) {
			return fail(c, http.StatusConflict, "Account is being processed, try again shortly", err)
		}

		resp := SyncResponse{Success: err == nil, Result: result}
		if err != nil {
			resp.Message = apperr.Describe(err)
		} else {
			resp.Message = strconv.Itoa(result.NewMessages) + " new message(s)"
		}
		if fresh, lerr := svc.Account(ctx, tenantID(c), acc.ID); lerr == nil {
			resp.Account = fresh
		} else {
			resp.Account = acc
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// InboxHandler pages through an account's ingested mail, newest first
// @Summary List ingested messages
// @Tags IMAP
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param accountId query string false "Account, all tenant accounts when empty"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} models.InboxPage
// @Router /api/imap/inbox [get]
func InboxHandler(svc *accounts.Service, l ledger.Ledger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ids, ok, err := scopedAccountIDs(c, svc)
		if !ok {
			return err
		}

		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		offset, _ := strconv.Atoi(c.QueryParam("offset"))
		limit, offset = ledger.NormalizePage(limit, offset)

		msgs, total, err := l.ListInbox(c.Request().Context(), ids, limit, offset)
		if err != nil {
			return failFrom(c, "Failed to list messages", err)
		}
		if msgs == nil {
			msgs = []models.IncomingMessage{}
		}
		return c.JSON(http.StatusOK, models.InboxPage{
			Messages: msgs,
			Total:    total,
			Limit:    limit,
			Offset:   offset,
		})
	}
}

// ListAccountsHandler lists the tenant's mail accounts
// @Summary List mail accounts
// @Tags IMAP
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Success 200 {array} models.MailAccount
// @Router /api/imap/accounts [get]
func ListAccountsHandler(svc *accounts.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		accs, err := svc.Store().ListAccounts(c.Request().Context(), tenantID(c))
		if err != nil {
			return failFrom(c, "Failed to list accounts", err)
		}
		if accs == nil {
			accs = []models.MailAccount{}
		}
		return c.JSON(http.StatusOK, accs)
	}
}

// PatchAccountHandler updates account fields and rotates or clears secrets
// @Summary Update a mail account
// @Tags IMAP
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param id path string true "Account id"
// @Param patch body models.AccountPatch true "Fields to change"
// @Success 200 {object} models.MailAccount
// @Failure 404 {object} models.APIResponse
// @Router /api/imap/accounts/{id} [patch]
func PatchAccountHandler(svc *accounts.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var patch models.AccountPatch
		if err := c.Bind(&patch); err != nil {
			return fail(c, http.StatusBadRequest, "Invalid request body", err)
		}

		acc, err := svc.Patch(c.Request().Context(), tenantID(c), c.Param("id"), patch)
		if err != nil {
			return failFrom(c, "Failed to update account", err)
		}
		return c.JSON(http.StatusOK, acc)
	}
}

// RetryMessageHandler moves a FAILED message back to NEW
// @Summary Retry a failed message
// @Tags IMAP
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param request body models.RetryRequest true "Message"
// @Success 200 {object} models.APIResponse
// @Failure 409 {object} models.APIResponse
// @Router /api/imap/retry [post]
func RetryMessageHandler(svc *accounts.Service, l ledger.Ledger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.RetryRequest
		if err := c.Bind(&req); err != nil {
			return fail(c, http.StatusBadRequest, "Invalid request body", err)
		}
		msg, ok, err := tenantMessage(c, svc, l, strings.TrimSpace(req.MessageID))
		if !ok {
			return err
		}

		if err := l.Retry(c.Request().Context(), msg.ID); err != nil {
			if errors.Is(err, ledger.ErrInvalidTransition) {
				return fail(c, http.StatusConflict, "Only FAILED messages can be retried (state is "+string(msg.State)+")", err)
			}
			return failFrom(c, "Failed to retry message", err)
		}
		return c.JSON(http.StatusOK, models.APIResponse{Success: true, Message: "Message queued for the next scan"})
	}
}

// MessageAttemptsHandler lists the provider calls made for a message
// @Summary Reply attempts of a message
// @Tags IMAP
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param id path string true "Incoming message id"
// @Success 200 {array} models.ReplyAttempt
// @Router /api/imap/messages/{id}/attempts [get]
func MessageAttemptsHandler(svc *accounts.Service, l ledger.Ledger) echo.HandlerFunc {
	return func(c echo.Context) error {
		msg, ok, err := tenantMessage(c, svc, l, c.Param("id"))
		if !ok {
			return err
		}

		attempts, err := l.Attempts(c.Request().Context(), msg.ID)
		if err != nil {
			return failFrom(c, "Failed to list attempts", err)
		}
		if attempts == nil {
			attempts = []models.ReplyAttempt{}
		}
		return c.JSON(http.StatusOK, attempts)
	}
}

// boundAccount reads {accountId} from the body and resolves it within the tenant.
// When ok is false the error response has been written and err is the write result.
func boundAccount(c echo.Context, svc *accounts.Service) (acc *models.MailAccount, ok bool, err error) {
	var req models.AccountRequest
	if err := c.Bind(&req); err != nil {
		return nil, false, fail(c, http.StatusBadRequest, "Invalid request body", err)
	}
	id := strings.TrimSpace(req.AccountID)
	if id == "" {
		return nil, false, fail(c, http.StatusBadRequest, "accountId is required", nil)
	}
	acc, err = svc.Account(c.Request().Context(), tenantID(c), id)
	if err != nil {
		return nil, false, failFrom(c, "Account not found", err)
	}
	return acc, true, nil
}

// scopedAccountIDs returns the ?accountId= account, or every tenant account
func scopedAccountIDs(c echo.Context, svc *accounts.Service) ([]string, bool, error) {
	if id := strings.TrimSpace(c.QueryParam("accountId")); id != "" {
		acc, err := svc.Account(c.Request().Context(), tenantID(c), id)
		if err != nil {
			return nil, false, failFrom(c, "Account not found", err)
		}
		return []string{acc.ID}, true, nil
	}

	accs, err := svc.Store().ListAccounts(c.Request().Context(), tenantID(c))
	if err != nil {
		return nil, false, failFrom(c, "Failed to list accounts", err)
	}
	ids := make([]string, 0, len(accs))
	for _, acc := range accs {
		ids = append(ids, acc.ID)
	}
	return ids, true, nil
}

// tenantMessage loads a message and checks its account belongs to the caller's tenant
func tenantMessage(c echo.Context, svc *accounts.Service, l ledger.Ledger, id string) (*models.IncomingMessage, bool, error) {
	if id == "" {
		return nil, false, fail(c, http.StatusBadRequest, "messageId is required", nil)
	}
	ctx := c.Request().Context()
	msg, err := l.Get(ctx, id)
	if err != nil {
		return nil, false, failFrom(c, "Message not found", err)
	}
	if _, err := svc.Account(ctx, tenantID(c), msg.MailAccountID); err != nil {
		return nil, false, failFrom(c, "Message not found", ledger.ErrNotFound)
	}
	return msg, true, nil
}
