package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"mailpilot/internal/accounts"
	"mailpilot/internal/apperr"
	"mailpilot/internal/ledger"
	"mailpilot/internal/models"
)

// Sender delivers manual and bulk mail
type Sender interface {
	Send(ctx context.Context, acc *models.MailAccount, draft models.OutgoingDraft) (models.OutgoingMessage, error)
	SendBulk(ctx context.Context, acc *models.MailAccount, emails []string, subject, html string) models.BulkSendResponse
}

// ContactsHandler lists the people the tenant's mailboxes talk to
// @Summary Mailbox contacts
// @Tags Mail inbox
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param accountId query string false "Restrict to one account"
// @Success 200 {array} models.Contact
// @Router /api/mail-inbox/contacts [get]
func ContactsHandler(svc *accounts.Service, l ledger.Ledger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ids, ok, err := scopedAccountIDs(c, svc)
		if !ok {
			return err
		}

		contacts, err := l.Contacts(c.Request().Context(), ids)
		if err != nil {
			return failFrom(c, "Failed to list contacts", err)
		}
		if contacts == nil {
			contacts = []models.Contact{}
		}
		return c.JSON(http.StatusOK, contacts)
	}
}

// ConversationHandler returns both directions of mail exchanged with one address
// @Summary Conversation with a contact
// @Tags Mail inbox
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param email query string true "Contact address"
// @Param accountId query string false "Restrict to one account"
// @Success 200 {array} models.ConversationEntry
// @Failure 400 {object} models.APIResponse
// @Router /api/mail-inbox/messages [get]
func ConversationHandler(svc *accounts.Service, l ledger.Ledger) echo.HandlerFunc {
	return func(c echo.Context) error {
		email := strings.ToLower(strings.TrimSpace(c.QueryParam("email")))
		if email == "" {
			return fail(c, http.StatusBadRequest, "email is required", nil)
		}
		ids, ok, err := scopedAccountIDs(c, svc)
		if !ok {
			return err
		}

		entries, err := l.Conversation(c.Request().Context(), ids, email)
		if err != nil {
			return failFrom(c, "Failed to load conversation", err)
		}
		if entries == nil {
			entries = []models.ConversationEntry{}
		}
		return c.JSON(http.StatusOK, entries)
	}
}

// SendMailHandler sends one message from a tenant mailbox
// @Summary Send a message
// @Description Uses accountId, else the tenant's first active account, else the system transport
// @Tags Mail inbox
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param request body models.SendRequest true "Message"
// @Success 200 {object} models.SendResponse
// @Failure 400 {object} models.SendResponse
// @Failure 502 {object} models.SendResponse
// @Router /api/mail-inbox/send [post]
func SendMailHandler(svc *accounts.Service, sender Sender) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.SendRequest
		if err := c.Bind(&req); err != nil {
			return fail(c, http.StatusBadRequest, "Invalid request body", err)
		}
		if strings.TrimSpace(req.Body) == "" {
			return fail(c, http.StatusBadRequest, "body is required", nil)
		}
		acc, ok, err := sendingAccount(c, svc, req.AccountID)
		if !ok {
			return err
		}

		out, err := sender.Send(c.Request().Context(), acc, models.OutgoingDraft{
			To:       req.To,
			Subject:  strings.TrimSpace(req.Subject),
			BodyText: req.Body,
		})
		if err != nil {
			resp := models.SendResponse{Success: false, Message: apperr.Describe(err), Error: err.Error()}
			if out.ID != "" {
				resp.Outgoing = &out
			}
			return c.JSON(sendStatus(err), resp)
		}
		return c.JSON(http.StatusOK, models.SendResponse{Success: true, Message: "Message sent", Outgoing: &out})
	}
}

// BulkSendHandler sends the same HTML to each recipient. Bad addresses fail on their own.
// @Summary Bulk send
// @Tags Mail
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param request body models.BulkSendRequest true "Recipients and content"
// @Success 200 {object} models.BulkSendResponse
// @Failure 400 {object} models.APIResponse
// @Router /api/mail/send [post]
func BulkSendHandler(svc *accounts.Service, sender Sender) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.BulkSendRequest
		if err := c.Bind(&req); err != nil {
			return fail(c, http.StatusBadRequest, "Invalid request body", err)
		}
		if len(req.Emails) == 0 {
			return fail(c, http.StatusBadRequest, "emails must not be empty", nil)
		}
		acc, ok, err := sendingAccount(c, svc, req.AccountID)
		if !ok {
			return err
		}

		resp := sender.SendBulk(c.Request().Context(), acc, req.Emails, strings.TrimSpace(req.Subject), req.HTML)
		return c.JSON(http.StatusOK, resp)
	}
}

// sendingAccount resolves an explicit account, falls back to the tenant's first
// active one, and returns nil when the tenant has none so the system transport is used.
func sendingAccount(c echo.Context, svc *accounts.Service, id string) (*models.MailAccount, bool, error) {
	ctx := c.Request().Context()
	if id = strings.TrimSpace(id); id != "" {
		acc, err := svc.Account(ctx, tenantID(c), id)
		if err != nil {
			return nil, false, failFrom(c, "Account not found", err)
		}
		return acc, true, nil
	}

	acc, err := svc.DefaultAccount(ctx, tenantID(c))
	if errors.Is(err, accounts.ErrNotFound) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, failFrom(c, "Failed to load accounts", err)
	}
	return acc, true, nil
}

func sendStatus(err error) int {
	if apperr.IsConfig(err) {
		return http.StatusBadRequest
	}
	var derr *apperr.DispatchError
	if errors.As(err, &derr) {
		if derr.Attempts == 0 {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
