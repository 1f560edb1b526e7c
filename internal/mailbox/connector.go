package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"mailpilot/internal/accounts"
	"mailpilot/internal/apperr"
	"mailpilot/internal/ledger"
	"mailpilot/internal/models"
)

// SyncResult summarises one connector cycle
type SyncResult struct {
	NewMessages int               `json:"newMessages"`
	Duplicates  int               `json:"duplicates"`
	Skipped     int               `json:"skipped"`
	Checkpoint  models.Checkpoint `json:"checkpoint"`
}

// Options tunes a Connector
type Options struct {
	LookbackDays int
	FetchLimit   int
}

// Connector syncs one account's INBOX into the ledger
type Connector struct {
	dialer   Dialer
	accounts *accounts.Service
	ledger   ledger.Ledger
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// NewConnector creates a new connector
func NewConnector(dialer Dialer, svc *accounts.Service, l ledger.Ledger, opts Options, logger zerolog.Logger) *Connector {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 7
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = 100
	}
	return &Connector{
		dialer:   dialer,
		accounts: svc,
		ledger:   l,
		opts:     opts,
		logger:   logger.With().Str("component", "mailbox").Logger(),
		now:      time.Now,
	}
}

// TestConnection connects and authenticates without touching the mailbox
func (c *Connector) TestConnection(ctx context.Context, acc *models.MailAccount) error {
	sess, err := c.open(ctx, acc)
	if err != nil {
		return err
	}
	return sess.Close()
}

// Sync fetches messages newer than the account checkpoint and inserts them
// into the ledger. The sync status is written back whatever the outcome.
func (c *Connector) Sync(ctx context.Context, acc *models.MailAccount) (SyncResult, error) {
	log := c.logger.With().Str("account_id", acc.ID).Logger()
	started := c.now()

	result, err := c.sync(ctx, acc, log)

	status := fmt.Sprintf("ok: %d new", result.NewMessages)
	if err != nil {
		status = "error: " + apperr.Describe(err)
		log.Error().Err(err).Msg("Mailbox sync failed")
	} else {
		log.Info().
			Int("new", result.NewMessages).
			Int("duplicates", result.Duplicates).
			Int("skipped", result.Skipped).
			Int64("checkpoint_uid", result.Checkpoint.UID).
			Dur("took", c.now().Sub(started)).
			Msg("Mailbox synced")
	}

	if serr := c.accounts.Store().UpdateSyncStatus(context.WithoutCancel(ctx), acc.ID, c.now(), status); serr != nil {
		log.Error().Err(serr).Msg("Failed to record sync status")
	}
	return result, err
}

func (c *Connector) sync(ctx context.Context, acc *models.MailAccount, log zerolog.Logger) (SyncResult, error) {
	result := SyncResult{Checkpoint: acc.Checkpoint()}

	sess, err := c.open(ctx, acc)
	if err != nil {
		return result, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("IMAP logout failed")
		}
	}()

	validity, err := sess.SelectInbox(ctx)
	if err != nil {
		return result, &apperr.ConnectionError{Protocol: "imap", Host: acc.IMAPHost, Err: err}
	}

	cp := acc.Checkpoint()
	changed := false
	if cp.UIDValidity != int64(validity) {
		if cp.UIDValidity != 0 {
			log.Warn().
				Int64("old_validity", cp.UIDValidity).
				Uint32("new_validity", validity).
				Msg("UIDVALIDITY changed, resetting checkpoint")
		}
		cp = models.Checkpoint{UIDValidity: int64(validity)}
		changed = true
	}

	var since time.Time
	if cp.UID == 0 {
		since = c.now().AddDate(0, 0, -c.opts.LookbackDays)
	}

	found, err := sess.SearchUIDs(ctx, uint32(cp.UID), since)
	if err != nil {
		return result, &apperr.ConnectionError{Protocol: "imap", Host: acc.IMAPHost, Err: err}
	}
	uids := selectUIDs(found, cp.UID, c.opts.FetchLimit)

	if len(uids) > 0 {
		raws, err := sess.Fetch(ctx, uids)
		if err != nil {
			c.saveCheckpoint(ctx, acc, cp, changed, &result, log)
			return result, &apperr.ConnectionError{Protocol: "imap", Host: acc.IMAPHost, Err: err}
		}
		sort.Slice(raws, func(i, j int) bool { return raws[i].UID < raws[j].UID })

		for _, raw := range raws {
			msg, perr := ParseMessage(acc, validity, raw)
			if perr != nil {
				var parseErr *apperr.ParseError
				if !errors.As(perr, &parseErr) {
					return result, perr
				}
				log.Warn().Err(perr).Uint32("uid", raw.UID).Msg("Skipping malformed message")
				result.Skipped++
			} else {
				inserted, ierr := c.ledger.Insert(ctx, msg)
				if ierr != nil {
					c.saveCheckpoint(ctx, acc, cp, changed, &result, log)
					return result, fmt.Errorf("failed to store message uid %d: %w", raw.UID, ierr)
				}
				if inserted {
					result.NewMessages++
				} else {
					result.Duplicates++
				}
			}
			cp.UID = int64(raw.UID)
			changed = true
		}

		// UIDs expunged between search and fetch are gone for good
		if last := int64(uids[len(uids)-1]); last > cp.UID {
			cp.UID = last
			changed = true
		}
	}

	c.saveCheckpoint(ctx, acc, cp, changed, &result, log)
	return result, nil
}

func (c *Connector) saveCheckpoint(ctx context.Context, acc *models.MailAccount, cp models.Checkpoint, changed bool, result *SyncResult, log zerolog.Logger) {
	result.Checkpoint = cp
	if !changed {
		return
	}
	if err := c.accounts.Store().UpdateCheckpoint(context.WithoutCancel(ctx), acc.ID, cp); err != nil {
		log.Error().Err(err).Int64("checkpoint_uid", cp.UID).Msg("Failed to save checkpoint")
		result.Checkpoint = acc.Checkpoint()
	}
}

func (c *Connector) open(ctx context.Context, acc *models.MailAccount) (Session, error) {
	password, err := c.accounts.IMAPPassword(ctx, acc)
	if err != nil {
		return nil, err
	}
	if acc.IMAPHost == "" || acc.IMAPPort <= 0 {
		return nil, apperr.NewConfigError("imapHost", "account %s has no IMAP server configured", acc.Email)
	}
	return c.dialer.Dial(ctx, ServerConfig{
		Host:     acc.IMAPHost,
		Port:     acc.IMAPPort,
		User:     acc.IMAPUser,
		Password: password,
	})
}

// selectUIDs keeps UIDs above the checkpoint, oldest first, at most limit of them.
// Servers answer "N:*" with the highest UID even when it is below N.
func selectUIDs(found []uint32, after int64, limit int) []uint32 {
	uids := make([]uint32, 0, len(found))
	for _, uid := range found {
		if int64(uid) > after {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if limit > 0 && len(uids) > limit {
		uids = uids[:limit]
	}
	return uids
}
