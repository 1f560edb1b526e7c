// Package scan drives the engine: on every tick each active account is synced,
// then its NEW messages are claimed, answered and sent one at a time.
package scan

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mailpilot/internal/accounts"
	"mailpilot/internal/ai"
	"mailpilot/internal/apperr"
	"mailpilot/internal/ledger"
	"mailpilot/internal/lock"
	"mailpilot/internal/mailbox"
	"mailpilot/internal/models"
)

// ErrBusy is returned when the account already has a cycle in flight
var ErrBusy = errors.New("account cycle already running")

// Phase is where an account's cycle currently is
type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhaseSyncing    Phase = "SYNCING"
	PhaseScanning   Phase = "SCANNING"
	PhaseGenerating Phase = "GENERATING"
	PhaseSending    Phase = "SENDING"
)

// Syncer pulls new mail for an account into the ledger
type Syncer interface {
	Sync(ctx context.Context, acc *models.MailAccount) (mailbox.SyncResult, error)
}

// Generator drafts a reply
type Generator interface {
	GenerateReply(ctx context.Context, msg *models.IncomingMessage, settings models.AISettings) (models.OutgoingDraft, []models.ReplyAttempt, error)
}

// Sender stores and delivers outgoing mail
type Sender interface {
	Send(ctx context.Context, acc *models.MailAccount, draft models.OutgoingDraft) (models.OutgoingMessage, error)
	Deliver(ctx context.Context, acc *models.MailAccount, out models.OutgoingMessage) (models.OutgoingMessage, error)
}

// Config tunes the coordinator
type Config struct {
	Interval      time.Duration
	CycleTimeout  time.Duration
	StaleAfter    time.Duration
	MaxParallel   int
	MessageBudget int
}

// AccountReport is the outcome of one account cycle
type AccountReport struct {
	AccountID   string             `json:"accountId"`
	Email       string             `json:"email"`
	Busy        bool               `json:"busy,omitempty"`
	Sync        mailbox.SyncResult `json:"sync"`
	SyncError   string             `json:"syncError,omitempty"`
	Replied     int                `json:"replied"`
	Failed      int                `json:"failed"`
	Skipped     int                `json:"skipped"`
	Interrupted int                `json:"interrupted,omitempty"`
}

// TickReport aggregates one tick over every active account
type TickReport struct {
	StartedAt   time.Time       `json:"startedAt"`
	Duration    string          `json:"duration"`
	Accounts    int             `json:"accounts"`
	Busy        int             `json:"busy"`
	NewMessages int             `json:"newMessages"`
	Replied     int             `json:"replied"`
	Failed      int             `json:"failed"`
	Skipped     int             `json:"skipped"`
	Reclaimed   int             `json:"reclaimed"`
	Results     []AccountReport `json:"results"`
}

// AccountStatus is an account's cycle state as shown to operators
type AccountStatus struct {
	AccountID      string         `json:"accountId"`
	Email          string         `json:"email"`
	Active         bool           `json:"active"`
	Phase          Phase          `json:"phase"`
	LastSyncAt     *time.Time     `json:"lastSyncAt,omitempty"`
	LastSyncStatus string         `json:"lastSyncStatus"`
	LastCycleAt    *time.Time     `json:"lastCycleAt,omitempty"`
	LastReport     *AccountReport `json:"lastReport,omitempty"`
}

type accountState struct {
	phase       Phase
	lastCycleAt *time.Time
	lastReport  *AccountReport
}

// Coordinator runs scan cycles
type Coordinator struct {
	accounts  *accounts.Service
	ledger    ledger.Ledger
	syncer    Syncer
	generator Generator
	sender    Sender
	locker    lock.Locker
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	states map[string]*accountState
}

// NewCoordinator creates a coordinator
func NewCoordinator(svc *accounts.Service, l ledger.Ledger, syncer Syncer, generator Generator, sender Sender, locker lock.Locker, cfg Config, logger zerolog.Logger) *Coordinator {
	if cfg.Interval <= 0 {
		cfg.Interval = 20 * time.Second
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	// a claim younger than one cycle may still be in flight
	if cfg.StaleAfter <= cfg.CycleTimeout {
		cfg.StaleAfter = 2 * cfg.CycleTimeout
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if cfg.MessageBudget <= 0 {
		cfg.MessageBudget = 25
	}
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	return &Coordinator{
		accounts:  svc,
		ledger:    l,
		syncer:    syncer,
		generator: generator,
		sender:    sender,
		locker:    locker,
		cfg:       cfg,
		logger:    logger.With().Str("component", "scan").Logger(),
		now:       time.Now,
		states:    make(map[string]*accountState),
	}
}

// Run ticks until ctx is cancelled
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", c.cfg.Interval).Int("max_parallel", c.cfg.MaxParallel).Msg("Scan loop started")
	for {
		c.Tick(ctx)
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Scan loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// Recover returns messages left in PROCESSING by a crashed or interrupted cycle to NEW
func (c *Coordinator) Recover(ctx context.Context) int {
	reclaimed, err := c.ledger.ReclaimStale(ctx, c.cfg.StaleAfter)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to reclaim stale messages")
		return 0
	}
	if len(reclaimed) > 0 {
		c.logger.Warn().Int("count", len(reclaimed)).Msg("Reclaimed stale messages")
	}
	return len(reclaimed)
}

// Tick reclaims stale claims, then runs one cycle for every active account,
// bounded by MaxParallel and CycleTimeout
func (c *Coordinator) Tick(ctx context.Context) TickReport {
	reclaimed := c.Recover(ctx)
	accs, err := c.accounts.Store().ListActive(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to list active accounts")
	}
	report := c.tick(ctx, accs)
	report.Reclaimed = reclaimed
	return report
}

// TickTenant runs one cycle for the tenant's active accounts only
func (c *Coordinator) TickTenant(ctx context.Context, tenantID string) (TickReport, error) {
	all, err := c.accounts.Store().ListAccounts(ctx, tenantID)
	if err != nil {
		return TickReport{}, err
	}
	accs := make([]models.MailAccount, 0, len(all))
	for _, acc := range all {
		if acc.Active {
			accs = append(accs, acc)
		}
	}
	return c.tick(ctx, accs), nil
}

func (c *Coordinator) tick(ctx context.Context, accs []models.MailAccount) TickReport {
	started := c.now()
	report := TickReport{StartedAt: started.UTC(), Results: []AccountReport{}}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CycleTimeout)
	defer cancel()

	results := make([]AccountReport, len(accs))
	var g errgroup.Group
	g.SetLimit(c.cfg.MaxParallel)
	for i := range accs {
		acc := accs[i]
		g.Go(func() error {
			results[i] = c.runAccount(ctx, &acc)
			return nil
		})
	}
	_ = g.Wait()

	report.Accounts = len(accs)
	report.Results = results
	for _, r := range results {
		if r.Busy {
			report.Busy++
		}
		report.NewMessages += r.Sync.NewMessages
		report.Replied += r.Replied
		report.Failed += r.Failed
		report.Skipped += r.Skipped
	}
	report.Duration = c.now().Sub(started).String()

	if report.Accounts > 0 {
		c.logger.Info().
			Int("accounts", report.Accounts).
			Int("busy", report.Busy).
			Int("new", report.NewMessages).
			Int("replied", report.Replied).
			Int("failed", report.Failed).
			Int("skipped", report.Skipped).
			Str("took", report.Duration).
			Msg("Scan tick finished")
	}
	return report
}

// SyncAccount runs only the connector for one account, refusing when a cycle is in flight
func (c *Coordinator) SyncAccount(ctx context.Context, acc *models.MailAccount) (mailbox.SyncResult, error) {
	unlock, ok, err := c.locker.TryLock(ctx, acc.ID)
	if err != nil {
		return mailbox.SyncResult{}, err
	}
	if !ok {
		return mailbox.SyncResult{}, ErrBusy
	}
	defer unlock()

	c.setPhase(acc.ID, PhaseSyncing)
	defer c.setPhase(acc.ID, PhaseIdle)
	return c.syncer.Sync(ctx, acc)
}

// Status lists the tenant's accounts with their current phase
func (c *Coordinator) Status(ctx context.Context, tenantID string) ([]AccountStatus, error) {
	accs, err := c.accounts.Store().ListAccounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]AccountStatus, 0, len(accs))
	for _, acc := range accs {
		st := AccountStatus{
			AccountID:      acc.ID,
			Email:          acc.Email,
			Active:         acc.Active,
			Phase:          PhaseIdle,
			LastSyncAt:     acc.LastSyncAt,
			LastSyncStatus: acc.LastSyncStatus,
		}
		if s, ok := c.states[acc.ID]; ok {
			st.Phase = s.phase
			st.LastCycleAt = s.lastCycleAt
			st.LastReport = s.lastReport
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (c *Coordinator) runAccount(ctx context.Context, acc *models.MailAccount) AccountReport {
	report := AccountReport{AccountID: acc.ID, Email: acc.Email}
	log := c.logger.With().Str("account_id", acc.ID).Logger()

	unlock, ok, err := c.locker.TryLock(ctx, acc.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to take account lock")
		report.Busy = true
		return report
	}
	if !ok {
		log.Debug().Msg("Account cycle already running, skipping")
		report.Busy = true
		return report
	}
	defer unlock()

	c.cycle(ctx, acc, &report, log)

	at := c.now().UTC()
	c.mu.Lock()
	s := c.state(acc.ID)
	s.phase = PhaseIdle
	s.lastCycleAt = &at
	s.lastReport = &report
	c.mu.Unlock()
	return report
}

func (c *Coordinator) cycle(ctx context.Context, acc *models.MailAccount, report *AccountReport, log zerolog.Logger) {
	c.setPhase(acc.ID, PhaseSyncing)
	result, err := c.syncer.Sync(ctx, acc)
	report.Sync = result
	if err != nil {
		// messages already in the ledger are still answered
		report.SyncError = apperr.Describe(err)
	}

	for n := 0; n < c.cfg.MessageBudget; n++ {
		if ctx.Err() != nil {
			return
		}
		c.setPhase(acc.ID, PhaseScanning)
		msg, err := c.ledger.ClaimNext(ctx, acc.ID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to claim message")
			return
		}
		if msg == nil {
			return
		}

		switch c.process(ctx, acc, msg) {
		case models.StateReplied:
			report.Replied++
		case models.StateFailed:
			report.Failed++
		case models.StateSkipped:
			report.Skipped++
		default:
			report.Interrupted++
		}
	}
}

// process answers one claimed message and returns the state it ended in.
// PROCESSING means the cycle was cut short and ReclaimStale will pick it up.
func (c *Coordinator) process(ctx context.Context, acc *models.MailAccount, msg *models.IncomingMessage) models.MessageState {
	log := c.logger.With().Str("account_id", acc.ID).Str("message_id", msg.ID).Logger()

	if reason := SkipReason(acc, msg); reason != "" {
		return c.finish(ctx, msg, models.StateSkipped, reason, log)
	}

	pending, err := c.ledger.PendingOutgoing(ctx, msg.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to look up pending reply")
		return models.StateProcessing
	}
	if pending != nil {
		log.Info().Str("outgoing_id", pending.ID).Msg("Re-sending stored reply")
		c.setPhase(acc.ID, PhaseSending)
		out, err := c.sender.Deliver(ctx, acc, *pending)
		return c.afterSend(ctx, msg, out, err, log)
	}

	settings, err := c.accounts.Settings(ctx, acc.TenantID)
	if err != nil {
		return c.finish(ctx, msg, models.StateFailed, "settings: "+err.Error(), log)
	}

	c.setPhase(acc.ID, PhaseGenerating)
	draft, attempts, err := c.generator.GenerateReply(ctx, msg, settings)

	store := context.WithoutCancel(ctx)
	for i := range attempts {
		attempts[i].IncomingMessageID = msg.ID
		if rerr := c.ledger.RecordAttempt(store, &attempts[i]); rerr != nil {
			if errors.Is(rerr, ledger.ErrDuplicateSuccess) {
				return c.finish(ctx, msg, models.StateFailed, "a reply was already generated for this message", log)
			}
			log.Error().Err(rerr).Msg("Failed to record reply attempt")
		}
	}

	switch {
	case errors.Is(err, ai.ErrAutoReplyDisabled):
		return c.finish(ctx, msg, models.StateSkipped, models.ReasonAutoReplyDisabled, log)
	case err != nil && ctx.Err() != nil:
		log.Warn().Err(err).Msg("Reply generation interrupted")
		return models.StateProcessing
	case err != nil:
		reason := apperr.Describe(err)
		var chainErr *ai.ChainError
		if errors.As(err, &chainErr) {
			reason = chainErr.Error()
		}
		return c.finish(ctx, msg, models.StateFailed, reason, log)
	}

	c.setPhase(acc.ID, PhaseSending)
	out, err := c.sender.Send(ctx, acc, draft)
	return c.afterSend(ctx, msg, out, err, log)
}

func (c *Coordinator) afterSend(ctx context.Context, msg *models.IncomingMessage, out models.OutgoingMessage, err error, log zerolog.Logger) models.MessageState {
	if err != nil && ctx.Err() != nil {
		log.Warn().Err(err).Str("outgoing_id", out.ID).Msg("Send interrupted")
		return models.StateProcessing
	}
	if err != nil {
		return c.finish(ctx, msg, models.StateFailed, "send: "+apperr.Describe(err), log)
	}
	if merr := c.ledger.MarkReplied(context.WithoutCancel(ctx), msg.ID, out.ID); merr != nil {
		log.Error().Err(merr).Msg("Failed to mark message replied")
		return models.StateProcessing
	}
	log.Info().Str("outgoing_id", out.ID).Msg("Message replied")
	return models.StateReplied
}

func (c *Coordinator) finish(ctx context.Context, msg *models.IncomingMessage, state models.MessageState, reason string, log zerolog.Logger) models.MessageState {
	store := context.WithoutCancel(ctx)
	var err error
	if state == models.StateSkipped {
		err = c.ledger.MarkSkipped(store, msg.ID, reason)
	} else {
		err = c.ledger.MarkFailed(store, msg.ID, reason)
	}
	if err != nil {
		log.Error().Err(err).Str("state", string(state)).Msg("Failed to record message state")
		return models.StateProcessing
	}

	ev := log.Info()
	if state == models.StateFailed {
		ev = log.Warn()
	}
	ev.Str("state", string(state)).Str("reason", reason).Msg("Message finished without reply")
	return state
}

func (c *Coordinator) setPhase(accountID string, phase Phase) {
	c.mu.Lock()
	c.state(accountID).phase = phase
	c.mu.Unlock()
}

// state must be called with mu held
func (c *Coordinator) state(accountID string) *accountState {
	s, ok := c.states[accountID]
	if !ok {
		s = &accountState{phase: PhaseIdle}
		c.states[accountID] = s
	}
	return s
}

var noReplyLocalParts = []string{
	"noreply", "no-reply", "no_reply", "donotreply", "do-not-reply", "do_not_reply",
	"mailer-daemon", "postmaster", "bounce", "bounces",
}

// SkipReason returns why msg must not get an automatic reply, or "" when it may
func SkipReason(acc *models.MailAccount, msg *models.IncomingMessage) string {
	from := strings.ToLower(strings.TrimSpace(msg.FromAddress))
	if from == "" {
		return models.ReasonNoRecipient
	}
	if strings.EqualFold(from, acc.Email) {
		return models.ReasonOwnMessage
	}
	if a := strings.TrimSpace(msg.AutoSubmitted); a != "" && !strings.EqualFold(a, "no") {
		return models.ReasonAutoSubmitted
	}

	local := from
	if at := strings.LastIndex(from, "@"); at >= 0 {
		local = from[:at]
	}
	for _, p := range noReplyLocalParts {
		if local == p || strings.HasPrefix(local, p+"+") || strings.HasPrefix(local, p+".") {
			return models.ReasonNoReplySender
		}
	}
	return ""
}
