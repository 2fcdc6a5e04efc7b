package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"termledger/backend/services/ledger-service/internal/metrics"
	"termledger/backend/services/ledger-service/internal/models"
	"termledger/backend/services/ledger-service/internal/repository"
)

// CloseOutcome tells whether a close path changed anything.
type CloseOutcome string

const (
	OutcomeClosed            CloseOutcome = "closed"
	OutcomeAlreadyTerminated CloseOutcome = "already_terminated"
)

// StartRequest asks for a session. RequestedSeconds caps the grant (countdown variant);
// zero grants the whole wallet.
type StartRequest struct {
	TerminalID       string
	UserID           string
	RequestedSeconds int64
}

// StartResult is a started session.
type StartResult struct {
	Terminal models.Terminal      `json:"terminal"`
	Session  models.SessionRecord `json:"session"`
}

// CloseResult reports one close path invocation.
type CloseResult struct {
	Outcome         CloseOutcome     `json:"outcome"`
	TerminalID      string           `json:"terminal_id"`
	UserID          string           `json:"user_id,omitempty"`
	SessionID       string           `json:"session_id,omitempty"`
	RefundedSeconds int64            `json:"refunded_seconds"`
	Path            models.ClosePath `json:"path,omitempty"`
	ClosedAt        time.Time        `json:"closed_at,omitempty"`
}

// PendingSettlement is the part of a close that ran after the terminal was released and failed.
// Seconds is fixed at transition time; retries only replay the missing steps.
type PendingSettlement struct {
	Key          string           `json:"key"`
	TerminalID   string           `json:"terminal_id"`
	SessionID    string           `json:"session_id,omitempty"`
	UserID       string           `json:"user_id"`
	Seconds      int64            `json:"seconds"`
	ClosedAt     time.Time        `json:"closed_at"`
	Path         models.ClosePath `json:"path,omitempty"`
	RecordClosed bool             `json:"record_closed"`
	Credited     bool             `json:"credited"`
	// Discard marks the record of a start that never took its terminal. It is deleted, or
	// closed as reconciled at ClosedAt when the delete keeps failing.
	Discard bool `json:"discard,omitempty"`
}

// TerminalView is a terminal with its countdown derived at read time.
type TerminalView struct {
	models.Terminal
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// orphanGrace is how old an open record must be before Reconcile treats it as orphaned.
const orphanGrace = 30 * time.Second

// Controller runs the session lifecycle over the registry, ledger and record store.
// It is the only writer that touches more than one of them per operation.
type Controller struct {
	terminals TerminalRegistry
	sessions  SessionStore
	ledger    *Ledger
	notifier  Notifier
	starter   AtomicStarter
	now       Clock
	logger    *zap.Logger

	mu      sync.Mutex
	pending map[string]PendingSettlement
}

// ControllerOption customises a Controller.
type ControllerOption func(*Controller)

// WithAtomicStart makes StartSession write the withdrawal, record and transition through
// starter in one step instead of three compensated ones.
func WithAtomicStart(starter AtomicStarter) ControllerOption {
	return func(c *Controller) {
		c.starter = starter
	}
}

// NewController builds the session controller.
func NewController(
	terminals TerminalRegistry,
	sessions SessionStore,
	ledger *Ledger,
	notifier Notifier,
	now Clock,
	logger *zap.Logger,
	opts ...ControllerOption,
) *Controller {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if now == nil {
		now = SystemClock
	}
	c := &Controller{
		terminals: terminals,
		sessions:  sessions,
		ledger:    ledger,
		notifier:  notifier,
		now:       now,
		logger:    logger,
		pending:   make(map[string]PendingSettlement),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartSession moves the user's wallet (or the requested part of it) into a new session.
// On any failure no store is left changed.
func (c *Controller) StartSession(ctx context.Context, req StartRequest) (*StartResult, error) {
	if req.RequestedSeconds < 0 {
		return nil, ErrInvalidDuration
	}
	terminal, err := c.terminals.Get(ctx, req.TerminalID)
	if err != nil {
		return nil, mapTerminalErr(err)
	}
	if terminal.Status != models.TerminalIdle {
		return nil, ErrAlreadyOccupied
	}
	if _, err := c.ledger.get(ctx, req.UserID); err != nil {
		return nil, err
	}
	active, err := c.terminals.FindByOccupant(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("find active terminal: %w", err)
	}
	if active != nil {
		return nil, ErrUserAlreadyActiveElsewhere
	}

	record := models.SessionRecord{
		ID:         uuid.NewString(),
		TerminalID: req.TerminalID,
		UserID:     req.UserID,
		StartTime:  c.now(),
	}
	var updated *models.Terminal
	if c.starter != nil {
		updated, err = c.startAtomic(ctx, &record, req.RequestedSeconds)
	} else {
		updated, err = c.startSteps(ctx, &record, req.RequestedSeconds)
	}
	if err != nil {
		return nil, err
	}

	metrics.SessionsStarted.Inc()
	c.logger.Info("session started",
		zap.String("terminal_id", updated.ID),
		zap.String("user_id", req.UserID),
		zap.String("session_id", record.ID),
		zap.Int64("granted_seconds", record.GrantedSeconds),
		zap.Timep("end_time", updated.SessionEndTime),
	)
	c.notify(models.EntitySession, models.OpInsert, record)
	c.notify(models.EntityTerminal, models.OpUpdate, *updated)

	return &StartResult{Terminal: *updated, Session: record}, nil
}

// startAtomic hands the whole start to the configured AtomicStarter.
func (c *Controller) startAtomic(ctx context.Context, record *models.SessionRecord, requested int64) (*models.Terminal, error) {
	in := models.SessionStart{
		RecordID:   record.ID,
		TerminalID: record.TerminalID,
		UserID:     record.UserID,
		Limit:      requested,
		At:         record.StartTime,
	}
	terminal, started, err := c.starter.Start(ctx, in)
	if errors.Is(err, repository.ErrRecordAlreadyOpen) && c.reclaim(ctx, record.TerminalID) {
		terminal, started, err = c.starter.Start(ctx, in)
	}
	if err != nil {
		return nil, mapStartErr(err)
	}
	*record = *started
	if user, err := c.ledger.users.Get(ctx, record.UserID); err == nil {
		c.ledger.publish(models.OpUpdate, user)
	}
	return terminal, nil
}

// startSteps withdraws, opens the record and takes the terminal as separate writes, undoing
// the earlier ones when a later one fails.
func (c *Controller) startSteps(ctx context.Context, record *models.SessionRecord, requested int64) (*models.Terminal, error) {
	var (
		granted int64
		err     error
	)
	if requested > 0 {
		granted, err = c.ledger.WithdrawUpTo(ctx, record.UserID, requested)
	} else {
		granted, err = c.ledger.WithdrawAll(ctx, record.UserID)
	}
	if err != nil {
		return nil, err
	}
	if granted <= 0 {
		return nil, ErrInsufficientBalance
	}
	record.GrantedSeconds = granted
	end := record.StartTime.Add(time.Duration(granted) * time.Second)

	err = c.sessions.Open(ctx, record)
	if errors.Is(err, repository.ErrRecordAlreadyOpen) && c.reclaim(ctx, record.TerminalID) {
		err = c.sessions.Open(ctx, record)
	}
	if err != nil {
		return nil, c.abortStart(ctx, *record, false, mapStartErr(err))
	}

	updated, err := c.terminals.CompareAndTransition(ctx, record.TerminalID,
		models.IdleState(), models.InUseState(record.UserID, end), record.StartTime)
	if err != nil {
		return nil, c.abortStart(ctx, *record, true, mapStartErr(err))
	}
	return updated, nil
}

// abortStart returns the withdrawn seconds under the record's refund key and drops the record
// if it was opened. Whatever fails is queued; the caller gets a PartialFailureError only while
// the seconds are still missing from the wallet.
func (c *Controller) abortStart(ctx context.Context, record models.SessionRecord, opened bool, cause error) error {
	p := PendingSettlement{
		Key:          "refund:" + record.ID,
		TerminalID:   record.TerminalID,
		UserID:       record.UserID,
		Seconds:      record.GrantedSeconds,
		ClosedAt:     record.StartTime,
		RecordClosed: !opened,
	}
	if opened {
		p.SessionID = record.ID
		p.Discard = true
	}
	err := c.settle(ctx, &p)
	if err == nil {
		return cause
	}
	c.enqueue(p)
	metrics.PartialFailures.Inc()
	c.logger.Error("failed to undo aborted start",
		zap.String("terminal_id", record.TerminalID),
		zap.String("session_id", p.SessionID),
		zap.String("user_id", record.UserID),
		zap.Int64("seconds", record.GrantedSeconds),
		zap.Bool("credited", p.Credited),
		zap.NamedError("cause", cause),
		zap.Error(err),
	)
	if p.Credited {
		return cause
	}
	return &PartialFailureError{Pending: p, Err: err}
}

func mapStartErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrRecordAlreadyOpen):
		return ErrAlreadyOccupied
	case errors.Is(err, repository.ErrTransitionRejected):
		metrics.TransitionConflicts.WithLabelValues("start").Inc()
		return ErrAlreadyOccupied
	case errors.Is(err, repository.ErrOccupantBusy):
		metrics.TransitionConflicts.WithLabelValues("start").Inc()
		return ErrUserAlreadyActiveElsewhere
	case errors.Is(err, repository.ErrEmptyWallet):
		return ErrInsufficientBalance
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	default:
		return mapTerminalErr(err)
	}
}

// StopSession ends a session on behalf of its occupant. A terminal that is already free
// yields OutcomeAlreadyTerminated and a nil error.
func (c *Controller) StopSession(ctx context.Context, terminalID, userID string) (*CloseResult, error) {
	terminal, err := c.terminals.Get(ctx, terminalID)
	if err != nil {
		return nil, mapTerminalErr(err)
	}
	if terminal.Status != models.TerminalInUse {
		return &CloseResult{Outcome: OutcomeAlreadyTerminated, TerminalID: terminalID}, nil
	}
	if terminal.OccupantUserID != userID {
		return nil, ErrOccupantMismatch
	}
	return c.close(ctx, terminal, models.ClosedByStop, c.now())
}

// ForceStop ends whatever session the terminal has. A terminal that is already free, or
// that another path frees first, yields OutcomeAlreadyTerminated and a nil error.
func (c *Controller) ForceStop(ctx context.Context, terminalID string) (*CloseResult, error) {
	terminal, err := c.terminals.Get(ctx, terminalID)
	if err != nil {
		return nil, mapTerminalErr(err)
	}
	if terminal.Status != models.TerminalInUse {
		return &CloseResult{Outcome: OutcomeAlreadyTerminated, TerminalID: terminalID}, nil
	}
	res, err := c.close(ctx, terminal, models.ClosedByForceStop, c.now())
	if errors.Is(err, ErrAlreadyTerminated) {
		return &CloseResult{Outcome: OutcomeAlreadyTerminated, TerminalID: terminalID}, nil
	}
	return res, err
}

// Expire closes a session whose end time has passed. Called by the sweeper.
func (c *Controller) Expire(ctx context.Context, terminalID string) (*CloseResult, error) {
	terminal, err := c.terminals.Get(ctx, terminalID)
	if err != nil {
		return nil, mapTerminalErr(err)
	}
	if terminal.Status != models.TerminalInUse || terminal.SessionEndTime == nil {
		return nil, ErrAlreadyTerminated
	}
	now := c.now()
	if now.Before(*terminal.SessionEndTime) {
		return nil, ErrNotExpired
	}
	return c.close(ctx, terminal, models.ClosedByExpire, now)
}

// close releases the terminal if it still holds the observed session, then settles the
// record and refund. Losing the transition means another path owns the close.
func (c *Controller) close(ctx context.Context, terminal *models.Terminal, path models.ClosePath, now time.Time) (*CloseResult, error) {
	expected := terminal.State()
	remaining := models.RemainingSeconds(expected.SessionEndTime, now)

	record, err := c.sessions.FindOpen(ctx, terminal.ID)
	if err != nil {
		return nil, fmt.Errorf("find open session record: %w", err)
	}

	released, err := c.terminals.CompareAndTransition(ctx, terminal.ID, expected, models.IdleState(), now)
	if err != nil {
		if errors.Is(err, repository.ErrTransitionRejected) {
			metrics.TransitionConflicts.WithLabelValues(string(path)).Inc()
			c.logger.Debug("close lost to a concurrent transition",
				zap.String("terminal_id", terminal.ID),
				zap.String("path", string(path)),
			)
			return nil, ErrAlreadyTerminated
		}
		return nil, mapTerminalErr(err)
	}
	c.notify(models.EntityTerminal, models.OpUpdate, *released)

	p := PendingSettlement{
		TerminalID: terminal.ID,
		UserID:     expected.OccupantUserID,
		Seconds:    remaining,
		ClosedAt:   now,
		Path:       path,
	}
	if record != nil && record.UserID == expected.OccupantUserID {
		p.SessionID = record.ID
		p.Key = "refund:" + record.ID
	} else {
		p.RecordClosed = true
		p.Key = fmt.Sprintf("refund:%s:%d", terminal.ID, expected.SessionEndTime.UnixMicro())
	}

	result := &CloseResult{
		Outcome:         OutcomeClosed,
		TerminalID:      terminal.ID,
		UserID:          p.UserID,
		SessionID:       p.SessionID,
		RefundedSeconds: remaining,
		Path:            path,
		ClosedAt:        now,
	}

	if err := c.settle(ctx, &p); err != nil {
		c.enqueue(p)
		metrics.PartialFailures.Inc()
		c.logger.Error("session released but settlement failed",
			zap.String("terminal_id", p.TerminalID),
			zap.String("session_id", p.SessionID),
			zap.String("user_id", p.UserID),
			zap.Int64("seconds", p.Seconds),
			zap.Bool("record_closed", p.RecordClosed),
			zap.Error(err),
		)
		return result, &PartialFailureError{Pending: p, Err: err}
	}

	metrics.SessionsClosed.WithLabelValues(string(path)).Inc()
	metrics.RefundedSeconds.WithLabelValues(string(path)).Add(float64(remaining))
	c.logger.Info("session closed",
		zap.String("terminal_id", p.TerminalID),
		zap.String("session_id", p.SessionID),
		zap.String("user_id", p.UserID),
		zap.String("path", string(path)),
		zap.Int64("refunded_seconds", remaining),
	)
	return result, nil
}

// settle replays whichever of record close and refund credit has not happened yet. Both
// steps are attempted on every call. It mutates p so a failed attempt keeps the steps that
// did succeed.
func (c *Controller) settle(ctx context.Context, p *PendingSettlement) error {
	var errs []error
	if !p.RecordClosed {
		if err := c.settleRecord(ctx, p); err != nil {
			errs = append(errs, err)
		} else {
			p.RecordClosed = true
		}
	}
	if !p.Credited {
		_, _, err := c.ledger.CreditOnce(ctx, p.UserID, p.Seconds, p.Key)
		switch {
		case errors.Is(err, ErrUserNotFound):
			c.logger.Warn("refund dropped, user no longer exists",
				zap.String("user_id", p.UserID),
				zap.Int64("seconds", p.Seconds),
			)
			p.Credited = true
		case err != nil:
			errs = append(errs, fmt.Errorf("credit refund: %w", err))
		default:
			p.Credited = true
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) settleRecord(ctx context.Context, p *PendingSettlement) error {
	path := p.Path
	if p.Discard {
		err := c.sessions.Discard(ctx, p.SessionID)
		if err == nil {
			return nil
		}
		c.logger.Warn("discard failed, closing aborted session record instead",
			zap.String("session_id", p.SessionID),
			zap.Error(err),
		)
		path = models.ClosedByReconcile
	}
	rec, err := c.sessions.CloseByID(ctx, p.SessionID, p.ClosedAt, path)
	if err != nil {
		return fmt.Errorf("close session record: %w", err)
	}
	if rec != nil {
		c.notify(models.EntitySession, models.OpUpdate, *rec)
	}
	return nil
}

func (c *Controller) enqueue(p PendingSettlement) {
	c.mu.Lock()
	c.pending[p.Key] = p
	metrics.PendingSettlements.Set(float64(len(c.pending)))
	c.mu.Unlock()
}

// Pending lists settlements waiting for a retry, oldest first.
func (c *Controller) Pending() []PendingSettlement {
	c.mu.Lock()
	out := make([]PendingSettlement, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.Before(out[j].ClosedAt) })
	return out
}

// SettlePending retries every queued settlement once. It returns how many completed and
// the first error seen; failed entries stay queued with their progress.
func (c *Controller) SettlePending(ctx context.Context) (int, error) {
	var (
		settled  int
		firstErr error
	)
	for _, p := range c.Pending() {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		if err := c.retry(ctx, p); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		settled++
	}
	return settled, firstErr
}

func (c *Controller) retry(ctx context.Context, p PendingSettlement) error {
	err := c.settle(ctx, &p)

	c.mu.Lock()
	if err != nil {
		c.pending[p.Key] = p
	} else {
		delete(c.pending, p.Key)
	}
	metrics.PendingSettlements.Set(float64(len(c.pending)))
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("pending settlement still failing", zap.String("key", p.Key), zap.Error(err))
		return err
	}
	if p.Path != "" {
		metrics.SessionsClosed.WithLabelValues(string(p.Path)).Inc()
		metrics.RefundedSeconds.WithLabelValues(string(p.Path)).Add(float64(p.Seconds))
	}
	c.logger.Info("pending settlement completed",
		zap.String("key", p.Key),
		zap.String("user_id", p.UserID),
		zap.Int64("seconds", p.Seconds),
	)
	return nil
}

func (c *Controller) pendingFor(sessionID string) (PendingSettlement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pending {
		if p.SessionID == sessionID {
			return p, true
		}
	}
	return PendingSettlement{}, false
}

// Reconcile closes open records that no live session owns and credits their unused time
// under the record's refund key, so a close or aborted start whose follow-up was lost (for
// instance with the pending queue on a restart) still settles. Records with a queued
// settlement are left to SettlePending, and records younger than orphanGrace are skipped
// since a stepwise start may sit between opening its record and taking the terminal.
func (c *Controller) Reconcile(ctx context.Context) (int, error) {
	records, err := c.sessions.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open session records: %w", err)
	}
	var (
		reconciled int
		firstErr   error
	)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return reconciled, err
		}
		if _, queued := c.pendingFor(rec.ID); queued {
			continue
		}
		closed, err := c.reconcileRecord(ctx, rec)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if closed {
			reconciled++
		}
	}
	return reconciled, firstErr
}

// reconcileRecord settles rec if it is orphaned. The session is taken to have ended when its
// terminal last changed, or at its start when the terminal never moved after it.
func (c *Controller) reconcileRecord(ctx context.Context, rec models.SessionRecord) (bool, error) {
	if c.now().Sub(rec.StartTime) < orphanGrace {
		return false, nil
	}
	closedAt := rec.StartTime
	terminal, err := c.terminals.Get(ctx, rec.TerminalID)
	switch {
	case err == nil:
		if terminal.Status == models.TerminalInUse && terminal.OccupantUserID == rec.UserID {
			return false, nil
		}
		if terminal.UpdatedAt.After(closedAt) {
			closedAt = terminal.UpdatedAt
		}
	case !errors.Is(err, repository.ErrTerminalNotFound):
		return false, fmt.Errorf("get terminal: %w", err)
	}

	end := rec.StartTime.Add(time.Duration(rec.GrantedSeconds) * time.Second)
	p := PendingSettlement{
		Key:        "refund:" + rec.ID,
		TerminalID: rec.TerminalID,
		SessionID:  rec.ID,
		UserID:     rec.UserID,
		Seconds:    models.RemainingSeconds(end, closedAt),
		ClosedAt:   closedAt,
		Path:       models.ClosedByReconcile,
	}
	if err := c.settle(ctx, &p); err != nil {
		c.enqueue(p)
		metrics.PartialFailures.Inc()
		c.logger.Error("orphaned session record not settled",
			zap.String("session_id", rec.ID),
			zap.String("terminal_id", rec.TerminalID),
			zap.Error(err),
		)
		return false, err
	}
	metrics.SessionsClosed.WithLabelValues(string(p.Path)).Inc()
	metrics.RefundedSeconds.WithLabelValues(string(p.Path)).Add(float64(p.Seconds))
	c.logger.Warn("orphaned session record reconciled",
		zap.String("session_id", rec.ID),
		zap.String("terminal_id", rec.TerminalID),
		zap.String("user_id", rec.UserID),
		zap.Time("closed_at", closedAt),
		zap.Int64("refund_seconds", p.Seconds),
	)
	return true, nil
}

// reclaim frees an idle terminal from the open record that blocked a start: a queued
// settlement for it is retried, otherwise the record is reconciled. It reports whether the
// start is worth one more attempt.
func (c *Controller) reclaim(ctx context.Context, terminalID string) bool {
	rec, err := c.sessions.FindOpen(ctx, terminalID)
	if err != nil || rec == nil {
		return false
	}
	if p, queued := c.pendingFor(rec.ID); queued {
		return c.retry(ctx, p) == nil
	}
	closed, err := c.reconcileRecord(ctx, *rec)
	return err == nil && closed
}

// ListTerminals returns all terminals with remaining time computed at one instant.
func (c *Controller) ListTerminals(ctx context.Context) ([]TerminalView, error) {
	terminals, err := c.terminals.List(ctx)
	if err != nil {
		return nil, err
	}
	now := c.now()
	views := make([]TerminalView, 0, len(terminals))
	for _, t := range terminals {
		views = append(views, TerminalView{Terminal: t, RemainingSeconds: t.RemainingSeconds(now)})
	}
	return views, nil
}

// SetOffline takes an idle terminal out of service.
func (c *Controller) SetOffline(ctx context.Context, terminalID string) (*models.Terminal, error) {
	return c.setAvailability(ctx, terminalID, models.IdleState(), models.OfflineState())
}

// SetOnline returns an offline terminal to service.
func (c *Controller) SetOnline(ctx context.Context, terminalID string) (*models.Terminal, error) {
	return c.setAvailability(ctx, terminalID, models.OfflineState(), models.IdleState())
}

func (c *Controller) setAvailability(ctx context.Context, terminalID string, from, to models.TerminalState) (*models.Terminal, error) {
	terminal, err := c.terminals.Get(ctx, terminalID)
	if err != nil {
		return nil, mapTerminalErr(err)
	}
	if terminal.Status == to.Status {
		return terminal, nil
	}
	if terminal.Status != from.Status {
		return nil, ErrTerminalBusy
	}
	updated, err := c.terminals.CompareAndTransition(ctx, terminalID, from, to, c.now())
	if err != nil {
		if errors.Is(err, repository.ErrTransitionRejected) {
			metrics.TransitionConflicts.WithLabelValues(string(to.Status)).Inc()
			return nil, ErrTerminalBusy
		}
		return nil, mapTerminalErr(err)
	}
	c.logger.Info("terminal availability changed",
		zap.String("terminal_id", terminalID),
		zap.String("status", string(updated.Status)),
	)
	c.notify(models.EntityTerminal, models.OpUpdate, *updated)
	return updated, nil
}

// ProvisionTerminals makes sure a terminal exists for every name. Existing ones are untouched.
func (c *Controller) ProvisionTerminals(ctx context.Context, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		t, inserted, err := c.terminals.UpsertByName(ctx, uuid.NewString(), name, c.now())
		if err != nil {
			return fmt.Errorf("provision terminal %q: %w", name, err)
		}
		if inserted {
			c.logger.Info("terminal provisioned", zap.String("terminal_id", t.ID), zap.String("name", name))
			c.notify(models.EntityTerminal, models.OpInsert, *t)
		}
	}
	return nil
}

// SessionsForUser returns the user's session history, newest first.
func (c *Controller) SessionsForUser(ctx context.Context, userID string, limit int) ([]models.SessionRecord, error) {
	if _, err := c.ledger.get(ctx, userID); err != nil {
		return nil, err
	}
	return c.sessions.ListByUser(ctx, userID, limit)
}

func (c *Controller) notify(entity models.Entity, op models.ChangeOp, row interface{}) {
	c.notifier.Notify(models.ChangeEvent{Entity: entity, Op: op, Row: row, At: c.now()})
}

func mapTerminalErr(err error) error {
	if errors.Is(err, repository.ErrTerminalNotFound) {
		return ErrTerminalNotFound
	}
	return err
}
