// Package wizard drives the add/edit record dialog: a short per-conversation
// state machine that collects a date, a label and an amount, commits exactly
// one write and arms a time-boxed undo.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/ledger"
	"github.com/IlyaMakar/cashbook_bot/internal/logger"
	"github.com/shopspring/decimal"
)

const (
	DefaultUndoWindow = 10 * time.Second
	DefaultSessionTTL = 30 * time.Minute
)

var (
	ErrNoSession     = errors.New("no active session")
	ErrWrongStep     = errors.New("input does not belong to the current step")
	ErrInvalidDate   = errors.New("invalid date")
	ErrEmptyLabel    = errors.New("empty label")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrNotEditable   = errors.New("record cannot be edited")
	ErrUndoExpired   = errors.New("undo window elapsed")
)

var todayWords = map[string]bool{"сегодня": true, "today": true}

type Mode int

const (
	ModeAdd Mode = iota + 1
	ModeEdit
	ModeSalary
)

func (m Mode) String() string {
	switch m {
	case ModeAdd:
		return "add"
	case ModeEdit:
		return "edit"
	case ModeSalary:
		return "salary"
	default:
		return "unknown"
	}
}

type Step int

const (
	StepDate Step = iota + 1
	StepLabel
	StepAmount
)

func (s Step) String() string {
	switch s {
	case StepDate:
		return "awaiting-date"
	case StepLabel:
		return "awaiting-label"
	case StepAmount:
		return "awaiting-amount"
	default:
		return "unknown"
	}
}

// Key identifies one conversation.
type Key struct {
	UserID int64
	ChatID int64
}

type Session struct {
	Mode Mode
	Step Step

	TargetRowID    int
	PreviousLabel  string
	PreviousAmount decimal.Decimal

	Date   time.Time
	Label  string
	Amount decimal.Decimal

	// Visited lists the steps entered so far, in order.
	Visited []Step

	StartedAt time.Time
	TouchedAt time.Time
}

func (s *Session) enter(step Step, at time.Time) {
	s.Step = step
	s.Visited = append(s.Visited, step)
	s.TouchedAt = at
}

type UndoKind int

const (
	UndoInsert UndoKind = iota + 1
	UndoUpdate
)

// UndoToken reverses the last write of a conversation until ExpiresAt.
// Written is the row as the write left it; the inverse only runs while the
// sheet still holds it there.
type UndoToken struct {
	Kind      UndoKind
	RowID     int
	Date      time.Time
	ExpiresAt time.Time
	Written   ledger.Record

	PreviousLabel  string
	PreviousAmount decimal.Decimal
}

func (t UndoToken) Period() string { return ledger.PeriodKey(t.Date) }

type Commit struct {
	Mode   Mode
	Record ledger.Record
	Undo   UndoToken
}

// Result of one Advance call: either the step now awaited or a commit.
type Result struct {
	Step   Step
	Commit *Commit
}

// Ledger is the write side of the store used by the wizard.
type Ledger interface {
	Insert(ctx context.Context, rec ledger.Record) (int, error)
	// Update and Delete fail with repository.ErrStaleRow when want.RowID no
	// longer holds want.
	Update(ctx context.Context, want ledger.Record, label string, amount decimal.Decimal) error
	Delete(ctx context.Context, want ledger.Record) error
}

type Options struct {
	UndoWindow time.Duration
	SessionTTL time.Duration
	Location   *time.Location
	Now        func() time.Time
}

type Manager struct {
	ledger     Ledger
	undoWindow time.Duration
	sessionTTL time.Duration
	loc        *time.Location
	now        func() time.Time

	mu       sync.Mutex
	sessions map[Key]*Session
	tokens   map[Key]UndoToken
}

func NewManager(l Ledger, opts Options) *Manager {
	m := &Manager{
		ledger:     l,
		undoWindow: opts.UndoWindow,
		sessionTTL: opts.SessionTTL,
		loc:        opts.Location,
		now:        opts.Now,
		sessions:   make(map[Key]*Session),
		tokens:     make(map[Key]UndoToken),
	}
	if m.undoWindow <= 0 {
		m.undoWindow = DefaultUndoWindow
	}
	if m.sessionTTL <= 0 {
		m.sessionTTL = DefaultSessionTTL
	}
	if m.loc == nil {
		m.loc = time.Local
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

func (m *Manager) UndoWindow() time.Duration { return m.undoWindow }

func (m *Manager) today() time.Time {
	return ledger.Day(m.now().In(m.loc))
}

// StartAdd opens an add session. With a preset date the date step is skipped.
func (m *Manager) StartAdd(key Key, preset *time.Time) Session {
	s := &Session{Mode: ModeAdd}
	if preset != nil {
		s.Date = ledger.Day(*preset)
		return m.start(key, s, StepLabel)
	}
	return m.start(key, s, StepDate)
}

// StartEdit opens an edit session for an existing transaction; the date stays
// as it is.
func (m *Manager) StartEdit(key Key, rec ledger.Record) (Session, error) {
	if rec.Kind != ledger.KindTransaction || rec.RowID <= 0 {
		return Session{}, ErrNotEditable
	}
	s := &Session{
		Mode:           ModeEdit,
		TargetRowID:    rec.RowID,
		PreviousLabel:  rec.Label,
		PreviousAmount: rec.Amount,
		Date:           rec.Date,
	}
	return m.start(key, s, StepLabel), nil
}

// StartSalary opens a salary entry dated today; only the amount is asked.
func (m *Manager) StartSalary(key Key) Session {
	return m.start(key, &Session{Mode: ModeSalary, Date: m.today()}, StepAmount)
}

func (m *Manager) start(key Key, s *Session, first Step) Session {
	now := m.now()
	s.StartedAt = now
	s.enter(first, now)

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.sessions[key]; ok && !m.expired(prev, now) {
		logger.Warn("Wizard session replaced, partial input discarded",
			"chat_id", key.ChatID, "user_id", key.UserID,
			"mode", prev.Mode.String(), "step", prev.Step.String())
	}
	m.sessions[key] = s
	return snapshot(s)
}

func (m *Manager) expired(s *Session, now time.Time) bool {
	return now.Sub(s.TouchedAt) >= m.sessionTTL
}

func snapshot(s *Session) Session {
	c := *s
	c.Visited = append([]Step(nil), s.Visited...)
	return c
}

// Active returns the live session of key. Expired sessions are dropped.
func (m *Manager) Active(key Key) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return Session{}, false
	}
	if m.expired(s, m.now()) {
		delete(m.sessions, key)
		return Session{}, false
	}
	return snapshot(s), true
}

// Advance feeds one text message into the session. Rejected input leaves the
// session on the same step.
func (m *Manager) Advance(ctx context.Context, key Key, input string) (Result, error) {
	text := strings.TrimSpace(input)

	m.mu.Lock()
	s, ok := m.sessions[key]
	now := m.now()
	if ok && m.expired(s, now) {
		delete(m.sessions, key)
		ok = false
	}
	if !ok {
		m.mu.Unlock()
		return Result{}, ErrNoSession
	}

	switch s.Step {
	case StepDate:
		defer m.mu.Unlock()
		if todayWords[strings.ToLower(text)] {
			s.Date = m.today()
		} else {
			d, err := ledger.ParseDate(text)
			if err != nil {
				return Result{Step: s.Step}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
			}
			s.Date = d
		}
		s.enter(StepLabel, now)
		return Result{Step: s.Step}, nil

	case StepLabel:
		defer m.mu.Unlock()
		if text == "" {
			return Result{Step: s.Step}, ErrEmptyLabel
		}
		s.Label = text
		s.enter(StepAmount, now)
		return Result{Step: s.Step}, nil

	case StepAmount:
		amount, err := ledger.ParseAmount(text)
		if err != nil {
			m.mu.Unlock()
			return Result{Step: s.Step}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		s.Amount = amount
		// The session ends with this write whatever its outcome.
		delete(m.sessions, key)
		done := *s
		m.mu.Unlock()
		return m.commit(ctx, key, done)
	}

	m.mu.Unlock()
	return Result{}, fmt.Errorf("session in unknown step %d", s.Step)
}

// Today answers the "today" button on the date prompt.
func (m *Manager) Today(ctx context.Context, key Key) (Result, error) {
	s, ok := m.Active(key)
	if !ok {
		return Result{}, ErrNoSession
	}
	if s.Step != StepDate {
		return Result{Step: s.Step}, ErrWrongStep
	}
	return m.Advance(ctx, key, "сегодня")
}

func (m *Manager) commit(ctx context.Context, key Key, s Session) (Result, error) {
	var (
		rec   ledger.Record
		token UndoToken
	)

	switch s.Mode {
	case ModeAdd, ModeSalary:
		if s.Mode == ModeSalary {
			rec = ledger.NewSalary(s.Date, s.Amount)
		} else {
			rec = ledger.NewTransaction(s.Date, s.Label, s.Amount)
		}
		row, err := m.ledger.Insert(ctx, rec)
		if err != nil {
			return Result{}, fmt.Errorf("insert record: %w", err)
		}
		rec.RowID = row
		token = UndoToken{Kind: UndoInsert, RowID: row, Date: rec.Date, Written: rec}

	case ModeEdit:
		target := ledger.NewTransaction(s.Date, s.PreviousLabel, s.PreviousAmount)
		target.RowID = s.TargetRowID
		if err := m.ledger.Update(ctx, target, s.Label, s.Amount); err != nil {
			return Result{}, fmt.Errorf("update record: %w", err)
		}
		rec = ledger.NewTransaction(s.Date, s.Label, s.Amount)
		rec.RowID = s.TargetRowID
		token = UndoToken{
			Kind:           UndoUpdate,
			RowID:          s.TargetRowID,
			Date:           s.Date,
			Written:        rec,
			PreviousLabel:  s.PreviousLabel,
			PreviousAmount: s.PreviousAmount,
		}

	default:
		return Result{}, fmt.Errorf("unknown wizard mode %d", s.Mode)
	}

	token.ExpiresAt = m.now().Add(m.undoWindow)

	m.mu.Lock()
	m.tokens[key] = token
	m.mu.Unlock()

	logger.Info("Record committed",
		"chat_id", key.ChatID, "mode", s.Mode.String(), "row", rec.RowID,
		"date", rec.DateString(), "amount", rec.Amount.String())

	return Result{Commit: &Commit{Mode: s.Mode, Record: rec, Undo: token}}, nil
}

// Token returns the live undo token of key, if any.
func (m *Manager) Token(key Key) (UndoToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[key]
	return t, ok
}

// Undo reverses the last write when rowID and kind match the live token and
// its window has not elapsed. The token is consumed before the inverse write,
// so a repeated press always fails. When the row no longer holds what the
// write left there, nothing is written and the ledger's stale-row error is
// returned.
func (m *Manager) Undo(ctx context.Context, key Key, rowID int, kind UndoKind) (UndoToken, error) {
	m.mu.Lock()
	t, ok := m.tokens[key]
	if !ok || t.RowID != rowID || t.Kind != kind {
		m.mu.Unlock()
		return UndoToken{}, ErrUndoExpired
	}
	if !m.now().Before(t.ExpiresAt) {
		delete(m.tokens, key)
		m.mu.Unlock()
		return UndoToken{}, ErrUndoExpired
	}
	delete(m.tokens, key)
	m.mu.Unlock()

	var err error
	switch t.Kind {
	case UndoInsert:
		err = m.ledger.Delete(ctx, t.Written)
	case UndoUpdate:
		err = m.ledger.Update(ctx, t.Written, t.PreviousLabel, t.PreviousAmount)
	default:
		err = fmt.Errorf("unknown undo kind %d", t.Kind)
	}
	if err != nil {
		return t, fmt.Errorf("undo row %d: %w", t.RowID, err)
	}

	logger.Info("Write undone", "chat_id", key.ChatID, "row", t.RowID)
	return t, nil
}

// Cancel drops the session of key and reports whether there was one.
func (m *Manager) Cancel(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[key]
	delete(m.sessions, key)
	return ok
}

// Reset forgets everything about key: session and undo token.
func (m *Manager) Reset(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	delete(m.tokens, key)
}

// Sweep drops expired sessions and undo tokens and returns how many were
// removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for k, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, k)
			n++
		}
	}
	for k, t := range m.tokens {
		if !now.Before(t.ExpiresAt) {
			delete(m.tokens, k)
			n++
		}
	}
	return n
}
