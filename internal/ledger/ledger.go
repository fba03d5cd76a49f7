// Package ledger owns the paper positions: opening, marking, closing, and
// the human-approval boundary for entries.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

// Ledger errors.
var (
	// ErrStaleSnapshot rejects entries priced from a degraded snapshot.
	ErrStaleSnapshot = errors.New("stale snapshot: refusing new entries")

	// ErrNotOpen rejects closes of positions that are not open.
	ErrNotOpen = errors.New("position is not open")

	// ErrEntryPending rejects a second entry proposal while one awaits
	// approval.
	ErrEntryPending = errors.New("an entry decision is already pending")

	// ErrNoPendingEntry rejects approval verbs with nothing to approve.
	ErrNoPendingEntry = errors.New("no pending entry decision")
)

// BrokerMode gates how proposed entries traverse the approval boundary.
type BrokerMode string

const (
	ModeDisabled BrokerMode = "disabled"
	ModeSemiAuto BrokerMode = "semi_auto"
	ModeFullAuto BrokerMode = "full_auto"
)

// Options wires a Ledger.
type Options struct {
	Positions   storage.PositionStore
	Decisions   storage.DecisionStore
	Mode        BrokerMode
	DecisionTTL time.Duration
}

// Ledger applies position lifecycle operations against the store. Writes
// are single-task (the orchestrator); invariants are enforced here at the
// boundary.
type Ledger struct {
	positions   storage.PositionStore
	decisions   storage.DecisionStore
	mode        BrokerMode
	decisionTTL time.Duration

	now   func() time.Time
	newID func() string
}

// New builds a Ledger. DecisionTTL defaults to one hour.
func New(opts Options) *Ledger {
	ttl := opts.DecisionTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeDisabled
	}
	return &Ledger{
		positions:   opts.Positions,
		decisions:   opts.Decisions,
		mode:        mode,
		decisionTTL: ttl,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Mode returns the active broker mode.
func (l *Ledger) Mode() BrokerMode { return l.mode }

// SetMode switches the broker mode (the `mode` command).
func (l *Ledger) SetMode(m BrokerMode) { l.mode = m }

// Open creates a position at the given fill.
func (l *Ledger) Open(ctx context.Context, symbol string, qty, price float64, defcon int) (*domain.Position, error) {
	if symbol == "" || qty <= 0 || price <= 0 || math.IsNaN(price) {
		return nil, storage.ErrInvalidInput
	}

	p := &domain.Position{
		ID:           l.newID(),
		Symbol:       symbol,
		Qty:          qty,
		EntryPrice:   price,
		EntryTime:    l.now(),
		EntryDefcon:  defcon,
		PeakPrice:    price,
		CurrentPrice: price,
		Status:       domain.StatusOpen,
	}
	if err := l.positions.Insert(ctx, p); err != nil {
		return nil, fmt.Errorf("open position: %w", err)
	}
	log.Info().Str("position", p.ID).Str("symbol", symbol).Float64("qty", qty).
		Float64("price", price).Int("defcon", defcon).Msg("position opened")
	return p, nil
}

// Mark updates current_price and ratchets peak_price. A NaN or
// non-positive price is a no-op; marking a closed position is a no-op.
func (l *Ledger) Mark(ctx context.Context, id string, price float64) error {
	if math.IsNaN(price) || price <= 0 {
		return nil
	}

	p, err := l.positions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("mark position: %w", err)
	}
	if p.Status == domain.StatusClosed {
		return nil
	}

	p.CurrentPrice = price
	if price > p.PeakPrice {
		p.PeakPrice = price
	}
	if err := l.positions.Update(ctx, p); err != nil {
		return fmt.Errorf("mark position: %w", err)
	}
	return nil
}

// MarkFromSnapshot marks every open position with its snapshot price and
// returns the refreshed open set. Symbols absent from the snapshot keep
// their previous mark.
func (l *Ledger) MarkFromSnapshot(ctx context.Context, snap domain.MarketSnapshot) ([]*domain.Position, error) {
	open, err := l.positions.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open: %w", err)
	}
	for _, p := range open {
		price, ok := snap.Price(p.Symbol)
		if !ok {
			continue
		}
		if err := l.Mark(ctx, p.ID, price); err != nil {
			log.Warn().Err(err).Str("position", p.ID).Msg("mark failed")
		}
	}
	return l.positions.ListOpen(ctx)
}

// BeginExit marks an open position pending_exit, the persisted marker
// that an exit decision has been taken for it. Requires status open.
func (l *Ledger) BeginExit(ctx context.Context, id string) (*domain.Position, error) {
	p, err := l.positions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("begin exit: %w", err)
	}
	if p.Status != domain.StatusOpen {
		return nil, ErrNotOpen
	}
	p.Status = domain.StatusPendingExit
	if err := l.positions.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("begin exit: %w", err)
	}
	return p, nil
}

// CancelPendingExits reverts pending_exit positions to open without
// closing them (the estop path: they stay open but unmanaged until
// resume). Returns how many were reverted.
func (l *Ledger) CancelPendingExits(ctx context.Context) (int, error) {
	open, err := l.positions.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("cancel pending exits: %w", err)
	}
	n := 0
	for _, p := range open {
		if p.Status != domain.StatusPendingExit {
			continue
		}
		p.Status = domain.StatusOpen
		if err := l.positions.Update(ctx, p); err != nil {
			return n, fmt.Errorf("cancel pending exits: %w", err)
		}
		n++
	}
	return n, nil
}

// Close exits a position. Requires the position to be open or already
// marked pending_exit; a second close fails with ErrNotOpen.
func (l *Ledger) Close(ctx context.Context, id string, price float64, reason string) (*domain.Position, error) {
	if math.IsNaN(price) || price <= 0 {
		return nil, storage.ErrInvalidInput
	}

	p, err := l.positions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("close position: %w", err)
	}
	if p.Status == domain.StatusClosed {
		return nil, ErrNotOpen
	}

	exitTime := l.now()
	p.CurrentPrice = price
	p.Status = domain.StatusClosed
	p.ExitPrice = &price
	p.ExitTime = &exitTime
	p.ExitReason = &reason
	if err := l.positions.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("close position: %w", err)
	}
	log.Info().Str("position", p.ID).Str("symbol", p.Symbol).Str("reason", reason).
		Float64("pnl_pct", p.PnLPct()).Msg("position closed")
	return p, nil
}

// ListOpen returns the open set, oldest entries first.
func (l *Ledger) ListOpen(ctx context.Context) ([]*domain.Position, error) {
	return l.positions.ListOpen(ctx)
}

// ListClosed returns recently closed positions, newest first.
func (l *Ledger) ListClosed(ctx context.Context, limit int) ([]*domain.Position, error) {
	return l.positions.ListClosed(ctx, limit)
}

// EntryResult reports how a proposal was applied.
type EntryResult struct {
	Pending  bool
	Decision *domain.PendingDecision
	Opened   []*domain.Position
}

// ProposeEntry routes an entry through the broker-mode policy. Stale
// snapshots never open positions; in disabled mode at most one entry
// decision is pending at a time.
func (l *Ledger) ProposeEntry(ctx context.Context, prop domain.EntryProposal, snap domain.MarketSnapshot) (*EntryResult, error) {
	if len(prop.Symbols) == 0 || prop.Qty <= 0 {
		return nil, storage.ErrInvalidInput
	}
	if snap.Stale {
		return nil, ErrStaleSnapshot
	}

	if l.mode == ModeDisabled {
		return l.fileEntryDecision(ctx, prop)
	}
	opened, err := l.openAll(ctx, prop, snap)
	if err != nil {
		return nil, err
	}
	return &EntryResult{Opened: opened}, nil
}

func (l *Ledger) fileEntryDecision(ctx context.Context, prop domain.EntryProposal) (*EntryResult, error) {
	now := l.now()
	if _, err := l.decisions.ActiveEntry(ctx, now); err == nil {
		return nil, ErrEntryPending
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("check pending entry: %w", err)
	}

	subject, err := json.Marshal(prop)
	if err != nil {
		return nil, fmt.Errorf("marshal entry proposal: %w", err)
	}
	d := &domain.PendingDecision{
		ID:        l.newID(),
		Kind:      domain.DecisionEntry,
		Subject:   string(subject),
		CreatedAt: now,
		ExpiresAt: now.Add(l.decisionTTL),
		Status:    domain.DecisionAwaiting,
	}
	if err := l.decisions.Insert(ctx, d); err != nil {
		return nil, fmt.Errorf("file entry decision: %w", err)
	}
	log.Info().Str("decision", d.ID).Strs("symbols", prop.Symbols).Msg("entry filed for approval")
	return &EntryResult{Pending: true, Decision: d}, nil
}

func (l *Ledger) openAll(ctx context.Context, prop domain.EntryProposal, snap domain.MarketSnapshot) ([]*domain.Position, error) {
	var opened []*domain.Position
	for _, symbol := range prop.Symbols {
		price, ok := snap.Price(symbol)
		if !ok {
			log.Warn().Str("symbol", symbol).Msg("no price for proposed entry, skipping")
			continue
		}
		p, err := l.Open(ctx, symbol, prop.Qty, price, prop.Defcon)
		if err != nil {
			return opened, err
		}
		opened = append(opened, p)
	}
	return opened, nil
}

// ApproveEntry executes the pending entry decision at current snapshot
// prices (the `yes` command).
func (l *Ledger) ApproveEntry(ctx context.Context, snap domain.MarketSnapshot) ([]*domain.Position, error) {
	d, err := l.decisions.ActiveEntry(ctx, l.now())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoPendingEntry
	}
	if err != nil {
		return nil, fmt.Errorf("load pending entry: %w", err)
	}
	if snap.Stale {
		return nil, ErrStaleSnapshot
	}

	var prop domain.EntryProposal
	if err := json.Unmarshal([]byte(d.Subject), &prop); err != nil {
		return nil, fmt.Errorf("parse entry proposal: %w", err)
	}

	opened, err := l.openAll(ctx, prop, snap)
	if err != nil {
		return nil, err
	}
	d.Status = domain.DecisionApproved
	if err := l.decisions.Update(ctx, d); err != nil {
		return opened, fmt.Errorf("mark decision approved: %w", err)
	}
	return opened, nil
}

// RejectEntry declines the pending entry decision (the `no` command).
func (l *Ledger) RejectEntry(ctx context.Context) error {
	d, err := l.decisions.ActiveEntry(ctx, l.now())
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNoPendingEntry
	}
	if err != nil {
		return fmt.Errorf("load pending entry: %w", err)
	}
	d.Status = domain.DecisionRejected
	if err := l.decisions.Update(ctx, d); err != nil {
		return fmt.Errorf("mark decision rejected: %w", err)
	}
	return nil
}

// ExpireDecisions sweeps awaiting decisions past their TTL.
func (l *Ledger) ExpireDecisions(ctx context.Context) (int, error) {
	return l.decisions.ExpireOlder(ctx, l.now())
}

// PendingEntry returns the active entry decision, or nil.
func (l *Ledger) PendingEntry(ctx context.Context) (*domain.PendingDecision, error) {
	d, err := l.decisions.ActiveEntry(ctx, l.now())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return d, err
}
