package orchestrator

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"hightrade/internal/alert"
	"hightrade/internal/command"
	"hightrade/internal/domain"
	"hightrade/internal/ledger"
)

// Command outcome statuses, mapped to CLI exit codes by the caller.
const (
	ResultAccepted     = "accepted"
	ResultInvalidState = "invalid_state"
	ResultUnknownVerb  = "unknown_verb"
)

// Result is the reply written back for every command.
type Result struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// StatusReport answers the `status` verb.
type StatusReport struct {
	State          string    `json:"state"`
	Defcon         int       `json:"defcon"`
	SignalScore    float64   `json:"signal_score"`
	CycleID        int64     `json:"cycle_id"`
	LastCycleStart time.Time `json:"last_cycle_start"`
	BrokerMode     string    `json:"broker_mode"`
	IntervalSec    int       `json:"interval_sec"`
	OpenPositions  int       `json:"open_positions"`
	PendingEntry   bool      `json:"pending_entry"`
}

// PortfolioReport answers the `portfolio` verb.
type PortfolioReport struct {
	Open   []PositionView `json:"open"`
	Closed []PositionView `json:"closed"`
}

// PositionView is the command-surface view of a position.
type PositionView struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Qty        float64 `json:"qty"`
	EntryPrice float64 `json:"entry_price"`
	Current    float64 `json:"current_price"`
	PnLPct     float64 `json:"pnl_pct"`
	Status     string  `json:"status"`
	ExitReason string  `json:"exit_reason,omitempty"`
}

// DefconReport answers the `defcon` verb.
type DefconReport struct {
	Level       int                  `json:"level"`
	SignalScore float64              `json:"signal_score"`
	History     []DefconHistoryEntry `json:"history"`
}

// DefconHistoryEntry is one past transition.
type DefconHistoryEntry struct {
	Level      int       `json:"level"`
	Score      float64   `json:"signal_score"`
	EnteredAt  time.Time `json:"entered_at"`
	ReasonCode string    `json:"reason_code"`
}

// handleCommand applies one command to orchestrator state and writes the
// reply. Returns true when the command should interrupt a sleep.
func (o *Orchestrator) handleCommand(ctx context.Context, cmd *command.Command) (interrupt bool) {
	if cmd == nil {
		return false
	}
	log.Info().Str("verb", cmd.Verb).Str("id", cmd.ID).Msg("command received")
	if o.metrics != nil {
		o.metrics.CommandsProcessed.WithLabelValues(cmd.Verb).Inc()
	}

	var res Result
	mutator := true

	switch cmd.Verb {
	case command.VerbStatus:
		res = Result{Status: ResultAccepted, Data: o.statusReport(ctx)}
		mutator = false
	case command.VerbPortfolio:
		res = Result{Status: ResultAccepted, Data: o.portfolioReport(ctx)}
		mutator = false
	case command.VerbDefcon:
		res = Result{Status: ResultAccepted, Data: o.defconReport(ctx)}
		mutator = false

	case command.VerbHold:
		if o.state != StateRunning {
			res = Result{Status: ResultInvalidState, Detail: "hold requires running state"}
			break
		}
		o.state = StateHeld
		res = Result{Status: ResultAccepted}

	case command.VerbResume:
		if o.state != StateHeld && o.state != StateEStopped {
			res = Result{Status: ResultInvalidState, Detail: "nothing to resume"}
			break
		}
		o.state = StateRunning
		res = Result{Status: ResultAccepted}

	case command.VerbYes:
		res = o.approveEntry(ctx)

	case command.VerbNo:
		switch err := o.ledger.RejectEntry(ctx); {
		case err == nil:
			res = Result{Status: ResultAccepted}
		case errors.Is(err, ledger.ErrNoPendingEntry):
			res = Result{Status: ResultInvalidState, Detail: "no pending entry"}
		default:
			res = Result{Status: ResultInvalidState, Detail: err.Error()}
		}

	case command.VerbRefresh:
		res = Result{Status: ResultAccepted}
		interrupt = true

	case command.VerbShutdown:
		o.state = StateShuttingDown
		res = Result{Status: ResultAccepted}
		interrupt = true

	case command.VerbEstop:
		o.state = StateEStopped
		if o.cycleCancel != nil {
			o.cycleCancel()
		}
		if n, err := o.ledger.CancelPendingExits(ctx); err != nil {
			log.Warn().Err(err).Msg("canceling pending exits failed")
		} else if n > 0 {
			log.Info().Int("reverted", n).Msg("pending exits canceled, positions stay open")
		}
		res = Result{Status: ResultAccepted}
		interrupt = true

	case command.VerbMode:
		res = o.setMode(cmd.Arg(0))

	case command.VerbInterval:
		res = o.setInterval(cmd.Arg(0))

	default:
		res = Result{Status: ResultUnknownVerb, Detail: cmd.Verb}
		mutator = false
	}

	o.reply(ctx, cmd, res, mutator)
	return interrupt
}

func (o *Orchestrator) approveEntry(ctx context.Context) Result {
	opened, err := o.ledger.ApproveEntry(ctx, o.lastSnapshot)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrNoPendingEntry):
		return Result{Status: ResultInvalidState, Detail: "no pending entry"}
	case errors.Is(err, ledger.ErrStaleSnapshot):
		return Result{Status: ResultInvalidState, Detail: "market data is stale"}
	default:
		return Result{Status: ResultInvalidState, Detail: err.Error()}
	}

	if o.metrics != nil {
		o.metrics.PositionsOpened.Add(float64(len(opened)))
	}
	symbols := make([]string, 0, len(opened))
	for _, p := range opened {
		symbols = append(symbols, p.Symbol)
	}
	if len(opened) > 0 {
		o.alerts.TradeEntry(ctx, alert.TradeEntry{
			Symbols: symbols,
			Size:    opened[0].Qty,
			Defcon:  o.defconLevel,
		}, false)
	}
	return Result{Status: ResultAccepted, Data: map[string]any{"opened": symbols}}
}

func (o *Orchestrator) setMode(arg string) Result {
	switch ledger.BrokerMode(arg) {
	case ledger.ModeDisabled, ledger.ModeSemiAuto, ledger.ModeFullAuto:
		o.ledger.SetMode(ledger.BrokerMode(arg))
		return Result{Status: ResultAccepted, Detail: arg}
	default:
		return Result{Status: ResultInvalidState, Detail: "unknown broker mode " + arg}
	}
}

func (o *Orchestrator) setInterval(arg string) Result {
	minutes, err := strconv.Atoi(arg)
	if err != nil || minutes <= 0 {
		return Result{Status: ResultInvalidState, Detail: "interval needs a positive minute count"}
	}
	o.interval = time.Duration(minutes) * time.Minute
	return Result{Status: ResultAccepted, Detail: arg + "m"}
}

func (o *Orchestrator) reply(ctx context.Context, cmd *command.Command, res Result, mutator bool) {
	if o.queue != nil && cmd.ID != "" {
		if err := o.queue.Respond(cmd.ID, res); err != nil {
			log.Warn().Err(err).Str("id", cmd.ID).Msg("command response write failed")
		}
		if err := o.queue.Ack(cmd); err != nil {
			log.Warn().Err(err).Str("id", cmd.ID).Msg("command ack failed")
		}
	}
	if mutator {
		o.alerts.CommandResponse(ctx, alert.CommandResponse{
			ID: cmd.ID, Verb: cmd.Verb, Result: res.Status,
		})
	}
}

func (o *Orchestrator) statusReport(ctx context.Context) StatusReport {
	openCount := 0
	if open, err := o.ledger.ListOpen(ctx); err == nil {
		openCount = len(open)
	}
	pending := false
	if d, err := o.ledger.PendingEntry(ctx); err == nil && d != nil {
		pending = true
	}
	return StatusReport{
		State:          string(o.state),
		Defcon:         o.defconLevel,
		SignalScore:    o.lastScore,
		CycleID:        o.lastCycleID,
		LastCycleStart: o.lastCycleStart,
		BrokerMode:     string(o.ledger.Mode()),
		IntervalSec:    int(o.interval / time.Second),
		OpenPositions:  openCount,
		PendingEntry:   pending,
	}
}

func (o *Orchestrator) portfolioReport(ctx context.Context) PortfolioReport {
	report := PortfolioReport{}
	if open, err := o.ledger.ListOpen(ctx); err == nil {
		for _, p := range open {
			report.Open = append(report.Open, positionView(p))
		}
	}
	if closed, err := o.ledger.ListClosed(ctx, 10); err == nil {
		for _, p := range closed {
			report.Closed = append(report.Closed, positionView(p))
		}
	}
	return report
}

func positionView(p *domain.Position) PositionView {
	v := PositionView{
		ID:         p.ID,
		Symbol:     p.Symbol,
		Qty:        p.Qty,
		EntryPrice: p.EntryPrice,
		Current:    p.CurrentPrice,
		PnLPct:     p.PnLPct(),
		Status:     string(p.Status),
	}
	if p.ExitReason != nil {
		v.ExitReason = *p.ExitReason
	}
	return v
}

func (o *Orchestrator) defconReport(ctx context.Context) DefconReport {
	report := DefconReport{Level: o.defconLevel, SignalScore: o.lastScore}
	if hist, err := o.store.Defcon().History(ctx, 10); err == nil {
		for _, st := range hist {
			report.History = append(report.History, DefconHistoryEntry{
				Level:      st.Level,
				Score:      st.SignalScore,
				EnteredAt:  st.EnteredAt,
				ReasonCode: st.ReasonCode,
			})
		}
	}
	return report
}
