// Package alert fans events out to the urgent and silent channels.
// Delivery is at-most-once: transport failures are counted and logged,
// never propagated to the cycle.
package alert

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"hightrade/internal/domain"
)

// Transport delivers one event to a channel destination.
type Transport interface {
	Send(ctx context.Context, ev Event) error
}

const sendTimeout = 5 * time.Second

// Options wires a Router. A nil transport disables that channel.
// SilentEvents limits which event types reach the silent channel; empty
// means all.
type Options struct {
	Urgent       Transport
	Silent       Transport
	SilentEvents []string
}

// Router routes events per the channel policy: escalations, approval
// requests, protective exits, and command responses go urgent; the silent
// channel is the audit trail.
type Router struct {
	urgent       Transport
	silent       Transport
	silentEvents map[string]struct{}

	urgentFailures atomic.Int64
	silentFailures atomic.Int64
}

// NewRouter builds a Router.
func NewRouter(opts Options) *Router {
	r := &Router{urgent: opts.Urgent, silent: opts.Silent}
	if len(opts.SilentEvents) > 0 {
		r.silentEvents = make(map[string]struct{}, len(opts.SilentEvents))
		for _, e := range opts.SilentEvents {
			r.silentEvents[e] = struct{}{}
		}
	}
	return r
}

// CycleSummary audits a completed cycle on the silent channel.
func (r *Router) CycleSummary(ctx context.Context, p CycleSummary) {
	r.sendSilent(ctx, Event{Type: EventCycleSummary, Payload: p})
}

// DefconChange audits every transition; escalations (level decreases)
// also go urgent.
func (r *Router) DefconChange(ctx context.Context, p DefconChange) {
	ev := Event{Type: EventDefconChange, Payload: p}
	if p.To < p.From {
		r.sendUrgent(ctx, ev)
	}
	r.sendSilent(ctx, ev)
}

// TradeEntry audits every entry; entries awaiting approval and full-auto
// executions (urgent=true) also go urgent.
func (r *Router) TradeEntry(ctx context.Context, p TradeEntry, urgent bool) {
	ev := Event{Type: EventTradeEntry, Payload: p}
	if p.Pending || urgent {
		r.sendUrgent(ctx, ev)
	}
	r.sendSilent(ctx, ev)
}

// TradeExit audits every exit; stop-loss and defcon-revert exits also go
// urgent.
func (r *Router) TradeExit(ctx context.Context, p TradeExit) {
	ev := Event{Type: EventTradeExit, Payload: p}
	if p.Reason == domain.ExitReasonStopLoss || p.Reason == domain.ExitReasonDefconRevert {
		r.sendUrgent(ctx, ev)
	}
	r.sendSilent(ctx, ev)
}

// NewsUpdate audits a news batch on the silent channel, only when it
// carries something new or breaking.
func (r *Router) NewsUpdate(ctx context.Context, p NewsUpdate) {
	if p.NewArticleCount == 0 && p.BreakingCount == 0 {
		return
	}
	r.sendSilent(ctx, Event{Type: EventNewsUpdate, Payload: p})
}

// CommandResponse notifies the operator on the urgent channel.
func (r *Router) CommandResponse(ctx context.Context, p CommandResponse) {
	r.sendUrgent(ctx, Event{Type: EventCommandResponse, Payload: p})
}

// Failures returns the per-channel dropped-event counts.
func (r *Router) Failures() (urgent, silent int64) {
	return r.urgentFailures.Load(), r.silentFailures.Load()
}

func (r *Router) sendUrgent(ctx context.Context, ev Event) {
	if r.urgent == nil {
		return
	}
	if err := r.send(ctx, r.urgent, ev); err != nil {
		r.urgentFailures.Add(1)
		log.Warn().Err(err).Str("event", ev.Type).Msg("urgent alert dropped")
	}
}

func (r *Router) sendSilent(ctx context.Context, ev Event) {
	if r.silent == nil {
		return
	}
	if r.silentEvents != nil {
		if _, ok := r.silentEvents[ev.Type]; !ok {
			return
		}
	}
	if err := r.send(ctx, r.silent, ev); err != nil {
		r.silentFailures.Add(1)
		log.Warn().Err(err).Str("event", ev.Type).Msg("silent alert dropped")
	}
}

func (r *Router) send(ctx context.Context, t Transport, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return t.Send(ctx, ev)
}
