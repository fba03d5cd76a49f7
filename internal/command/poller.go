package command

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const pollTick = 250 * time.Millisecond

// Poller drains the queue on a fixed tick and feeds commands into a
// bounded channel. In-process producers can inject commands directly via
// Submit; both paths converge on the same channel the orchestrator polls.
type Poller struct {
	queue *Queue
	out   chan *Command
	tick  time.Duration
}

// NewPoller builds a poller with the given channel capacity.
func NewPoller(q *Queue, buffer int) *Poller {
	if buffer <= 0 {
		buffer = 16
	}
	return &Poller{queue: q, out: make(chan *Command, buffer), tick: pollTick}
}

// Commands is the channel the orchestrator consumes.
func (p *Poller) Commands() <-chan *Command {
	return p.out
}

// Submit injects an in-process command, blocking until the consumer has
// room or ctx expires.
func (p *Poller) Submit(ctx context.Context, cmd *Command) error {
	select {
	case p.out <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run polls the queue until ctx is cancelled. When the channel is full
// the poller blocks until the consumer catches up; dequeued commands stay
// in-flight on disk until acked.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Poller) drain(ctx context.Context) {
	for {
		cmd, err := p.queue.Dequeue()
		if err != nil {
			log.Warn().Err(err).Msg("command queue scan failed")
			return
		}
		if cmd == nil {
			return
		}
		select {
		case p.out <- cmd:
		case <-ctx.Done():
			return
		}
	}
}
