// Package orchestrator drives the monitoring loop: one task runs the
// cycle, polls operator commands between phases, and owns all writes to
// the persistence store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"hightrade/internal/alert"
	"hightrade/internal/command"
	"hightrade/internal/config"
	"hightrade/internal/domain"
	"hightrade/internal/exit"
	"hightrade/internal/ledger"
	"hightrade/internal/news"
	"hightrade/internal/observability"
	"hightrade/internal/signal"
	"hightrade/internal/storage"
)

// State is the orchestrator run state.
type State string

const (
	StateRunning      State = "running"
	StateHeld         State = "held"
	StateEStopped     State = "e_stopped"
	StateShuttingDown State = "shutting_down"
)

// MarketSource produces the cycle's market snapshot.
type MarketSource interface {
	Snapshot(ctx context.Context, symbols []string) domain.MarketSnapshot
}

// NewsPipeline is the aggregator surface the cycle consumes.
type NewsPipeline interface {
	CollectForCycle(ctx context.Context, cycleID int64) []domain.Article
	BuildSignal(cycleID int64, now time.Time, articles []domain.Article) domain.NewsSignal
	Novelty(ctx context.Context, articles []domain.Article) (int, bool)
	Headlines(articles []domain.Article, limit int) []news.Headline
}

// Options wires an Orchestrator. All collaborators are injected; nothing
// is discovered through process-wide lookup.
type Options struct {
	Config   *config.Config
	Store    storage.Store
	News     NewsPipeline
	Market   MarketSource
	Scorer   *signal.Scorer
	Exits    *exit.Evaluator
	Ledger   *ledger.Ledger
	Alerts   *alert.Router
	Queue    *command.Queue
	Poller   *command.Poller
	Spill    *storage.SpillWriter
	Metrics  *observability.Metrics
	Interval time.Duration
}

// Orchestrator is the single writer of the store and the only mutator of
// run state. Commands reach it through the poller channel.
type Orchestrator struct {
	cfg     *config.Config
	store   storage.Store
	news    NewsPipeline
	market  MarketSource
	scorer  *signal.Scorer
	exits   *exit.Evaluator
	ledger  *ledger.Ledger
	alerts  *alert.Router
	queue   *command.Queue
	poller  *command.Poller
	spill   *storage.SpillWriter
	metrics *observability.Metrics

	state          State
	interval       time.Duration
	lastCycleStart time.Time
	lastCycleID    int64
	lastSnapshot   domain.MarketSnapshot
	lastScore      float64
	defconLevel    int

	lastUrgentDrops int64
	lastSilentDrops int64

	cycleCancel context.CancelFunc

	now func() time.Time
}

// New builds an Orchestrator in the running state at defcon 5.
func New(opts Options) *Orchestrator {
	interval := opts.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Orchestrator{
		cfg:         opts.Config,
		store:       opts.Store,
		news:        opts.News,
		market:      opts.Market,
		scorer:      opts.Scorer,
		exits:       opts.Exits,
		ledger:      opts.Ledger,
		alerts:      opts.Alerts,
		queue:       opts.Queue,
		poller:      opts.Poller,
		spill:       opts.Spill,
		metrics:     opts.Metrics,
		state:       StateRunning,
		interval:    interval,
		defconLevel: domain.DefconPeacetime,
		now:         time.Now,
	}
}

// State returns the current run state.
func (o *Orchestrator) State() State { return o.state }

// Run executes the main loop until shutdown or ctx cancellation. It
// writes the PID file, reclaims orphaned commands, starts the queue
// poller, and then alternates cycles with interruptible sleeps.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.writePIDFile(); err != nil {
		return err
	}
	defer o.removePIDFile()

	if o.queue != nil {
		if n, err := o.queue.Reclaim(); err != nil {
			log.Warn().Err(err).Msg("in-flight command reclaim failed")
		} else if n > 0 {
			log.Info().Int("reclaimed", n).Msg("returned orphaned commands to queue")
		}
	}

	if o.poller != nil {
		go o.poller.Run(ctx)
	}

	// resume from the persisted defcon state across restarts
	if st, err := o.store.Defcon().Latest(ctx); err == nil {
		o.defconLevel = st.Level
		o.lastScore = st.SignalScore
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if o.state == StateRunning || o.state == StateHeld {
			o.runCycle(ctx)
		}
		if o.state == StateShuttingDown {
			log.Info().Msg("shutdown complete")
			return nil
		}

		o.sleep(ctx)
		if o.state == StateShuttingDown {
			log.Info().Msg("shutdown complete")
			return nil
		}
	}
}

// runCycle executes one monitoring pass. The cycle is the failure unit:
// no component error escapes it; degraded inputs degrade the outputs.
func (o *Orchestrator) runCycle(ctx context.Context) {
	start := o.now()
	cycleID := start.Unix()
	o.lastCycleStart = start
	o.lastCycleID = cycleID

	cycleCtx, cancel := context.WithCancel(ctx)
	o.cycleCancel = cancel
	defer func() {
		cancel()
		o.cycleCancel = nil
	}()

	log.Info().Int64("cycle", cycleID).Str("state", string(o.state)).Msg("cycle start")

	// market and news collection run as parallel sub-tasks, joined before
	// anything downstream consumes either
	var (
		snap     domain.MarketSnapshot
		articles []domain.Article
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		snap = o.market.Snapshot(cycleCtx, o.watchSymbols(cycleCtx))
	}()
	go func() {
		defer wg.Done()
		articles = o.news.CollectForCycle(cycleCtx, cycleID)
	}()

	// Commands stay live during the join so an estop arriving mid-fetch
	// cancels the in-flight HTTP instead of waiting out the timeouts.
	joined := make(chan struct{})
	go func() {
		defer close(joined)
		wg.Wait()
	}()
	var cmds <-chan *command.Command
	if o.poller != nil {
		cmds = o.poller.Commands()
	}
	for waiting := true; waiting; {
		select {
		case <-joined:
			waiting = false
		case cmd := <-cmds:
			o.handleCommand(ctx, cmd)
		}
	}
	if o.state == StateEStopped {
		return
	}
	o.lastSnapshot = snap

	sig := o.news.BuildSignal(cycleID, start, articles)

	// novelty is judged against the previous persisted signal, so it must
	// be computed before this cycle's signal lands in the store
	newCount, novel := o.news.Novelty(cycleCtx, articles)

	if o.drainCommands(ctx); o.state == StateEStopped {
		return
	}

	// persist cycle inputs before any downstream state change
	o.persist("market_snapshot", snap, func() error {
		return o.store.Snapshots().Insert(ctx, cycleID, &snap)
	})
	o.persist("news_signal", sig, func() error {
		return o.store.NewsSignals().Insert(ctx, &sig)
	})

	// score and transition
	score, reasonCode := o.scorer.Score(sig, snap)
	level := signal.MapDefcon(score)
	prev := o.defconLevel
	o.lastScore = score

	if o.metrics != nil {
		o.metrics.DefconLevel.Set(float64(level))
		o.metrics.SignalScore.Set(score)
		o.metrics.ArticlesRetained.Set(float64(sig.ArticleCount))
		o.metrics.BreakingArticles.Set(float64(sig.BreakingCount))
		if snap.Stale {
			o.metrics.SnapshotStale.Set(1)
		} else {
			o.metrics.SnapshotStale.Set(0)
		}
	}

	if level != prev {
		st := domain.DefconState{
			Level:       level,
			SignalScore: score,
			EnteredAt:   start,
			ReasonCode:  reasonCode,
		}
		o.persist("defcon_state", st, func() error {
			return o.store.Defcon().Append(ctx, &st)
		})
		o.defconLevel = level
		if o.metrics != nil {
			direction := "de_escalation"
			if level < prev {
				direction = "escalation"
			}
			o.metrics.DefconTransitions.WithLabelValues(direction).Inc()
		}
		o.alerts.DefconChange(ctx, alert.DefconChange{
			From: prev, To: level, SignalScore: score, ReasonCode: reasonCode,
		})
		log.Info().Int("from", prev).Int("to", level).Float64("score", score).
			Str("reason", reasonCode).Msg("defcon transition")
	}

	if novel || sig.BreakingCount > 0 {
		o.alerts.NewsUpdate(ctx, o.newsUpdatePayload(sig, articles, newCount))
	}

	if o.drainCommands(ctx); o.state == StateEStopped {
		return
	}

	// mark holdings and apply exits (also while held: user safety)
	open, err := o.ledger.MarkFromSnapshot(ctx, snap)
	if err != nil {
		log.Warn().Err(err).Msg("marking positions failed")
	}
	o.applyExits(ctx, open, level)

	// entry proposals only while fully running
	if o.state == StateRunning {
		o.proposeEntries(ctx, level, snap)
	}

	if n, err := o.ledger.ExpireDecisions(ctx); err != nil {
		log.Warn().Err(err).Msg("decision expiry sweep failed")
	} else if n > 0 {
		log.Info().Int("expired", n).Msg("stale decisions expired")
	}

	o.alerts.CycleSummary(ctx, o.summaryPayload(ctx, level, score, snap))

	if o.metrics != nil {
		o.metrics.CyclesTotal.Inc()
		o.metrics.CycleDuration.Observe(o.now().Sub(start).Seconds())
		if remaining, err := o.ledger.ListOpen(ctx); err == nil {
			o.metrics.OpenPositions.Set(float64(len(remaining)))
		}
		urgentDrops, silentDrops := o.alerts.Failures()
		o.metrics.AlertsDropped.WithLabelValues("urgent").Add(float64(urgentDrops - o.lastUrgentDrops))
		o.metrics.AlertsDropped.WithLabelValues("silent").Add(float64(silentDrops - o.lastSilentDrops))
		o.lastUrgentDrops, o.lastSilentDrops = urgentDrops, silentDrops
	}
	log.Info().Int64("cycle", cycleID).Int("defcon", level).
		Float64("score", score).Dur("took", o.now().Sub(start)).Msg("cycle done")
}

func (o *Orchestrator) applyExits(ctx context.Context, open []*domain.Position, level int) {
	for _, d := range o.exits.EvaluateAll(open, level, o.now()) {
		// two-phase: the pending_exit marker is persisted first, so an
		// estop between the decision and the close leaves a visible state
		// instead of a half-applied exit
		if _, err := o.ledger.BeginExit(ctx, d.PositionID); err != nil {
			log.Error().Err(err).Str("position", d.PositionID).
				Str("reason", d.Reason).Msg("exit marking failed")
			continue
		}
		closed, err := o.ledger.Close(ctx, d.PositionID, d.Price, d.Reason)
		if err != nil {
			// invariant violations surface in the log; the cycle continues
			log.Error().Err(err).Str("position", d.PositionID).
				Str("reason", d.Reason).Msg("exit application failed")
			continue
		}
		if o.metrics != nil {
			o.metrics.PositionsClosed.WithLabelValues(d.Reason).Inc()
		}
		// the position update is persisted by Close before the alert goes out
		o.alerts.TradeExit(ctx, alert.TradeExit{
			Symbol: closed.Symbol,
			Reason: d.Reason,
			PnLPct: closed.PnLPct(),
		})
	}
}

func (o *Orchestrator) proposeEntries(ctx context.Context, level int, snap domain.MarketSnapshot) {
	if level > o.cfg.Entries.MaxDefcon || snap.Stale {
		return
	}

	held := map[string]bool{}
	open, err := o.ledger.ListOpen(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("entry proposal skipped: open set unavailable")
		return
	}
	for _, p := range open {
		held[p.Symbol] = true
	}

	var symbols []string
	for _, s := range o.cfg.Entries.Watchlist {
		if !held[s] {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		return
	}

	prop := domain.EntryProposal{Symbols: symbols, Qty: o.cfg.Entries.Qty, Defcon: level}
	res, err := o.ledger.ProposeEntry(ctx, prop, snap)
	if err != nil {
		if !errors.Is(err, ledger.ErrEntryPending) {
			log.Warn().Err(err).Msg("entry proposal failed")
		}
		return
	}

	if o.metrics != nil {
		o.metrics.PositionsOpened.Add(float64(len(res.Opened)))
	}
	payload := alert.TradeEntry{
		Symbols: symbols,
		Size:    prop.Qty,
		Defcon:  level,
		Pending: res.Pending,
	}
	o.alerts.TradeEntry(ctx, payload, o.ledger.Mode() == ledger.ModeFullAuto)
}

// persist retries a failed write once, then spills the payload so the
// cycle can continue (availability over durability).
func (o *Orchestrator) persist(kind string, payload any, write func() error) {
	err := write()
	if err == nil {
		return
	}
	if errors.Is(err, storage.ErrDuplicateKey) || errors.Is(err, storage.ErrInvalidInput) {
		log.Error().Err(err).Str("kind", kind).Msg("persist rejected")
		return
	}
	log.Warn().Err(err).Str("kind", kind).Msg("persist failed, retrying")
	if o.metrics != nil {
		o.metrics.PersistRetries.Inc()
	}
	if err = write(); err == nil {
		return
	}
	log.Error().Err(err).Str("kind", kind).Msg("persist failed twice, spilling")
	if o.metrics != nil {
		o.metrics.SpilledWrites.Inc()
	}
	if o.spill != nil {
		if spillErr := o.spill.Spill(kind, payload, err); spillErr != nil {
			log.Error().Err(spillErr).Str("kind", kind).Msg("spill write failed")
		}
	}
}

// watchSymbols is the union of configured symbols, the watchlist, and
// currently held positions.
func (o *Orchestrator) watchSymbols(ctx context.Context) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range o.cfg.Market.Symbols {
		add(s)
	}
	for _, s := range o.cfg.Entries.Watchlist {
		add(s)
	}
	if open, err := o.ledger.ListOpen(ctx); err == nil {
		for _, p := range open {
			add(p.Symbol)
		}
	}
	return out
}

func (o *Orchestrator) newsUpdatePayload(sig domain.NewsSignal, articles []domain.Article, newCount int) alert.NewsUpdate {
	var top []alert.TopArticle
	for _, h := range o.news.Headlines(articles, 5) {
		top = append(top, alert.TopArticle{Source: h.Source, Title: h.Title, Urgency: h.Urgency})
	}
	return alert.NewsUpdate{
		Score:           sig.Score,
		CrisisType:      string(sig.CrisisType),
		SentimentLabel:  sig.Sentiment.Label(),
		ArticleCount:    sig.ArticleCount,
		NewArticleCount: newCount,
		BreakingCount:   sig.BreakingCount,
		Top:             top,
	}
}

func (o *Orchestrator) summaryPayload(ctx context.Context, level int, score float64, snap domain.MarketSnapshot) alert.CycleSummary {
	var holdings []string
	if open, err := o.ledger.ListOpen(ctx); err == nil {
		for _, p := range open {
			holdings = append(holdings, p.Symbol)
		}
	}
	return alert.CycleSummary{
		Defcon:      level,
		SignalScore: score,
		VIX:         snap.VIX,
		Yield10Y:    snap.BondYield10Y,
		SP500Pct:    snap.SP500ChangePct,
		Holdings:    holdings,
	}
}

// sleep waits until the next cycle is due, applying commands as they
// arrive. refresh and shutdown end the sleep early; while e-stopped the
// orchestrator parks here until resumed.
func (o *Orchestrator) sleep(ctx context.Context) {
	if o.lastCycleStart.IsZero() {
		return
	}
	deadline := o.lastCycleStart.Add(o.interval)

	var cmds <-chan *command.Command
	if o.poller != nil {
		cmds = o.poller.Commands()
	}

	for {
		if o.state == StateShuttingDown {
			return
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if o.state != StateEStopped {
			remaining := deadline.Sub(o.now())
			if remaining <= 0 {
				return
			}
			timer = time.NewTimer(remaining)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-timerC:
			return
		case cmd := <-cmds:
			if timer != nil {
				timer.Stop()
			}
			if interrupt := o.handleCommand(ctx, cmd); interrupt && o.state != StateEStopped {
				return
			}
		}
	}
}

// drainCommands applies queued commands without blocking. Called at
// cycle phase boundaries.
func (o *Orchestrator) drainCommands(ctx context.Context) {
	if o.poller == nil {
		return
	}
	for {
		select {
		case cmd := <-o.poller.Commands():
			o.handleCommand(ctx, cmd)
		default:
			return
		}
	}
}

func (o *Orchestrator) writePIDFile() error {
	path := o.pidPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

func (o *Orchestrator) removePIDFile() {
	if err := os.Remove(o.pidPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not remove pid file")
	}
}

func (o *Orchestrator) pidPath() string {
	return filepath.Join(o.cfg.StateDir, "hightrade.pid")
}
