package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hightrade/internal/alert"
	"hightrade/internal/command"
	"hightrade/internal/config"
	"hightrade/internal/domain"
	"hightrade/internal/exit"
	"hightrade/internal/ledger"
	"hightrade/internal/news"
	"hightrade/internal/signal"
	"hightrade/internal/storage"
	"hightrade/internal/storage/memory"
)

var cycleTime = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type captureTransport struct {
	events []alert.Event
}

func (c *captureTransport) Send(_ context.Context, ev alert.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func (c *captureTransport) types() []string {
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

func (c *captureTransport) find(eventType string) (alert.Event, bool) {
	for _, ev := range c.events {
		if ev.Type == eventType {
			return ev, true
		}
	}
	return alert.Event{}, false
}

type stubNews struct {
	articles []domain.Article
	signal   domain.NewsSignal
	newCount int
	novel    bool
}

func (s *stubNews) CollectForCycle(context.Context, int64) []domain.Article { return s.articles }

func (s *stubNews) BuildSignal(cycleID int64, now time.Time, _ []domain.Article) domain.NewsSignal {
	sig := s.signal
	sig.CycleID = cycleID
	sig.Timestamp = now
	return sig
}

func (s *stubNews) Novelty(context.Context, []domain.Article) (int, bool) {
	return s.newCount, s.novel
}

func (s *stubNews) Headlines(articles []domain.Article, limit int) []news.Headline {
	var out []news.Headline
	for i, a := range articles {
		if i >= limit {
			break
		}
		out = append(out, news.Headline{Source: a.Source, Title: a.Title, Urgency: string(a.Urgency)})
	}
	return out
}

type stubMarket struct {
	snap domain.MarketSnapshot
}

func (s *stubMarket) Snapshot(context.Context, []string) domain.MarketSnapshot { return s.snap }

func quietSnapshot() domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Timestamp:    cycleTime,
		VIX:          15,
		BondYield10Y: 3.5,
		Prices:       map[string]float64{"SPY": 520, "GLD": 185, "TLT": 92},
	}
}

func crisisSnapshot() domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Timestamp:      cycleTime,
		VIX:            40,
		BondYield10Y:   3.5,
		SP500ChangePct: -3,
		Prices:         map[string]float64{"SPY": 480, "GLD": 190, "TLT": 95},
	}
}

func crisisSignal() domain.NewsSignal {
	return domain.NewsSignal{
		ArticleCount:  6,
		Score:         90,
		CrisisType:    domain.CrisisSystemic,
		Sentiment:     domain.SentimentDist{Bearish: 0.8, Neutral: 0.2},
		TopArticles:   []string{"a1", "a2"},
		BreakingCount: 5,
	}
}

type testRig struct {
	orch   *Orchestrator
	store  storage.Store
	ledger *ledger.Ledger
	urgent *captureTransport
	silent *captureTransport
	news   *stubNews
	market *stubMarket
	cfg    *config.Config
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	cfg := config.Default()
	cfg.StateDir = t.TempDir()

	store := memory.NewStore()
	led := ledger.New(ledger.Options{
		Positions:   store.Positions(),
		Decisions:   store.Decisions(),
		Mode:        ledger.ModeDisabled,
		DecisionTTL: time.Hour,
	})

	urgent := &captureTransport{}
	silent := &captureTransport{}

	ns := &stubNews{}
	mkt := &stubMarket{snap: quietSnapshot()}

	orch := New(Options{
		Config: cfg,
		Store:  store,
		News:   ns,
		Market: mkt,
		Scorer: signal.NewScorer(cfg.Defcon.Weights),
		Exits:  exit.NewEvaluator(cfg.Exit),
		Ledger: led,
		Alerts: alert.NewRouter(alert.Options{Urgent: urgent, Silent: silent}),
		Spill:  storage.NewSpillWriter(cfg.StateDir),
	})
	orch.now = func() time.Time { return cycleTime }

	return &testRig{
		orch: orch, store: store, ledger: led,
		urgent: urgent, silent: silent, news: ns, market: mkt, cfg: cfg,
	}
}

func TestRunCycle_QuietMarketNoTransition(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.orch.runCycle(ctx)

	// snapshot and signal persisted
	snap, err := rig.store.Snapshots().Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15.0, snap.VIX)
	sig, err := rig.store.NewsSignals().Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, cycleTime.Unix(), sig.CycleID)

	// score 0 keeps defcon 5: no transition row
	_, err = rig.store.Defcon().Latest(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Empty(t, rig.urgent.events)
	assert.Equal(t, []string{alert.EventCycleSummary}, rig.silent.types())
}

func TestRunCycle_CrisisEscalatesAndProposesEntry(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.market.snap = crisisSnapshot()
	rig.news.signal = crisisSignal()
	rig.news.newCount = 4
	rig.news.novel = true

	rig.orch.runCycle(ctx)

	// composite 81 → defcon 2, transition row persisted
	st, err := rig.store.Defcon().Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Level)
	assert.InDelta(t, 81, st.SignalScore, 0.5)

	// escalation goes urgent
	ev, ok := rig.urgent.find(alert.EventDefconChange)
	require.True(t, ok)
	change := ev.Payload.(alert.DefconChange)
	assert.Equal(t, 5, change.From)
	assert.Equal(t, 2, change.To)

	// defcon 2 with broker disabled files an entry decision
	pending, err := rig.ledger.PendingEntry(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)

	entryEv, ok := rig.urgent.find(alert.EventTradeEntry)
	require.True(t, ok)
	assert.True(t, entryEv.Payload.(alert.TradeEntry).Pending)

	// silent audit trail sees news update and ends with the summary
	_, ok = rig.silent.find(alert.EventNewsUpdate)
	assert.True(t, ok)
	types := rig.silent.types()
	assert.Equal(t, alert.EventCycleSummary, types[len(types)-1])

	// no position opened without approval
	open, err := rig.ledger.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestRunCycle_NoveltySuppressed(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sig := crisisSignal()
	sig.BreakingCount = 0
	rig.news.signal = sig
	rig.news.novel = false
	rig.news.newCount = 0

	rig.orch.runCycle(ctx)

	_, ok := rig.silent.find(alert.EventNewsUpdate)
	assert.False(t, ok, "repeated batch must not re-notify")
}

func TestRunCycle_StopLossExit(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	p, err := rig.ledger.Open(ctx, "SPY", 10, 100, 3)
	require.NoError(t, err)
	aged := rig.store.Positions()
	got, err := aged.GetByID(ctx, p.ID)
	require.NoError(t, err)
	got.EntryTime = cycleTime.Add(-2 * time.Hour)
	require.NoError(t, aged.Update(ctx, got))

	rig.market.snap = domain.MarketSnapshot{
		Timestamp:    cycleTime,
		VIX:          15,
		BondYield10Y: 3.5,
		Prices:       map[string]float64{"SPY": 95},
	}

	rig.orch.runCycle(ctx)

	closed, err := rig.ledger.ListClosed(ctx, 5)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	require.NotNil(t, closed[0].ExitReason)
	assert.Equal(t, domain.ExitReasonStopLoss, *closed[0].ExitReason)

	ev, ok := rig.urgent.find(alert.EventTradeExit)
	require.True(t, ok)
	exitPayload := ev.Payload.(alert.TradeExit)
	assert.Equal(t, "SPY", exitPayload.Symbol)
	assert.InDelta(t, -0.05, exitPayload.PnLPct, 0.001)
}

func TestRunCycle_HeldAppliesExitsButSkipsEntries(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	rig.orch.state = StateHeld

	p, err := rig.ledger.Open(ctx, "SPY", 10, 100, 3)
	require.NoError(t, err)
	got, err := rig.store.Positions().GetByID(ctx, p.ID)
	require.NoError(t, err)
	got.EntryTime = cycleTime.Add(-2 * time.Hour)
	require.NoError(t, rig.store.Positions().Update(ctx, got))

	snap := crisisSnapshot()
	snap.Prices["SPY"] = 95
	rig.market.snap = snap
	rig.news.signal = crisisSignal()

	rig.orch.runCycle(ctx)

	// exit applied for user safety
	closed, err := rig.ledger.ListClosed(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, closed, 1)

	// but no entry proposal while held, even at defcon 2
	pending, err := rig.ledger.PendingEntry(ctx)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestRunCycle_StaleSnapshotBlocksEntries(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	snap := crisisSnapshot()
	snap.Stale = true
	rig.market.snap = snap
	rig.news.signal = crisisSignal()

	rig.orch.runCycle(ctx)

	pending, err := rig.ledger.PendingEntry(ctx)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

type failingNewsSignals struct{}

func (failingNewsSignals) Insert(context.Context, *domain.NewsSignal) error {
	return errors.New("disk full")
}

func (failingNewsSignals) Latest(context.Context) (*domain.NewsSignal, error) {
	return nil, errors.New("disk full")
}

type flakyStore struct {
	storage.Store
}

func (f *flakyStore) NewsSignals() storage.NewsSignalStore { return failingNewsSignals{} }

func TestRunCycle_PersistFailureSpills(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	rig.orch.store = &flakyStore{Store: rig.store}

	rig.orch.runCycle(ctx)

	// cycle still completed
	_, ok := rig.silent.find(alert.EventCycleSummary)
	assert.True(t, ok)

	// failed artifact landed in the spill file
	body, err := os.ReadFile(filepath.Join(rig.cfg.StateDir, "spill.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "news_signal")
	assert.Contains(t, string(body), "disk full")
}

type blockingNews struct {
	stubNews
	started chan struct{}
}

func (b *blockingNews) CollectForCycle(ctx context.Context, _ int64) []domain.Article {
	close(b.started)
	<-ctx.Done()
	return nil
}

func TestRunCycle_EstopCancelsInFlightFetch(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	q, err := command.NewQueue(t.TempDir())
	require.NoError(t, err)
	p := command.NewPoller(q, 4)
	rig.orch.queue = q
	rig.orch.poller = p

	bn := &blockingNews{started: make(chan struct{})}
	rig.orch.news = bn

	done := make(chan struct{})
	go func() {
		defer close(done)
		rig.orch.runCycle(ctx)
	}()

	// the fetch is in flight; estop must cut it short, not wait it out
	<-bn.started
	require.NoError(t, p.Submit(ctx, &command.Command{Verb: command.VerbEstop}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle kept running after estop")
	}

	assert.Equal(t, StateEStopped, rig.orch.State())
	_, err = rig.store.Snapshots().Latest(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound, "a stopped cycle must not persist artifacts")
}

func TestHandleCommand_EstopRevertsPendingExits(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	p, err := rig.ledger.Open(ctx, "SPY", 10, 100, 3)
	require.NoError(t, err)
	_, err = rig.ledger.BeginExit(ctx, p.ID)
	require.NoError(t, err)

	rig.orch.handleCommand(ctx, &command.Command{Verb: command.VerbEstop})

	got, err := rig.store.Positions().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status, "positions stay open but unmanaged")
}

func TestHandleCommand_StateMachine(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	o := rig.orch

	assert.Equal(t, StateRunning, o.State())

	o.handleCommand(ctx, &command.Command{Verb: command.VerbHold})
	assert.Equal(t, StateHeld, o.State())

	// hold from held is an invalid state
	o.handleCommand(ctx, &command.Command{Verb: command.VerbHold})
	assert.Equal(t, StateHeld, o.State())

	o.handleCommand(ctx, &command.Command{Verb: command.VerbResume})
	assert.Equal(t, StateRunning, o.State())

	interrupt := o.handleCommand(ctx, &command.Command{Verb: command.VerbEstop})
	assert.True(t, interrupt)
	assert.Equal(t, StateEStopped, o.State())

	// only resume leaves e_stopped
	o.handleCommand(ctx, &command.Command{Verb: command.VerbHold})
	assert.Equal(t, StateEStopped, o.State())
	o.handleCommand(ctx, &command.Command{Verb: command.VerbResume})
	assert.Equal(t, StateRunning, o.State())

	interrupt = o.handleCommand(ctx, &command.Command{Verb: command.VerbShutdown})
	assert.True(t, interrupt)
	assert.Equal(t, StateShuttingDown, o.State())
}

func TestHandleCommand_YesExecutesPendingEntry(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.market.snap = crisisSnapshot()
	rig.news.signal = crisisSignal()
	rig.orch.runCycle(ctx)

	pending, err := rig.ledger.PendingEntry(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)

	rig.orch.handleCommand(ctx, &command.Command{ID: "c1", Verb: command.VerbYes})

	open, err := rig.ledger.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2) // GLD and TLT from the watchlist
}

func TestHandleCommand_YesNoWithoutPending(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	q, err := command.NewQueue(t.TempDir())
	require.NoError(t, err)
	rig.orch.queue = q

	rig.orch.handleCommand(ctx, &command.Command{ID: "c1", Verb: command.VerbYes})

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	body, err := q.AwaitResponse(waitCtx, "c1")
	require.NoError(t, err)
	assert.Contains(t, string(body), ResultInvalidState)
}

func TestHandleCommand_UnknownVerb(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	q, err := command.NewQueue(t.TempDir())
	require.NoError(t, err)
	rig.orch.queue = q

	rig.orch.handleCommand(ctx, &command.Command{ID: "c2", Verb: "reboot"})

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	body, err := q.AwaitResponse(waitCtx, "c2")
	require.NoError(t, err)
	assert.Contains(t, string(body), ResultUnknownVerb)
}

func TestHandleCommand_ModeAndInterval(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	o := rig.orch

	o.handleCommand(ctx, &command.Command{Verb: command.VerbMode, Args: []string{"semi_auto"}})
	assert.Equal(t, ledger.ModeSemiAuto, rig.ledger.Mode())

	o.handleCommand(ctx, &command.Command{Verb: command.VerbMode, Args: []string{"yolo"}})
	assert.Equal(t, ledger.ModeSemiAuto, rig.ledger.Mode())

	o.handleCommand(ctx, &command.Command{Verb: command.VerbInterval, Args: []string{"5"}})
	assert.Equal(t, 5*time.Minute, o.interval)

	o.handleCommand(ctx, &command.Command{Verb: command.VerbInterval, Args: []string{"-1"}})
	assert.Equal(t, 5*time.Minute, o.interval)
}

func TestHandleCommand_StatusReport(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.orch.runCycle(ctx)
	report := rig.orch.statusReport(ctx)

	assert.Equal(t, "running", report.State)
	assert.Equal(t, 5, report.Defcon)
	assert.Equal(t, cycleTime.Unix(), report.CycleID)
	assert.Equal(t, "disabled", report.BrokerMode)
	assert.Equal(t, 900, report.IntervalSec)
	assert.Zero(t, report.OpenPositions)
}

func TestRun_ShutdownAfterCycle(t *testing.T) {
	rig := newTestRig(t)

	q, err := command.NewQueue(t.TempDir())
	require.NoError(t, err)
	p := command.NewPoller(q, 4)
	rig.orch.queue = q
	rig.orch.poller = p

	require.NoError(t, p.Submit(context.Background(), &command.Command{Verb: command.VerbShutdown}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = rig.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateShuttingDown, rig.orch.State())

	// pid file removed on the way out
	assert.NoFileExists(t, filepath.Join(rig.cfg.StateDir, "hightrade.pid"))
}
