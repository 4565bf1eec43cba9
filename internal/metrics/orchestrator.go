// Package metrics drives the telemetry pipeline around one wrapped agent
// subprocess: snapshot the agent's session directory before spawn, correlate
// the new log file after spawn, then watch it and incrementally parse new
// records into append-only delta and conversation logs.
//
// Every failure in here degrades to diagnostics. Nothing in this package is
// allowed to affect the wrapped subprocess.
package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agentlens/cli/internal/agents"
	"github.com/agentlens/cli/internal/correlate"
	"github.com/agentlens/cli/internal/git"
	"github.com/agentlens/cli/internal/schema"
	"github.com/agentlens/cli/internal/snapshot"
	"github.com/agentlens/cli/internal/state"
	"github.com/agentlens/cli/internal/telemetry"
)

type phase int

const (
	phaseIdle phase = iota
	phasePreSpawned
	phaseCorrelating
	phaseMonitoring
	phaseFinalized
)

// Options configures an orchestrator run
type Options struct {
	DataDir      string
	Debounce     time.Duration
	PollInterval time.Duration
	RetryDelays  []time.Duration
	Provider     string
}

// Orchestrator owns the telemetry lifecycle of one subprocess run. One
// orchestrator instance exists per run and is the single logical writer of
// that session's state; its collection passes are serialized by a single
// consumer goroutine plus a busy flag for the exit-time flush.
type Orchestrator struct {
	adapter agents.Adapter
	store   *state.SessionStore
	sink    *Sink
	opts    Options

	session *schema.Session
	workDir string
	branch  string

	phase       phase
	pre         schema.FileSnapshot
	matchedPath string

	watcher *Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
	busy    atomic.Bool
}

// NewOrchestrator creates the orchestrator and its session record. Nothing
// is persisted until BeforeAgentSpawn.
func NewOrchestrator(adapter agents.Adapter, store *state.SessionStore, workDir string, opts Options) *Orchestrator {
	sessionID := uuid.NewString()
	return &Orchestrator{
		adapter: adapter,
		store:   store,
		sink:    NewSink(opts.DataDir, sessionID),
		opts:    opts,
		workDir: workDir,
		branch:  git.CurrentBranch(workDir),
		session: &schema.Session{
			SessionID:        sessionID,
			AgentName:        adapter.Name(),
			Provider:         opts.Provider,
			Project:          git.RepoName(workDir),
			StartTime:        time.Now().UTC(),
			WorkingDirectory: workDir,
			Status:           schema.SessionActive,
			Correlation:      schema.CorrelationResult{Status: schema.CorrelationPending},
		},
	}
}

// SessionID returns the CLI-level session identifier
func (o *Orchestrator) SessionID() string {
	return o.session.SessionID
}

// BeforeAgentSpawn snapshots the agent's session directories and persists
// the pending session record. Failures are swallowed: telemetry must never
// keep the agent from starting.
func (o *Orchestrator) BeforeAgentSpawn(ctx context.Context) {
	pre, err := snapshot.TakeAll(o.adapter.SessionDirs(o.workDir))
	if err != nil {
		telemetry.RecordDegraded(ctx, o.session.SessionID, "pre-snapshot", err)
	}
	o.pre = pre

	if err := o.store.Save(o.session); err != nil {
		telemetry.RecordDegraded(ctx, o.session.SessionID, "session-create", err)
	}
	o.phase = phasePreSpawned
	telemetry.RecordSessionStart(ctx, o.session.SessionID, string(o.adapter.Name()), nil)
}

// AfterAgentSpawn waits out the agent's startup, correlates the new session
// log, and on a match starts monitoring it.
func (o *Orchestrator) AfterAgentSpawn(ctx context.Context) {
	if o.phase != phasePreSpawned {
		return
	}
	o.phase = phaseCorrelating

	time.Sleep(o.adapter.InitDelay())

	snapshotFn := func() ([]schema.FileInfo, error) {
		after, err := snapshot.TakeAll(o.adapter.SessionDirs(o.workDir))
		if err != nil {
			return nil, err
		}
		return snapshot.Diff(o.pre, after), nil
	}
	result := correlate.CorrelateWithRetry(
		o.session.SessionID, o.adapter.Name(), o.workDir,
		o.adapter.MatchesSessionPattern, o.adapter.ExtractSessionID,
		snapshotFn, o.opts.RetryDelays,
	)
	o.session.Correlation = result
	if err := o.store.Save(o.session); err != nil {
		telemetry.RecordDegraded(ctx, o.session.SessionID, "correlation-commit", err)
	}
	telemetry.RecordCorrelation(ctx, o.session.SessionID, string(o.adapter.Name()),
		string(result.Status), result.MatchedFilePath, result.RetryCount)

	if result.Status != schema.CorrelationMatched {
		// Terminal for this run; the subprocess continues without telemetry.
		o.phase = phaseIdle
		return
	}
	o.matchedPath = result.MatchedFilePath
	o.phase = phaseMonitoring

	// The agent may have written records during the correlation delay.
	o.collect(ctx, false)

	watcher, err := NewWatcher(o.matchedPath, o.opts.Debounce)
	if err != nil {
		telemetry.RecordDegraded(ctx, o.session.SessionID, "watch", err)
		watcher = nil // the poll ticker still drives collection
	}
	o.watcher = watcher
	o.stopCh = make(chan struct{})
	o.wg.Add(1)
	go o.consume(ctx)
}

// consume is the single consumer of collection triggers: debounced file
// events and the periodic poll ticker both land here.
func (o *Orchestrator) consume(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	var triggers <-chan struct{}
	if o.watcher != nil {
		triggers = o.watcher.Triggers()
	}
	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.collect(ctx, false)
		case <-triggers:
			o.collect(ctx, false)
		}
	}
}

// OnAgentExit stops monitoring, runs one final collection pass for trailing
// writes, and finalizes the session record with the subprocess outcome.
func (o *Orchestrator) OnAgentExit(ctx context.Context, exitCode int) {
	if o.phase == phaseMonitoring {
		close(o.stopCh)
		o.wg.Wait()
		if o.watcher != nil {
			o.watcher.Close()
		}
		// Final flush: also releases a trailing turn still awaiting a response.
		o.collect(ctx, true)
	}

	now := time.Now().UTC()
	o.session.EndTime = &now
	if exitCode == 0 {
		o.session.Status = schema.SessionCompleted
	} else {
		o.session.Status = schema.SessionFailed
	}
	if err := o.store.Save(o.session); err != nil {
		telemetry.RecordDegraded(ctx, o.session.SessionID, "finalize", err)
	}
	telemetry.RecordSessionStop(ctx, o.session.SessionID, exitCode, nil)
	o.phase = phaseFinalized
}

// collect runs one incremental parse pass over the matched log. The busy
// flag drops triggers that land while a pass is running; the next trigger
// catches up because the parser resumes from persisted record-ID state.
// State mutations commit in one batch at the end of the pass. final marks
// the exit flush, where an in-flight turn is emitted instead of held back.
func (o *Orchestrator) collect(ctx context.Context, final bool) {
	if !o.busy.CompareAndSwap(false, true) {
		return
	}
	defer o.busy.Store(false)

	if o.matchedPath == "" {
		return
	}
	start := time.Now()

	mm := state.NewSyncStateManager(o.store, o.session, state.StreamMetrics)
	cm := state.NewSyncStateManager(o.store, o.session, state.StreamConversations)
	mst := mm.State()

	res, err := o.adapter.ParseIncrementalMetrics(o.matchedPath, mst.ProcessedRecordIDs, mst.AttachedPromptTexts)
	if err != nil {
		telemetry.RecordParsePass(ctx, o.session.SessionID, 0, 0, 0, float64(time.Since(start).Milliseconds()), err)
		return
	}

	if len(res.Deltas) > 0 {
		ids := make([]string, 0, len(res.Deltas))
		for i := range res.Deltas {
			o.stampDelta(&res.Deltas[i])
			ids = append(ids, res.Deltas[i].RecordID)
		}
		if err := o.sink.AppendDeltas(res.Deltas); err != nil {
			// Nothing is marked processed, so the next pass re-emits.
			telemetry.RecordDegraded(ctx, o.session.SessionID, "delta-append", err)
			return
		}
		mm.AddProcessedRecords(ids)
		mm.AddAttachedUserPromptTexts(res.NewlyAttachedPrompts)
		mm.IncrementDeltas(len(res.Deltas))
		for _, d := range res.Deltas {
			if d.Tokens != (schema.TokenTotals{}) {
				telemetry.RecordTokenUsage(ctx, d.SessionID, d.AgentSessionID,
					d.Tokens.Input, d.Tokens.Output, d.Tokens.CacheRead, d.Tokens.CacheCreation)
			}
		}
	}
	mm.UpdateLastProcessed(res.LastLine, res.LastTimestamp)

	// Conversation records ride the same pass. Turns map one-to-one onto
	// history indices, so the next index doubles as the turn cursor.
	conversations := 0
	cst := cm.State()
	records, next, err := o.adapter.ParseConversation(o.matchedPath, cst.NextHistoryIndex, cst.NextHistoryIndex, final)
	if err != nil {
		telemetry.RecordDegraded(ctx, o.session.SessionID, "conversation-parse", err)
	} else if len(records) > 0 {
		if err := o.sink.AppendConversations(records); err != nil {
			telemetry.RecordDegraded(ctx, o.session.SessionID, "conversation-append", err)
		} else {
			cm.AdvanceHistoryIndex(next)
			cm.IncrementDeltas(len(records))
			conversations = len(records)
		}
	}

	if err := o.store.Save(o.session); err != nil {
		telemetry.RecordDegraded(ctx, o.session.SessionID, "state-commit", err)
	}
	telemetry.RecordParsePass(ctx, o.session.SessionID,
		len(res.Deltas), conversations, res.MalformedLines,
		float64(time.Since(start).Milliseconds()), nil)
}

// stampDelta fills the session-scoped fields the adapter cannot know
func (o *Orchestrator) stampDelta(d *schema.MetricDelta) {
	d.SessionID = o.session.SessionID
	if d.AgentSessionID == "" {
		d.AgentSessionID = o.session.Correlation.NativeSessionID
	}
	if d.GitBranch == "" {
		d.GitBranch = o.branch
	}
	if d.Timestamp == "" {
		d.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
}
