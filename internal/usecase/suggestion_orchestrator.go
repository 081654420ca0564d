package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ropa-suggestions/internal/domain/model"
	"ropa-suggestions/internal/domain/ports/adapter"
	"ropa-suggestions/internal/domain/ports/repository"
	"ropa-suggestions/internal/infra/metrics"
	"ropa-suggestions/internal/infra/scheduler"
	"ropa-suggestions/internal/infra/worker"

	"github.com/rs/zerolog"
)

// SuggestionUseCase is what UI-facing layers (the projection API, the CLI) need.
type SuggestionUseCase interface {
	Bind(ref model.EntityRef) error
	Unbind()
	Enable()
	Disable()
	Entity() (model.EntityRef, bool)

	CreateJob(ctx context.Context, field model.FieldSpec, currentValue string, formContext map[string]any, fieldOptions []string) (string, error)
	PollJobStatus(ctx context.Context, fieldName, jobID string)
	RestoreJobs(ctx context.Context)

	SuggestAll(ctx context.Context, fields []model.FieldSpec, formContext map[string]any, fieldOptions map[string][]string) (*SuggestAllResult, error)
	DeclineAll(ctx context.Context) int
	ClearJobStatus(fieldName string)
	GetAllActiveSuggestions() map[string]*model.SuggestionJob
	AcceptSuggestion(fieldName string) ([]string, error)
	AcceptAll() map[string][]string

	Snapshot() SuggestionSnapshot
	Subscribe(buffer int) (<-chan SuggestionSnapshot, func())
}

var _ SuggestionUseCase = (*SuggestionOrchestrator)(nil)

type SuggestionOptions struct {
	PollInterval    time.Duration
	MaxPollAttempts int // 0 = poll forever
	RequestTimeout  time.Duration
	Workers         int
}

func (o SuggestionOptions) withDefaults() SuggestionOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.MaxPollAttempts < 0 {
		o.MaxPollAttempts = 0
	}
	return o
}

// SuggestionSnapshot is an immutable copy of the orchestrator state.
// Version grows with every change; consumers may drop older versions.
type SuggestionSnapshot struct {
	Version         uint64                          `json:"version"`
	Entity          *model.EntityRef                `json:"entity,omitempty"`
	Enabled         bool                            `json:"enabled"`
	Restoring       bool                            `json:"restoring"`
	Jobs            map[string]*model.SuggestionJob `json:"jobs"`
	Active          map[string]string               `json:"active"`
	Cleared         []string                        `json:"cleared"`
	SuggestionCount int                             `json:"suggestion_count"`
}

// SuggestionOrchestrator owns the suggestion job lifecycle for one bound entity
// at a time. All state sits behind mu, which is never held across a backend
// or store call; every result is re-validated under mu before it is written.
type SuggestionOrchestrator struct {
	backend  adapter.SuggestionJobBackend
	declined repository.DeclinedJobRepository
	notifier adapter.Notifier
	opts     SuggestionOptions
	log      *zerolog.Logger
	now      func() time.Time

	pool       *worker.Pool
	poller     *scheduler.Scheduler
	pollerMu   sync.Mutex
	baseCtx    context.Context
	baseCancel context.CancelFunc
	persistWG  sync.WaitGroup

	mu           sync.Mutex
	ref          model.EntityRef
	bound        bool
	gen          uint64 // bumped on every teardown; stale async results compare against it
	enabled      bool
	closed       bool
	state        *suggestionState
	restoring    bool
	restoringGen uint64
	version      uint64
	// declines not yet confirmed by the persistent store, per scope
	unpersisted map[model.DeclinedScope]map[string]struct{}

	subsMu        sync.Mutex
	subs          map[uint64]chan SuggestionSnapshot
	nextSub       uint64
	lastPublished uint64
}

func NewSuggestionOrchestrator(
	backend adapter.SuggestionJobBackend,
	declined repository.DeclinedJobRepository,
	notifier adapter.Notifier,
	opts SuggestionOptions,
	logger *zerolog.Logger,
) *SuggestionOrchestrator {
	opts = opts.withDefaults()
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "SuggestionOrchestrator").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	o := &SuggestionOrchestrator{
		backend:     backend,
		declined:    declined,
		notifier:    notifier,
		opts:        opts,
		log:         &l,
		now:         time.Now,
		pool:        worker.NewPool(opts.Workers, &l),
		baseCtx:     ctx,
		baseCancel:  cancel,
		state:       newSuggestionState(),
		unpersisted: make(map[model.DeclinedScope]map[string]struct{}),
		subs:        make(map[uint64]chan SuggestionSnapshot),
	}
	o.poller = scheduler.NewScheduler(opts.PollInterval, scheduler.RunnerFunc(o.pollTick), &l)
	o.pool.Start(ctx)
	return o
}

// Bind tears down everything held for the previous entity and binds to ref.
// Binding to the same entity again still resets all in-memory state.
func (o *SuggestionOrchestrator) Bind(ref model.EntityRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return fmt.Errorf("suggestion orchestrator is closed")
	}
	o.resetLocked()
	o.ref = ref
	o.bound = true
	// Declines still being written must be honored before the store catches up.
	for id := range o.unpersisted[ref.Scope()] {
		o.state.markDeclined(id)
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.log.Info().Str("entity", ref.String()).Msg("bound suggestions to entity")
	o.publish(snap)
	o.syncPoller()
	return nil
}

func (o *SuggestionOrchestrator) Unbind() {
	o.mu.Lock()
	o.resetLocked()
	o.ref = model.EntityRef{}
	o.bound = false
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.publish(snap)
	o.syncPoller()
}

// Enable turns polling on for the current binding.
func (o *SuggestionOrchestrator) Enable() {
	o.mu.Lock()
	if o.closed || o.enabled {
		o.mu.Unlock()
		return
	}
	o.enabled = true
	o.version++
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.publish(snap)
	o.syncPoller()
}

// Disable stops polling and wipes in-memory state, as when the dialog closes.
// The binding is kept; the persisted declined registry is untouched.
func (o *SuggestionOrchestrator) Disable() {
	o.mu.Lock()
	o.enabled = false
	o.resetLocked()
	if o.bound {
		for id := range o.unpersisted[o.ref.Scope()] {
			o.state.markDeclined(id)
		}
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.publish(snap)
	o.syncPoller()
}

func (o *SuggestionOrchestrator) Entity() (model.EntityRef, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ref, o.bound
}

// Polling reports whether the poll loop is currently running.
func (o *SuggestionOrchestrator) Polling() bool {
	return o.poller.Running()
}

// Close stops polling and the worker pool and waits for pending declined writes.
func (o *SuggestionOrchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.enabled = false
	o.mu.Unlock()

	o.poller.Stop()
	o.baseCancel()
	o.pool.Stop()
	o.persistWG.Wait()

	o.subsMu.Lock()
	for id, ch := range o.subs {
		close(ch)
		delete(o.subs, id)
	}
	o.subsMu.Unlock()
}

func (o *SuggestionOrchestrator) resetLocked() {
	o.gen++
	o.state = newSuggestionState()
	o.restoring = false
	o.version++
}

func (o *SuggestionOrchestrator) Snapshot() SuggestionSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *SuggestionOrchestrator) snapshotLocked() SuggestionSnapshot {
	snap := SuggestionSnapshot{
		Version:         o.version,
		Enabled:         o.enabled,
		Restoring:       o.restoring && o.restoringGen == o.gen,
		Jobs:            o.state.snapshotJobs(),
		Active:          o.state.snapshotActive(),
		Cleared:         make([]string, 0, len(o.state.cleared)),
		SuggestionCount: len(o.state.activeSuggestions()),
	}
	if o.bound {
		ref := o.ref
		snap.Entity = &ref
	}
	for field := range o.state.cleared {
		snap.Cleared = append(snap.Cleared, field)
	}
	sort.Strings(snap.Cleared)
	return snap
}

// Subscribe delivers a snapshot after every change. A slow subscriber only
// ever sees the latest snapshot; older undelivered ones are replaced.
func (o *SuggestionOrchestrator) Subscribe(buffer int) (<-chan SuggestionSnapshot, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan SuggestionSnapshot, buffer)

	o.subsMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.Snapshot() // empty channel, never blocks
	o.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			o.subsMu.Lock()
			defer o.subsMu.Unlock()
			if c, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

func (o *SuggestionOrchestrator) publish(snap SuggestionSnapshot) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	if snap.Version <= o.lastPublished {
		return
	}
	o.lastPublished = snap.Version
	for _, ch := range o.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// commitLocked bumps the version and returns the snapshot to publish after unlocking.
func (o *SuggestionOrchestrator) commitLocked() SuggestionSnapshot {
	o.version++
	return o.snapshotLocked()
}

// syncPoller starts the poll loop when there is something to poll and stops it otherwise.
func (o *SuggestionOrchestrator) syncPoller() {
	o.pollerMu.Lock()
	defer o.pollerMu.Unlock()

	o.mu.Lock()
	n := len(o.state.active)
	want := o.enabled && o.bound && !o.closed && n > 0
	o.mu.Unlock()

	metrics.SetActiveJobs(n)
	if want {
		o.poller.Start(o.baseCtx)
	} else {
		o.poller.Stop()
	}
}

// persistDeclined writes declined ids behind the caller's back. Until the
// write succeeds the ids stay in unpersisted so a quick rebind honors them.
func (o *SuggestionOrchestrator) persistDeclined(scope model.DeclinedScope, ids []string) {
	if len(ids) == 0 {
		return
	}
	// caller holds mu
	pending := o.unpersisted[scope]
	if pending == nil {
		pending = make(map[string]struct{})
		o.unpersisted[scope] = pending
	}
	for _, id := range ids {
		pending[id] = struct{}{}
	}
	if o.declined == nil {
		return
	}

	o.persistWG.Add(1)
	go func() {
		defer o.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.opts.RequestTimeout)
		defer cancel()
		if err := o.declined.Add(ctx, scope, ids...); err != nil {
			o.log.Warn().Err(err).Str("entity_type", string(scope.EntityType)).Str("entity_id", scope.EntityID).
				Strs("job_ids", ids).Msg("could not persist declined suggestion jobs")
			return
		}
		o.mu.Lock()
		for _, id := range ids {
			delete(o.unpersisted[scope], id)
		}
		if len(o.unpersisted[scope]) == 0 {
			delete(o.unpersisted, scope)
		}
		o.mu.Unlock()
	}()
}

func (o *SuggestionOrchestrator) notify(ctx context.Context, n adapter.Notification) {
	if o.notifier == nil {
		return
	}
	o.notifier.Notify(ctx, n)
}
