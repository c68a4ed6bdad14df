// Package scan runs throttled, resumable batch analyses over all published
// items.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devraulu/airank/pkg/storage"
)

const (
	StateOption    = "batch_state"
	LockName       = "batch_lock"
	CompleteNotice = "batch_complete_notice"

	noticeTTL = 60 * time.Second
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusCancelled Status = "cancelled"
)

// State is the persisted batch run. Queue is fixed when the run starts and
// Progress only grows.
type State struct {
	RunID    string    `json:"run_id"`
	Types    []string  `json:"types"`
	Queue    []int64   `json:"queue"`
	Progress int       `json:"progress"`
	Status   Status    `json:"status"`
	LastRun  time.Time `json:"last_run"`
}

// View is the polling surface for progress displays.
type View struct {
	Status   Status     `json:"status"`
	Total    int        `json:"total"`
	Progress int        `json:"progress"`
	LastRun  *time.Time `json:"last_run"`
}

type Outcome int

const (
	// OutcomeSkipped means another tick held the lock.
	OutcomeSkipped Outcome = iota
	// OutcomeIdle means no run was active.
	OutcomeIdle
	OutcomeAdvanced
	OutcomeCompleted
	// OutcomeRetry means the tick failed before finishing and another one was
	// scheduled.
	OutcomeRetry
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeIdle:
		return "idle"
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeCompleted:
		return "completed"
	case OutcomeRetry:
		return "retry"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type Store interface {
	storage.TransientStore
	storage.OptionStore
}

type Lister interface {
	ListPublishedIDs(ctx context.Context, types []string) ([]int64, error)
}

type AnalyzeFunc func(ctx context.Context, id int64) error

type Config struct {
	SliceSize  int
	FirstDelay time.Duration
	NextDelay  time.Duration
	LockTTL    time.Duration
	// Types is the scope used when Start gets no filter.
	Types []string
}

func (c *Config) defaults() {
	if c.SliceSize <= 0 {
		c.SliceSize = 3
	}
	if c.FirstDelay <= 0 {
		c.FirstDelay = 5 * time.Second
	}
	if c.NextDelay <= 0 {
		c.NextDelay = 10 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
}

type Scheduler struct {
	store   Store
	items   Lister
	analyze AnalyzeFunc
	trigger Trigger
	cfg     Config

	now        func() time.Time
	log        *slog.Logger
	onComplete func(ctx context.Context, st State)

	// mu serializes read-modify-write of the state within this process.
	mu sync.Mutex
	// armMu makes the pending check and the scheduling of a tick one step.
	armMu sync.Mutex
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// OnComplete registers a callback run once when a run reaches the end of its
// queue.
func OnComplete(fn func(ctx context.Context, st State)) Option {
	return func(s *Scheduler) { s.onComplete = fn }
}

func New(store Store, items Lister, analyze AnalyzeFunc, trigger Trigger, cfg Config, opts ...Option) *Scheduler {
	cfg.defaults()
	s := &Scheduler{
		store:   store,
		items:   items,
		analyze: analyze,
		trigger: trigger,
		cfg:     cfg,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start snapshots the published ids of types into a new run and schedules the
// first tick unless one is already pending. A running scan is replaced.
func (s *Scheduler) Start(ctx context.Context, types []string) (State, error) {
	if len(types) == 0 {
		types = s.cfg.Types
	}

	ids, err := s.items.ListPublishedIDs(ctx, types)
	if err != nil {
		return State{}, fmt.Errorf("list items to scan: %w", err)
	}
	queue := slices.Clone(ids)
	if queue == nil {
		queue = []int64{}
	}
	slices.Sort(queue)

	st := State{
		RunID:    uuid.NewString(),
		Types:    types,
		Queue:    queue,
		Progress: 0,
		Status:   StatusRunning,
		LastRun:  s.now(),
	}

	s.mu.Lock()
	err = s.store.SetOption(ctx, StateOption, st)
	s.mu.Unlock()
	if err != nil {
		return State{}, fmt.Errorf("save scan state: %w", err)
	}

	s.arm(s.cfg.FirstDelay)

	s.log.Info("batch scan started",
		slog.String("run_id", st.RunID),
		slog.Any("types", types),
		slog.Int("total", len(queue)),
	)
	return st, nil
}

// Tick processes the next slice of the active run. A tick that cannot take
// the lock does nothing and returns OutcomeSkipped.
func (s *Scheduler) Tick(ctx context.Context) (Outcome, error) {
	owner := uuid.NewString()
	ok, err := s.store.AcquireLock(ctx, LockName, owner, s.cfg.LockTTL)
	if err != nil {
		s.rearm()
		return OutcomeRetry, fmt.Errorf("acquire scan lock: %w", err)
	}
	if !ok {
		s.log.Debug("scan tick skipped, lock held")
		return OutcomeSkipped, nil
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hb sync.WaitGroup
	hb.Add(1)
	go func() {
		defer hb.Done()
		s.heartbeat(hbCtx, owner)
	}()
	defer func() {
		stopHeartbeat()
		hb.Wait()
		if err := s.store.ReleaseLock(context.WithoutCancel(ctx), LockName, owner); err != nil {
			s.log.Error("failed to release scan lock", slog.Any("err", err))
		}
	}()

	return s.tick(ctx)
}

func (s *Scheduler) tick(ctx context.Context) (Outcome, error) {
	st, err := s.load(ctx)
	if err != nil {
		s.rearm()
		return OutcomeRetry, fmt.Errorf("load scan state: %w", err)
	}
	if st.Status != StatusRunning {
		return OutcomeIdle, nil
	}

	start := min(st.Progress, len(st.Queue))
	end := min(start+s.cfg.SliceSize, len(st.Queue))

	processed := start
	for _, id := range st.Queue[start:end] {
		if ctx.Err() != nil {
			break
		}
		s.analyzeOne(ctx, st.RunID, id)
		processed++
	}

	cur, completed, err := s.commit(context.WithoutCancel(ctx), st.RunID, processed)
	if err != nil {
		s.rearm()
		return OutcomeRetry, fmt.Errorf("save scan progress: %w", err)
	}

	if completed {
		s.log.Info("batch scan complete", slog.String("run_id", cur.RunID), slog.Int("total", len(cur.Queue)))
		if err := s.store.SetTransient(context.WithoutCancel(ctx), CompleteNotice, cur.RunID, noticeTTL); err != nil {
			s.log.Error("failed to set scan completion notice", slog.Any("err", err))
		}
		if s.onComplete != nil {
			s.onComplete(ctx, cur)
		}
		return OutcomeCompleted, nil
	}

	if cur.RunID == st.RunID && cur.Status == StatusRunning {
		s.rearm()
	}

	s.log.Info("batch scan advanced",
		slog.String("run_id", st.RunID),
		slog.Int("progress", cur.Progress),
		slog.Int("total", len(cur.Queue)),
	)
	return OutcomeAdvanced, nil
}

func (s *Scheduler) analyzeOne(ctx context.Context, runID string, id int64) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("item analysis panicked",
				slog.String("run_id", runID),
				slog.Int64("id", id),
				slog.Any("panic", r),
			)
		}
	}()
	if err := s.analyze(ctx, id); err != nil {
		s.log.Warn("item analysis failed",
			slog.String("run_id", runID),
			slog.Int64("id", id),
			slog.Any("err", err),
		)
	}
}

// commit records progress for runID. Progress of a replaced run is dropped;
// a run cancelled mid-tick keeps the progress of its last slice.
func (s *Scheduler) commit(ctx context.Context, runID string, progress int) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.load(ctx)
	if err != nil {
		return State{}, false, err
	}
	if cur.RunID != runID {
		s.log.Info("scan run replaced during tick, dropping progress", slog.String("run_id", runID))
		return cur, false, nil
	}

	cur.Progress = min(max(cur.Progress, progress), len(cur.Queue))
	cur.LastRun = s.now()

	completed := false
	if cur.Status == StatusRunning && cur.Progress >= len(cur.Queue) {
		cur.Status = StatusComplete
		completed = true
	}

	if err := s.store.SetOption(ctx, StateOption, cur); err != nil {
		return State{}, false, err
	}
	return cur, completed, nil
}

// Cancel stops the active run and drops pending ticks. It reports whether a
// running scan was cancelled; with nothing running it only clears ticks.
func (s *Scheduler) Cancel(ctx context.Context) (bool, error) {
	s.mu.Lock()
	st, err := s.load(ctx)
	cancelled := false
	if err == nil && st.Status == StatusRunning {
		st.Status = StatusCancelled
		st.LastRun = s.now()
		err = s.store.SetOption(ctx, StateOption, st)
		cancelled = err == nil
	}
	s.mu.Unlock()

	dropped := s.trigger.CancelAll()
	if err != nil {
		return false, fmt.Errorf("cancel scan: %w", err)
	}

	s.log.Info("batch scan cancel requested",
		slog.Bool("cancelled", cancelled),
		slog.Int("dropped_ticks", dropped),
	)
	return cancelled, nil
}

// State returns the current run as plain data. A missing run reads as idle.
func (s *Scheduler) State(ctx context.Context) (View, error) {
	st, err := s.load(ctx)
	if err != nil {
		return View{}, err
	}
	v := View{Status: st.Status, Total: len(st.Queue), Progress: st.Progress}
	if !st.LastRun.IsZero() {
		t := st.LastRun
		v.LastRun = &t
	}
	return v, nil
}

// Resume schedules a tick for a running scan that has none pending, for
// example after a restart or when the run was started by another process.
func (s *Scheduler) Resume(ctx context.Context) (bool, error) {
	st, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	if st.Status != StatusRunning || !s.arm(s.cfg.FirstDelay) {
		return false, nil
	}
	s.log.Info("batch scan resumed", slog.String("run_id", st.RunID), slog.Int("progress", st.Progress))
	return true, nil
}

// TakeCompletionNotice reports, once, that a run finished within the last
// minute.
func (s *Scheduler) TakeCompletionNotice(ctx context.Context) (bool, error) {
	return s.store.TakeTransient(ctx, CompleteNotice)
}

func (s *Scheduler) load(ctx context.Context) (State, error) {
	st := State{Status: StatusIdle}
	ok, err := s.store.GetOption(ctx, StateOption, &st)
	if err != nil {
		return State{}, err
	}
	if !ok || st.Status == "" {
		st.Status = StatusIdle
	}
	return st, nil
}

// arm schedules a tick after d unless one is already pending, so a run never
// has more than one tick chain.
func (s *Scheduler) arm(d time.Duration) bool {
	s.armMu.Lock()
	defer s.armMu.Unlock()
	if s.trigger.Pending() {
		return false
	}
	s.trigger.ScheduleOnce(d)
	return true
}

func (s *Scheduler) rearm() {
	s.arm(s.cfg.NextDelay)
}

// heartbeat renews the lock until ctx ends so a slow slice cannot outlive
// its lease.
func (s *Scheduler) heartbeat(ctx context.Context, owner string) {
	t := time.NewTicker(max(s.cfg.LockTTL/3, time.Second))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ok, err := s.store.RenewLock(ctx, LockName, owner, s.cfg.LockTTL)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("scan lock renewal failed", slog.Any("err", err))
				}
				continue
			}
			if !ok {
				s.log.Warn("scan lock lost", slog.String("owner", owner))
				return
			}
		}
	}
}
