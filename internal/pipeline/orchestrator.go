// Package pipeline runs the seventeen-stage persona pipeline for one subject
// and records every step on a RunRecord.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sells-group/persona-cli/internal/config"
	"github.com/sells-group/persona-cli/internal/fusion"
	"github.com/sells-group/persona-cli/internal/model"
	"github.com/sells-group/persona-cli/internal/store"
	"github.com/sells-group/persona-cli/internal/telemetry"
)

// ErrReset is returned by Execution.Run when the run was reset.
var ErrReset = eris.New("pipeline: run was reset")

// ErrAlreadyStarted is returned when Run is called twice on one Execution.
var ErrAlreadyStarted = eris.New("pipeline: execution already started")

// Event is emitted for every status change and log line.
type Event struct {
	RunID  string            `json:"runId"`
	Stage  model.StageKey    `json:"stage,omitempty"`
	Status model.StageStatus `json:"status"`
	Log    string            `json:"log,omitempty"`
	At     time.Time         `json:"at"`
}

// Observer receives events. Observe is called synchronously from the run's
// goroutine and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }

// Orchestrator creates and runs executions. It is safe for concurrent use;
// each Execution owns its own RunRecord.
type Orchestrator struct {
	repo       store.Repository
	discoverer Discoverer
	fetcher    Fetcher
	expander   AliasExpander
	policy     fusion.ConfidencePolicy
	fusion     model.FusionWeights
	pipeline   config.PipelineConfig
	compliance config.ComplianceConfig
	live       bool
	now        func() time.Time
	observers  []Observer
	inst       *telemetry.Instruments
	tracer     trace.Tracer
	ids        *idSource
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDiscoverer sets the Source Discovery collaborator.
func WithDiscoverer(d Discoverer) Option { return func(o *Orchestrator) { o.discoverer = d } }

// WithFetcher sets the Content Fetch collaborator.
func WithFetcher(f Fetcher) Option { return func(o *Orchestrator) { o.fetcher = f } }

// WithAliasExpander sets the alias expansion collaborator. Nil disables expansion.
func WithAliasExpander(a AliasExpander) Option { return func(o *Orchestrator) { o.expander = a } }

// WithPolicy sets the confidence policy.
func WithPolicy(p fusion.ConfidencePolicy) Option { return func(o *Orchestrator) { o.policy = p } }

// WithFusionDefaults sets the fusion weights used when a request has none.
func WithFusionDefaults(w model.FusionWeights) Option {
	return func(o *Orchestrator) { o.fusion = w.Clone() }
}

// WithPipelineConfig applies the pipeline section of the config.
func WithPipelineConfig(c config.PipelineConfig) Option {
	return func(o *Orchestrator) { o.pipeline = c }
}

// WithCompliance applies the compliance section of the config.
func WithCompliance(c config.ComplianceConfig) Option {
	return func(o *Orchestrator) { o.compliance = c }
}

// WithLiveMode marks runs as using live collaborators.
func WithLiveMode(live bool) Option { return func(o *Orchestrator) { o.live = live } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// WithObserver subscribes obs to every execution.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithInstruments records stage and run metrics.
func WithInstruments(inst *telemetry.Instruments) Option {
	return func(o *Orchestrator) { o.inst = inst }
}

// New returns an Orchestrator persisting to repo (which may be nil). Without
// options it uses the simulated collaborators.
func New(repo store.Repository, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:       repo,
		discoverer: SimulatedDiscoverer{},
		fetcher:    SimulatedFetcher{},
		expander:   SimulatedAliasExpander{},
		policy:     fusion.PlaceholderPolicy{},
		fusion:     model.DefaultFusion(),
		pipeline: config.PipelineConfig{
			CollaboratorTimeoutSecs: 30,
			MaxCandidates:           120,
			QualityThreshold:        0.5,
			QuotesPerAttribute:      3,
		},
		compliance: config.ComplianceConfig{RequestsPerSecond: 2, Burst: 4},
		now:        time.Now,
		tracer:     telemetry.Tracer(),
		ids:        &idSource{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Prepare validates req and returns an Execution whose record has every
// stage idle. Invalid requests return a *model.ValidationError.
func (o *Orchestrator) Prepare(req Request) (*Execution, error) {
	p, err := req.validate(o.fusion)
	if err != nil {
		return nil, err
	}
	now := o.now().UTC()
	rec := model.RunRecord{
		ID:                   o.ids.next(now),
		Subject:              p.Subject,
		Aliases:              p.Aliases,
		TimeWindow:           p.TimeWindow,
		Languages:            p.Languages,
		CreatedAt:            now,
		Stages:               model.NewStages(),
		Fusion:               *p.Fusion,
		SourceWeights:        p.allocation.Sources(),
		QuestionnaireAnswers: p.QuestionnaireAnswers,
		AuditLog:             []model.AuditLogEntry{},
	}
	if rec.Aliases == nil {
		rec.Aliases = []string{}
	}
	return &Execution{o: o, req: p, rec: rec}, nil
}

// Run prepares and executes req in one call.
func (o *Orchestrator) Run(ctx context.Context, req Request) (model.RunRecord, error) {
	e, err := o.Prepare(req)
	if err != nil {
		return model.RunRecord{}, err
	}
	return e.Run(ctx)
}

// Execution is one run of the pipeline.
type Execution struct {
	o   *Orchestrator
	req *prepared

	mu      sync.Mutex
	rec     model.RunRecord
	started bool
	reset   bool
	cancel  context.CancelFunc
	failure error
}

// ID returns the run id.
func (e *Execution) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.ID
}

// Snapshot returns a deep copy of the current record.
func (e *Execution) Snapshot() model.RunRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone()
}

// Failure returns the error that halted the run, if any.
func (e *Execution) Failure() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failure
}

// Reset aborts the run and clears every stage back to idle. The stage in
// flight, if any, is cancelled and never marked done.
func (e *Execution) Reset() {
	e.mu.Lock()
	e.reset = true
	if e.cancel != nil {
		e.cancel()
	}
	e.rec = ResetStages(e.rec)
	id := e.rec.ID
	e.mu.Unlock()
	e.emit(Event{RunID: id, Status: model.StageIdle, Log: "run reset", At: e.o.now().UTC()})
}

// Run executes the stages in order. Stage failures are recorded on the
// returned record and do not produce an error; use Failure to inspect them.
// The record is persisted when the run completes or halts. A persistence
// failure is returned together with the in-memory record.
func (e *Execution) Run(ctx context.Context) (model.RunRecord, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return e.Snapshot(), ErrAlreadyStarted
	}
	e.started = true
	if e.reset {
		e.mu.Unlock()
		return e.Snapshot(), ErrReset
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()
	defer cancel()

	log := zap.L().With(zap.String("run_id", e.ID()), zap.String("subject", e.req.Subject))
	log.Info("pipeline: run started", zap.Bool("live", e.o.live))
	start := time.Now()

	st := newRunState(e.req, e.o, e.Snapshot().CreatedAt)
	var halted error
	for _, key := range model.StageKeys() {
		if err := e.checkReset(); err != nil {
			e.o.inst.RecordRun(ctx, "reset", e.o.live)
			return e.Snapshot(), err
		}
		if ctx.Err() != nil {
			halted = eris.Wrap(ctx.Err(), "pipeline: run cancelled")
			break
		}
		if err := e.runStage(ctx, key, st, log); err != nil {
			if errors.Is(err, ErrReset) {
				e.o.inst.RecordRun(ctx, "reset", e.o.live)
				return e.Snapshot(), err
			}
			halted = err
			break
		}
		// Reset and cancellation are picked up at the top of the loop.
		_ = e.pause(ctx)
	}

	e.mu.Lock()
	if e.reset {
		e.mu.Unlock()
		return e.Snapshot(), ErrReset
	}
	if halted == nil {
		e.rec.Persona = st.persona
		e.rec.Stats = st.stats
	} else {
		e.failure = halted
	}
	rec := e.rec.Clone()
	e.mu.Unlock()

	outcome := "done"
	if halted != nil {
		outcome = "error"
		log.Warn("pipeline: run halted", zap.Error(halted), zap.Duration("elapsed", time.Since(start)))
	} else {
		log.Info("pipeline: run complete",
			zap.Float64("confidence", rec.Persona.Confidence),
			zap.String("band", string(rec.Persona.ConfidenceBand)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	e.o.inst.RecordRun(ctx, outcome, e.o.live)

	if e.o.repo != nil {
		// The caller's context may be cancelled by now; the partial trace is still saved.
		saveCtx, cancelSave := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancelSave()
		if err := e.o.repo.Upsert(saveCtx, &rec); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// runStage moves key through running to done or error.
func (e *Execution) runStage(ctx context.Context, key model.StageKey, st *runState, log *zap.Logger) error {
	ctx, span := e.o.tracer.Start(ctx, "pipeline.stage."+string(key), trace.WithAttributes(
		attribute.String("run.id", e.ID()),
		attribute.String("stage", string(key)),
	))
	defer span.End()

	if err := e.apply(Transition{Stage: key, To: model.StageRunning}); err != nil {
		return err
	}
	begin := time.Now()
	sc := &stageContext{e: e, key: key}
	err := stageFuncs[key.Index()](ctx, sc, st)

	if rerr := e.checkReset(); rerr != nil {
		return rerr
	}
	elapsed := time.Since(begin)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if aerr := e.apply(Transition{Stage: key, To: model.StageError, Logs: []string{"error: " + err.Error()}}); aerr != nil {
			return aerr
		}
		log.Error("pipeline: stage failed", zap.String("stage", string(key)), zap.Int64("duration_ms", elapsed.Milliseconds()), zap.Error(err))
		e.o.inst.RecordStage(ctx, string(key), string(model.StageError), elapsed)
		return err
	}
	if err := e.apply(Transition{Stage: key, To: model.StageDone}); err != nil {
		return err
	}
	log.Info("pipeline: stage complete", zap.String("stage", string(key)), zap.Int64("duration_ms", elapsed.Milliseconds()))
	e.o.inst.RecordStage(ctx, string(key), string(model.StageDone), elapsed)
	return nil
}

// apply advances the record unless the run was reset, then notifies observers.
func (e *Execution) apply(t Transition) error {
	t.At = e.o.now().UTC()
	e.mu.Lock()
	if e.reset {
		e.mu.Unlock()
		return ErrReset
	}
	next, err := Advance(e.rec, t)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.rec = next
	id := e.rec.ID
	e.mu.Unlock()

	if t.To != "" {
		e.emit(Event{RunID: id, Stage: t.Stage, Status: t.To, At: t.At})
	}
	status := t.To
	if status == "" {
		status = model.StageRunning
	}
	for _, l := range t.Logs {
		e.emit(Event{RunID: id, Stage: t.Stage, Status: status, Log: l, At: t.At})
	}
	return nil
}

func (e *Execution) setAliases(aliases []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.reset {
		e.rec.Aliases = append([]string{}, aliases...)
	}
}

func (e *Execution) checkReset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reset {
		return ErrReset
	}
	return nil
}

// pause waits the configured delay between stages.
func (e *Execution) pause(ctx context.Context) error {
	d := time.Duration(e.o.pipeline.StageDelayMs) * time.Millisecond
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Execution) emit(ev Event) {
	if ev.Log != "" {
		zap.L().Debug("pipeline: stage log", zap.String("run_id", ev.RunID), zap.String("stage", string(ev.Stage)), zap.String("line", ev.Log))
	}
	for _, obs := range e.o.observers {
		obs.Observe(ev)
	}
}

// stageContext is a stage's handle on its execution.
type stageContext struct {
	e   *Execution
	key model.StageKey
}

// logf appends one line to the stage's trace.
func (sc *stageContext) logf(format string, args ...any) {
	_ = sc.e.apply(Transition{Stage: sc.key, Logs: []string{fmt.Sprintf(format, args...)}})
}

// call bounds a collaborator call by the configured timeout and wraps any
// failure as a *CollaboratorError. The stage stops waiting at the deadline
// even if fn ignores its context; fn's side effects must not be read after
// call returns an error.
func (sc *stageContext) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	timeout := time.Duration(sc.e.o.pipeline.CollaboratorTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(cctx) }()

	var err error
	select {
	case err = <-done:
		if err == nil && cctx.Err() != nil {
			err = cctx.Err()
		}
	case <-cctx.Done():
		err = cctx.Err()
	}
	if err == nil {
		return nil
	}
	cerr := &CollaboratorError{Stage: sc.key, Collaborator: name, Err: err}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		cerr.Timeout = timeout
	}
	return cerr
}

// idSource issues time-derived run ids, unique within the process.
type idSource struct {
	mu   sync.Mutex
	last string
	n    int
}

func (s *idSource) next(t time.Time) string {
	base := strings.NewReplacer(":", "-", ".", "-").Replace(t.UTC().Format("2006-01-02T15:04:05.000Z"))
	s.mu.Lock()
	defer s.mu.Unlock()
	if base == s.last {
		s.n++
		return fmt.Sprintf("%s-%d", base, s.n)
	}
	s.last, s.n = base, 1
	return base
}
