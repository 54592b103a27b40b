// internal/session/controller.go
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/action"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/executor"
	"github.com/xkilldash9x/deskpilot/internal/humanoid"
	"github.com/xkilldash9x/deskpilot/internal/interaction"
	"github.com/xkilldash9x/deskpilot/internal/oracle"
)

var (
	// ErrStopped wraps the reason an objective ended without completing.
	ErrStopped = errors.New("session: objective stopped")
	// ErrBusy is returned when a session is already active on the controller.
	ErrBusy = errors.New("session: another objective is already running")
)

// Oracle is the decision capability the controller consults.
type Oracle interface {
	Plan(ctx context.Context, objective string, screen oracle.Screen) ([]string, error)
	NextAction(ctx context.Context, q oracle.Query) (string, error)
	Describe(ctx context.Context, screen oracle.Screen, objective string) (string, error)
}

// Executor performs parsed actions.
type Executor interface {
	Execute(ctx context.Context, a action.Action, env executor.Env) executor.Result
}

// PointerLocator reports where the pointer really is.
type PointerLocator interface {
	Position(ctx context.Context) (humanoid.Vector2D, error)
}

// Request starts one objective.
type Request struct {
	// ID is generated when empty.
	ID        string
	Objective string
	// MaxSteps overrides the configured global iteration ceiling when positive.
	MaxSteps int
}

// Result summarises a finished objective.
type Result struct {
	ID             string
	State          schemas.SessionState
	Plan           []string
	StepsCompleted int
	StepsExhausted int
	Iterations     int
	BatchFailures  int
	// Err is nil for ObjectiveDone and wraps ErrStopped otherwise.
	Err error
}

// Status is a point-in-time view of the active session.
type Status struct {
	Active     bool
	ID         string
	Objective  string
	State      schemas.SessionState
	StepIndex  int
	Steps      int
	Iterations int
}

// Option configures a Controller.
type Option func(*Controller)

// WithJournal attaches a persistence journal.
func WithJournal(j Journal) Option {
	return func(c *Controller) {
		if j != nil {
			c.journal = j
		}
	}
}

// WithPointer lets confirmation queries report the live pointer position
// instead of the last MOVE target.
func WithPointer(p PointerLocator) Option {
	return func(c *Controller) { c.pointer = p }
}

// WithSleeper replaces the inter-iteration wait. Used by tests.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = fn }
}

// Controller sequences an objective through planning, steps and attempts.
// It runs at most one objective at a time.
type Controller struct {
	cfg      config.SessionConfig
	logger   *zap.Logger
	oracle   Oracle
	capturer schemas.ScreenCapturer
	pointer  PointerLocator
	executor Executor
	journal  Journal
	sleep    func(ctx context.Context, d time.Duration) error

	running atomic.Bool
	mu      sync.RWMutex
	status  Status
}

// NewController wires a controller from its collaborators.
func NewController(cfg config.SessionConfig, logger *zap.Logger, o Oracle, capturer schemas.ScreenCapturer, exec Executor, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg,
		logger:   logger.Named("session"),
		oracle:   o,
		capturer: capturer,
		executor: exec,
		journal:  nopJournal{},
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status returns a snapshot of the current or last session.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Run executes one objective to termination using the configured limits.
func (c *Controller) Run(ctx context.Context, objective string) Result {
	return c.Execute(ctx, Request{Objective: objective})
}

// Execute executes one objective to termination. It never panics on oracle
// or device failures; the worst outcome is a stopped objective.
func (c *Controller) Execute(ctx context.Context, req Request) Result {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if !c.running.CompareAndSwap(false, true) {
		return Result{ID: req.ID, State: schemas.StateObjectiveStopped, Err: fmt.Errorf("%w: %w", ErrStopped, ErrBusy)}
	}
	defer c.running.Store(false)

	maxSteps := c.cfg.MaxSteps
	if req.MaxSteps > 0 {
		maxSteps = req.MaxSteps
	}

	r := &run{
		c:        c,
		req:      req,
		maxSteps: maxSteps,
		logger:   c.logger.With(zap.String("session_id", req.ID)),
		machine:  interaction.NewMachine(c.cfg.Mode),
		started:  time.Now().UTC(),
		result:   Result{ID: req.ID},
	}
	c.setStatus(Status{Active: true, ID: req.ID, Objective: req.Objective})
	res := r.execute(ctx)
	c.updateStatus(func(s *Status) {
		s.Active = false
		s.State = res.State
	})
	return res
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Controller) updateStatus(fn func(*Status)) {
	c.mu.Lock()
	fn(&c.status)
	c.mu.Unlock()
}

// run holds the mutable state of a single objective.
type run struct {
	c        *Controller
	req      Request
	maxSteps int
	logger   *zap.Logger
	machine  *interaction.Machine
	started  time.Time

	plan        []string
	history     []string
	lastOutcome string
	// oracleFailures counts consecutive responses that could not be used.
	oracleFailures int
	result         Result
}

func (r *run) execute(ctx context.Context) Result {
	r.logger.Info("Objective accepted",
		zap.String("objective", r.req.Objective),
		zap.String("mode", string(r.c.cfg.Mode)),
		zap.Int("max_steps", r.maxSteps))
	r.setState(schemas.StatePlanning)
	r.journalStart(ctx)

	if err := r.planObjective(ctx); err != nil {
		return r.stop(ctx, err)
	}

	for i, step := range r.plan {
		r.setState(schemas.StateStepRunning)
		r.c.updateStatus(func(s *Status) { s.StepIndex = i })
		r.logger.Info("Starting step", zap.Int("step", i+1), zap.Int("of", len(r.plan)), zap.String("description", step))

		resolved, err := r.runStep(ctx, i, step)
		if err != nil {
			return r.stop(ctx, err)
		}
		if resolved {
			r.result.StepsCompleted++
			continue
		}
		r.setState(schemas.StateStepExhausted)
		r.result.StepsExhausted++
		r.logger.Warn("Step attempts exhausted; advancing",
			zap.Int("step", i+1),
			zap.Int("attempts", r.c.cfg.MaxAttemptsPerStep))
	}

	r.setState(schemas.StateObjectiveDone)
	r.logger.Info("Objective finished",
		zap.Int("steps_completed", r.result.StepsCompleted),
		zap.Int("steps_exhausted", r.result.StepsExhausted),
		zap.Int("iterations", r.result.Iterations),
		zap.Int("batch_failures", r.result.BatchFailures))
	r.journalFinish(ctx)
	return r.result
}

func (r *run) planObjective(ctx context.Context) error {
	screen, err := r.capture(ctx)
	if err != nil {
		return fmt.Errorf("capturing screen for planning: %w", err)
	}
	plan, err := r.c.oracle.Plan(ctx, r.req.Objective, screen)
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}
	if len(plan) == 0 {
		return fmt.Errorf("planning: %w", oracle.ErrEmptyPlan)
	}
	r.plan = plan
	r.result.Plan = plan
	r.c.updateStatus(func(s *Status) { s.Steps = len(plan) })
	if err := r.c.journal.RecordPlan(ctx, r.req.ID, plan); err != nil {
		r.logger.Warn("Failed to journal plan", zap.Error(err))
	}
	return nil
}

// runStep iterates until the step is resolved by DONE or its attempts run
// out. An error means the whole objective must stop.
func (r *run) runStep(ctx context.Context, index int, step string) (bool, error) {
	r.machine.Reset()
	r.lastOutcome = ""
	attempts := 0

	for attempts < r.c.cfg.MaxAttemptsPerStep {
		if r.maxSteps > 0 && r.result.Iterations >= r.maxSteps {
			return false, fmt.Errorf("global step limit of %d reached", r.maxSteps)
		}
		if err := r.c.sleep(ctx, r.delay()); err != nil {
			return false, err
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		r.result.Iterations++
		r.c.updateStatus(func(s *Status) { s.Iterations = r.result.Iterations })

		screen, err := r.capture(ctx)
		if err != nil {
			r.oracleFailures++
			r.logger.Warn("Screen capture failed; backing off", zap.Error(err), zap.Int("consecutive_failures", r.oracleFailures))
			continue
		}

		grammar := r.machine.Grammar()
		text, err := r.c.oracle.NextAction(ctx, r.query(ctx, index, step, screen, grammar))
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			r.oracleFailures++
			r.logger.Warn("Did not receive a command; backing off",
				zap.Error(err),
				zap.Int("consecutive_failures", r.oracleFailures),
				zap.Duration("next_delay", r.delay()))
			continue
		}

		parsed := action.Parse(text, grammar)
		if _, unknown := parsed.(action.Unknown); !unknown {
			r.oracleFailures = 0
		}
		attempts++
		r.logger.Info("Executing action",
			zap.Int("step", index+1),
			zap.Int("attempt", attempts),
			zap.String("action", parsed.String()),
			zap.Stringer("interaction_state", r.machine.State()))

		res := r.c.executor.Execute(ctx, parsed, executor.Env{Bounds: screen.Bounds, Grammar: grammar})
		r.machine.Observe(parsed, res.OK())
		r.remember(parsed, res)
		r.journalActions(ctx, index, attempts, res)

		if res.Batch {
			r.result.BatchFailures += res.Failures
			r.describeAfterBatch(ctx)
		}
		if res.Terminal {
			r.logger.Info("Step resolved", zap.Int("step", index+1), zap.Int("attempts", attempts))
			return true, nil
		}
	}
	return false, nil
}

func (r *run) query(ctx context.Context, index int, step string, screen oracle.Screen, grammar action.Grammar) oracle.Query {
	return oracle.Query{
		Objective:   r.req.Objective,
		Plan:        r.plan,
		StepIndex:   index,
		Step:        step,
		History:     append([]string(nil), r.history...),
		LastOutcome: r.lastOutcome,
		Screen:      screen,
		Grammar:     grammar,
		Interaction: r.interactionContext(ctx),
	}
}

// interactionContext snapshots the protocol state. While a click awaits
// confirmation the pointer is read back so the oracle judges where it really
// is, not where the MOVE aimed.
func (r *run) interactionContext(ctx context.Context) interaction.Context {
	ic := r.machine.Context()
	if !ic.Confirming() || r.c.pointer == nil {
		return ic
	}
	v, err := r.c.pointer.Position(ctx)
	if err != nil {
		r.logger.Warn("Pointer position unavailable; reporting MOVE target", zap.Error(err))
		return ic
	}
	ic.Position = &action.Point{X: int(math.Round(v.X)), Y: int(math.Round(v.Y))}
	return ic
}

// remember appends the action to the prompt history and records how it
// failed, if it did.
func (r *run) remember(a action.Action, res executor.Result) {
	r.history = append(r.history, a.String())
	if limit := r.c.cfg.HistoryLimit; limit > 0 && len(r.history) > limit {
		r.history = append(r.history[:0], r.history[len(r.history)-limit:]...)
	}

	r.lastOutcome = ""
	if res.OK() {
		return
	}
	if res.Batch {
		r.lastOutcome = fmt.Sprintf("%d of %d batch actions failed", res.Failures, len(res.Outcomes))
		return
	}
	if last, ok := res.Last(); ok && last.Err != nil {
		r.lastOutcome = fmt.Sprintf("%s: %v", last.Code, last.Err)
	}
}

func (r *run) describeAfterBatch(ctx context.Context) {
	if !r.c.cfg.PostBatchDescribe {
		return
	}
	screen, err := r.capture(ctx)
	if err != nil {
		r.logger.Warn("Post-batch capture failed", zap.Error(err))
		return
	}
	desc, err := r.c.oracle.Describe(ctx, screen, r.req.Objective)
	if err != nil {
		r.logger.Warn("Post-batch description unavailable", zap.Error(err))
		return
	}
	r.logger.Info("Post-batch observation", zap.String("description", desc))
}

// delay is the wait before the next iteration: the base delay plus one
// backoff step per consecutive oracle failure, capped.
func (r *run) delay() time.Duration {
	cfg := r.c.cfg
	d := cfg.IterationDelay + time.Duration(r.oracleFailures)*cfg.BackoffStep
	if cfg.BackoffCap > 0 && d > cfg.BackoffCap {
		d = cfg.BackoffCap
	}
	return d
}

// capture takes a frame for the oracle. Bounds come from the pointer's
// coordinate space, never from the picture, so a HiDPI frame cannot widen the
// area actions may target.
func (r *run) capture(ctx context.Context) (oracle.Screen, error) {
	w, h, err := r.c.capturer.ScreenSize(ctx)
	if err != nil {
		return oracle.Screen{}, fmt.Errorf("reading screen size: %w", err)
	}
	if w <= 0 || h <= 0 {
		return oracle.Screen{}, fmt.Errorf("screen reports %dx%d", w, h)
	}
	s, err := r.c.capturer.Capture(ctx)
	if err != nil {
		return oracle.Screen{}, err
	}
	return oracle.Screen{
		PNG:    s.PNG,
		Bounds: action.Bounds{Width: w, Height: h},
		Frame:  action.Bounds{Width: s.Width, Height: s.Height},
	}, nil
}

func (r *run) setState(s schemas.SessionState) {
	r.result.State = s
	r.c.updateStatus(func(st *Status) { st.State = s })
}

func (r *run) stop(ctx context.Context, cause error) Result {
	r.setState(schemas.StateObjectiveStopped)
	r.result.Err = fmt.Errorf("%w: %w", ErrStopped, cause)
	r.logger.Warn("Objective stopped",
		zap.Error(cause),
		zap.Int("steps_completed", r.result.StepsCompleted),
		zap.Int("iterations", r.result.Iterations))
	r.journalFinish(ctx)
	return r.result
}

func (r *run) record() schemas.SessionRecord {
	return schemas.SessionRecord{
		ID:            r.req.ID,
		Objective:     r.req.Objective,
		Mode:          string(r.c.cfg.Mode),
		State:         r.result.State,
		BatchFailures: r.result.BatchFailures,
		StartedAt:     r.started,
	}
}

func (r *run) journalStart(ctx context.Context) {
	if err := r.c.journal.StartSession(ctx, r.record()); err != nil {
		r.logger.Warn("Failed to journal session start", zap.Error(err))
	}
}

func (r *run) journalFinish(ctx context.Context) {
	rec := r.record()
	now := time.Now().UTC()
	rec.FinishedAt = &now
	// The objective may have stopped because ctx ended; the final row is
	// still written.
	if err := r.c.journal.FinishSession(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Warn("Failed to journal session finish", zap.Error(err))
	}
}

func (r *run) journalActions(ctx context.Context, step, attempt int, res executor.Result) {
	for _, o := range res.Outcomes {
		rec := schemas.ActionRecord{
			SessionID: r.req.ID,
			StepIndex: step,
			Attempt:   attempt,
			Raw:       o.Action.String(),
			Kind:      string(o.Action.Kind()),
			Outcome:   outcomeLabel(o),
			ErrorCode: string(o.Code),
			CreatedAt: time.Now().UTC(),
		}
		if err := r.c.journal.RecordAction(ctx, rec); err != nil {
			r.logger.Warn("Failed to journal action", zap.Error(err))
			return
		}
	}
}

func outcomeLabel(o executor.Outcome) string {
	switch {
	case o.Err != nil:
		return "failed"
	case o.Action.Kind() == action.KindDone:
		return "done"
	default:
		return "ok"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
