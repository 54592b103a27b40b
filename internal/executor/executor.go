// internal/executor/executor.go
package executor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/internal/action"
	"github.com/xkilldash9x/deskpilot/internal/humanoid"
)

// Actuator performs primitive input operations. *humanoid.Humanoid is the
// production implementation.
type Actuator interface {
	Type(ctx context.Context, text string) error
	Press(ctx context.Context, keys []string) error
	Click(ctx context.Context) error
	ClickAt(ctx context.Context, target humanoid.Vector2D, bounds humanoid.Bounds) error
	MoveTo(ctx context.Context, target humanoid.Vector2D, bounds humanoid.Bounds) error
	Drag(ctx context.Context, from, to humanoid.Vector2D, bounds humanoid.Bounds) error
}

var _ Actuator = (*humanoid.Humanoid)(nil)

// Env is the per-iteration context an action is executed against.
type Env struct {
	// Bounds must be the dimensions captured for the current iteration.
	Bounds  action.Bounds
	Grammar action.Grammar
}

// Outcome describes one primitive action that was attempted.
type Outcome struct {
	Action action.Action
	Code   ErrorCode
	Err    error
}

// OK reports whether the action completed.
func (o Outcome) OK() bool { return o.Err == nil }

// Result is the aggregate of executing one top-level action.
type Result struct {
	// Terminal is set when a DONE was reached.
	Terminal bool
	// Batch is set for every COMMANDS action, whatever its elements did.
	Batch bool
	// Failures counts primitive actions that did not complete, including
	// batch elements that failed to parse.
	Failures int
	// Outcomes lists every primitive attempted, in execution order.
	Outcomes []Outcome
}

// OK reports whether every attempted primitive completed.
func (r Result) OK() bool { return r.Failures == 0 }

// Last returns the final outcome, if any.
func (r Result) Last() (Outcome, bool) {
	if len(r.Outcomes) == 0 {
		return Outcome{}, false
	}
	return r.Outcomes[len(r.Outcomes)-1], true
}

type handler func(ctx context.Context, a action.Action, env Env) error

// Executor maps parsed actions onto an Actuator.
type Executor struct {
	logger   *zap.Logger
	actuator Actuator
	maxDepth int
	handlers map[action.Kind]handler
}

// New creates an Executor. maxDepth bounds COMMANDS nesting; a top-level
// batch is depth 1.
func New(logger *zap.Logger, actuator Actuator, maxDepth int) *Executor {
	if maxDepth < 1 {
		maxDepth = 1
	}
	e := &Executor{
		logger:   logger.Named("executor"),
		actuator: actuator,
		maxDepth: maxDepth,
		handlers: make(map[action.Kind]handler),
	}
	e.registerHandlers()
	return e
}

func (e *Executor) registerHandlers() {
	e.handlers[action.KindType] = func(ctx context.Context, a action.Action, _ Env) error {
		return e.actuator.Type(ctx, a.(action.Type).Text)
	}
	e.handlers[action.KindPress] = func(ctx context.Context, a action.Action, _ Env) error {
		keys := a.(action.Press).Keys()
		if len(keys) == 0 {
			return errInvalid{fmt.Errorf("press: no key names in %q", a.(action.Press).KeySpec)}
		}
		return e.actuator.Press(ctx, keys)
	}
	e.handlers[action.KindClick] = func(ctx context.Context, a action.Action, env Env) error {
		c := a.(action.Click)
		if c.At == nil {
			return e.actuator.Click(ctx)
		}
		return e.actuator.ClickAt(ctx, toVector(*c.At), toBounds(env.Bounds))
	}
	e.handlers[action.KindMove] = func(ctx context.Context, a action.Action, env Env) error {
		return e.actuator.MoveTo(ctx, toVector(a.(action.Move).To), toBounds(env.Bounds))
	}
	e.handlers[action.KindDrag] = func(ctx context.Context, a action.Action, env Env) error {
		d := a.(action.Drag)
		return e.actuator.Drag(ctx, toVector(d.From), toVector(d.To), toBounds(env.Bounds))
	}
}

// Execute runs one top-level action. It never panics and never returns an
// error: every failure is folded into the Result.
func (e *Executor) Execute(ctx context.Context, a action.Action, env Env) Result {
	return e.execute(ctx, a, env, 0)
}

func (e *Executor) execute(ctx context.Context, a action.Action, env Env, depth int) Result {
	switch v := a.(type) {
	case action.Done:
		e.logger.Info("Unit of work reported done", zap.String("reason", v.Reason))
		return Result{Terminal: true, Outcomes: []Outcome{{Action: a}}}
	case action.CommandList:
		return e.executeBatch(ctx, v, env, depth+1)
	case action.Unknown:
		e.logger.Warn("Unknown or malformed command", zap.String("raw", v.Raw))
		return failed(a, CodeGrammarMismatch, ErrGrammarMismatch)
	}

	if err := ctx.Err(); err != nil {
		return failed(a, CodeCancelled, err)
	}
	if err := action.Validate(a, env.Bounds); err != nil {
		e.logger.Warn("Action rejected before reaching the device",
			zap.String("action", a.String()),
			zap.Stringer("screen", env.Bounds),
			zap.Error(err))
		return failed(a, CodeBoundsViolation, err)
	}

	if err := e.runPrimitive(ctx, a, env); err != nil {
		code := CodeDeviceFailure
		var inv errInvalid
		if errors.As(err, &inv) {
			code = CodeInvalidAction
		}
		e.logger.Warn("Action execution failed",
			zap.String("action", a.String()),
			zap.String("error_code", string(code)),
			zap.Error(err))
		return failed(a, code, err)
	}

	e.logger.Debug("Action executed", zap.String("action", a.String()))
	return Result{Outcomes: []Outcome{{Action: a}}}
}

// runPrimitive calls the handler for a, converting a panic into an error.
func (e *Executor) runPrimitive(ctx context.Context, a action.Action, env Env) (err error) {
	h, ok := e.handlers[a.Kind()]
	if !ok {
		return errInvalid{fmt.Errorf("no handler for %s", a.Kind())}
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic during action execution",
				zap.String("action", a.String()),
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = fmt.Errorf("executor: panic during %s: %v", a.Kind(), r)
		}
	}()
	return h(ctx, a, env)
}

// executeBatch runs every element in order. A failing element does not stop
// the rest; a DONE element ends the batch early.
func (e *Executor) executeBatch(ctx context.Context, list action.CommandList, env Env, depth int) Result {
	res := Result{Batch: true}
	if depth > e.maxDepth {
		e.logger.Warn("Batch nested too deeply; rejecting",
			zap.Int("depth", depth),
			zap.Int("max_depth", e.maxDepth))
		sub := failed(list, CodeDepthExceeded, ErrDepthExceeded)
		sub.Batch = true
		return sub
	}

	elemGrammar := env.Grammar.ForBatch()
	for i, line := range list.Lines {
		if ctx.Err() != nil {
			e.logger.Info("Batch interrupted", zap.Int("remaining", len(list.Lines)-i))
			break
		}
		parsed := action.Parse(line, elemGrammar)
		sub := e.execute(ctx, parsed, Env{Bounds: env.Bounds, Grammar: elemGrammar}, depth)

		res.Failures += sub.Failures
		res.Outcomes = append(res.Outcomes, sub.Outcomes...)
		if sub.Terminal {
			res.Terminal = true
			break
		}
	}

	e.logger.Info("Batch complete",
		zap.Int("elements", len(list.Lines)),
		zap.Int("failures", res.Failures),
		zap.Int("depth", depth))
	return res
}

func failed(a action.Action, code ErrorCode, err error) Result {
	return Result{Failures: 1, Outcomes: []Outcome{{Action: a, Code: code, Err: err}}}
}

// errInvalid marks errors caused by the action itself rather than the device.
type errInvalid struct{ error }

func (e errInvalid) Unwrap() error { return e.error }

func toVector(p action.Point) humanoid.Vector2D { return humanoid.Point(p.X, p.Y) }

func toBounds(b action.Bounds) humanoid.Bounds {
	return humanoid.Bounds{Width: b.Width, Height: b.Height}
}
