package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/executor"
	"github.com/xkilldash9x/deskpilot/internal/humanoid"
	"github.com/xkilldash9x/deskpilot/internal/oracle"
)

// scriptedOracle answers NextAction from a fixed script, repeating the last
// entry once the script runs out.
type scriptedOracle struct {
	mu        sync.Mutex
	plan      []string
	planErr   error
	script    []reply
	queries   []oracle.Query
	describes int
	block     chan struct{}
}

type reply struct {
	text string
	err  error
}

func say(text string) reply { return reply{text: text} }

var errNoAnswer = errors.New("model unreachable")

func silence() reply { return reply{err: fmt.Errorf("%w: %w", oracle.ErrUnavailable, errNoAnswer)} }

func (o *scriptedOracle) Plan(ctx context.Context, _ string, _ oracle.Screen) ([]string, error) {
	if o.block != nil {
		select {
		case <-o.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.plan, o.planErr
}

func (o *scriptedOracle) NextAction(_ context.Context, q oracle.Query) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := len(o.queries)
	o.queries = append(o.queries, q)
	if i >= len(o.script) {
		i = len(o.script) - 1
	}
	return o.script[i].text, o.script[i].err
}

func (o *scriptedOracle) Describe(context.Context, oracle.Screen, string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.describes++
	return "a window is open", nil
}

func (o *scriptedOracle) Queries() []oracle.Query {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]oracle.Query(nil), o.queries...)
}

// fixedCapturer reports a width x height pointer space. frameWidth and
// frameHeight set the picture size when it differs, as on HiDPI displays.
type fixedCapturer struct {
	width, height           int
	frameWidth, frameHeight int
	err                     error
}

func (c fixedCapturer) ScreenSize(context.Context) (int, int, error) {
	return c.width, c.height, c.err
}

func (c fixedCapturer) Capture(context.Context) (schemas.Screen, error) {
	if c.err != nil {
		return schemas.Screen{}, c.err
	}
	w, h := c.width, c.height
	if c.frameWidth > 0 {
		w, h = c.frameWidth, c.frameHeight
	}
	return schemas.Screen{PNG: []byte("png"), Width: w, Height: h}, nil
}

// driftingPointer reports a live pointer position that differs from the last
// MOVE target.
type driftingPointer struct {
	pos humanoid.Vector2D
	err error
}

func (p driftingPointer) Position(context.Context) (humanoid.Vector2D, error) {
	return p.pos, p.err
}

// pointerActuator tracks the pointer so tests can see where clicks land.
type pointerActuator struct {
	mu     sync.Mutex
	pos    humanoid.Vector2D
	clicks []humanoid.Vector2D
	typed  []string
	failOn string
}

func (p *pointerActuator) fail(op string) error {
	if p.failOn == op {
		return errors.New(op + " failed")
	}
	return nil
}

func (p *pointerActuator) Type(_ context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed = append(p.typed, text)
	return p.fail("type")
}

func (p *pointerActuator) Press(context.Context, []string) error { return p.fail("press") }

func (p *pointerActuator) Click(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, p.pos)
	return p.fail("click")
}

func (p *pointerActuator) ClickAt(_ context.Context, t humanoid.Vector2D, _ humanoid.Bounds) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = t
	p.clicks = append(p.clicks, t)
	return p.fail("click")
}

func (p *pointerActuator) MoveTo(_ context.Context, t humanoid.Vector2D, _ humanoid.Bounds) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = t
	return p.fail("move")
}

func (p *pointerActuator) Drag(_ context.Context, _, to humanoid.Vector2D, _ humanoid.Bounds) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = to
	return p.fail("drag")
}

// recordingSleeper captures requested delays without waiting.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type mockJournal struct{ mock.Mock }

func (m *mockJournal) StartSession(ctx context.Context, rec schemas.SessionRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockJournal) RecordPlan(ctx context.Context, id string, steps []string) error {
	return m.Called(ctx, id, steps).Error(0)
}

func (m *mockJournal) RecordAction(ctx context.Context, rec schemas.ActionRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockJournal) FinishSession(ctx context.Context, rec schemas.SessionRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		Mode:               config.ModeDirect,
		MaxAttemptsPerStep: 3,
		IterationDelay:     100 * time.Millisecond,
		BackoffStep:        50 * time.Millisecond,
		BackoffCap:         250 * time.Millisecond,
		BatchDepth:         2,
		HistoryLimit:       4,
		PostBatchDescribe:  true,
	}
}

type harness struct {
	ctrl     *Controller
	oracle   *scriptedOracle
	actuator *pointerActuator
	sleeper  *recordingSleeper
	logs     *observer.ObservedLogs
}

func newHarness(t *testing.T, cfg config.SessionConfig, o *scriptedOracle, opts ...Option) *harness {
	t.Helper()
	return newHarnessWithScreen(t, cfg, o, fixedCapturer{width: 200, height: 200}, opts...)
}

func newHarnessWithScreen(t *testing.T, cfg config.SessionConfig, o *scriptedOracle, capturer fixedCapturer, opts ...Option) *harness {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	act := &pointerActuator{}
	sleeper := &recordingSleeper{}
	exec := executor.New(logger, act, cfg.BatchDepth)
	opts = append([]Option{WithSleeper(sleeper.Sleep)}, opts...)
	ctrl := NewController(cfg, logger, o, capturer, exec, opts...)
	return &harness{ctrl: ctrl, oracle: o, actuator: act, sleeper: sleeper, logs: logs}
}
