// internal/humanoid/mocks_test.go
package humanoid

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/internal/config"
)

type eventKind string

const (
	evMove  eventKind = "move"
	evDown  eventKind = "down"
	evUp    eventKind = "up"
	evRune  eventKind = "rune"
	evTap   eventKind = "tap"
	evChord eventKind = "chord"
)

type recordedEvent struct {
	kind eventKind
	x, y int
	text string
	keys []string
}

// mockExecutor records every device operation. Sleep never blocks.
type mockExecutor struct {
	mu             sync.Mutex
	events         []recordedEvent
	sleepDurations []time.Duration
	posX, posY     int

	// failOn makes the first operation of that kind return returnErr.
	failOn    eventKind
	returnErr error
	// cancelAfterMoves cancels cancelFunc once that many moves were recorded.
	cancelAfterMoves int
	cancelFunc       context.CancelFunc
}

func newMockExecutor(x, y int) *mockExecutor {
	return &mockExecutor{posX: x, posY: y}
}

func (m *mockExecutor) record(ev recordedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	if m.failOn == ev.kind && m.returnErr != nil {
		m.failOn = ""
		return m.returnErr
	}
	return nil
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	m.sleepDurations = append(m.sleepDurations, d)
	m.mu.Unlock()
	return ctx.Err()
}

func (m *mockExecutor) MovePointer(ctx context.Context, x, y int) error {
	m.mu.Lock()
	m.posX, m.posY = x, y
	m.mu.Unlock()
	err := m.record(recordedEvent{kind: evMove, x: x, y: y})
	if m.cancelFunc != nil && len(m.eventsOf(evMove)) >= m.cancelAfterMoves {
		m.cancelFunc()
	}
	return err
}

func (m *mockExecutor) PointerPosition(ctx context.Context) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posX, m.posY, nil
}

func (m *mockExecutor) ButtonDown(ctx context.Context) error {
	return m.record(recordedEvent{kind: evDown})
}

func (m *mockExecutor) ButtonUp(ctx context.Context) error {
	return m.record(recordedEvent{kind: evUp})
}

func (m *mockExecutor) TypeRune(ctx context.Context, r rune) error {
	return m.record(recordedEvent{kind: evRune, text: string(r)})
}

func (m *mockExecutor) KeyTap(ctx context.Context, key string) error {
	return m.record(recordedEvent{kind: evTap, text: key})
}

func (m *mockExecutor) KeyChord(ctx context.Context, keys []string) error {
	return m.record(recordedEvent{kind: evChord, keys: append([]string(nil), keys...)})
}

func (m *mockExecutor) eventsOf(kind eventKind) []recordedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []recordedEvent
	for _, e := range m.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (m *mockExecutor) kinds() []eventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]eventKind, 0, len(m.events))
	for _, e := range m.events {
		if len(out) > 0 && out[len(out)-1] == e.kind && e.kind == evMove {
			continue
		}
		out = append(out, e.kind)
	}
	return out
}

func (m *mockExecutor) totalSleep() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total time.Duration
	for _, d := range m.sleepDurations {
		total += d
	}
	return total
}

func testConfig() config.HumanoidConfig {
	return config.NewDefaultConfig().Humanoid
}

func newTestHumanoid(exec *mockExecutor, seed int64) *Humanoid {
	return NewWithSeed(testConfig(), zap.NewNop(), exec, seed)
}
