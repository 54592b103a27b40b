package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/action"
	"github.com/xkilldash9x/deskpilot/internal/interaction"
)

type mockLLM struct{ mock.Mock }

func (m *mockLLM) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockLLM) Close() error { return nil }

func newTestOracle(t *testing.T) (*Oracle, *mockLLM) {
	t.Helper()
	core, _ := observer.New(zap.DebugLevel)
	llm := new(mockLLM)
	return New(llm, zap.New(core), Options{Timeout: time.Second}), llm
}

var testScreen = Screen{PNG: []byte("png"), Bounds: action.Bounds{Width: 1920, Height: 1080}}

func TestPlan(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []string
	}{
		{"json array", `["Open terminal", "Run ls"]`, []string{"Open terminal", "Run ls"}},
		{"fenced json", "```json\n[\"Open terminal\"]\n```", []string{"Open terminal"}},
		{"wrapped object", `{"steps": ["a", " ", "b"]}`, []string{"a", "b"}},
		{"numbered fallback", "1. Open terminal\n2. Run ls\n", []string{"Open terminal", "Run ls"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, llm := newTestOracle(t)
			llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
				return req.Tier == schemas.TierPowerful && req.Options.ForceJSONFormat &&
					len(req.Images) == 1 && req.Images[0].MIMEType == "image/png"
			})).Return(tt.response, nil).Once()

			steps, err := o.Plan(context.Background(), "list files", testScreen)
			require.NoError(t, err)
			assert.Equal(t, tt.want, steps)
			llm.AssertExpectations(t)
		})
	}
}

func TestPlan_Empty(t *testing.T) {
	for _, resp := range []string{"[]", "```json\n[]\n```", `[" "]`} {
		o, llm := newTestOracle(t)
		llm.On("Generate", mock.Anything, mock.Anything).Return(resp, nil)

		_, err := o.Plan(context.Background(), "x", testScreen)
		assert.ErrorIs(t, err, ErrEmptyPlan, resp)
	}
}

func TestGenerate_Unavailable(t *testing.T) {
	o, llm := newTestOracle(t)
	llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("503")).Once()
	_, err := o.NextAction(context.Background(), Query{Objective: "x"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorContains(t, err, "503")

	llm.On("Generate", mock.Anything, mock.Anything).Return("   \n", nil).Once()
	_, err = o.NextAction(context.Background(), Query{Objective: "x"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGenerate_AppliesTimeout(t *testing.T) {
	o, llm := newTestOracle(t)
	llm.On("Generate", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(`PRESS "enter"`, nil)

	out, err := o.NextAction(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, `PRESS "enter"`, out)
}

func TestNextAction_PromptReflectsGrammar(t *testing.T) {
	var captured schemas.GenerationRequest
	o, llm := newTestOracle(t)
	llm.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(schemas.GenerationRequest) }).
		Return(`TYPE "x"`, nil)

	_, err := o.NextAction(context.Background(), Query{Grammar: action.DirectGrammar, Screen: testScreen})
	require.NoError(t, err)
	assert.Contains(t, captured.SystemPrompt, "`CLICK X,Y \"reason\"`")
	assert.NotContains(t, captured.SystemPrompt, "`CLICK \"reason\"`")
	assert.Equal(t, schemas.TierFast, captured.Tier)

	_, err = o.NextAction(context.Background(), Query{Grammar: action.Grammar{Click: action.ClickDisabled}})
	require.NoError(t, err)
	assert.NotContains(t, captured.SystemPrompt, "CLICK X,Y")
	assert.Contains(t, captured.SystemPrompt, "Pointer Protocol")

	pos := action.Point{X: 40, Y: 50}
	_, err = o.NextAction(context.Background(), Query{
		Grammar:     action.Grammar{Click: action.ClickInPlace},
		Interaction: interaction.Context{State: interaction.AwaitingConfirmation, Hover: "OK button", Position: &pos},
	})
	require.NoError(t, err)
	assert.Contains(t, captured.SystemPrompt, "`CLICK \"reason\"`")
	assert.Contains(t, captured.SystemPrompt, "Confirmation Required")
	assert.Contains(t, captured.UserPrompt, "Pointer position: 40,50")
	assert.Contains(t, captured.UserPrompt, "Expected under the pointer: OK button")
}

func TestActionUserPrompt(t *testing.T) {
	prompt := actionUserPrompt(Query{
		Objective:   "rename file",
		Plan:        []string{"open folder", "rename"},
		StepIndex:   1,
		Step:        "rename",
		History:     []string{`PRESS "f2"`, `TYPE "new"`},
		LastOutcome: "BOUNDS_VIOLATION: point 3000,10 outside 1920x1080",
		Screen:      testScreen,
	})

	assert.Contains(t, prompt, "Objective: rename file")
	assert.Contains(t, prompt, "Screen dimensions: 1920x1080")
	assert.Contains(t, prompt, "   1. open folder")
	assert.Contains(t, prompt, "-> 2. rename")
	assert.Contains(t, prompt, "- PRESS \"f2\"\n- TYPE \"new\"")
	assert.Contains(t, prompt, "previous action failed: BOUNDS_VIOLATION")
	assert.NotContains(t, prompt, "Pending click confirmation")
}

func TestPrompts_ScaledScreenshot(t *testing.T) {
	scaled := Screen{
		PNG:    []byte("png"),
		Bounds: action.Bounds{Width: 1440, Height: 900},
		Frame:  action.Bounds{Width: 2880, Height: 1800},
	}

	prompt := actionUserPrompt(Query{Objective: "x", Screen: scaled})
	assert.Contains(t, prompt, "Screen dimensions: 1440x900")
	assert.Contains(t, prompt, "The screenshot is 2880x1800 pixels")
	assert.Contains(t, prompt, "multiply screenshot X by 0.500 and Y by 0.500")

	plan := planUserPrompt("x", scaled)
	assert.Contains(t, plan, "Screen dimensions: 1440x900")
	assert.Contains(t, plan, "The screenshot is 2880x1800 pixels")

	same := scaled
	same.Frame = scaled.Bounds
	assert.NotContains(t, actionUserPrompt(Query{Screen: same}), "The screenshot is")
	assert.NotContains(t, planUserPrompt("x", testScreen), "The screenshot is")
}

func TestDescribe(t *testing.T) {
	o, llm := newTestOracle(t)
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.SystemPrompt == describeSystemPrompt && len(req.Images) == 1
	})).Return("A terminal is open.", nil)

	out, err := o.Describe(context.Background(), testScreen, "x")
	require.NoError(t, err)
	assert.Equal(t, "A terminal is open.", out)
}
