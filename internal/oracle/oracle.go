// internal/oracle/oracle.go
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/action"
	"github.com/xkilldash9x/deskpilot/internal/interaction"
	"github.com/xkilldash9x/deskpilot/internal/llmutil"
)

var (
	// ErrUnavailable is returned when the model produced no usable text.
	ErrUnavailable = errors.New("oracle: no response")
	// ErrEmptyPlan is returned when planning yields no steps.
	ErrEmptyPlan = errors.New("oracle: empty plan")
)

// Screen is one captured frame handed to the model. Bounds is the pointer's
// coordinate space; Frame is the pixel size of PNG. A zero Frame means the
// two are the same.
type Screen struct {
	PNG    []byte
	Bounds action.Bounds
	Frame  action.Bounds
}

// scaled reports whether the picture's pixels differ from screen coordinates.
func (s Screen) scaled() bool {
	return s.Frame.Width > 0 && s.Frame.Height > 0 && s.Frame != s.Bounds
}

// Query is everything the model sees when asked for the next action.
type Query struct {
	Objective string
	Plan      []string
	StepIndex int
	Step      string
	// History holds the most recent serialised actions, oldest first.
	History []string
	// LastOutcome describes how the previous action ended, if it failed.
	LastOutcome string
	Screen      Screen
	Grammar     action.Grammar
	Interaction interaction.Context
}

// Options tunes the oracle's calls.
type Options struct {
	// Timeout bounds each model call. Zero means no extra bound.
	Timeout time.Duration
}

// Oracle turns screens and session context into command text using an LLM.
type Oracle struct {
	client schemas.LLMClient
	logger *zap.Logger
	opts   Options
}

// New creates an Oracle.
func New(client schemas.LLMClient, logger *zap.Logger, opts Options) *Oracle {
	return &Oracle{
		client: client,
		logger: logger.Named("oracle"),
		opts:   opts,
	}
}

// Plan asks the model to break objective into ordered steps. The model is
// asked for a JSON array; a numbered or bulleted list is accepted as well.
func (o *Oracle) Plan(ctx context.Context, objective string, screen Screen) ([]string, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: planSystemPrompt,
		UserPrompt:   planUserPrompt(objective, screen),
		Images:       images(screen),
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{ForceJSONFormat: true, Temperature: 0.2},
	}
	text, err := o.generate(ctx, req)
	if err != nil {
		return nil, err
	}

	steps := parsePlan(text)
	if len(steps) == 0 {
		o.logger.Warn("Model returned an empty plan", zap.String("response", llmutil.Truncate(text, 300)))
		return nil, ErrEmptyPlan
	}
	o.logger.Info("Plan created", zap.Int("steps", len(steps)), zap.Strings("plan", steps))
	return steps, nil
}

// NextAction asks the model for the next command line.
func (o *Oracle) NextAction(ctx context.Context, q Query) (string, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: actionSystemPrompt(q.Grammar, q.Interaction),
		UserPrompt:   actionUserPrompt(q),
		Images:       images(q.Screen),
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: 0.2},
	}
	return o.generate(ctx, req)
}

// Describe asks for a short free-text account of what is on screen. The
// answer is context for logs, never a command.
func (o *Oracle) Describe(ctx context.Context, screen Screen, objective string) (string, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: describeSystemPrompt,
		UserPrompt:   fmt.Sprintf("Objective: %s\nDescribe the current state of the screen in two or three sentences.", objective),
		Images:       images(screen),
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: 0.4, MaxOutputTokens: 256},
	}
	return o.generate(ctx, req)
}

func (o *Oracle) generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	text, err := o.client.Generate(ctx, req)
	if err != nil {
		o.logger.Warn("LLM generation failed", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrUnavailable
	}
	return text, nil
}

func parsePlan(text string) []string {
	var steps []string
	if parsed, err := llmutil.ParseJSONResponse[[]string](text); err == nil {
		steps = *parsed
	} else if wrapped, err := llmutil.ParseJSONResponse[struct {
		Steps []string `json:"steps"`
	}](text); err == nil {
		steps = wrapped.Steps
	} else {
		steps = llmutil.ListLines(text)
	}

	out := steps[:0]
	for _, s := range steps {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func images(s Screen) []schemas.ImagePart {
	if len(s.PNG) == 0 {
		return nil
	}
	return []schemas.ImagePart{{MIMEType: "image/png", Data: s.PNG}}
}
