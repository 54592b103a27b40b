// internal/oracle/prompts.go
package oracle

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/deskpilot/internal/action"
	"github.com/xkilldash9x/deskpilot/internal/interaction"
)

const planSystemPrompt = `You are the planner for an agent that controls a desktop computer with a keyboard and mouse.
Break the objective into a short ordered list of concrete steps a person could follow on the screen shown.
Each step must be a single observable goal (e.g. "Open the file manager", "Create a folder named reports").
Respond with a JSON array of strings and nothing else.`

const describeSystemPrompt = `You observe a desktop screenshot on behalf of an automation agent.
Report what application is in focus, any dialogs or errors, and whether the last batch of input appears to have taken effect.
Do not suggest actions.`

// actionSystemPrompt lists only the commands the parser will accept in the
// current protocol state.
func actionSystemPrompt(g action.Grammar, ic interaction.Context) string {
	var b strings.Builder
	b.WriteString(`You are an AI agent controlling a desktop. Your primary mode of interaction is the KEYBOARD.
Analyze the screenshot and decide the single next action for the current step.

**Action Strategy:**
1.  **Prioritize Keyboard:** Always prefer PRESS and TYPE. Use shortcuts, Tab and arrow navigation, and application commands.
2.  **Use the Mouse as a Fallback:** Only touch the pointer when no reasonable keyboard path exists.
3.  **Be Precise:** Coordinates are integer pixels measured from the top-left corner of the screenshot and must lie inside the screen.

**Action Format (respond with ONE line ONLY):**
- ` + "`TYPE \"text to type\"`" + ` (text input)
- ` + "`PRESS \"key_name\"`" + ` (single keys like "enter", "tab", "f1", or chords like "ctrl+c")
`)

	switch g.Click {
	case action.ClickAtPoint:
		b.WriteString("- `CLICK X,Y \"reason\"` (left click at a point, as a last resort)\n")
	case action.ClickInPlace:
		b.WriteString("- `CLICK \"reason\"` (left click exactly where the pointer is now; use it only if the pointer is on the intended target)\n")
	}
	b.WriteString("- `MOVE X,Y \"what is at that point\"` (move the pointer without clicking)\n")
	b.WriteString("- `DRAG X1,Y1 TO X2,Y2 \"reason\"` (press, move and release)\n")
	b.WriteString("- `COMMANDS [\"PRESS \\\"ctrl+l\\\"\", \"TYPE \\\"hello\\\"\"]` (several keyboard actions run in order; the array may not contain a position-free CLICK)\n")
	b.WriteString("- `DONE \"reason\"` (the current step is complete)\n")

	if g.Click == action.ClickDisabled {
		b.WriteString(`
**Pointer Protocol:**
To click something, first MOVE the pointer onto it and describe what you expect to be there.
You will then be shown the screen again and asked to confirm before any click happens.
`)
	}
	if ic.Confirming() {
		b.WriteString(`
**Confirmation Required:**
The pointer was just moved. If it now rests on the intended target, answer with CLICK "reason".
If it missed, answer with a corrected MOVE. Any other action abandons the pending click.
`)
	}

	b.WriteString(`
**Example Keyboard-First Thinking:**
- To open a file menu, prefer PRESS "alt+f" over pointing at it.
- To switch between fields, use PRESS "tab".
- To submit a form, use PRESS "enter".

Respond with exactly one command line and no commentary.`)
	return b.String()
}

func actionUserPrompt(q Query) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n", q.Objective)
	writeDimensions(&b, q.Screen)

	if len(q.Plan) > 0 {
		b.WriteString("\nPlan:\n")
		for i, s := range q.Plan {
			marker := "  "
			if i == q.StepIndex {
				marker = "->"
			}
			fmt.Fprintf(&b, "%s %d. %s\n", marker, i+1, s)
		}
	}
	if q.Step != "" {
		fmt.Fprintf(&b, "\nCurrent step: %s\n", q.Step)
	}

	if len(q.History) > 0 {
		b.WriteString("\nRecent actions (oldest first):\n")
		for _, h := range q.History {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	if q.LastOutcome != "" {
		fmt.Fprintf(&b, "\nThe previous action failed: %s\nDo not repeat it unchanged.\n", q.LastOutcome)
	}

	if q.Interaction.Confirming() {
		b.WriteString("\nPending click confirmation.\n")
		if p := q.Interaction.Position; p != nil {
			fmt.Fprintf(&b, "Pointer position: %s\n", p)
		}
		if q.Interaction.Hover != "" {
			fmt.Fprintf(&b, "Expected under the pointer: %s\n", q.Interaction.Hover)
		}
	}

	b.WriteString("\nCurrent screen is attached. Determine the next action.")
	return b.String()
}

func planUserPrompt(objective string, screen Screen) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n", objective)
	writeDimensions(&b, screen)
	b.WriteString("The current screen is attached.")
	return b.String()
}

// writeDimensions states the coordinate space every X,Y must fall in, and the
// conversion factor when the attached picture has a different pixel size.
func writeDimensions(b *strings.Builder, s Screen) {
	fmt.Fprintf(b, "Screen dimensions: %dx%d\n", s.Bounds.Width, s.Bounds.Height)
	if !s.scaled() {
		return
	}
	fmt.Fprintf(b, "The screenshot is %dx%d pixels. Answer in screen coordinates: multiply screenshot X by %.3f and Y by %.3f.\n",
		s.Frame.Width, s.Frame.Height,
		float64(s.Bounds.Width)/float64(s.Frame.Width),
		float64(s.Bounds.Height)/float64(s.Frame.Height))
}
