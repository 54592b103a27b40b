// File: cmd/journal.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/observability"
	"github.com/xkilldash9x/deskpilot/internal/store"
)

var errJournalDisabled = errors.New("database.url is not configured, no journal to read")

// journalReader is the read side of the session journal.
type journalReader interface {
	GetSession(ctx context.Context, id string) (schemas.SessionRecord, error)
	ListActions(ctx context.Context, sessionID string) ([]schemas.ActionRecord, error)
}

// journalFactory opens the journal. The returned cleanup is never nil.
type journalFactory func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (journalReader, func(), error)

func openJournalReader(ctx context.Context, cfg *config.Config, logger *zap.Logger) (journalReader, func(), error) {
	if cfg.Database.URL == "" {
		return nil, func() {}, errJournalDisabled
	}
	st, err := store.Open(ctx, cfg.Database.URL, logger)
	if err != nil {
		return nil, func() {}, err
	}
	return st, st.Close, nil
}

// sessionReport is the JSON shape printed by `journal --format json`.
type sessionReport struct {
	Session schemas.SessionRecord  `json:"session"`
	Actions []schemas.ActionRecord `json:"actions"`
}

// newJournalCmd creates the `journal` command, which prints a recorded
// session and its actions.
func newJournalCmd(journals journalFactory) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "journal [session-id]",
		Short: "Prints the journal of a recorded session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "text" && format != "json" {
				return fmt.Errorf("unsupported format '%s', use text or json", format)
			}

			ctx := cmd.Context()
			cfg, err := configFrom(ctx)
			if err != nil {
				return err
			}

			reader, cleanup, err := journals(ctx, cfg, observability.GetLogger())
			defer cleanup()
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}

			id := args[0]
			rec, err := reader.GetSession(ctx, id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("session '%s' not found", id)
				}
				return fmt.Errorf("failed to load session: %w", err)
			}
			actions, err := reader.ListActions(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to load actions: %w", err)
			}

			if format == "json" {
				return writeJournalJSON(cmd.OutOrStdout(), sessionReport{Session: rec, Actions: actions})
			}
			return writeJournalText(cmd.OutOrStdout(), rec, actions)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text or json")
	return cmd
}

func writeJournalJSON(w io.Writer, report sessionReport) error {
	if report.Actions == nil {
		report.Actions = []schemas.ActionRecord{}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeJournalText(w io.Writer, rec schemas.SessionRecord, actions []schemas.ActionRecord) error {
	fmt.Fprintf(w, "Session %s\n", rec.ID)
	fmt.Fprintf(w, "  objective:      %s\n", rec.Objective)
	fmt.Fprintf(w, "  mode:           %s\n", rec.Mode)
	fmt.Fprintf(w, "  state:          %s\n", rec.State)
	fmt.Fprintf(w, "  batch failures: %d\n", rec.BatchFailures)
	fmt.Fprintf(w, "  started:        %s\n", rec.StartedAt.Format(time.RFC3339))
	if rec.FinishedAt != nil {
		fmt.Fprintf(w, "  finished:       %s\n", rec.FinishedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(w)

	if len(actions) == 0 {
		_, err := fmt.Fprintln(w, "No actions recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tATTEMPT\tKIND\tOUTCOME\tCODE\tACTION")
	for _, a := range actions {
		code := a.ErrorCode
		if code == "" {
			code = "-"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", a.StepIndex+1, a.Attempt, a.Kind, a.Outcome, code, a.Raw)
	}
	return tw.Flush()
}
