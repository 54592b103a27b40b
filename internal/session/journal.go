// internal/session/journal.go
package session

import (
	"context"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// Journal persists a session's progress. Implementations must be safe to call
// from the controller's goroutine; failures are logged, never fatal.
type Journal interface {
	StartSession(ctx context.Context, rec schemas.SessionRecord) error
	RecordPlan(ctx context.Context, sessionID string, steps []string) error
	RecordAction(ctx context.Context, rec schemas.ActionRecord) error
	FinishSession(ctx context.Context, rec schemas.SessionRecord) error
}

type nopJournal struct{}

func (nopJournal) StartSession(context.Context, schemas.SessionRecord) error  { return nil }
func (nopJournal) RecordPlan(context.Context, string, []string) error         { return nil }
func (nopJournal) RecordAction(context.Context, schemas.ActionRecord) error   { return nil }
func (nopJournal) FinishSession(context.Context, schemas.SessionRecord) error { return nil }
