// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/observability"
	"github.com/xkilldash9x/deskpilot/internal/server"
	"github.com/xkilldash9x/deskpilot/internal/session"
	"github.com/xkilldash9x/deskpilot/internal/store"
)

// fakeRunner records the requests and configuration it was built with.
type fakeRunner struct {
	mu       sync.Mutex
	cfg      *config.Config
	requests []session.Request
	result   session.Result
}

func (f *fakeRunner) Execute(_ context.Context, req session.Request) session.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	res := f.result
	if res.ID == "" {
		res.ID = "session-1"
	}
	return res
}

func (f *fakeRunner) Status() session.Status { return session.Status{} }

func (f *fakeRunner) factory(closed *bool) runnerFactory {
	return func(_ context.Context, cfg *config.Config, _ *zap.Logger) (server.Runner, func(), error) {
		f.mu.Lock()
		f.cfg = cfg
		f.mu.Unlock()
		return f, func() {
			if closed != nil {
				*closed = true
			}
		}, nil
	}
}

func (f *fakeRunner) config() *config.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

// fakeJournal serves one session from memory.
type fakeJournal struct {
	session schemas.SessionRecord
	actions []schemas.ActionRecord
}

func (f *fakeJournal) GetSession(_ context.Context, id string) (schemas.SessionRecord, error) {
	if id != f.session.ID {
		return schemas.SessionRecord{}, store.ErrNotFound
	}
	return f.session, nil
}

func (f *fakeJournal) ListActions(_ context.Context, _ string) ([]schemas.ActionRecord, error) {
	return f.actions, nil
}

func (f *fakeJournal) factory() journalFactory {
	return func(context.Context, *config.Config, *zap.Logger) (journalReader, func(), error) {
		return f, func() {}, nil
	}
}

// newTestRootCmd builds an isolated command tree. The working directory is
// moved to an empty temp dir so no stray config.yaml is discovered.
func newTestRootCmd(t *testing.T, runners runnerFactory, journals journalFactory) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Cleanup(observability.ResetForTest)

	if runners == nil {
		runners = (&fakeRunner{}).factory(nil)
	}
	if journals == nil {
		journals = (&fakeJournal{}).factory()
	}

	root := newRootCmd(runners, journals)
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	return root, out
}

func executeRoot(root *cobra.Command, args ...string) error {
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// writeConfig writes a YAML config into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
