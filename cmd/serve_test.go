// File: cmd/serve_test.go
package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeCmd_StopsOnCancel(t *testing.T) {
	closed := false
	runner := &fakeRunner{}
	root, _ := newTestRootCmd(t, runner.factory(&closed), nil)
	root.SetArgs([]string{"serve", "--addr", "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool { return runner.config() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "127.0.0.1:0", runner.config().Server.Addr)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
	assert.True(t, closed)
}

func TestServeCmd_ListenFailure(t *testing.T) {
	root, _ := newTestRootCmd(t, nil, nil)

	err := executeRoot(root, "serve", "--addr", "256.0.0.1:99999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launcher stopped")
}
