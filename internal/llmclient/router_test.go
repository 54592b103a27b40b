package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// setupRouter creates a standard LLMRouter instance for testing, along with its mocks and a log observer.
func setupRouter(t *testing.T) (*LLMRouter, *MockLLMClient, *MockLLMClient, *observer.ObservedLogs) {
	t.Helper()
	logger, observedLogs := setupTestLogger(t)

	fastClient := &MockLLMClient{Name: "FastClient"}
	powerfulClient := &MockLLMClient{Name: "PowerfulClient"}

	router, err := NewLLMRouter(logger, fastClient, powerfulClient)
	require.NoError(t, err, "NewLLMRouter should initialize successfully")

	return router, fastClient, powerfulClient, observedLogs
}

func TestNewLLMRouter_Failure_MissingClients(t *testing.T) {
	logger, _ := setupTestLogger(t)
	validClient := new(MockLLMClient)

	tests := []struct {
		name     string
		fast     schemas.LLMClient
		powerful schemas.LLMClient
	}{
		{"Missing Fast Client", nil, validClient},
		{"Missing Powerful Client", validClient, nil},
		{"Missing Both Clients", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, err := NewLLMRouter(logger, tt.fast, tt.powerful)
			assert.Nil(t, router)
			assert.ErrorContains(t, err, "both fast and powerful tier clients must be provided")
		})
	}
}

func TestLLMRouter_Routing(t *testing.T) {
	tests := []struct {
		name         string
		tier         schemas.ModelTier
		wantPowerful bool
	}{
		{"fast tier", schemas.TierFast, false},
		{"powerful tier", schemas.TierPowerful, true},
		{"unspecified defaults to powerful", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, fast, powerful, logs := setupRouter(t)
			req := schemas.GenerationRequest{UserPrompt: "hi", Tier: tt.tier}

			target, other := fast, powerful
			if tt.wantPowerful {
				target, other = powerful, fast
			}
			target.On("Generate", mock.Anything, req).Return("ok", nil).Once()

			out, err := router.Generate(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, "ok", out)
			target.AssertExpectations(t)
			other.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
			assert.Equal(t, 1, logs.FilterMessage("Routing LLM request").Len())
		})
	}
}

func TestLLMRouter_UnknownTier(t *testing.T) {
	router, _, _, _ := setupRouter(t)
	_, err := router.Generate(context.Background(), schemas.GenerationRequest{Tier: "gigantic"})
	assert.EqualError(t, err, "no LLM client configured for tier: gigantic")
}

func TestLLMRouter_PropagatesClientError(t *testing.T) {
	router, fast, _, _ := setupRouter(t)
	fast.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("quota"))

	_, err := router.Generate(context.Background(), schemas.GenerationRequest{Tier: schemas.TierFast})
	assert.EqualError(t, err, "quota")
}

func TestLLMRouter_Close(t *testing.T) {
	t.Run("closes each client once", func(t *testing.T) {
		logger, _ := setupTestLogger(t)
		shared := &MockLLMClient{}
		shared.On("Close").Return(nil).Once()

		router, err := NewLLMRouter(logger, shared, shared)
		require.NoError(t, err)
		require.NoError(t, router.Close())
		shared.AssertNumberOfCalls(t, "Close", 1)
	})

	t.Run("joins errors", func(t *testing.T) {
		router, fast, powerful, _ := setupRouter(t)
		fast.On("Close").Return(errors.New("fast broke"))
		powerful.On("Close").Return(nil)

		err := router.Close()
		assert.ErrorContains(t, err, "closing fast client: fast broke")
	})
}
