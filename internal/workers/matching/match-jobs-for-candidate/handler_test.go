// internal/workers/matching/match-jobs-for-candidate/handler_test.go
package matchjobsforcandidate

import (
	"context"
	"sync"
	"testing"
	"time"

	"match-workers/internal/batch"
	"match-workers/internal/common/camunda/zeebetest"
	"match-workers/internal/common/config"
	"match-workers/internal/common/logger"
	"match-workers/internal/common/validation"
	"match-workers/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeRunner struct {
	mu       sync.Mutex
	requests []batch.Request
	outcome  batch.Outcome
}

func (r *fakeRunner) Run(_ context.Context, req batch.Request) batch.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	out := r.outcome
	out.TaskType = req.TaskType
	out.CandidateID = req.AnchorID
	return out
}

func successOutcome(matches int) batch.Outcome {
	return batch.Outcome{
		Status:       batch.StatusSuccess,
		MatchesCount: matches,
		RunID:        "run-1",
		CompletedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func errorOutcome(code, msg string) batch.Outcome {
	return batch.Outcome{
		Status:      batch.StatusError,
		Error:       msg,
		ErrorCode:   code,
		RunID:       "run-2",
		CompletedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestHandler(t *testing.T, runner Runner) *Handler {
	v, err := validation.NewValidator(registry.Default())
	require.NoError(t, err)
	return NewHandler(DefaultConfig(), runner, v, logger.NewTestLogger(t))
}

// ==========================
// Handle Tests
// ==========================

func TestHandle_Success(t *testing.T) {
	runner := &fakeRunner{outcome: successOutcome(2)}
	h := newTestHandler(t, runner)
	client := zeebetest.NewJobClient()

	h.Handle(client, zeebetest.NewJob(1, TaskType, 3, map[string]interface{}{"candidateId": "cand-1", "topK": 5}))

	require.Len(t, runner.requests, 1)
	req := runner.requests[0]
	assert.Equal(t, batch.TaskMatchJobsForCandidate, req.TaskType)
	assert.Equal(t, "cand-1", req.AnchorID)
	require.NotNil(t, req.TopK)
	assert.Equal(t, 5, *req.TopK)

	completed := client.Gateway.Completed()
	require.Len(t, completed, 1)
	assert.Equal(t, int64(1), completed[0].JobKey)

	vars := zeebetest.Variables(completed[0].Variables)
	assert.Equal(t, "success", vars["status"])
	assert.Equal(t, "cand-1", vars["candidate_id"])
	assert.Equal(t, float64(2), vars["matches_count"])
	assert.NotContains(t, vars, "job_id")
	assert.Empty(t, client.Gateway.Failed())
	assert.Empty(t, client.Gateway.Thrown())
}

func TestHandle_DefaultTopK(t *testing.T) {
	runner := &fakeRunner{outcome: successOutcome(0)}
	h := newTestHandler(t, runner)

	h.Handle(zeebetest.NewJobClient(), zeebetest.NewJob(2, TaskType, 3, map[string]interface{}{"candidateId": "cand-1"}))

	require.Len(t, runner.requests, 1)
	assert.Nil(t, runner.requests[0].TopK)
}

func TestHandle_InvalidInputThrows(t *testing.T) {
	tests := []struct {
		name      string
		variables map[string]interface{}
	}{
		{"missing candidate id", map[string]interface{}{"topK": 5}},
		{"empty candidate id", map[string]interface{}{"candidateId": ""}},
		{"negative top k", map[string]interface{}{"candidateId": "cand-1", "topK": -1}},
		{"fractional top k", map[string]interface{}{"candidateId": "cand-1", "topK": 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{outcome: successOutcome(0)}
			h := newTestHandler(t, runner)
			client := zeebetest.NewJobClient()

			h.Handle(client, zeebetest.NewJob(3, TaskType, 3, tt.variables))

			assert.Empty(t, runner.requests)
			assert.Empty(t, client.Gateway.Completed())
			thrown := client.Gateway.Thrown()
			require.Len(t, thrown, 1)
			assert.Equal(t, "MATCH_INVALID_INPUT", thrown[0].ErrorCode)
		})
	}
}

func TestHandle_NotFoundThrowsWithOutcome(t *testing.T) {
	runner := &fakeRunner{outcome: errorOutcome("NOT_FOUND", "candidate cand-9 not found")}
	h := newTestHandler(t, runner)
	client := zeebetest.NewJobClient()

	h.Handle(client, zeebetest.NewJob(4, TaskType, 3, map[string]interface{}{"candidateId": "cand-9"}))

	thrown := client.Gateway.Thrown()
	require.Len(t, thrown, 1)
	assert.Equal(t, "MATCH_ANCHOR_NOT_FOUND", thrown[0].ErrorCode)

	vars := zeebetest.Variables(thrown[0].Variables)
	assert.Equal(t, "error", vars["status"])
	assert.Equal(t, "cand-9", vars["candidate_id"])
	assert.Equal(t, float64(0), vars["matches_count"])
	assert.Equal(t, "run-2", vars["run_id"])
	assert.Empty(t, client.Gateway.Failed())
}

func TestHandle_PersistenceFailureRetries(t *testing.T) {
	runner := &fakeRunner{outcome: errorOutcome("PERSISTENCE_ERROR", "commit: connection reset")}
	h := newTestHandler(t, runner)
	client := zeebetest.NewJobClient()

	h.Handle(client, zeebetest.NewJob(5, TaskType, 3, map[string]interface{}{"candidateId": "cand-1"}))

	failed := client.Gateway.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, int32(2), failed[0].Retries)
	assert.Empty(t, client.Gateway.Thrown())
}

func TestHandle_PersistenceFailureOnLastRetryThrows(t *testing.T) {
	runner := &fakeRunner{outcome: errorOutcome("PERSISTENCE_ERROR", "commit: connection reset")}
	h := newTestHandler(t, runner)
	client := zeebetest.NewJobClient()

	h.Handle(client, zeebetest.NewJob(6, TaskType, 1, map[string]interface{}{"candidateId": "cand-1"}))

	thrown := client.Gateway.Thrown()
	require.Len(t, thrown, 1)
	assert.Equal(t, "MATCH_PERSISTENCE_FAILED", thrown[0].ErrorCode)
}

// ==========================
// Execute Tests
// ==========================

func TestExecute(t *testing.T) {
	h := newTestHandler(t, &fakeRunner{outcome: successOutcome(1)})
	out, err := h.Execute(context.Background(), &Input{CandidateID: "cand-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.MatchesCount)

	h = newTestHandler(t, &fakeRunner{outcome: errorOutcome("PRECONDITION_VIOLATION", "bad")})
	out, err = h.Execute(context.Background(), &Input{CandidateID: "cand-1"})
	require.Error(t, err)
	assert.Equal(t, "error", out.Status)
}

// ==========================
// Config Tests
// ==========================

func TestLoadConfig(t *testing.T) {
	cfg := LoadConfig(&config.Config{})
	assert.Equal(t, DefaultConfig(), cfg)

	cfg = LoadConfig(&config.Config{Workers: map[string]config.WorkerConfig{
		TaskType: {Enabled: false, MaxJobsActive: 2, Timeout: 45000},
	}})
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 2, cfg.MaxJobsActive)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.NoError(t, cfg.Validate())

	assert.Error(t, (&Config{MaxJobsActive: 1}).Validate())
	assert.Error(t, (&Config{Timeout: time.Second}).Validate())
}
