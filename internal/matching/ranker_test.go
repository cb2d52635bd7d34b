// internal/matching/ranker_test.go
package matching

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidatesWithSkills(skills ...[]string) []CandidateProfile {
	out := make([]CandidateProfile, 0, len(skills))
	for i, s := range skills {
		out = append(out, CandidateProfile{
			ID:       fmt.Sprintf("cand-%02d", i),
			Skills:   s,
			Location: "Remote",
		})
	}
	return out
}

// ==========================
// RankCandidates Tests
// ==========================

func TestRanker_RankCandidates_SortedAndTruncated(t *testing.T) {
	ranker := NewRanker(newTestEngine(t), 2)
	job := JobPosting{ID: "job-1", RequiredSkills: []string{"go", "sql", "k8s"}, Location: "remote", JobType: "full-time"}

	candidates := candidatesWithSkills(
		[]string{"go"},
		[]string{"go", "sql", "k8s"},
		[]string{},
		[]string{"go", "sql"},
	)

	ranked, err := ranker.RankCandidates(context.Background(), candidates, job, 3)
	require.NoError(t, err)

	require.Len(t, ranked, 3)
	assert.Equal(t, "cand-01", ranked[0].CandidateID)
	assert.Equal(t, "cand-03", ranked[1].CandidateID)
	assert.Equal(t, "cand-00", ranked[2].CandidateID)
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
	}
	assert.NotEmpty(t, ranked[0].Reasons)
	assert.Len(t, ranked[0].ComponentScores, 5)
}

func TestRanker_RankCandidates_TopK(t *testing.T) {
	ranker := NewRanker(newTestEngine(t), 0)
	job := createTestJob()
	candidates := candidatesWithSkills([]string{"python"}, []string{"docker"})

	tests := []struct {
		name     string
		topK     int
		expected int
	}{
		{"zero", 0, 0},
		{"negative", -5, 0},
		{"larger than input", 10, 2},
		{"exact", 2, 2},
		{"one", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked, err := ranker.RankCandidates(context.Background(), candidates, job, tt.topK)
			require.NoError(t, err)
			assert.NotNil(t, ranked)
			assert.Len(t, ranked, tt.expected)
		})
	}
}

func TestRanker_RankCandidates_TieBreakByID(t *testing.T) {
	ranker := NewRanker(newTestEngine(t), 4)
	job := createTestJob()

	candidates := []CandidateProfile{
		{ID: "c-zulu", Skills: []string{"python"}},
		{ID: "c-alpha", Skills: []string{"python"}},
		{ID: "c-mike", Skills: []string{"python"}},
	}

	ranked, err := ranker.RankCandidates(context.Background(), candidates, job, 10)
	require.NoError(t, err)

	require.Len(t, ranked, 3)
	assert.Equal(t, ranked[0].Score, ranked[2].Score)
	assert.Equal(t, []string{"c-alpha", "c-mike", "c-zulu"},
		[]string{ranked[0].CandidateID, ranked[1].CandidateID, ranked[2].CandidateID})
}

func TestRanker_RankCandidates_DeduplicatesIDs(t *testing.T) {
	ranker := NewRanker(newTestEngine(t), 1)
	job := createTestJob()

	candidates := []CandidateProfile{
		{ID: "dup", Skills: []string{"python", "fastapi", "postgresql"}},
		{ID: "other", Skills: []string{"python"}},
		{ID: "dup", Skills: []string{}},
	}

	ranked, err := ranker.RankCandidates(context.Background(), candidates, job, 10)
	require.NoError(t, err)

	require.Len(t, ranked, 2)
	assert.Equal(t, "dup", ranked[0].CandidateID)
	assert.Equal(t, "other", ranked[1].CandidateID)
}

func TestRanker_RankCandidates_PropagatesPreconditionViolation(t *testing.T) {
	ranker := NewRanker(newTestEngine(t), 2)

	candidates := []CandidateProfile{
		{ID: "ok"},
		{ID: "bad", ExperienceYears: -2},
	}

	ranked, err := ranker.RankCandidates(context.Background(), candidates, createTestJob(), 10)

	assert.Nil(t, ranked)
	assert.ErrorIs(t, err, ErrPreconditionViolation)
}

func TestRanker_RankCandidates_EmptyInput(t *testing.T) {
	ranker := NewRanker(newTestEngine(t), 2)

	ranked, err := ranker.RankCandidates(context.Background(), nil, createTestJob(), 100)
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestRanker_RankCandidates_CancelledContext(t *testing.T) {
	ranker := NewRanker(newTestEngine(t), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ranker.RankCandidates(ctx, candidatesWithSkills([]string{"go"}), createTestJob(), 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRanker_RankCandidates_LargeInputIsSubsetWithoutDuplicates(t *testing.T) {
	ranker := NewRanker(newTestEngine(t), 8)
	job := createTestJob()

	candidates := make([]CandidateProfile, 0, 500)
	for i := 0; i < 500; i++ {
		candidates = append(candidates, CandidateProfile{
			ID:              fmt.Sprintf("cand-%03d", i%400),
			Skills:          []string{"python", fmt.Sprintf("skill-%d", i%7)},
			ExperienceYears: i % 10,
		})
	}

	ranked, err := ranker.RankCandidates(context.Background(), candidates, job, 100)
	require.NoError(t, err)
	require.Len(t, ranked, 100)

	inputIDs := make(map[string]bool)
	for _, c := range candidates {
		inputIDs[c.ID] = true
	}
	seen := make(map[string]bool)
	for i, r := range ranked {
		assert.True(t, inputIDs[r.CandidateID])
		assert.False(t, seen[r.CandidateID], "duplicate %s", r.CandidateID)
		seen[r.CandidateID] = true
		if i > 0 {
			assert.GreaterOrEqual(t, ranked[i-1].Score, r.Score)
		}
	}
}

// ==========================
// RankJobs Tests
// ==========================

func TestRanker_RankJobs(t *testing.T) {
	ranker := NewRanker(newTestEngine(t), 2)
	candidate := createTestCandidate()

	jobs := []JobPosting{
		{ID: "job-far", RequiredSkills: []string{"java"}, ExperienceRequired: 10, SalaryMax: 50000, JobType: "contract"},
		createTestJob(),
		{ID: "job-mid", RequiredSkills: []string{"python"}, ExperienceRequired: 5, SalaryMax: 150000, JobType: "full-time"},
	}

	ranked, err := ranker.RankJobs(context.Background(), candidate, jobs, 2)
	require.NoError(t, err)

	require.Len(t, ranked, 2)
	assert.NotEqual(t, "job-far", ranked[0].JobID)
	assert.NotEqual(t, "job-far", ranked[1].JobID)
	assert.GreaterOrEqual(t, ranked[0].Score, ranked[1].Score)
}

func TestRanker_RankJobs_ZeroTopKDoesNotScore(t *testing.T) {
	ranker := NewRanker(newTestEngine(t), 2)

	ranked, err := ranker.RankJobs(context.Background(), createTestCandidate(),
		[]JobPosting{{ID: "bad", SalaryMax: -1}}, 0)

	require.NoError(t, err)
	assert.Empty(t, ranked)
}
