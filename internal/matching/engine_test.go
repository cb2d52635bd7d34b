// internal/matching/engine_test.go
package matching

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestCandidate() CandidateProfile {
	return CandidateProfile{
		ID:                "cand-1",
		Skills:            []string{"python", "fastapi", "postgresql", "docker", "react"},
		ExperienceYears:   5,
		Location:          "San Francisco, CA",
		SalaryExpectation: 150000,
		Preferences: Preferences{
			JobTypes:  []string{"full-time"},
			WorkModes: []string{"remote", "hybrid"},
			Remote:    true,
		},
	}
}

func createTestJob() JobPosting {
	return JobPosting{
		ID:                 "job-1",
		RequiredSkills:     []string{"python", "fastapi", "postgresql"},
		NiceToHaveSkills:   []string{"docker", "kubernetes", "aws"},
		ExperienceRequired: 3,
		Location:           "San Francisco, CA",
		SalaryMax:          160000,
		JobType:            "full-time",
	}
}

func newTestEngine(t *testing.T) *Engine {
	engine, err := NewEngine(DefaultWeights())
	require.NoError(t, err)
	return engine
}

// ==========================
// Weights Tests
// ==========================

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"defaults", DefaultWeights(), false},
		{"single factor", Weights{Skills: 1}, false},
		{"sum below one", Weights{Skills: 0.5, Experience: 0.2}, true},
		{"sum above one", Weights{Skills: 0.9, Experience: 0.2}, true},
		{"negative weight", Weights{Skills: 1.2, Experience: -0.2}, true},
		{"not a number", Weights{Skills: math.NaN(), Experience: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidWeights))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewEngine_RejectsInvalidWeights(t *testing.T) {
	engine, err := NewEngine(Weights{Skills: 0.5})

	assert.Nil(t, engine)
	assert.ErrorIs(t, err, ErrInvalidWeights)
}

// ==========================
// Calculate Tests
// ==========================

func TestEngine_Calculate_EndToEndExample(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.Calculate(createTestCandidate(), createTestJob())
	require.NoError(t, err)

	assert.InDelta(t, 0.509, result.ComponentScores[FactorSkills], 0.0005)
	assert.Equal(t, 0.9, result.ComponentScores[FactorExperience])
	assert.Equal(t, 1.0, result.ComponentScores[FactorLocation])
	assert.Equal(t, 1.0, result.ComponentScores[FactorSalary])
	assert.Equal(t, 1.0, result.ComponentScores[FactorPreferences])
	assert.Equal(t, 0.783, result.Score)

	assert.Equal(t, []string{
		"Matches 3/3 required skills",
		"Has 1 nice-to-have skills",
		"Has 5 years (requires 3, overqualified)",
		"Remote position",
		"Salary expectation: $150,000 (within budget)",
		"Prefers full-time positions",
		"Open to hybrid work",
	}, result.Reasons)
}

func TestEngine_Calculate_ScoreIsWeightedSum(t *testing.T) {
	weights := Weights{Skills: 0.2, Experience: 0.2, Location: 0.2, Salary: 0.2, Preferences: 0.2}
	engine, err := NewEngine(weights)
	require.NoError(t, err)

	candidate := CandidateProfile{ID: "c", Skills: []string{"go"}, ExperienceYears: 1, Location: "Austin, TX", SalaryExpectation: 200}
	job := JobPosting{ID: "j", RequiredSkills: []string{"go"}, ExperienceRequired: 2, Location: "Boston, MA", SalaryMax: 100, JobType: "full-time"}

	result, err := engine.Calculate(candidate, job)
	require.NoError(t, err)

	// skills 0.8, experience 0.5, location 0.3, salary 0.3, preferences 0
	assert.InDelta(t, 0.38, result.Score, 1e-9)
	assert.Len(t, result.ComponentScores, 5)
}

func TestEngine_Calculate_RejectsMalformedInput(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name      string
		candidate CandidateProfile
		job       JobPosting
	}{
		{"negative candidate experience", CandidateProfile{ID: "c", ExperienceYears: -1}, createTestJob()},
		{"negative salary expectation", CandidateProfile{ID: "c", SalaryExpectation: -10}, createTestJob()},
		{"negative required experience", createTestCandidate(), JobPosting{ID: "j", ExperienceRequired: -3}},
		{"negative salary ceiling", createTestCandidate(), JobPosting{ID: "j", SalaryMax: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Calculate(tt.candidate, tt.job)
			assert.ErrorIs(t, err, ErrPreconditionViolation)
		})
	}
}

func TestEngine_Calculate_Deterministic(t *testing.T) {
	engine := newTestEngine(t)

	first, err := engine.Calculate(createTestCandidate(), createTestJob())
	require.NoError(t, err)
	second, err := engine.Calculate(createTestCandidate(), createTestJob())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
