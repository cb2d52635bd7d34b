// internal/matching/engine.go
package matching

import (
	"fmt"
	"math"
)

const weightSumTolerance = 1e-9

// Weights are the factor weights combined by the Engine. They must each lie
// in [0,1] and sum to 1.0.
type Weights struct {
	Skills      float64 `json:"skills" mapstructure:"skills"`
	Experience  float64 `json:"experience" mapstructure:"experience"`
	Location    float64 `json:"location" mapstructure:"location"`
	Salary      float64 `json:"salary" mapstructure:"salary"`
	Preferences float64 `json:"preferences" mapstructure:"preferences"`
}

func DefaultWeights() Weights {
	return Weights{
		Skills:      0.40,
		Experience:  0.20,
		Location:    0.15,
		Salary:      0.15,
		Preferences: 0.10,
	}
}

func (w Weights) Validate() error {
	values := map[string]float64{
		FactorSkills:      w.Skills,
		FactorExperience:  w.Experience,
		FactorLocation:    w.Location,
		FactorSalary:      w.Salary,
		FactorPreferences: w.Preferences,
	}

	sum := 0.0
	for _, name := range Factors {
		v := values[name]
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %s weight %v outside [0,1]", ErrInvalidWeights, name, v)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("%w: weights sum to %v, expected 1.0", ErrInvalidWeights, sum)
	}
	return nil
}

// Result is the scoring of one candidate/job pair without identifiers.
type Result struct {
	Score           float64            `json:"score"`
	Reasons         []string           `json:"reasons"`
	ComponentScores map[string]float64 `json:"component_scores"`
}

type factor struct {
	name   string
	weight float64
	score  ScoreFunc
}

// Engine combines the five factor scorers. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	weights Weights
	factors []factor
}

func NewEngine(weights Weights) (*Engine, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		weights: weights,
		factors: []factor{
			{name: FactorSkills, weight: weights.Skills, score: SkillsScore},
			{name: FactorExperience, weight: weights.Experience, score: ExperienceScore},
			{name: FactorLocation, weight: weights.Location, score: LocationScore},
			{name: FactorSalary, weight: weights.Salary, score: SalaryScore},
			{name: FactorPreferences, weight: weights.Preferences, score: PreferencesScore},
		},
	}, nil
}

func (e *Engine) Weights() Weights {
	return e.weights
}

// Calculate scores one pair. Component scores are kept unrounded; only the
// overall score is rounded to three decimals.
func (e *Engine) Calculate(candidate CandidateProfile, job JobPosting) (Result, error) {
	if err := candidate.Validate(); err != nil {
		return Result{}, err
	}
	if err := job.Validate(); err != nil {
		return Result{}, err
	}

	result := Result{
		Reasons:         make([]string, 0, len(e.factors)+2),
		ComponentScores: make(map[string]float64, len(e.factors)),
	}

	total := 0.0
	for _, f := range e.factors {
		score, reasons := f.score(candidate, job)
		score = clamp01(score)
		result.ComponentScores[f.name] = score
		result.Reasons = append(result.Reasons, reasons...)
		total += f.weight * score
	}

	result.Score = roundTo(clamp01(total), 3)
	return result, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
