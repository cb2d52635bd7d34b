// internal/matching/profile.go
package matching

import (
	"errors"
	"fmt"
)

// RemoteLocation is the job location that makes a posting location-agnostic.
const RemoteLocation = "remote"

var (
	ErrPreconditionViolation = errors.New("PRECONDITION_VIOLATION")
	ErrInvalidWeights        = errors.New("INVALID_WEIGHTS")
)

// Preferences holds the optional candidate preferences used by the
// preferences and location scorers. Absent keys decode to their zero value.
type Preferences struct {
	JobTypes  []string `json:"job_types" mapstructure:"job_types"`
	WorkModes []string `json:"work_modes" mapstructure:"work_modes"`
	Remote    bool     `json:"remote" mapstructure:"remote"`
}

// CandidateProfile is the read-only view of a candidate used for scoring.
type CandidateProfile struct {
	ID                string      `json:"id"`
	Skills            []string    `json:"skills"`
	ExperienceYears   int         `json:"experience_years"`
	Location          string      `json:"location"`
	SalaryExpectation int         `json:"salary_expectation"`
	Preferences       Preferences `json:"preferences"`
}

// JobPosting is the read-only view of a job used for scoring.
type JobPosting struct {
	ID                 string   `json:"id"`
	RequiredSkills     []string `json:"required_skills"`
	NiceToHaveSkills   []string `json:"nice_to_have_skills"`
	ExperienceRequired int      `json:"experience_required"`
	Location           string   `json:"location"`
	SalaryMax          int      `json:"salary_max"`
	JobType            string   `json:"job_type"`
}

// Validate reports malformed numeric fields. Scoring never coerces them.
func (c CandidateProfile) Validate() error {
	if c.ExperienceYears < 0 {
		return fmt.Errorf("%w: candidate %s has negative experience (%d years)",
			ErrPreconditionViolation, c.ID, c.ExperienceYears)
	}
	if c.SalaryExpectation < 0 {
		return fmt.Errorf("%w: candidate %s has negative salary expectation (%d)",
			ErrPreconditionViolation, c.ID, c.SalaryExpectation)
	}
	return nil
}

func (j JobPosting) Validate() error {
	if j.ExperienceRequired < 0 {
		return fmt.Errorf("%w: job %s requires negative experience (%d years)",
			ErrPreconditionViolation, j.ID, j.ExperienceRequired)
	}
	if j.SalaryMax < 0 {
		return fmt.Errorf("%w: job %s has negative salary ceiling (%d)",
			ErrPreconditionViolation, j.ID, j.SalaryMax)
	}
	return nil
}
