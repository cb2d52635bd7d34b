// internal/matching/scorers.go
package matching

import (
	"fmt"
	"strconv"
	"strings"
)

// Factor names used as keys of the component score breakdown.
const (
	FactorSkills      = "skills"
	FactorExperience  = "experience"
	FactorLocation    = "location"
	FactorSalary      = "salary"
	FactorPreferences = "preferences"
)

// Factors lists the factors in the order their reasons are reported.
var Factors = []string{FactorSkills, FactorExperience, FactorLocation, FactorSalary, FactorPreferences}

// ScoreFunc scores one dimension of fit. Implementations are pure.
type ScoreFunc func(candidate CandidateProfile, job JobPosting) (float64, []string)

const (
	requiredSkillsShare = 0.8
	niceSkillsShare     = 0.2
	overqualifiedRatio  = 1.5
	overqualifiedScore  = 0.9
	noRequirementScore  = 0.5
	similarLocation     = 0.7
	differentLocation   = 0.3
	hybridWorkMode      = "hybrid"
)

// Jaccard returns |A∩B| / |A∪B| over case-insensitive skill sets, or 0 when
// either set is empty.
func Jaccard(a, b []string) float64 {
	return jaccard(skillSet(a), skillSet(b))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := intersectionSize(a, b)
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func skillSet(skills []string) map[string]struct{} {
	set := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		set[strings.ToLower(s)] = struct{}{}
	}
	return set
}

func intersectionSize(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

// SkillsScore blends required and nice-to-have skill overlap 80/20.
func SkillsScore(candidate CandidateProfile, job JobPosting) (float64, []string) {
	have := skillSet(candidate.Skills)
	required := skillSet(job.RequiredSkills)
	nice := skillSet(job.NiceToHaveSkills)

	score := requiredSkillsShare*jaccard(have, required) + niceSkillsShare*jaccard(have, nice)

	var reasons []string
	if n := intersectionSize(have, required); n > 0 {
		reasons = append(reasons, fmt.Sprintf("Matches %d/%d required skills", n, len(required)))
	}
	if n := intersectionSize(have, nice); n > 0 {
		reasons = append(reasons, fmt.Sprintf("Has %d nice-to-have skills", n))
	}
	return score, reasons
}

// ExperienceScore rewards meeting the requirement, with a small discount for
// candidates above 1.5x the required years. A zero requirement is never
// considered overqualified.
func ExperienceScore(candidate CandidateProfile, job JobPosting) (float64, []string) {
	have, need := candidate.ExperienceYears, job.ExperienceRequired

	if have >= need {
		if need > 0 && float64(have) > float64(need)*overqualifiedRatio {
			return overqualifiedScore, []string{fmt.Sprintf("Has %d years (requires %d, overqualified)", have, need)}
		}
		return 1.0, []string{fmt.Sprintf("Has %d years experience (requires %d)", have, need)}
	}

	score := noRequirementScore
	if need > 0 {
		score = float64(have) / float64(need)
	}
	return score, []string{fmt.Sprintf("Has %d years (requires %d)", have, need)}
}

// LocationScore compares free-text locations; the city part is the text
// before the first comma.
func LocationScore(candidate CandidateProfile, job JobPosting) (float64, []string) {
	if strings.EqualFold(job.Location, RemoteLocation) || candidate.Preferences.Remote {
		return 1.0, []string{"Remote position"}
	}
	if strings.EqualFold(candidate.Location, job.Location) {
		return 1.0, []string{fmt.Sprintf("Located in %s", job.Location)}
	}
	if strings.EqualFold(cityPart(candidate.Location), cityPart(job.Location)) {
		return similarLocation, []string{"Similar location"}
	}
	return differentLocation, []string{"Different location"}
}

func cityPart(location string) string {
	city, _, _ := strings.Cut(location, ",")
	return city
}

// SalaryScore scores how far the expectation exceeds the job's ceiling.
func SalaryScore(candidate CandidateProfile, job JobPosting) (float64, []string) {
	expected, ceiling := candidate.SalaryExpectation, job.SalaryMax

	if expected <= ceiling || expected == 0 {
		return 1.0, []string{fmt.Sprintf("Salary expectation: $%s (within budget)", groupThousands(expected))}
	}

	diffPercent := float64(expected-ceiling) / float64(expected) * 100
	switch {
	case diffPercent < 10:
		return 0.8, []string{fmt.Sprintf("Salary expectation slightly above budget (%.0f%% more)", diffPercent)}
	case diffPercent < 20:
		return 0.6, []string{fmt.Sprintf("Salary expectation above budget (%.0f%% more)", diffPercent)}
	default:
		return 0.3, []string{fmt.Sprintf("Salary expectation significantly higher (%.0f%% more than $%s)",
			diffPercent, groupThousands(ceiling))}
	}
}

// PreferencesScore adds 0.5 for a preferred job type and 0.5 when the
// candidate accepts hybrid work.
// TODO: confirm with product whether any overlapping work mode should count,
// not only "hybrid"; the job posting carries no work mode yet.
func PreferencesScore(candidate CandidateProfile, job JobPosting) (float64, []string) {
	score := 0.0
	var reasons []string

	if containsFold(candidate.Preferences.JobTypes, job.JobType) {
		score += 0.5
		reasons = append(reasons, fmt.Sprintf("Prefers %s positions", job.JobType))
	}
	if containsFold(candidate.Preferences.WorkModes, hybridWorkMode) {
		score += 0.5
		reasons = append(reasons, "Open to hybrid work")
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, reasons
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

func groupThousands(n int) string {
	s := strconv.Itoa(n)
	sign := ""
	if n < 0 {
		sign, s = "-", s[1:]
	}
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return sign + b.String()
}
