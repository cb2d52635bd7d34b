// internal/matching/ranker.go
package matching

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultCandidatesTopK = 100
	DefaultJobsTopK       = 50
)

// RankedCandidate is one entry of a candidate ranking for a job.
type RankedCandidate struct {
	CandidateID     string             `json:"candidate_id"`
	Score           float64            `json:"score"`
	Reasons         []string           `json:"reasons"`
	ComponentScores map[string]float64 `json:"component_scores"`
}

// RankedJob is one entry of a job ranking for a candidate.
type RankedJob struct {
	JobID           string             `json:"job_id"`
	Score           float64            `json:"score"`
	Reasons         []string           `json:"reasons"`
	ComponentScores map[string]float64 `json:"component_scores"`
}

// Ranker scores a collection against one anchor and keeps the best top-k.
// Equal scores are ordered by identifier ascending; duplicate identifiers
// keep their first occurrence.
type Ranker struct {
	engine      *Engine
	parallelism int
}

// NewRanker returns a Ranker that scores with at most parallelism goroutines
// (GOMAXPROCS when parallelism <= 0).
func NewRanker(engine *Engine, parallelism int) *Ranker {
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	return &Ranker{engine: engine, parallelism: parallelism}
}

func (r *Ranker) RankCandidates(ctx context.Context, candidates []CandidateProfile, job JobPosting, topK int) ([]RankedCandidate, error) {
	if topK <= 0 {
		return []RankedCandidate{}, nil
	}

	unique := dedupe(candidates, func(c CandidateProfile) string { return c.ID })
	scored, err := scoreAll(ctx, r.parallelism, unique, func(c CandidateProfile) (Result, error) {
		return r.engine.Calculate(c, job)
	})
	if err != nil {
		return nil, err
	}

	order := rankOrder(scored, func(i int) string { return unique[i].ID }, topK)
	out := make([]RankedCandidate, 0, len(order))
	for _, i := range order {
		out = append(out, RankedCandidate{
			CandidateID:     unique[i].ID,
			Score:           scored[i].Score,
			Reasons:         scored[i].Reasons,
			ComponentScores: scored[i].ComponentScores,
		})
	}
	return out, nil
}

func (r *Ranker) RankJobs(ctx context.Context, candidate CandidateProfile, jobs []JobPosting, topK int) ([]RankedJob, error) {
	if topK <= 0 {
		return []RankedJob{}, nil
	}

	unique := dedupe(jobs, func(j JobPosting) string { return j.ID })
	scored, err := scoreAll(ctx, r.parallelism, unique, func(j JobPosting) (Result, error) {
		return r.engine.Calculate(candidate, j)
	})
	if err != nil {
		return nil, err
	}

	order := rankOrder(scored, func(i int) string { return unique[i].ID }, topK)
	out := make([]RankedJob, 0, len(order))
	for _, i := range order {
		out = append(out, RankedJob{
			JobID:           unique[i].ID,
			Score:           scored[i].Score,
			Reasons:         scored[i].Reasons,
			ComponentScores: scored[i].ComponentScores,
		})
	}
	return out, nil
}

func dedupe[T any](items []T, id func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		key := id(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func scoreAll[T any](ctx context.Context, limit int, items []T, score func(T) (Result, error)) ([]Result, error) {
	results := make([]Result, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range items {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := score(items[i])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func rankOrder(results []Result, id func(int) string, topK int) []int {
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := results[order[a]].Score, results[order[b]].Score
		if sa != sb {
			return sa > sb
		}
		return id(order[a]) < id(order[b])
	})
	if len(order) > topK {
		order = order[:topK]
	}
	return order
}
