// Package notify announces refreshed matches to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"match-workers/internal/batch"
)

const (
	EventMatchesRefreshed = "matches.refreshed"
	observerName          = "notify"
)

// MessagePublisher is satisfied by aws.SNSClient.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, subject, body string, attributes map[string]string) (string, error)
}

// Event is the message body published after a successful batch.
type Event struct {
	Event        string    `json:"event"`
	TaskType     string    `json:"task_type"`
	JobID        string    `json:"job_id,omitempty"`
	CandidateID  string    `json:"candidate_id,omitempty"`
	MatchesCount int       `json:"matches_count"`
	TopMatches   []Match   `json:"top_matches"`
	RunID        string    `json:"run_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type Match struct {
	JobID       string  `json:"job_id"`
	CandidateID string  `json:"candidate_id"`
	Score       float64 `json:"score"`
}

// Publisher emits one event per successful run. It carries at most
// topMatches pairs so that messages stay well below the SNS size limit.
type Publisher struct {
	client     MessagePublisher
	topMatches int
}

const DefaultTopMatches = 10

func NewPublisher(client MessagePublisher, topMatches int) *Publisher {
	if topMatches <= 0 {
		topMatches = DefaultTopMatches
	}
	return &Publisher{client: client, topMatches: topMatches}
}

func (p *Publisher) Name() string { return observerName }

func (p *Publisher) Observe(ctx context.Context, outcome batch.Outcome, records []batch.MatchRecord) error {
	if !outcome.Succeeded() {
		return nil
	}

	event := Event{
		Event:        EventMatchesRefreshed,
		TaskType:     outcome.TaskType,
		JobID:        outcome.JobID,
		CandidateID:  outcome.CandidateID,
		MatchesCount: outcome.MatchesCount,
		TopMatches:   make([]Match, 0, min(len(records), p.topMatches)),
		RunID:        outcome.RunID,
		OccurredAt:   outcome.CompletedAt,
	}
	for i, r := range records {
		if i == p.topMatches {
			break
		}
		event.TopMatches = append(event.TopMatches, Match{JobID: r.JobID, CandidateID: r.CandidateID, Score: r.Score})
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	attrs := map[string]string{
		"event":         EventMatchesRefreshed,
		"task_type":     outcome.TaskType,
		"matches_count": strconv.Itoa(outcome.MatchesCount),
	}
	if _, err := p.client.PublishMessage(ctx, EventMatchesRefreshed, string(body), attrs); err != nil {
		return fmt.Errorf("publish %s: %w", EventMatchesRefreshed, err)
	}
	return nil
}
