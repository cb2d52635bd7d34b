// Package search projects committed match rows into elasticsearch so that
// recruiters can query them alongside the job catalogue.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"match-workers/internal/batch"

	"github.com/elastic/go-elasticsearch/v8"
)

const (
	DefaultIndex = "job_matches"
	observerName = "search"
)

const indexMapping = `{
  "mappings": {
    "properties": {
      "job_id":           {"type": "keyword"},
      "candidate_id":     {"type": "keyword"},
      "score":            {"type": "float"},
      "reasons":          {"type": "text"},
      "component_scores": {"type": "object"},
      "run_id":           {"type": "keyword"},
      "updated_at":       {"type": "date"}
    }
  }
}`

// Document is the indexed shape of one match row.
type Document struct {
	JobID           string             `json:"job_id"`
	CandidateID     string             `json:"candidate_id"`
	Score           float64            `json:"score"`
	Reasons         []string           `json:"reasons"`
	ComponentScores map[string]float64 `json:"component_scores"`
	RunID           string             `json:"run_id"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

type Indexer struct {
	client *elasticsearch.Client
	index  string
	now    func() time.Time
}

func NewIndexer(client *elasticsearch.Client, index string) *Indexer {
	if index == "" {
		index = DefaultIndex
	}
	return &Indexer{client: client, index: index, now: time.Now}
}

func (i *Indexer) Name() string { return observerName }

// Observe indexes the rows of a successful run. Error outcomes carry no rows
// and are ignored.
func (i *Indexer) Observe(ctx context.Context, outcome batch.Outcome, records []batch.MatchRecord) error {
	if !outcome.Succeeded() || len(records) == 0 {
		return nil
	}

	body, err := i.bulkBody(outcome.RunID, records)
	if err != nil {
		return err
	}

	res, err := i.client.Bulk(
		bytes.NewReader(body),
		i.client.Bulk.WithContext(ctx),
		i.client.Bulk.WithIndex(i.index),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch bulk error: %s", res.Status())
	}

	var result bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if result.Errors {
		return fmt.Errorf("elasticsearch bulk rejected %d of %d documents", result.failed(), len(records))
	}
	return nil
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (i *Indexer) EnsureIndex(ctx context.Context) (bool, error) {
	res, err := i.client.Indices.Exists([]string{i.index}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("elasticsearch index check failed: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return false, nil
	}

	res, err = i.client.Indices.Create(
		i.index,
		i.client.Indices.Create.WithContext(ctx),
		i.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return false, fmt.Errorf("elasticsearch create index failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return false, fmt.Errorf("elasticsearch create index error: %s", res.Status())
	}
	return true, nil
}

func (i *Indexer) bulkBody(runID string, records []batch.MatchRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	updatedAt := i.now().UTC()

	for _, r := range records {
		meta := map[string]map[string]string{
			"index": {"_id": DocumentID(r.JobID, r.CandidateID)},
		}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("encode bulk meta: %w", err)
		}
		doc := Document{
			JobID:           r.JobID,
			CandidateID:     r.CandidateID,
			Score:           r.Score,
			Reasons:         r.Reasons,
			ComponentScores: r.ComponentScores,
			RunID:           runID,
			UpdatedAt:       updatedAt,
		}
		if doc.Reasons == nil {
			doc.Reasons = []string{}
		}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode bulk document: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// DocumentID keys documents by pair so that reindexing overwrites in place.
func DocumentID(jobID, candidateID string) string {
	return jobID + ":" + candidateID
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
	} `json:"items"`
}

func (b bulkResponse) failed() int {
	n := 0
	for _, item := range b.Items {
		for _, op := range item {
			if op.Status >= 300 {
				n++
			}
		}
	}
	return n
}
