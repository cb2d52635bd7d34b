// Package celerydispatch serves the celery task names of the matching
// activities from the amqp queue.
package celerydispatch

import (
	"context"
	"fmt"
	"strings"

	"match-workers/internal/batch"
	apperrors "match-workers/internal/common/errors"
	"match-workers/internal/common/logger"
	"match-workers/internal/common/queue"
	"match-workers/internal/common/validation"
	"match-workers/pkg/registry"
)

// Runner executes one match batch.
type Runner interface {
	Run(ctx context.Context, req batch.Request) batch.Outcome
}

// anchorParams names the positional and keyword parameters of each task:
// task(anchor_id, top_k=default).
var anchorParams = map[string]struct{ kwarg, variable string }{
	batch.TaskMatchCandidatesForJob: {kwarg: "job_id", variable: "jobId"},
	batch.TaskMatchJobsForCandidate: {kwarg: "candidate_id", variable: "candidateId"},
}

type Dispatcher struct {
	registry  *registry.ActivityRegistry
	validator *validation.Validator
	runner    Runner
	logger    logger.Logger
}

var _ queue.Handler = (*Dispatcher)(nil)

func NewDispatcher(reg *registry.ActivityRegistry, validator *validation.Validator, runner Runner, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		registry:  reg,
		validator: validator,
		runner:    runner,
		logger:    log,
	}
}

// HandleTask maps a celery task onto a batch run. The outcome is returned
// for failed runs too so the reply carries it.
func (d *Dispatcher) HandleTask(ctx context.Context, task queue.Task) (interface{}, error) {
	activity, ok := d.registry.Find(task.Name)
	if !ok {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("unknown task %q", task.Name))
	}
	params, ok := anchorParams[activity.TaskType]
	if !ok {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("task %q is not a matching task", task.Name))
	}

	variables, err := taskVariables(task, params.kwarg, params.variable)
	if err != nil {
		return nil, err
	}

	result, err := d.validator.Validate(activity.TaskType, variables)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !result.Valid {
		return nil, apperrors.NewInvalidInputError(strings.Join(result.GetErrorMessages(), "; "))
	}

	req := batch.Request{TaskType: activity.TaskType}
	req.AnchorID, _ = variables[params.variable].(string)
	if topK, ok := variables["topK"].(float64); ok {
		k := int(topK)
		req.TopK = &k
	}

	d.logger.Debug("dispatching celery task", map[string]interface{}{
		"task":     task.Name,
		"taskId":   task.ID,
		"anchorId": req.AnchorID,
	})

	outcome := d.runner.Run(ctx, req)
	if stdErr := outcome.Err(); stdErr != nil {
		return outcome, stdErr
	}
	return outcome, nil
}

// taskVariables folds positional and keyword arguments into the camelCase
// variables the input schemas describe. Keywords win over positions.
func taskVariables(task queue.Task, anchorKwarg, anchorVariable string) (map[string]interface{}, error) {
	if len(task.Args) > 2 {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("%s takes at most 2 positional arguments, got %d", task.Name, len(task.Args)))
	}

	vars := map[string]interface{}{}
	if len(task.Args) > 0 {
		vars[anchorVariable] = task.Args[0]
	}
	if len(task.Args) > 1 {
		vars["topK"] = task.Args[1]
	}
	if v, ok := task.Kwargs[anchorKwarg]; ok {
		vars[anchorVariable] = v
	}
	if v, ok := task.Kwargs["top_k"]; ok {
		vars["topK"] = v
	}

	// celery sends None for an omitted top_k
	if v, ok := vars["topK"]; ok && v == nil {
		delete(vars, "topK")
	}
	return vars, nil
}
