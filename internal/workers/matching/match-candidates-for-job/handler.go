// internal/workers/matching/match-candidates-for-job/handler.go
package matchcandidatesforjob

import (
	"context"
	"strings"
	"time"

	"match-workers/internal/batch"
	apperrors "match-workers/internal/common/errors"
	"match-workers/internal/common/logger"
	"match-workers/internal/common/metrics"
	"match-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/mitchellh/mapstructure"
)

const (
	TaskType      = batch.TaskMatchCandidatesForJob
	dispatcher    = "zeebe"
	reportTimeout = 10 * time.Second
)

// Runner executes one match batch.
type Runner interface {
	Run(ctx context.Context, req batch.Request) batch.Outcome
}

type Handler struct {
	config    *Config
	runner    Runner
	validator *validation.Validator
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, runner Runner, validator *validation.Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		runner:    runner,
		validator: validator,
		errors:    apperrors.NewErrorHandler(log),
		logger:    log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	metrics.WorkerJobsActive.WithLabelValues(TaskType, dispatcher).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType, dispatcher).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"retries":            job.GetRetries(),
	})

	input, err := h.parseInput(job)
	if err != nil {
		h.failJob(ctx, client, job, err, nil)
		return
	}

	output, err := h.execute(ctx, input)

	// a run that used up its timeout still has to be reported
	reportCtx, cancelReport := context.WithTimeout(context.Background(), reportTimeout)
	defer cancelReport()

	if err != nil {
		h.failJob(reportCtx, client, job, err, errorVariables(output))
		return
	}
	h.completeJob(reportCtx, client, job, output)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, apperrors.NewInvalidInputError("variables are not a JSON object: " + err.Error())
	}

	result, err := h.validator.Validate(TaskType, variables)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !result.Valid {
		return nil, apperrors.NewInvalidInputError(strings.Join(result.GetErrorMessages(), "; "))
	}

	var input Input
	if err := mapstructure.Decode(variables, &input); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (Output, error) {
	outcome := h.runner.Run(ctx, batch.Request{
		TaskType: TaskType,
		AnchorID: input.JobID,
		TopK:     input.TopK,
	})
	if stdErr := outcome.Err(); stdErr != nil {
		return outcome, stdErr
	}
	return outcome, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType, dispatcher).Inc()
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":       job.Key,
		"jobId":        output.JobID,
		"matchesCount": output.MatchesCount,
		"runId":        output.RunID,
	})
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error, extra map[string]interface{}) {
	code := string(apperrors.ErrCodeInternal)
	if stdErr, ok := apperrors.AsStandardError(err); ok {
		code = string(stdErr.Code)
	}
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, dispatcher, code).Inc()
	h.errors.HandleJobError(ctx, client, job, err, extra)
}

// Execute runs the batch for an already parsed input.
func (h *Handler) Execute(ctx context.Context, input *Input) (Output, error) {
	return h.execute(ctx, input)
}
