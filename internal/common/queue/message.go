// Package queue consumes celery-style task messages from an amqp queue and
// dispatches them to a worker pool.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/streadway/amqp"
)

var ErrMalformedMessage = errors.New("malformed task message")

// Task is a decoded task message.
type Task struct {
	ID     string
	Name   string
	Args   []interface{}
	Kwargs map[string]interface{}
}

// legacyBody is the celery protocol v1 message body.
type legacyBody struct {
	ID     string                 `json:"id"`
	Task   string                 `json:"task"`
	Args   []interface{}          `json:"args"`
	Kwargs map[string]interface{} `json:"kwargs"`
}

// DecodeTask reads a task from a delivery. Protocol v2 carries the task name
// and id in headers and [args, kwargs, embed] in the body; protocol v1 carries
// everything in a JSON object body.
func DecodeTask(d amqp.Delivery) (Task, error) {
	if name, ok := d.Headers["task"].(string); ok && name != "" {
		return decodeV2(name, d)
	}
	return decodeV1(d)
}

func decodeV2(name string, d amqp.Delivery) (Task, error) {
	task := Task{Name: name, Kwargs: map[string]interface{}{}}
	if id, ok := d.Headers["id"].(string); ok {
		task.ID = id
	}
	if task.ID == "" {
		task.ID = d.CorrelationId
	}

	var body []json.RawMessage
	if err := json.Unmarshal(d.Body, &body); err != nil {
		return Task{}, fmt.Errorf("%w: body is not a [args, kwargs, embed] array: %v", ErrMalformedMessage, err)
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body[0], &task.Args); err != nil {
			return Task{}, fmt.Errorf("%w: args: %v", ErrMalformedMessage, err)
		}
	}
	if len(body) > 1 {
		if err := json.Unmarshal(body[1], &task.Kwargs); err != nil {
			return Task{}, fmt.Errorf("%w: kwargs: %v", ErrMalformedMessage, err)
		}
		if task.Kwargs == nil {
			task.Kwargs = map[string]interface{}{}
		}
	}
	return task, nil
}

func decodeV1(d amqp.Delivery) (Task, error) {
	var body legacyBody
	if err := json.Unmarshal(d.Body, &body); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if body.Task == "" {
		return Task{}, fmt.Errorf("%w: no task name", ErrMalformedMessage)
	}
	if body.ID == "" {
		body.ID = d.CorrelationId
	}
	if body.Kwargs == nil {
		body.Kwargs = map[string]interface{}{}
	}
	return Task{ID: body.ID, Name: body.Task, Args: body.Args, Kwargs: body.Kwargs}, nil
}
