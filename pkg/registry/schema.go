// pkg/registry/schema.go
package registry

// ActivityRegistry is the on-disk catalogue of matching tasks, shared by the
// zeebe workers, the amqp dispatcher and `matchctl registry`.
type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

// Activity describes one matching task. A task is found by TaskType (zeebe)
// or CeleryTask (amqp); InputSchema is the JSON schema its variables are
// validated against before a batch runs, and ErrorCodes lists the BPMN
// errors the task may throw.
type Activity struct {
	ID                   string                 `json:"id"`
	DisplayName          string                 `json:"displayName"`
	Description          string                 `json:"description"`
	Category             string                 `json:"category"`
	Version              string                 `json:"version"`
	TaskType             string                 `json:"taskType"`
	CeleryTask           string                 `json:"celeryTask,omitempty"`
	ImplementationStatus string                 `json:"implementationStatus"`
	InputSchema          map[string]interface{} `json:"inputSchema"`
	OutputSchema         map[string]interface{} `json:"outputSchema"`
	ErrorCodes           []string               `json:"errorCodes"`
	Timeout              string                 `json:"timeout"` // e.g. "120s"
	Retries              int                    `json:"retries"`
	Workflows            []string               `json:"workflows"`
	Tags                 []string               `json:"tags"`
}
