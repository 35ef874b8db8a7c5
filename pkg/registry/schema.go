// pkg/registry/schema.go
package registry

import "time"

// ActivityRegistry is the catalog of task types served by the worker manager.
type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

// Activity describes one Zeebe task type. InputSchema is a JSON schema the
// job variables are validated against before the handler runs.
type Activity struct {
	ID                   string                 `json:"id"`
	DisplayName          string                 `json:"displayName"`
	Description          string                 `json:"description"`
	Category             string                 `json:"category"`
	Version              string                 `json:"version"`
	TaskType             string                 `json:"taskType"`
	ImplementationStatus string                 `json:"implementationStatus"`
	InputSchema          map[string]interface{} `json:"inputSchema"`
	OutputSchema         map[string]interface{} `json:"outputSchema"`
	ErrorCodes           []string               `json:"errorCodes"`
	Timeout              string                 `json:"timeout"`
	Retries              int                    `json:"retries"`
	Workflows            []string               `json:"workflows"`
	Tags                 []string               `json:"tags"`
}

// TimeoutDuration parses Timeout; an empty value is zero.
func (a Activity) TimeoutDuration() (time.Duration, error) {
	if a.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(a.Timeout)
}

// HasInputSchema reports whether job variables are checked for this task type.
func (a Activity) HasInputSchema() bool {
	return len(a.InputSchema) > 0
}
