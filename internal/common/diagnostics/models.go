package diagnostics

import "time"

type ProbeStatus string

const (
	StatusSuccess ProbeStatus = "success"
	StatusWarning ProbeStatus = "warning"
	StatusError   ProbeStatus = "error"
)

type Overall string

const (
	OverallHealthy  Overall = "healthy"
	OverallDegraded Overall = "degraded"
	OverallCritical Overall = "critical"
)

// Probe names, in the order they appear in a report.
const (
	ProbeConnectivity = "connectivity"
	ProbeCORS         = "cors"
	ProbePost         = "post"
	ProbeURL          = "url"
)

type ProbeResult struct {
	Name       string      `json:"name"`
	Status     ProbeStatus `json:"status"`
	LatencyMs  int64       `json:"latencyMs"`
	HTTPStatus int         `json:"httpStatus,omitempty"`
	Detail     string      `json:"detail"`
}

type Report struct {
	ID          string        `json:"id"`
	URL         string        `json:"url"`
	Channel     string        `json:"channel,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	DurationMs  int64         `json:"durationMs"`
	Overall     Overall       `json:"overall"`
	Probes      []ProbeResult `json:"probes"`
	Remediation []string      `json:"remediation"`
}

// Counts returns the number of errored and warning probes.
func (r Report) Counts() (errs, warnings int) {
	for _, p := range r.Probes {
		switch p.Status {
		case StatusError:
			errs++
		case StatusWarning:
			warnings++
		}
	}
	return errs, warnings
}
