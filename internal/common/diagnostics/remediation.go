package diagnostics

type remediationKey struct {
	probe  string
	status ProbeStatus
}

var remediations = map[remediationKey]string{
	{ProbeConnectivity, StatusError}:   "Check that the workflow instance is running and reachable from this network.",
	{ProbeConnectivity, StatusWarning}: "The host answers but the webhook path looks unregistered; verify the path and that the workflow is active.",
	{ProbeCORS, StatusError}:           "Configure CORS headers (Access-Control-Allow-Origin, -Methods, -Headers) on the workflow instance.",
	{ProbeCORS, StatusWarning}:         "Configure CORS headers (Access-Control-Allow-Origin, -Methods, -Headers) on the workflow instance.",
	{ProbePost, StatusError}:           "Activate the workflow and make sure its webhook node accepts POST requests with a JSON body.",
	{ProbePost, StatusWarning}:         "Make the workflow respond with JSON (for example {\"aiResponse\": \"...\"}) instead of an HTML page or empty body.",
	{ProbeURL, StatusError}:            "Enter a complete webhook URL including scheme and host.",
	{ProbeURL, StatusWarning}:          "Use the https production webhook URL; its path normally contains /webhook/.",
}

// Overall collapses probe results: more than one error is critical, one
// error or more than one warning is degraded.
func OverallFor(probes []ProbeResult) Overall {
	errs, warnings := Report{Probes: probes}.Counts()
	switch {
	case errs > 1:
		return OverallCritical
	case errs == 1 || warnings > 1:
		return OverallDegraded
	default:
		return OverallHealthy
	}
}

// Remediation lists the fixed hints for every failed probe, deduplicated,
// in probe order.
func Remediation(probes []ProbeResult) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, p := range probes {
		hint, ok := remediations[remediationKey{p.Name, p.Status}]
		if !ok || seen[hint] {
			continue
		}
		seen[hint] = true
		out = append(out, hint)
	}
	return out
}
