package entities

// PluginHealth is the outcome of one health probe.
type PluginHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// HealthyStatus reports a passing probe.
func HealthyStatus() PluginHealth {
	return PluginHealth{Healthy: true}
}

// DegradedStatus reports a failing probe with an explanation.
func DegradedStatus(message string) PluginHealth {
	return PluginHealth{Healthy: false, Message: message}
}
