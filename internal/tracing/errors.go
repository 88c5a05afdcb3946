package tracing

import "fmt"

// PhaseError is a non zero exit code of a transaction phase.
type PhaseError struct {
	Phase   Phase
	Code    int32
	Ignored bool
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%d code on %s phase", e.Code, e.Phase)
}

// ConfigurationError is returned before any query when tracing options conflict.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid tracing configuration: " + e.Reason
}

// ReportedFailure is returned by Tracer.Trace when the trace tree contains an
// error which was not allowed. Path is the first failing branch from the root.
type ReportedFailure struct {
	Phase  Phase
	Code   int32
	Path   []PathEntry
	Report string
}

func (e *ReportedFailure) Error() string {
	return fmt.Sprintf("reverted with %d code on %s phase", e.Code, e.Phase)
}
