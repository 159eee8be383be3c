package schema

import "fmt"

// Status is the tagged result state of a single pipeline stage.
type Status int

const (
	// StatusSuccess means the stage completed without reservation.
	StatusSuccess Status = iota

	// StatusWarning means the stage degraded but the pipeline continues.
	StatusWarning

	// StatusFatal means the stage failed and the pipeline must halt.
	StatusFatal
)

// String implements [fmt.Stringer].
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusWarning:
		return "warning"
	case StatusFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of a single pipeline stage. The driving
// pipeline halts only on [StatusFatal] and accumulates all other outcomes for
// final reporting, rather than short-circuiting on the first degradation.
type Outcome struct {
	Stage  string
	Status Status
	Reason string
	Err    error
}

// Success returns a succeeded [Outcome] for a stage.
func Success(stage string) Outcome {
	return Outcome{Stage: stage, Status: StatusSuccess}
}

// Warning returns a degraded-but-continuing [Outcome] for a stage.
func Warning(stage string, reason string, err error) Outcome {
	return Outcome{Stage: stage, Status: StatusWarning, Reason: reason, Err: err}
}

// Fatal returns a pipeline-halting [Outcome] for a stage.
func Fatal(stage string, reason string, err error) Outcome {
	return Outcome{Stage: stage, Status: StatusFatal, Reason: reason, Err: err}
}

// String implements [fmt.Stringer].
func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s: %s: %s (%v)", o.Stage, o.Status, o.Reason, o.Err)
	}
	if o.Reason != "" {
		return fmt.Sprintf("%s: %s: %s", o.Stage, o.Status, o.Reason)
	}

	return fmt.Sprintf("%s: %s", o.Stage, o.Status)
}

// Warnings filters a slice of [Outcome] down to the degraded stages.
func Warnings(outcomes []Outcome) []Outcome {
	var warnings []Outcome

	for _, o := range outcomes {
		if o.Status == StatusWarning {
			warnings = append(warnings, o)
		}
	}

	return warnings
}
