package pipeline

import "github.com/mimi-ai/mimi/pkg/types"

// Batch is everything one Process run produced, ready for a single gateway
// write. Memories are ordered raw-first then by step configuration order;
// entities are ordered by first observation within the run.
type Batch struct {
	Memories []types.Memory
	Entities []types.Entity

	// Report records per-step outcomes so partial success is surfaced
	// honestly instead of being silently upgraded to full success.
	Report Report
}

// Report summarizes what happened during one pipeline run.
type Report struct {
	// EntityExtraction is the outcome of the mandatory extraction step.
	EntityExtraction StepOutcome

	// Steps holds one outcome per configured derivation step, in
	// configuration order, regardless of success.
	Steps []StepOutcome
}

// StepOutcome is the result of one pipeline step.
type StepOutcome struct {
	// Name is the step name ("entity-extraction" for the mandatory step).
	Name string

	// Err is nil on success. Failed steps contribute nothing to the batch
	// but never abort the run.
	Err error
}

// Succeeded reports whether the step completed without error.
func (o StepOutcome) Succeeded() bool { return o.Err == nil }

// FailedSteps returns the names of all steps that failed, extraction included.
func (r Report) FailedSteps() []string {
	var failed []string
	if !r.EntityExtraction.Succeeded() {
		failed = append(failed, r.EntityExtraction.Name)
	}
	for _, s := range r.Steps {
		if !s.Succeeded() {
			failed = append(failed, s.Name)
		}
	}
	return failed
}
