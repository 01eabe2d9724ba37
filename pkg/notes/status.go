package notes

// Status is the processing status of an item.
type Status string

const (
	// StatusProcessing is the initial status of every item.
	StatusProcessing Status = "processing"

	// StatusReady is terminal success: analysis, embedding and connections
	// have all been written.
	StatusReady Status = "ready"

	// StatusError is terminal failure that may be retried.
	StatusError Status = "error"
)

// Valid reports whether s is one of the three item statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusReady, StatusError:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the processor may move an item from s to
// the given status.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusProcessing:
		return to == StatusReady || to == StatusError
	case StatusError:
		return to == StatusProcessing
	default:
		return false
	}
}

// Step is a persisted marker of the last completed pipeline step.
type Step string

const (
	StepNone                Step = ""
	StepContentAssembled    Step = "content-assembled"
	StepAnalyzed            Step = "analyzed"
	StepEmbedded            Step = "embedded"
	StepConnectionsComputed Step = "connections-computed"
	StepFinalized           Step = "finalized"
)

var stepOrder = map[Step]int{
	StepNone:                0,
	StepContentAssembled:    1,
	StepAnalyzed:            2,
	StepEmbedded:            3,
	StepConnectionsComputed: 4,
	StepFinalized:           5,
}

// Valid reports whether s is a known step marker.
func (s Step) Valid() bool {
	_, ok := stepOrder[s]
	return ok
}

// Reached reports whether a run at step s has completed target.
// Unknown markers count as StepNone.
func (s Step) Reached(target Step) bool {
	return stepOrder[s] >= stepOrder[target]
}

// Resumable reports whether a run stopped part way through the pipeline.
func (s Step) Resumable() bool {
	return s != StepNone && s != StepFinalized && s.Valid()
}
