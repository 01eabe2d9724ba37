package batch

import "fmt"

// Mode is how a batch run ended.
type Mode string

const (
	// ModeCompleted means every selected item was attempted.
	ModeCompleted Mode = "completed"

	// ModeQuotaStopped means the AI quota was exhausted and the remaining
	// items were failed without being attempted.
	ModeQuotaStopped Mode = "quota-stopped"

	// ModeInterrupted means the run was cut short by an uncategorized
	// failure or a cancelled context.
	ModeInterrupted Mode = "interrupted"
)

// Report contains statistics from a batch run.
type Report struct {
	Success   bool   `json:"success"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	LastError string `json:"last_error,omitempty"`
	Mode      Mode   `json:"mode"`
}

// Summary returns a human-readable summary of the batch report.
func (r *Report) Summary() string {
	s := fmt.Sprintf(
		"Batch %s: %d of %d processed, %d failed, %d skipped",
		r.Mode, r.Processed, r.Total, r.Failed, r.Skipped,
	)
	if r.LastError != "" {
		s += "\nLast error: " + r.LastError
	}
	return s
}
