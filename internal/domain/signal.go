package domain

// Signal is a symbolic status marker the pipeline attaches to the triggering
// message. Platforms render it through their own lookup table.
type Signal string

const (
	SignalContextGathering Signal = "phase-context-gathering"
	SignalEnrichment       Signal = "phase-enrichment"
	SignalProcessing       Signal = "phase-processing"
	SignalValidation       Signal = "phase-validation"
	SignalRequestComplete  Signal = "phase-request-complete"
	SignalRequestFailed    Signal = "phase-request-failed"
)

// Signals lists every status signal in pipeline order.
func Signals() []Signal {
	return []Signal{
		SignalContextGathering,
		SignalEnrichment,
		SignalProcessing,
		SignalValidation,
		SignalRequestComplete,
		SignalRequestFailed,
	}
}

// ResultStatus tags a ProcessingResult.
type ResultStatus string

const (
	ResultOK     ResultStatus = "ok"
	ResultFailed ResultStatus = "failed"
)

// ProcessingResult is the output of the response planner and the only input
// that drives the validator's branch.
type ProcessingResult struct {
	Status  ResultStatus
	Payload string
}

// OK reports whether the result carries a usable payload.
func (r ProcessingResult) OK() bool { return r.Status == ResultOK }
