package types

import "fmt"

// OutcomeKind tags the result of copying one unit.
type OutcomeKind int

const (
	// OutcomeSuccess means the unit was read on the first attempt.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeSuccessAfterRetry means the unit was read after one or more
	// controller resets.
	OutcomeSuccessAfterRetry
	// OutcomeHardFailure means every attempt failed. The unit's bytes were
	// still written to keep the image aligned.
	OutcomeHardFailure
)

// String returns the short tag used in logs and reports.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "ok"
	case OutcomeSuccessAfterRetry:
		return "retry"
	case OutcomeHardFailure:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the tagged result for one unit.
type Outcome struct {
	Kind    OutcomeKind
	Retries int
}

// Success returns a first-attempt success.
func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// SuccessAfterRetry returns a success that needed the given number of retries.
func SuccessAfterRetry(retries int) Outcome {
	return Outcome{Kind: OutcomeSuccessAfterRetry, Retries: retries}
}

// HardFailure returns an exhausted-retries failure.
func HardFailure(retries int) Outcome {
	return Outcome{Kind: OutcomeHardFailure, Retries: retries}
}

// OK reports whether the unit's data was actually recovered.
func (o Outcome) OK() bool {
	return o.Kind != OutcomeHardFailure
}
