package verify

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// SearchProviderError reports that a source failed or timed out while
// searching for a reference.
type SearchProviderError struct {
	Source      string
	ReferenceID string
	Err         error
}

func (e *SearchProviderError) Error() string {
	return fmt.Sprintf("verify: source %s failed for reference %s: %v", e.Source, e.ReferenceID, e.Err)
}

func (e *SearchProviderError) Unwrap() error {
	return e.Err
}

// MatchComputationError reports a scoring failure. Scoring is total, so this
// only surfaces if a comparator panics.
type MatchComputationError struct {
	ReferenceID string
	Cause       error
}

func (e *MatchComputationError) Error() string {
	return fmt.Sprintf("verify: matching failed for reference %s: %v", e.ReferenceID, e.Cause)
}

func (e *MatchComputationError) Unwrap() error {
	return e.Cause
}

// errCancelled unwinds a run once cancellation is observed. Verify converts
// it into cancelled states and never returns it.
var errCancelled = eris.New("verify: run cancelled")

// FailurePolicy decides how far a source failure reaches.
type FailurePolicy string

const (
	// FailureIsolate records the failure on the affected reference and keeps
	// going. A reference ends in error only if every source it tried failed.
	FailureIsolate FailurePolicy = "isolate"
	// FailureAbort stops the run at the first failure and marks every
	// unfinished reference as error.
	FailureAbort FailurePolicy = "abort"
)

// ParseFailurePolicy accepts "isolate" or "abort"; empty means isolate.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return FailureIsolate, nil
	case FailureIsolate, FailureAbort:
		return p, nil
	default:
		return "", eris.Errorf("verify: unknown failure policy %q", s)
	}
}
