package model

import "time"

// Phase is the verification state of a single reference.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSearching Phase = "searching"
	PhaseMatching  Phase = "matching"
	PhaseDone      Phase = "done"
	PhaseError     Phase = "error"
	PhaseCancelled Phase = "cancelled"
)

// Terminal reports whether no further transitions happen from p.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseDone, PhaseError, PhaseCancelled:
		return true
	default:
		return false
	}
}

// VerificationState is the per-reference progress record of a verification run.
type VerificationState struct {
	ReferenceID     string    `json:"reference_id"`
	Phase           Phase     `json:"phase"`
	Source          string    `json:"source,omitempty"`
	BestScore       *int      `json:"best_score,omitempty"`
	BestCandidateID string    `json:"best_candidate_id,omitempty"`
	BestSource      string    `json:"best_source,omitempty"`
	SourcesTried    []string  `json:"sources_tried,omitempty"`
	Error           string    `json:"error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Score returns the best score, or 0 when nothing was scored.
func (s VerificationState) Score() int {
	if s.BestScore == nil {
		return 0
	}
	return *s.BestScore
}
