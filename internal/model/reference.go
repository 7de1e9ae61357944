// Package model defines the reference, candidate and verification types shared
// by the matching and verification packages.
package model

// Reference is a bibliographic reference produced by the extractor. The core
// reads it but never mutates it.
type Reference struct {
	ID       string   `json:"id"`
	Metadata Metadata `json:"metadata"`
}

// Candidate is a record returned by a search provider for a reference.
type Candidate struct {
	ID       string   `json:"id"`
	Source   string   `json:"source"`
	Metadata Metadata `json:"metadata"`
	URL      string   `json:"url,omitempty"`
}

// FieldDetail is the 0-100 score of one compared field.
type FieldDetail struct {
	Field string `json:"field"`
	Score int    `json:"score"`
}

// MatchDetails is the outcome of comparing one reference with one candidate.
type MatchDetails struct {
	FieldDetails []FieldDetail `json:"field_details"`
	OverallScore int           `json:"overall_score"`
}

// FieldScore returns the score recorded for field, if it was compared.
func (d MatchDetails) FieldScore(field string) (int, bool) {
	for _, fd := range d.FieldDetails {
		if fd.Field == field {
			return fd.Score, true
		}
	}
	return 0, false
}
