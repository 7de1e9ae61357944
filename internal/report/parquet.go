package report

import (
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rotisserie/eris"

	"github.com/jeffnawroth/source-taster/internal/model"
)

// StateRecord is the Parquet row for a verification state. A reference
// without a score has HasScore false.
type StateRecord struct {
	ReferenceID     string   `parquet:"reference_id"`
	Phase           string   `parquet:"phase"`
	HasScore        bool     `parquet:"has_score"`
	BestScore       int64    `parquet:"best_score"`
	BestCandidateID string   `parquet:"best_candidate_id"`
	BestSource      string   `parquet:"best_source"`
	SourcesTried    []string `parquet:"sources_tried,list"`
	UpdatedAt       string   `parquet:"updated_at"`
	Error           string   `parquet:"error"`
}

// FieldScoreRecord is one compared field inside a MatchRecord.
type FieldScoreRecord struct {
	Field string `parquet:"field"`
	Score int64  `parquet:"score"`
}

// MatchRecord is the Parquet row for a ranked candidate.
type MatchRecord struct {
	ReferenceID string             `parquet:"reference_id"`
	Rank        int64              `parquet:"rank"`
	CandidateID string             `parquet:"candidate_id"`
	Source      string             `parquet:"source"`
	Score       int64              `parquet:"score"`
	Fields      []FieldScoreRecord `parquet:"fields"`
}

func stateRecords(states []model.VerificationState) []StateRecord {
	out := make([]StateRecord, 0, len(states))
	for _, st := range states {
		rec := StateRecord{
			ReferenceID:     st.ReferenceID,
			Phase:           string(st.Phase),
			BestCandidateID: st.BestCandidateID,
			BestSource:      st.BestSource,
			SourcesTried:    st.SourcesTried,
			Error:           st.Error,
		}
		if st.BestScore != nil {
			rec.HasScore = true
			rec.BestScore = int64(*st.BestScore)
		}
		if !st.UpdatedAt.IsZero() {
			rec.UpdatedAt = st.UpdatedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, rec)
	}
	return out
}

func matchRecords(rows []MatchRow) []MatchRecord {
	out := make([]MatchRecord, 0, len(rows))
	for _, r := range rows {
		rec := MatchRecord{
			ReferenceID: r.ReferenceID,
			Rank:        int64(r.Rank),
			CandidateID: r.CandidateID,
			Source:      r.Source,
			Score:       int64(r.MatchDetails.OverallScore),
		}
		for _, fd := range r.MatchDetails.FieldDetails {
			rec.Fields = append(rec.Fields, FieldScoreRecord{Field: fd.Field, Score: int64(fd.Score)})
		}
		out = append(out, rec)
	}
	return out
}

func writeParquet[T any](w io.Writer, rows []T) error {
	pw := parquet.NewGenericWriter[T](w)
	if _, err := pw.Write(rows); err != nil {
		_ = pw.Close()
		return eris.Wrap(err, "report: write parquet rows")
	}
	if err := pw.Close(); err != nil {
		return eris.Wrap(err, "report: close parquet writer")
	}
	return nil
}
