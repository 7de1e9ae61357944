package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/jeffnawroth/source-taster/internal/matching"
	"github.com/jeffnawroth/source-taster/internal/model"
)

func intPtr(n int) *int { return &n }

var states = []model.VerificationState{
	{
		ReferenceID:     "r1",
		Phase:           model.PhaseDone,
		BestScore:       intPtr(97),
		BestCandidateID: "W1",
		BestSource:      "openalex",
		SourcesTried:    []string{"crossref", "openalex"},
		UpdatedAt:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	},
	{ReferenceID: "r2", Phase: model.PhaseDone, BestScore: intPtr(40), SourcesTried: []string{"crossref"}},
	{ReferenceID: "r3", Phase: model.PhaseError, Error: "verify: source crossref failed"},
	{ReferenceID: "r4", Phase: model.PhaseCancelled},
}

func sampleRows() []MatchRow {
	return MatchRows([]string{"r1", "r2"}, map[string][]matching.CandidateResult{
		"r1": {
			{CandidateID: "W1", Source: "openalex", MatchDetails: model.MatchDetails{
				FieldDetails: []model.FieldDetail{{Field: "title", Score: 100}, {Field: "author", Score: 90}},
				OverallScore: 58,
			}},
			{CandidateID: "c9", Source: "crossref", MatchDetails: model.MatchDetails{
				FieldDetails: []model.FieldDetail{{Field: "title", Score: 20}},
				OverallScore: 7,
			}},
		},
	})
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "CSV": FormatCSV, " json ": FormatJSON, "xlsx": FormatXLSX, "Parquet": FormatParquet} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	assert.Error(t, err)
}

func TestMatchRows(t *testing.T) {
	rows := sampleRows()
	require.Len(t, rows, 2)
	assert.Equal(t, "r1", rows[0].ReferenceID)
	assert.Equal(t, 1, rows[0].Rank)
	assert.Equal(t, 2, rows[1].Rank)
	assert.Equal(t, "c9", rows[1].CandidateID)
}

func TestSummarize(t *testing.T) {
	s := Summarize(append(states, model.VerificationState{ReferenceID: "r5", Phase: model.PhaseSearching}), 85)
	assert.Equal(t, Summary{Total: 5, Verified: 1, Unmatched: 1, Errors: 1, Cancelled: 1, Pending: 1}, s)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, s))
	assert.Contains(t, buf.String(), "Verified:")
	assert.Contains(t, buf.String(), "Pending:")
}

func TestWriteStates_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStates(&buf, FormatTable, states))

	out := buf.String()
	assert.Contains(t, out, "REFERENCE")
	assert.Contains(t, out, "crossref,openalex")
	assert.Contains(t, out, "2024-05-01T12:00:00Z")
	assert.Contains(t, out, "cancelled")
}

func TestWriteStates_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStates(&buf, FormatCSV, states))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "reference", records[0][0])
	assert.Equal(t, []string{"r1", "done", "97", "W1", "openalex", "crossref,openalex", "2024-05-01T12:00:00Z", ""}, records[1])
	assert.Equal(t, "", records[4][2])
}

func TestWriteStates_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStates(&buf, FormatJSON, states))

	var decoded []model.VerificationState
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 4)
	assert.Equal(t, 97, decoded[0].Score())
	assert.Nil(t, decoded[3].BestScore)
}

func TestWriteMatches_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatches(&buf, FormatCSV, sampleRows(), []string{"title", "author"}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"reference", "rank", "candidate", "source", "score", "title", "author"}, records[0])
	assert.Equal(t, []string{"r1", "1", "W1", "openalex", "58", "100", "90"}, records[1])
	assert.Equal(t, []string{"r1", "2", "c9", "crossref", "7", "20", ""}, records[2])
}

func TestWriteMatches_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatches(&buf, FormatJSON, sampleRows(), nil))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "W1", decoded[0]["candidate_id"])
	assert.EqualValues(t, 1, decoded[0]["rank"])
}

func TestWriteMatches_XLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatches(&buf, FormatXLSX, sampleRows(), []string{"title"}))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet, ok := f.Sheet["Matches"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "CANDIDATE", sheet.Rows[0].Cells[2].String())
	assert.Equal(t, "W1", sheet.Rows[1].Cells[2].String())
	assert.Equal(t, "58", sheet.Rows[1].Cells[4].String())
}

func TestWriteStates_XLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStates(&buf, FormatXLSX, states))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	_, ok := f.Sheet["Verification"]
	assert.True(t, ok)
}

func readParquet[T any](t *testing.T, data []byte) []T {
	t.Helper()
	pf, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	reader := parquet.NewGenericReader[T](pf)
	defer reader.Close()

	var out []T
	buf := make([]T, 16)
	for {
		n, err := reader.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
	}
}

func TestWriteStates_Parquet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStates(&buf, FormatParquet, states))

	recs := readParquet[StateRecord](t, buf.Bytes())
	require.Len(t, recs, 4)
	assert.Equal(t, "r1", recs[0].ReferenceID)
	assert.True(t, recs[0].HasScore)
	assert.Equal(t, int64(97), recs[0].BestScore)
	assert.Equal(t, []string{"crossref", "openalex"}, recs[0].SourcesTried)
	assert.Equal(t, "2024-05-01T12:00:00Z", recs[0].UpdatedAt)
	assert.Equal(t, "error", recs[2].Phase)
	assert.False(t, recs[3].HasScore)
}

func TestWriteMatches_Parquet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatches(&buf, FormatParquet, sampleRows(), []string{"title"}))

	recs := readParquet[MatchRecord](t, buf.Bytes())
	require.Len(t, recs, 2)
	assert.Equal(t, "W1", recs[0].CandidateID)
	assert.Equal(t, int64(1), recs[0].Rank)
	assert.Equal(t, int64(58), recs[0].Score)
	assert.Equal(t, []FieldScoreRecord{{Field: "title", Score: 100}, {Field: "author", Score: 90}}, recs[0].Fields)
	assert.Equal(t, int64(2), recs[1].Rank)
}
