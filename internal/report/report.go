// Package report renders verification progress and match results as an
// aligned text table, CSV, JSON, an XLSX workbook or a Parquet file.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/jeffnawroth/source-taster/internal/matching"
	"github.com/jeffnawroth/source-taster/internal/model"
)

// Format selects an output encoding.
type Format string

const (
	FormatTable   Format = "table"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts table, csv, json, xlsx or parquet; empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatCSV, FormatJSON, FormatXLSX, FormatParquet:
		return f, nil
	default:
		return "", eris.Errorf("report: unknown format %q (want table, csv, json, xlsx or parquet)", s)
	}
}

// MatchRow is one ranked candidate for a reference.
type MatchRow struct {
	ReferenceID string `json:"reference_id"`
	Rank        int    `json:"rank"`
	matching.CandidateResult
}

// MatchRows flattens per-reference rankings into rows, keeping the order of
// refIDs and the ranking within each reference.
func MatchRows(refIDs []string, results map[string][]matching.CandidateResult) []MatchRow {
	var rows []MatchRow
	for _, id := range refIDs {
		for i, r := range results[id] {
			rows = append(rows, MatchRow{ReferenceID: id, Rank: i + 1, CandidateResult: r})
		}
	}
	return rows
}

// Summary counts references by outcome.
type Summary struct {
	Total     int `json:"total"`
	Verified  int `json:"verified"`
	Unmatched int `json:"unmatched"`
	Errors    int `json:"errors"`
	Cancelled int `json:"cancelled"`
	Pending   int `json:"pending"`
}

// Summarize counts states; a done reference is verified when its best score
// reaches threshold.
func Summarize(states []model.VerificationState, threshold int) Summary {
	s := Summary{Total: len(states)}
	for _, st := range states {
		switch st.Phase {
		case model.PhaseDone:
			if st.Score() >= threshold {
				s.Verified++
			} else {
				s.Unmatched++
			}
		case model.PhaseError:
			s.Errors++
		case model.PhaseCancelled:
			s.Cancelled++
		default:
			s.Pending++
		}
	}
	return s
}

// WriteSummary prints a summary as aligned key/value lines.
func WriteSummary(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "References:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(tw, "Verified:\t%d\n", s.Verified)
	_, _ = fmt.Fprintf(tw, "Unmatched:\t%d\n", s.Unmatched)
	_, _ = fmt.Fprintf(tw, "Errors:\t%d\n", s.Errors)
	if s.Cancelled > 0 {
		_, _ = fmt.Fprintf(tw, "Cancelled:\t%d\n", s.Cancelled)
	}
	if s.Pending > 0 {
		_, _ = fmt.Fprintf(tw, "Pending:\t%d\n", s.Pending)
	}
	return eris.Wrap(tw.Flush(), "report: flush summary")
}

// WriteStates renders verification states.
func WriteStates(w io.Writer, f Format, states []model.VerificationState) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, states)
	case FormatParquet:
		return writeParquet(w, stateRecords(states))
	}
	t := table{
		name:   "Verification",
		header: []string{"REFERENCE", "PHASE", "SCORE", "CANDIDATE", "SOURCE", "SOURCES_TRIED", "UPDATED", "ERROR"},
	}
	for _, st := range states {
		score := ""
		if st.BestScore != nil {
			score = strconv.Itoa(*st.BestScore)
		}
		updated := ""
		if !st.UpdatedAt.IsZero() {
			updated = st.UpdatedAt.UTC().Format(time.RFC3339)
		}
		t.rows = append(t.rows, []string{
			st.ReferenceID,
			string(st.Phase),
			score,
			st.BestCandidateID,
			st.BestSource,
			strings.Join(st.SourcesTried, ","),
			updated,
			st.Error,
		})
	}
	return t.write(w, f)
}

// WriteMatches renders ranked candidates with one score column per field.
// Field columns follow fields; a blank cell means the field was not compared.
func WriteMatches(w io.Writer, f Format, rows []MatchRow, fields []string) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, rows)
	case FormatParquet:
		return writeParquet(w, matchRecords(rows))
	}
	t := table{
		name:   "Matches",
		header: append([]string{"REFERENCE", "RANK", "CANDIDATE", "SOURCE", "SCORE"}, upper(fields)...),
	}
	for _, r := range rows {
		row := []string{
			r.ReferenceID,
			strconv.Itoa(r.Rank),
			r.CandidateID,
			r.Source,
			strconv.Itoa(r.MatchDetails.OverallScore),
		}
		for _, field := range fields {
			if score, ok := r.MatchDetails.FieldScore(field); ok {
				row = append(row, strconv.Itoa(score))
			} else {
				row = append(row, "")
			}
		}
		t.rows = append(t.rows, row)
	}
	return t.write(w, f)
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "report: encode json")
}

type table struct {
	name   string
	header []string
	rows   [][]string
}

func (t table) write(w io.Writer, f Format) error {
	switch f {
	case FormatTable, "":
		return t.writeText(w)
	case FormatCSV:
		return t.writeCSV(w)
	case FormatXLSX:
		return t.writeXLSX(w)
	default:
		return eris.Errorf("report: unsupported format %q", f)
	}
}

func (t table) writeText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(t.header, "\t"))
	rule := make([]string, len(t.header))
	for i, h := range t.header {
		rule[i] = strings.Repeat("-", len(h))
	}
	_, _ = fmt.Fprintln(tw, strings.Join(rule, "\t"))
	for _, row := range t.rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return eris.Wrap(tw.Flush(), "report: flush table")
}

func (t table) writeCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(t.header))
	for i, h := range t.header {
		header[i] = strings.ToLower(h)
	}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	if err := cw.WriteAll(t.rows); err != nil {
		return eris.Wrap(err, "report: write csv rows")
	}
	return nil
}

func (t table) writeXLSX(w io.Writer) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(t.name)
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	head := sheet.AddRow()
	for _, h := range t.header {
		cell := head.AddCell()
		cell.SetString(h)
		cell.GetStyle().Font.Bold = true
	}
	for _, data := range t.rows {
		row := sheet.AddRow()
		for _, v := range data {
			cell := row.AddCell()
			if n, err := strconv.Atoi(v); err == nil {
				cell.SetInt(n)
			} else {
				cell.SetString(v)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write xlsx")
	}
	return nil
}
