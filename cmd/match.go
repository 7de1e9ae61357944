package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeffnawroth/source-taster/internal/ingest"
	"github.com/jeffnawroth/source-taster/internal/matching"
	"github.com/jeffnawroth/source-taster/internal/report"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Score references against known candidates",
	Long: `Ranks every candidate of every reference by weighted field similarity.

References come from a JSON, CSV, TSV or XLSX file. Candidates come from a JSON
object keyed by reference id: {"<referenceId>": [candidate, ...]}.

Examples:
  match --references refs.json --candidates candidates.json
  match --references refs.xlsx --candidates candidates.json --format xlsx --output matches.xlsx
  match --references refs.csv --candidates candidates.json --fields title=60,author=40 --top 1`,
	RunE: runMatch,
}

func init() {
	f := matchCmd.Flags()
	f.String("references", "", "references file (.json, .csv, .tsv or .xlsx)")
	f.String("candidates", "", "candidates JSON keyed by reference id")
	f.Int("top", 0, "keep only the N best candidates per reference (0 = all)")
	f.Int("concurrency", 0, "references scored in parallel (default from config)")
	f.String("format", "table", "output format: table, csv, json or xlsx")
	f.String("output", "", "output file path (default: stdout)")
	_ = matchCmd.MarkFlagRequired("references")
	_ = matchCmd.MarkFlagRequired("candidates")

	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if v, _ := cmd.Flags().GetInt("concurrency"); v > 0 {
		cfg.Batch.Concurrency = v
	}
	if err := cfg.Validate("match"); err != nil {
		return err
	}

	log := zap.L().With(zap.String("command", "match"))

	settings, err := matchingSettings(cmd)
	if err != nil {
		return err
	}
	formatFlag, _ := cmd.Flags().GetString("format")
	format, err := report.ParseFormat(formatFlag)
	if err != nil {
		return err
	}

	refsPath, _ := cmd.Flags().GetString("references")
	candsPath, _ := cmd.Flags().GetString("candidates")
	top, _ := cmd.Flags().GetInt("top")
	outputPath, _ := cmd.Flags().GetString("output")

	refs, err := ingest.LoadReferences(ctx, refsPath)
	if err != nil {
		return err
	}
	cands, err := ingest.LoadCandidates(candsPath)
	if err != nil {
		return err
	}

	items := make([]matching.BatchItem, 0, len(refs))
	for _, ref := range refs {
		items = append(items, matching.BatchItem{Reference: ref, Candidates: cands[ref.ID]})
	}

	log.Info("scoring references",
		zap.Int("references", len(items)),
		zap.Int("concurrency", cfg.Batch.Concurrency),
	)
	results, err := matching.EvaluateBatch(ctx, items, settings, cfg.Batch.Concurrency)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(results))
	byRef := make(map[string][]matching.CandidateResult, len(results))
	for _, r := range results {
		ranked := r.Results
		if top > 0 && len(ranked) > top {
			ranked = ranked[:top]
		}
		ids = append(ids, r.ReferenceID)
		byRef[r.ReferenceID] = ranked
	}

	w, closeOut, err := openOutput(outputPath)
	if err != nil {
		return err
	}
	if err := report.WriteMatches(w, format, report.MatchRows(ids, byRef), settings.Fields.Enabled()); err != nil {
		_ = closeOut()
		return err
	}
	return eris.Wrap(closeOut(), "match: close output")
}
