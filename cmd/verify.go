package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeffnawroth/source-taster/internal/ingest"
	"github.com/jeffnawroth/source-taster/internal/model"
	"github.com/jeffnawroth/source-taster/internal/report"
	"github.com/jeffnawroth/source-taster/internal/resilience"
	"github.com/jeffnawroth/source-taster/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify references source by source",
	Long: `Searches every reference in each configured source, in priority order, and
re-scores it after every search. A reference that reaches the early-termination
threshold is not searched in later sources.

Sources are fixture files mapping reference ids to candidate lists. They come
from sources.fixtures in the config file or from repeated --source flags.

Examples:
  verify --references refs.json --source crossref=crossref.json --source openalex=openalex.json
  verify --references refs.csv --sources openalex,crossref --threshold 90
  verify --references refs.json --failure-policy abort --format json --output states.json`,
	RunE: runVerify,
}

func init() {
	f := verifyCmd.Flags()
	f.String("references", "", "references file (.json, .csv, .tsv or .xlsx)")
	f.StringArray("source", nil, "fixture source as name=path (repeatable)")
	f.String("sources", "", "comma-separated source priority (default: config, then alphabetical)")
	f.Int("threshold", -1, "early-termination score 0-100 (default from config)")
	f.Bool("no-early-termination", false, "search every source for every reference")
	f.String("failure-policy", "", "isolate or abort (default from config)")
	f.String("format", "table", "output format: table, csv, json or xlsx")
	f.String("output", "", "output file path (default: stdout)")
	f.Bool("progress", false, "show a progress spinner (best combined with --output)")
	_ = verifyCmd.MarkFlagRequired("references")

	rootCmd.AddCommand(verifyCmd)
}

// applyVerifyOverrides copies verify flags into the loaded config.
func applyVerifyOverrides(cmd *cobra.Command) {
	if v, _ := cmd.Flags().GetString("sources"); v != "" {
		cfg.Verify.Sources = splitAndTrim(v)
	}
	if v, _ := cmd.Flags().GetInt("threshold"); v >= 0 {
		cfg.Verify.EarlyTermination.Threshold = v
	}
	if v, _ := cmd.Flags().GetBool("no-early-termination"); v {
		cfg.Verify.EarlyTermination.Enabled = false
	}
	if v, _ := cmd.Flags().GetString("failure-policy"); v != "" {
		cfg.Verify.FailurePolicy = v
	}
}

func runVerify(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applyVerifyOverrides(cmd)
	if err := cfg.Validate("verify"); err != nil {
		return err
	}

	log := zap.L().With(zap.String("command", "verify"))

	settings, err := matchingSettings(cmd)
	if err != nil {
		return err
	}
	cfg.Matching = settings

	formatFlag, _ := cmd.Flags().GetString("format")
	format, err := report.ParseFormat(formatFlag)
	if err != nil {
		return err
	}
	refsPath, _ := cmd.Flags().GetString("references")
	outputPath, _ := cmd.Flags().GetString("output")
	overrides, _ := cmd.Flags().GetStringArray("source")

	refs, err := ingest.LoadReferences(ctx, refsPath)
	if err != nil {
		return err
	}

	env, err := initSources(ctx, cfg, overrides)
	if err != nil {
		return err
	}
	defer env.Close()

	providers := env.Providers(cfg.Verify.Sources)
	if len(providers) == 0 {
		return eris.New("verify: no sources configured (use --source name=path or sources.fixtures)")
	}

	opts, err := verifyOptions(cfg)
	if err != nil {
		return err
	}
	var prog *progress
	if v, _ := cmd.Flags().GetBool("progress"); v {
		prog = startProgress(len(refs))
	}
	opts = append(opts, verify.WithObserver(func(s model.VerificationState) {
		log.Debug("reference state",
			zap.String("reference", s.ReferenceID),
			zap.String("phase", string(s.Phase)),
			zap.String("source", s.Source),
			zap.Int("score", s.Score()),
		)
		if prog != nil {
			prog.observe(s)
		}
	}))

	log.Info("verifying references",
		zap.Int("references", len(refs)),
		zap.Strings("sources", providerNames(providers)),
		zap.Bool("early_termination", cfg.Verify.EarlyTermination.Enabled),
		zap.Int("threshold", cfg.Verify.EarlyTermination.Threshold),
	)

	orch := verify.New(providers, opts...)
	runErr := orch.Verify(ctx, refs)
	if runErr != nil {
		log.Error("verification failed", zap.Error(runErr))
	}
	if ctx.Err() != nil {
		log.Warn("verification interrupted, writing partial results")
	}

	if env.Breakers != nil {
		for name, st := range env.Breakers.States() {
			if st != resilience.CircuitClosed {
				log.Warn("source circuit not closed", zap.String("source", name), zap.String("state", st.String()))
			}
		}
	}

	states := orch.States()
	threshold := cfg.Verify.EarlyTermination.Threshold
	summary := report.Summarize(states, threshold)
	if prog != nil {
		prog.stop(summary, runErr != nil)
	}

	w, closeOut, err := openOutput(outputPath)
	if err != nil {
		return err
	}
	if err := report.WriteStates(w, format, states); err != nil {
		_ = closeOut()
		return err
	}
	if err := closeOut(); err != nil {
		return eris.Wrap(err, "verify: close output")
	}

	if err := report.WriteSummary(os.Stderr, summary); err != nil {
		return err
	}
	return runErr
}
