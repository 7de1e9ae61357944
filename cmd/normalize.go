package main

import (
	"bufio"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/jeffnawroth/source-taster/internal/normalize"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [text...]",
	Short: "Print text after the configured normalization rules",
	Long: `Applies the normalization pipeline used before comparison. Each argument is
normalized on its own line; without arguments every stdin line is.

Examples:
  normalize --rules lowercase,punctuation "Deep Learning."
  echo "Müller, Jürgen" | normalize --rules umlauts,punctuation,lowercase`,
	RunE: runNormalize,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	s, err := applyMatchingOverrides(cmd, cfg.Matching)
	if err != nil {
		return err
	}
	if _, err := normalize.ParseRules(s.Rules); err != nil {
		return err
	}
	p := s.Pipeline()
	out := cmd.OutOrStdout()

	if len(args) > 0 {
		for _, a := range args {
			_, _ = fmt.Fprintln(out, p.Apply(a))
		}
		return nil
	}

	sc := bufio.NewScanner(cmd.InOrStdin())
	for sc.Scan() {
		_, _ = fmt.Fprintln(out, p.Apply(sc.Text()))
	}
	return eris.Wrap(sc.Err(), "normalize: read stdin")
}
