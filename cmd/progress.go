package main

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/jeffnawroth/source-taster/internal/model"
	"github.com/jeffnawroth/source-taster/internal/report"
)

// progress renders a terminal spinner that counts finished references.
// observe runs on the verification goroutine only.
type progress struct {
	spinner  *pterm.SpinnerPrinter
	total    int
	finished map[string]bool
}

func startProgress(total int) *progress {
	p := &progress{total: total, finished: make(map[string]bool, total)}
	sp, err := pterm.DefaultSpinner.
		WithStyle(pterm.NewStyle(pterm.FgCyan)).
		Start(p.text(""))
	if err == nil {
		p.spinner = sp
	}
	return p
}

func (p *progress) text(activity string) string {
	msg := fmt.Sprintf("Verifying references %d/%d", len(p.finished), p.total)
	if activity != "" {
		msg += " (" + activity + ")"
	}
	return msg
}

func (p *progress) observe(s model.VerificationState) {
	var activity string
	switch {
	case s.Phase.Terminal():
		p.finished[s.ReferenceID] = true
	case s.Phase == model.PhaseSearching:
		activity = s.ReferenceID + " in " + pterm.Cyan(s.Source)
	default:
		return
	}
	if p.spinner != nil {
		p.spinner.UpdateText(p.text(activity))
	}
}

func (p *progress) stop(sum report.Summary, failed bool) {
	if p.spinner == nil {
		return
	}
	msg := fmt.Sprintf("%d verified, %d unmatched, %d errors, %d cancelled",
		sum.Verified, sum.Unmatched, sum.Errors, sum.Cancelled)
	if failed {
		p.spinner.Fail(msg)
		return
	}
	p.spinner.Success(msg)
}
