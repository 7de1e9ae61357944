// Package verify drives the multi-source verification of references: each
// reference is searched source by source in priority order, re-scored after
// every search, and excluded from later sources once a good enough match is
// found.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jeffnawroth/source-taster/internal/matching"
	"github.com/jeffnawroth/source-taster/internal/model"
	"github.com/jeffnawroth/source-taster/internal/source"
)

// DefaultThreshold is the early-termination score used when none is set.
const DefaultThreshold = 85

// Observer receives a copy of every state change, on the run's goroutine.
type Observer func(model.VerificationState)

// Orchestrator runs verification over a priority-ordered list of providers.
// At most one run is active at a time: starting a run cancels the previous
// one and replaces its progress map.
type Orchestrator struct {
	providers      []source.Provider
	settings       matching.Settings
	earlyTerminate bool
	threshold      int
	policy         FailurePolicy
	observer       Observer
	now            func() time.Time
	ranker         func(matching.Settings) rankFunc

	mu      sync.Mutex
	current *run
}

// rankFunc orders the candidates for a reference, best first.
type rankFunc func(ref model.Reference, cands []model.Candidate) []matching.CandidateResult

func matcherRanker(s matching.Settings) rankFunc {
	return matching.NewMatcher(s).EvaluateAllCandidates
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSettings sets the matching settings. They are assumed valid.
func WithSettings(s matching.Settings) Option {
	return func(o *Orchestrator) { o.settings = s }
}

// WithEarlyTermination enables or disables stopping once a reference scores
// at least threshold.
func WithEarlyTermination(enabled bool, threshold int) Option {
	return func(o *Orchestrator) {
		o.earlyTerminate = enabled
		o.threshold = threshold
	}
}

// WithFailurePolicy selects how source failures propagate.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithObserver registers a callback for state changes.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithNow overrides the clock used for state timestamps.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator. providers must already be in priority order.
func New(providers []source.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		providers:      providers,
		settings:       matching.DefaultSettings(),
		earlyTerminate: true,
		threshold:      DefaultThreshold,
		policy:         FailureIsolate,
		now:            time.Now,
		ranker:         matcherRanker,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Verify runs a verification of refs and blocks until it finishes, fails or
// is cancelled. Cancellation, through Cancel, ctx or a newer run, is not an
// error: unfinished references become cancelled and Verify returns nil.
// Under FailureAbort the first failure is returned as a *SearchProviderError
// or *MatchComputationError.
func (o *Orchestrator) Verify(ctx context.Context, refs []model.Reference) error {
	rn, cancel := o.begin(ctx, refs)
	defer cancel()
	return rn.complete()
}

// Start begins a run in the background and returns its id at once. The
// channel receives what Verify would have returned and is then closed.
func (o *Orchestrator) Start(ctx context.Context, refs []model.Reference) (string, <-chan error) {
	rn, cancel := o.begin(ctx, refs)
	done := make(chan error, 1)
	go func() {
		defer close(done)
		defer cancel()
		done <- rn.complete()
	}()
	return rn.run.id, done
}

// begin registers a new run as the current one, cancelling its predecessor.
func (o *Orchestrator) begin(ctx context.Context, refs []model.Reference) (*runner, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(ctx)
	r := newRun(uuid.New().String(), cancel, o.now, refs)

	o.mu.Lock()
	if prev := o.current; prev != nil {
		prev.cancel()
	}
	o.current = r
	o.mu.Unlock()

	rn := &runner{
		o:    o,
		run:  r,
		ctx:  runCtx,
		rank: o.ranker(o.settings),
		log:  zap.L().With(zap.String("run", r.id)),
	}
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if seen[ref.ID] {
			rn.log.Warn("verify: duplicate reference id skipped", zap.String("reference", ref.ID))
			continue
		}
		seen[ref.ID] = true
		rn.refs = append(rn.refs, &refRun{ref: ref})
	}
	return rn, cancel
}

// Cancel stops the active run, if any.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		o.current.cancel()
	}
}

// RunID returns the id of the most recent run, or "" before the first run.
func (o *Orchestrator) RunID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return ""
	}
	return o.current.id
}

// State returns the progress of one reference in the most recent run.
func (o *Orchestrator) State(refID string) (model.VerificationState, bool) {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()
	if r == nil {
		return model.VerificationState{}, false
	}
	return r.get(refID)
}

// States returns a copy of every reference's progress in the most recent
// run, in input order.
func (o *Orchestrator) States() []model.VerificationState {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.snapshot()
}

// refRun is the runner's private bookkeeping for one reference.
type refRun struct {
	ref        model.Reference
	candidates []model.Candidate
	terminal   bool
	attempted  int
	failed     int
}

type runner struct {
	o    *Orchestrator
	run  *run
	ctx  context.Context
	rank rankFunc
	log  *zap.Logger
	refs []*refRun
}

// complete executes the run and settles its outcome.
func (rn *runner) complete() error {
	rn.log.Info("verify: run started",
		zap.Int("references", len(rn.refs)),
		zap.Int("sources", len(rn.o.providers)),
		zap.Bool("early_termination", rn.o.earlyTerminate),
		zap.Int("threshold", rn.o.threshold),
		zap.String("failure_policy", string(rn.o.policy)),
	)

	err := rn.execute()
	switch {
	case errors.Is(err, errCancelled):
		n := rn.cancelRemaining()
		rn.log.Info("verify: run cancelled", zap.Int("cancelled", n))
		return nil
	case err != nil:
		rn.log.Error("verify: run aborted", zap.Error(err))
		return err
	}
	rn.log.Info("verify: run complete")
	return nil
}

func (rn *runner) checkpoint() error {
	if rn.ctx.Err() != nil {
		return errCancelled
	}
	return nil
}

func (rn *runner) set(refID string, fn func(s *model.VerificationState)) {
	st := rn.run.update(refID, fn)
	if rn.o.observer != nil {
		rn.o.observer(st)
	}
}

func (rn *runner) execute() error {
	for _, p := range rn.o.providers {
		for _, rr := range rn.refs {
			if rr.terminal {
				continue
			}
			if err := rn.searchAndMatch(p, rr); err != nil {
				return err
			}
		}
	}

	for _, rr := range rn.refs {
		if rr.terminal {
			continue
		}
		if err := rn.finish(rr); err != nil {
			return err
		}
	}
	return nil
}

// searchAndMatch queries one source for one reference and re-scores the
// accumulated candidates.
func (rn *runner) searchAndMatch(p source.Provider, rr *refRun) error {
	if err := rn.checkpoint(); err != nil {
		return err
	}

	name := p.Name()
	rn.set(rr.ref.ID, func(s *model.VerificationState) {
		s.Phase = model.PhaseSearching
		s.Source = name
		s.SourcesTried = append(s.SourcesTried, name)
	})

	rr.attempted++
	cands, err := p.Search(rn.ctx, rr.ref)
	if cerr := rn.checkpoint(); cerr != nil {
		return cerr
	}
	if err != nil {
		rr.failed++
		return rn.sourceFailed(rr, &SearchProviderError{Source: name, ReferenceID: rr.ref.ID, Err: err})
	}
	rr.candidates = append(rr.candidates, cands...)
	if rr.failed > 0 {
		rn.set(rr.ref.ID, func(s *model.VerificationState) { s.Error = "" })
	}

	if err := rn.checkpoint(); err != nil {
		return err
	}
	best, err := rn.match(rr)
	if err != nil || rr.terminal {
		return err
	}

	if rn.o.earlyTerminate && best >= rn.o.threshold {
		rr.terminal = true
		rn.set(rr.ref.ID, func(s *model.VerificationState) {
			s.Phase = model.PhaseDone
			s.Source = ""
		})
		rn.log.Debug("verify: reference resolved early",
			zap.String("reference", rr.ref.ID),
			zap.String("source", name),
			zap.Int("score", best),
		)
	}
	return nil
}

// match scores every accumulated candidate and records the best one.
func (rn *runner) match(rr *refRun) (int, error) {
	rn.set(rr.ref.ID, func(s *model.VerificationState) {
		s.Phase = model.PhaseMatching
	})

	best, found, err := rn.evaluate(rr)
	if err != nil {
		return 0, rn.matchFailed(rr, err)
	}
	if !found {
		return 0, nil
	}

	rn.set(rr.ref.ID, func(s *model.VerificationState) {
		score := best.MatchDetails.OverallScore
		s.BestScore = &score
		s.BestCandidateID = best.CandidateID
		s.BestSource = best.Source
	})
	return best.MatchDetails.OverallScore, nil
}

// evaluate ranks the candidates, turning a comparator panic into a
// MatchComputationError.
func (rn *runner) evaluate(rr *refRun) (best matching.CandidateResult, found bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &MatchComputationError{ReferenceID: rr.ref.ID, Cause: eris.New(fmt.Sprint(p))}
		}
	}()
	best, found = matching.Best(rn.rank(rr.ref, rr.candidates))
	return best, found, nil
}

// finish closes out a reference after every source was tried.
func (rn *runner) finish(rr *refRun) error {
	if err := rn.checkpoint(); err != nil {
		return err
	}
	if !rn.o.earlyTerminate {
		if _, err := rn.match(rr); err != nil || rr.terminal {
			return err
		}
	}

	rr.terminal = true
	if rr.attempted > 0 && rr.failed == rr.attempted {
		rn.set(rr.ref.ID, func(s *model.VerificationState) {
			s.Phase = model.PhaseError
			s.Source = ""
		})
		return nil
	}
	rn.set(rr.ref.ID, func(s *model.VerificationState) {
		s.Phase = model.PhaseDone
		s.Source = ""
		if s.BestScore == nil {
			zero := 0
			s.BestScore = &zero
		}
	})
	return nil
}

func (rn *runner) sourceFailed(rr *refRun, serr *SearchProviderError) error {
	rn.log.Warn("verify: source search failed",
		zap.String("reference", serr.ReferenceID),
		zap.String("source", serr.Source),
		zap.Error(serr.Err),
	)
	if rn.o.policy == FailureAbort {
		rn.abort(rr, serr)
		return serr
	}
	rn.set(rr.ref.ID, func(s *model.VerificationState) {
		s.Phase = model.PhaseIdle
		s.Error = serr.Error()
	})
	return nil
}

func (rn *runner) matchFailed(rr *refRun, err error) error {
	rn.log.Error("verify: matching failed", zap.String("reference", rr.ref.ID), zap.Error(err))
	if rn.o.policy == FailureAbort {
		rn.abort(rr, err)
		return err
	}
	rr.terminal = true
	rn.set(rr.ref.ID, func(s *model.VerificationState) {
		s.Phase = model.PhaseError
		s.Source = ""
		s.Error = err.Error()
	})
	return nil
}

// abort marks the failing reference and every unfinished one as error.
// References already done keep their scores.
func (rn *runner) abort(failed *refRun, cause error) {
	for _, rr := range rn.refs {
		if rr.terminal {
			continue
		}
		rr.terminal = true
		msg := cause.Error()
		if rr != failed {
			msg = "run aborted: " + msg
		}
		rn.set(rr.ref.ID, func(s *model.VerificationState) {
			s.Phase = model.PhaseError
			s.Source = ""
			s.Error = msg
		})
	}
}

// cancelRemaining moves every unfinished reference to cancelled.
func (rn *runner) cancelRemaining() int {
	n := 0
	for _, rr := range rn.refs {
		if rr.terminal {
			continue
		}
		rr.terminal = true
		n++
		rn.set(rr.ref.ID, func(s *model.VerificationState) {
			s.Phase = model.PhaseCancelled
			s.Source = ""
		})
	}
	return n
}
