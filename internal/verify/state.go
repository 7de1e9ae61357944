package verify

import (
	"context"
	"sync"
	"time"

	"github.com/jeffnawroth/source-taster/internal/model"
)

// run holds the progress map of one verification run. Only the goroutine
// executing the run writes to it; readers take snapshots.
type run struct {
	id     string
	cancel context.CancelFunc
	now    func() time.Time

	mu     sync.Mutex
	order  []string
	states map[string]*model.VerificationState
}

func newRun(id string, cancel context.CancelFunc, now func() time.Time, refs []model.Reference) *run {
	r := &run{
		id:     id,
		cancel: cancel,
		now:    now,
		states: make(map[string]*model.VerificationState, len(refs)),
	}
	ts := now()
	for _, ref := range refs {
		if _, dup := r.states[ref.ID]; dup {
			continue
		}
		r.order = append(r.order, ref.ID)
		r.states[ref.ID] = &model.VerificationState{
			ReferenceID: ref.ID,
			Phase:       model.PhaseIdle,
			UpdatedAt:   ts,
		}
	}
	return r
}

// update applies fn to the reference's state and returns a copy of the result.
func (r *run) update(refID string, fn func(s *model.VerificationState)) model.VerificationState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.states[refID]
	fn(s)
	s.UpdatedAt = r.now()
	return copyState(s)
}

func (r *run) get(refID string) (model.VerificationState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[refID]
	if !ok {
		return model.VerificationState{}, false
	}
	return copyState(s), true
}

func (r *run) snapshot() []model.VerificationState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.VerificationState, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyState(r.states[id]))
	}
	return out
}

func copyState(s *model.VerificationState) model.VerificationState {
	c := *s
	if s.BestScore != nil {
		score := *s.BestScore
		c.BestScore = &score
	}
	if s.SourcesTried != nil {
		c.SourcesTried = append([]string(nil), s.SourcesTried...)
	}
	return c
}
