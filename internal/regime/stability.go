package regime

import (
	"fmt"
	"sync"

	"github.com/irfndi/celebrum-regime/internal/models"
)

type cooldownState struct {
	locked     models.Regime
	suppressed models.Regime
	remaining  int
}

type filterState struct {
	raw      []models.Regime
	cooldown cooldownState
}

// StabilityFilter turns raw per-call proposals into a confirmed regime by applying
// persistence, inertia and cooldown in that order.
type StabilityFilter struct {
	cfg    Config
	mu     sync.Mutex
	states map[string]*filterState
}

// NewStabilityFilter creates a filter with cfg counts.
func NewStabilityFilter(cfg Config) *StabilityFilter {
	return &StabilityFilter{
		cfg:    cfg.withDefaults(),
		states: make(map[string]*filterState),
	}
}

func (f *StabilityFilter) stateLocked(symbol string) *filterState {
	st, ok := f.states[symbol]
	if !ok {
		st = &filterState{}
		f.states[symbol] = st
	}
	return st
}

// RawProposals returns a copy of the buffered raw proposals for symbol, oldest first.
func (f *StabilityFilter) RawProposals(symbol string) []models.Regime {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.states[symbol]; ok {
		return append([]models.Regime(nil), st.raw...)
	}
	return nil
}

// Apply records proposal and returns the confirmed regime given the confirmed history
// so far (oldest first). With no history the proposal is accepted as-is.
func (f *StabilityFilter) Apply(symbol string, proposal models.Regime, history []models.RegimeHistoryEntry) (models.Regime, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.stateLocked(symbol)
	st.raw = append(st.raw, proposal)
	if len(st.raw) > DefaultRawBuffer {
		st.raw = append([]models.Regime(nil), st.raw[len(st.raw)-DefaultRawBuffer:]...)
	}

	if len(history) == 0 {
		return proposal, []string{"bootstrap"}
	}

	var notes []string
	prev := history[len(history)-1].Regime
	candidate := prev

	// persistence
	if proposal != prev {
		if f.persistent(st.raw, proposal) {
			candidate = proposal
		} else {
			notes = append(notes, fmt.Sprintf("persistence: %s needs %d consecutive proposals", proposal, f.cfg.PersistenceCount))
		}
	}

	// inertia
	if candidate != prev {
		if held := trailingRun(history, prev); held < f.cfg.InertiaCount {
			notes = append(notes, fmt.Sprintf("inertia: %s held %d/%d", prev, held, f.cfg.InertiaCount))
			candidate = prev
		}
	}

	// cooldown
	if f.cfg.CooldownCycles > 0 {
		cd := &st.cooldown
		triggered := false
		if len(history) >= 2 {
			a, b := history[len(history)-2].Regime, prev
			if a != b && proposal == a {
				cd.locked, cd.suppressed, cd.remaining = b, a, f.cfg.CooldownCycles
				triggered = true
				if candidate != b {
					notes = append(notes, fmt.Sprintf("cooldown: reversal %s->%s suppressed", b, a))
				}
				candidate = b
			}
		}
		if !triggered && cd.remaining > 0 {
			if candidate == cd.suppressed && prev == cd.locked {
				notes = append(notes, fmt.Sprintf("cooldown: %d cycles left", cd.remaining))
				candidate = prev
			}
			cd.remaining--
		}
	}

	return candidate, notes
}

func (f *StabilityFilter) persistent(raw []models.Regime, proposal models.Regime) bool {
	n := f.cfg.PersistenceCount
	if len(raw) < n {
		return false
	}
	for _, r := range raw[len(raw)-n:] {
		if r != proposal {
			return false
		}
	}
	return true
}

// trailingRun counts consecutive trailing history entries equal to r.
func trailingRun(history []models.RegimeHistoryEntry, r models.Regime) int {
	n := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Regime != r {
			break
		}
		n++
	}
	return n
}
