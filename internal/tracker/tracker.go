// Package tracker canonicalizes and deduplicates issues across convergence
// rounds. Identity is the issue fingerprint (category, location, normalized
// description prefix), so the same underlying problem reported by different
// analyzers - or reworded by an LLM between rounds - counts once.
//
// The tracker answers one question per round: of the issues just reported,
// which are new, which persist from the previous round, and which previous
// issues have been resolved? That partition drives the convergence decision
// and the human-facing progress summary.
package tracker

import (
	"fmt"
	"sort"

	"github.com/codemend/codemend/internal/types"
)

// Tracker accumulates issue fingerprints across rounds. It is exclusively
// owned by a single convergence run and carries no locking.
type Tracker struct {
	everSeen  map[string]struct{}     // cumulative fingerprint set across all rounds
	previous  map[string]*types.Issue // fingerprint -> issue from the immediately preceding round
	lastRound int
}

// RegisterResult partitions one round's issue set against history.
// Invariants: New and Resolved are disjoint; Resolved and Persisting both
// reference only fingerprints present in the previous round.
type RegisterResult struct {
	// New are issues whose fingerprints have never been seen in any round
	New []*types.Issue

	// Resolved are previous-round issues absent from the current round
	Resolved []*types.Issue

	// Persisting are current issues seen before (in the previous round or earlier)
	Persisting []*types.Issue
}

// New creates an empty tracker
func New() *Tracker {
	return &Tracker{
		everSeen: make(map[string]struct{}),
		previous: make(map[string]*types.Issue),
	}
}

// Register records one round's issue set and partitions it into new,
// resolved, and persisting issues. Rounds must be registered in strictly
// increasing order; the history is append-only.
//
// Issues in the input with identical fingerprints collapse to the first
// occurrence. Two findings with different descriptions but the same
// (category, location, prefix) identity are deliberately treated as one;
// see the package comment for the trade-off.
func (t *Tracker) Register(issues []*types.Issue, round int) (*RegisterResult, error) {
	if round <= t.lastRound {
		return nil, fmt.Errorf("rounds must be registered in increasing order (got %d after %d)", round, t.lastRound)
	}

	current := make(map[string]*types.Issue, len(issues))
	order := make([]string, 0, len(issues))
	for _, issue := range issues {
		fp := issue.Fingerprint()
		if _, dup := current[fp]; dup {
			continue // within-round duplicate, first occurrence wins
		}
		current[fp] = issue
		order = append(order, fp)
	}

	result := &RegisterResult{}

	for _, fp := range order {
		issue := current[fp]
		if _, seen := t.everSeen[fp]; seen {
			result.Persisting = append(result.Persisting, issue)
		} else {
			result.New = append(result.New, issue)
		}
	}

	// Resolved: present in the previous round, absent now. Sorted by
	// fingerprint for deterministic output (map iteration order is not).
	resolvedFPs := make([]string, 0)
	for fp := range t.previous {
		if _, still := current[fp]; !still {
			resolvedFPs = append(resolvedFPs, fp)
		}
	}
	sort.Strings(resolvedFPs)
	for _, fp := range resolvedFPs {
		result.Resolved = append(result.Resolved, t.previous[fp])
	}

	// Commit this round
	for fp := range current {
		t.everSeen[fp] = struct{}{}
	}
	t.previous = current
	t.lastRound = round

	return result, nil
}

// Rounds returns the index of the last registered round (0 before the first)
func (t *Tracker) Rounds() int {
	return t.lastRound
}

// Open returns the issues still open as of the last registered round,
// sorted by severity (high first) then by fingerprint for determinism.
func (t *Tracker) Open() []*types.Issue {
	open := make([]*types.Issue, 0, len(t.previous))
	for _, issue := range t.previous {
		open = append(open, issue)
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].Severity.Rank() != open[j].Severity.Rank() {
			return open[i].Severity.Rank() > open[j].Severity.Rank()
		}
		return open[i].Fingerprint() < open[j].Fingerprint()
	})
	return open
}
