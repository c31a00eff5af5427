// Package negotiation holds the pure parts of session setup: ordering and
// relating remote candidates, and picking media parameters from an offer.
package negotiation

import (
	"cmp"
	"slices"

	"github.com/dkeye/Recorder/internal/core"
	"github.com/dkeye/Recorder/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ComponentLookup resolves the component a candidate targets.
type ComponentLookup interface {
	Component(kind domain.MediaKind, id uint16) (*core.Component, bool)
}

// MatchStats summarizes one Apply call.
type MatchStats struct {
	Applied    int
	Stale      int
	Unresolved int
	NoTarget   int
}

// CandidateMatcher turns an unordered remote candidate set into an insertion
// sequence where every related candidate can find its base.
type CandidateMatcher struct {
	logger zerolog.Logger
}

func NewCandidateMatcher() *CandidateMatcher {
	return &CandidateMatcher{logger: log.With().Str("module", "negotiation.candidates").Logger()}
}

// Order drops candidates of other generations and stable-sorts the rest
// host < reflexive < relayed.
func Order(cands []domain.Candidate, generation int) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Generation == generation {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Candidate) int {
		return cmp.Compare(a.Type.Precedence(), b.Type.Precedence())
	})
	return out
}

// Apply appends the ordered candidates to their components. A related
// address that matches no applied candidate leaves Related nil.
func (m *CandidateMatcher) Apply(
	lookup ComponentLookup,
	kind domain.MediaKind,
	cands []domain.Candidate,
	generation int,
) MatchStats {
	ordered := Order(cands, generation)
	stats := MatchStats{Stale: len(cands) - len(ordered)}

	for _, c := range ordered {
		comp, ok := lookup.Component(kind, c.Component)
		if !ok {
			stats.NoTarget++
			m.logger.Warn().Str("kind", string(kind)).Uint16("component", c.Component).Msg("no component for remote candidate")
			continue
		}
		rc := &core.RemoteCandidate{Candidate: c}
		if c.HasRelated() {
			rc.Related = comp.FindRemote(c.RelAddr, c.RelPort)
			if rc.Related == nil {
				stats.Unresolved++
				m.logger.Debug().Str("kind", string(kind)).Str("candidate", c.String()).Msg("related candidate not found")
			}
		}
		comp.AddRemote(rc)
		stats.Applied++
	}

	if stats.Stale > 0 {
		m.logger.Debug().Str("kind", string(kind)).Int("stale", stats.Stale).Int("generation", generation).Msg("dropped candidates of other generation")
	}
	return stats
}
