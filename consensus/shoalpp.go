package consensus

import (
	"github.com/hashicorp/go-hclog"

	"github.com/Praexor/narwhal-plus-plus/config"
	"github.com/Praexor/narwhal-plus-plus/sign"
)

// reputationCap is the map size beyond which every reputation value is
// halved after each update. Entries are never removed, so the halving
// bounds the values, not the number of entries.
const reputationCap = 100

// ShoalPP commits a single anchor per arriving round. The anchor is
// picked by a reputation-weighted round-robin over the authorities
// present one round below the arrival, and commits when the arriving
// round supports it with at least f+1 stake. Authorities gain
// reputation with every commit, biasing future anchor selection toward
// well-performing ones.
type ShoalPP struct {
	reputation map[sign.PublicKey]uint64
	logger     hclog.Logger
}

// NewShoalPP creates the Shoal++ engine.
func NewShoalPP(logger hclog.Logger) *ShoalPP {
	return &ShoalPP{
		reputation: make(map[sign.PublicKey]uint64),
		logger:     logger.Named("shoal"),
	}
}

// ProcessRound implements Engine.
func (s *ShoalPP) ProcessRound(round uint64, state *State, committee *config.Committee) []Certificate {
	if round == 0 {
		return nil
	}
	leaderRound := round - 1
	if leaderRound <= state.LastCommittedRound {
		return nil
	}

	anchor, ok := s.selectAnchor(leaderRound, state.Dag)
	if !ok {
		return nil
	}

	stake := supportingStake(state.Dag[round], anchor.Digest, committee)
	if stake < committee.ValidityThreshold() {
		return nil
	}

	sequence := []Certificate{anchor.Certificate}
	s.updateReputation(sequence)
	s.logger.Debug("anchor committed", "round", leaderRound,
		"anchor", anchor.Certificate.Origin().Short(), "support", stake)
	return sequence
}

// selectAnchor runs the weighted round-robin over the authorities
// present at the given round. Each candidate weighs reputation+1 so a
// zero-reputation authority is still electable; the round number picks
// a slot in the cumulative weight range.
func (s *ShoalPP) selectAnchor(round uint64, dag DAG) (DagEntry, bool) {
	authors, ok := dag[round]
	if !ok || len(authors) == 0 {
		return DagEntry{}, false
	}
	candidates := sortedPresent(authors)

	var totalWeight uint64
	for _, pk := range candidates {
		totalWeight += s.reputation[pk] + 1
	}

	choice := round % totalWeight
	var current uint64
	for _, pk := range candidates {
		current += s.reputation[pk] + 1
		if current > choice {
			entry, ok := authors[pk]
			return entry, ok
		}
	}
	return DagEntry{}, false
}

func (s *ShoalPP) updateReputation(committed []Certificate) {
	for _, cert := range committed {
		s.reputation[cert.Origin()]++
	}
	if len(s.reputation) > reputationCap {
		for pk := range s.reputation {
			s.reputation[pk] /= 2
		}
	}
}
