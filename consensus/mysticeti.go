package consensus

import (
	"github.com/hashicorp/go-hclog"

	"github.com/Praexor/narwhal-plus-plus/config"
)

// Mysticeti runs a three-round rule: a leader proposed at round L is
// voted at L+1 and certified when a certificate of round L+2 arrives
// (later rounds consider later leaders, not L). The leader is
// drawn from the whole committee by round-robin, so an authority that
// produced no certificate for its slot simply yields no commit.
type Mysticeti struct {
	logger hclog.Logger
}

// NewMysticeti creates the Mysticeti engine.
func NewMysticeti(logger hclog.Logger) *Mysticeti {
	return &Mysticeti{logger: logger.Named("mysticeti")}
}

// ProcessRound implements Engine.
func (m *Mysticeti) ProcessRound(round uint64, state *State, committee *config.Committee) []Certificate {
	if round < 3 {
		return nil
	}
	leaderRound := round - 2
	if leaderRound <= state.LastCommittedRound {
		return nil
	}

	keys := committee.SortedAuthorities()
	if len(keys) == 0 {
		return nil
	}
	leaderKey := keys[leaderRound%uint64(len(keys))]

	entry, ok := state.Get(leaderRound, leaderKey)
	if !ok {
		return nil
	}

	votes := supportingStake(state.Dag[leaderRound+1], entry.Digest, committee)
	if votes < committee.ValidityThreshold() {
		return nil
	}

	m.logger.Debug("leader certified", "round", leaderRound,
		"leader", leaderKey.Short(), "votes", votes)
	return []Certificate{entry.Certificate}
}
