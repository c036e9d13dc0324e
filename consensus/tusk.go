package consensus

import (
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/Praexor/narwhal-plus-plus/config"
	"github.com/Praexor/narwhal-plus-plus/sign"
)

// Tusk commits one leader every two rounds. When a certified round
// arrives, the leader two rounds below the voting round is elected by
// round-robin over the authorities present in its round; it commits if
// the certificates one round above it carry at least f+1 stake of
// support. Committed leaders pull in every uncommitted leader they are
// linked to, earliest first, and each leader drags its whole causal
// past into the sequence.
type Tusk struct {
	logger hclog.Logger
}

// NewTusk creates the Tusk engine.
func NewTusk(logger hclog.Logger) *Tusk {
	return &Tusk{logger: logger.Named("tusk")}
}

// ProcessRound implements Engine.
func (t *Tusk) ProcessRound(round uint64, state *State, committee *config.Committee) []Certificate {
	if round < 4 || (round-1)%2 != 0 {
		return nil
	}

	r := round - 1
	leaderRound := r - 2
	if leaderRound <= state.LastCommittedRound {
		return nil
	}

	leaderEntry, ok := t.leader(leaderRound, state.Dag)
	if !ok {
		return nil
	}

	stake := supportingStake(state.Dag[r-1], leaderEntry.Digest, committee)
	if stake < committee.ValidityThreshold() {
		return nil
	}

	leaders := t.orderLeaders(leaderEntry.Certificate, state)

	// Earliest leader first; each certificate is emitted at most once
	// even when the causal pasts of two leaders overlap.
	emitted := make(map[sign.Digest]bool)
	var sequence []Certificate
	for i := len(leaders) - 1; i >= 0; i-- {
		for _, cert := range t.orderDag(leaders[i], state) {
			digest := cert.Digest()
			if emitted[digest] {
				continue
			}
			emitted[digest] = true
			sequence = append(sequence, cert)
		}
	}

	t.logger.Debug("leader committed", "leader-round", leaderRound,
		"leader", leaderEntry.Certificate.Origin().Short(), "support", stake,
		"sequence-length", len(sequence))
	return sequence
}

// leader elects the leader of a round among the authorities present in
// the DAG at that round.
func (t *Tusk) leader(round uint64, dag DAG) (DagEntry, bool) {
	authors, ok := dag[round]
	if !ok || len(authors) == 0 {
		return DagEntry{}, false
	}
	keys := sortedPresent(authors)
	entry, ok := authors[keys[round%uint64(len(keys))]]
	return entry, ok
}

// orderLeaders walks backwards from the newly committed leader, two
// rounds at a time, keeping every earlier leader linked to the current
// one. The result is ordered latest leader first.
func (t *Tusk) orderLeaders(leaderCert Certificate, state *State) []Certificate {
	toCommit := []Certificate{leaderCert}
	current := leaderCert
	for r := leaderCert.Round() - 2; r > state.LastCommittedRound; r -= 2 {
		prev, ok := t.leader(r, state.Dag)
		if ok && t.linked(current, prev.Certificate, state.Dag) {
			toCommit = append(toCommit, prev.Certificate)
			current = prev.Certificate
		}
		if r < 2 {
			break
		}
	}
	return toCommit
}

// linked reports whether prev is reachable from leader along parent
// edges. The frontier moves down one round at a time: the next frontier
// is every certificate that is a parent of at least one frontier member.
func (t *Tusk) linked(leader, prev Certificate, dag DAG) bool {
	frontier := []Certificate{leader}
	for r := leader.Round(); r > prev.Round(); r-- {
		authors, ok := dag[r-1]
		if !ok {
			return false
		}
		var next []Certificate
		for _, entry := range authors {
			for _, cert := range frontier {
				if cert.listsParent(entry.Digest) {
					next = append(next, entry.Certificate)
					break
				}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			return false
		}
	}
	prevDigest := prev.Digest()
	for _, cert := range frontier {
		if cert.Digest() == prevDigest {
			return true
		}
	}
	return false
}

// orderDag collects the uncommitted causal past of a leader by DFS
// along parent edges and returns it sorted by ascending round. The sort
// is stable, so equal-round ordering follows the deterministic DFS
// discovery order.
func (t *Tusk) orderDag(leader Certificate, state *State) []Certificate {
	var ordered []Certificate
	seen := make(map[sign.Digest]bool)
	buffer := []Certificate{leader}

	for len(buffer) > 0 {
		cert := buffer[len(buffer)-1]
		buffer = buffer[:len(buffer)-1]
		ordered = append(ordered, cert)
		if cert.Round() == 0 {
			continue
		}
		authors := state.Dag[cert.Round()-1]
		for _, parentDigest := range cert.Header.Parents {
			for _, entry := range authors {
				if entry.Digest != parentDigest {
					continue
				}
				committed := state.LastCommitted[entry.Certificate.Origin()] >= entry.Certificate.Round()
				if !seen[parentDigest] && !committed {
					seen[parentDigest] = true
					buffer = append(buffer, entry.Certificate)
				}
				break
			}
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Round() < ordered[j].Round()
	})
	return ordered
}
