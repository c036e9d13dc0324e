package consensus

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/Praexor/narwhal-plus-plus/config"
	"github.com/Praexor/narwhal-plus-plus/sign"
)

// Names of the selectable commit engines.
const (
	EngineTusk      = "tusk"
	EngineShoalPP   = "shoal++"
	EngineMysticeti = "mysticeti"
)

// Engine is the pluggable commit rule. ProcessRound is invoked after a
// certificate for the given round was inserted into the DAG and returns
// the certificates newly committed by that arrival, in total order. The
// result must be deterministic for identical inputs; an empty result
// means no commit was triggered. Engines read the state but never
// mutate it; the driver applies State.Update afterwards.
type Engine interface {
	ProcessRound(round uint64, state *State, committee *config.Committee) []Certificate
}

// NewEngine returns the commit engine with the given name. An empty
// name selects Tusk.
func NewEngine(name string, logger hclog.Logger) (Engine, error) {
	switch name {
	case EngineTusk, "":
		return NewTusk(logger), nil
	case EngineShoalPP:
		return NewShoalPP(logger), nil
	case EngineMysticeti:
		return NewMysticeti(logger), nil
	default:
		return nil, fmt.Errorf("unknown consensus engine %q", name)
	}
}

// sortedPresent returns the authorities present in one DAG round in
// ascending public-key order.
func sortedPresent(round map[sign.PublicKey]DagEntry) []sign.PublicKey {
	keys := make([]sign.PublicKey, 0, len(round))
	for pk := range round {
		keys = append(keys, pk)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// supportingStake sums the stake of the certificates in one DAG round
// that list the given digest among their parents.
func supportingStake(round map[sign.PublicKey]DagEntry, digest sign.Digest, committee *config.Committee) config.Stake {
	var stake config.Stake
	for _, entry := range round {
		if entry.Certificate.listsParent(digest) {
			stake += committee.Stake(entry.Certificate.Origin())
		}
	}
	return stake
}
