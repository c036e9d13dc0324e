package consensus

import (
	"github.com/hashicorp/go-hclog"

	"github.com/Praexor/narwhal-plus-plus/config"
	"github.com/Praexor/narwhal-plus-plus/sign"
)

// testCommittee builds n authorities with stake 100 each. Key bytes are
// chosen so that the sorted order matches the index order.
func testCommittee(n int) (*config.Committee, []sign.PublicKey) {
	authorities := make(map[sign.PublicKey]config.Authority, n)
	keys := make([]sign.PublicKey, n)
	for i := 0; i < n; i++ {
		var pk sign.PublicKey
		pk[0] = byte(i)
		keys[i] = pk
		authorities[pk] = config.Authority{Stake: 100}
	}
	return config.NewCommittee(authorities), keys
}

// fullRound builds one certificate per authority at the given round,
// all referencing the same parents, and returns them with their digests
// in committee order.
func fullRound(committee *config.Committee, round uint64, parents []sign.Digest) ([]Certificate, []sign.Digest) {
	keys := committee.SortedAuthorities()
	certs := make([]Certificate, 0, len(keys))
	digests := make([]sign.Digest, 0, len(keys))
	for _, pk := range keys {
		cert := Certificate{Header: Header{Author: pk, Round: round, Parents: parents}}
		digests = append(digests, cert.Digest())
		certs = append(certs, cert)
	}
	return certs, digests
}

// feedRounds inserts fully-connected rounds 1..last into the state and
// returns the digests of the final round.
func feedRounds(state *State, committee *config.Committee, last uint64) []sign.Digest {
	parents := genesisDigests(committee)
	for round := uint64(1); round <= last; round++ {
		certs, digests := fullRound(committee, round, parents)
		for _, cert := range certs {
			state.Insert(cert)
		}
		parents = digests
	}
	return parents
}

func genesisDigests(committee *config.Committee) []sign.Digest {
	genesis := Genesis(committee)
	digests := make([]sign.Digest, 0, len(genesis))
	for i := range genesis {
		digests = append(digests, genesis[i].Digest())
	}
	return digests
}

func testLogger() hclog.Logger {
	return hclog.NewNullLogger()
}
