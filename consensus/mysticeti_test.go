package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Praexor/narwhal-plus-plus/sign"
)

func TestMysticetiMinimalCommit(t *testing.T) {
	committee, keys := testCommittee(4)
	state := NewState(Genesis(committee))
	feedRounds(state, committee, 3)
	engine := NewMysticeti(testLogger())

	sequence := engine.ProcessRound(3, state, committee)

	// leader of round 1 is the committee authority at index 1 mod 4,
	// certified by the round-2 votes and committed as a singleton
	require.Len(t, sequence, 1)
	assert.Equal(t, uint64(1), sequence[0].Round())
	assert.Equal(t, keys[1], sequence[0].Origin())
}

func TestMysticetiEarlyRounds(t *testing.T) {
	committee, _ := testCommittee(4)
	state := NewState(Genesis(committee))
	feedRounds(state, committee, 2)
	engine := NewMysticeti(testLogger())

	for _, round := range []uint64{0, 1, 2} {
		assert.Empty(t, engine.ProcessRound(round, state, committee))
	}
}

func TestMysticetiLeaderAbsent(t *testing.T) {
	committee, keys := testCommittee(4)
	state := NewState(Genesis(committee))
	engine := NewMysticeti(testLogger())

	// the round-1 slot of keys[1] is empty; everything else is full
	parents := genesisDigests(committee)
	round1, d1 := fullRound(committee, 1, parents)
	for _, cert := range round1 {
		if cert.Origin() == keys[1] {
			continue
		}
		state.Insert(cert)
	}
	parents = d1
	for round := uint64(2); round <= 3; round++ {
		certs, digests := fullRound(committee, round, parents)
		for _, cert := range certs {
			state.Insert(cert)
		}
		parents = digests
	}

	assert.Empty(t, engine.ProcessRound(3, state, committee))
}

func TestMysticetiInsufficientVotes(t *testing.T) {
	committee, keys := testCommittee(4)
	state := NewState(Genesis(committee))
	engine := NewMysticeti(testLogger())

	parents := genesisDigests(committee)
	round1, digests1 := fullRound(committee, 1, parents)
	for _, cert := range round1 {
		state.Insert(cert)
	}

	// a single round-2 vote for the leader carries 100 < 134 stake
	leaderDigest := digests1[1]
	var withoutLeader []sign.Digest
	for _, digest := range digests1 {
		if digest != leaderDigest {
			withoutLeader = append(withoutLeader, digest)
		}
	}
	for i, pk := range keys {
		certParents := withoutLeader
		if i == 0 {
			certParents = digests1
		}
		state.Insert(Certificate{Header: Header{Author: pk, Round: 2, Parents: certParents}})
	}
	certs3, _ := fullRound(committee, 3, nil)
	for _, cert := range certs3 {
		state.Insert(cert)
	}

	assert.Empty(t, engine.ProcessRound(3, state, committee))
}

func TestMysticetiNoRecommit(t *testing.T) {
	committee, _ := testCommittee(4)
	state := NewState(Genesis(committee))
	feedRounds(state, committee, 3)
	engine := NewMysticeti(testLogger())

	sequence := engine.ProcessRound(3, state, committee)
	require.Len(t, sequence, 1)
	state.Update(sequence[0], 50)

	assert.Empty(t, engine.ProcessRound(3, state, committee))
}
