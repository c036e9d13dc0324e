package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Praexor/narwhal-plus-plus/sign"
)

func TestNewStatePinsGenesis(t *testing.T) {
	committee, keys := testCommittee(4)
	state := NewState(Genesis(committee))

	require.Len(t, state.Dag[0], 4)
	for _, pk := range keys {
		_, ok := state.Get(0, pk)
		assert.True(t, ok)
		assert.Equal(t, uint64(0), state.LastCommitted[pk])
	}
	assert.Equal(t, uint64(0), state.LastCommittedRound)
}

func TestInsertFirstWriterWins(t *testing.T) {
	committee, keys := testCommittee(4)
	state := NewState(Genesis(committee))

	first := Certificate{Header: Header{Author: keys[0], Round: 1}}
	state.Insert(first)

	// same (author, round), different digest: the first entry stays
	var other sign.Digest
	other[0] = 0xff
	second := Certificate{Header: Header{Author: keys[0], Round: 1, Parents: []sign.Digest{other}}}
	require.NotEqual(t, first.Digest(), second.Digest())
	state.Insert(second)

	entry, ok := state.Get(1, keys[0])
	require.True(t, ok)
	assert.Equal(t, first.Digest(), entry.Digest)
}

func TestUpdateMonotonicity(t *testing.T) {
	committee, keys := testCommittee(4)
	state := NewState(Genesis(committee))

	high := Certificate{Header: Header{Author: keys[1], Round: 10}}
	state.Update(high, 50)
	assert.Equal(t, uint64(10), state.LastCommitted[keys[1]])
	assert.Equal(t, uint64(10), state.LastCommittedRound)

	// an older commit for the same author never lowers the watermark
	low := Certificate{Header: Header{Author: keys[1], Round: 4}}
	state.Update(low, 50)
	assert.Equal(t, uint64(10), state.LastCommitted[keys[1]])
	assert.Equal(t, uint64(10), state.LastCommittedRound)
}

func TestGarbageCollection(t *testing.T) {
	committee, keys := testCommittee(4)
	state := NewState(Genesis(committee))
	feedRounds(state, committee, 205)

	leader, ok := state.Get(200, keys[0])
	require.True(t, ok)
	state.Update(leader.Certificate, 50)

	require.Equal(t, uint64(200), state.LastCommittedRound)
	for round := range state.Dag {
		assert.GreaterOrEqual(t, round+50, state.LastCommittedRound)
		assert.Greater(t, round, uint64(149))
	}
	_, ok = state.Get(149, keys[0])
	assert.False(t, ok)
	_, ok = state.Get(150, keys[0])
	assert.True(t, ok)
}

func TestInsertIntoCollectedRoundIsIgnored(t *testing.T) {
	committee, keys := testCommittee(4)
	state := NewState(Genesis(committee))
	feedRounds(state, committee, 205)

	leader, _ := state.Get(200, keys[0])
	state.Update(leader.Certificate, 50)

	obsolete := Certificate{Header: Header{Author: keys[2], Round: 10}}
	state.Insert(obsolete)
	_, ok := state.Get(10, keys[2])
	assert.False(t, ok)
}
