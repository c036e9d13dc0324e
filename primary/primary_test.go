package primary

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Praexor/narwhal-plus-plus/channel"
	"github.com/Praexor/narwhal-plus-plus/config"
	"github.com/Praexor/narwhal-plus-plus/conn"
	"github.com/Praexor/narwhal-plus-plus/consensus"
	"github.com/Praexor/narwhal-plus-plus/sign"
	"github.com/Praexor/narwhal-plus-plus/store"
)

type testCluster struct {
	committee *config.Committee
	keys      []sign.PublicKey
	privKeys  []ed25519.PrivateKey
}

func newTestCluster(t *testing.T) *testCluster {
	t.Helper()
	authorities := make(map[sign.PublicKey]config.Authority, 4)
	keys := make([]sign.PublicKey, 4)
	privKeys := make([]ed25519.PrivateKey, 4)
	for i := 0; i < 4; i++ {
		priv, pub := sign.GenED25519Keys()
		keys[i] = sign.PublicKeyFromBytes(pub)
		privKeys[i] = priv
		authorities[keys[i]] = config.Authority{Stake: 100, PrimaryAddr: "127.0.0.1:1"}
	}
	return &testCluster{
		committee: config.NewCommittee(authorities),
		keys:      keys,
		privKeys:  privKeys,
	}
}

func (c *testCluster) newPrimary(t *testing.T, index int) (*Primary, *channel.Channel[consensus.Certificate]) {
	t.Helper()
	shares, pubPoly := sign.GenTSKeys(3, 4)
	conf := config.New("node", consensus.EngineTusk, 50, 10, 1, 0,
		c.keys[index], c.privKeys[index], pubPoly, shares[index], c.committee)

	trans, err := conn.NewTCPTransport("127.0.0.1:0", time.Second, nil, 1, ReflectedTypesMap)
	require.NoError(t, err)
	t.Cleanup(func() { trans.Close() })

	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	txConsensus := channel.New[consensus.Certificate]()
	rxFeedback := channel.New[consensus.Certificate]()
	rxDigests := channel.New[consensus.PayloadEntry]()
	p := NewPrimary(conf, trans, st, txConsensus, rxFeedback, rxDigests, hclog.NewNullLogger())
	return p, txConsensus
}

// genesisParents rebuilds the parent list the primary uses for its
// round-1 header.
func (c *testCluster) genesisParents() []sign.Digest {
	genesis := consensus.Genesis(c.committee)
	parents := make([]sign.Digest, 0, len(genesis))
	for i := range genesis {
		parents = append(parents, genesis[i].Digest())
	}
	return parents
}

func TestVoteAggregationAssemblesCertificate(t *testing.T) {
	cluster := newTestCluster(t)
	p, txConsensus := cluster.newPrimary(t, 0)
	p.Start()

	header := consensus.Header{
		Author:  cluster.keys[0],
		Round:   1,
		Parents: cluster.genesisParents(),
	}
	digest := sign.Hash(header.Serialize())

	// two peer votes plus the proposer's own reach quorum stake (300)
	for _, i := range []int{1, 2} {
		var sig sign.Signature
		copy(sig[:], sign.SignEd25519(cluster.privKeys[i], digest[:]))
		p.handleVote(VoteMsg{
			HeaderDigest: digest,
			Round:        1,
			Author:       cluster.keys[0],
			Voter:        cluster.keys[i],
			Signature:    sig,
		})
	}

	cert, ok := txConsensus.Receive()
	require.True(t, ok)
	assert.Equal(t, header, cert.Header)
	require.Len(t, cert.Votes, 3)
	for i := 1; i < len(cert.Votes); i++ {
		assert.True(t, cert.Votes[i-1].Author.Less(cert.Votes[i].Author))
	}

	// every vote verifies against the header digest
	for _, vote := range cert.Votes {
		ok, err := sign.VerifySignEd25519(ed25519.PublicKey(vote.Author[:]), digest[:], vote.Signature[:])
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestDuplicateVotesDoNotDoubleCount(t *testing.T) {
	cluster := newTestCluster(t)
	p, txConsensus := cluster.newPrimary(t, 0)
	p.Start()

	header := consensus.Header{
		Author:  cluster.keys[0],
		Round:   1,
		Parents: cluster.genesisParents(),
	}
	digest := sign.Hash(header.Serialize())

	var sig sign.Signature
	copy(sig[:], sign.SignEd25519(cluster.privKeys[1], digest[:]))
	vote := VoteMsg{HeaderDigest: digest, Round: 1, Author: cluster.keys[0],
		Voter: cluster.keys[1], Signature: sig}

	// the same voter three times stays at 200 stake, below quorum
	p.handleVote(vote)
	p.handleVote(vote)
	p.handleVote(vote)
	assert.Equal(t, 0, txConsensus.Len())
}

func TestCertificateAdvancesRound(t *testing.T) {
	cluster := newTestCluster(t)
	p, txConsensus := cluster.newPrimary(t, 0)
	p.Start()

	// a quorum of round-1 certificates moves the primary to round 2
	parents := cluster.genesisParents()
	for _, i := range []int{1, 2, 3} {
		cert := consensus.Certificate{Header: consensus.Header{
			Author:  cluster.keys[i],
			Round:   1,
			Parents: parents,
		}}
		p.handleCertificate(cert)
	}

	p.lock.Lock()
	round := p.round
	p.lock.Unlock()
	assert.Equal(t, uint64(2), round)
	assert.Equal(t, 3, txConsensus.Len())
}

func TestElectAssemblesCommonCoin(t *testing.T) {
	cluster := newTestCluster(t)

	shares, pubPoly := sign.GenTSKeys(3, 4)
	conf := config.New("node", consensus.EngineTusk, 50, 10, 1, 0,
		cluster.keys[0], cluster.privKeys[0], pubPoly, shares[0], cluster.committee)
	trans, err := conn.NewTCPTransport("127.0.0.1:0", time.Second, nil, 1, ReflectedTypesMap)
	require.NoError(t, err)
	defer trans.Close()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	defer st.Close()
	p := NewPrimary(conf, trans, st,
		channel.New[consensus.Certificate](), channel.New[consensus.Certificate](),
		channel.New[consensus.PayloadEntry](), hclog.NewNullLogger())

	const round = uint64(4)
	for i := 0; i < 3; i++ {
		p.handleElect(ElectMsg{
			Sender:     cluster.keys[i],
			Round:      round,
			PartialSig: sign.SignTSPartial(shares[i], electData(round)),
		})
	}

	coin, ok := p.Coin(round)
	require.True(t, ok)
	require.NoError(t, sign.VerifyTS(pubPoly, electData(round), coin))

	_, ok = p.Coin(round + 2)
	assert.False(t, ok)
}
