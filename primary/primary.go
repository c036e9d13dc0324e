/*
Package primary produces headers, aggregates votes into certificates,
and feeds certified rounds into the consensus driver. It also runs the
threshold-signature elect flow that assembles a common coin per even
round, and cleans up committed payload batches from the store.
*/
package primary

import (
	"crypto/ed25519"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	"go.dedis.ch/kyber/v3/share"

	"github.com/Praexor/narwhal-plus-plus/channel"
	"github.com/Praexor/narwhal-plus-plus/config"
	"github.com/Praexor/narwhal-plus-plus/conn"
	"github.com/Praexor/narwhal-plus-plus/consensus"
	"github.com/Praexor/narwhal-plus-plus/sign"
	"github.com/Praexor/narwhal-plus-plus/store"
)

// Primary drives certificate production for one authority.
type Primary struct {
	name      string
	publicKey sign.PublicKey
	privKey   ed25519.PrivateKey
	committee *config.Committee

	trans  *conn.Transport
	store  *store.Store
	logger hclog.Logger

	// txConsensus is the consensus driver's input stream; rxFeedback is
	// its feedback stream; rxDigests carries batch digests from the
	// local worker.
	txConsensus *channel.Channel[consensus.Certificate]
	rxFeedback  *channel.Channel[consensus.Certificate]
	rxDigests   *channel.Channel[consensus.PayloadEntry]

	tsPublicKey  *share.PubPoly
	tsPrivateKey *share.PriShare

	lock           sync.Mutex
	round          uint64
	certDigests    map[uint64]map[sign.PublicKey]sign.Digest
	ownHeaders     map[sign.Digest]consensus.Header
	votes          map[sign.Digest]map[sign.PublicKey]sign.Signature
	certified      map[sign.Digest]bool
	pendingPayload []consensus.PayloadEntry

	elect map[uint64]map[sign.PublicKey][]byte
	coins map[uint64][]byte
}

// NewPrimary wires a primary to its transport, store, and streams.
func NewPrimary(conf *config.Config, trans *conn.Transport, st *store.Store,
	txConsensus, rxFeedback *channel.Channel[consensus.Certificate],
	rxDigests *channel.Channel[consensus.PayloadEntry], logger hclog.Logger) *Primary {
	return &Primary{
		name:         conf.Name,
		publicKey:    conf.PublicKey,
		privKey:      conf.PrivateKey,
		committee:    conf.Committee,
		trans:        trans,
		store:        st,
		logger:       logger.Named("primary"),
		txConsensus:  txConsensus,
		rxFeedback:   rxFeedback,
		rxDigests:    rxDigests,
		tsPublicKey:  conf.TsPublicKey,
		tsPrivateKey: conf.TsPrivateKey,
		certDigests:  make(map[uint64]map[sign.PublicKey]sign.Digest),
		ownHeaders:   make(map[sign.Digest]consensus.Header),
		votes:        make(map[sign.Digest]map[sign.PublicKey]sign.Signature),
		certified:    make(map[sign.Digest]bool),
		elect:        make(map[uint64]map[sign.PublicKey][]byte),
		coins:        make(map[uint64][]byte),
	}
}

// Start seeds the genesis round and proposes the first header.
func (p *Primary) Start() {
	genesis := consensus.Genesis(p.committee)
	p.lock.Lock()
	p.round = 1
	p.certDigests[0] = make(map[sign.PublicKey]sign.Digest, len(genesis))
	for i := range genesis {
		p.certDigests[0][genesis[i].Origin()] = genesis[i].Digest()
	}
	p.lock.Unlock()
	p.proposeHeader(1)
}

// HandleMsgLoop dispatches inbound primary messages. Every envelope
// signature is checked before the message is acted on.
func (p *Primary) HandleMsgLoop() {
	msgCh := p.trans.MsgChan()
	for envelope := range msgCh {
		switch msg := envelope.Msg.(type) {
		case HeaderMsg:
			if !p.verifyEnvelope(msg.Header.Author, envelope.Msg, envelope.Sig) {
				p.logger.Error("fail to verify the header's signature",
					"round", msg.Header.Round, "author", msg.Header.Author.Short())
				continue
			}
			p.handleHeader(msg.Header)
		case VoteMsg:
			if !p.verifyEnvelope(msg.Voter, envelope.Msg, envelope.Sig) {
				p.logger.Error("fail to verify the vote's signature",
					"round", msg.Round, "voter", msg.Voter.Short())
				continue
			}
			p.handleVote(msg)
		case CertificateMsg:
			if !p.verifyEnvelope(msg.Certificate.Origin(), envelope.Msg, envelope.Sig) {
				p.logger.Error("fail to verify the certificate's signature",
					"round", msg.Certificate.Round(), "origin", msg.Certificate.Origin().Short())
				continue
			}
			p.handleCertificate(msg.Certificate)
		case ElectMsg:
			if !p.verifyEnvelope(msg.Sender, envelope.Msg, envelope.Sig) {
				p.logger.Error("fail to verify the elect's signature",
					"round", msg.Round, "sender", msg.Sender.Short())
				continue
			}
			p.handleElect(msg)
		}
	}
}

// DigestLoop drains batch digests from the local worker into the
// payload of the next header.
func (p *Primary) DigestLoop() {
	for {
		entry, ok := p.rxDigests.Receive()
		if !ok {
			return
		}
		p.lock.Lock()
		p.pendingPayload = append(p.pendingPayload, entry)
		p.lock.Unlock()
	}
}

// FeedbackLoop drains committed certificates from the consensus driver
// and removes their payload batches from the store.
func (p *Primary) FeedbackLoop() {
	for {
		cert, ok := p.rxFeedback.Receive()
		if !ok {
			return
		}
		for _, entry := range cert.Header.Payload {
			if err := p.store.Remove(entry.Digest[:]); err != nil {
				p.logger.Error("fail to clean up the committed batch",
					"digest", entry.Digest.Short(), "error", err)
			}
		}
	}
}

// proposeHeader builds and broadcasts this authority's header for the
// given round, with parents taken from the previous certified round.
func (p *Primary) proposeHeader(round uint64) {
	p.lock.Lock()
	parentMap := p.certDigests[round-1]
	parents := make([]sign.Digest, 0, len(parentMap))
	for _, pk := range p.committee.SortedAuthorities() {
		if digest, ok := parentMap[pk]; ok {
			parents = append(parents, digest)
		}
	}
	payload := p.pendingPayload
	p.pendingPayload = nil

	header := consensus.Header{
		Author:  p.publicKey,
		Round:   round,
		Parents: parents,
		Payload: payload,
	}
	digest := sign.Hash(header.Serialize())
	p.ownHeaders[digest] = header
	p.votes[digest] = map[sign.PublicKey]sign.Signature{
		p.publicKey: p.signHeader(digest),
	}
	p.lock.Unlock()

	if err := p.broadcast(HeaderTag, HeaderMsg{Header: header}); err != nil {
		p.logger.Error("fail to broadcast the header", "round", round, "error", err)
	}
	p.logger.Debug("header proposed", "round", round, "digest", digest.Short(),
		"parents", len(parents), "payload", len(payload))

	if round%2 == 0 {
		p.broadcastElect(round)
	}
}

// handleHeader votes for a peer's header by signing its digest and
// sending the vote back to the proposer.
func (p *Primary) handleHeader(header consensus.Header) {
	if header.Author == p.publicKey {
		return
	}
	digest := sign.Hash(header.Serialize())
	vote := VoteMsg{
		HeaderDigest: digest,
		Round:        header.Round,
		Author:       header.Author,
		Voter:        p.publicKey,
		Signature:    p.signHeader(digest),
	}
	addr := p.committee.Authorities[header.Author].PrimaryAddr
	if err := p.send(addr, VoteTag, vote); err != nil {
		p.logger.Error("fail to send the vote", "round", header.Round, "error", err)
	}
}

// handleVote collects a vote on one of our own headers and assembles
// the certificate once the votes carry quorum stake.
func (p *Primary) handleVote(vote VoteMsg) {
	p.lock.Lock()
	header, ok := p.ownHeaders[vote.HeaderDigest]
	if !ok || p.certified[vote.HeaderDigest] {
		p.lock.Unlock()
		return
	}
	p.votes[vote.HeaderDigest][vote.Voter] = vote.Signature

	var stake config.Stake
	for voter := range p.votes[vote.HeaderDigest] {
		stake += p.committee.Stake(voter)
	}
	if stake < p.committee.QuorumThreshold() {
		p.lock.Unlock()
		return
	}
	p.certified[vote.HeaderDigest] = true

	voters := make([]sign.PublicKey, 0, len(p.votes[vote.HeaderDigest]))
	for voter := range p.votes[vote.HeaderDigest] {
		voters = append(voters, voter)
	}
	sort.Slice(voters, func(i, j int) bool { return voters[i].Less(voters[j]) })
	votes := make([]consensus.Vote, 0, len(voters))
	for _, voter := range voters {
		votes = append(votes, consensus.Vote{Author: voter, Signature: p.votes[vote.HeaderDigest][voter]})
	}
	p.lock.Unlock()

	cert := consensus.Certificate{Header: header, Votes: votes}
	p.logger.Info("certificate assembled", "round", cert.Round(), "stake", stake)

	if err := p.broadcast(CertificateTag, CertificateMsg{Certificate: cert}); err != nil {
		p.logger.Error("fail to broadcast the certificate", "round", cert.Round(), "error", err)
	}
	p.handleCertificate(cert)
}

// handleCertificate persists a certificate, forwards it to consensus,
// and advances the round once a quorum of the current round certified.
func (p *Primary) handleCertificate(cert consensus.Certificate) {
	digest := cert.Digest()
	if err := p.store.Write(digest[:], cert.Serialize()); err != nil {
		p.logger.Error("fail to persist the certificate", "digest", digest.Short(), "error", err)
	}

	p.txConsensus.Send(cert)

	round := cert.Round()
	p.lock.Lock()
	if p.certDigests[round] == nil {
		p.certDigests[round] = make(map[sign.PublicKey]sign.Digest)
	}
	if _, ok := p.certDigests[round][cert.Origin()]; ok {
		p.lock.Unlock()
		return
	}
	p.certDigests[round][cert.Origin()] = digest

	advance := false
	if round == p.round {
		var stake config.Stake
		for pk := range p.certDigests[round] {
			stake += p.committee.Stake(pk)
		}
		if stake >= p.committee.QuorumThreshold() {
			p.round = round + 1
			advance = true
		}
	}
	p.lock.Unlock()

	if advance {
		p.proposeHeader(round + 1)
	}
}

func (p *Primary) signHeader(digest sign.Digest) sign.Signature {
	var sig sign.Signature
	copy(sig[:], sign.SignEd25519(p.privKey, digest[:]))
	return sig
}

func (p *Primary) verifyEnvelope(author sign.PublicKey, msg interface{}, sig []byte) bool {
	data, err := conn.EncodeMsg(msg)
	if err != nil {
		return false
	}
	ok, err := sign.VerifySignEd25519(ed25519.PublicKey(author[:]), data, sig)
	return err == nil && ok
}

// send delivers one signed message to a single peer primary.
func (p *Primary) send(target string, tag uint8, msg interface{}) error {
	data, err := conn.EncodeMsg(msg)
	if err != nil {
		return err
	}
	sig := sign.SignEd25519(p.privKey, data)
	netConn, err := p.trans.GetConn(target)
	if err != nil {
		return err
	}
	if err := p.trans.SendMsg(netConn, tag, msg, sig); err != nil {
		return err
	}
	return p.trans.ReturnConn(netConn)
}

// broadcast delivers one signed message to every other primary.
func (p *Primary) broadcast(tag uint8, msg interface{}) error {
	for _, pk := range p.committee.SortedAuthorities() {
		if pk == p.publicKey {
			continue
		}
		if err := p.send(p.committee.Authorities[pk].PrimaryAddr, tag, msg); err != nil {
			return err
		}
	}
	return nil
}
