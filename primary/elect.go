package primary

import (
	"encoding/binary"

	"github.com/Praexor/narwhal-plus-plus/sign"
)

// The elect flow assembles an unbiased common coin per even round from
// threshold partial signatures over the round number. The commit
// engines keep their deterministic round-robin election; the coin is
// exposed for randomness consumers.

func electData(round uint64) []byte {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, round)
	return data
}

// broadcastElect sends this authority's partial signature for the round.
func (p *Primary) broadcastElect(round uint64) {
	msg := ElectMsg{
		Sender:     p.publicKey,
		Round:      round,
		PartialSig: sign.SignTSPartial(p.tsPrivateKey, electData(round)),
	}
	p.handleElect(msg)
	if err := p.broadcast(ElectTag, msg); err != nil {
		p.logger.Error("fail to broadcast the elect message", "round", round, "error", err)
	}
}

// handleElect collects partial signatures and assembles the coin once a
// quorum of authorities contributed.
func (p *Primary) handleElect(msg ElectMsg) {
	if err := sign.VerifyTSPartial(p.tsPublicKey, electData(msg.Round), msg.PartialSig); err != nil {
		p.logger.Error("fail to verify the partial signature",
			"round", msg.Round, "sender", msg.Sender.Short(), "error", err)
		return
	}

	quorum := 2*p.committee.Size()/3 + 1

	p.lock.Lock()
	if _, ok := p.coins[msg.Round]; ok {
		p.lock.Unlock()
		return
	}
	if p.elect[msg.Round] == nil {
		p.elect[msg.Round] = make(map[sign.PublicKey][]byte)
	}
	p.elect[msg.Round][msg.Sender] = msg.PartialSig
	if len(p.elect[msg.Round]) < quorum {
		p.lock.Unlock()
		return
	}
	partials := make([][]byte, 0, len(p.elect[msg.Round]))
	for _, partial := range p.elect[msg.Round] {
		partials = append(partials, partial)
	}
	p.lock.Unlock()

	coin := sign.AssembleIntactTSPartial(partials, p.tsPublicKey,
		electData(msg.Round), quorum, p.committee.Size())

	p.lock.Lock()
	p.coins[msg.Round] = coin
	delete(p.elect, msg.Round)
	p.lock.Unlock()

	p.logger.Debug("common coin assembled", "round", msg.Round,
		"coin", binary.BigEndian.Uint32(coin))
}

// Coin returns the assembled common coin for a round, if any.
func (p *Primary) Coin(round uint64) ([]byte, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	coin, ok := p.coins[round]
	return coin, ok
}
