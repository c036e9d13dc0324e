package primary

import (
	"reflect"

	"github.com/Praexor/narwhal-plus-plus/consensus"
	"github.com/Praexor/narwhal-plus-plus/sign"
)

// Message tags on the primary-to-primary wire.
const (
	HeaderTag uint8 = iota
	VoteTag
	CertificateTag
	ElectTag
)

// HeaderMsg carries a proposed header to every primary for voting.
type HeaderMsg struct {
	Header consensus.Header
}

// VoteMsg carries one authority's vote back to the header's proposer.
type VoteMsg struct {
	HeaderDigest sign.Digest
	Round        uint64
	Author       sign.PublicKey
	Voter        sign.PublicKey
	Signature    sign.Signature
}

// CertificateMsg disseminates an assembled certificate.
type CertificateMsg struct {
	Certificate consensus.Certificate
}

// ElectMsg carries a partial threshold signature over a round number;
// a quorum of them assembles into the round's common coin.
type ElectMsg struct {
	Sender     sign.PublicKey
	Round      uint64
	PartialSig []byte
}

var (
	headerMsg      HeaderMsg
	voteMsg        VoteMsg
	certificateMsg CertificateMsg
	electMsg       ElectMsg
)

// ReflectedTypesMap registers the primary message set for the transport.
var ReflectedTypesMap = map[uint8]reflect.Type{
	HeaderTag:      reflect.TypeOf(headerMsg),
	VoteTag:        reflect.TypeOf(voteMsg),
	CertificateTag: reflect.TypeOf(certificateMsg),
	ElectTag:       reflect.TypeOf(electMsg),
}
