/*
Package consensus maintains the certificate DAG and totally orders a
subset of it. Certificates arrive from the primary one at a time; a
pluggable commit engine decides when a past-round leader is committed
and linearizes its causal history.
*/
package consensus

import (
	"encoding/binary"
	"errors"

	"github.com/Praexor/narwhal-plus-plus/config"
	"github.com/Praexor/narwhal-plus-plus/sign"
)

var errMalformedCertificate = errors.New("malformed certificate bytes")

// PayloadEntry references one worker batch included in a header.
type PayloadEntry struct {
	Digest   sign.Digest
	WorkerID uint64
}

// Header is an unsigned proposal for one round.
type Header struct {
	Author  sign.PublicKey
	Round   uint64
	Parents []sign.Digest
	Payload []PayloadEntry
}

// Serialize encodes the header canonically: author bytes, round,
// parent count and parents, payload count and entries, all counters
// and worker ids little-endian. Digests depend on this exact layout.
func (h *Header) Serialize() []byte {
	size := sign.PublicKeySize + 8 +
		8 + len(h.Parents)*sign.DigestSize +
		8 + len(h.Payload)*(sign.DigestSize+8)
	buf := make([]byte, 0, size)
	buf = append(buf, h.Author[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Round)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(h.Parents)))
	for _, parent := range h.Parents {
		buf = append(buf, parent[:]...)
	}
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(h.Payload)))
	for _, entry := range h.Payload {
		buf = append(buf, entry.Digest[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, entry.WorkerID)
	}
	return buf
}

// Vote is one authority's signature over a header digest.
type Vote struct {
	Author    sign.PublicKey
	Signature sign.Signature
}

// Certificate is a header backed by a quorum of votes. Its identity is
// the digest of the header alone; votes do not affect it.
type Certificate struct {
	Header Header
	Votes  []Vote
}

// Digest returns the certificate identity, the hash of the serialized header.
func (c *Certificate) Digest() sign.Digest {
	return sign.Hash(c.Header.Serialize())
}

// Origin returns the authority that produced the certificate.
func (c *Certificate) Origin() sign.PublicKey {
	return c.Header.Author
}

// Round returns the DAG round of the certificate.
func (c *Certificate) Round() uint64 {
	return c.Header.Round
}

// Serialize appends the vote list to the serialized header.
func (c *Certificate) Serialize() []byte {
	buf := c.Header.Serialize()
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(c.Votes)))
	for _, vote := range c.Votes {
		buf = append(buf, vote.Author[:]...)
		buf = append(buf, vote.Signature[:]...)
	}
	return buf
}

// listsParent reports whether the certificate names the digest as a parent.
func (c *Certificate) listsParent(digest sign.Digest) bool {
	for _, parent := range c.Header.Parents {
		if parent == digest {
			return true
		}
	}
	return false
}

// DeserializeCertificate parses the output of Certificate.Serialize.
func DeserializeCertificate(data []byte) (Certificate, error) {
	var cert Certificate
	r := reader{buf: data}

	if !r.bytes(cert.Header.Author[:]) {
		return cert, errMalformedCertificate
	}
	round, ok := r.u64()
	if !ok {
		return cert, errMalformedCertificate
	}
	cert.Header.Round = round

	parentCount, ok := r.u64()
	if !ok || parentCount > uint64(r.remaining()/sign.DigestSize) {
		return cert, errMalformedCertificate
	}
	cert.Header.Parents = make([]sign.Digest, parentCount)
	for i := range cert.Header.Parents {
		if !r.bytes(cert.Header.Parents[i][:]) {
			return cert, errMalformedCertificate
		}
	}

	payloadCount, ok := r.u64()
	if !ok || payloadCount > uint64(r.remaining()/(sign.DigestSize+8)) {
		return cert, errMalformedCertificate
	}
	cert.Header.Payload = make([]PayloadEntry, payloadCount)
	for i := range cert.Header.Payload {
		if !r.bytes(cert.Header.Payload[i].Digest[:]) {
			return cert, errMalformedCertificate
		}
		workerID, ok := r.u64()
		if !ok {
			return cert, errMalformedCertificate
		}
		cert.Header.Payload[i].WorkerID = workerID
	}

	voteCount, ok := r.u64()
	if !ok || voteCount > uint64(r.remaining()/(sign.PublicKeySize+sign.SignatureSize)) {
		return cert, errMalformedCertificate
	}
	cert.Votes = make([]Vote, voteCount)
	for i := range cert.Votes {
		if !r.bytes(cert.Votes[i].Author[:]) {
			return cert, errMalformedCertificate
		}
		if !r.bytes(cert.Votes[i].Signature[:]) {
			return cert, errMalformedCertificate
		}
	}

	if r.remaining() != 0 {
		return cert, errMalformedCertificate
	}
	return cert, nil
}

// Genesis returns one empty certificate per authority at round 0,
// in the committee's deterministic order.
func Genesis(committee *config.Committee) []Certificate {
	certs := make([]Certificate, 0, committee.Size())
	for _, pk := range committee.SortedAuthorities() {
		certs = append(certs, Certificate{Header: Header{Author: pk, Round: 0}})
	}
	return certs
}

// reader is a bounds-checked cursor over a byte slice.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) u64() (uint64, bool) {
	if r.remaining() < 8 {
		return 0, false
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, true
}

func (r *reader) bytes(dst []byte) bool {
	if r.remaining() < len(dst) {
		return false
	}
	copy(dst, r.buf[r.off:])
	r.off += len(dst)
	return true
}
