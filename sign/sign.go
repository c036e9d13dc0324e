/*
Package sign gathers the cryptographic primitives used across the node:
fixed-width digest and key types, the content hash, ED25519 signatures
for message envelopes and votes, and threshold signatures for the
common-coin election messages.
*/
package sign

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

const (
	// DigestSize is the width of a content digest in bytes.
	DigestSize = 32

	// PublicKeySize is the width of an ED25519 public key in bytes.
	PublicKeySize = 32

	// SignatureSize is the width of an ED25519 signature in bytes.
	SignatureSize = 64
)

// Digest is the blake3 hash of a canonical byte encoding.
type Digest [DigestSize]byte

// PublicKey identifies an authority.
type PublicKey [PublicKeySize]byte

// Signature is a detached ED25519 signature.
type Signature [SignatureSize]byte

// Hash computes the digest of the given bytes.
func Hash(data []byte) Digest {
	return blake3.Sum256(data)
}

// String returns the full hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns an abbreviated hex encoding for logging.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:4])
}

// String returns the full hex encoding of the public key.
func (p PublicKey) String() string {
	return hex.EncodeToString(p[:])
}

// Short returns an abbreviated hex encoding for logging.
func (p PublicKey) Short() string {
	return hex.EncodeToString(p[:4])
}

// Less reports whether p orders before q bytewise.
func (p PublicKey) Less(q PublicKey) bool {
	return bytes.Compare(p[:], q[:]) < 0
}

// PublicKeyFromBytes copies b into a PublicKey. Short input is zero-padded.
func PublicKeyFromBytes(b []byte) PublicKey {
	var pk PublicKey
	copy(pk[:], b)
	return pk
}

// DecodePublicKey parses a hex-encoded public key.
func DecodePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := hex.DecodeString(s)
	if err != nil {
		return pk, err
	}
	copy(pk[:], raw)
	return pk, nil
}

// GenED25519Keys creates a fresh ED25519 key pair.
func GenED25519Keys() (ed25519.PrivateKey, ed25519.PublicKey) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return privKey, pubKey
}

// SignEd25519 signs the data with the private key.
func SignEd25519(privKey ed25519.PrivateKey, data []byte) []byte {
	return ed25519.Sign(privKey, data)
}

// VerifySignEd25519 verifies the signature over data with the public key.
func VerifySignEd25519(pubKey ed25519.PublicKey, data []byte, sig []byte) (bool, error) {
	if len(pubKey) != ed25519.PublicKeySize {
		return false, ErrInvalidKeySize
	}
	return ed25519.Verify(pubKey, data, sig), nil
}
