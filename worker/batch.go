/*
Package worker accumulates transactions into batches and disseminates
them to the other authorities' workers as erasure-coded shards, so any
f+1 of n shards reconstruct the batch. Sealed and reconstructed batch
digests are reported to the local primary for inclusion in headers.
*/
package worker

import (
	"encoding/binary"

	"github.com/Praexor/narwhal-plus-plus/sign"
)

// Batch is a sequence of opaque transactions produced by one worker.
type Batch struct {
	Author       sign.PublicKey
	WorkerID     uint64
	Transactions [][]byte
}

// Serialize encodes the batch canonically; the batch digest is the
// hash of these bytes.
func (b *Batch) Serialize() []byte {
	size := sign.PublicKeySize + 16
	for _, tx := range b.Transactions {
		size += 8 + len(tx)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, b.Author[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, b.WorkerID)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(tx)))
		buf = append(buf, tx...)
	}
	return buf
}

// Digest returns the batch identity.
func (b *Batch) Digest() sign.Digest {
	return sign.Hash(b.Serialize())
}

// Shard is one erasure-coded fragment of a serialized batch, addressed
// to a single peer worker.
type Shard struct {
	Author     sign.PublicKey
	WorkerID   uint64
	Digest     sign.Digest
	Index      int
	DataShards int
	PayloadLen int
	Data       []byte
}
