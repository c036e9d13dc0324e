package worker

import (
	"crypto/ed25519"
	"errors"
	"reflect"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/reedsolomon"

	"github.com/Praexor/narwhal-plus-plus/channel"
	"github.com/Praexor/narwhal-plus-plus/config"
	"github.com/Praexor/narwhal-plus-plus/conn"
	"github.com/Praexor/narwhal-plus-plus/consensus"
	"github.com/Praexor/narwhal-plus-plus/sign"
	"github.com/Praexor/narwhal-plus-plus/store"
)

// ShardTag labels shard messages on the wire.
const ShardTag uint8 = 0x10

var shardMsg Shard

// ReflectedTypesMap registers the worker message set for the transport.
var ReflectedTypesMap = map[uint8]reflect.Type{
	ShardTag: reflect.TypeOf(shardMsg),
}

var errDigestMismatch = errors.New("reconstructed batch digest mismatch")

// Worker batches transactions and runs the shard dissemination with the
// other workers.
type Worker struct {
	name      string
	publicKey sign.PublicKey
	privKey   ed25519.PrivateKey
	workerID  uint64
	batchSize int
	committee *config.Committee

	trans  *conn.Transport
	store  *store.Store
	logger hclog.Logger

	// txDigests carries sealed and reconstructed batch digests to the
	// local primary for header payloads.
	txDigests *channel.Channel[consensus.PayloadEntry]

	lock      sync.Mutex
	pending   [][]byte
	shards    map[sign.Digest]map[int][]byte
	meta      map[sign.Digest]Shard
	echoed    map[sign.Digest]bool
	delivered map[sign.Digest]bool

	enc        reedsolomon.Encoder
	dataShards int
	totalShard int
}

// NewWorker creates a worker for the given node. The erasure code uses
// f+1 data shards out of n, so any f+1 shards reconstruct a batch.
func NewWorker(conf *config.Config, workerID uint64, trans *conn.Transport, st *store.Store,
	txDigests *channel.Channel[consensus.PayloadEntry], logger hclog.Logger) (*Worker, error) {
	n := conf.Committee.Size()
	faulty := (n - 1) / 3
	dataShards := faulty + 1
	enc, err := reedsolomon.New(dataShards, n-dataShards)
	if err != nil {
		return nil, err
	}
	return &Worker{
		name:       conf.Name,
		publicKey:  conf.PublicKey,
		privKey:    conf.PrivateKey,
		workerID:   workerID,
		batchSize:  conf.BatchSize,
		committee:  conf.Committee,
		trans:      trans,
		store:      st,
		logger:     logger.Named("worker"),
		txDigests:  txDigests,
		shards:     make(map[sign.Digest]map[int][]byte),
		meta:       make(map[sign.Digest]Shard),
		echoed:     make(map[sign.Digest]bool),
		delivered:  make(map[sign.Digest]bool),
		enc:        enc,
		dataShards: dataShards,
		totalShard: n,
	}, nil
}

// AddTransaction appends one transaction to the pending batch and seals
// the batch once it reaches the configured size.
func (w *Worker) AddTransaction(tx []byte) error {
	w.lock.Lock()
	w.pending = append(w.pending, append([]byte(nil), tx...))
	if len(w.pending) < w.batchSize {
		w.lock.Unlock()
		return nil
	}
	txs := w.pending
	w.pending = nil
	w.lock.Unlock()
	return w.sealBatch(txs)
}

// sealBatch persists the batch, reports its digest to the primary, and
// sends every peer worker its erasure-coded shard.
func (w *Worker) sealBatch(txs [][]byte) error {
	batch := Batch{Author: w.publicKey, WorkerID: w.workerID, Transactions: txs}
	data := batch.Serialize()
	digest := sign.Hash(data)

	if err := w.store.Write(digest[:], data); err != nil {
		return err
	}

	shards, err := w.encodeShards(data)
	if err != nil {
		return err
	}

	keys := w.committee.SortedAuthorities()
	for i, pk := range keys {
		shard := Shard{
			Author:     w.publicKey,
			WorkerID:   w.workerID,
			Digest:     digest,
			Index:      i,
			DataShards: w.dataShards,
			PayloadLen: len(data),
			Data:       shards[i],
		}
		if pk == w.publicKey {
			w.storeShard(shard)
			continue
		}
		if err := w.sendShard(w.committee.Authorities[pk].WorkerAddr, shard); err != nil {
			w.logger.Error("fail to send the batch shard", "peer", pk.Short(), "error", err)
		}
	}

	w.logger.Debug("batch sealed", "digest", digest.Short(), "transactions", len(txs))
	w.txDigests.Send(consensus.PayloadEntry{Digest: digest, WorkerID: w.workerID})
	return nil
}

func (w *Worker) encodeShards(data []byte) ([][]byte, error) {
	shards, err := w.enc.Split(data)
	if err != nil {
		return nil, err
	}
	if err := w.enc.Encode(shards); err != nil {
		return nil, err
	}
	return shards, nil
}

// HandleMsgLoop drains the worker transport, verifying the envelope
// signature of every shard before processing it.
func (w *Worker) HandleMsgLoop() {
	msgCh := w.trans.MsgChan()
	for envelope := range msgCh {
		switch msg := envelope.Msg.(type) {
		case Shard:
			if !w.verifyEnvelope(msg.Author, envelope.Msg, envelope.Sig) {
				w.logger.Error("fail to verify the shard's signature",
					"author", msg.Author.Short(), "digest", msg.Digest.Short())
				continue
			}
			w.handleShard(msg)
		}
	}
}

func (w *Worker) verifyEnvelope(author sign.PublicKey, msg interface{}, sig []byte) bool {
	data, err := conn.EncodeMsg(msg)
	if err != nil {
		return false
	}
	ok, err := sign.VerifySignEd25519(ed25519.PublicKey(author[:]), data, sig)
	return err == nil && ok
}

// handleShard stores an inbound shard, echoes this node's own shard to
// the rest of the committee once, and reconstructs the batch as soon as
// enough distinct shards are held.
func (w *Worker) handleShard(shard Shard) {
	w.lock.Lock()
	if w.delivered[shard.Digest] {
		w.lock.Unlock()
		return
	}
	echo := !w.echoed[shard.Digest]
	w.echoed[shard.Digest] = true
	w.lock.Unlock()

	w.storeShard(shard)

	if echo {
		for _, pk := range w.committee.SortedAuthorities() {
			if pk == w.publicKey || pk == shard.Author {
				continue
			}
			if err := w.sendShard(w.committee.Authorities[pk].WorkerAddr, shard); err != nil {
				w.logger.Error("fail to echo the batch shard", "peer", pk.Short(), "error", err)
			}
		}
	}
}

func (w *Worker) storeShard(shard Shard) {
	w.lock.Lock()
	if w.shards[shard.Digest] == nil {
		w.shards[shard.Digest] = make(map[int][]byte)
		w.meta[shard.Digest] = shard
	}
	w.shards[shard.Digest][shard.Index] = shard.Data
	ready := len(w.shards[shard.Digest]) >= shard.DataShards && !w.delivered[shard.Digest]
	if ready {
		w.delivered[shard.Digest] = true
	}
	w.lock.Unlock()

	if ready && shard.Author != w.publicKey {
		if err := w.reconstruct(shard.Digest); err != nil {
			w.logger.Error("fail to reconstruct the batch", "digest", shard.Digest.Short(), "error", err)
		}
	}
}

// reconstruct rebuilds the serialized batch from the held shards,
// verifies its digest, persists it, and reports it to the primary.
func (w *Worker) reconstruct(digest sign.Digest) error {
	w.lock.Lock()
	held := w.shards[digest]
	meta := w.meta[digest]
	slices := make([][]byte, w.totalShard)
	for i, data := range held {
		slices[i] = data
	}
	w.lock.Unlock()

	if err := w.enc.ReconstructData(slices); err != nil {
		return err
	}
	data := make([]byte, 0, meta.PayloadLen)
	for i := 0; i < meta.DataShards; i++ {
		data = append(data, slices[i]...)
	}
	data = data[:meta.PayloadLen]

	if sign.Hash(data) != digest {
		return errDigestMismatch
	}
	if err := w.store.Write(digest[:], data); err != nil {
		return err
	}

	w.logger.Debug("batch reconstructed", "digest", digest.Short(), "author", meta.Author.Short())
	w.txDigests.Send(consensus.PayloadEntry{Digest: digest, WorkerID: meta.WorkerID})
	return nil
}

func (w *Worker) sendShard(target string, shard Shard) error {
	data, err := conn.EncodeMsg(shard)
	if err != nil {
		return err
	}
	sig := sign.SignEd25519(w.privKey, data)
	netConn, err := w.trans.GetConn(target)
	if err != nil {
		return err
	}
	if err := w.trans.SendMsg(netConn, ShardTag, shard, sig); err != nil {
		return err
	}
	return w.trans.ReturnConn(netConn)
}
