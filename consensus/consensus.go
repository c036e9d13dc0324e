package consensus

import (
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/Praexor/narwhal-plus-plus/channel"
	"github.com/Praexor/narwhal-plus-plus/config"
)

// Consensus is the serial driver: it owns the DAG state and the commit
// engine, folds certificates from the input stream into the DAG one at
// a time, and fans every newly committed certificate out to the primary
// feedback stream and the application output stream.
type Consensus struct {
	committee *config.Committee
	gcDepth   uint64

	rxPrimary *channel.Channel[Certificate]
	txPrimary *channel.Channel[Certificate]
	txOutput  *channel.Channel[Certificate]

	engine Engine
	logger hclog.Logger
	wg     sync.WaitGroup
}

// NewConsensus wires the driver to its three streams. The driver takes
// sole ownership of the state it builds from genesis; rxPrimary is
// drained until closed.
func NewConsensus(committee *config.Committee, gcDepth uint64,
	rxPrimary, txPrimary, txOutput *channel.Channel[Certificate],
	engine Engine, logger hclog.Logger) *Consensus {
	return &Consensus{
		committee: committee,
		gcDepth:   gcDepth,
		rxPrimary: rxPrimary,
		txPrimary: txPrimary,
		txOutput:  txOutput,
		engine:    engine,
		logger:    logger.Named("consensus"),
	}
}

// Spawn starts the single worker goroutine.
func (c *Consensus) Spawn() {
	c.wg.Add(1)
	go c.run()
}

// Wait blocks until the worker has exited. The worker exits once the
// input stream is closed and drained; pending commits are flushed first.
func (c *Consensus) Wait() {
	c.wg.Wait()
}

func (c *Consensus) run() {
	defer c.wg.Done()

	state := NewState(Genesis(c.committee))

	for {
		cert, ok := c.rxPrimary.Receive()
		if !ok {
			c.logger.Info("input stream closed, stopping",
				"last-committed-round", state.LastCommittedRound)
			c.txPrimary.Close()
			c.txOutput.Close()
			return
		}

		state.Insert(cert)

		sequence := c.engine.ProcessRound(cert.Round(), state, c.committee)
		for _, committed := range sequence {
			c.txPrimary.Send(committed)
			c.txOutput.Send(committed)
			state.Update(committed, c.gcDepth)
		}
	}
}
