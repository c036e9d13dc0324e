package primary

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/Praexor/narwhal-plus-plus/channel"
	"github.com/Praexor/narwhal-plus-plus/config"
	"github.com/Praexor/narwhal-plus-plus/consensus"
	"github.com/Praexor/narwhal-plus-plus/sign"
)

// LoadGenerator synthesizes fully-connected certificate rounds straight
// into the consensus input stream, bypassing the network, to benchmark
// the commit engines.
type LoadGenerator struct {
	committee *config.Committee
	tx        *channel.Channel[consensus.Certificate]
	interval  time.Duration
	logger    hclog.Logger
}

// NewLoadGenerator creates a generator feeding the given stream.
func NewLoadGenerator(committee *config.Committee, tx *channel.Channel[consensus.Certificate],
	interval time.Duration, logger hclog.Logger) *LoadGenerator {
	return &LoadGenerator{
		committee: committee,
		tx:        tx,
		interval:  interval,
		logger:    logger.Named("loadgen"),
	}
}

// Run feeds complete rounds until the given number of rounds is
// reached; 0 means run forever.
func (g *LoadGenerator) Run(rounds uint64) {
	previous := make([]sign.Digest, 0, g.committee.Size())
	genesis := consensus.Genesis(g.committee)
	for i := range genesis {
		previous = append(previous, genesis[i].Digest())
	}

	for round := uint64(1); rounds == 0 || round <= rounds; round++ {
		current := make([]sign.Digest, 0, g.committee.Size())
		for _, pk := range g.committee.SortedAuthorities() {
			cert := consensus.Certificate{Header: consensus.Header{
				Author:  pk,
				Round:   round,
				Parents: previous,
			}}
			g.tx.Send(cert)
			current = append(current, cert.Digest())
		}
		previous = current
		if g.interval > 0 {
			time.Sleep(g.interval)
		}
	}
	g.logger.Info("load generation finished", "rounds", rounds)
}
