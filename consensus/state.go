package consensus

import "github.com/Praexor/narwhal-plus-plus/sign"

// DagEntry pairs a certificate with its cached digest.
type DagEntry struct {
	Digest      sign.Digest
	Certificate Certificate
}

// DAG maps round -> author -> certificate. At most one certificate per
// (author, round) is ever stored.
type DAG map[uint64]map[sign.PublicKey]DagEntry

// State tracks the DAG together with per-author and global commit
// progress. It is owned by the consensus driver; engines read it.
type State struct {
	LastCommittedRound uint64
	LastCommitted      map[sign.PublicKey]uint64
	Dag                DAG

	// gcRound is the lowest round still retained; inserts below it are
	// obsolete and dropped.
	gcRound uint64
}

// NewState pins the genesis certificates into round 0 and initializes
// every authority's commit watermark.
func NewState(genesis []Certificate) *State {
	s := &State{
		LastCommitted: make(map[sign.PublicKey]uint64, len(genesis)),
		Dag:           make(DAG),
	}
	genesisRound := make(map[sign.PublicKey]DagEntry, len(genesis))
	for _, cert := range genesis {
		cert := cert
		genesisRound[cert.Origin()] = DagEntry{Digest: cert.Digest(), Certificate: cert}
		s.LastCommitted[cert.Origin()] = cert.Round()
	}
	s.Dag[0] = genesisRound
	return s
}

// Insert adds a certificate to the DAG. A certificate for a round that
// was already garbage-collected is obsolete and silently dropped, and an
// existing (author, round) entry is never overwritten.
func (s *State) Insert(cert Certificate) {
	round := cert.Round()
	if round < s.gcRound {
		return
	}
	authors, ok := s.Dag[round]
	if !ok {
		authors = make(map[sign.PublicKey]DagEntry)
		s.Dag[round] = authors
	}
	if _, ok := authors[cert.Origin()]; ok {
		return
	}
	authors[cert.Origin()] = DagEntry{Digest: cert.Digest(), Certificate: cert}
}

// Get returns the entry for (round, author), if present.
func (s *State) Get(round uint64, author sign.PublicKey) (DagEntry, bool) {
	entry, ok := s.Dag[round][author]
	return entry, ok
}

// Update records a committed certificate and prunes every round deeper
// than gcDepth below the new global commit watermark.
func (s *State) Update(cert Certificate, gcDepth uint64) {
	origin := cert.Origin()
	if round := cert.Round(); round > s.LastCommitted[origin] {
		s.LastCommitted[origin] = round
	}

	var maxRound uint64
	for _, round := range s.LastCommitted {
		if round > maxRound {
			maxRound = round
		}
	}
	s.LastCommittedRound = maxRound

	if maxRound > gcDepth {
		s.gcRound = maxRound - gcDepth
	}
	for round := range s.Dag {
		if round+gcDepth < maxRound {
			delete(s.Dag, round)
		}
	}
}
