package config

import (
	"sort"

	"github.com/Praexor/narwhal-plus-plus/sign"
)

// Stake is the voting weight of an authority.
type Stake = uint32

// Authority describes one validator of the committee.
type Authority struct {
	Stake       Stake
	PrimaryAddr string
	WorkerAddr  string
}

// Committee is the static set of authorities for an epoch.
type Committee struct {
	Authorities map[sign.PublicKey]Authority
}

// NewCommittee builds a committee from the given authorities.
func NewCommittee(authorities map[sign.PublicKey]Authority) *Committee {
	return &Committee{Authorities: authorities}
}

// Size returns the number of authorities.
func (c *Committee) Size() int {
	return len(c.Authorities)
}

// TotalStake returns the sum of all authorities' stake.
func (c *Committee) TotalStake() Stake {
	var total Stake
	for _, auth := range c.Authorities {
		total += auth.Stake
	}
	return total
}

// QuorumThreshold returns 2S/3 + 1, the stake a quorum must reach.
func (c *Committee) QuorumThreshold() Stake {
	return c.TotalStake()*2/3 + 1
}

// ValidityThreshold returns (S-1)/3 + 1, the stake that guarantees at
// least one honest authority.
func (c *Committee) ValidityThreshold() Stake {
	return (c.TotalStake()-1)/3 + 1
}

// Stake returns the stake of the given authority, or 0 if unknown.
func (c *Committee) Stake(name sign.PublicKey) Stake {
	return c.Authorities[name].Stake
}

// SortedAuthorities returns all public keys in ascending byte order.
// Every deterministic iteration over the committee uses this order.
func (c *Committee) SortedAuthorities() []sign.PublicKey {
	keys := make([]sign.PublicKey, 0, len(c.Authorities))
	for pk := range c.Authorities {
		keys = append(keys, pk)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
