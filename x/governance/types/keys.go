package types

import "encoding/binary"

const (
	// ModuleName defines the governance-core module name.
	ModuleName = "governance"

	// StoreKey is the primary module store key.
	StoreKey = ModuleName

	// MemStoreKey defines the in-memory store key.
	MemStoreKey = "mem_governance"
)

var (
	// ProposalPrefix stores an active or terminal Proposal keyed by its id.
	ProposalPrefix = []byte{0x01}
	// PendingProposalPrefix stores a Proposal awaiting alignment, keyed by id.
	PendingProposalPrefix = []byte{0x02}
	// ProposalCounterKey tracks the next proposal id.
	ProposalCounterKey = []byte{0x03}
	// VotePrefix stores a Vote keyed by (proposal_id, voter).
	VotePrefix = []byte{0x04}
	// ParamsKey stores the module-wide Params.
	ParamsKey = []byte{0x05}
)

// GetProposalKey returns the store key for an active/terminal proposal.
func GetProposalKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return append(ProposalPrefix, b...)
}

// GetPendingProposalKey returns the store key for a pending (pre-alignment) proposal.
func GetPendingProposalKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return append(PendingProposalPrefix, b...)
}

// GetVoteKey returns the store key for one voter's vote on one proposal.
func GetVoteKey(proposalID uint64, voter string) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, proposalID)
	key := append(VotePrefix, b...)
	return append(key, []byte(voter)...)
}

// GetVoteIterPrefix returns the store prefix for every vote on one proposal.
func GetVoteIterPrefix(proposalID uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, proposalID)
	return append(VotePrefix, b...)
}
