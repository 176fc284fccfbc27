package types

import "cosmossdk.io/errors"

// Sentinel errors for the governance-core module (spec.md §7).
var (
	ErrUnauthorized          = errors.Register(ModuleName, 1, "unauthorized")
	ErrProposalNotFound      = errors.Register(ModuleName, 2, "proposal not found")
	ErrInsufficientStake     = errors.Register(ModuleName, 3, "minimum total stake in system not met")
	ErrNoVotingPower         = errors.Register(ModuleName, 4, "caller has zero voting power")
	ErrProposalNotActive     = errors.Register(ModuleName, 5, "proposal not active")
	ErrProposalNotPassed     = errors.Register(ModuleName, 6, "proposal not passed")
	ErrVotingPeriodEnded     = errors.Register(ModuleName, 7, "voting period ended")
	ErrInvalidVoteOption     = errors.Register(ModuleName, 8, "invalid vote option")
	ErrExecutionDelayPending = errors.Register(ModuleName, 9, "proposal effective delay has not elapsed")
	ErrAlreadyExecuted       = errors.Register(ModuleName, 10, "proposal already executed")
	ErrVotingPeriodNotEnded  = errors.Register(ModuleName, 12, "voting period has not ended")
	// ErrMessagesCheckPassed is the sentinel the execution dry-run gate
	// returns on success: its final message is a self-call that
	// deliberately errors to prevent state commit in check mode, so
	// callers must treat this specific error as success of the check
	// (spec.md §4.G, §7).
	ErrMessagesCheckPassed = errors.Register(ModuleName, 11, "messages check passed")
)
