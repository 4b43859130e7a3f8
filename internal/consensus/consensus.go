// Package consensus implements BaaLS's single-authority block production:
// one signer is trusted to propose every block, so there is no voting or
// validator set, only signature and linkage checks on whatever that signer
// produces or whatever an embedder feeds in from elsewhere.
package consensus

import "time"

// DefaultBlockInterval is how often the engine's production loop attempts
// a new block when nothing else triggers one sooner.
const DefaultBlockInterval = 2 * time.Second

// DefaultMaxTxsPerBlock bounds how many mempool candidates a single
// GenerateBlock call will pull.
const DefaultMaxTxsPerBlock = 500
