package consensus

import "github.com/kdsmith18542/baals/internal/core"

// Authority is the single signer trusted to produce blocks. BaaLS has no
// validator set or stake weighting: a block is valid if and only if it is
// signed by this key and correctly linked to its parent.
type Authority struct {
	PublicKey core.PublicKey
}

// IsAuthorized reports whether signer is this chain's authority.
func (a Authority) IsAuthorized(signer core.PublicKey) bool {
	return signer == a.PublicKey
}
