package consensus

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kdsmith18542/baals/internal/core"
	internalerrors "github.com/kdsmith18542/baals/internal/errors"
	"github.com/kdsmith18542/baals/internal/ledger"
)

// Validator accepts externally produced blocks: blocks an embedder fetched
// from elsewhere rather than generated locally via Proposer.
type Validator struct {
	authority Authority
	ledger    *ledger.Ledger
	log       *logrus.Entry
}

func NewValidator(authority Authority, l *ledger.Ledger) *Validator {
	return &Validator{authority: authority, ledger: l, log: logrus.WithField("component", "consensus")}
}

// ValidateBlock checks that block is signed by the chain's authority, then
// hands it to the ledger for linkage, tx-root, and state-root
// verification. A block whose PrevHash doesn't match the current head but
// whose height is not ahead of it is logged as a diagnostic: under honest
// single-authority operation this should never happen, so its appearance
// usually means two processes are producing blocks against the same
// authority key, or a snapshot was restored out of order.
func (v *Validator) ValidateBlock(block core.Block) error {
	if !v.authority.IsAuthorized(block.Header.Signer) {
		return fmt.Errorf("%w: signer %s", internalerrors.ErrConsensusUnauthorizedSigner, block.Header.Signer)
	}

	head, err := v.ledger.Head()
	if err != nil {
		return err
	}
	if block.Header.PrevHash != head.LatestHash && block.Header.Height <= head.LatestHeight {
		v.log.WithFields(logrus.Fields{
			"block_height":  block.Header.Height,
			"block_hash":    block.Header.Hash,
			"head_height":   head.LatestHeight,
			"head_hash":     head.LatestHash,
		}).Warn("received block diverges from local head at or below current height; possible duplicate authority or out-of-order restore")
	}

	return v.ledger.ApplyBlock(block)
}
