package core

// ChainState is the engine's single head pointer: the latest committed
// block plus the account-trie root that block produced. The ledger updates
// it atomically alongside the block and account writes in the same storage
// batch, so a crash never leaves it pointing past what was actually
// committed.
type ChainState struct {
	LatestHash      Hash
	LatestHeight    uint64
	LatestTimestamp int64
	AccountsRoot    Hash

	// TrackSupply gates whether TotalSupply is maintained. Embedders that
	// mint or burn outside the Transfer/Deploy/Call pipeline can disable
	// this rather than have the ledger fight a number it doesn't control.
	TrackSupply bool
	TotalSupply uint64
}

// Genesis returns the zero-height chain state a fresh store starts from.
func Genesis(accountsRoot Hash, trackSupply bool) ChainState {
	return ChainState{
		LatestHash:      Hash{},
		LatestHeight:    0,
		LatestTimestamp: 0,
		AccountsRoot:    accountsRoot,
		TrackSupply:     trackSupply,
	}
}

func (s ChainState) Encode() []byte {
	e := newEncoder()
	e.fixed(s.LatestHash[:])
	e.u64(s.LatestHeight)
	e.i64(s.LatestTimestamp)
	e.fixed(s.AccountsRoot[:])
	if s.TrackSupply {
		e.byte(1)
	} else {
		e.byte(0)
	}
	e.u64(s.TotalSupply)
	return e.bytes()
}

func DecodeChainState(b []byte) (ChainState, error) {
	d := newDecoder(b)
	var s ChainState

	latestHash, err := d.requireFixed(HashSize)
	if err != nil {
		return ChainState{}, err
	}
	copy(s.LatestHash[:], latestHash)

	if s.LatestHeight, err = d.requireU64(); err != nil {
		return ChainState{}, err
	}
	if s.LatestTimestamp, err = d.requireI64(); err != nil {
		return ChainState{}, err
	}

	accountsRoot, err := d.requireFixed(HashSize)
	if err != nil {
		return ChainState{}, err
	}
	copy(s.AccountsRoot[:], accountsRoot)

	trackSupply, err := d.requireByte()
	if err != nil {
		return ChainState{}, err
	}
	s.TrackSupply = trackSupply != 0

	if s.TotalSupply, err = d.requireU64(); err != nil {
		return ChainState{}, err
	}
	if err := d.finish(); err != nil {
		return ChainState{}, err
	}
	return s, nil
}
