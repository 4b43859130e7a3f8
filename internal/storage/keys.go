package storage

import "encoding/binary"

// HeightKey encodes a block height as a big-endian 8-byte key, so
// blocks_by_height iterates in ascending height order under bolt's
// byte-sorted keys.
func HeightKey(height uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height)
	return b[:]
}

// ChainStateKey is the single fixed key chain_state is stored under; there
// is only ever one current chain head.
var ChainStateKey = []byte("head")
