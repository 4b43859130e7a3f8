package core

// DeriveContractID computes the address a Deploy transaction's contract
// will live at: the digest of the deploying sender, the sender's nonce
// value *before* this transaction was applied, and the code's own hash.
// Binding the pre-tx nonce in means the same sender deploying twice never
// collides, without needing any separate counter.
func DeriveContractID(sender Address, nonceBeforeTx uint64, codeHash Hash) Address {
	e := newEncoder()
	e.fixed(sender[:])
	e.u64(nonceBeforeTx)
	e.fixed(codeHash[:])
	return Address(HashBytes(e.bytes()))
}
