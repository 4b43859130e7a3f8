package core

import "golang.org/x/crypto/ed25519"

// BlockHeader carries everything needed to verify a block without its
// transaction bodies. Signature authenticates every other header field
// except itself and Hash; Hash then digests the header including the
// signature, so the hash commits to "this exact signed header".
type BlockHeader struct {
	Height      uint64
	Timestamp   int64
	PrevHash    Hash
	TxRoot      Hash
	AccountsRoot Hash
	Signer      PublicKey
	Signature   Signature
	Hash        Hash
}

// Block is a header plus its ordered transaction list. Transaction order is
// part of consensus: two blocks with the same transactions in different
// order are different blocks.
type Block struct {
	Header       BlockHeader
	Transactions []Transaction
}

// encodeSignable canonically encodes every header field except Signature
// and Hash; this is what the proposer signs.
func (h *BlockHeader) encodeSignable() []byte {
	e := newEncoder()
	e.u64(h.Height)
	e.i64(h.Timestamp)
	e.fixed(h.PrevHash[:])
	e.fixed(h.TxRoot[:])
	e.fixed(h.AccountsRoot[:])
	e.fixed(h.Signer[:])
	return e.bytes()
}

// encodeHashable canonically encodes every header field except Hash,
// i.e. the signable bytes plus the Signature that was computed over them.
func (h *BlockHeader) encodeHashable() []byte {
	e := newEncoder()
	e.fixed(h.encodeSignable())
	e.fixed(h.Signature[:])
	return e.bytes()
}

// Sign signs the header with sk (which must correspond to h.Signer), then
// recomputes Hash over the now-complete, signed header.
func (h *BlockHeader) Sign(sk ed25519.PrivateKey) {
	sig := ed25519.Sign(sk, h.encodeSignable())
	copy(h.Signature[:], sig)
	h.ComputeHash()
}

// ComputeHash recomputes h.Hash from the current field values, including
// the signature. Call this after Signature is set (Sign does this already).
func (h *BlockHeader) ComputeHash() Hash {
	h.Hash = HashBytes(h.encodeHashable())
	return h.Hash
}

// VerifySignature checks that Signature is a valid Ed25519 signature by
// Signer over the header's signable bytes. It does not check Hash.
func (h *BlockHeader) VerifySignature() bool {
	return ed25519.Verify(h.Signer[:], h.encodeSignable(), h.Signature[:])
}

// VerifyHash checks that Hash matches the current field values.
func (h *BlockHeader) VerifyHash() bool {
	return h.Hash == HashBytes(h.encodeHashable())
}

func (h *BlockHeader) Encode() []byte {
	e := newEncoder()
	e.fixed(h.encodeHashable())
	e.fixed(h.Hash[:])
	return e.bytes()
}

func DecodeBlockHeader(b []byte) (BlockHeader, error) {
	d := newDecoder(b)
	var h BlockHeader
	var err error

	if h.Height, err = d.requireU64(); err != nil {
		return BlockHeader{}, err
	}
	if h.Timestamp, err = d.requireI64(); err != nil {
		return BlockHeader{}, err
	}
	prevHash, err := d.requireFixed(HashSize)
	if err != nil {
		return BlockHeader{}, err
	}
	copy(h.PrevHash[:], prevHash)

	txRoot, err := d.requireFixed(HashSize)
	if err != nil {
		return BlockHeader{}, err
	}
	copy(h.TxRoot[:], txRoot)

	accountsRoot, err := d.requireFixed(HashSize)
	if err != nil {
		return BlockHeader{}, err
	}
	copy(h.AccountsRoot[:], accountsRoot)

	signer, err := d.requireFixed(PublicKeySize)
	if err != nil {
		return BlockHeader{}, err
	}
	copy(h.Signer[:], signer)

	sig, err := d.requireFixed(SignatureSize)
	if err != nil {
		return BlockHeader{}, err
	}
	copy(h.Signature[:], sig)

	hash, err := d.requireFixed(HashSize)
	if err != nil {
		return BlockHeader{}, err
	}
	copy(h.Hash[:], hash)

	if err := d.finish(); err != nil {
		return BlockHeader{}, err
	}
	return h, nil
}

// ComputeTxRoot digests the ordered transaction hashes. Order is
// significant: it is part of what the header commits to.
func ComputeTxRoot(txs []Transaction) Hash {
	e := newEncoder()
	for i := range txs {
		e.fixed(txs[i].Hash[:])
	}
	return HashBytes(e.bytes())
}

func (b *Block) Encode() []byte {
	e := newEncoder()
	e.fixed(b.Header.Encode())
	e.u32(uint32(len(b.Transactions)))
	for i := range b.Transactions {
		e.bytesField(b.Transactions[i].Encode())
	}
	return e.bytes()
}

func DecodeBlock(raw []byte) (Block, error) {
	d := newDecoder(raw)

	headerLen := blockHeaderEncodedLen()
	headerBytes, err := d.requireFixed(headerLen)
	if err != nil {
		return Block{}, err
	}
	header, err := DecodeBlockHeader(headerBytes)
	if err != nil {
		return Block{}, err
	}

	count, err := d.requireU32()
	if err != nil {
		return Block{}, err
	}
	txs := make([]Transaction, 0, count)
	for i := uint32(0); i < count; i++ {
		txBytes, err := d.requireBytesField()
		if err != nil {
			return Block{}, err
		}
		tx, err := DecodeTransaction(txBytes)
		if err != nil {
			return Block{}, err
		}
		txs = append(txs, tx)
	}
	if err := d.finish(); err != nil {
		return Block{}, err
	}
	return Block{Header: header, Transactions: txs}, nil
}

// blockHeaderEncodedLen is the fixed encoded size of a BlockHeader: every
// field is fixed-width, so the header has a constant length regardless of
// content.
func blockHeaderEncodedLen() int {
	return 8 + 8 + HashSize + HashSize + HashSize + PublicKeySize + SignatureSize + HashSize
}
