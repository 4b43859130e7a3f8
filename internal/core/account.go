package core

import "fmt"

// AccountKind tags the Account union: a Wallet holds a spendable balance, a
// Contract additionally carries its code digest and local storage root.
type AccountKind byte

const (
	AccountWallet AccountKind = iota + 1
	AccountContract
)

// Account is a tagged variant over Wallet and Contract. Nonce is strictly
// non-decreasing and advances by exactly one per applied transaction from
// this account.
type Account struct {
	Kind        AccountKind
	Balance     uint64
	Nonce       uint64
	CodeHash    Hash // Contract only
	StorageRoot Hash // Contract only
}

// NewWallet returns a zero-balance wallet account, the shape created on
// first credit.
func NewWallet() Account { return Account{Kind: AccountWallet} }

// NewContract returns a freshly deployed contract account.
func NewContract(codeHash Hash) Account {
	return Account{Kind: AccountContract, CodeHash: codeHash}
}

func (a Account) Encode() []byte {
	e := newEncoder()
	e.byte(byte(a.Kind))
	e.u64(a.Balance)
	e.u64(a.Nonce)
	e.fixed(a.CodeHash[:])
	e.fixed(a.StorageRoot[:])
	return e.bytes()
}

func DecodeAccount(b []byte) (Account, error) {
	d := newDecoder(b)
	kindByte, err := d.requireByte()
	if err != nil {
		return Account{}, err
	}
	var a Account
	a.Kind = AccountKind(kindByte)
	if a.Kind != AccountWallet && a.Kind != AccountContract {
		return Account{}, fmt.Errorf("%w: unknown account kind %d", ErrCodec, kindByte)
	}
	if a.Balance, err = d.requireU64(); err != nil {
		return Account{}, err
	}
	if a.Nonce, err = d.requireU64(); err != nil {
		return Account{}, err
	}
	codeHash, err := d.requireFixed(HashSize)
	if err != nil {
		return Account{}, err
	}
	copy(a.CodeHash[:], codeHash)
	storageRoot, err := d.requireFixed(HashSize)
	if err != nil {
		return Account{}, err
	}
	copy(a.StorageRoot[:], storageRoot)
	if err := d.finish(); err != nil {
		return Account{}, err
	}
	return a, nil
}
