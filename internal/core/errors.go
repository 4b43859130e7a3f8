package core

import "errors"

// ErrMismatchedRecipientKind is returned by callers validating a
// transaction's RecipientKind/PayloadKind pairing (Transfer must target a
// Wallet, Call must target a Contract; Deploy and Data leave RecipientKind
// unconstrained).
// core itself does not enforce this pairing — it is a ledger-level rule —
// but the sentinel lives here so both packages agree on its identity.
var ErrMismatchedRecipientKind = errors.New("recipient kind does not match payload kind")
