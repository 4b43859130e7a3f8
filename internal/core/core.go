package core

// ProtocolVersion identifies the canonical encoding and hashing scheme this
// package implements. Bump it whenever encodePreimage/encodeSignable layouts
// change in an incompatible way.
const ProtocolVersion = 1

// GenesisHeight is the height of the first block in any chain.
const GenesisHeight = 0
