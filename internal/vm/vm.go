// Package vm implements BaaLS's contract sandbox: a fuel-metered WebAssembly
// execution environment with a fixed host-call surface, built on
// wasmerio/wasmer-go. Every exported call (the Deploy-time init, or a later
// Call) runs in its own instance; nothing survives an Execute beyond what
// the host explicitly staged through HostContext. Fuel is charged per host
// call and per byte those calls move; instructions executed between host
// calls are not metered.
package vm

import (
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"
	"golang.org/x/crypto/ed25519"

	"github.com/kdsmith18542/baals/internal/core"
	internalerrors "github.com/kdsmith18542/baals/internal/errors"
)

// MaxCallDepth bounds contract-to-contract reentrancy: call_contract beyond
// this depth is refused rather than risk an unbounded host-call stack.
const MaxCallDepth = 8

// HostContext is everything a running contract can observe or mutate,
// supplied by the ledger for the duration of one Execute call. Reads and
// writes go through an overlay the ledger owns; the sandbox never touches
// storage directly.
type HostContext struct {
	Sender      core.Address
	ContractID  core.Address
	BlockHeight uint64
	BlockTime   int64
	Input       []byte
	CallDepth   int

	StorageRead   func(key []byte) ([]byte, bool)
	StorageWrite  func(key, value []byte)
	StorageRemove func(key []byte)

	// CallContract invokes another deployed contract as a nested call,
	// returning its output. The ledger is responsible for keeping
	// CallDepth consistent with this closure's own recursion.
	CallContract func(target core.Address, method string, args []byte, fuelLimit uint64) ([]byte, error)

	EmitEvent func(topic string, data []byte)

	// set by Execute itself once a contract calls revert; the ledger
	// checks this to distinguish a clean return from a revert.
	reverted bool
	events   []Event
}

// Event is a single emitted log entry, surfaced to callers of Execute for
// indexing and for CLI/RPC display.
type Event struct {
	Topic string
	Data  []byte
}

// Result is everything Execute produces: fuel actually consumed and
// whether the call reverted, plus any events it emitted.
type Result struct {
	FuelUsed   uint64
	Reverted   bool
	RevertData []byte
	Events     []Event
}

// Validate checks that code is a well-formed WASM module exposing the named
// export, without running it. This is the deploy-time gate the ledger runs
// on every Deploy transaction before executing its init export (mempool
// admission does not call it): beyond module
// well-formedness and the required export, it caps module size and
// declared memory, rejects floating-point and SIMD instructions (BaaLS
// keeps floating point out of every consensus-critical path), requires
// every import to resolve against the fixed host-call table, and refuses a
// module that tries to export a host-reserved name.
func Validate(code []byte, export string) error {
	if len(code) > MaxModuleSize {
		return fmt.Errorf("%w: module size %d exceeds limit of %d bytes", internalerrors.ErrContractValidation, len(code), MaxModuleSize)
	}

	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)
	module, err := wasmer.NewModule(store, code)
	if err != nil {
		return fmt.Errorf("%w: %v", internalerrors.ErrContractValidation, err)
	}

	for _, imp := range module.Imports() {
		if imp.Module() != "env" || !isHostCallName(imp.Name()) {
			return fmt.Errorf("%w: unresolved import %s.%s", internalerrors.ErrContractValidation, imp.Module(), imp.Name())
		}
	}

	found := false
	for _, exp := range module.Exports() {
		if isHostCallName(exp.Name()) {
			return fmt.Errorf("%w: export %q collides with a reserved host-call name", internalerrors.ErrContractValidation, exp.Name())
		}
		if exp.Name() == export {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: missing export %q", internalerrors.ErrContractValidation, export)
	}

	if err := validateSections(code); err != nil {
		return fmt.Errorf("%w: %v", internalerrors.ErrContractValidation, err)
	}
	return nil
}

// Execute instantiates code with fuel metering, runs the named export, and
// returns the observable outcome. An explicit revert from the guest is
// reported in Result (Reverted, RevertData) rather than as a Go error. A
// trap comes back as ErrContractTrap and an exhausted budget as
// ErrContractOutOfFuel, alongside sandbox-level failures (bad module,
// missing export, host abuse).
func Execute(code []byte, export string, fuelLimit uint64, hctx *HostContext) (Result, error) {
	if hctx.CallDepth > MaxCallDepth {
		return Result{}, fmt.Errorf("%w: call depth %d exceeds limit %d", internalerrors.ErrContractHostAbuse, hctx.CallDepth, MaxCallDepth)
	}

	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)
	module, err := wasmer.NewModule(store, code)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", internalerrors.ErrContractValidation, err)
	}

	meter := newFuelMeter(fuelLimit)
	imports := registerHost(store, hctx, meter)

	instance, err := wasmer.NewInstance(module, imports)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", internalerrors.ErrContractValidation, err)
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return Result{}, fmt.Errorf("%w: module does not export linear memory", internalerrors.ErrContractValidation)
	}
	meter.mem = mem

	fn, err := instance.Exports.GetFunction(export)
	if err != nil {
		return Result{}, fmt.Errorf("%w: missing export %q", internalerrors.ErrContractValidation, export)
	}

	_, callErr := fn()
	if meter.outOfFuel {
		return Result{}, fmt.Errorf("%w: consumed %d of %d fuel", internalerrors.ErrContractOutOfFuel, meter.used, fuelLimit)
	}

	result := Result{FuelUsed: meter.used, Events: hctx.events}
	if hctx.reverted {
		result.Reverted = true
		result.RevertData = meter.revertData
		return result, nil
	}
	if callErr != nil {
		return Result{}, fmt.Errorf("%w: %v", internalerrors.ErrContractTrap, callErr)
	}
	return result, nil
}

// fuelMeter tracks consumption against a fixed budget and holds the guest
// memory handle host functions read/write through.
type fuelMeter struct {
	limit      uint64
	used       uint64
	outOfFuel  bool
	mem        *wasmer.Memory
	revertData []byte
}

func newFuelMeter(limit uint64) *fuelMeter { return &fuelMeter{limit: limit} }

// charge deducts cost fuel units, latching outOfFuel once the budget is
// exceeded so the caller can abort cleanly at the next host-call boundary.
func (m *fuelMeter) charge(cost uint64) bool {
	if m.outOfFuel {
		return false
	}
	m.used += cost
	if m.used > m.limit {
		m.outOfFuel = true
		return false
	}
	return true
}

func (m *fuelMeter) read(ptr, length int32) []byte {
	data := m.mem.Data()
	if ptr < 0 || length < 0 || int(ptr)+int(length) > len(data) {
		return nil
	}
	out := make([]byte, length)
	copy(out, data[ptr:int(ptr)+int(length)])
	return out
}

func (m *fuelMeter) write(ptr int32, value []byte) bool {
	data := m.mem.Data()
	if ptr < 0 || int(ptr)+len(value) > len(data) {
		return false
	}
	copy(data[ptr:], value)
	return true
}

// Per-byte and per-call fuel costs. These are deliberately simple and
// uniform across host calls: the point of fuel is a deterministic,
// platform-independent execution budget, not an accurate model of real CPU
// cost.
const (
	costPerByte      = 1
	costHostCall     = 50
	costCallContract = 10_000
)

func i32Result(v int32) []wasmer.Value { return []wasmer.Value{wasmer.NewI32(v)} }

// registerHost wires BaaLS's fixed host-call surface into the "env"
// namespace wasmer-go resolves guest imports from.
func registerHost(store *wasmer.Store, h *HostContext, meter *fuelMeter) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	i32Kinds := func(n int) []wasmer.ValueKind {
		out := make([]wasmer.ValueKind, n)
		for i := range out {
			out[i] = wasmer.I32
		}
		return out
	}

	fn := func(params, results int, cb func(args []wasmer.Value) ([]wasmer.Value, error)) *wasmer.Function {
		return wasmer.NewFunction(
			store,
			wasmer.NewFunctionType(wasmer.NewValueTypes(i32Kinds(params)...), wasmer.NewValueTypes(i32Kinds(results)...)),
			func(args []wasmer.Value) ([]wasmer.Value, error) {
				if !meter.charge(costHostCall) {
					return i32Result(-1), nil
				}
				return cb(args)
			},
		)
	}

	storageRead := fn(3, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		keyPtr, keyLen, dstPtr := args[0].I32(), args[1].I32(), args[2].I32()
		key := meter.read(keyPtr, keyLen)
		val, ok := h.StorageRead(key)
		if !ok {
			return i32Result(-1), nil
		}
		if !meter.charge(uint64(len(val)) * costPerByte) {
			return i32Result(-1), nil
		}
		if !meter.write(dstPtr, val) {
			return i32Result(-1), nil
		}
		return i32Result(int32(len(val))), nil
	})

	storageWrite := fn(4, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		keyPtr, keyLen, valPtr, valLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
		key := meter.read(keyPtr, keyLen)
		val := meter.read(valPtr, valLen)
		if !meter.charge(uint64(len(val)) * costPerByte) {
			return i32Result(-1), nil
		}
		h.StorageWrite(key, val)
		return i32Result(0), nil
	})

	storageRemove := fn(2, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		keyPtr, keyLen := args[0].I32(), args[1].I32()
		key := meter.read(keyPtr, keyLen)
		h.StorageRemove(key)
		return i32Result(0), nil
	})

	getSender := fn(1, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		dstPtr := args[0].I32()
		if !meter.write(dstPtr, h.Sender[:]) {
			return i32Result(-1), nil
		}
		return i32Result(int32(len(h.Sender))), nil
	})

	getContractID := fn(1, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		dstPtr := args[0].I32()
		if !meter.write(dstPtr, h.ContractID[:]) {
			return i32Result(-1), nil
		}
		return i32Result(int32(len(h.ContractID))), nil
	})

	getBlockHeight := fn(0, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		return i32Result(int32(h.BlockHeight)), nil
	})

	getBlockTimestamp := fn(0, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		return i32Result(int32(h.BlockTime)), nil
	})

	getInput := fn(1, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		dstPtr := args[0].I32()
		if !meter.write(dstPtr, h.Input) {
			return i32Result(-1), nil
		}
		return i32Result(int32(len(h.Input))), nil
	})

	hashSHA256 := fn(3, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		srcPtr, srcLen, dstPtr := args[0].I32(), args[1].I32(), args[2].I32()
		data := meter.read(srcPtr, srcLen)
		if !meter.charge(uint64(len(data)) * costPerByte) {
			return i32Result(-1), nil
		}
		digest := core.HashBytes(data)
		if !meter.write(dstPtr, digest[:]) {
			return i32Result(-1), nil
		}
		return i32Result(int32(len(digest))), nil
	})

	verifySig := fn(6, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		pkPtr, pkLen := args[0].I32(), args[1].I32()
		msgPtr, msgLen := args[2].I32(), args[3].I32()
		sigPtr, sigLen := args[4].I32(), args[5].I32()

		pk := meter.read(pkPtr, pkLen)
		msg := meter.read(msgPtr, msgLen)
		sig := meter.read(sigPtr, sigLen)
		if len(pk) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
			return i32Result(0), nil
		}
		if !meter.charge(uint64(len(msg)) * costPerByte) {
			return i32Result(-1), nil
		}
		if ed25519.Verify(pk, msg, sig) {
			return i32Result(1), nil
		}
		return i32Result(0), nil
	})

	callContract := fn(5, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		targetPtr, methodPtr, methodLen, argsPtr, argsLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32(), args[4].I32()
		if !meter.charge(costCallContract) {
			return i32Result(-1), nil
		}
		var target core.Address
		copy(target[:], meter.read(targetPtr, int32(core.HashSize)))
		method := string(meter.read(methodPtr, methodLen))
		callArgs := meter.read(argsPtr, argsLen)

		remaining := meter.limit - meter.used
		out, err := h.CallContract(target, method, callArgs, remaining)
		if err != nil {
			return i32Result(-1), nil
		}
		meter.revertData = out
		return i32Result(int32(len(out))), nil
	})

	readCallResult := fn(1, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		dstPtr := args[0].I32()
		if !meter.write(dstPtr, meter.revertData) {
			return i32Result(-1), nil
		}
		return i32Result(int32(len(meter.revertData))), nil
	})

	emitEvent := fn(4, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		topicPtr, topicLen, dataPtr, dataLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
		topic := string(meter.read(topicPtr, topicLen))
		data := meter.read(dataPtr, dataLen)
		h.events = append(h.events, Event{Topic: topic, Data: data})
		if h.EmitEvent != nil {
			h.EmitEvent(topic, data)
		}
		return nil, nil
	})

	revert := fn(2, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		ptr, length := args[0].I32(), args[1].I32()
		meter.revertData = meter.read(ptr, length)
		h.reverted = true
		return nil, nil
	})

	imports.Register("env", map[string]wasmer.IntoExtern{
		"storage_read":        storageRead,
		"storage_write":       storageWrite,
		"storage_remove":      storageRemove,
		"get_sender":          getSender,
		"get_contract_id":     getContractID,
		"get_block_height":    getBlockHeight,
		"get_block_timestamp": getBlockTimestamp,
		"get_input":           getInput,
		"hash_sha256":         hashSHA256,
		"verify_sig":          verifySig,
		"call_contract":       callContract,
		"read_call_result":    readCallResult,
		"emit_event":          emitEvent,
		"revert":              revert,
	})

	return imports
}
