package vm

import "fmt"

// MaxModuleSize bounds the raw byte size of a deployable WASM module.
// MaxMemoryPages bounds the linear memory a module may declare or import,
// in 64KiB pages.
const (
	MaxModuleSize  = 512 * 1024
	MaxMemoryPages = 16
)

// hostCallNames mirrors the "env" import table registerHost wires up: the
// only names a guest module's imports may resolve against, and the names a
// guest module is forbidden from exporting itself.
var hostCallNames = []string{
	"storage_read", "storage_write", "storage_remove",
	"get_sender", "get_contract_id", "get_block_height", "get_block_timestamp",
	"get_input", "hash_sha256", "verify_sig",
	"call_contract", "read_call_result", "emit_event", "revert",
}

func isHostCallName(name string) bool {
	for _, n := range hostCallNames {
		if n == name {
			return true
		}
	}
	return false
}

// WASM binary section identifiers relevant to validateSections.
const (
	sectionType   = 1
	sectionImport = 2
	sectionMemory = 5
	sectionGlobal = 6
	sectionCode   = 10
)

const wasmHeaderSize = 8 // 4-byte magic + 4-byte version, already checked by wasmer.NewModule

// floatValType and float64ValType are the WASM value-type encodings barred
// from consensus-critical code: no floating-point locals, globals, or
// function signatures.
const (
	floatValType   = 0x7D // f32
	float64ValType = 0x7C // f64
)

// validateSections walks the raw module bytes BaaLS's own way: wasmer-go's
// Module gives us exports/imports by name, but not instruction-level
// introspection, so the memory-size and floating-point/SIMD disallow-list
// checks are done directly against the binary sections.
func validateSections(code []byte) error {
	return walkSections(code, func(id byte, payload []byte) error {
		switch id {
		case sectionType:
			return checkTypeSection(payload)
		case sectionImport:
			return checkImportSectionLimits(payload)
		case sectionMemory:
			return checkMemorySection(payload)
		case sectionGlobal:
			return checkGlobalSection(payload)
		case sectionCode:
			return checkCodeSection(payload)
		}
		return nil
	})
}

func walkSections(code []byte, visit func(id byte, payload []byte) error) error {
	if len(code) < wasmHeaderSize {
		return fmt.Errorf("module shorter than WASM header")
	}
	off := wasmHeaderSize
	for off < len(code) {
		id := code[off]
		off++
		size, next, err := readULEB128(code, off)
		if err != nil {
			return err
		}
		off = next
		end := off + int(size)
		if end > len(code) {
			return fmt.Errorf("section %d size exceeds module length", id)
		}
		if err := visit(id, code[off:end]); err != nil {
			return err
		}
		off = end
	}
	return nil
}

func checkTypeSection(payload []byte) error {
	count, off, err := readULEB128(payload, 0)
	if err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		if off >= len(payload) || payload[off] != 0x60 {
			return fmt.Errorf("unsupported function type form")
		}
		off++
		off, err = skipValTypeVector(payload, off, "function parameter")
		if err != nil {
			return err
		}
		off, err = skipValTypeVector(payload, off, "function result")
		if err != nil {
			return err
		}
	}
	return nil
}

func skipValTypeVector(payload []byte, off int, what string) (int, error) {
	count, next, err := readULEB128(payload, off)
	if err != nil {
		return 0, err
	}
	off = next
	for i := uint64(0); i < count; i++ {
		if off >= len(payload) {
			return 0, fmt.Errorf("truncated %s list", what)
		}
		if payload[off] == floatValType || payload[off] == float64ValType {
			return 0, fmt.Errorf("disallowed floating-point %s", what)
		}
		off++
	}
	return off, nil
}

func checkImportSectionLimits(payload []byte) error {
	count, off, err := readULEB128(payload, 0)
	if err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		_, next, err := readName(payload, off)
		if err != nil {
			return err
		}
		off = next
		_, next, err = readName(payload, off)
		if err != nil {
			return err
		}
		off = next
		if off >= len(payload) {
			return fmt.Errorf("truncated import entry")
		}
		kind := payload[off]
		off++
		switch kind {
		case 0: // func: typeidx
			_, next, err := readULEB128(payload, off)
			if err != nil {
				return err
			}
			off = next
		case 1: // table: elemtype + limits
			off++
			next, err := skipLimits(payload, off)
			if err != nil {
				return err
			}
			off = next
		case 2: // memory: limits
			min, max, hasMax, next, err := readLimits(payload, off)
			if err != nil {
				return err
			}
			off = next
			if min > MaxMemoryPages || (hasMax && max > MaxMemoryPages) {
				return fmt.Errorf("imported memory exceeds page limit %d", MaxMemoryPages)
			}
		case 3: // global: valtype + mutability
			off += 2
		default:
			return fmt.Errorf("unsupported import kind %d", kind)
		}
	}
	return nil
}

func checkMemorySection(payload []byte) error {
	count, off, err := readULEB128(payload, 0)
	if err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		min, max, hasMax, next, err := readLimits(payload, off)
		if err != nil {
			return err
		}
		off = next
		if min > MaxMemoryPages || (hasMax && max > MaxMemoryPages) {
			return fmt.Errorf("declared memory exceeds page limit %d", MaxMemoryPages)
		}
	}
	return nil
}

func checkGlobalSection(payload []byte) error {
	count, off, err := readULEB128(payload, 0)
	if err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		if off >= len(payload) {
			return fmt.Errorf("truncated global entry")
		}
		valtype := payload[off]
		off++
		if valtype == floatValType || valtype == float64ValType {
			return fmt.Errorf("disallowed floating-point global")
		}
		off++ // mutability
		next, err := skipConstExpr(payload, off)
		if err != nil {
			return err
		}
		off = next
	}
	return nil
}

// skipConstExpr consumes a global's initializer expression, which in the
// modules BaaLS accepts is always flat (no nested blocks): i32.const,
// i64.const, or global.get, terminated by end.
func skipConstExpr(body []byte, off int) (int, error) {
	for {
		if off >= len(body) {
			return 0, fmt.Errorf("truncated init expression")
		}
		op := body[off]
		off++
		if op == 0x0B {
			return off, nil
		}
		if isForbiddenOpcode(op) || op == 0xFD {
			return 0, fmt.Errorf("disallowed instruction 0x%02x in init expression", op)
		}
		switch op {
		case 0x41, 0x42, 0x23: // i32.const, i64.const, global.get
			_, next, err := readULEB128(body, off)
			if err != nil {
				return 0, err
			}
			off = next
		}
	}
}

func checkCodeSection(payload []byte) error {
	count, off, err := readULEB128(payload, 0)
	if err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		bodySize, next, err := readULEB128(payload, off)
		if err != nil {
			return err
		}
		off = next
		bodyEnd := off + int(bodySize)
		if bodyEnd > len(payload) {
			return fmt.Errorf("function body exceeds code section length")
		}
		instrOff, err := checkLocalDecls(payload, off, bodyEnd)
		if err != nil {
			return err
		}
		if err := scanInstructions(payload, instrOff, bodyEnd); err != nil {
			return err
		}
		off = bodyEnd
	}
	return nil
}

func checkLocalDecls(body []byte, off, end int) (int, error) {
	declCount, next, err := readULEB128(body, off)
	if err != nil {
		return 0, err
	}
	off = next
	for i := uint64(0); i < declCount; i++ {
		_, next, err := readULEB128(body, off)
		if err != nil {
			return 0, err
		}
		off = next
		if off >= end {
			return 0, fmt.Errorf("truncated local declaration")
		}
		valtype := body[off]
		off++
		if valtype == floatValType || valtype == float64ValType {
			return 0, fmt.Errorf("disallowed floating-point local declaration")
		}
	}
	return off, nil
}

// scanInstructions walks one function body's instruction stream, rejecting
// every floating-point and SIMD opcode and skipping the immediates of
// everything it allows. An opcode it doesn't recognize fails validation
// rather than risk misreading the immediates that follow it.
func scanInstructions(body []byte, off, end int) error {
	for off < end {
		op := body[off]
		off++
		if isForbiddenOpcode(op) {
			return fmt.Errorf("disallowed floating-point instruction 0x%02x", op)
		}
		if op == 0xFD {
			return fmt.Errorf("disallowed SIMD instruction")
		}

		switch {
		case op == 0x02 || op == 0x03 || op == 0x04: // block, loop, if: blocktype
			if off >= end {
				return fmt.Errorf("truncated block type")
			}
			bt := body[off]
			off++
			if bt == floatValType || bt == float64ValType {
				return fmt.Errorf("disallowed floating-point block type")
			}
		case op == 0x0E: // br_table: vec(labelidx) + labelidx
			count, next, err := readULEB128(body, off)
			if err != nil {
				return err
			}
			off = next
			for i := uint64(0); i <= count; i++ {
				_, next, err := readULEB128(body, off)
				if err != nil {
					return err
				}
				off = next
			}
		case op == 0x11: // call_indirect: typeidx, tableidx
			_, next, err := readULEB128(body, off)
			if err != nil {
				return err
			}
			off = next
			_, next, err = readULEB128(body, off)
			if err != nil {
				return err
			}
			off = next
		case op >= 0x28 && op <= 0x3E: // loads/stores: memarg (align, offset)
			_, next, err := readULEB128(body, off)
			if err != nil {
				return err
			}
			off = next
			_, next, err = readULEB128(body, off)
			if err != nil {
				return err
			}
			off = next
		case op == 0x3F || op == 0x40 || // memory.size, memory.grow: reserved byte
			op == 0x0C || op == 0x0D || op == 0x10 || // br, br_if, call: index
			op == 0x20 || op == 0x21 || op == 0x22 || op == 0x23 || op == 0x24 || // local/global access
			op == 0x41 || op == 0x42: // i32.const, i64.const
			_, next, err := readULEB128(body, off)
			if err != nil {
				return err
			}
			off = next
		case op == 0x00 || op == 0x01 || op == 0x05 || op == 0x0B || op == 0x0F || // unreachable, nop, else, end, return
			op == 0x1A || op == 0x1B || // drop, select
			(op >= 0x45 && op <= 0x5A) || // i32/i64 comparisons
			(op >= 0x67 && op <= 0x8A) || // i32/i64 arithmetic
			op == 0xA7 || op == 0xAC || op == 0xAD || // wrap, extend (integer-only conversions)
			(op >= 0xC0 && op <= 0xC4): // sign-extension ops
			// no immediate operand
		default:
			return fmt.Errorf("unsupported instruction opcode 0x%02x", op)
		}
	}
	return nil
}

// isForbiddenOpcode reports whether op is one of the floating-point
// instructions barred from consensus-critical code: loads/stores, const,
// comparisons, arithmetic, and conversions touching f32 or f64.
func isForbiddenOpcode(op byte) bool {
	switch op {
	case 0x2A, 0x2B, 0x38, 0x39, 0x43, 0x44:
		return true
	}
	switch {
	case op >= 0x5B && op <= 0x66: // f32/f64 comparisons
		return true
	case op >= 0x8B && op <= 0xA6: // f32/f64 arithmetic
		return true
	case op >= 0xA8 && op <= 0xAB: // i32.trunc_f32/f64
		return true
	case op >= 0xAE && op <= 0xB1: // i64.trunc_f32/f64
		return true
	case op >= 0xB2 && op <= 0xBF: // convert/demote/promote/reinterpret touching float
		return true
	}
	return false
}

func readLimits(b []byte, off int) (min, max uint64, hasMax bool, next int, err error) {
	if off >= len(b) {
		return 0, 0, false, 0, fmt.Errorf("truncated limits")
	}
	flags := b[off]
	off++
	min, off, err = readULEB128(b, off)
	if err != nil {
		return 0, 0, false, 0, err
	}
	if flags&0x01 != 0 {
		max, off, err = readULEB128(b, off)
		if err != nil {
			return 0, 0, false, 0, err
		}
		hasMax = true
	}
	return min, max, hasMax, off, nil
}

func skipLimits(b []byte, off int) (int, error) {
	_, _, _, next, err := readLimits(b, off)
	return next, err
}

func readName(data []byte, off int) (string, int, error) {
	n, next, err := readULEB128(data, off)
	if err != nil {
		return "", 0, err
	}
	end := next + int(n)
	if end > len(data) {
		return "", 0, fmt.Errorf("name exceeds section bounds")
	}
	return string(data[next:end]), end, nil
}

// readULEB128 decodes an unsigned LEB128 value at off. It is also used to
// skip signed LEB128 immediates (i32.const, i64.const): both encodings
// share the same continuation-bit byte stream, so the byte length this
// returns is correct even though the decoded value is not sign-extended.
func readULEB128(data []byte, off int) (uint64, int, error) {
	var result uint64
	var shift uint
	for {
		if off >= len(data) {
			return 0, 0, fmt.Errorf("truncated LEB128 value")
		}
		b := data[off]
		off++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 64 {
			return 0, 0, fmt.Errorf("LEB128 value too large")
		}
	}
	return result, off, nil
}
