package vm

import (
	"errors"
	"testing"

	internalerrors "github.com/kdsmith18542/baals/internal/errors"
)

// emptyWasmModule is the smallest valid WASM module: just the magic number
// and version, no sections. Parseable, but exports nothing.
var emptyWasmModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestValidateRejectsMalformedModule(t *testing.T) {
	if err := Validate([]byte{0xDE, 0xAD, 0xBE, 0xEF}, "init"); !errors.Is(err, internalerrors.ErrContractValidation) {
		t.Fatalf("expected ErrContractValidation, got %v", err)
	}
}

func TestValidateRejectsMissingExport(t *testing.T) {
	if err := Validate(emptyWasmModule, "init"); !errors.Is(err, internalerrors.ErrContractValidation) {
		t.Fatalf("expected ErrContractValidation for missing export, got %v", err)
	}
}

func TestFuelMeterChargeStopsAtLimit(t *testing.T) {
	m := newFuelMeter(100)
	if !m.charge(60) {
		t.Fatal("expected first charge within budget to succeed")
	}
	if m.charge(60) {
		t.Fatal("expected charge exceeding budget to fail")
	}
	if !m.outOfFuel {
		t.Fatal("expected meter to be marked out of fuel")
	}
	if m.charge(1) {
		t.Fatal("expected meter to stay latched out of fuel")
	}
}

func TestFuelMeterChargeExactBudget(t *testing.T) {
	m := newFuelMeter(100)
	if !m.charge(100) {
		t.Fatal("expected charge exactly at budget to succeed")
	}
	if m.outOfFuel {
		t.Fatal("expected meter to not be out of fuel at exact budget")
	}
}

func TestValidateRejectsOversizedModule(t *testing.T) {
	oversized := make([]byte, MaxModuleSize+1)
	copy(oversized, emptyWasmModule)
	if err := Validate(oversized, "init"); !errors.Is(err, internalerrors.ErrContractValidation) {
		t.Fatalf("expected ErrContractValidation for oversized module, got %v", err)
	}
}

func uleb(n uint64) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if n == 0 {
			return out
		}
	}
}

func TestReadULEB128RoundTrips(t *testing.T) {
	for _, want := range []uint64{0, 1, 127, 128, 300, 1 << 20} {
		got, next, err := readULEB128(uleb(want), 0)
		if err != nil {
			t.Fatalf("readULEB128(%d): %v", want, err)
		}
		if got != want || next != len(uleb(want)) {
			t.Fatalf("readULEB128(%d) = %d, %d", want, got, next)
		}
	}
}

func TestCheckMemorySectionRejectsPagesOverLimit(t *testing.T) {
	// count=1, flags=0 (min only), min=MaxMemoryPages+1
	payload := append([]byte{0x01, 0x00}, uleb(MaxMemoryPages+1)...)
	if err := checkMemorySection(payload); err == nil {
		t.Fatal("expected error for memory declaration exceeding page limit")
	}
}

func TestCheckMemorySectionAcceptsPagesAtLimit(t *testing.T) {
	payload := append([]byte{0x01, 0x00}, uleb(MaxMemoryPages)...)
	if err := checkMemorySection(payload); err != nil {
		t.Fatalf("expected memory at the page limit to be accepted, got %v", err)
	}
}

func TestCheckTypeSectionRejectsFloatParam(t *testing.T) {
	// count=1, form=0x60, 1 param of type f32 (0x7D), 0 results
	payload := []byte{0x01, 0x60, 0x01, floatValType, 0x00}
	if err := checkTypeSection(payload); err == nil {
		t.Fatal("expected error for floating-point function parameter")
	}
}

func TestCheckTypeSectionAcceptsIntegerSignature(t *testing.T) {
	// count=1, form=0x60, 1 param i32 (0x7F), 1 result i64 (0x7E)
	payload := []byte{0x01, 0x60, 0x01, 0x7F, 0x01, 0x7E}
	if err := checkTypeSection(payload); err != nil {
		t.Fatalf("expected integer-only signature to be accepted, got %v", err)
	}
}

func TestScanInstructionsRejectsFloatConst(t *testing.T) {
	// f32.const 0.0, end
	body := []byte{0x43, 0x00, 0x00, 0x00, 0x00, 0x0B}
	if err := scanInstructions(body, 0, len(body)); err == nil {
		t.Fatal("expected error for f32.const")
	}
}

func TestScanInstructionsRejectsSIMDPrefix(t *testing.T) {
	body := []byte{0xFD, 0x00}
	if err := scanInstructions(body, 0, len(body)); err == nil {
		t.Fatal("expected error for SIMD instruction prefix")
	}
}

func TestScanInstructionsAcceptsIntegerArithmetic(t *testing.T) {
	// local.get 0, local.get 1, i32.add, end
	body := []byte{0x20, 0x00, 0x20, 0x01, 0x6A, 0x0B}
	if err := scanInstructions(body, 0, len(body)); err != nil {
		t.Fatalf("expected integer-only function body to be accepted, got %v", err)
	}
}

func TestCheckCodeSectionRejectsFloatLocal(t *testing.T) {
	// 1 function body: size, 1 local decl (1 local of type f64), then end
	body := []byte{0x01, 0x01, float64ValType, 0x0B}
	payload := append([]byte{0x01}, append(uleb(uint64(len(body))), body...)...)
	if err := checkCodeSection(payload); err == nil {
		t.Fatal("expected error for floating-point local declaration")
	}
}
